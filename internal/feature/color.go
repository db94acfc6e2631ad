package feature

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Color is one of the 15 canonical colours used by the raster features.
type Color int

const (
	Black Color = iota
	Blue
	Brown
	Cyan
	Green
	Grey
	Magenta
	Navy
	Orange
	Pink
	Red
	Teal
	Violet
	White
	Yellow

	numColors = 15
)

var colorNames = [numColors]string{
	"Black", "Blue", "Brown", "Cyan", "Green", "Grey", "Magenta", "Navy",
	"Orange", "Pink", "Red", "Teal", "Violet", "White", "Yellow",
}

func (c Color) String() string {
	if c < 0 || c >= numColors {
		return "Color(?)"
	}
	return colorNames[c]
}

// palette holds the sRGB reference of each canonical colour.
var palette = [numColors]colorful.Color{
	Black:   colorful.MustParseHex("#000000"),
	Blue:    colorful.MustParseHex("#0000ff"),
	Brown:   colorful.MustParseHex("#8b4513"),
	Cyan:    colorful.MustParseHex("#00ffff"),
	Green:   colorful.MustParseHex("#008000"),
	Grey:    colorful.MustParseHex("#808080"),
	Magenta: colorful.MustParseHex("#ff00ff"),
	Navy:    colorful.MustParseHex("#000080"),
	Orange:  colorful.MustParseHex("#ffa500"),
	Pink:    colorful.MustParseHex("#ffc0cb"),
	Red:     colorful.MustParseHex("#ff0000"),
	Teal:    colorful.MustParseHex("#008080"),
	Violet:  colorful.MustParseHex("#8a2be2"),
	White:   colorful.MustParseHex("#ffffff"),
	Yellow:  colorful.MustParseHex("#ffff00"),
}

// Quantize maps a colour to the canonical colour nearest in L*a*b*.
func Quantize(c colorful.Color) Color {
	best, bestDist := Black, math.Inf(1)
	for i, ref := range palette {
		if d := c.DistanceLab(ref); d < bestDist {
			best, bestDist = Color(i), d
		}
	}
	return best
}

// colorOf reads a stored bucket value. Out of range values read as Black.
func colorOf(f float32) Color {
	i := int(math.Floor(float64(f) + 0.5))
	if i < 0 || i >= numColors {
		return Black
	}
	return Color(i)
}

// similarity between two distinct canonical colours; unlisted pairs score 0.
var similarColors = []struct {
	a, b  Color
	score float64
}{
	{Black, Grey, 0.25},
	{Blue, Navy, 0.5},
	{Blue, Violet, 0.5},
	{Blue, Cyan, 0.25},
	{Brown, Grey, 0.5},
	{Cyan, White, 0.25},
	{Green, Teal, 0.5},
	{Grey, White, 0.125},
	{Magenta, Violet, 0.5},
	{Magenta, Pink, 0.5},
	{Orange, Red, 0.5},
	{Orange, Yellow, 0.5},
	{Pink, Red, 0.5},
}

var scoreTable = func() (t [numColors][numColors]float64) {
	for i := range numColors {
		t[i][i] = 1
	}
	for _, p := range similarColors {
		t[p.a][p.b] = p.score
		t[p.b][p.a] = p.score
	}
	return t
}()

// Score compares two raster buckets.
func Score(a, b float32) float64 {
	return scoreTable[colorOf(a)][colorOf(b)]
}
