package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Well-known entity names.
const (
	EntityMultimediaObject = "cineast_multimediaobject"
	EntitySegment          = "cineast_segment"
)

// Segment is a contiguous temporal slice of a multimedia object (a shot) or a single image.
type Segment struct {
	ID       string        `yaml:"id" json:"id"`
	ObjectID string        `yaml:"object_id" json:"object_id"`
	Number   int           `yaml:"number" json:"number"`
	Start    int           `yaml:"start" json:"start"`
	End      int           `yaml:"end" json:"end"`
	StartAbs time.Duration `yaml:"start_abs" json:"start_abs"`
	EndAbs   time.Duration `yaml:"end_abs" json:"end_abs"`
	Frames   []string      `yaml:"frames" json:"frames"`
}

// Object types.
const (
	MediaTypeVideo = 0
	MediaTypeImage = 1
)

type MultimediaObject struct {
	ID         string  `yaml:"id" json:"id"`
	Name       string  `yaml:"name" json:"name"`
	Path       string  `yaml:"path" json:"path"`
	Type       int     `yaml:"type" json:"type"`
	Width      int     `yaml:"width" json:"width"`
	Height     int     `yaml:"height" json:"height"`
	FrameCount int     `yaml:"framecount" json:"framecount"`
	Duration   float64 `yaml:"duration" json:"duration"`
}

// ObjectID derives the id of an object from its name.
func ObjectID(name string) string {
	return "v_" + strings.ReplaceAll(name, " ", "-")
}

// SegmentID derives the id of the n-th segment of an object.
func SegmentID(objectID string, number int) string {
	return fmt.Sprintf("%s_%d", objectID, number)
}

type FeatureVector struct {
	SegmentID string
	Feature   string
	Values    []float32
}

// EntityDefinition describes one storage entity. Unique entities hold at most one row per id.
type EntityDefinition struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
	Unique bool     `json:"unique"`
}

// RankedResult is a segment id with its distance to the query; lower is closer.
type RankedResult struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
}

// LessResult orders by ascending distance, then by id.
func LessResult(a, b RankedResult) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}

// SortResults sorts results in place into the canonical order.
func SortResults(results []RankedResult) {
	sort.Slice(results, func(i, j int) bool {
		return LessResult(results[i], results[j])
	})
}

// ScoredRow is a full stored row together with its distance to the query.
type ScoredRow struct {
	Row      Row
	Distance float64
}

// ID returns the row's id column, if present.
func (r ScoredRow) ID() (string, bool) {
	return r.Row.String("id")
}

type ResultBatch struct {
	QueryID    string           `json:"query_id"`
	Categories []string         `json:"categories"`
	Results    []CategoryResult `json:"results"`
}

type CategoryResult struct {
	QueryID  string         `json:"query_id"`
	Category string         `json:"category"`
	Content  []RankedResult `json:"content"`
}
