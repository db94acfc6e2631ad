// Package segment provides the segment containers handed to feature modules.
package segment

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sync"

	"cineast/internal/domain"
	"cineast/internal/framecache"
	"cineast/internal/port"
)

var (
	ErrNoFrames     = errors.New("segment has no frames")
	ErrFrameSize    = errors.New("frame sizes differ within segment")
	ErrEmptyImage   = errors.New("empty image")
	ErrNoFrameStore = errors.New("segment has no frame source")
)

// Container decodes the frames of one segment on demand and caches them.
// AverageImage is safe to call from several modules at once.
type Container struct {
	seg     domain.Segment
	decoder port.FrameDecoder
	cache   *framecache.Cache

	mu   sync.Mutex
	avg  *image.RGBA
	err  error
	keys []string
}

var _ port.SegmentContainer = (*Container)(nil)

// New returns a container that decodes seg's frames with decoder and keeps them in cache.
// A nil cache keeps frames only for the lifetime of the container.
func New(seg domain.Segment, decoder port.FrameDecoder, cache *framecache.Cache) *Container {
	return &Container{seg: seg, decoder: decoder, cache: cache}
}

// FromImage wraps a single query image with no stored segment behind it.
func FromImage(id string, img image.Image) (*Container, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	return &Container{
		seg: domain.Segment{ID: id},
		avg: toRGBA(img),
	}, nil
}

func (c *Container) ID() string { return c.seg.ID }

func (c *Container) Segment() domain.Segment { return c.seg }

func (c *Container) AverageImage(ctx context.Context) (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.avg != nil || c.err != nil {
		return c.avg, c.err
	}

	key := "avg:" + c.seg.ID
	if c.cache != nil {
		img, ok, err := c.cache.Get(key)
		if err != nil {
			return nil, err
		}
		if ok {
			c.avg = img
			return img, nil
		}
	}

	avg, err := c.average(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			c.err = err
		}
		return nil, err
	}
	c.avg = avg
	if c.cache != nil {
		if err := c.cache.Put(ctx, key, avg, framecache.PutOptions{Derived: true}); err != nil {
			return nil, err
		}
		c.keys = append(c.keys, key)
	}
	return avg, nil
}

func (c *Container) average(ctx context.Context) (*image.RGBA, error) {
	if len(c.seg.Frames) == 0 {
		return nil, ErrNoFrames
	}
	if c.decoder == nil {
		return nil, ErrNoFrameStore
	}

	var (
		sums   []uint64
		bounds image.Rectangle
	)
	for i, ref := range c.seg.Frames {
		frame, err := c.frame(ctx, i, ref)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			bounds = frame.Rect
			sums = make([]uint64, len(frame.Pix))
		} else if frame.Rect.Size() != bounds.Size() {
			return nil, fmt.Errorf("%w: frame %d is %v, first frame is %v", ErrFrameSize, i, frame.Rect.Size(), bounds.Size())
		}
		for j, p := range frame.Pix {
			sums[j] += uint64(p)
		}
	}

	n := uint64(len(c.seg.Frames))
	avg := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for j, s := range sums {
		avg.Pix[j] = uint8((s + n/2) / n)
	}
	return avg, nil
}

// frame decodes one frame, going through the cache when there is one.
func (c *Container) frame(ctx context.Context, i int, ref string) (*image.RGBA, error) {
	key := fmt.Sprintf("frame:%s:%d", c.seg.ID, i)
	if c.cache != nil {
		if img, ok, err := c.cache.Get(key); err != nil {
			return nil, err
		} else if ok {
			return img, nil
		}
	}
	img, err := c.decoder.Decode(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("frame %d of segment %s: %w", i, c.seg.ID, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("frame %d of segment %s: %w", i, c.seg.ID, ErrEmptyImage)
	}
	rgba := toRGBA(img)
	if c.cache != nil {
		if err := c.cache.Put(ctx, key, rgba, framecache.PutOptions{}); err != nil {
			return nil, err
		}
		c.keys = append(c.keys, key)
	}
	return rgba, nil
}

// Release drops every frame this container put into the cache.
func (c *Container) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache != nil {
		for _, k := range c.keys {
			c.cache.Release(k)
		}
	}
	c.keys = nil
	if c.decoder != nil {
		c.avg = nil
	}
}

// toRGBA converts img into an RGBA image whose bounds start at the origin.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*b.Dx() {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
