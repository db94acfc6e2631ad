package port

import (
	"context"
	"image"

	"cineast/internal/domain"
)

// SegmentContainer gives feature modules access to a segment and its pixels.
type SegmentContainer interface {
	ID() string
	Segment() domain.Segment

	// AverageImage returns the per-pixel mean over all frames of the segment.
	AverageImage(ctx context.Context) (*image.RGBA, error)
}

// FrameDecoder decodes one frame reference into pixels.
type FrameDecoder interface {
	Decode(ctx context.Context, ref string) (image.Image, error)
}
