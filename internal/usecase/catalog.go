package usecase

import (
	"context"
	"errors"
	"fmt"

	"cineast/internal/domain"
	"cineast/internal/port"
)

// CatalogResult reports what a catalog write did.
type CatalogResult struct {
	Object          domain.MultimediaObject
	Segments        []domain.Segment
	ObjectWritten   bool
	SegmentsWritten int
}

// Catalog records objects and their segments ahead of feature extraction.
type Catalog struct {
	writers port.WriterFactory
}

func NewCatalog(writers port.WriterFactory) *Catalog {
	return &Catalog{writers: writers}
}

// Write stores the object of src and its segments. Objects are keyed by name;
// rows already present are left untouched. Missing ids and numbers are derived.
func (c *Catalog) Write(ctx context.Context, src port.SegmentSource) (res *CatalogResult, err error) {
	obj := src.Object()
	if obj.Name == "" {
		return nil, &domain.ConfigurationError{Field: "object.name", Reason: "must not be empty"}
	}
	if obj.ID == "" {
		obj.ID = domain.ObjectID(obj.Name)
	}
	segs, err := src.Segments()
	if err != nil {
		return nil, fmt.Errorf("segments of %s: %w", obj.Name, err)
	}
	for i := range segs {
		if segs[i].ObjectID == "" {
			segs[i].ObjectID = obj.ID
		}
		// A segment with its own id keeps its number, zero included.
		if segs[i].ID == "" {
			if segs[i].Number == 0 {
				segs[i].Number = i + 1
			}
			segs[i].ID = domain.SegmentID(obj.ID, segs[i].Number)
		}
	}
	if obj.FrameCount == 0 {
		for _, s := range segs {
			obj.FrameCount += len(s.Frames)
		}
	}
	res = &CatalogResult{Object: obj, Segments: segs}

	objects := c.writers.NewWriter()
	if err := objects.Open(ctx, domain.EntityMultimediaObject); err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, objects.Close()) }()

	known, err := objects.IDExists(ctx, obj.ID)
	if err != nil {
		return nil, err
	}
	if !known {
		t, err := objects.GenerateTuple(obj.ID, obj.Type, obj.Name, obj.Path, obj.Width, obj.Height, obj.FrameCount, obj.Duration)
		if err != nil {
			return nil, err
		}
		if err := objects.Persist(ctx, t); err != nil {
			return nil, err
		}
		res.ObjectWritten = true
	}

	segments := c.writers.NewWriter()
	if err := segments.Open(ctx, domain.EntitySegment); err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, segments.Close()) }()

	for _, s := range segs {
		known, err := segments.IDExists(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		if known {
			continue
		}
		t, err := segments.GenerateTuple(s.ID, s.ObjectID, s.Number, s.Start, s.End, s.StartAbs.Seconds(), s.EndAbs.Seconds())
		if err != nil {
			return nil, err
		}
		if err := segments.Persist(ctx, t); err != nil {
			return nil, err
		}
		res.SegmentsWritten++
	}
	return res, nil
}
