package fs

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"cineast/internal/domain"
	"cineast/internal/port"
)

type manifestFile struct {
	Object   domain.MultimediaObject `yaml:"object"`
	Segments []domain.Segment        `yaml:"segments"`
}

// Manifest lists the segments of one object, as produced by an external shot detector.
type Manifest struct {
	object   domain.MultimediaObject
	segments []domain.Segment
}

var _ port.SegmentSource = (*Manifest)(nil)

// LoadManifest reads a YAML manifest. Frame paths are resolved against the manifest's directory;
// missing object and segment ids are derived from the object name and segment number.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifestFile
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.Object.Name == "" {
		return nil, &domain.ConfigurationError{Field: "object.name", Reason: "manifest " + path + " has no object name"}
	}
	if m.Object.ID == "" {
		m.Object.ID = domain.ObjectID(m.Object.Name)
	}

	dir := filepath.Dir(path)
	for i := range m.Segments {
		s := &m.Segments[i]
		if s.ObjectID == "" {
			s.ObjectID = m.Object.ID
		}
		if s.ID == "" {
			if s.Number == 0 {
				s.Number = i + 1
			}
			s.ID = domain.SegmentID(s.ObjectID, s.Number)
		}
		for j, f := range s.Frames {
			if !filepath.IsAbs(f) {
				s.Frames[j] = filepath.Join(dir, f)
			}
		}
	}
	return &Manifest{object: m.Object, segments: m.Segments}, nil
}

func (m *Manifest) Object() domain.MultimediaObject { return m.object }

func (m *Manifest) Segments() ([]domain.Segment, error) { return m.segments, nil }

// ImageSet treats every image file as a one-frame segment of a single object.
type ImageSet struct {
	object domain.MultimediaObject
	files  []port.FileInfo
}

var _ port.SegmentSource = (*ImageSet)(nil)

// NewImageSet collects the images under root matching pattern.
func NewImageSet(w port.FileWalker, root, pattern, name string) (*ImageSet, error) {
	files, err := w.Walk(root, pattern)
	if err != nil {
		return nil, err
	}
	if name == "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		name = filepath.Base(abs)
	}
	return &ImageSet{
		object: domain.MultimediaObject{
			ID:         domain.ObjectID(name),
			Name:       name,
			Path:       root,
			Type:       domain.MediaTypeImage,
			FrameCount: len(files),
		},
		files: files,
	}, nil
}

func (s *ImageSet) Object() domain.MultimediaObject { return s.object }

func (s *ImageSet) Segments() ([]domain.Segment, error) {
	out := make([]domain.Segment, len(s.files))
	for i, f := range s.files {
		out[i] = domain.Segment{
			ID:       domain.SegmentID(s.object.ID, i+1),
			ObjectID: s.object.ID,
			Number:   i + 1,
			Start:    i,
			End:      i,
			Frames:   []string{f.Path},
		}
	}
	return out, nil
}
