package port

import "cineast/internal/domain"

// FileWalker lists the files under root matching a glob pattern.
type FileWalker interface {
	Walk(root, pattern string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

// SegmentSource yields the ordered segments of one multimedia object.
type SegmentSource interface {
	Object() domain.MultimediaObject
	Segments() ([]domain.Segment, error)
}
