package fs

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"cineast/internal/port"
)

// ImagePattern matches the frame formats the decoder understands.
const ImagePattern = "**/*.{png,jpg,jpeg,gif,bmp,tif,tiff,webp,PNG,JPG,JPEG,GIF,BMP,TIF,TIFF,WEBP}"

type Walker struct {
	excludes []string
}

var _ port.FileWalker = (*Walker)(nil)

func NewWalker(excludes ...string) *Walker {
	return &Walker{excludes: excludes}
}

// Walk returns the files under root matching pattern, sorted by path.
func (w *Walker) Walk(root, pattern string) ([]port.FileInfo, error) {
	var files []port.FileInfo

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = ImagePattern
	}

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if info.IsDir() {
			if relPath != "." && w.shouldExclude(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		matched, err := doublestar.Match(pattern, relPath)
		if err != nil {
			return err
		}
		if matched && !w.shouldExclude(relPath) {
			files = append(files, port.FileInfo{
				Path:    path,
				ModTime: info.ModTime().Unix(),
				Size:    info.Size(),
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (w *Walker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}
