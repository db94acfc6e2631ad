package framecache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// frameHeader is Min.X, Min.Y, Max.X, Max.Y as big-endian int32.
const frameHeaderSize = 16

// diskTier stores zstd-compressed raw RGBA frames in a per-run directory.
type diskTier struct {
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newDiskTier(location string) (*diskTier, error) {
	dir := filepath.Join(location, "framecache-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &diskTier{dir: dir, enc: enc, dec: dec}, nil
}

// write stores img and returns the file path and its size on disk.
func (d *diskTier) write(img *image.RGBA) (string, int64, error) {
	buf := make([]byte, frameHeaderSize, frameHeaderSize+len(img.Pix))
	r := img.Rect
	binary.BigEndian.PutUint32(buf[0:], uint32(int32(r.Min.X)))
	binary.BigEndian.PutUint32(buf[4:], uint32(int32(r.Min.Y)))
	binary.BigEndian.PutUint32(buf[8:], uint32(int32(r.Max.X)))
	binary.BigEndian.PutUint32(buf[12:], uint32(int32(r.Max.Y)))
	buf = append(buf, packed(img)...)

	data := d.enc.EncodeAll(buf, nil)
	path := filepath.Join(d.dir, uuid.NewString()+".zst")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", 0, err
	}
	return path, int64(len(data)), nil
}

func (d *diskTier) read(path string) (*image.RGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := d.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", filepath.Base(path), err)
	}
	if len(raw) < frameHeaderSize {
		return nil, errors.New("truncated frame header")
	}
	rect := image.Rect(
		int(int32(binary.BigEndian.Uint32(raw[0:]))),
		int(int32(binary.BigEndian.Uint32(raw[4:]))),
		int(int32(binary.BigEndian.Uint32(raw[8:]))),
		int(int32(binary.BigEndian.Uint32(raw[12:]))),
	)
	img := image.NewRGBA(rect)
	if len(raw)-frameHeaderSize != len(img.Pix) {
		return nil, fmt.Errorf("frame payload is %d bytes, want %d", len(raw)-frameHeaderSize, len(img.Pix))
	}
	copy(img.Pix, raw[frameHeaderSize:])
	return img, nil
}

func (d *diskTier) remove(path string) {
	_ = os.Remove(path)
}

func (d *diskTier) close() error {
	d.enc.Close()
	d.dec.Close()
	return os.RemoveAll(d.dir)
}

// packed returns the pixel rows of img without stride padding.
func packed(img *image.RGBA) []byte {
	w := img.Rect.Dx() * 4
	if img.Stride == w {
		return img.Pix[:w*img.Rect.Dy()]
	}
	out := make([]byte, 0, w*img.Rect.Dy())
	for y := 0; y < img.Rect.Dy(); y++ {
		off := y * img.Stride
		out = append(out, img.Pix[off:off+w]...)
	}
	return out
}
