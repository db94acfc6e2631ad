package framecache

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
)

var ErrClosed = errors.New("frame cache closed")

// PutOptions describe a frame being cached.
type PutOptions struct {
	// Derived marks frames computed from decoded frames, such as averages.
	Derived bool
	// PreferMemory asks DISK_CACHE to keep this frame in memory.
	PreferMemory bool
}

type Stats struct {
	MemoryFrames int
	MemoryBytes  int64
	DiskFrames   int
	DiskBytes    int64
	Spills       int
}

type diskEntry struct {
	path string
	size int64
}

// Cache holds the frames of one extraction run. It is safe for concurrent use.
type Cache struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	mem    map[string]*image.RGBA
	disk   map[string]diskEntry
	used   int64
	tier   *diskTier
	stats  Stats
}

func New(cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		cfg:    cfg,
		logger: logger.With("component", "framecache"),
		mem:    make(map[string]*image.RGBA),
		disk:   make(map[string]diskEntry),
	}
}

func (c *Cache) Config() Config { return c.cfg }

// Put stores img under key, replacing any previous frame.
func (c *Cache) Put(ctx context.Context, key string, img *image.RGBA, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	size := int64(len(img.Pix))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.dropLocked(key)

	if c.spill(size, opts) {
		err := c.writeLocked(key, img)
		if err == nil {
			return nil
		}
		c.logger.Warn("spill failed, keeping frame in memory", "key", key, "error", err)
	}
	c.mem[key] = img
	c.used += size
	c.stats.MemoryFrames++
	c.stats.MemoryBytes += size
	return nil
}

// spill decides whether a frame of size bytes goes to disk.
func (c *Cache) spill(size int64, opts PutOptions) bool {
	headroom := c.cfg.budget - c.used - size
	switch c.cfg.policy {
	case PolicyForceDisk:
		return true
	case PolicyDisk:
		return !opts.PreferMemory
	case PolicyAvoid:
		return headroom < c.cfg.hardLimit
	default:
		if opts.Derived {
			return false
		}
		return headroom < c.cfg.softLimit
	}
}

func (c *Cache) writeLocked(key string, img *image.RGBA) error {
	if c.tier == nil {
		tier, err := newDiskTier(c.cfg.location)
		if err != nil {
			return err
		}
		c.tier = tier
		c.logger.Debug("disk tier created", "dir", tier.dir)
	}
	path, n, err := c.tier.write(img)
	if err != nil {
		return err
	}
	c.disk[key] = diskEntry{path: path, size: n}
	c.stats.DiskFrames++
	c.stats.DiskBytes += n
	c.stats.Spills++
	if c.stats.Spills == 1 {
		c.logger.Info("frames spilling to disk",
			"policy", c.cfg.policy,
			"in_memory", humanize.IBytes(uint64(c.used)),
			"budget", humanize.IBytes(uint64(c.cfg.budget)))
	}
	return nil
}

// Get returns the frame stored under key.
func (c *Cache) Get(key string) (*image.RGBA, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false, ErrClosed
	}
	if img, ok := c.mem[key]; ok {
		return img, true, nil
	}
	e, ok := c.disk[key]
	if !ok {
		return nil, false, nil
	}
	img, err := c.tier.read(e.path)
	if err != nil {
		return nil, false, fmt.Errorf("read cached frame %s: %w", key, err)
	}
	return img, true, nil
}

// Release forgets the frame stored under key.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(key)
}

func (c *Cache) dropLocked(key string) {
	if img, ok := c.mem[key]; ok {
		size := int64(len(img.Pix))
		delete(c.mem, key)
		c.used -= size
		c.stats.MemoryFrames--
		c.stats.MemoryBytes -= size
	}
	if e, ok := c.disk[key]; ok {
		delete(c.disk, key)
		c.tier.remove(e.path)
		c.stats.DiskFrames--
		c.stats.DiskBytes -= e.size
	}
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close drops every frame and removes the run directory.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.mem = nil
	c.disk = nil
	c.used = 0
	if c.tier != nil {
		return c.tier.close()
	}
	return nil
}
