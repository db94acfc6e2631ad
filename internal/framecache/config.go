// Package framecache holds decoded frames for one extraction run, keeping them
// in memory while there is headroom and spilling them to a scratch directory otherwise.
package framecache

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cineast/internal/domain"
)

// Policy selects where frames are kept.
type Policy string

const (
	// PolicyForceDisk writes every frame to disk.
	PolicyForceDisk Policy = "FORCE_DISK_CACHE"
	// PolicyDisk writes frames to disk unless the caller asks for memory.
	PolicyDisk Policy = "DISK_CACHE"
	// PolicyAutomatic spills once headroom drops below the soft limit.
	PolicyAutomatic Policy = "AUTOMATIC"
	// PolicyAvoid keeps frames in memory until headroom drops below the hard limit.
	PolicyAvoid Policy = "AVOID_CACHE"
)

const (
	DefaultLocation = "."
	MB              = int64(1) << 20

	DefaultSoftLimit = 3096 * MB
	DefaultHardLimit = 2048 * MB
	DefaultBudget    = 8192 * MB
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToUpper(strings.TrimSpace(s))); p {
	case PolicyForceDisk, PolicyDisk, PolicyAutomatic, PolicyAvoid:
		return p, nil
	}
	return "", &domain.ConfigurationError{Field: "cache.policy", Reason: fmt.Sprintf("unknown policy %q", s)}
}

// Config is a validated cache configuration. Soft and hard are minimum
// free-memory headroom below the budget; hard never exceeds soft.
type Config struct {
	softLimit int64
	hardLimit int64
	budget    int64
	policy    Policy
	location  string
}

// NewConfig validates the cache settings. An unusable location is replaced by
// DefaultLocation with a warning.
func NewConfig(softBytes, hardBytes, budgetBytes int64, policy Policy, location string, logger *slog.Logger) (Config, error) {
	if softBytes < 0 {
		return Config{}, &domain.ConfigurationError{Field: "cache.soft_limit", Reason: "must be >= 0"}
	}
	if hardBytes < 0 {
		return Config{}, &domain.ConfigurationError{Field: "cache.hard_limit", Reason: "must be >= 0"}
	}
	if hardBytes > softBytes {
		return Config{}, &domain.ConfigurationError{
			Field:  "cache.hard_limit",
			Reason: fmt.Sprintf("hard limit %d exceeds soft limit %d", hardBytes, softBytes),
		}
	}
	if budgetBytes <= 0 {
		return Config{}, &domain.ConfigurationError{Field: "cache.budget", Reason: "must be > 0"}
	}
	if _, err := ParsePolicy(string(policy)); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(location) == "" {
		return Config{}, &domain.ConfigurationError{Field: "cache.location", Reason: "must not be empty"}
	}

	if err := usableDir(location); err != nil {
		if logger == nil {
			logger = slog.New(slog.DiscardHandler)
		}
		logger.Warn("cache location unusable, falling back to default",
			"location", location, "default", DefaultLocation, "error", err)
		location = DefaultLocation
	}

	return Config{
		softLimit: softBytes,
		hardLimit: hardBytes,
		budget:    budgetBytes,
		policy:    Policy(strings.ToUpper(string(policy))),
		location:  location,
	}, nil
}

// DefaultConfig is NewConfig with the default limits, AUTOMATIC policy and the working directory.
func DefaultConfig() Config {
	return Config{
		softLimit: DefaultSoftLimit,
		hardLimit: DefaultHardLimit,
		budget:    DefaultBudget,
		policy:    PolicyAutomatic,
		location:  DefaultLocation,
	}
}

func (c Config) SoftLimit() int64 { return c.softLimit }
func (c Config) HardLimit() int64 { return c.hardLimit }
func (c Config) Budget() int64    { return c.budget }
func (c Config) Policy() Policy   { return c.policy }
func (c Config) Location() string { return c.location }

// usableDir checks that dir exists and that a file can be created in it.
func usableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".framecache-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
