package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"cineast/internal/domain"
	"cineast/internal/framecache"
	"cineast/internal/query"
)

// Config holds all configuration for cineast.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig selects the storage engine.
type DatabaseConfig struct {
	Engine string `yaml:"engine"` // "bolt" or "memory"
	Path   string `yaml:"path"`   // bolt file, relative to the project dir
}

// ExtractionConfig holds feature extraction configuration.
type ExtractionConfig struct {
	Workers         int      `yaml:"workers"`
	Modules         []string `yaml:"modules"`
	WriterBatchSize int      `yaml:"writer_batch_size"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	MaxResultsPerModule int                       `yaml:"max_results_per_module"`
	Distance            string                    `yaml:"distance"`
	Norm                float64                   `yaml:"norm"`
	Categories          map[string]CategoryConfig `yaml:"categories"`
}

// CategoryConfig maps a query category to weighted retrieval modules.
type CategoryConfig struct {
	Modules map[string]float64 `yaml:"modules"`
	Merge   string             `yaml:"merge"`
}

// CacheConfig holds frame cache configuration. Limits are in megabytes.
type CacheConfig struct {
	Policy      string `yaml:"policy"`
	SoftLimitMB int64  `yaml:"soft_limit_mb"`
	HardLimitMB int64  `yaml:"hard_limit_mb"`
	BudgetMB    int64  `yaml:"budget_mb"`
	Location    string `yaml:"location"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Engine: "bolt",
			Path:   filepath.Join(".cineast", "cineast.db"),
		},
		Extraction: ExtractionConfig{
			Workers:         4,
			Modules:         []string{"AverageColorRaster", "AverageColorGrid8"},
			WriterBatchSize: 100,
		},
		Retrieve: RetrieveConfig{
			MaxResultsPerModule: query.DefaultLimit,
			Distance:            string(query.DistanceEuclidean),
			Norm:                2,
			Categories: map[string]CategoryConfig{
				"globalcolor": {
					Modules: map[string]float64{"AverageColorRaster": 1, "AverageColorGrid8": 1},
					Merge:   string(query.MergeWeightedSum),
				},
			},
		},
		Cache: CacheConfig{
			Policy:      string(framecache.PolicyAutomatic),
			SoftLimitMB: framecache.DefaultSoftLimit / framecache.MB,
			HardLimitMB: framecache.DefaultHardLimit / framecache.MB,
			BudgetMB:    framecache.DefaultBudget / framecache.MB,
			Location:    framecache.DefaultLocation,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for cineast.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "cineast.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".cineast", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks every section. Errors are *domain.ConfigurationError.
func (c *Config) Validate() error {
	switch c.Database.Engine {
	case "bolt", "memory":
	default:
		return &domain.ConfigurationError{Field: "database.engine", Reason: fmt.Sprintf("unknown engine %q", c.Database.Engine)}
	}
	if c.Extraction.Workers <= 0 {
		return &domain.ConfigurationError{Field: "extraction.workers", Reason: "must be > 0"}
	}
	if c.Extraction.WriterBatchSize < 0 {
		return &domain.ConfigurationError{Field: "extraction.writer_batch_size", Reason: "must be >= 0"}
	}
	if c.Retrieve.MaxResultsPerModule < 0 {
		return &domain.ConfigurationError{Field: "retrieve.max_results_per_module", Reason: "must be >= 0"}
	}
	if _, err := c.QueryConfig(); err != nil {
		return err
	}
	for _, name := range c.CategoryNames() {
		cat := c.Retrieve.Categories[name]
		if _, err := query.ParseMergeOperation(cat.Merge); err != nil {
			return &domain.ConfigurationError{Field: "retrieve.categories." + name + ".merge", Reason: err.Error()}
		}
		if len(cat.Modules) == 0 {
			return &domain.ConfigurationError{Field: "retrieve.categories." + name, Reason: "no modules"}
		}
	}
	if _, err := c.FrameCache(nil); err != nil {
		return err
	}
	return nil
}

// QueryConfig builds the base query configuration from the retrieve section.
func (c *Config) QueryConfig() (query.Config, error) {
	d, err := query.ParseDistance(c.Retrieve.Distance)
	if err != nil {
		return query.Config{}, err
	}
	qc := query.NewConfig().WithDistance(d).WithLimit(c.Retrieve.MaxResultsPerModule)
	if d == query.DistanceMinkowski {
		qc = qc.WithNorm(c.Retrieve.Norm)
	}
	if err := qc.Validate(0); err != nil {
		return query.Config{}, err
	}
	return qc, nil
}

// CategoryNames returns the configured categories in sorted order.
func (c *Config) CategoryNames() []string {
	names := make([]string, 0, len(c.Retrieve.Categories))
	for name := range c.Retrieve.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FrameCache converts the cache section into a validated framecache.Config.
// An unusable location falls back to the working directory with a warning.
func (c *Config) FrameCache(logger *slog.Logger) (framecache.Config, error) {
	policy, err := framecache.ParsePolicy(c.Cache.Policy)
	if err != nil {
		return framecache.Config{}, err
	}
	return framecache.NewConfig(
		c.Cache.SoftLimitMB*framecache.MB,
		c.Cache.HardLimitMB*framecache.MB,
		c.Cache.BudgetMB*framecache.MB,
		policy,
		c.Cache.Location,
		logger,
	)
}

// DBPath returns the path to the database file for a project dir.
func (c *Config) DBPath(dir string) string {
	if filepath.IsAbs(c.Database.Path) {
		return c.Database.Path
	}
	return filepath.Join(dir, c.Database.Path)
}

// EnsureDir ensures the .cineast directory exists.
func EnsureDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".cineast"), 0755)
}
