package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/martsearch/internal/domain"
)

// Config holds the martsearch configuration.
type Config struct {
	HTTP        HTTPConfig                  `yaml:"http"`
	Cache       CacheConfig                 `yaml:"cache"`
	Index       IndexConfig                 `yaml:"index"`
	Search      SearchConfig                `yaml:"search"`
	DataSources map[string]DataSourceConfig `yaml:"datasources"`
	Datasets    []DatasetConfig             `yaml:"datasets"`
	Logging     LoggingConfig               `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CacheConfig selects and configures the cache backend.
type CacheConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis, leveldb (default: memory)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	DialTimeoutSec   int      `yaml:"dial_timeout_sec"`
	Path             string   `yaml:"path"`
	KeyPrefix        string   `yaml:"key_prefix"`
	Compress         bool     `yaml:"compress"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig holds search index (Solr) settings.
type IndexConfig struct {
	URL          string `yaml:"url"`
	PrimaryField string `yaml:"primary_field"`
	PageSize     int    `yaml:"page_size"`
	TimeoutSec   int    `yaml:"timeout_sec"`
	RetryMax     int    `yaml:"retry_max"`
	Sort         string `yaml:"sort"`
}

// SearchConfig holds aggregator settings.
type SearchConfig struct {
	Workers        int           `yaml:"workers"`
	IndexTTL       time.Duration `yaml:"index_ttl"`
	DatasetTTL     time.Duration `yaml:"dataset_ttl"`
	DatasetTimeout time.Duration `yaml:"dataset_timeout"` // per fan-out worker
}

// DataSourceConfig configures one named data source. Fields are kind-specific.
type DataSourceConfig struct {
	Kind string `yaml:"kind"` // biomart, filesystem, dummy

	// biomart
	URL            string  `yaml:"url"`
	Dataset        string  `yaml:"dataset"`
	TimeoutSec     int     `yaml:"timeout_sec"`
	BulkTimeoutSec int     `yaml:"bulk_timeout_sec"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
	RetryMax       int     `yaml:"retry_max"`

	// filesystem
	Root    string `yaml:"root"`
	Pattern string `yaml:"pattern"`

	// dummy
	Rows []map[string]string `yaml:"rows"`
}

// StrategyConfig names a registered sort strategy and its options.
type StrategyConfig struct {
	Name    string            `yaml:"name"`
	Options map[string]string `yaml:"options"`
}

// DatasetConfig binds a data source to its join and attribute configuration.
type DatasetConfig struct {
	Name               string          `yaml:"name"`
	DataSource         string          `yaml:"datasource"`
	JoinedIndexField   string          `yaml:"joined_index_field"`
	JoinedAttribute    string          `yaml:"joined_attribute"`
	JoinedFilter       string          `yaml:"joined_filter"`
	Attributes         []string        `yaml:"attributes"`
	RequiredAttributes []string        `yaml:"required_attributes"`
	Sort               *StrategyConfig `yaml:"sort"`
	SecondarySort      *StrategyConfig `yaml:"secondary_sort"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit YAML path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates configuration bytes.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "martsearch:"
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Index.PageSize <= 0 {
		c.Index.PageSize = 10
	}
	if c.Index.TimeoutSec <= 0 {
		c.Index.TimeoutSec = 10
	}
	if c.Search.Workers <= 0 {
		c.Search.Workers = 10
	}
	if c.Search.IndexTTL <= 0 {
		c.Search.IndexTTL = 36 * time.Hour
	}
	if c.Search.DatasetTTL <= 0 {
		c.Search.DatasetTTL = 24 * time.Hour
	}
	if c.Search.DatasetTimeout <= 0 {
		c.Search.DatasetTimeout = 30 * time.Second
	}
	for name, ds := range c.DataSources {
		if ds.TimeoutSec <= 0 {
			ds.TimeoutSec = 20
		}
		if ds.BulkTimeoutSec <= 0 {
			ds.BulkTimeoutSec = 240
		}
		c.DataSources[name] = ds
	}
	for i := range c.Datasets {
		if c.Datasets[i].JoinedFilter == "" {
			c.Datasets[i].JoinedFilter = c.Datasets[i].JoinedAttribute
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("cache.addrs is required for the redis driver")
		}
		if c.Cache.DB < 0 {
			return fmt.Errorf("cache.db must be >= 0, got %d", c.Cache.DB)
		}
	case "leveldb":
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for the leveldb driver")
		}
	default:
		return fmt.Errorf("cache.driver must be \"memory\", \"redis\" or \"leveldb\", got %q", c.Cache.Driver)
	}
	if c.Index.URL == "" {
		return fmt.Errorf("index.url is required")
	}
	if c.Index.PrimaryField == "" {
		return fmt.Errorf("index.primary_field is required")
	}
	for name, ds := range c.DataSources {
		if ds.Kind == "" {
			return fmt.Errorf("datasources.%s.kind is required", name)
		}
	}

	seen := make(map[string]bool, len(c.Datasets))
	for i, ds := range c.Datasets {
		if ds.Name == "" {
			return fmt.Errorf("datasets[%d].name is required", i)
		}
		if seen[ds.Name] {
			return fmt.Errorf("duplicate dataset %q", ds.Name)
		}
		seen[ds.Name] = true
		if _, ok := c.DataSources[ds.DataSource]; !ok {
			return fmt.Errorf("dataset %q references unknown datasource %q", ds.Name, ds.DataSource)
		}
		if ds.JoinedIndexField == "" || ds.JoinedAttribute == "" {
			return fmt.Errorf("dataset %q: joined_index_field and joined_attribute are required", ds.Name)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
