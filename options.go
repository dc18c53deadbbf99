package martsearch

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	configPath string
	configYAML []byte
	workers    int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithConfigFile loads the YAML configuration from path.
func WithConfigFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.configPath = path
		c.configYAML = nil
	})
}

// WithConfigYAML uses an in-memory YAML configuration. ${VAR} references are expanded.
func WithConfigYAML(data []byte) Option {
	return optionFunc(func(c *clientConfig) {
		c.configYAML = data
		c.configPath = ""
	})
}

// WithWorkers overrides search.workers, the bound on concurrent dataset queries.
func WithWorkers(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.workers = n
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default).
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers client metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}

// SearchOption tunes a single Search call.
type SearchOption func(*searchConfig)

type searchConfig struct {
	page     int
	useCache bool
}

// WithPage selects a 1-based result page. Pages below 1 are treated as 1.
func WithPage(page int) SearchOption {
	return func(c *searchConfig) { c.page = page }
}

// WithoutCache skips cache reads. Fresh results are still written back.
func WithoutCache() SearchOption {
	return func(c *searchConfig) { c.useCache = false }
}
