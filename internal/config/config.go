// Package config contains all knobs and defaults used to configure datagate.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"
)

const (
	DefaultQueryParallelism = 4
	DefaultRunCacheSize     = 10000
	DefaultRunCacheTTL      = 30 * time.Second
	DefaultRemoteTimeout    = 10 * time.Second
	DefaultRemoteRetryMax   = 3
)

var (
	logFormats = []string{"text", "json"}
	logLevels  = []string{"none", "debug", "info", "warn", "error", "panic", "fatal"}
	engines    = []string{"sqlite", "postgres", "mysql"}
)

// DatastoreConfig defines the relational store holding collections and datasets.
type DatastoreConfig struct {
	// Engine is the datastore engine to use (e.g. 'sqlite', 'postgres', 'mysql')
	Engine   string
	URI      string
	Username string
	Password string

	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of connections to the datastore in the idle connection
	// pool.
	MaxIdleConns int

	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	// Metrics enables the database/sql stats collector.
	Metrics DatastoreMetricsConfig
}

type DatastoreMetricsConfig struct {
	Enabled bool
}

// ServiceConfig defines how a remote collaborator is reached.
type ServiceConfig struct {
	// URL is the base URL every resource path is resolved against.
	URL      string
	Timeout  time.Duration
	RetryMax int
}

// RunCacheConfig defines the cache of single workflow run lookups.
type RunCacheConfig struct {
	Enabled bool
	MaxSize int64
	TTL     time.Duration
}

type RemoteConfig struct {
	Orchestrator ServiceConfig
	Directory    ServiceConfig
	RunCache     RunCacheConfig
}

type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string
}

type TraceConfig struct {
	Enabled     bool
	Endpoint    string
	SampleRatio float64
	ServiceName string
}

// QueryConfig tunes the query pipeline.
type QueryConfig struct {
	// Parallelism bounds how many relations a builder hydrates at once.
	Parallelism int
}

type Config struct {
	Datastore DatastoreConfig
	Remote    RemoteConfig
	Log       LogConfig
	Trace     TraceConfig
	Query     QueryConfig
}

func (cfg *Config) Verify() error {
	if !slices.Contains(engines, cfg.Datastore.Engine) {
		return fmt.Errorf("config 'datastore.engine' must be one of %v", engines)
	}
	if cfg.Datastore.URI == "" {
		return errors.New("config 'datastore.uri' is required")
	}
	if cfg.Datastore.MaxIdleConns > cfg.Datastore.MaxOpenConns && cfg.Datastore.MaxOpenConns > 0 {
		return fmt.Errorf("config 'datastore.maxIdleConns' (%d) cannot exceed 'datastore.maxOpenConns' (%d)",
			cfg.Datastore.MaxIdleConns, cfg.Datastore.MaxOpenConns)
	}

	for name, svc := range map[string]ServiceConfig{
		"orchestrator": cfg.Remote.Orchestrator,
		"directory":    cfg.Remote.Directory,
	} {
		if svc.URL == "" {
			continue
		}
		u, err := url.Parse(svc.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config 'remote.%s.url' must be an absolute URL, got %q", name, svc.URL)
		}
		if svc.RetryMax < 0 {
			return fmt.Errorf("config 'remote.%s.retryMax' cannot be negative", name)
		}
	}

	if cfg.Remote.RunCache.Enabled {
		if cfg.Remote.RunCache.MaxSize <= 0 {
			return errors.New("config 'remote.runCache.maxSize' must be greater than zero")
		}
		if cfg.Remote.RunCache.TTL <= 0 {
			return errors.New("config 'remote.runCache.ttl' must be greater than zero")
		}
	}

	if !slices.Contains(logFormats, cfg.Log.Format) {
		return fmt.Errorf("config 'log.format' must be one of %v", logFormats)
	}
	if !slices.Contains(logLevels, cfg.Log.Level) {
		return fmt.Errorf("config 'log.level' must be one of %v", logLevels)
	}

	if cfg.Trace.Enabled && (cfg.Trace.SampleRatio < 0 || cfg.Trace.SampleRatio > 1) {
		return errors.New("config 'trace.sampleRatio' must be between 0 and 1")
	}

	if cfg.Query.Parallelism < 1 {
		return errors.New("config 'query.parallelism' must be at least 1")
	}

	return nil
}

// DefaultConfig returns the datagate default configuration.
func DefaultConfig() *Config {
	return &Config{
		Datastore: DatastoreConfig{
			Engine:       "sqlite",
			URI:          "file:datagate.db",
			MaxIdleConns: 10,
			MaxOpenConns: 30,
		},
		Remote: RemoteConfig{
			Orchestrator: ServiceConfig{Timeout: DefaultRemoteTimeout, RetryMax: DefaultRemoteRetryMax},
			Directory:    ServiceConfig{Timeout: DefaultRemoteTimeout, RetryMax: DefaultRemoteRetryMax},
			RunCache: RunCacheConfig{
				Enabled: true,
				MaxSize: DefaultRunCacheSize,
				TTL:     DefaultRunCacheTTL,
			},
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Trace: TraceConfig{
			Endpoint:    "0.0.0.0:4317",
			SampleRatio: 0.2,
			ServiceName: "datagate",
		},
		Query: QueryConfig{
			Parallelism: DefaultQueryParallelism,
		},
	}
}

// MustDefaultConfig returns the default configuration and panics if it does not
// verify.
func MustDefaultConfig() *Config {
	cfg := DefaultConfig()
	if err := cfg.Verify(); err != nil {
		panic(err)
	}
	return cfg
}
