package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	RequestTimeout time.Duration
}

// RedisConfig configures the optional Redis report cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Engine tunes evidence fusion.
type Engine struct {
	ConfidenceFloor        float64
	NearDuplicateTolerance time.Duration
}

// Config is the full server configuration.
type Config struct {
	Server Server
	Redis  RedisConfig
	Engine Engine
	// DatabaseURL enables the PostgreSQL override store when set.
	DatabaseURL string
	// RulesDir loads rule sets from disk instead of the built-in set.
	RulesDir       string
	ReportCacheTTL time.Duration
	LogLevel       string
}

// Defaults run the server with in-memory backends and the built-in rules.
func Defaults() Config {
	return Config{
		Server: Server{Addr: ":8080", RequestTimeout: 30 * time.Second},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Engine: Engine{
			ConfidenceFloor:        0.25,
			NearDuplicateTolerance: 30 * time.Minute,
		},
		ReportCacheTTL: 15 * time.Minute,
		LogLevel:       "info",
	}
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()
	p := parser{lookup: lookup}

	p.str("PRESENCE_ADDR", &cfg.Server.Addr)
	p.duration("REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	p.str("REDIS_URL", &cfg.Redis.URL)
	p.integer("REDIS_POOL_SIZE", &cfg.Redis.PoolSize)
	p.integer("REDIS_MIN_IDLE_CONNS", &cfg.Redis.MinIdleConns)
	p.duration("REDIS_DIAL_TIMEOUT", &cfg.Redis.DialTimeout)
	p.duration("REDIS_READ_TIMEOUT", &cfg.Redis.ReadTimeout)
	p.duration("REDIS_WRITE_TIMEOUT", &cfg.Redis.WriteTimeout)
	p.str("DATABASE_URL", &cfg.DatabaseURL)
	p.str("RULES_DIR", &cfg.RulesDir)
	p.duration("REPORT_CACHE_TTL", &cfg.ReportCacheTTL)
	p.float("CONFIDENCE_FLOOR", &cfg.Engine.ConfidenceFloor)
	p.duration("NEAR_DUPLICATE_TOLERANCE", &cfg.Engine.NearDuplicateTolerance)
	p.str("LOG_LEVEL", &cfg.LogLevel)

	if p.err != nil {
		return Config{}, p.err
	}
	if cfg.ReportCacheTTL <= 0 {
		return Config{}, fmt.Errorf("REPORT_CACHE_TTL must be positive")
	}
	return cfg, nil
}

// parser keeps the first error so FromEnv reads as a flat list.
type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) value(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v, ok := p.lookup(key)
	return v, ok && v != ""
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.value(key); ok {
		*dst = v
	}
}

func (p *parser) integer(key string, dst *int) {
	if v, ok := p.value(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = n
	}
}

func (p *parser) float(key string, dst *float64) {
	if v, ok := p.value(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = f
	}
}

func (p *parser) duration(key string, dst *time.Duration) {
	if v, ok := p.value(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = d
	}
}
