package tailorly

import (
	"log/slog"
	"time"

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
	driver   string // "memory", "valkey", "redis", "postgres"
	addrs    []string
	password string
	dsn      string

	keyPrefix     string
	maxTxAttempts int

	defaultQuota int64
	holdTimeout  time.Duration
	adminEmail   string
	adminQuota   int64

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithMemory keeps the ledger in process memory. Nothing survives Close.
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverMemory
	})
}

// WithValkey configures the client to connect to a Valkey instance.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverValkey
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis configures the client to connect to a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverRedis
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithPostgres stores profiles in PostgreSQL. The documents table is
// created on first connect.
func WithPostgres(dsn string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverPostgres
		c.dsn = dsn
	})
}

// WithKeyPrefix namespaces every stored key. Default: "tailorly:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithMaxTxAttempts sets how many times a contended mutation is retried.
func WithMaxTxAttempts(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxTxAttempts = n
	})
}

// WithDefaultPolicy sets the grant for new profiles and the default hold
// window, used while no policy is stored. Non-positive values keep the
// built-in defaults (150 credits, 60 minutes). Policies are kept in whole
// minutes: New rejects a positive holdTimeout that is not a multiple of
// time.Minute.
func WithDefaultPolicy(quota int64, holdTimeout time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultQuota = quota
		c.holdTimeout = holdTimeout
	})
}

// WithAdmin grants quota instead of the default to the profile created for email.
func WithAdmin(email string, quota int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.adminEmail = email
		c.adminQuota = quota
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
