// Package validation answers code membership queries against built
// artifacts. A Repository is loaded once and never changes afterwards, so
// a Validator can be shared by any number of goroutines without locking.
package validation

import (
	"runtime"

	"github.com/rs/zerolog"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/iana"
)

// Normalizer rewrites a code into the form used when its artifact was built.
type Normalizer func(code string) string

type config struct {
	log         zerolog.Logger
	concurrency int
	policy      Policy
	normalizers map[string]Normalizer
	metrics     *fhirtx.Metrics
	aliases     map[string]string
}

func newConfig(opts []Option) *config {
	c := &config{
		log:         zerolog.Nop(),
		concurrency: runtime.GOMAXPROCS(0),
		policy:      DefaultPolicy(),
		normalizers: make(map[string]Normalizer),
	}
	for key, fn := range iana.Normalizers() {
		c.normalizers[key] = fn
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures Load and New. Load reads WithLogger and
// WithConcurrency; New reads the rest.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithConcurrency bounds the number of artifacts read at once by Load.
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithPolicy sets the restriction policy.
func WithPolicy(p Policy) Option {
	return func(c *config) {
		c.policy = p
	}
}

// WithNormalizer registers fn for a code system or value set URL,
// replacing any default for the same key. A nil fn removes the entry.
func WithNormalizer(url string, fn Normalizer) Option {
	return func(c *config) {
		if fn == nil {
			delete(c.normalizers, url)
			return
		}
		c.normalizers[url] = fn
	}
}

// WithMetrics records query outcomes into m.
func WithMetrics(m *fhirtx.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithAliases maps alternate system identifiers to the canonical URLs the
// artifacts were built with.
func WithAliases(aliases map[string]string) Option {
	return func(c *config) {
		c.aliases = aliases
	}
}
