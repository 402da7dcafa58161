package validation

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
)

// ErrNoTarget is returned when neither a system nor a value set is given.
var ErrNoTarget = errors.New("validation: code system or value set url required")

// Validator tests codes for membership in loaded artifacts.
type Validator struct {
	repo        *Repository
	policy      compiledPolicy
	normalizers map[string]Normalizer
	aliases     map[string]string
	metrics     *fhirtx.Metrics
	log         zerolog.Logger
}

// New creates a validator over repo.
func New(repo *Repository, opts ...Option) *Validator {
	cfg := newConfig(opts)
	return &Validator{
		repo:        repo,
		policy:      cfg.policy.compile(),
		normalizers: cfg.normalizers,
		aliases:     cfg.aliases,
		metrics:     cfg.metrics,
		log:         cfg.log,
	}
}

// Repository returns the repository the validator reads.
func (v *Validator) Repository() *Repository {
	return v.repo
}

// Prohibited reports whether policy denies the use of system.
func (v *Validator) Prohibited(system string) bool {
	system = v.canonical(system)
	md, known := v.repo.Metadata(system)
	return v.policy.prohibited(system, md, known)
}

// Validate reports whether code belongs to the value set at valueSetURL
// or, when that is empty, to the code system system. Empty strings mean
// absent.
//
// A prohibited system given explicitly fails with *fhirtx.ProhibitedSystemError.
// Without a system, the code is tested under every allowed contributing
// system of the value set, and the query fails only when none is allowed.
// Unknown artifacts fail with fhirtx.ErrUnknownValueSet or
// fhirtx.ErrUnknownCodeSystem.
func (v *Validator) Validate(code, system, valueSetURL string) (bool, error) {
	start := time.Now()
	system = v.canonical(system)
	valueSetURL = fhirtx.StripVersion(valueSetURL)

	if system != "" && v.Prohibited(system) {
		return false, v.prohibited(system)
	}

	target := valueSetURL
	if target == "" {
		target = system
	}
	if target == "" {
		return false, ErrNoTarget
	}

	art, ok := v.repo.lookup(target)
	if !ok {
		if v.metrics != nil {
			v.metrics.RecordUnknown()
		}
		if valueSetURL != "" {
			return false, fhirtx.UnknownValueSet(valueSetURL)
		}
		return false, fhirtx.UnknownCodeSystem(system)
	}

	code = v.normalize(code, system, valueSetURL)

	systems := []string{system}
	if system == "" {
		systems = systems[:0]
		for _, s := range art.entry.CodeSystems {
			if !v.Prohibited(s) {
				systems = append(systems, s)
			}
		}
		if len(systems) == 0 && len(art.entry.CodeSystems) > 0 {
			return false, v.prohibited(art.entry.CodeSystems[0])
		}
	}

	member := false
	for _, s := range systems {
		key, err := fhirtx.CompositeKey(s, code)
		if err != nil {
			return false, err
		}
		if art.set.Contains(key) {
			member = true
			break
		}
	}

	if v.metrics != nil {
		v.metrics.RecordQuery(art.entry.URL, time.Since(start), member)
	}
	return member, nil
}

func (v *Validator) prohibited(system string) error {
	if v.metrics != nil {
		v.metrics.RecordProhibited()
	}
	v.log.Debug().Str("system", system).Msg("query refused by restriction policy")
	return &fhirtx.ProhibitedSystemError{System: system}
}

func (v *Validator) canonical(system string) string {
	if system == "" {
		return ""
	}
	system = fhirtx.StripVersion(system)
	if c, ok := v.aliases[system]; ok {
		return c
	}
	return system
}

// normalize applies the normalizer of the system, or failing that the
// one of the value set.
func (v *Validator) normalize(code, system, valueSetURL string) string {
	if fn, ok := v.normalizers[system]; ok && system != "" {
		return fn(code)
	}
	if fn, ok := v.normalizers[valueSetURL]; ok && valueSetURL != "" {
		return fn(code)
	}
	return code
}
