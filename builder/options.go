// Package builder turns the value sets bound by profiles into membership
// artifacts. For every bound value set at or above a minimum binding
// strength it expands the value set, writes one artifact, and then writes
// one artifact per code system the value sets drew codes from. It finishes
// by writing the manifest and the restriction metadata.
//
// A failure in one artifact never stops the batch: it is logged with the
// failing URL, recorded in the Report, and the artifact is left out of the
// manifest.
package builder

import (
	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/artifact"
)

// Options controls a build.
type Options struct {
	// MinimumStrength is the weakest binding strength that is built.
	MinimumStrength fhirtx.BindingStrength

	// IncludeRestricted builds value sets drawn wholly from restricted
	// origin code systems, and artifacts for those code systems.
	IncludeRestricted bool

	// DeleteExisting removes prior artifacts before building. When false,
	// new codes are merged into existing artifacts.
	DeleteExisting bool

	// Kind is the artifact serialization.
	Kind artifact.Kind

	// FalsePositiveRate sizes bloom artifacts.
	FalsePositiveRate float64

	// ExcludedValueSets are skipped in addition to DefaultExcludedValueSets.
	ExcludedValueSets []string

	// RestrictedSystems are treated as restricted in addition to
	// DefaultRestrictedSystems.
	RestrictedSystems []string

	// MaxRestrictionLevel also treats a system as restricted when its
	// source restriction level in the build metadata is above it.
	// AnyRestrictionLevel ignores source levels.
	MaxRestrictionLevel int

	// Aliases maps legacy system identifiers to canonical URLs. Nil means
	// DefaultAliases.
	Aliases Aliases
}

// DefaultOptions returns the options of a standard release build.
func DefaultOptions() Options {
	return Options{
		MinimumStrength:     fhirtx.StrengthRequired,
		IncludeRestricted:   false,
		DeleteExisting:      true,
		Kind:                artifact.KindBloom,
		FalsePositiveRate:   artifact.DefaultFalsePositiveRate,
		MaxRestrictionLevel: AnyRestrictionLevel,
	}
}

// AnyRestrictionLevel disables the source restriction level check.
const AnyRestrictionLevel = -1

// DefaultExcludedValueSets are value sets defined by a grammar or an
// external service rather than an enumerable code list.
var DefaultExcludedValueSets = []string{
	"http://hl7.org/fhir/ValueSet/ucum-units",
	"http://hl7.org/fhir/ValueSet/timezones",
}

// DefaultRestrictedSystems are code systems whose license restricts
// redistribution of their content.
var DefaultRestrictedSystems = []string{
	"http://www.ama-assn.org/go/cpt",
}

func (o Options) withDefaults() Options {
	if o.Kind == "" {
		o.Kind = artifact.KindBloom
	}
	if o.FalsePositiveRate <= 0 || o.FalsePositiveRate >= 1 {
		o.FalsePositiveRate = artifact.DefaultFalsePositiveRate
	}
	if o.Aliases == nil {
		o.Aliases = DefaultAliases
	}
	return o
}

func (o Options) excluded() map[string]bool {
	m := make(map[string]bool)
	for _, u := range DefaultExcludedValueSets {
		m[u] = true
	}
	for _, u := range o.ExcludedValueSets {
		m[fhirtx.StripVersion(u)] = true
	}
	return m
}

func (o Options) restricted() map[string]bool {
	m := make(map[string]bool)
	for _, u := range DefaultRestrictedSystems {
		m[u] = true
	}
	for _, u := range o.RestrictedSystems {
		m[o.Aliases.Canonical(u)] = true
	}
	return m
}
