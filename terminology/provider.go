package terminology

import (
	"context"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
)

// Provider enumerates the codes of one code system.
type Provider interface {
	// System returns the canonical URL of the code system.
	System() string

	// Codes returns every code when f is nil and the codes selected by f
	// otherwise. Filters the provider cannot evaluate fail with a
	// *fhirtx.FilterOperationError.
	Codes(ctx context.Context, f *Filter) ([]fhirtx.Coding, error)
}

// Hierarchy resolves subsumption for vocabularies whose hierarchy is not
// carried in a concept tree.
type Hierarchy interface {
	// Descendants returns every code below code in system, excluding code.
	Descendants(ctx context.Context, system, code string) ([]string, error)
}

func unsupportedFilter(system string, f *Filter, reason string) error {
	return &fhirtx.FilterOperationError{
		System:   system,
		Property: f.Property,
		Op:       f.Op,
		Value:    f.Value,
		Reason:   reason,
	}
}
