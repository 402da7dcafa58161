package terminology

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/cache"
)

// DefaultCacheWeight bounds the number of codes held by the default
// whole-system expansion cache.
const DefaultCacheWeight = 2_000_000

// Expander resolves value sets and code systems in a Repository into
// concrete codings.
type Expander struct {
	repo  *Repository
	cache *cache.Cache[string, []fhirtx.Coding]
	log   zerolog.Logger
}

// ExpanderOption configures an Expander.
type ExpanderOption func(*Expander)

// WithExpansionCache sets the cache used for whole-system expansions.
func WithExpansionCache(c *cache.Cache[string, []fhirtx.Coding]) ExpanderOption {
	return func(e *Expander) {
		e.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) ExpanderOption {
	return func(e *Expander) {
		e.log = log
	}
}

// NewExpander creates an Expander over repo.
func NewExpander(repo *Repository, opts ...ExpanderOption) *Expander {
	e := &Expander{
		repo: repo,
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = cache.NewWeighted[string, []fhirtx.Coding](DefaultCacheWeight, func(v []fhirtx.Coding) int {
			return len(v)
		})
	}
	return e
}

// Repository returns the repository the expander reads from.
func (e *Expander) Repository() *Repository { return e.repo }

// CacheStats returns statistics of the whole-system expansion cache.
func (e *Expander) CacheStats() cache.Stats { return e.cache.Stats() }

// Expand returns the codings denoted by the value set at url. Includes are
// unioned; within one include, filters and referenced value sets are
// intersected with each other and with the system selection. Excludes are
// subtracted afterwards.
func (e *Expander) Expand(ctx context.Context, url string) ([]fhirtx.Coding, error) {
	return e.expand(ctx, fhirtx.StripVersion(url), make(map[string]bool))
}

// ExpandSystem returns every code of system.
func (e *Expander) ExpandSystem(ctx context.Context, system string) ([]fhirtx.Coding, error) {
	system = fhirtx.StripVersion(system)
	p, ok := e.repo.Provider(system)
	if !ok {
		return nil, fhirtx.UnknownCodeSystem(system)
	}
	return e.cache.GetOrLoad(system, func() ([]fhirtx.Coding, error) {
		return p.Codes(ctx, nil)
	})
}

// FilterCodes applies f to the code system or value set at url. Without a
// filter it returns the full expansion. Value sets accept no filter.
func (e *Expander) FilterCodes(ctx context.Context, url string, f *Filter) ([]fhirtx.Coding, error) {
	url = fhirtx.StripVersion(url)
	if _, ok := e.repo.ValueSet(url); ok {
		if f != nil {
			return nil, unsupportedFilter(url, f, "filters apply to code systems only")
		}
		return e.Expand(ctx, url)
	}
	if f == nil {
		return e.ExpandSystem(ctx, url)
	}
	p, ok := e.repo.Provider(url)
	if !ok {
		return nil, fhirtx.UnknownCodeSystem(url)
	}
	return p.Codes(ctx, f)
}

func (e *Expander) expand(ctx context.Context, url string, active map[string]bool) ([]fhirtx.Coding, error) {
	vs, ok := e.repo.ValueSet(url)
	if !ok {
		return nil, fhirtx.UnknownValueSet(url)
	}
	if active[url] {
		return nil, fmt.Errorf("value set %s includes itself", url)
	}
	active[url] = true
	defer delete(active, url)

	result := newCodingSet(nil)
	for i := range vs.Compose.Include {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		codes, err := e.includeCodes(ctx, &vs.Compose.Include[i], active)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", url, err)
		}
		result.addAll(codes)
	}
	for i := range vs.Compose.Exclude {
		codes, err := e.includeCodes(ctx, &vs.Compose.Exclude[i], active)
		if err != nil {
			return nil, fmt.Errorf("expand %s exclude: %w", url, err)
		}
		result.removeAll(codes)
	}

	e.log.Debug().Str("url", url).Int("count", result.len()).Msg("expanded value set")
	return result.list(), nil
}

func (e *Expander) includeCodes(ctx context.Context, inc *Include, active map[string]bool) ([]fhirtx.Coding, error) {
	var selected *codingSet
	if inc.System != "" {
		codes, err := e.systemCodes(ctx, inc)
		if err != nil {
			return nil, err
		}
		selected = newCodingSet(codes)
	}

	for _, ref := range inc.ValueSet {
		codes, err := e.expand(ctx, fhirtx.StripVersion(ref), active)
		if err != nil {
			return nil, err
		}
		if selected == nil {
			selected = newCodingSet(codes)
		} else {
			selected = selected.intersect(newCodingSet(codes))
		}
	}

	if selected == nil {
		return nil, nil
	}
	return selected.list(), nil
}

func (e *Expander) systemCodes(ctx context.Context, inc *Include) ([]fhirtx.Coding, error) {
	if len(inc.Concept) > 0 {
		out := make([]fhirtx.Coding, 0, len(inc.Concept))
		for _, c := range inc.Concept {
			out = append(out, fhirtx.Coding{System: inc.System, Code: c.Code, Display: c.Display})
		}
		return out, nil
	}

	if len(inc.Filter) == 0 {
		return e.ExpandSystem(ctx, inc.System)
	}

	p, ok := e.repo.Provider(inc.System)
	if !ok {
		return nil, fhirtx.UnknownCodeSystem(inc.System)
	}
	var selected *codingSet
	for i := range inc.Filter {
		codes, err := p.Codes(ctx, &inc.Filter[i])
		if err != nil {
			return nil, err
		}
		if selected == nil {
			selected = newCodingSet(codes)
		} else {
			selected = selected.intersect(newCodingSet(codes))
		}
	}
	return selected.list(), nil
}
