package terminology

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
)

// FlatProvider serves a vocabulary read from normalized
// "system|code|description" lines. is-a filters are answered by an
// attached Hierarchy, restricted to codes present in the vocabulary.
type FlatProvider struct {
	url       string
	all       []fhirtx.Coding
	byCode    map[string]int
	hierarchy Hierarchy
}

// NewFlatProvider creates an empty provider for system.
func NewFlatProvider(system string) *FlatProvider {
	return &FlatProvider{url: system, byCode: make(map[string]int)}
}

// Add records a code. The first description seen for a code wins.
func (p *FlatProvider) Add(code, display string) {
	if _, ok := p.byCode[code]; ok || code == "" {
		return
	}
	p.byCode[code] = len(p.all)
	p.all = append(p.all, fhirtx.Coding{System: p.url, Code: code, Display: display})
}

// SetHierarchy attaches a subsumption source.
func (p *FlatProvider) SetHierarchy(h Hierarchy) { p.hierarchy = h }

// System returns the code system URL.
func (p *FlatProvider) System() string { return p.url }

// Len returns the number of codes.
func (p *FlatProvider) Len() int { return len(p.all) }

// Codes implements Provider.
func (p *FlatProvider) Codes(ctx context.Context, f *Filter) ([]fhirtx.Coding, error) {
	if f == nil {
		out := make([]fhirtx.Coding, len(p.all))
		copy(out, p.all)
		return out, nil
	}
	if f.Op != OpIsA || f.Property != "concept" {
		return nil, unsupportedFilter(p.url, f, "operator not supported for this code system")
	}
	if p.hierarchy == nil {
		return nil, unsupportedFilter(p.url, f, "no hierarchy source configured")
	}

	idx, ok := p.byCode[f.Value]
	if !ok {
		return nil, nil
	}
	below, err := p.hierarchy.Descendants(ctx, p.url, f.Value)
	if err != nil {
		return nil, fmt.Errorf("resolve descendants of %s|%s: %w", p.url, f.Value, err)
	}

	out := []fhirtx.Coding{p.all[idx]}
	seen := map[string]bool{f.Value: true}
	for _, code := range below {
		if seen[code] {
			continue
		}
		seen[code] = true
		if i, ok := p.byCode[code]; ok {
			out = append(out, p.all[i])
		}
	}
	return out, nil
}

// ReadFlatVocabulary parses normalized "system|code|description" lines
// into one provider per system. Blank lines are ignored.
func ReadFlatVocabulary(r io.Reader) (map[string]*FlatProvider, error) {
	providers := make(map[string]*FlatProvider)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		parts := strings.SplitN(text, "|", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("line %d: expected system|code|description, got %q", line, text)
		}
		p, ok := providers[parts[0]]
		if !ok {
			p = NewFlatProvider(parts[0])
			providers[parts[0]] = p
		}
		display := ""
		if len(parts) == 3 {
			display = parts[2]
		}
		p.Add(parts[1], display)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return providers, nil
}
