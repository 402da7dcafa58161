package terminology

import (
	"context"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
)

// Concept properties that link a concept to its parent or children.
const (
	propSubsumedBy = "subsumedBy"
	propParent     = "parent"
	propChild      = "child"
)

// AllCodesIn flattens a concept tree into codings of system. A code seen
// earlier in the walk is skipped along with its subtree.
func AllCodesIn(system string, concepts []Concept) []fhirtx.Coding {
	visited := make(map[string]bool)
	var out []fhirtx.Coding

	var walk func(concepts []Concept)
	walk = func(concepts []Concept) {
		for i := range concepts {
			c := &concepts[i]
			if c.Code == "" || visited[c.Code] {
				continue
			}
			visited[c.Code] = true
			out = append(out, fhirtx.Coding{System: system, Code: c.Code, Display: c.Display})
			walk(c.Concept)
		}
	}
	walk(concepts)
	return out
}

// FindConcept returns the concept with the given code, searching the tree
// depth first.
func FindConcept(concepts []Concept, code string) (*Concept, bool) {
	for i := range concepts {
		if concepts[i].Code == code {
			return &concepts[i], true
		}
		if c, ok := FindConcept(concepts[i].Concept, code); ok {
			return c, true
		}
	}
	return nil, false
}

// CodeSystemProvider serves codes from a CodeSystem resource. Hierarchy
// comes from concept nesting and from subsumedBy, parent and child
// properties.
type CodeSystemProvider struct {
	url          string
	hierarchical bool
	all          []fhirtx.Coding
	byCode       map[string]fhirtx.Coding
	children     map[string][]string
}

// NewCodeSystemProvider indexes cs.
func NewCodeSystemProvider(cs *CodeSystem) *CodeSystemProvider {
	p := &CodeSystemProvider{
		url:          cs.URL,
		hierarchical: cs.HierarchyMeaning == HierarchyIsA,
		all:          AllCodesIn(cs.URL, cs.Concept),
		byCode:       make(map[string]fhirtx.Coding),
		children:     make(map[string][]string),
	}
	for _, c := range p.all {
		p.byCode[c.Code] = c
	}

	edges := make(map[[2]string]bool)
	link := func(parent, child string) {
		if parent == "" || child == "" || parent == child || edges[[2]string{parent, child}] {
			return
		}
		edges[[2]string{parent, child}] = true
		p.children[parent] = append(p.children[parent], child)
	}

	var walk func(parent string, concepts []Concept)
	walk = func(parent string, concepts []Concept) {
		for i := range concepts {
			c := &concepts[i]
			link(parent, c.Code)
			for _, prop := range c.Property {
				switch prop.Code {
				case propSubsumedBy, propParent:
					link(prop.ValueCode, c.Code)
				case propChild:
					link(c.Code, prop.ValueCode)
				}
			}
			walk(c.Code, c.Concept)
		}
	}
	walk("", cs.Concept)

	return p
}

// System returns the code system URL.
func (p *CodeSystemProvider) System() string { return p.url }

// Len returns the number of distinct codes.
func (p *CodeSystemProvider) Len() int { return len(p.all) }

// Codes implements Provider. Only is-a on the concept property is
// supported, and only when the code system declares is-a hierarchy.
func (p *CodeSystemProvider) Codes(_ context.Context, f *Filter) ([]fhirtx.Coding, error) {
	if f == nil {
		out := make([]fhirtx.Coding, len(p.all))
		copy(out, p.all)
		return out, nil
	}
	switch {
	case f.Op != OpIsA:
		return nil, unsupportedFilter(p.url, f, "operator not supported for this code system")
	case !p.hierarchical:
		return nil, unsupportedFilter(p.url, f, "code system does not declare is-a hierarchy")
	case f.Property != "concept":
		return nil, unsupportedFilter(p.url, f, "is-a requires the concept property")
	}
	return p.descendantsOf(f.Value), nil
}

// descendantsOf returns code and everything below it. An unknown code
// yields no codes.
func (p *CodeSystemProvider) descendantsOf(code string) []fhirtx.Coding {
	if _, ok := p.byCode[code]; !ok {
		return nil
	}

	visited := make(map[string]bool)
	var out []fhirtx.Coding
	var collect func(code string)
	collect = func(code string) {
		if visited[code] {
			return
		}
		visited[code] = true
		if c, ok := p.byCode[code]; ok {
			out = append(out, c)
		}
		for _, child := range p.children[code] {
			collect(child)
		}
	}
	collect(code)
	return out
}
