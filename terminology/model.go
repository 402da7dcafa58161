package terminology

import (
	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
)

// Filter operators.
const (
	OpIsA    = "is-a"
	OpExists = "exists"
)

// HierarchyIsA is the hierarchyMeaning under which is-a filters are valid.
const HierarchyIsA = "is-a"

// CodeSystem represents a FHIR CodeSystem resource.
type CodeSystem struct {
	ResourceType     string    `json:"resourceType"`
	ID               string    `json:"id,omitempty"`
	URL              string    `json:"url"`
	Version          string    `json:"version,omitempty"`
	Name             string    `json:"name,omitempty"`
	Status           string    `json:"status,omitempty"`
	HierarchyMeaning string    `json:"hierarchyMeaning,omitempty"`
	Content          string    `json:"content,omitempty"` // not-present | example | fragment | complete | supplement
	Concept          []Concept `json:"concept,omitempty"`
}

// Concept is a node of a CodeSystem concept tree.
type Concept struct {
	Code     string            `json:"code"`
	Display  string            `json:"display,omitempty"`
	Property []ConceptProperty `json:"property,omitempty"`
	Concept  []Concept         `json:"concept,omitempty"`
}

// ConceptProperty is a concept property. Only code-valued hierarchy
// properties are used.
type ConceptProperty struct {
	Code      string `json:"code"`
	ValueCode string `json:"valueCode,omitempty"`
}

// ValueSet represents a FHIR ValueSet resource.
type ValueSet struct {
	ResourceType string  `json:"resourceType"`
	ID           string  `json:"id,omitempty"`
	URL          string  `json:"url"`
	Version      string  `json:"version,omitempty"`
	Name         string  `json:"name,omitempty"`
	Status       string  `json:"status,omitempty"`
	Compose      Compose `json:"compose,omitempty"`
}

// Compose defines the content of a ValueSet.
type Compose struct {
	Include []Include `json:"include,omitempty"`
	Exclude []Include `json:"exclude,omitempty"`
}

// Include selects codes from a system, from other value sets, or both.
type Include struct {
	System   string           `json:"system,omitempty"`
	Version  string           `json:"version,omitempty"`
	Concept  []IncludeConcept `json:"concept,omitempty"`
	Filter   []Filter         `json:"filter,omitempty"`
	ValueSet []string         `json:"valueSet,omitempty"`
}

// IncludeConcept is an enumerated code in an include or exclude.
type IncludeConcept struct {
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// Filter is a (property, op, value) selection rule.
type Filter struct {
	Property string `json:"property"`
	Op       string `json:"op"`
	Value    string `json:"value"`
}

// Systems returns every code system named in the include and exclude
// clauses of vs, without following value set references.
func (vs *ValueSet) Systems() []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]Include{vs.Compose.Include, vs.Compose.Exclude} {
		for _, inc := range group {
			if inc.System != "" && !seen[inc.System] {
				seen[inc.System] = true
				out = append(out, inc.System)
			}
		}
	}
	return out
}

// References returns the value sets referenced by include clauses, with
// version suffixes removed.
func (vs *ValueSet) References() []string {
	var out []string
	for _, inc := range vs.Compose.Include {
		for _, ref := range inc.ValueSet {
			out = append(out, fhirtx.StripVersion(ref))
		}
	}
	return out
}
