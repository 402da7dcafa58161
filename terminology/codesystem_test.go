package terminology

import (
	"context"
	"errors"
	"sort"
	"testing"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
)

// testCodeSystem:
//
//	P
//	├── A
//	│   └── A1
//	└── B
//	Q
const testSystem = "http://example.org/cs/animals"

func testCodeSystem() *CodeSystem {
	return &CodeSystem{
		ResourceType:     "CodeSystem",
		URL:              testSystem,
		HierarchyMeaning: HierarchyIsA,
		Content:          "complete",
		Concept: []Concept{
			{Code: "P", Display: "Parent", Concept: []Concept{
				{Code: "A", Concept: []Concept{{Code: "A1"}}},
				{Code: "B"},
			}},
			{Code: "Q"},
		},
	}
}

func codes(codings []fhirtx.Coding) []string {
	out := make([]string, len(codings))
	for i, c := range codings {
		out[i] = c.Code
	}
	sort.Strings(out)
	return out
}

func equalCodes(got []fhirtx.Coding, want ...string) bool {
	g := codes(got)
	sort.Strings(want)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

func TestAllCodesIn(t *testing.T) {
	cs := testCodeSystem()
	got := AllCodesIn(cs.URL, cs.Concept)

	if !equalCodes(got, "P", "A", "A1", "B", "Q") {
		t.Errorf("AllCodesIn() = %v", codes(got))
	}
	for _, c := range got {
		if c.System != testSystem {
			t.Errorf("coding %v has wrong system", c)
		}
	}
}

func TestAllCodesIn_RepeatedCode(t *testing.T) {
	concepts := []Concept{
		{Code: "X", Concept: []Concept{{Code: "Y"}}},
		{Code: "Z", Concept: []Concept{{Code: "X", Concept: []Concept{{Code: "Y"}}}}},
	}
	got := AllCodesIn("http://example.org", concepts)
	if len(got) != 3 {
		t.Errorf("AllCodesIn() returned %d codings; want 3 distinct", len(got))
	}
}

func TestFindConcept(t *testing.T) {
	cs := testCodeSystem()
	c, ok := FindConcept(cs.Concept, "A1")
	if !ok || c.Code != "A1" {
		t.Fatalf("FindConcept(A1) = %v, %v", c, ok)
	}
	if _, ok := FindConcept(cs.Concept, "nope"); ok {
		t.Error("FindConcept(nope) should not be found")
	}
}

func TestCodeSystemProvider_IsA(t *testing.T) {
	ctx := context.Background()
	p := NewCodeSystemProvider(testCodeSystem())

	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{"parent with descendants", "P", []string{"P", "A", "A1", "B"}},
		{"intermediate", "A", []string{"A", "A1"}},
		{"leaf", "B", []string{"B"}},
		{"missing parent", "nope", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Codes(ctx, &Filter{Property: "concept", Op: OpIsA, Value: tt.value})
			if err != nil {
				t.Fatalf("Codes() error = %v", err)
			}
			if !equalCodes(got, tt.want...) {
				t.Errorf("Codes() = %v; want %v", codes(got), tt.want)
			}
		})
	}
}

func TestCodeSystemProvider_UnsupportedFilters(t *testing.T) {
	ctx := context.Background()
	flat := testCodeSystem()
	flat.HierarchyMeaning = ""

	tests := []struct {
		name   string
		cs     *CodeSystem
		filter Filter
	}{
		{"is-a without hierarchy", flat, Filter{Property: "concept", Op: OpIsA, Value: "P"}},
		{"regex", testCodeSystem(), Filter{Property: "code", Op: "regex", Value: ".*"}},
		{"exists", testCodeSystem(), Filter{Property: "ext-lang", Op: OpExists, Value: "false"}},
		{"is-a on other property", testCodeSystem(), Filter{Property: "status", Op: OpIsA, Value: "P"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCodeSystemProvider(tt.cs).Codes(ctx, &tt.filter)
			var fe *fhirtx.FilterOperationError
			if !errors.As(err, &fe) {
				t.Fatalf("Codes() error = %v; want FilterOperationError", err)
			}
			if !errors.Is(err, fhirtx.ErrFilterOperation) {
				t.Error("error should match ErrFilterOperation")
			}
		})
	}
}

func TestCodeSystemProvider_SubsumedBy(t *testing.T) {
	cs := &CodeSystem{
		URL:              "http://example.org/cs/flat",
		HierarchyMeaning: HierarchyIsA,
		Concept: []Concept{
			{Code: "root"},
			{Code: "mid", Property: []ConceptProperty{{Code: "subsumedBy", ValueCode: "root"}}},
			{Code: "leaf", Property: []ConceptProperty{{Code: "parent", ValueCode: "mid"}}},
			{Code: "other"},
		},
	}
	got, err := NewCodeSystemProvider(cs).Codes(context.Background(), &Filter{Property: "concept", Op: OpIsA, Value: "root"})
	if err != nil {
		t.Fatalf("Codes() error = %v", err)
	}
	if !equalCodes(got, "root", "mid", "leaf") {
		t.Errorf("Codes() = %v", codes(got))
	}
}

func TestCodeSystemProvider_CycleTerminates(t *testing.T) {
	cs := &CodeSystem{
		URL:              "http://example.org/cs/cyclic",
		HierarchyMeaning: HierarchyIsA,
		Concept: []Concept{
			{Code: "a", Property: []ConceptProperty{{Code: "subsumedBy", ValueCode: "b"}}},
			{Code: "b", Property: []ConceptProperty{{Code: "subsumedBy", ValueCode: "a"}}},
		},
	}
	got, err := NewCodeSystemProvider(cs).Codes(context.Background(), &Filter{Property: "concept", Op: OpIsA, Value: "a"})
	if err != nil {
		t.Fatalf("Codes() error = %v", err)
	}
	if !equalCodes(got, "a", "b") {
		t.Errorf("Codes() = %v", codes(got))
	}
}

func TestCodeSystemProvider_AllCodesIsACopy(t *testing.T) {
	p := NewCodeSystemProvider(testCodeSystem())
	first, _ := p.Codes(context.Background(), nil)
	first[0].Code = "mutated"
	second, _ := p.Codes(context.Background(), nil)
	if second[0].Code == "mutated" {
		t.Error("Codes(nil) should return a copy")
	}
}
