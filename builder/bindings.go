package builder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofhir/fhir/r4"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
)

// Binding is a value set bound to an element of a profile.
type Binding struct {
	ValueSet string
	Strength fhirtx.BindingStrength
	Profile  string
	Path     string
}

// StructureBindings returns the value set bindings of sd. Snapshot and
// differential elements are both read since packages ship either.
func StructureBindings(sd *r4.StructureDefinition) []Binding {
	profile := ""
	if sd.Url != nil {
		profile = *sd.Url
	}

	var elements []r4.ElementDefinition
	if sd.Snapshot != nil {
		elements = append(elements, sd.Snapshot.Element...)
	}
	if sd.Differential != nil {
		elements = append(elements, sd.Differential.Element...)
	}

	var out []Binding
	seen := make(map[string]bool)
	for i := range elements {
		b := elements[i].Binding
		if b == nil || b.ValueSet == nil || *b.ValueSet == "" || b.Strength == nil {
			continue
		}
		strength, err := fhirtx.ParseBindingStrength(string(*b.Strength))
		if err != nil {
			continue
		}
		path := ""
		if elements[i].Path != nil {
			path = *elements[i].Path
		}
		vs := fhirtx.StripVersion(*b.ValueSet)
		key := path + " " + vs + " " + strength.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Binding{ValueSet: vs, Strength: strength, Profile: profile, Path: path})
	}
	return out
}

// CollectBindings reads every StructureDefinition JSON file in dir and
// returns their bindings. Files that are not StructureDefinitions are
// ignored; unreadable ones are reported in the returned error list.
func CollectBindings(dir string) ([]Binding, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to read directory: %w", err)}
	}

	var out []Binding
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		var probe struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(data, &probe); err != nil || probe.ResourceType != "StructureDefinition" {
			continue
		}

		var sd r4.StructureDefinition
		if err := json.Unmarshal(data, &sd); err != nil {
			errs = append(errs, fmt.Errorf("failed to parse StructureDefinition %s: %w", entry.Name(), err))
			continue
		}
		out = append(out, StructureBindings(&sd)...)
	}
	return out, errs
}

// SelectValueSets returns the distinct value set URLs bound at min or
// stronger, sorted.
func SelectValueSets(bindings []Binding, min fhirtx.BindingStrength) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range bindings {
		if !b.Strength.AtLeast(min) || seen[b.ValueSet] {
			continue
		}
		seen[b.ValueSet] = true
		out = append(out, b.ValueSet)
	}
	sort.Strings(out)
	return out
}
