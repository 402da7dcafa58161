package terminology

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadStats contains statistics about terminology loading.
type LoadStats struct {
	CodeSystemsLoaded int
	ValueSetsLoaded   int
	Skipped           int
	Errors            int
}

func (s *LoadStats) add(o *LoadStats) {
	s.CodeSystemsLoaded += o.CodeSystemsLoaded
	s.ValueSetsLoaded += o.ValueSetsLoaded
	s.Skipped += o.Skipped
	s.Errors += o.Errors
}

// LoadDirectory loads every JSON CodeSystem, ValueSet or Bundle in dir into
// repo. Files are recognized by resourceType, not by name, since retrieved
// package entries are stored under hashed names. CodeSystems are loaded
// before ValueSets.
func LoadDirectory(repo *Repository, dir string) (*LoadStats, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	stats := &LoadStats{}
	var codeSystems, valueSets, bundles [][]byte
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if name == "package.json" || name == ".index.json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			stats.Errors++
			continue
		}
		switch probeResourceType(data) {
		case "CodeSystem":
			codeSystems = append(codeSystems, data)
		case "ValueSet":
			valueSets = append(valueSets, data)
		case "Bundle":
			bundles = append(bundles, data)
		default:
			stats.Skipped++
		}
	}

	for _, data := range codeSystems {
		stats.add(loadResource(repo, "CodeSystem", data))
	}
	for _, data := range bundles {
		stats.add(loadBundle(repo, data, "CodeSystem"))
	}
	for _, data := range valueSets {
		stats.add(loadResource(repo, "ValueSet", data))
	}
	for _, data := range bundles {
		stats.add(loadBundle(repo, data, "ValueSet"))
	}

	return stats, nil
}

// LoadJSON loads a single CodeSystem, ValueSet or Bundle.
func LoadJSON(repo *Repository, data []byte) (*LoadStats, error) {
	switch rt := probeResourceType(data); rt {
	case "CodeSystem", "ValueSet":
		stats := loadResource(repo, rt, data)
		if stats.Errors > 0 {
			return stats, fmt.Errorf("failed to load %s", rt)
		}
		return stats, nil
	case "Bundle":
		stats := loadBundle(repo, data, "CodeSystem")
		stats.add(loadBundle(repo, data, "ValueSet"))
		return stats, nil
	case "":
		return nil, fmt.Errorf("invalid JSON or missing resourceType")
	default:
		return nil, fmt.Errorf("unsupported resourceType: %s", rt)
	}
}

// LoadFlatVocabulary reads normalized vocabulary lines and registers one
// provider per system. A non-nil hierarchy is attached to every provider.
// Returns the systems registered, sorted.
func LoadFlatVocabulary(repo *Repository, r io.Reader, hierarchy Hierarchy) ([]string, error) {
	providers, err := ReadFlatVocabulary(r)
	if err != nil {
		return nil, err
	}
	systems := make([]string, 0, len(providers))
	for system, p := range providers {
		if hierarchy != nil {
			p.SetHierarchy(hierarchy)
		}
		repo.AddProvider(p)
		systems = append(systems, system)
	}
	sort.Strings(systems)
	return systems, nil
}

func probeResourceType(data []byte) string {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.ResourceType
}

func loadResource(repo *Repository, resourceType string, data []byte) *LoadStats {
	stats := &LoadStats{}
	switch resourceType {
	case "CodeSystem":
		var cs CodeSystem
		if err := json.Unmarshal(data, &cs); err != nil || repo.AddCodeSystem(&cs) != nil {
			stats.Errors++
			return stats
		}
		stats.CodeSystemsLoaded++
	case "ValueSet":
		var vs ValueSet
		if err := json.Unmarshal(data, &vs); err != nil || repo.AddValueSet(&vs) != nil {
			stats.Errors++
			return stats
		}
		stats.ValueSetsLoaded++
	}
	return stats
}

// bundle represents a minimal FHIR Bundle structure.
type bundle struct {
	ResourceType string `json:"resourceType"`
	Entry        []struct {
		Resource json.RawMessage `json:"resource"`
	} `json:"entry"`
}

func loadBundle(repo *Repository, data []byte, targetType string) *LoadStats {
	stats := &LoadStats{}
	var b bundle
	if err := json.Unmarshal(data, &b); err != nil || b.ResourceType != "Bundle" {
		stats.Errors++
		return stats
	}
	for _, entry := range b.Entry {
		if entry.Resource == nil || probeResourceType(entry.Resource) != targetType {
			continue
		}
		stats.add(loadResource(repo, targetType, entry.Resource))
	}
	return stats
}
