package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// File names of the durable build outputs.
const (
	ManifestFile = "manifest.yml"
	MetadataFile = "metadata.yml"
)

// Entry describes one artifact.
type Entry struct {
	URL         string   `yaml:"url" json:"url"`
	File        string   `yaml:"file" json:"file"`
	Count       int      `yaml:"count" json:"count"`
	Kind        Kind     `yaml:"kind" json:"kind"`
	CodeSystems []string `yaml:"code_systems" json:"code_systems"`
}

// Manifest is the ordered list of artifacts produced by a build.
type Manifest struct {
	Entries []Entry
}

// MarshalYAML encodes the manifest as a plain sequence.
func (m Manifest) MarshalYAML() (interface{}, error) {
	if m.Entries == nil {
		return []Entry{}, nil
	}
	return m.Entries, nil
}

// UnmarshalYAML decodes a plain sequence.
func (m *Manifest) UnmarshalYAML(node *yaml.Node) error {
	return node.Decode(&m.Entries)
}

// Find returns the entry for url.
func (m *Manifest) Find(url string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.URL == url {
			return e, true
		}
	}
	return Entry{}, false
}

// FindFile returns the entry stored under file.
func (m *Manifest) FindFile(file string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.File == file {
			return e, true
		}
	}
	return Entry{}, false
}

// Upsert replaces the entry with the same URL in place, or appends e.
func (m *Manifest) Upsert(e Entry) {
	for i := range m.Entries {
		if m.Entries[i].URL == e.URL {
			m.Entries[i] = e
			return
		}
	}
	m.Entries = append(m.Entries, e)
}

// Remove drops the entry for url and reports whether one existed.
func (m *Manifest) Remove(url string) bool {
	for i := range m.Entries {
		if m.Entries[i].URL == url {
			m.Entries = append(m.Entries[:i], m.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (m *Manifest) Len() int { return len(m.Entries) }

// SystemMetadata records what is known about one code system's source.
type SystemMetadata struct {
	Versions         []string `yaml:"versions" json:"versions"`
	RestrictionLevel int      `yaml:"restriction_level" json:"restriction_level"`
}

// Metadata maps code system URLs to their source metadata.
type Metadata map[string]SystemMetadata

// Merge adds the versions of o and keeps the higher restriction level.
func (m Metadata) Merge(o Metadata) {
	for system, meta := range o {
		cur := m[system]
		seen := make(map[string]bool, len(cur.Versions))
		for _, v := range cur.Versions {
			seen[v] = true
		}
		for _, v := range meta.Versions {
			if !seen[v] {
				cur.Versions = append(cur.Versions, v)
				seen[v] = true
			}
		}
		sort.Strings(cur.Versions)
		if meta.RestrictionLevel > cur.RestrictionLevel {
			cur.RestrictionLevel = meta.RestrictionLevel
		}
		m[system] = cur
	}
}

// LoadManifest reads the manifest from store. A missing manifest yields
// an empty one.
func LoadManifest(ctx context.Context, store Store) (*Manifest, error) {
	m := &Manifest{}
	if err := loadYAML(ctx, store, ManifestFile, m); err != nil {
		return nil, err
	}
	return m, nil
}

// SaveManifest writes m to store.
func SaveManifest(ctx context.Context, store Store, m *Manifest) error {
	return saveYAML(ctx, store, ManifestFile, m)
}

// LoadMetadata reads the restriction metadata from store. A missing file
// yields empty metadata.
func LoadMetadata(ctx context.Context, store Store) (Metadata, error) {
	md := Metadata{}
	if err := loadYAML(ctx, store, MetadataFile, &md); err != nil {
		return nil, err
	}
	if md == nil {
		md = Metadata{}
	}
	return md, nil
}

// SaveMetadata writes md to store.
func SaveMetadata(ctx context.Context, store Store, md Metadata) error {
	return saveYAML(ctx, store, MetadataFile, md)
}

// WriteSet serializes s to file in store.
func WriteSet(ctx context.Context, store Store, file string, s Set) error {
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode %s: %w", file, err)
	}
	return store.Put(ctx, file, buf.Bytes())
}

// ReadEntry loads the set described by e from store.
func ReadEntry(ctx context.Context, store Store, e Entry) (Set, error) {
	data, err := store.Get(ctx, e.File)
	if err != nil {
		return nil, err
	}
	s, err := ReadSet(e.Kind, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.File, err)
	}
	return s, nil
}

func loadYAML(ctx context.Context, store Store, name string, v interface{}) error {
	data, err := store.Get(ctx, name)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func saveYAML(ctx context.Context, store Store, name string, v interface{}) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return store.Put(ctx, name, buf.Bytes())
}
