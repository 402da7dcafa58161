// Package iana provides code system providers for the two IANA registries
// that FHIR binds by URN: BCP 47 language tags and BCP 13 media types. It
// also carries the normalizers that bring observed codes into the form the
// providers emit.
package iana

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/terminology"
)

// LanguageSystem is the code system URL of BCP 47 language tags.
const LanguageSystem = "urn:ietf:bcp:47"

// Subtag record types in the language subtag registry.
const (
	TypeLanguage      = "language"
	TypeExtlang       = "extlang"
	TypeScript        = "script"
	TypeRegion        = "region"
	TypeVariant       = "variant"
	TypeGrandfathered = "grandfathered"
	TypeRedundant     = "redundant"
)

// Tag components usable as exists filter properties.
const (
	PropExtLang    = "ext-lang"
	PropScript     = "script"
	PropRegion     = "region"
	PropVariant    = "variant"
	PropExtension  = "extension"
	PropPrivateUse = "private-use"
)

// Record is one entry of the language subtag registry.
type Record struct {
	Type        string
	Subtag      string
	Tag         string
	Description []string
	Deprecated  string
	Preferred   string
}

// Code returns the tag or subtag the record defines.
func (r Record) Code() string {
	if r.Tag != "" {
		return r.Tag
	}
	return r.Subtag
}

// ReadLanguageRegistry parses the record-jar format of the IANA language
// subtag registry: records separated by "%%", "Field: value" lines, and
// continuation lines starting with whitespace.
func ReadLanguageRegistry(r io.Reader) ([]Record, error) {
	var records []Record
	var cur *Record
	var lastField string

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.TrimSpace(text) == "%%" {
			if cur != nil && cur.Type != "" {
				records = append(records, *cur)
			}
			cur = &Record{}
			lastField = ""
			continue
		}
		if cur == nil {
			// File-Date header before the first record.
			continue
		}
		if text != "" && (text[0] == ' ' || text[0] == '\t') {
			if lastField == "Description" && len(cur.Description) > 0 {
				cur.Description[len(cur.Description)-1] += " " + strings.TrimSpace(text)
			}
			continue
		}
		field, value, ok := strings.Cut(text, ":")
		if !ok {
			if strings.TrimSpace(text) == "" {
				continue
			}
			return nil, fmt.Errorf("language registry line %d: expected field, got %q", line, text)
		}
		value = strings.TrimSpace(value)
		lastField = field
		switch field {
		case "Type":
			cur.Type = value
		case "Subtag":
			cur.Subtag = value
		case "Tag":
			cur.Tag = value
		case "Description":
			cur.Description = append(cur.Description, value)
		case "Deprecated":
			cur.Deprecated = value
		case "Preferred-Value":
			cur.Preferred = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read language registry: %w", err)
	}
	if cur != nil && cur.Type != "" {
		records = append(records, *cur)
	}
	return records, nil
}

// TagParts are the components of a language tag.
type TagParts struct {
	Language   string
	ExtLang    string
	Script     string
	Region     string
	Variant    string
	Extension  string
	PrivateUse string
}

// Has reports whether the component named by prop is present.
func (p TagParts) Has(prop string) (bool, error) {
	switch prop {
	case PropExtLang:
		return p.ExtLang != "", nil
	case PropScript:
		return p.Script != "", nil
	case PropRegion:
		return p.Region != "", nil
	case PropVariant:
		return p.Variant != "", nil
	case PropExtension:
		return p.Extension != "", nil
	case PropPrivateUse:
		return p.PrivateUse != "", nil
	}
	return false, fmt.Errorf("unknown language tag property %q", prop)
}

// ParseTag splits a language tag into components by position and shape.
func ParseTag(tag string) TagParts {
	var p TagParts
	subtags := strings.Split(tag, "-")
	if len(subtags) == 0 {
		return p
	}
	p.Language = subtags[0]

	for i := 1; i < len(subtags); i++ {
		s := subtags[i]
		switch {
		case len(s) == 1 && strings.EqualFold(s, "x"):
			p.PrivateUse = strings.Join(subtags[i:], "-")
			return p
		case len(s) == 1:
			p.Extension = strings.Join(subtags[i:], "-")
			return p
		case len(s) == 3 && isAlpha(s) && p.Script == "" && p.Region == "" && p.ExtLang == "":
			p.ExtLang = s
		case len(s) == 4 && isAlpha(s) && p.Region == "" && p.Script == "":
			p.Script = s
		case (len(s) == 2 && isAlpha(s)) || (len(s) == 3 && isDigit(s)):
			if p.Region == "" {
				p.Region = s
			}
		default:
			if p.Variant == "" {
				p.Variant = s
			} else {
				p.Variant += "-" + s
			}
		}
	}
	return p
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func isDigit(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// LanguageProvider serves BCP 47 codes: every language subtag and every
// registered grandfathered or redundant tag. It answers exists filters on
// tag components.
type LanguageProvider struct {
	codes []fhirtx.Coding
	parts []TagParts
}

// NewLanguageProvider builds a provider from registry records. Deprecated
// records are kept since observed data still carries them.
func NewLanguageProvider(records []Record) *LanguageProvider {
	p := &LanguageProvider{}
	seen := make(map[string]bool)
	for _, r := range records {
		switch r.Type {
		case TypeLanguage, TypeGrandfathered, TypeRedundant:
		default:
			continue
		}
		code := NormalizeLanguage(r.Code())
		if code == "" || strings.Contains(code, "..") || seen[code] {
			continue
		}
		seen[code] = true
		display := ""
		if len(r.Description) > 0 {
			display = r.Description[0]
		}
		p.codes = append(p.codes, fhirtx.Coding{System: LanguageSystem, Code: code, Display: display})
		p.parts = append(p.parts, ParseTag(code))
	}
	return p
}

// System implements terminology.Provider.
func (p *LanguageProvider) System() string { return LanguageSystem }

// Len returns the number of codes.
func (p *LanguageProvider) Len() int { return len(p.codes) }

// Codes implements terminology.Provider.
func (p *LanguageProvider) Codes(_ context.Context, f *terminology.Filter) ([]fhirtx.Coding, error) {
	if f == nil {
		out := make([]fhirtx.Coding, len(p.codes))
		copy(out, p.codes)
		return out, nil
	}
	if f.Op != terminology.OpExists {
		return nil, filterError(LanguageSystem, f, "only exists filters are supported")
	}
	want, err := parseBool(f.Value)
	if err != nil {
		return nil, filterError(LanguageSystem, f, err.Error())
	}

	var out []fhirtx.Coding
	for i, parts := range p.parts {
		has, err := parts.Has(f.Property)
		if err != nil {
			return nil, filterError(LanguageSystem, f, err.Error())
		}
		if has == want {
			out = append(out, p.codes[i])
		}
	}
	return out, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("exists value %q is not a boolean", s)
}

func filterError(system string, f *terminology.Filter, reason string) error {
	return &fhirtx.FilterOperationError{
		System:   system,
		Property: f.Property,
		Op:       f.Op,
		Value:    f.Value,
		Reason:   reason,
	}
}
