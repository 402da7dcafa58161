package iana

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/terminology"
)

// MediaTypeSystem is the code system URL of BCP 13 media types.
const MediaTypeSystem = "urn:ietf:bcp:13"

// TopLevelTypes are the registries IANA publishes one CSV for.
var TopLevelTypes = []string{
	"application", "audio", "font", "haptics", "image", "message", "model", "multipart", "text", "video",
}

// ReadMediaTypes parses one IANA media type CSV (Name,Template,Reference)
// and returns the full "type/subtype" codes. Rows without a template use
// the top level type and the name.
func ReadMediaTypes(topLevel string, r io.Reader) ([]string, error) {
	in := csv.NewReader(r)
	in.FieldsPerRecord = -1

	header, err := in.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s media types: %w", topLevel, err)
	}
	nameCol, templateCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name":
			nameCol = i
		case "template":
			templateCol = i
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("read %s media types: no Name column", topLevel)
	}

	var out []string
	for {
		rec, err := in.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s media types: %w", topLevel, err)
		}
		code := ""
		if templateCol >= 0 && templateCol < len(rec) {
			code = strings.TrimSpace(rec[templateCol])
		}
		if code == "" && nameCol < len(rec) {
			name := strings.TrimSpace(rec[nameCol])
			if name == "" || strings.Contains(name, " ") {
				continue
			}
			code = topLevel + "/" + name
		}
		if code = NormalizeMediaType(code); code != "" {
			out = append(out, code)
		}
	}
}

// MediaTypeProvider serves BCP 13 codes. It supports no filters.
type MediaTypeProvider struct {
	codes []fhirtx.Coding
}

// NewMediaTypeProvider builds a provider from normalized codes.
func NewMediaTypeProvider(codes []string) *MediaTypeProvider {
	uniq := make(map[string]bool, len(codes))
	for _, c := range codes {
		if c = NormalizeMediaType(c); c != "" {
			uniq[c] = true
		}
	}
	sorted := make([]string, 0, len(uniq))
	for c := range uniq {
		sorted = append(sorted, c)
	}
	sort.Strings(sorted)

	p := &MediaTypeProvider{codes: make([]fhirtx.Coding, len(sorted))}
	for i, c := range sorted {
		p.codes[i] = fhirtx.Coding{System: MediaTypeSystem, Code: c}
	}
	return p
}

// System implements terminology.Provider.
func (p *MediaTypeProvider) System() string { return MediaTypeSystem }

// Len returns the number of codes.
func (p *MediaTypeProvider) Len() int { return len(p.codes) }

// Codes implements terminology.Provider.
func (p *MediaTypeProvider) Codes(_ context.Context, f *terminology.Filter) ([]fhirtx.Coding, error) {
	if f != nil {
		return nil, filterError(MediaTypeSystem, f, "media types support no filters")
	}
	out := make([]fhirtx.Coding, len(p.codes))
	copy(out, p.codes)
	return out, nil
}
