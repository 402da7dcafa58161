package artifact

import (
	"fmt"
	"net/url"
	"strings"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
)

// Kind selects the serialized membership structure.
type Kind string

// Artifact kinds.
const (
	KindBloom Kind = "bloom"
	KindTable Kind = "csv"
)

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case KindBloom, "":
		return KindBloom, nil
	case KindTable, "table":
		return KindTable, nil
	}
	return "", fmt.Errorf("unknown artifact kind %q", s)
}

// Extension returns the file extension for artifacts of kind k.
func (k Kind) Extension() string {
	if k == KindTable {
		return ".csv.lz4"
	}
	return ".bloom"
}

// Slug derives a path-safe file stem from a canonical URL: the scheme is
// dropped and every character other than letters, digits, '-' and '_'
// becomes '_'.
func Slug(canonical string) (string, error) {
	canonical = strings.TrimSpace(canonical)
	if canonical == "" {
		return "", fmt.Errorf("%w: empty url", fhirtx.ErrMalformedURL)
	}
	u, err := url.Parse(canonical)
	if err != nil {
		return "", fmt.Errorf("%w: %v", fhirtx.ErrMalformedURL, err)
	}

	var raw string
	switch {
	case u.Host != "":
		raw = u.Host + u.Path
	case u.Opaque != "":
		raw = u.Scheme + ":" + u.Opaque
	case u.Scheme != "":
		raw = u.Path
	default:
		raw = canonical
	}
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return "", fmt.Errorf("%w: %q has no host or path", fhirtx.ErrMalformedURL, canonical)
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String(), nil
}

// FileName returns the artifact file name for canonical under kind k.
func FileName(canonical string, k Kind) (string, error) {
	slug, err := Slug(canonical)
	if err != nil {
		return "", err
	}
	return slug + k.Extension(), nil
}
