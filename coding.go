package fhirtx

import (
	"fmt"
	"strings"
)

// KeySeparator joins system and code in a composite key.
const KeySeparator = "|"

// Coding is a (system, code) pair, the unit of membership.
type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// Key returns the composite key for c. It fails if the system URL
// contains the separator.
func (c Coding) Key() (string, error) {
	return CompositeKey(c.System, c.Code)
}

// String returns "system|code".
func (c Coding) String() string {
	return c.System + KeySeparator + c.Code
}

// CompositeKey builds "system|code". A separator inside the system would
// let two distinct codings share a key, so it is rejected. Codes may
// contain the separator since everything after the first one is the code.
func CompositeKey(system, code string) (string, error) {
	if system == "" {
		return "", fmt.Errorf("%w: empty system", ErrInvalidSystem)
	}
	if strings.Contains(system, KeySeparator) {
		return "", fmt.Errorf("%w: %q contains %q", ErrInvalidSystem, system, KeySeparator)
	}
	return system + KeySeparator + code, nil
}

// SplitKey reverses CompositeKey.
func SplitKey(key string) (system, code string, ok bool) {
	return strings.Cut(key, KeySeparator)
}

// StripVersion removes a "|version" suffix from a canonical URL.
func StripVersion(url string) string {
	if idx := strings.LastIndex(url, KeySeparator); idx != -1 {
		return url[:idx]
	}
	return url
}

// BindingStrength is the strength of an element binding.
type BindingStrength int

// Binding strengths, weakest first.
const (
	StrengthExample BindingStrength = iota
	StrengthPreferred
	StrengthExtensible
	StrengthRequired
)

var strengthNames = [...]string{"example", "preferred", "extensible", "required"}

// String returns the FHIR code for s.
func (s BindingStrength) String() string {
	if s < StrengthExample || s > StrengthRequired {
		return fmt.Sprintf("BindingStrength(%d)", int(s))
	}
	return strengthNames[s]
}

// AtLeast reports whether s is min or stronger.
func (s BindingStrength) AtLeast(min BindingStrength) bool {
	return s >= min
}

// ParseBindingStrength parses a FHIR binding strength code.
func ParseBindingStrength(v string) (BindingStrength, error) {
	for i, name := range strengthNames {
		if strings.EqualFold(v, name) {
			return BindingStrength(i), nil
		}
	}
	return 0, fmt.Errorf("unknown binding strength %q", v)
}

// MarshalText implements encoding.TextMarshaler.
func (s BindingStrength) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *BindingStrength) UnmarshalText(b []byte) error {
	v, err := ParseBindingStrength(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
