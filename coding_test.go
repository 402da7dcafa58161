package fhirtx

import (
	"errors"
	"testing"
)

func TestCompositeKey(t *testing.T) {
	key, err := CompositeKey("http://loinc.org", "1234-5")
	if err != nil {
		t.Fatalf("CompositeKey() error = %v", err)
	}
	if key != "http://loinc.org|1234-5" {
		t.Errorf("CompositeKey() = %q", key)
	}
}

func TestCompositeKey_RejectsSeparator(t *testing.T) {
	tests := []struct {
		name   string
		system string
	}{
		{"separator in system", "http://example.org/a|b"},
		{"versioned system", "http://example.org/cs|1.0"},
		{"empty system", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompositeKey(tt.system, "x")
			if !errors.Is(err, ErrInvalidSystem) {
				t.Errorf("CompositeKey(%q) error = %v; want ErrInvalidSystem", tt.system, err)
			}
		})
	}
}

func TestCompositeKey_DistinctPairsDistinctKeys(t *testing.T) {
	pairs := []Coding{
		{System: "http://a.org", Code: "b|c"},
		{System: "http://a.org/b", Code: "c"},
		{System: "http://a.org", Code: "bc"},
		{System: "http://a.orgb", Code: "c"},
	}
	seen := map[string]Coding{}
	for _, c := range pairs {
		key, err := c.Key()
		if err != nil {
			t.Fatalf("Key(%v) error = %v", c, err)
		}
		if prev, ok := seen[key]; ok {
			t.Errorf("%v and %v share key %q", prev, c, key)
		}
		seen[key] = c

		system, code, ok := SplitKey(key)
		if !ok || system != c.System || code != c.Code {
			t.Errorf("SplitKey(%q) = %q, %q; want %q, %q", key, system, code, c.System, c.Code)
		}
	}
}

func TestStripVersion(t *testing.T) {
	if got := StripVersion("http://hl7.org/fhir/ValueSet/x|4.0.1"); got != "http://hl7.org/fhir/ValueSet/x" {
		t.Errorf("StripVersion() = %q", got)
	}
	if got := StripVersion("http://hl7.org/fhir/ValueSet/x"); got != "http://hl7.org/fhir/ValueSet/x" {
		t.Errorf("StripVersion() = %q", got)
	}
}

func TestBindingStrength(t *testing.T) {
	tests := []struct {
		in   string
		want BindingStrength
	}{
		{"example", StrengthExample},
		{"preferred", StrengthPreferred},
		{"Extensible", StrengthExtensible},
		{"required", StrengthRequired},
	}
	for _, tt := range tests {
		got, err := ParseBindingStrength(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseBindingStrength(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}

	if _, err := ParseBindingStrength("mandatory"); err == nil {
		t.Error("ParseBindingStrength(mandatory) should fail")
	}

	if !StrengthRequired.AtLeast(StrengthPreferred) {
		t.Error("required should satisfy a preferred minimum")
	}
	if StrengthExample.AtLeast(StrengthPreferred) {
		t.Error("example should not satisfy a preferred minimum")
	}
}

func TestErrors_Unwrap(t *testing.T) {
	if !errors.Is(UnknownValueSet("x"), ErrUnknownValueSet) {
		t.Error("UnknownValueSet should match ErrUnknownValueSet")
	}
	if !errors.Is(UnknownCodeSystem("x"), ErrUnknownCodeSystem) {
		t.Error("UnknownCodeSystem should match ErrUnknownCodeSystem")
	}
	if !errors.Is(&ProhibitedSystemError{System: "x"}, ErrProhibitedSystem) {
		t.Error("ProhibitedSystemError should match ErrProhibitedSystem")
	}
	if !errors.Is(&FilterOperationError{Op: "regex"}, ErrFilterOperation) {
		t.Error("FilterOperationError should match ErrFilterOperation")
	}
	if !errors.Is(&CollisionError{Path: "p"}, ErrCollision) {
		t.Error("CollisionError should match ErrCollision")
	}
}
