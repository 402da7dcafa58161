package fhirtx

import (
	"testing"
)

func TestFHIRVersion_TerminologyPackage(t *testing.T) {
	tests := []struct {
		version FHIRVersion
		name    string
		ok      bool
	}{
		{R4, "hl7.terminology.r4", true},
		{R4B, "hl7.terminology.r4", true},
		{R5, "hl7.terminology.r5", true},
		{"R3", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		name, version, ok := tt.version.TerminologyPackage()
		if name != tt.name || ok != tt.ok {
			t.Errorf("%q.TerminologyPackage() = %q, %v; want %q, %v", tt.version, name, ok, tt.name, tt.ok)
		}
		if ok && version != TerminologyPackageVersion {
			t.Errorf("%q.TerminologyPackage() version = %q", tt.version, version)
		}
	}
}
