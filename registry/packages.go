package registry

import (
	"fmt"
	"strings"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
)

// PackageRef represents a reference to a FHIR package.
type PackageRef struct {
	Name    string
	Version string
}

// String returns the package reference as "name#version".
func (p PackageRef) String() string {
	if p.Version == "" {
		return p.Name
	}
	return p.Name + "#" + p.Version
}

// ParsePackageRef parses "name#version", "name@version" or a bare name,
// which means the latest version.
func ParsePackageRef(s string) (PackageRef, error) {
	s = strings.TrimSpace(s)
	name, version, ok := strings.Cut(s, "#")
	if !ok {
		name, version, _ = strings.Cut(s, "@")
	}
	if name == "" || strings.ContainsAny(name, "/ ") {
		return PackageRef{}, fmt.Errorf("invalid package reference %q", s)
	}
	if version == "" {
		version = VersionLatest
	}
	return PackageRef{Name: name, Version: version}, nil
}

// Well-known packages.
var (
	USCore = PackageRef{Name: "hl7.fhir.us.core", Version: "6.1.0"}
	VSAC   = PackageRef{Name: "us.nlm.vsac", Version: "0.19.0"}
)

// DefaultPackages returns the packages a terminology build for v reads:
// the HL7 terminology package, US Core and VSAC.
func DefaultPackages(v fhirtx.FHIRVersion) ([]PackageRef, error) {
	name, version, ok := v.TerminologyPackage()
	if !ok {
		return nil, fmt.Errorf("unsupported FHIR version: %s", v)
	}
	return []PackageRef{{Name: name, Version: version}, USCore, VSAC}, nil
}
