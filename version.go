package fhirtx

// FHIRVersion names a FHIR release.
type FHIRVersion string

// Supported FHIR releases.
const (
	R4  FHIRVersion = "R4"
	R4B FHIRVersion = "R4B"
	R5  FHIRVersion = "R5"
)

// terminologyPackages names the HL7 terminology package published for each
// release. R4B shares the R4 package.
var terminologyPackages = map[FHIRVersion]string{
	R4:  "hl7.terminology.r4",
	R4B: "hl7.terminology.r4",
	R5:  "hl7.terminology.r5",
}

// TerminologyPackageVersion is the HL7 terminology release built by default.
const TerminologyPackageVersion = "6.2.0"

// TerminologyPackage returns the HL7 terminology package name and version
// for v. ok is false for an unsupported release.
func (v FHIRVersion) TerminologyPackage() (name, version string, ok bool) {
	name, ok = terminologyPackages[v]
	if !ok {
		return "", "", false
	}
	return name, TerminologyPackageVersion, true
}
