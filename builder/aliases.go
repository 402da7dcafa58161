package builder

import fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"

// Aliases maps alternate identifiers of a code system to its canonical URL.
type Aliases map[string]string

// DefaultAliases covers the OIDs and superseded URLs still found in
// published value sets.
var DefaultAliases = Aliases{
	"urn:oid:2.16.840.1.113883.6.96":                          "http://snomed.info/sct",
	"urn:oid:2.16.840.1.113883.6.1":                           "http://loinc.org",
	"urn:oid:2.16.840.1.113883.6.88":                          "http://www.nlm.nih.gov/research/umls/rxnorm",
	"urn:oid:2.16.840.1.113883.6.90":                          "http://hl7.org/fhir/sid/icd-10-cm",
	"urn:oid:2.16.840.1.113883.6.4":                           "http://www.cms.gov/Medicare/Coding/ICD10",
	"urn:oid:2.16.840.1.113883.6.103":                         "http://hl7.org/fhir/sid/icd-9-cm",
	"urn:oid:2.16.840.1.113883.6.12":                          "http://www.ama-assn.org/go/cpt",
	"urn:oid:2.16.840.1.113883.12.292":                        "http://hl7.org/fhir/sid/cvx",
	"urn:oid:2.16.840.1.113883.6.101":                         "http://nucc.org/provider-taxonomy",
	"http://www.cms.gov/Medicare/Coding/HCPCSReleaseCodeSets": "urn:oid:2.16.840.1.113883.6.285",
	"http://ihe.net/fhir/ValueSet/IHE.FormatCode.codesystem":  "http://ihe.net/fhir/ihe.formatcode.fhir/CodeSystem/formatcode",
	"http://hl7.org/fhir/ValueSet/IHE.FormatCode.codesystem":  "http://ihe.net/fhir/ihe.formatcode.fhir/CodeSystem/formatcode",
	"http://www.nlm.nih.gov/research/umls/rxnorm/":            "http://www.nlm.nih.gov/research/umls/rxnorm",
	"http://hl7.org/fhir/sid/icd-10-cm/":                      "http://hl7.org/fhir/sid/icd-10-cm",
}

// Canonical returns the canonical URL for system, or system itself.
func (a Aliases) Canonical(system string) string {
	system = fhirtx.StripVersion(system)
	if c, ok := a[system]; ok {
		return c
	}
	return system
}

// Of returns every alias that maps to canonical.
func (a Aliases) Of(canonical string) []string {
	var out []string
	for alias, c := range a {
		if c == canonical {
			out = append(out, alias)
		}
	}
	return out
}
