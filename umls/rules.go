// Package umls ingests the UMLS Metathesaurus release: it downloads the
// release archive through the UTS ticket exchange, streams MRCONSO.RRF
// through a per-vocabulary rule table into normalized
// "system|code|description" lines, reads source restriction levels from
// MRSAB.RRF and optionally stages atoms and relations in PostgreSQL to
// answer is-a queries.
package umls

import "strings"

// Field positions in MRCONSO.RRF.
const (
	colCUI      = 0
	colTS       = 2
	colSTT      = 4
	colAUI      = 7
	colSAB      = 11
	colTTY      = 12
	colCODE     = 13
	colSTR      = 14
	colSUPPRESS = 16

	minConsoFields = 17
)

// Atom is one MRCONSO row, reduced to the fields the rules look at.
type Atom struct {
	CUI      string
	AUI      string
	TS       string
	STT      string
	SAB      string
	TTY      string
	Code     string
	Str      string
	Suppress string
}

// Suppressed reports whether the source marked the atom obsolete or
// suppressible.
func (a Atom) Suppressed() bool {
	switch a.Suppress {
	case "O", "E", "Y":
		return true
	}
	return false
}

// Rule relabels one source vocabulary and decides which of its atoms are kept.
type Rule struct {
	// Name is the canonical vocabulary name several source tags map to.
	Name string

	// Keep selects atoms. Nil keeps every unsuppressed atom.
	Keep func(Atom) bool
}

// Canonical vocabulary names.
const (
	SNOMED   = "SNOMED"
	LOINC    = "LOINC"
	RXNORM   = "RXNORM"
	ICD10CM  = "ICD10CM"
	ICD10PCS = "ICD10PCS"
	ICD9CM   = "ICD9CM"
	CPT      = "CPT"
	HCPCS    = "HCPCS"
	CVX      = "CVX"
	NUCC     = "NUCC"
	CDCREC   = "CDCREC"
	SOP      = "SOP"
)

func ttyNotIn(ttys ...string) func(Atom) bool {
	return func(a Atom) bool {
		for _, t := range ttys {
			if a.TTY == t {
				return false
			}
		}
		return true
	}
}

func ttyIs(tty string) func(Atom) bool {
	return func(a Atom) bool { return a.TTY == tty }
}

// DefaultRules maps MRCONSO SAB tags to rules.
var DefaultRules = map[string]Rule{
	"SNOMEDCT_US": {Name: SNOMED, Keep: func(a Atom) bool {
		return a.TS == "P" && a.STT == "PF" && ttyNotIn("FN", "OAF")(a)
	}},
	"LNC":      {Name: LOINC},
	"RXNORM":   {Name: RXNORM, Keep: ttyNotIn("SY", "TMSY")},
	"ICD10CM":  {Name: ICD10CM, Keep: ttyIs("PT")},
	"ICD10PCS": {Name: ICD10PCS, Keep: ttyIs("PT")},
	"ICD9CM":   {Name: ICD9CM},
	"CPT":      {Name: CPT},
	"HCPT":     {Name: CPT},
	"HCPCS":    {Name: HCPCS},
	"MTHHH":    {Name: HCPCS},
	"CVX":      {Name: CVX},
	"NUCCHCPT": {Name: NUCC},
	"CDCREC":   {Name: CDCREC},
	"SOP":      {Name: SOP},
}

// SystemURLs maps canonical vocabulary names to FHIR code system URLs.
var SystemURLs = map[string]string{
	SNOMED:   "http://snomed.info/sct",
	LOINC:    "http://loinc.org",
	RXNORM:   "http://www.nlm.nih.gov/research/umls/rxnorm",
	ICD10CM:  "http://hl7.org/fhir/sid/icd-10-cm",
	ICD10PCS: "http://www.cms.gov/Medicare/Coding/ICD10",
	ICD9CM:   "http://hl7.org/fhir/sid/icd-9-cm",
	CPT:      "http://www.ama-assn.org/go/cpt",
	HCPCS:    "urn:oid:2.16.840.1.113883.6.285",
	CVX:      "http://hl7.org/fhir/sid/cvx",
	NUCC:     "http://nucc.org/provider-taxonomy",
	CDCREC:   "urn:oid:2.16.840.1.113883.6.238",
	SOP:      "https://nahdo.org/sopt",
}

// RuleSet resolves source tags to system URLs.
type RuleSet struct {
	rules map[string]Rule
	urls  map[string]string
}

// NewRuleSet combines a rule table with a name-to-URL table. Nil tables
// fall back to the defaults.
func NewRuleSet(rules map[string]Rule, urls map[string]string) *RuleSet {
	if rules == nil {
		rules = DefaultRules
	}
	if urls == nil {
		urls = SystemURLs
	}
	return &RuleSet{rules: rules, urls: urls}
}

// System returns the code system URL for a source tag.
func (rs *RuleSet) System(sab string) (string, bool) {
	rule, ok := rs.rules[strings.TrimSpace(sab)]
	if !ok {
		return "", false
	}
	url, ok := rs.urls[rule.Name]
	return url, ok
}

// Apply returns the system URL for a and whether a is kept. known is false
// for source tags without a rule.
func (rs *RuleSet) Apply(a Atom) (system string, keep, known bool) {
	rule, ok := rs.rules[a.SAB]
	if !ok {
		return "", false, false
	}
	url, ok := rs.urls[rule.Name]
	if !ok {
		return "", false, false
	}
	if a.Suppressed() || a.Code == "" {
		return url, false, true
	}
	if rule.Keep != nil && !rule.Keep(a) {
		return url, false, true
	}
	return url, true, true
}

// Systems returns every system URL the rules can produce.
func (rs *RuleSet) Systems() []string {
	seen := make(map[string]bool)
	var out []string
	for _, rule := range rs.rules {
		if url, ok := rs.urls[rule.Name]; ok && !seen[url] {
			seen[url] = true
			out = append(out, url)
		}
	}
	return out
}
