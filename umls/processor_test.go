package umls

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// conso builds an MRCONSO row with the fields the rules read.
func conso(aui, ts, stt, sab, tty, code, str, suppress string) string {
	f := make([]string, 19)
	f[colCUI] = "C0000001"
	f[1] = "ENG"
	f[colTS] = ts
	f[colSTT] = stt
	f[colAUI] = aui
	f[colSAB] = sab
	f[colTTY] = tty
	f[colCODE] = code
	f[colSTR] = str
	f[colSUPPRESS] = suppress
	return strings.Join(f, "|")
}

func TestParseAtom(t *testing.T) {
	a, err := ParseAtom(conso("A1", "P", "PF", "LNC", "LN", "1234-5", "Glucose", "N"))
	require.NoError(t, err)
	assert.Equal(t, "LNC", a.SAB)
	assert.Equal(t, "1234-5", a.Code)
	assert.Equal(t, "Glucose", a.Str)
	assert.Equal(t, "A1", a.AUI)

	_, err = ParseAtom("too|few|fields")
	assert.ErrorIs(t, err, ErrMalformedRow)
}

func TestRuleSetApply(t *testing.T) {
	rs := NewRuleSet(nil, nil)
	tests := []struct {
		name   string
		atom   Atom
		system string
		keep   bool
		known  bool
	}{
		{"loinc kept", Atom{SAB: "LNC", Code: "1", Suppress: "N"}, "http://loinc.org", true, true},
		{"suppressed dropped", Atom{SAB: "LNC", Code: "1", Suppress: "O"}, "http://loinc.org", false, true},
		{"snomed preferred", Atom{SAB: "SNOMEDCT_US", TS: "P", STT: "PF", TTY: "PT", Code: "1"}, "http://snomed.info/sct", true, true},
		{"snomed fully specified", Atom{SAB: "SNOMEDCT_US", TS: "P", STT: "PF", TTY: "FN", Code: "1"}, "http://snomed.info/sct", false, true},
		{"snomed non preferred", Atom{SAB: "SNOMEDCT_US", TS: "S", STT: "PF", TTY: "PT", Code: "1"}, "http://snomed.info/sct", false, true},
		{"rxnorm synonym", Atom{SAB: "RXNORM", TTY: "SY", Code: "1"}, "http://www.nlm.nih.gov/research/umls/rxnorm", false, true},
		{"icd10cm pt", Atom{SAB: "ICD10CM", TTY: "PT", Code: "A00"}, "http://hl7.org/fhir/sid/icd-10-cm", true, true},
		{"hcpt relabeled", Atom{SAB: "HCPT", Code: "99213"}, "http://www.ama-assn.org/go/cpt", true, true},
		{"mthhh relabeled", Atom{SAB: "MTHHH", Code: "A0021"}, "urn:oid:2.16.840.1.113883.6.285", true, true},
		{"unknown source", Atom{SAB: "MSH", Code: "D1"}, "", false, false},
		{"empty code", Atom{SAB: "CVX", Code: ""}, "http://hl7.org/fhir/sid/cvx", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, keep, known := rs.Apply(tt.atom)
			assert.Equal(t, tt.system, system)
			assert.Equal(t, tt.keep, keep)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestProcess(t *testing.T) {
	input := strings.Join([]string{
		conso("A1", "P", "PF", "LNC", "LN", "1234-5", "Glucose", "N"),
		conso("A2", "S", "VO", "LNC", "LC", "1234-5", "Glucose short", "N"),
		conso("A3", "P", "PF", "SNOMEDCT_US", "PT", "38341003", "Hypertension", "N"),
		conso("A4", "P", "PF", "SNOMEDCT_US", "FN", "38341003", "Hypertension (disorder)", "N"),
		conso("A5", "P", "PF", "MSH", "MH", "D006973", "Hypertension", "N"),
		conso("A6", "P", "PF", "MSH", "MH", "D000001", "Other", "N"),
		"broken|row",
		conso("A7", "P", "PF", "ICD10CM", "PT", "I10", "Essential hypertension", "N"),
		conso("A8", "P", "PF", "ICD10CM", "HT", "I10-I16", "Hypertensive diseases", "N"),
		conso("A9", "P", "PF", "CVX", "PT", "208", "COVID-19 vaccine", "O"),
		conso("A10", "P", "PF", "MEDCIN", "PT", "1", "x", "N"),
	}, "\n") + "\n"

	var out bytes.Buffer
	p := NewProcessor(WithProgressEvery(2))
	stats, err := p.Process(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	assert.Equal(t, 11, stats.Lines)
	assert.Equal(t, 3, stats.Written)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, 6, stats.Excluded)
	assert.Equal(t, map[string]int{"MSH": 2, "MEDCIN": 1}, stats.ExcludedSources)
	assert.Equal(t, []string{"MSH", "MEDCIN"}, stats.TopExcluded())

	assert.Equal(t, "http://loinc.org|1234-5|Glucose\n"+
		"http://snomed.info/sct|38341003|Hypertension\n"+
		"http://hl7.org/fhir/sid/icd-10-cm|I10|Essential hypertension\n", out.String())
}

func TestProcessSkipsOverlongRow(t *testing.T) {
	input := conso("A1", "P", "PF", "LNC", "LN", "1234-5", "Glucose", "N") + "\n" +
		strings.Repeat("x", 2*maxLine) + "\n" +
		conso("A2", "P", "PF", "LNC", "LN", "2345-7", "Glucose [Mass/volume]", "N") + "\n"

	var out bytes.Buffer
	stats, err := NewProcessor().Process(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Lines)
	assert.Equal(t, 2, stats.Written)
	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, "http://loinc.org|1234-5|Glucose\n"+
		"http://loinc.org|2345-7|Glucose [Mass/volume]\n", out.String())
}

func TestProcessCancelled(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 5000; i++ {
		b.WriteString(conso("A", "P", "PF", "LNC", "LN", strconv.Itoa(i), "x", "N"))
		b.WriteByte('\n')
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	stats, err := NewProcessor().Process(ctx, strings.NewReader(b.String()), &out)
	assert.ErrorIs(t, err, context.Canceled)

	// rows counted before the cancellation check still reach the writer
	assert.Equal(t, 1023, stats.Written)
	assert.Equal(t, stats.Written, strings.Count(out.String(), "\n"))
}

func TestReadSources(t *testing.T) {
	row := func(rsab, sver, srl, curver string) string {
		f := make([]string, 26)
		f[sabColRSAB] = rsab
		f[sabColSVER] = sver
		f[sabColSRL] = srl
		f[sabColCURVER] = curver
		return strings.Join(f, "|")
	}
	input := strings.Join([]string{
		row("SNOMEDCT_US", "2024_03_01", "9", "Y"),
		row("SNOMEDCT_US", "2023_09_01", "9", "N"),
		row("CPT", "2024", "3", "Y"),
		row("HCPT", "2024", "3", "Y"),
		row("LNC", "2.77", "0", "Y"),
		row("MSH", "2024", "0", "Y"),
	}, "\n")

	md, err := ReadSources(strings.NewReader(input), nil)
	require.NoError(t, err)
	require.Len(t, md, 3)
	assert.Equal(t, []string{"2024_03_01"}, md["http://snomed.info/sct"].Versions)
	assert.Equal(t, 9, md["http://snomed.info/sct"].RestrictionLevel)
	assert.Equal(t, []string{"2024"}, md["http://www.ama-assn.org/go/cpt"].Versions)
	assert.Equal(t, 3, md["http://www.ama-assn.org/go/cpt"].RestrictionLevel)
	assert.Equal(t, 0, md["http://loinc.org"].RestrictionLevel)

	_, err = ReadSources(strings.NewReader("a|b|c"), nil)
	assert.ErrorIs(t, err, ErrMalformedRow)

	_, err = ReadSources(strings.NewReader(strings.Repeat("y", maxLine+1)), nil)
	assert.ErrorIs(t, err, ErrMalformedRow)
}
