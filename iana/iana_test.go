package iana

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/terminology"
)

const registrySample = `File-Date: 2024-06-14
%%
Type: language
Subtag: en
Description: English
Added: 2005-10-16
%%
Type: language
Subtag: de
Description: German
Added: 2005-10-16
%%
Type: language
Subtag: qaa..qtz
Description: Private use
Added: 2005-10-16
%%
Type: region
Subtag: US
Description: United States
Added: 2005-10-16
%%
Type: redundant
Tag: zh-Hant
Description: Chinese (Traditional)
  script
Added: 2003-05-30
%%
Type: grandfathered
Tag: i-klingon
Description: Klingon
Added: 1999-05-26
Deprecated: 2004-02-24
Preferred-Value: tlh
%%
Type: redundant
Tag: en-GB-oed
Description: English, Oxford English Dictionary spelling
`

const mediaSample = `Name,Template,Reference
json,application/json,[RFC8259]
fhir+json,application/fhir+json,[HL7]
vnd.obsolete,,[None]
`

func codesOf(codings []fhirtx.Coding) []string {
	out := make([]string, len(codings))
	for i, c := range codings {
		out[i] = c.Code
	}
	return out
}

func TestReadLanguageRegistry(t *testing.T) {
	records, err := ReadLanguageRegistry(strings.NewReader(registrySample))
	require.NoError(t, err)
	require.Len(t, records, 7)

	assert.Equal(t, "en", records[0].Code())
	assert.Equal(t, "zh-Hant", records[4].Code())
	assert.Equal(t, []string{"Chinese (Traditional) script"}, records[4].Description)
	assert.Equal(t, "tlh", records[5].Preferred)
}

func TestLanguageProvider(t *testing.T) {
	records, err := ReadLanguageRegistry(strings.NewReader(registrySample))
	require.NoError(t, err)
	p := NewLanguageProvider(records)

	all, err := p.Codes(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "de", "zh-Hant", "i-klingon", "en-GB-oed"}, codesOf(all))

	tests := []struct {
		name string
		f    terminology.Filter
		want []string
	}{
		{"no script", terminology.Filter{Property: PropScript, Op: terminology.OpExists, Value: "false"}, []string{"en", "de", "i-klingon", "en-GB-oed"}},
		{"has script", terminology.Filter{Property: PropScript, Op: terminology.OpExists, Value: "true"}, []string{"zh-Hant"}},
		{"has region", terminology.Filter{Property: PropRegion, Op: terminology.OpExists, Value: "true"}, []string{"en-GB-oed"}},
		{"has variant", terminology.Filter{Property: PropVariant, Op: terminology.OpExists, Value: "TRUE"}, []string{"i-klingon", "en-GB-oed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.f
			got, err := p.Codes(context.Background(), &f)
			require.NoError(t, err)
			assert.Equal(t, tt.want, codesOf(got))
		})
	}

	bad := []terminology.Filter{
		{Property: PropScript, Op: terminology.OpIsA, Value: "en"},
		{Property: PropScript, Op: terminology.OpExists, Value: "maybe"},
		{Property: "colour", Op: terminology.OpExists, Value: "true"},
	}
	for _, f := range bad {
		f := f
		_, err := p.Codes(context.Background(), &f)
		assert.True(t, errors.Is(err, fhirtx.ErrFilterOperation), "%+v: %v", f, err)
	}
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		tag  string
		want TagParts
	}{
		{"en", TagParts{Language: "en"}},
		{"en-US", TagParts{Language: "en", Region: "US"}},
		{"zh-yue-Hant-HK", TagParts{Language: "zh", ExtLang: "yue", Script: "Hant", Region: "HK"}},
		{"es-419", TagParts{Language: "es", Region: "419"}},
		{"sl-rozaj-biske", TagParts{Language: "sl", Variant: "rozaj-biske"}},
		{"de-DE-u-co-phonebk", TagParts{Language: "de", Region: "DE", Extension: "u-co-phonebk"}},
		{"en-x-private", TagParts{Language: "en", PrivateUse: "x-private"}},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTag(tt.tag))
		})
	}
}

func TestMediaTypes(t *testing.T) {
	codes, err := ReadMediaTypes("application", strings.NewReader(mediaSample))
	require.NoError(t, err)
	assert.Equal(t, []string{"application/json", "application/fhir+json", "application/vnd.obsolete"}, codes)

	p := NewMediaTypeProvider(append(codes, "APPLICATION/JSON"))
	assert.Equal(t, 3, p.Len())
	all, err := p.Codes(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"application/fhir+json", "application/json", "application/vnd.obsolete"}, codesOf(all))

	_, err = p.Codes(context.Background(), &terminology.Filter{Property: "x", Op: terminology.OpExists, Value: "true"})
	assert.ErrorIs(t, err, fhirtx.ErrFilterOperation)
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, "text/html", NormalizeMediaType(" Text/HTML; charset=UTF-8"))
	assert.Equal(t, "application/fhir+json", NormalizeMediaType("application/fhir+json"))

	assert.Equal(t, "en-US", NormalizeLanguage("EN-us"))
	assert.Equal(t, "zh-Hant-TW", NormalizeLanguage("zh_hant_tw"))
	assert.Equal(t, "de-DE-u-co-phonebk", NormalizeLanguage("de-de-u-co-PHONEBK"))
	assert.Equal(t, "", NormalizeLanguage("  "))

	n := Normalizers()
	assert.Equal(t, "en-US", n[LanguageSystem]("en-us"))
	assert.Equal(t, "image/png", n[MimeTypesValueSet]("IMAGE/PNG"))
}

func TestFetcherDownloadAndRegister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/"+LanguageRegistryDir+"/"+LanguageRegistryDir:
			fmt.Fprint(w, registrySample)
		case r.URL.Path == "/"+MediaTypesDir+"/application.csv":
			fmt.Fprint(w, mediaSample)
		case strings.HasPrefix(r.URL.Path, "/"+MediaTypesDir+"/"):
			fmt.Fprint(w, "Name,Template,Reference\n")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(WithBaseURL(srv.URL), WithRateLimit(1000))
	require.NoError(t, f.Download(context.Background(), dir))
	assert.FileExists(t, filepath.Join(dir, LanguageFile))
	assert.FileExists(t, filepath.Join(dir, MediaTypeFile("video")))

	repo := terminology.NewRepository()
	systems, err := Register(repo, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{LanguageSystem, MediaTypeSystem}, systems)

	p, ok := repo.Provider(MediaTypeSystem)
	require.True(t, ok)
	codes, err := p.Codes(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, codes, 3)
}

func TestLoadEmptyDir(t *testing.T) {
	langs, media, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, langs)
	assert.Nil(t, media)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, LanguageFile), []byte("%%\nbroken line\n"), 0o644))
	_, _, err = Load(dir)
	assert.Error(t, err)
}
