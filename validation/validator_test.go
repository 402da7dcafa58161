package validation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/artifact"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/iana"
)

const (
	openSystem = "http://example.org/open"
	cptSystem  = "http://www.ama-assn.org/go/cpt"
	mixedVS    = "http://example.org/vs/mixed"
	cptOnlyVS  = "http://example.org/vs/cpt-only"
)

type fixture struct {
	url     string
	systems []string
	keys    []string
}

func writeFixtures(t *testing.T, store artifact.Store, md artifact.Metadata, fixtures ...fixture) {
	t.Helper()
	ctx := context.Background()
	manifest := &artifact.Manifest{}
	for _, f := range fixtures {
		set, err := artifact.NewSet(artifact.KindBloom, artifact.SetOptions{Capacity: len(f.keys)})
		require.NoError(t, err)
		for _, k := range f.keys {
			set.Add(k)
		}
		file, err := artifact.FileName(f.url, artifact.KindBloom)
		require.NoError(t, err)
		require.NoError(t, artifact.WriteSet(ctx, store, file, set))
		manifest.Upsert(artifact.Entry{URL: f.url, File: file, Count: set.Count(), Kind: artifact.KindBloom, CodeSystems: f.systems})
	}
	require.NoError(t, artifact.SaveManifest(ctx, store, manifest))
	require.NoError(t, artifact.SaveMetadata(ctx, store, md))
}

func policyRepository(t *testing.T) *Repository {
	t.Helper()
	store := artifact.NewLocalStore(t.TempDir())
	writeFixtures(t, store,
		artifact.Metadata{cptSystem: {RestrictionLevel: 3}, openSystem: {Versions: []string{"1"}}},
		fixture{url: mixedVS, systems: []string{openSystem, cptSystem}, keys: []string{openSystem + "|X", cptSystem + "|Y"}},
		fixture{url: cptOnlyVS, systems: []string{cptSystem}, keys: []string{cptSystem + "|Y"}},
		fixture{url: openSystem, systems: []string{openSystem}, keys: []string{openSystem + "|X"}},
		fixture{url: cptSystem, systems: []string{cptSystem}, keys: []string{cptSystem + "|Y"}},
	)
	repo, err := Load(context.Background(), store)
	require.NoError(t, err)
	return repo
}

func TestValidateWithoutPolicy(t *testing.T) {
	v := New(policyRepository(t))

	tests := []struct {
		name             string
		code, system, vs string
		want             bool
	}{
		{"value set member", "X", "", mixedVS, true},
		{"value set member of second system", "Y", "", mixedVS, true},
		{"value set non-member", "Z", "", mixedVS, false},
		{"value set with system", "X", openSystem, mixedVS, true},
		{"value set with wrong system", "X", cptSystem, mixedVS, false},
		{"code system member", "X", openSystem, "", true},
		{"code system non-member", "Y", openSystem, "", false},
		{"versioned value set", "X", "", mixedVS + "|1.0.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(tt.code, tt.system, tt.vs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateUnknown(t *testing.T) {
	v := New(policyRepository(t))

	_, err := v.Validate("X", "", "http://example.org/vs/unknown")
	assert.ErrorIs(t, err, fhirtx.ErrUnknownValueSet)

	_, err = v.Validate("X", "http://example.org/unknown", "")
	assert.ErrorIs(t, err, fhirtx.ErrUnknownCodeSystem)

	_, err = v.Validate("X", openSystem, "http://example.org/vs/unknown")
	assert.ErrorIs(t, err, fhirtx.ErrUnknownValueSet)

	_, err = v.Validate("X", "", "")
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestValidateDeniedSystem(t *testing.T) {
	metrics := fhirtx.NewMetrics()
	v := New(policyRepository(t), WithPolicy(Policy{MaxRestrictionLevel: AnyRestriction, Deny: []string{cptSystem}}), WithMetrics(metrics))

	// Explicit system lookups against a prohibited system always fail.
	_, err := v.Validate("Y", cptSystem, "")
	var perr *fhirtx.ProhibitedSystemError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, cptSystem, perr.System)
	assert.ErrorIs(t, err, fhirtx.ErrProhibitedSystem)

	_, err = v.Validate("Y", cptSystem, mixedVS)
	assert.ErrorIs(t, err, fhirtx.ErrProhibitedSystem)

	// A value set spanning an allowed system answers through that system.
	ok, err := v.Validate("X", "", mixedVS)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Validate("Y", "", mixedVS)
	require.NoError(t, err)
	assert.False(t, ok)

	// A value set with no allowed system cannot be used.
	_, err = v.Validate("Y", "", cptOnlyVS)
	assert.ErrorIs(t, err, fhirtx.ErrProhibitedSystem)

	assert.Equal(t, uint64(3), metrics.ProhibitedTotal())
	assert.Equal(t, uint64(2), metrics.QueriesTotal())
	assert.Equal(t, uint64(1), metrics.QueriesMember())
}

func TestValidateRestrictionLevel(t *testing.T) {
	repo := policyRepository(t)

	strict := New(repo, WithPolicy(Policy{MaxRestrictionLevel: 0}))
	assert.True(t, strict.Prohibited(cptSystem))
	assert.False(t, strict.Prohibited(openSystem))
	assert.False(t, strict.Prohibited("http://example.org/no-metadata"))
	_, err := strict.Validate("Y", cptSystem, "")
	assert.ErrorIs(t, err, fhirtx.ErrProhibitedSystem)

	lenient := New(repo, WithPolicy(Policy{MaxRestrictionLevel: 3}))
	ok, err := lenient.Validate("Y", cptSystem, "")
	require.NoError(t, err)
	assert.True(t, ok)

	allowed := New(repo, WithPolicy(Policy{MaxRestrictionLevel: 0, Allow: []string{cptSystem}}))
	ok, err = allowed.Validate("Y", cptSystem, "")
	require.NoError(t, err)
	assert.True(t, ok)

	denied := New(repo, WithPolicy(Policy{MaxRestrictionLevel: AnyRestriction, Allow: []string{cptSystem}, Deny: []string{cptSystem}}))
	assert.True(t, denied.Prohibited(cptSystem))
}

func TestValidateAliases(t *testing.T) {
	v := New(policyRepository(t), WithAliases(map[string]string{"urn:oid:1.2.3": openSystem}))

	ok, err := v.Validate("X", "urn:oid:1.2.3", "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidateNormalizers(t *testing.T) {
	store := artifact.NewLocalStore(t.TempDir())
	writeFixtures(t, store, artifact.Metadata{},
		fixture{url: iana.LanguageSystem, systems: []string{iana.LanguageSystem}, keys: []string{iana.LanguageSystem + "|en-US", iana.LanguageSystem + "|zh-Hant-TW"}},
		fixture{url: iana.MimeTypesValueSet, systems: []string{iana.MediaTypeSystem}, keys: []string{iana.MediaTypeSystem + "|text/html"}},
		fixture{url: openSystem, systems: []string{openSystem}, keys: []string{openSystem + "|abc"}},
	)
	repo, err := Load(context.Background(), store)
	require.NoError(t, err)
	v := New(repo, WithNormalizer(openSystem, func(code string) string { return "abc" }))

	tests := []struct {
		code, system, vs string
	}{
		{"en-us", iana.LanguageSystem, ""},
		{"ZH-hant-tw", iana.LanguageSystem, ""},
		{"Text/HTML; charset=utf-8", "", iana.MimeTypesValueSet},
		{"text/html", iana.MediaTypeSystem, iana.MimeTypesValueSet},
		{"anything", openSystem, ""},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			ok, err := v.Validate(tt.code, tt.system, tt.vs)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}

	raw := New(repo, WithNormalizer(iana.LanguageSystem, nil))
	ok, err := raw.Validate("en-us", iana.LanguageSystem, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	repo := policyRepository(t)
	assert.Equal(t, 4, repo.Len())

	entries := repo.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, []string{openSystem, cptOnlyVS, mixedVS, cptSystem}, []string{entries[0].URL, entries[1].URL, entries[2].URL, entries[3].URL})

	e, ok := repo.Entry(mixedVS + "|2")
	require.True(t, ok)
	assert.Equal(t, []string{openSystem, cptSystem}, e.CodeSystems)

	md, ok := repo.Metadata(cptSystem)
	require.True(t, ok)
	assert.Equal(t, 3, md.RestrictionLevel)
}

func TestLoadEmptyStore(t *testing.T) {
	repo, err := Load(context.Background(), artifact.NewLocalStore(t.TempDir()))
	require.NoError(t, err)
	assert.Zero(t, repo.Len())

	_, err = New(repo).Validate("A", "http://example.org/sys", "")
	assert.ErrorIs(t, err, fhirtx.ErrUnknownCodeSystem)
}

func TestLoadMissingArtifact(t *testing.T) {
	ctx := context.Background()
	store := artifact.NewLocalStore(t.TempDir())
	writeFixtures(t, store, artifact.Metadata{},
		fixture{url: openSystem, systems: []string{openSystem}, keys: []string{openSystem + "|X"}},
	)
	file, err := artifact.FileName(openSystem, artifact.KindBloom)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, file))

	_, err = Load(ctx, store, WithConcurrency(1))
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestValidateConcurrent(t *testing.T) {
	v := New(policyRepository(t), WithMetrics(fhirtx.NewMetrics()))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				ok, err := v.Validate("X", "", mixedVS)
				if err != nil || !ok {
					errs <- fmt.Errorf("query %d: ok=%v err=%v", j, ok, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestValidateBatch(t *testing.T) {
	v := New(policyRepository(t), WithPolicy(Policy{MaxRestrictionLevel: AnyRestriction, Deny: []string{cptSystem}}))

	queries := []Query{
		{ID: "1", Code: "X", ValueSet: mixedVS},
		{ID: "2", Code: "Z", ValueSet: mixedVS},
		{ID: "3", Code: "Y", System: cptSystem},
		{ID: "4", Code: "X", ValueSet: "http://example.org/vs/unknown"},
	}
	for i := 0; i < 50; i++ {
		queries = append(queries, Query{ID: fmt.Sprint(i + 5), Code: "X", System: openSystem})
	}

	answers := v.ValidateBatch(context.Background(), queries, 4)
	require.Len(t, answers, len(queries))
	assert.Equal(t, Answer{ID: "1", Result: true, answered: true}, answers[0])
	assert.False(t, answers[1].Result)
	assert.NoError(t, answers[1].Err)
	assert.ErrorIs(t, answers[2].Err, fhirtx.ErrProhibitedSystem)
	assert.NotEmpty(t, answers[2].Error)
	assert.ErrorIs(t, answers[3].Err, fhirtx.ErrUnknownValueSet)
	for i, a := range answers[4:] {
		assert.Equal(t, fmt.Sprint(i+5), a.ID)
		assert.True(t, a.Result)
	}
}

func TestValidateBatchCanceled(t *testing.T) {
	v := New(policyRepository(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	answers := v.ValidateBatch(ctx, []Query{{ID: "a", Code: "X", ValueSet: mixedVS}, {ID: "b", Code: "X", ValueSet: mixedVS}, {ID: "c", Code: "X", ValueSet: mixedVS}}, 2)
	require.Len(t, answers, 3)
	for _, a := range answers {
		assert.ErrorIs(t, a.Err, context.Canceled)
	}
	assert.Equal(t, "b", answers[1].ID)
}
