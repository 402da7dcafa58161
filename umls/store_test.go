package umls

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/terminology"
)

var _ terminology.Hierarchy = (*Store)(nil)

func rel(parent, child, sab string) string {
	f := make([]string, 16)
	f[0] = "C1"
	f[relColAUI1] = parent
	f[relColSTYPE1] = "AUI"
	f[relColREL] = "CHD"
	f[4] = "C2"
	f[relColAUI2] = child
	f[relColSTYPE2] = "AUI"
	f[relColSAB] = sab
	return strings.Join(f, "|")
}

func TestStoreDescendants(t *testing.T) {
	dsn := os.Getenv("FHIRTX_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("FHIRTX_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := Connect(ctx, dsn, nil, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Truncate(ctx))

	atoms := strings.Join([]string{
		conso("A1", "P", "PF", "SNOMEDCT_US", "PT", "P", "Parent", "N"),
		conso("A2", "P", "PF", "SNOMEDCT_US", "PT", "C1", "Child", "N"),
		strings.Repeat("x", maxLine+1),
		conso("A3", "P", "PF", "SNOMEDCT_US", "PT", "G1", "Grandchild", "N"),
		conso("A4", "P", "PF", "SNOMEDCT_US", "PT", "X", "Other", "N"),
		conso("A5", "P", "PF", "MSH", "MH", "D1", "Ignored", "N"),
	}, "\n")
	n, err := store.ImportAtoms(ctx, strings.NewReader(atoms))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	rels := strings.Join([]string{
		rel("A1", "A2", "SNOMEDCT_US"),
		rel("A2", "A3", "SNOMEDCT_US"),
		strings.Repeat("x", maxLine+1),
		rel("A3", "A1", "SNOMEDCT_US"),
		rel("A5", "A4", "MSH"),
	}, "\n")
	n, err = store.ImportRelations(ctx, strings.NewReader(rels))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	codes, err := store.Descendants(ctx, "http://snomed.info/sct", "P")
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "G1"}, codes)

	codes, err = store.Descendants(ctx, "http://snomed.info/sct", "missing")
	require.NoError(t, err)
	assert.Empty(t, codes)
}
