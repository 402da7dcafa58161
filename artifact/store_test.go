package artifact

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())

	_, err := s.Get(ctx, "missing.bloom")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Put(ctx, "b.bloom", []byte("one")))
	require.NoError(t, s.Put(ctx, "a.bloom", []byte("two")))
	require.NoError(t, s.Put(ctx, "b.bloom", []byte("three")))

	data, err := s.Get(ctx, "b.bloom")
	require.NoError(t, err)
	assert.Equal(t, "three", string(data))

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.bloom", "b.bloom"}, names)

	require.NoError(t, s.Delete(ctx, "a.bloom"))
	require.NoError(t, s.Delete(ctx, "a.bloom"))
	names, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.bloom"}, names)
}

func TestLocalStoreRejectsEscapingNames(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	for _, name := range []string{"../x", "/etc/passwd", "."} {
		assert.Error(t, s.Put(context.Background(), name, nil), name)
	}
}

func TestLocalStoreListMissingRoot(t *testing.T) {
	s := NewLocalStore(t.TempDir() + "/nope")
	names, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMinioStore(t *testing.T) {
	endpoint := os.Getenv("FHIRTX_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("FHIRTX_TEST_MINIO_ENDPOINT not set")
	}
	ctx := context.Background()
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	bucket := "fhirtx-test"
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		t.Skipf("MinIO not reachable: %v", err)
	}
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	s := NewMinioStore(client, bucket, "artifacts")
	require.NoError(t, s.Put(ctx, "x.bloom", []byte("data")))
	data, err := s.Get(ctx, "x.bloom")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "x.bloom")

	require.NoError(t, s.Delete(ctx, "x.bloom"))
	_, err = s.Get(ctx, "x.bloom")
	assert.ErrorIs(t, err, ErrNotFound)
}
