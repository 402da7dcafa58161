package artifact

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBloomSetNoFalseNegatives(t *testing.T) {
	s := NewBloomSet(5000, 0.001)
	for i := 0; i < 5000; i++ {
		s.Add(fmt.Sprintf("http://sys1|C%d", i))
	}
	for i := 0; i < 5000; i++ {
		require.True(t, s.Contains(fmt.Sprintf("http://sys1|C%d", i)), "member C%d missing", i)
	}
}

func TestBloomSetFalsePositiveRate(t *testing.T) {
	const n = 10000
	s := NewBloomSet(n, 0.001)
	for i := 0; i < n; i++ {
		s.Add(fmt.Sprintf("http://sys1|M%d", i))
	}

	const probes = 100000
	fp := 0
	for i := 0; i < probes; i++ {
		if s.Contains(fmt.Sprintf("http://sys2|N%d", i)) {
			fp++
		}
	}
	rate := float64(fp) / probes
	assert.Less(t, rate, 0.01, "false positive rate %f", rate)
	assert.Less(t, s.EstimatedFalsePositiveRate(), 0.01)
}

func TestBloomSetMergeIdempotent(t *testing.T) {
	s := NewBloomSet(100, 0)
	assert.True(t, s.Add("http://sys1|A"))
	assert.True(t, s.Add("http://sys1|B"))
	assert.Equal(t, 2, s.Count())

	assert.False(t, s.Add("http://sys1|A"))
	assert.Equal(t, 2, s.Count())

	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)

	reopened, err := ReadBloomSet(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count())
	assert.False(t, reopened.Add("http://sys1|B"))
	assert.Equal(t, 2, reopened.Count())
	assert.True(t, reopened.Add("http://sys1|C"))
	assert.Equal(t, 3, reopened.Count())
}

func TestBloomSetRoundTrip(t *testing.T) {
	s := NewBloomSet(10, 0.01)
	assert.Equal(t, MinCapacity, s.Capacity())
	s.Add("http://sys1|A")

	var buf bytes.Buffer
	n, err := s.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	got, err := ReadSet(KindBloom, &buf)
	require.NoError(t, err)
	assert.Equal(t, KindBloom, got.Kind())
	assert.True(t, got.Contains("http://sys1|A"))
	assert.False(t, got.Contains("http://sys1|Z"))
}

func TestReadBloomSetCorrupted(t *testing.T) {
	_, err := ReadBloomSet(bytes.NewReader([]byte("nope")))
	assert.ErrorIs(t, err, ErrCorrupted)

	bad := make([]byte, 64)
	copy(bad, "XXXX")
	_, err = ReadBloomSet(bytes.NewReader(bad))
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestTableSet(t *testing.T) {
	s := NewTableSet()
	assert.True(t, s.Add("http://sys1|A"))
	assert.True(t, s.Add("http://sys1|B,with comma"))
	assert.False(t, s.Add("http://sys1|A"))
	assert.Equal(t, 2, s.Count())

	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)

	got, err := ReadSet(KindTable, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Count())
	assert.True(t, got.Contains("http://sys1|A"))
	assert.True(t, got.Contains("http://sys1|B,with comma"))
	assert.False(t, got.Contains("http://sys1|C"))
}

func TestNewSetUnknownKind(t *testing.T) {
	_, err := NewSet(Kind("x"), SetOptions{})
	assert.Error(t, err)
	_, err = ReadSet(Kind("x"), bytes.NewReader(nil))
	assert.Error(t, err)
}
