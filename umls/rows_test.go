package umls

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowReader(t *testing.T) {
	input := "first\r\n" +
		"\n" +
		strings.Repeat("z", maxLine+1) + "\n" +
		strings.Repeat("k", maxLine) + "\n" +
		"last"

	rows := newRowReader(strings.NewReader(input))

	line, err := rows.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", line)
	assert.Equal(t, 1, rows.Line())

	line, err = rows.Next()
	require.NoError(t, err)
	assert.Equal(t, "", line)

	_, err = rows.Next()
	assert.ErrorIs(t, err, ErrMalformedRow)
	assert.Contains(t, err.Error(), "line 3")

	line, err = rows.Next()
	require.NoError(t, err)
	assert.Len(t, line, maxLine)

	line, err = rows.Next()
	require.NoError(t, err)
	assert.Equal(t, "last", line)
	assert.Equal(t, 5, rows.Line())

	_, err = rows.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRowReaderEmpty(t *testing.T) {
	_, err := newRowReader(strings.NewReader("")).Next()
	assert.ErrorIs(t, err, io.EOF)
}
