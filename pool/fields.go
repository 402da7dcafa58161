// Package pool provides pooled field buffers for the delimited row parsers,
// which split tens of millions of RRF lines per release.
package pool

import (
	"strings"
	"sync"
)

// maxPooledFields keeps unusually wide rows from pinning large buffers.
const maxPooledFields = 256

var fieldsPool = sync.Pool{
	New: func() any {
		s := make([]string, 0, 32)
		return &s
	},
}

// AcquireFields gets an empty field buffer from the pool.
func AcquireFields() *[]string {
	s := fieldsPool.Get().(*[]string)
	*s = (*s)[:0]
	return s
}

// ReleaseFields returns a field buffer to the pool. Strings taken from the
// buffer stay valid; the buffer itself must not be used afterwards.
func ReleaseFields(s *[]string) {
	if s == nil {
		return
	}
	if cap(*s) <= maxPooledFields {
		clear(*s)
		fieldsPool.Put(s)
	}
}

// Split splits line on sep into dst, replacing its contents, and returns
// the fields. It matches strings.Split for a non-empty separator.
func Split(dst *[]string, line string, sep byte) []string {
	fields := (*dst)[:0]
	for {
		i := strings.IndexByte(line, sep)
		if i < 0 {
			break
		}
		fields = append(fields, line[:i])
		line = line[i+1:]
	}
	fields = append(fields, line)
	*dst = fields
	return fields
}
