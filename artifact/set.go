package artifact

import (
	"errors"
	"fmt"
	"io"
)

// ErrCorrupted indicates a serialized set could not be decoded.
var ErrCorrupted = errors.New("artifact: corrupted set data")

// Set is a membership structure over composite keys. Implementations are
// not safe for concurrent mutation; concurrent Contains calls on a set
// that is no longer mutated are safe.
type Set interface {
	// Add inserts key and reports whether it was new. Keys already present
	// leave Count unchanged.
	Add(key string) bool

	// Contains reports whether key may be a member.
	Contains(key string) bool

	// Count returns the number of distinct keys added.
	Count() int

	// Kind returns the serialization kind.
	Kind() Kind

	io.WriterTo
}

// SetOptions sizes a new set.
type SetOptions struct {
	// Capacity is the expected number of keys.
	Capacity int
	// FalsePositiveRate is the target rate for approximate sets.
	FalsePositiveRate float64
}

// Defaults for SetOptions.
const (
	DefaultFalsePositiveRate = 0.001
	MinCapacity              = 1000
)

// NewSet creates an empty set of kind k.
func NewSet(k Kind, opts SetOptions) (Set, error) {
	switch k {
	case KindBloom:
		return NewBloomSet(opts.Capacity, opts.FalsePositiveRate), nil
	case KindTable:
		return NewTableSet(), nil
	}
	return nil, fmt.Errorf("unknown artifact kind %q", k)
}

// ReadSet decodes a set of kind k from r.
func ReadSet(k Kind, r io.Reader) (Set, error) {
	switch k {
	case KindBloom:
		return ReadBloomSet(r)
	case KindTable:
		return ReadTableSet(r)
	}
	return nil, fmt.Errorf("unknown artifact kind %q", k)
}

// countingWriter counts bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
