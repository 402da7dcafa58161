package artifact

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
)

// TableSet is an exact membership set serialized as an lz4-compressed CSV
// of (system, code) rows. It is the flat tabular backup of a bloom set.
type TableSet struct {
	keys  map[string]struct{}
	order []string
}

// NewTableSet creates an empty table.
func NewTableSet() *TableSet {
	return &TableSet{keys: make(map[string]struct{})}
}

// Add implements Set.
func (t *TableSet) Add(key string) bool {
	if _, ok := t.keys[key]; ok {
		return false
	}
	t.keys[key] = struct{}{}
	t.order = append(t.order, key)
	return true
}

// Contains implements Set.
func (t *TableSet) Contains(key string) bool {
	_, ok := t.keys[key]
	return ok
}

// Count implements Set.
func (t *TableSet) Count() int { return len(t.keys) }

// Kind implements Set.
func (t *TableSet) Kind() Kind { return KindTable }

// WriteTo writes one "system,code" row per key in insertion order.
func (t *TableSet) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	zw := lz4.NewWriter(cw)
	out := csv.NewWriter(zw)
	for _, key := range t.order {
		system, code, ok := fhirtx.SplitKey(key)
		if !ok {
			return cw.n, fmt.Errorf("malformed key %q", key)
		}
		if err := out.Write([]string{system, code}); err != nil {
			return cw.n, err
		}
	}
	out.Flush()
	if err := out.Error(); err != nil {
		return cw.n, err
	}
	if err := zw.Close(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// ReadTableSet decodes a table written by WriteTo.
func ReadTableSet(r io.Reader) (*TableSet, error) {
	in := csv.NewReader(lz4.NewReader(r))
	in.FieldsPerRecord = 2
	in.ReuseRecord = true

	t := NewTableSet()
	for {
		rec, err := in.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		t.Add(rec[0] + fhirtx.KeySeparator + rec[1])
	}
}
