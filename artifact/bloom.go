package artifact

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/bits-and-blooms/bloom/v3"
)

// bloomMagic starts every serialized bloom artifact.
var bloomMagic = [4]byte{'F', 'T', 'X', 'B'}

const bloomVersion uint8 = 1

// BloomSet is an approximate membership set: no false negatives, and a
// false positive rate bounded by the rate it was sized for as long as no
// more than Capacity keys are added.
type BloomSet struct {
	filter   *bloom.BloomFilter
	count    uint64
	capacity uint64
}

// NewBloomSet sizes a filter for capacity keys at the given false positive
// rate. Capacity is raised to MinCapacity so tiny value sets stay sparse.
func NewBloomSet(capacity int, fpRate float64) *BloomSet {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = DefaultFalsePositiveRate
	}
	return &BloomSet{
		filter:   bloom.NewWithEstimates(uint(capacity), fpRate),
		capacity: uint64(capacity),
	}
}

// Add implements Set. A key that collides with existing bits is treated
// as present.
func (b *BloomSet) Add(key string) bool {
	if b.filter.TestAndAddString(key) {
		return false
	}
	b.count++
	return true
}

// Contains implements Set.
func (b *BloomSet) Contains(key string) bool {
	return b.filter.TestString(key)
}

// Count implements Set.
func (b *BloomSet) Count() int { return int(b.count) } //nolint:gosec // counts stay far below MaxInt

// Capacity returns the number of keys the filter was sized for.
func (b *BloomSet) Capacity() int { return int(b.capacity) } //nolint:gosec // sized from an int

// Kind implements Set.
func (b *BloomSet) Kind() Kind { return KindBloom }

// EstimatedFalsePositiveRate returns the expected false positive rate at
// the current fill: (1 - e^(-k*n/m))^k.
func (b *BloomSet) EstimatedFalsePositiveRate() float64 {
	if b.count == 0 {
		return 0
	}
	k := float64(b.filter.K())
	m := float64(b.filter.Cap())
	return math.Pow(1-math.Exp(-k*float64(b.count)/m), k)
}

// WriteTo serializes the set: magic, version, count, capacity, filter.
func (b *BloomSet) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	var header [4 + 1 + 8 + 8]byte
	copy(header[:4], bloomMagic[:])
	header[4] = bloomVersion
	binary.LittleEndian.PutUint64(header[5:13], b.count)
	binary.LittleEndian.PutUint64(header[13:21], b.capacity)
	if _, err := cw.Write(header[:]); err != nil {
		return cw.n, err
	}
	if _, err := b.filter.WriteTo(cw); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// ReadBloomSet decodes a set written by WriteTo.
func ReadBloomSet(r io.Reader) (*BloomSet, error) {
	var header [4 + 1 + 8 + 8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupted, err)
	}
	if [4]byte(header[:4]) != bloomMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupted)
	}
	if header[4] != bloomVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupted, header[4])
	}

	b := &BloomSet{
		filter:   &bloom.BloomFilter{},
		count:    binary.LittleEndian.Uint64(header[5:13]),
		capacity: binary.LittleEndian.Uint64(header[13:21]),
	}
	if _, err := b.filter.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("%w: filter: %v", ErrCorrupted, err)
	}
	return b, nil
}
