// Package bloom is the membership filter used by schema discovery to notice
// repeated values without keeping every value in memory.
//
// Sizing follows the standard formulas (m = -n ln p / (ln 2)^2, k = m/n ln 2)
// and hashing uses fixed seeds, so two filters built with the same parameters
// and fed the same input in the same order hold identical bits.
package bloom

import (
	bbloom "github.com/bits-and-blooms/bloom/v3"

	"mongrel/internal/document"
)

// DefaultFalsePositive is the target false-positive probability used when
// the caller passes a value outside (0, 1).
const DefaultFalsePositive = 1e-9

// Filter is a fixed-capacity Bloom filter. It is not safe for concurrent use.
type Filter struct {
	f       *bbloom.BloomFilter
	n       uint
	fp      float64
	scratch []byte
}

// New sizes a filter for expected insertions at the target false-positive rate.
func New(expected uint, fp float64) *Filter {
	if expected == 0 {
		expected = 1
	}
	if fp <= 0 || fp >= 1 {
		fp = DefaultFalsePositive
	}
	return &Filter{
		f:  bbloom.NewWithEstimates(expected, fp),
		n:  expected,
		fp: fp,
	}
}

// Add inserts b.
func (f *Filter) Add(b []byte) { f.f.Add(b) }

// Test reports whether b may have been added. False means definitely not.
func (f *Filter) Test(b []byte) bool { return f.f.Test(b) }

// TestAndAdd reports whether b may have been added before, then adds it.
func (f *Filter) TestAndAdd(b []byte) bool { return f.f.TestAndAdd(b) }

// AddValue inserts the canonical encoding of v.
func (f *Filter) AddValue(v document.Value) {
	f.scratch = document.AppendCanonical(f.scratch[:0], v)
	f.f.Add(f.scratch)
}

// TestValue is Test over the canonical encoding of v.
func (f *Filter) TestValue(v document.Value) bool {
	f.scratch = document.AppendCanonical(f.scratch[:0], v)
	return f.f.Test(f.scratch)
}

// TestAndAddValue is TestAndAdd over the canonical encoding of v.
func (f *Filter) TestAndAddValue(v document.Value) bool {
	f.scratch = document.AppendCanonical(f.scratch[:0], v)
	return f.f.TestAndAdd(f.scratch)
}

// Expected returns the insertion count the filter was sized for.
func (f *Filter) Expected() uint { return f.n }

// FalsePositive returns the configured target false-positive probability.
func (f *Filter) FalsePositive() float64 { return f.fp }

// Bits returns the size of the bit array.
func (f *Filter) Bits() uint { return f.f.Cap() }

// Hashes returns the number of hash functions.
func (f *Filter) Hashes() uint { return f.f.K() }
