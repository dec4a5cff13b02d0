// Package bloomfilter implements the probabilistic membership filter used
// to short-circuit negative lookups before a collection touches its primary
// index or data chunks.
//
// The bit array is a github.com/bits-and-blooms/bitset.BitSet, the same
// container github.com/bits-and-blooms/bloom/v3 builds on; bit positions,
// however, are chosen with a seeded github.com/cespare/xxhash/v2 hash rather
// than bloom/v3's own double-hashing scheme, because Remove must clear
// exactly the bits a prior Insert set for that key.
package bloomfilter

import (
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"
)

// Filter is a bloom filter sized for an expected number of keys and a target
// false-positive rate.
type Filter struct {
	bits   *bitset.BitSet
	m      uint64 // number of bits
	hashes uint64 // number of hash functions (k)
}

// New sizes a filter for n expected keys at false-positive rate p, following
// m = ceil(-n*ln(p) / ln(2)^2) and k = ceil((m/n)*ln(2)*2).
//
// The *2 factor in the hash-count formula is deliberate: it is carried over
// unchanged from the reference implementation's sizing. Doubling k past the
// textbook optimum k = (m/n)*ln(2) sets more bits per key, so at n keys the
// false-positive rate is above p (about 2.5% for p = 0.01), and each
// operation hashes twice as often.
func New(n uint64, p float64) *Filter {
	if n == 0 {
		n = 1
	}
	m := numBits(n, p)
	k := numHashes(m, n)
	return &Filter{
		bits:   bitset.New(uint(m)),
		m:      m,
		hashes: k,
	}
}

func numBits(n uint64, p float64) uint64 {
	num := -1.0 * float64(n) * math.Log(p)
	den := math.Pow(math.Log(2), 2)
	return uint64(math.Ceil(num / den))
}

func numHashes(m, n uint64) uint64 {
	return uint64(math.Ceil((float64(m) / float64(n)) * math.Log(2) * 2))
}

// positions yields the k bit indices a key maps to.
func (f *Filter) positions(key string) []uint {
	pos := make([]uint, f.hashes)
	for i := uint64(0); i < f.hashes; i++ {
		pos[i] = uint(seededHash(key, i) % f.m)
	}
	return pos
}

func seededHash(key string, seed uint64) uint64 {
	d := xxhash.New()
	d.WriteString(key)
	var seedBytes [8]byte
	for i := 0; i < 8; i++ {
		seedBytes[i] = byte(seed >> (8 * i))
	}
	d.Write(seedBytes[:])
	return d.Sum64()
}

// Insert marks key as present.
func (f *Filter) Insert(key string) {
	for _, p := range f.positions(key) {
		f.bits.Set(p)
	}
}

// Contains reports whether key MAY be present. A false return is certain;
// a true return may be a false positive.
func (f *Filter) Contains(key string) bool {
	for _, p := range f.positions(key) {
		if !f.bits.Test(p) {
			return false
		}
	}
	return true
}

// Remove probabilistically clears key's bits. Because bits are shared
// between keys, this can introduce false negatives for other keys whose
// positions overlap; callers must treat a negative Contains as advisory
// only (verify against the primary index), never as ground truth for
// deletion bookkeeping.
func (f *Filter) Remove(key string) {
	for _, p := range f.positions(key) {
		f.bits.Clear(p)
	}
}

// Clear resets every bit, as after a Drop.
func (f *Filter) Clear() {
	f.bits.ClearAll()
}

// Bits returns the number of bits in the filter's array.
func (f *Filter) Bits() uint64 { return f.m }

// Hashes returns the number of hash functions (k) used per operation.
func (f *Filter) Hashes() uint64 { return f.hashes }
