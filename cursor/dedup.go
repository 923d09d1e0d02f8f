package cursor

import (
	"hash/fnv"
	"math"

	"github.com/bits-and-blooms/bitset"
)

// Dedup is a space-compact, probabilistic record of primary keys
// already emitted during one paginated traversal (spec.md §4.E
// "Deduplication ... the cursor records this set compactly, e.g. a
// Bloom filter plus last-key-per-sub-query"). It is sized for an
// expected number of keys (the executor passes the page size of the
// traversal's first call) so the false-positive rate — wrongly
// treating a fresh key as a duplicate — stays negligible at that size;
// the per-sub-query last-key continuation carried alongside it (see
// Cursor.SubQueries) is what actually bounds re-scanning, while the
// Bloom filter travels in the cursor from page to page and catches
// cross-sub-query repeats over the whole traversal.
type Dedup struct {
	bits *bitset.BitSet
	k    uint
	m    uint
}

// defaultFalsePositiveRate mirrors a typical page-scoped dedup budget:
// with a few hundred keys per page this keeps collisions rare enough
// that dedup stays approximate but practically exact.
const defaultFalsePositiveRate = 1.0 / 100000

// NewDedup allocates a Bloom filter sized for expectedItems entries.
func NewDedup(expectedItems int) *Dedup {
	if expectedItems <= 0 {
		expectedItems = 1
	}
	m, k := bloomParameters(uint(expectedItems), defaultFalsePositiveRate)
	return &Dedup{bits: bitset.New(m), m: m, k: k}
}

func bloomParameters(n uint, p float64) (m, k uint) {
	mf := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	m = uint(math.Ceil(mf))
	if m < 64 {
		m = 64
	}
	kf := float64(m) / float64(n) * math.Ln2
	k = uint(math.Round(kf))
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return m, k
}

// Seen reports whether key was already recorded by a prior Add.
func (d *Dedup) Seen(key string) bool {
	h1, h2 := splitHash(key)
	for i := uint(0); i < d.k; i++ {
		if !d.bits.Test(uint(bitIndex(h1, h2, i, d.m))) {
			return false
		}
	}
	return true
}

// Add records key, returning true if it was already present (so
// callers can Add-and-check in one step).
func (d *Dedup) Add(key string) (alreadySeen bool) {
	alreadySeen = true
	h1, h2 := splitHash(key)
	for i := uint(0); i < d.k; i++ {
		idx := uint(bitIndex(h1, h2, i, d.m))
		if !d.bits.Test(idx) {
			alreadySeen = false
		}
		d.bits.Set(idx)
	}
	return alreadySeen
}

func bitIndex(h1, h2 uint64, i, m uint) uint64 {
	return (h1 + uint64(i)*h2) % uint64(m)
}

// splitHash derives two independent 64-bit hashes from one FNV pass,
// per the Kirsch-Mitzenmacher double-hashing scheme: k simulated hash
// functions from two real ones, avoiding k separate hash computations
// per key.
func splitHash(key string) (h1, h2 uint64) {
	a := fnv.New64a()
	a.Write([]byte(key))
	h1 = a.Sum64()

	b := fnv.New64()
	b.Write([]byte(key))
	h2 = b.Sum64()
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}

// MarshalBinary implements encoding.BinaryMarshaler so Dedup can be
// embedded directly in a gob-encoded Cursor.
func (d *Dedup) MarshalBinary() ([]byte, error) {
	body, err := d.bits.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 16+len(body))
	putUint(out[0:8], uint64(d.m))
	putUint(out[8:16], uint64(d.k))
	copy(out[16:], body)
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (d *Dedup) UnmarshalBinary(data []byte) error {
	if len(data) < 16 {
		return ErrMalformedCursor
	}
	d.m = uint(getUint(data[0:8]))
	d.k = uint(getUint(data[8:16]))
	d.bits = &bitset.BitSet{}
	return d.bits.UnmarshalBinary(data[16:])
}

func putUint(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> (56 - 8*i))
	}
}

func getUint(src []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(src[i])
	}
	return v
}
