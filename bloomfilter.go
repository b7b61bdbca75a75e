// Package profusion implements a family of probabilistic
// set-membership filters sharing one hashing and bit-addressing core:
// the classic fixed-capacity Bloom filter, a counting variant with
// saturating per-bin counters, a scalable variant that grows past any
// fixed capacity while keeping a bounded overall false-positive
// ratio, and a memory-mapped counting variant whose counters survive
// process restarts.
//
// Filters are not safe for concurrent mutation. Concurrent Check
// callers are safe as long as no Add, Decrement or scaling is in
// flight.
package profusion

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/shaia/go-profusion/internal/hash"
)

// Bloom is a classic fixed-capacity bloom filter. It is provisioned at
// construction for an expected element count and a target
// false-positive ratio; insertions beyond the capacity degrade the
// ratio (use ScalableBloom when the element count is unbounded).
type Bloom struct {
	capacity   int
	errorRatio float64
	bins       int
	hashes     int
	bf         []byte
}

// NewBloom creates a filter provisioned for capacity elements at the
// target false-positive ratio.
func NewBloom(capacity int, errorRatio float64) (*Bloom, error) {
	if err := validateCapacity(capacity); err != nil {
		return nil, err
	}
	if err := validateErrorRatio(errorRatio); err != nil {
		return nil, err
	}
	bins, hashes := optimalParameters(capacity, errorRatio)
	return &Bloom{
		capacity:   capacity,
		errorRatio: errorRatio,
		bins:       bins,
		hashes:     hashes,
		bf:         make([]byte, (bins+7)/8),
	}, nil
}

// Add inserts s into the filter.
func (b *Bloom) Add(s string) {
	data := []byte(s)
	for i := 0; i < b.hashes; i++ {
		pos := hash.Digest(data, uint32(i)) % uint64(b.bins)
		b.bf[pos/8] |= 1 << (pos % 8)
	}
}

// Check reports whether s may have been inserted. A false result is
// definitive; a true result is wrong with probability at most the
// error ratio the filter was provisioned for.
func (b *Bloom) Check(s string) bool {
	data := []byte(s)
	for i := 0; i < b.hashes; i++ {
		pos := hash.Digest(data, uint32(i)) % uint64(b.bins)
		if b.bf[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

// CheckThenAdd inserts s unless it already appears present, and
// reports whether it did. The check and the add are two separate
// passes, not one atomic step.
func (b *Bloom) CheckThenAdd(s string) bool {
	if b.Check(s) {
		return true
	}
	b.Add(s)
	return false
}

// Contains is an alias for Check.
func (b *Bloom) Contains(s string) bool {
	return b.Check(s)
}

// Len returns the number of bins.
func (b *Bloom) Len() int {
	return b.bins
}

// Saturation returns the proportion of bits set to 1.
func (b *Bloom) Saturation() float64 {
	set := 0
	for _, octet := range b.bf {
		set += bits.OnesCount8(octet)
	}
	return float64(set) / float64(b.bins)
}

// Capacity returns the expected element count the filter was
// provisioned for.
func (b *Bloom) Capacity() int { return b.capacity }

// ErrorRatio returns the target false-positive ratio.
func (b *Bloom) ErrorRatio() float64 { return b.errorRatio }

// Bins returns the number of bit positions.
func (b *Bloom) Bins() int { return b.bins }

// Hashes returns the number of hash indexes per element.
func (b *Bloom) Hashes() int { return b.hashes }

func (b *Bloom) String() string {
	return fmt.Sprintf("Bloom filter with %d bits", b.bins)
}

type bloomBody struct {
	Capacity   int     `json:"capacity"`
	ErrorRatio float64 `json:"error_ratio"`
	Bins       int     `json:"bins"`
	Hashes     int     `json:"hashes"`
	BF         string  `json:"bf"`
}

// Save writes the filter to path as a gzip-compressed JSON envelope.
func (b *Bloom) Save(path string) error {
	return saveEnvelope(path, typeBloom, bloomBody{
		Capacity:   b.capacity,
		ErrorRatio: b.errorRatio,
		Bins:       b.bins,
		Hashes:     b.hashes,
		BF:         hex.EncodeToString(b.bf),
	})
}

// Load replaces the filter's state with the one saved at path. On
// error the receiver is left unchanged.
func (b *Bloom) Load(path string) error {
	loaded, err := LoadBloom(path)
	if err != nil {
		return err
	}
	*b = *loaded
	return nil
}

// LoadBloom reads a filter previously written by Save.
func LoadBloom(path string) (*Bloom, error) {
	raw, err := loadEnvelope(path, typeBloom)
	if err != nil {
		return nil, err
	}
	var body bloomBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.Wrap(ErrFormat, err.Error())
	}
	if body.Bins < 1 || body.Hashes < 1 {
		return nil, errors.Wrapf(ErrFormat, "bad parameters: bins=%d hashes=%d", body.Bins, body.Hashes)
	}
	bf, err := decodeBitArray(body.BF, body.Bins)
	if err != nil {
		return nil, err
	}
	return &Bloom{
		capacity:   body.Capacity,
		errorRatio: body.ErrorRatio,
		bins:       body.Bins,
		hashes:     body.Hashes,
		bf:         bf,
	}, nil
}
