package profusion

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/shaia/go-profusion/internal/hash"
)

// DefaultBinSize is the saturation ceiling used when no explicit bin
// size is wanted: the largest value a single-octet counter can hold.
const DefaultBinSize = 255

// CountingBloom is a bloom filter whose bins are small saturating
// counters instead of bits, which makes removal and multiplicity
// queries possible. A key's reported value is the minimum of its
// counters; decrementing a key that was never inserted may corrupt
// the counts of other keys, which is an accepted limitation of
// counting bloom filters.
type CountingBloom struct {
	capacity   int
	errorRatio float64
	binSize    int
	binBytes   int
	bins       int
	hashes     int
	bf         []byte
}

// NewCountingBloom creates a counting filter provisioned for capacity
// elements at the target false-positive ratio, with counters that
// saturate at binSize (1 to 255).
func NewCountingBloom(capacity int, errorRatio float64, binSize int) (*CountingBloom, error) {
	if err := validateCapacity(capacity); err != nil {
		return nil, err
	}
	if err := validateErrorRatio(errorRatio); err != nil {
		return nil, err
	}
	if err := validateBinSize(binSize); err != nil {
		return nil, err
	}
	bins, hashes := optimalParameters(capacity, errorRatio)
	binBytes := binBytesFor(binSize)
	return &CountingBloom{
		capacity:   capacity,
		errorRatio: errorRatio,
		binSize:    binSize,
		binBytes:   binBytes,
		bins:       bins,
		hashes:     hashes,
		bf:         make([]byte, bins*binBytes),
	}, nil
}

// Add raises each of s's counters by amount, saturating at the bin
// size. The returned flag is always true for the in-memory variant;
// false is reserved for backing stores that can reject writes.
func (c *CountingBloom) Add(s string, amount int) bool {
	data := []byte(s)
	for i := 0; i < c.hashes; i++ {
		pos := int(hash.Digest(data, uint32(i)) % uint64(c.bins))
		incrementBinValue(c.bf, c.binBytes, c.binSize, pos, amount)
	}
	return true
}

// Value returns the minimum of s's counters. Zero means s was
// definitively never inserted (or was fully decremented).
func (c *CountingBloom) Value(s string) int {
	data := []byte(s)
	value := 0
	for i := 0; i < c.hashes; i++ {
		pos := int(hash.Digest(data, uint32(i)) % uint64(c.bins))
		if v := binValue(c.bf, c.binBytes, pos); i == 0 || v < value {
			value = v
		}
	}
	return value
}

// Check reports whether s's value has reached trigger.
func (c *CountingBloom) Check(s string, trigger int) bool {
	return c.Value(s) >= trigger
}

// Contains is Check with a trigger of 1.
func (c *CountingBloom) Contains(s string) bool {
	return c.Check(s, 1)
}

// Decrement lowers each of s's counters by amount, saturating at 0.
func (c *CountingBloom) Decrement(s string, amount int) {
	data := []byte(s)
	for i := 0; i < c.hashes; i++ {
		pos := int(hash.Digest(data, uint32(i)) % uint64(c.bins))
		decrementBinValue(c.bf, c.binBytes, pos, amount)
	}
}

// Zero resets every counter to 0.
func (c *CountingBloom) Zero() {
	clear(c.bf)
}

// Capacity returns the expected element count the filter was
// provisioned for.
func (c *CountingBloom) Capacity() int { return c.capacity }

// ErrorRatio returns the target false-positive ratio.
func (c *CountingBloom) ErrorRatio() float64 { return c.errorRatio }

// Bins returns the number of counters.
func (c *CountingBloom) Bins() int { return c.bins }

// Hashes returns the number of hash indexes per element.
func (c *CountingBloom) Hashes() int { return c.hashes }

// BinSize returns the saturation ceiling of each counter.
func (c *CountingBloom) BinSize() int { return c.binSize }

// BinBytes returns the width of each packed counter in octets.
func (c *CountingBloom) BinBytes() int { return c.binBytes }

func (c *CountingBloom) String() string {
	return fmt.Sprintf("Counting bloom filter with %d bins", c.bins)
}

// bin returns counter i.
func (c *CountingBloom) bin(i int) int {
	return binValue(c.bf, c.binBytes, i)
}

// setBin overwrites counter i.
func (c *CountingBloom) setBin(i, v int) {
	setBinValue(c.bf, c.binBytes, i, v)
}

// incrementBin raises counter i by amount, saturating at the bin size.
func (c *CountingBloom) incrementBin(i, amount int) bool {
	return incrementBinValue(c.bf, c.binBytes, c.binSize, i, amount)
}

// decrementBin lowers counter i by amount, saturating at 0.
func (c *CountingBloom) decrementBin(i, amount int) bool {
	return decrementBinValue(c.bf, c.binBytes, i, amount)
}

type countingBody struct {
	Capacity   int     `json:"capacity"`
	ErrorRatio float64 `json:"error_ratio"`
	Bins       int     `json:"bins"`
	Hashes     int     `json:"hashes"`
	BinSize    int     `json:"bin_size"`
	BinBytes   int     `json:"bin_bytes"`
	BF         string  `json:"bf"`
}

// Save writes the filter to path as a gzip-compressed JSON envelope.
func (c *CountingBloom) Save(path string) error {
	return saveEnvelope(path, typeCountingBloom, countingBody{
		Capacity:   c.capacity,
		ErrorRatio: c.errorRatio,
		Bins:       c.bins,
		Hashes:     c.hashes,
		BinSize:    c.binSize,
		BinBytes:   c.binBytes,
		BF:         hex.EncodeToString(c.bf),
	})
}

// Load replaces the filter's state with the one saved at path. On
// error the receiver is left unchanged.
func (c *CountingBloom) Load(path string) error {
	loaded, err := LoadCountingBloom(path)
	if err != nil {
		return err
	}
	*c = *loaded
	return nil
}

// LoadCountingBloom reads a filter previously written by Save.
func LoadCountingBloom(path string) (*CountingBloom, error) {
	raw, err := loadEnvelope(path, typeCountingBloom)
	if err != nil {
		return nil, err
	}
	var body countingBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.Wrap(ErrFormat, err.Error())
	}
	if body.Bins < 1 || body.Hashes < 1 {
		return nil, errors.Wrapf(ErrFormat, "bad parameters: bins=%d hashes=%d", body.Bins, body.Hashes)
	}
	if body.BinSize < 1 || body.BinSize > 255 || body.BinBytes != binBytesFor(body.BinSize) {
		return nil, errors.Wrapf(ErrFormat, "bad counter geometry: bin_size=%d bin_bytes=%d", body.BinSize, body.BinBytes)
	}
	bf, err := decodePayload(body.BF, body.Bins*body.BinBytes)
	if err != nil {
		return nil, err
	}
	return &CountingBloom{
		capacity:   body.Capacity,
		errorRatio: body.ErrorRatio,
		binSize:    body.BinSize,
		binBytes:   body.BinBytes,
		bins:       body.Bins,
		hashes:     body.Hashes,
		bf:         bf,
	}, nil
}

// binBytesFor returns the smallest counter width, in octets, that can
// represent binSize.
func binBytesFor(binSize int) int {
	n := 1
	for limit := 1 << 8; binSize+1 > limit; limit <<= 8 {
		n++
	}
	return n
}

// intToBytes encodes v as a little-endian unsigned integer of exactly
// n octets. Round-trips with bytesToInt for v in [0, 256^n).
func intToBytes(v, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// bytesToInt decodes a little-endian unsigned integer.
func bytesToInt(b []byte) int {
	v := 0
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | int(b[i])
	}
	return v
}

// The packed-counter helpers below operate on any counter array laid
// out as bins consecutive little-endian cells of binBytes octets.
// CountingBloom and MMCountingBloom share them.

// binValue reads counter i.
func binValue(bf []byte, binBytes, i int) int {
	return bytesToInt(bf[i*binBytes : (i+1)*binBytes])
}

// setBinValue overwrites counter i.
func setBinValue(bf []byte, binBytes, i, v int) {
	copy(bf[i*binBytes:(i+1)*binBytes], intToBytes(v, binBytes))
}

// incrementBinValue adds amount to counter i, saturating at binSize.
func incrementBinValue(bf []byte, binBytes, binSize, i, amount int) bool {
	v := binValue(bf, binBytes, i) + amount
	if v > binSize {
		v = binSize
	}
	setBinValue(bf, binBytes, i, v)
	return true
}

// decrementBinValue subtracts amount from counter i, saturating at 0.
func decrementBinValue(bf []byte, binBytes, i, amount int) bool {
	v := binValue(bf, binBytes, i) - amount
	if v < 0 {
		v = 0
	}
	setBinValue(bf, binBytes, i, v)
	return true
}
