package profusion

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/shaia/go-profusion/internal/hash"
)

// mmapFileExt is the extension of the counter file backing an
// MMCountingBloom, appended to the filter's name.
const mmapFileExt = ".mmcb"

// MMCountingBloom is a counting bloom filter whose counter array is a
// memory-mapped file, so counters flushed to disk survive process
// restarts. Reopening the same name and directory with the same
// parameters observes the previously flushed counters. The file holds
// the raw packed counter array and nothing else; it is not part of the
// JSON envelope format.
type MMCountingBloom struct {
	name       string
	dir        string
	capacity   int
	errorRatio float64
	binSize    int
	binBytes   int
	bins       int
	hashes     int

	f    *os.File
	data mmap.MMap
}

// NewMMCountingBloom opens (creating if needed) the counter file for
// name inside dir and maps it read-write.
func NewMMCountingBloom(name, dir string, capacity int, errorRatio float64, binSize int) (*MMCountingBloom, error) {
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

	path := filepath.Join(dir, name+mmapFileExt)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open counter file")
	}
	if err := f.Truncate(int64(bins * binBytes)); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "size counter file")
	}
	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "map counter file")
	}

	return &MMCountingBloom{
		name:       name,
		dir:        dir,
		capacity:   capacity,
		errorRatio: errorRatio,
		binSize:    binSize,
		binBytes:   binBytes,
		bins:       bins,
		hashes:     hashes,
		f:          f,
		data:       data,
	}, nil
}

// Add raises each of s's counters by amount, saturating at the bin
// size. Reports whether the backing map is still open.
func (c *MMCountingBloom) Add(s string, amount int) bool {
	if c.data == nil {
		return false
	}
	data := []byte(s)
	for i := 0; i < c.hashes; i++ {
		pos := int(hash.Digest(data, uint32(i)) % uint64(c.bins))
		incrementBinValue(c.data, c.binBytes, c.binSize, pos, amount)
	}
	return true
}

// Value returns the minimum of s's counters.
func (c *MMCountingBloom) Value(s string) int {
	data := []byte(s)
	value := 0
	for i := 0; i < c.hashes; i++ {
		pos := int(hash.Digest(data, uint32(i)) % uint64(c.bins))
		if v := binValue(c.data, c.binBytes, pos); i == 0 || v < value {
			value = v
		}
	}
	return value
}

// Check reports whether s's value has reached trigger.
func (c *MMCountingBloom) Check(s string, trigger int) bool {
	return c.Value(s) >= trigger
}

// Contains is Check with a trigger of 1.
func (c *MMCountingBloom) Contains(s string) bool {
	return c.Check(s, 1)
}

// Decrement lowers each of s's counters by amount, saturating at 0.
func (c *MMCountingBloom) Decrement(s string, amount int) {
	if c.data == nil {
		return
	}
	data := []byte(s)
	for i := 0; i < c.hashes; i++ {
		pos := int(hash.Digest(data, uint32(i)) % uint64(c.bins))
		decrementBinValue(c.data, c.binBytes, pos, amount)
	}
}

// Zero resets every counter to 0.
func (c *MMCountingBloom) Zero() {
	clear(c.data)
}

// Flush synchronizes the mapped counters with the backing file.
func (c *MMCountingBloom) Flush() error {
	return errors.Wrap(c.data.Flush(), "flush counter file")
}

// Close flushes, unmaps and closes the backing file. A second call is
// a no-op; further mutations through the filter are rejected.
func (c *MMCountingBloom) Close() error {
	if c.data == nil {
		return nil
	}
	flushErr := c.data.Flush()
	unmapErr := c.data.Unmap()
	closeErr := c.f.Close()
	c.data = nil
	c.f = nil
	if flushErr != nil {
		return errors.Wrap(flushErr, "flush counter file")
	}
	if unmapErr != nil {
		return errors.Wrap(unmapErr, "unmap counter file")
	}
	return errors.Wrap(closeErr, "close counter file")
}

// Name returns the filter's name, which the counter file name derives
// from.
func (c *MMCountingBloom) Name() string { return c.name }

// Dir returns the directory holding the counter file.
func (c *MMCountingBloom) Dir() string { return c.dir }

// Path returns the location of the counter file.
func (c *MMCountingBloom) Path() string {
	return filepath.Join(c.dir, c.name+mmapFileExt)
}

// Capacity returns the expected element count the filter was
// provisioned for.
func (c *MMCountingBloom) Capacity() int { return c.capacity }

// ErrorRatio returns the target false-positive ratio.
func (c *MMCountingBloom) ErrorRatio() float64 { return c.errorRatio }

// Bins returns the number of counters.
func (c *MMCountingBloom) Bins() int { return c.bins }

// Hashes returns the number of hash indexes per element.
func (c *MMCountingBloom) Hashes() int { return c.hashes }

// BinSize returns the saturation ceiling of each counter.
func (c *MMCountingBloom) BinSize() int { return c.binSize }

// BinBytes returns the width of each packed counter in octets.
func (c *MMCountingBloom) BinBytes() int { return c.binBytes }

func (c *MMCountingBloom) String() string {
	return fmt.Sprintf("Memory-mapped counting bloom filter with %d bins", c.bins)
}
