package profusion

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/shaia/go-profusion/internal/hash"
)

// Defaults for NewScalableBloom.
const (
	// DefaultInitialSize is the bin count of the first inner filter,
	// 16 KiB of bits.
	DefaultInitialSize = 128 << 10
	// DefaultGrowthFactor multiplies the bin count of each successive
	// inner filter.
	DefaultGrowthFactor = 4
	// DefaultMaxError bounds the combined false-positive ratio across
	// all inner filters.
	DefaultMaxError = 1e-15
	// DefaultErrorDecayRate shrinks each successive inner filter's
	// error budget.
	DefaultErrorDecayRate = 0.5
)

// ScalableConfig holds the parameters of a scalable bloom filter.
// Zero fields take the package defaults.
type ScalableConfig struct {
	// InitialSize is the bin count of the first inner filter. Must be
	// greater than 0.
	InitialSize int

	// MaxError is the combined false-positive bound E. The inner
	// filters' error budgets form a geometric series summing to E, so
	// the bound holds no matter how many inner filters are spawned.
	// Must be in (0, 1).
	MaxError float64

	// ErrorDecayRate r gives inner filter i the error budget
	// (1-r)*E*r^i. Must be in (0, 1).
	ErrorDecayRate float64

	// GrowthFactor multiplies the bin count of each successive inner
	// filter. Must be at least 1.
	GrowthFactor int
}

// ScalableBloom is an ordered sequence of classic bloom filters that
// grows as insertions accumulate. New elements go into the newest
// inner filter only; membership probes consult every inner filter.
// Crossing the cumulative capacity threshold spawns the next inner
// filter with geometrically more bins and a geometrically tighter
// error budget.
type ScalableBloom struct {
	initialSize    int
	maxError       float64
	errorDecayRate float64
	growthFactor   int
	initialError   float64

	blooms    int
	elements  int
	threshold int
	binsList  []int
	hashes    []int
	bfs       [][]byte
}

// NewScalableBloom creates a scalable filter with one inner filter
// provisioned per cfg. Zero-valued cfg fields take the defaults.
func NewScalableBloom(cfg ScalableConfig) (*ScalableBloom, error) {
	if cfg.InitialSize == 0 {
		cfg.InitialSize = DefaultInitialSize
	}
	if cfg.MaxError == 0 {
		cfg.MaxError = DefaultMaxError
	}
	if cfg.ErrorDecayRate == 0 {
		cfg.ErrorDecayRate = DefaultErrorDecayRate
	}
	if cfg.GrowthFactor == 0 {
		cfg.GrowthFactor = DefaultGrowthFactor
	}

	if !(cfg.MaxError > 0 && cfg.MaxError < 1) {
		return nil, errors.Wrapf(ErrInvalidParameters, "max error must be in range (0, 1), got %v", cfg.MaxError)
	}
	if !(cfg.ErrorDecayRate > 0 && cfg.ErrorDecayRate < 1) {
		return nil, errors.Wrapf(ErrInvalidParameters, "error decay rate must be in range (0, 1), got %v", cfg.ErrorDecayRate)
	}
	if cfg.GrowthFactor < 1 {
		return nil, errors.Wrapf(ErrInvalidParameters, "growth factor must be at least 1, got %d", cfg.GrowthFactor)
	}
	if cfg.InitialSize < 0 {
		return nil, errors.Wrapf(ErrInvalidParameters, "initial size must be greater than 0, got %d", cfg.InitialSize)
	}

	s := &ScalableBloom{
		initialSize:    cfg.InitialSize,
		maxError:       cfg.MaxError,
		errorDecayRate: cfg.ErrorDecayRate,
		growthFactor:   cfg.GrowthFactor,
		initialError:   (1 - cfg.ErrorDecayRate) * cfg.MaxError,
	}
	s.grow()
	return s, nil
}

// grow appends a fresh inner filter on the next rung of the geometric
// size/error schedule and raises the scaling threshold by its
// capacity.
func (s *ScalableBloom) grow() {
	bins := s.initialSize
	errorRatio := s.initialError
	for i := 0; i < s.blooms; i++ {
		bins *= s.growthFactor
		errorRatio *= s.errorDecayRate
	}
	hashes := hashesForError(errorRatio)

	s.bfs = append(s.bfs, make([]byte, (bins+7)/8))
	s.binsList = append(s.binsList, bins)
	s.hashes = append(s.hashes, hashes)
	s.blooms++
	s.threshold += s.capacityOf(s.blooms - 1)
}

// Add inserts v into the newest inner filter, then spawns the next
// inner filter if the insert count has crossed the scaling threshold.
// The insert is complete before the scaling decision is evaluated, and
// scaling is complete before Add returns.
func (s *ScalableBloom) Add(v string) {
	s.elements++
	cur := s.blooms - 1
	data := []byte(v)
	bins := uint64(s.binsList[cur])
	bf := s.bfs[cur]
	for i := 0; i < s.hashes[cur]; i++ {
		pos := hash.Digest(data, uint32(i)) % bins
		bf[pos/8] |= 1 << (pos % 8)
	}
	if s.elements > s.threshold {
		s.grow()
	}
}

// Check reports whether any inner filter holds all of v's bits. The
// digest batch is computed once for the widest inner filter and
// sliced per inner filter, which is sound because digests are seeded
// by index alone.
func (s *ScalableBloom) Check(v string) bool {
	data := []byte(v)
	maxHashes := 0
	for _, h := range s.hashes {
		if h > maxHashes {
			maxHashes = h
		}
	}
	digests := hash.DigestN(data, maxHashes)

inner:
	for i := 0; i < s.blooms; i++ {
		bins := uint64(s.binsList[i])
		bf := s.bfs[i]
		for _, d := range digests[:s.hashes[i]] {
			pos := d % bins
			if bf[pos/8]&(1<<(pos%8)) == 0 {
				continue inner
			}
		}
		return true
	}
	return false
}

// CheckThenAdd inserts v unless it already appears present, and
// reports whether it did. Not one atomic step.
func (s *ScalableBloom) CheckThenAdd(v string) bool {
	if s.Check(v) {
		return true
	}
	s.Add(v)
	return false
}

// Contains is an alias for Check.
func (s *ScalableBloom) Contains(v string) bool {
	return s.Check(v)
}

func (s *ScalableBloom) capacityOf(i int) int {
	return int(float64(s.binsList[i]) * math.Ln2 / float64(s.hashes[i]))
}

// Capacity returns the element capacity of inner filter i.
func (s *ScalableBloom) Capacity(i int) (int, error) {
	if i < 0 || i >= s.blooms {
		return 0, errors.Wrapf(ErrOutOfRange, "bloom %d of %d", i, s.blooms)
	}
	return s.capacityOf(i), nil
}

// TotalCapacity sums the capacities of all inner filters; it equals
// Threshold.
func (s *ScalableBloom) TotalCapacity() int {
	total := 0
	for i := 0; i < s.blooms; i++ {
		total += s.capacityOf(i)
	}
	return total
}

// Saturation returns the proportion of bits set across all inner
// filters.
func (s *ScalableBloom) Saturation() float64 {
	totalBits, setBits := 0, 0
	for i := 0; i < s.blooms; i++ {
		totalBits += s.binsList[i]
		for _, octet := range s.bfs[i] {
			setBits += bits.OnesCount8(octet)
		}
	}
	return float64(setBits) / float64(totalBits)
}

// Blooms returns the number of inner filters.
func (s *ScalableBloom) Blooms() int { return s.blooms }

// Elements returns the total insert count, with multiplicity.
func (s *ScalableBloom) Elements() int { return s.elements }

// Threshold returns the cumulative capacity of the inner filters
// spawned so far; crossing it triggers the next growth step.
func (s *ScalableBloom) Threshold() int { return s.threshold }

// InitialSize returns the bin count of the first inner filter.
func (s *ScalableBloom) InitialSize() int { return s.initialSize }

// MaxError returns the combined false-positive bound.
func (s *ScalableBloom) MaxError() float64 { return s.maxError }

// ErrorDecayRate returns the per-rung error decay.
func (s *ScalableBloom) ErrorDecayRate() float64 { return s.errorDecayRate }

// GrowthFactor returns the per-rung size multiplier.
func (s *ScalableBloom) GrowthFactor() int { return s.growthFactor }

// InitialError returns the error budget of the first inner filter,
// (1-r)*E.
func (s *ScalableBloom) InitialError() float64 { return s.initialError }

func (s *ScalableBloom) String() string {
	totalBits := 0
	for _, bins := range s.binsList {
		totalBits += bins
	}
	return fmt.Sprintf("Scalable bloom filter with %d bits", totalBits)
}

type scalableBody struct {
	Blooms         int     `json:"blooms"`
	Threshold      int     `json:"threshold"`
	Elements       int     `json:"elements"`
	MaxError       float64 `json:"max_error"`
	ErrorDecayRate float64 `json:"error_decay_rate"`
	InitialSize    int     `json:"initial_size"`
	GrowthFactor   int     `json:"growth_factor"`
	// BloomsList carries the per-inner bin counts; the wire name is
	// historical and must not change.
	BloomsList []int    `json:"blooms_list"`
	Hashes     []int    `json:"hashes"`
	BFs        []string `json:"bfs"`
}

// Save writes the filter to path as a gzip-compressed JSON envelope.
func (s *ScalableBloom) Save(path string) error {
	bfs := make([]string, s.blooms)
	for i, bf := range s.bfs {
		bfs[i] = hex.EncodeToString(bf)
	}
	return saveEnvelope(path, typeScalableBloom, scalableBody{
		Blooms:         s.blooms,
		Threshold:      s.threshold,
		Elements:       s.elements,
		MaxError:       s.maxError,
		ErrorDecayRate: s.errorDecayRate,
		InitialSize:    s.initialSize,
		GrowthFactor:   s.growthFactor,
		BloomsList:     s.binsList,
		Hashes:         s.hashes,
		BFs:            bfs,
	})
}

// Load replaces the filter's state with the one saved at path. On
// error the receiver is left unchanged.
func (s *ScalableBloom) Load(path string) error {
	loaded, err := LoadScalableBloom(path)
	if err != nil {
		return err
	}
	*s = *loaded
	return nil
}

// LoadScalableBloom reads a filter previously written by Save.
func LoadScalableBloom(path string) (*ScalableBloom, error) {
	raw, err := loadEnvelope(path, typeScalableBloom)
	if err != nil {
		return nil, err
	}
	var body scalableBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.Wrap(ErrFormat, err.Error())
	}
	if body.Blooms < 1 ||
		len(body.BloomsList) != body.Blooms ||
		len(body.Hashes) != body.Blooms ||
		len(body.BFs) != body.Blooms {
		return nil, errors.Wrapf(ErrFormat, "inconsistent inner filter count: blooms=%d", body.Blooms)
	}
	if !(body.MaxError > 0 && body.MaxError < 1) ||
		!(body.ErrorDecayRate > 0 && body.ErrorDecayRate < 1) ||
		body.GrowthFactor < 1 || body.InitialSize < 1 {
		return nil, errors.Wrap(ErrFormat, "bad scalable parameters")
	}

	bfs := make([][]byte, body.Blooms)
	for i, payload := range body.BFs {
		if body.BloomsList[i] < 1 || body.Hashes[i] < 1 {
			return nil, errors.Wrapf(ErrFormat, "bad inner filter %d: bins=%d hashes=%d", i, body.BloomsList[i], body.Hashes[i])
		}
		bf, err := decodeBitArray(payload, body.BloomsList[i])
		if err != nil {
			return nil, err
		}
		bfs[i] = bf
	}

	return &ScalableBloom{
		initialSize:    body.InitialSize,
		maxError:       body.MaxError,
		errorDecayRate: body.ErrorDecayRate,
		growthFactor:   body.GrowthFactor,
		initialError:   (1 - body.ErrorDecayRate) * body.MaxError,
		blooms:         body.Blooms,
		elements:       body.Elements,
		threshold:      body.Threshold,
		binsList:       body.BloomsList,
		hashes:         body.Hashes,
		bfs:            bfs,
	}, nil
}
