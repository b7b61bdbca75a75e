package profusion

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestMMCountingBloom(t *testing.T) *MMCountingBloom {
	t.Helper()
	c, err := NewMMCountingBloom("test_bloom", t.TempDir(), 1000, 0.01, 10)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// TestMMCountingBloomInitialization verifies construction creates a
// correctly sized counter file.
func TestMMCountingBloomInitialization(t *testing.T) {
	c := newTestMMCountingBloom(t)

	require.Equal(t, "test_bloom", c.Name())
	require.Equal(t, 1000, c.Capacity())
	require.Equal(t, 0.01, c.ErrorRatio())
	require.Equal(t, 10, c.BinSize())
	require.Equal(t, 1, c.BinBytes())

	info, err := os.Stat(c.Path())
	require.NoError(t, err)
	require.Equal(t, int64(c.Bins()*c.BinBytes()), info.Size())
}

// TestMMCountingBloomAddAndCheck verifies the membership contract
// matches the in-memory counting variant.
func TestMMCountingBloomAddAndCheck(t *testing.T) {
	c := newTestMMCountingBloom(t)

	require.True(t, c.Add("test_element", 1))
	require.True(t, c.Check("test_element", 1))
	require.False(t, c.Check("non_existent_element", 1))
	require.True(t, c.Contains("test_element"))
	require.False(t, c.Contains("non_existent_element"))
}

// TestMMCountingBloomValue verifies amounts accumulate and the
// trigger comparison works.
func TestMMCountingBloomValue(t *testing.T) {
	c := newTestMMCountingBloom(t)

	c.Add("test_element", 3)
	require.Equal(t, 3, c.Value("test_element"))
	require.Equal(t, 0, c.Value("non_existent_element"))

	c.Add("test_element", 2)
	require.Equal(t, 5, c.Value("test_element"))
	require.True(t, c.Check("test_element", 2))
	require.True(t, c.Check("test_element", 5))
	require.False(t, c.Check("test_element", 6))
}

// TestMMCountingBloomBinSizeLimit verifies counters saturate at the
// bin size.
func TestMMCountingBloomBinSizeLimit(t *testing.T) {
	c := newTestMMCountingBloom(t)

	c.Add("test_element", c.BinSize()+10)
	require.Equal(t, c.BinSize(), c.Value("test_element"))
}

// TestMMCountingBloomDecrement verifies decrements floor at zero.
func TestMMCountingBloomDecrement(t *testing.T) {
	c := newTestMMCountingBloom(t)

	c.Add("test_element", 5)
	c.Decrement("test_element", 2)
	require.Equal(t, 3, c.Value("test_element"))
	c.Decrement("test_element", 10)
	require.Equal(t, 0, c.Value("test_element"))
}

// TestMMCountingBloomZero verifies a full reset.
func TestMMCountingBloomZero(t *testing.T) {
	c := newTestMMCountingBloom(t)

	c.Add("test_element", 5)
	c.Zero()
	require.Equal(t, 0, c.Value("test_element"))
}

// TestMMCountingBloomPersistence verifies counters survive a close
// and reopen of the same name and directory.
func TestMMCountingBloomPersistence(t *testing.T) {
	dir := t.TempDir()

	c, err := NewMMCountingBloom("persistent", dir, 1000, 0.01, 10)
	require.NoError(t, err)
	c.Add("test_element", 7)
	require.NoError(t, c.Close())

	reopened, err := NewMMCountingBloom("persistent", dir, 1000, 0.01, 10)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, 7, reopened.Value("test_element"))
	require.True(t, reopened.Contains("test_element"))
}

// TestMMCountingBloomClose verifies close is idempotent and further
// adds are rejected.
func TestMMCountingBloomClose(t *testing.T) {
	c, err := NewMMCountingBloom("closing", t.TempDir(), 1000, 0.01, 10)
	require.NoError(t, err)

	require.True(t, c.Add("test_element", 1))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.False(t, c.Add("test_element", 1))
}

// TestMMCountingBloomFlush verifies flushed counters are visible in
// the backing file.
func TestMMCountingBloomFlush(t *testing.T) {
	c := newTestMMCountingBloom(t)

	c.Add("test_element", 3)
	require.NoError(t, c.Flush())

	blob, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	total := 0
	for _, octet := range blob {
		total += int(octet)
	}
	require.GreaterOrEqual(t, total, 3*c.Hashes()/2) // counters landed on disk
}

// TestMMCountingBloomInvalidParameters verifies the counting
// validation set applies.
func TestMMCountingBloomInvalidParameters(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name       string
		capacity   int
		errorRatio float64
		binSize    int
	}{
		{"Zero bin size", 1000, 0.01, 0},
		{"Bin size above 255", 1000, 0.01, 256},
		{"Zero capacity", 0, 0.01, 10},
		{"Zero error ratio", 1000, 0, 10},
		{"Error ratio of one", 1000, 1, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewMMCountingBloom("invalid", dir, tc.capacity, tc.errorRatio, tc.binSize)
			require.Nil(t, c)
			require.ErrorIs(t, err, ErrInvalidParameters)
		})
	}
}

// TestMMCountingBloomBadDir verifies an unusable directory surfaces
// an IO error.
func TestMMCountingBloomBadDir(t *testing.T) {
	c, err := NewMMCountingBloom("orphan", "/no/such/directory", 1000, 0.01, 10)
	require.Nil(t, c)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidParameters)
}
