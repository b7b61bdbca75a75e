package hash

import (
	"testing"

	"github.com/cespare/xxhash/v2"
	farm "github.com/dgryski/go-farm"
)

// Throughput of the indexed digest against common 64-bit hash
// alternatives, to keep an eye on what the murmur3 128 construction
// costs relative to the fastest single-stream hashes.

var benchKeys = [][]byte{
	[]byte("k"),
	[]byte("a-typical-cache-key"),
	make([]byte, 64),
	make([]byte, 1024),
}

var benchSink uint64

func BenchmarkDigest(b *testing.B) {
	for i := 0; i < b.N; i++ {
		benchSink = Digest(benchKeys[i%len(benchKeys)], uint32(i&7))
	}
}

func BenchmarkDigestN(b *testing.B) {
	for i := 0; i < b.N; i++ {
		digests := DigestN(benchKeys[i%len(benchKeys)], 7)
		benchSink = digests[0]
	}
}

func BenchmarkXXHash(b *testing.B) {
	for i := 0; i < b.N; i++ {
		benchSink = xxhash.Sum64(benchKeys[i%len(benchKeys)])
	}
}

func BenchmarkFarmhash(b *testing.B) {
	for i := 0; i < b.N; i++ {
		benchSink = farm.Fingerprint64(benchKeys[i%len(benchKeys)])
	}
}
