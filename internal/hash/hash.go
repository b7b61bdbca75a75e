// Package hash derives the per-index digest streams shared by every
// filter variant. Digests must be stable across runs and platforms:
// serialized filters are re-read with the positions they produced.
package hash

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// Digest returns the 64-bit digest of data for hash index i.
// The index is mixed in by prepending its 4-octet big-endian encoding
// to the key before hashing, so each index yields an independent
// digest stream over the same key.
func Digest(data []byte, i uint32) uint64 {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], i)

	h := murmur3.New128()
	h.Write(prefix[:]) // never fails
	h.Write(data)
	d, _ := h.Sum128()
	return d
}

// DigestN materializes the digests of data for indexes [0, n).
func DigestN(data []byte, n int) []uint64 {
	digests := make([]uint64, n)
	for i := range digests {
		digests[i] = Digest(data, uint32(i))
	}
	return digests
}
