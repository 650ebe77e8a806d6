// Package util contains internal helpers (hashing, sharding, padding).
package util

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

// HashPair hashes a coordinate pair with 64-bit FNV-1a over the
// little-endian bytes of both values. Chunk keys are dense around the
// origin, so hashing the raw bytes (rather than xor-folding the ints)
// keeps neighboring chunks on different shards.
func HashPair(x, z int) uint64 {
	h := uint64(fnvOffset64)
	h = mixUint64(h, uint64(int64(x)))
	h = mixUint64(h, uint64(int64(z)))
	return h
}

// mixUint64 folds the 8 little-endian bytes of u into h without allocating.
func mixUint64(h, u uint64) uint64 {
	for i := 0; i < 8; i++ {
		h ^= uint64(byte(u))
		h *= fnvPrime64
		u >>= 8
	}
	return h
}
