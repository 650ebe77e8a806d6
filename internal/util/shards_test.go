package util

import "testing"

func TestNextPow2(t *testing.T) {
	cases := map[uint64]uint64{
		0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 8: 8, 1000: 1024,
	}
	for in, want := range cases {
		if got := NextPow2(in); got != want {
			t.Errorf("NextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestShardIndex(t *testing.T) {
	for _, shards := range []int{1, 2, 16, 7} {
		for h := uint64(0); h < 1000; h += 13 {
			idx := ShardIndex(h, shards)
			if idx < 0 || idx >= shards {
				t.Fatalf("ShardIndex(%d, %d) = %d out of range", h, shards, idx)
			}
		}
	}
	// Power-of-two counts take the mask path and must agree with modulo.
	if got, want := ShardIndex(0xdeadbeef, 16), int(uint64(0xdeadbeef)%16); got != want {
		t.Fatalf("mask path diverges from modulo: %d vs %d", got, want)
	}
}

func TestHashPair_Distribution(t *testing.T) {
	seen := make(map[uint64]bool)
	for x := -8; x < 8; x++ {
		for z := -8; z < 8; z++ {
			seen[HashPair(x, z)] = true
		}
	}
	if len(seen) != 256 {
		t.Fatalf("HashPair collided on a 16x16 grid: %d unique of 256", len(seen))
	}
	if HashPair(1, 2) == HashPair(2, 1) {
		t.Fatal("HashPair must not be symmetric in its arguments")
	}
}
