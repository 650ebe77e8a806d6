package store

import (
	"context"

	"github.com/IvanBrykalov/chunkstream/chunk"
)

// Generator produces deterministic chunks from a seed: same seed, same key,
// same chunk, on every machine. It stands in for the real world-generation
// collaborator in benchmarks and tests.
type Generator struct {
	Seed int64

	// SurfaceY is the height of the solid column (default 4).
	SurfaceY int
}

// Load fills a chunk column-by-column: stone below the surface, a hashed
// surface block on top, with ore sprinkled into the stone.
// The signature matches cache.Loader.
func (g Generator) Load(_ context.Context, k chunk.Key) (*chunk.Chunk, error) {
	surface := g.SurfaceY
	if surface <= 0 {
		surface = 4
	}
	if surface >= chunk.Height {
		surface = chunk.Height - 1
	}

	c := chunk.New(k)
	for z := 0; z < chunk.Size; z++ {
		for x := 0; x < chunk.Size; x++ {
			wx := k.X*chunk.Size + x
			wz := k.Z*chunk.Size + z
			h := cellHash(g.Seed, wx, wz)

			for y := 0; y < surface; y++ {
				b := chunk.Stone
				// Sparse ore: ~3% of sub-surface cells, picked by a
				// per-cell hash so regeneration is stable.
				if (h>>uint(y%32))%33 == 0 {
					b = chunk.Gravel
				}
				c.SetBlock(chunk.Vec3i{X: wx, Y: y, Z: wz}, b)
			}

			top := chunk.Grass
			switch h % 7 {
			case 0:
				top = chunk.Sand
			case 1:
				top = chunk.Dirt
			}
			c.SetBlock(chunk.Vec3i{X: wx, Y: surface, Z: wz}, top)
		}
	}
	return c, nil
}

// cellHash mixes the seed and a world coordinate pair with splitmix64-style
// rounds. Cheap, stateless, stable across runs.
func cellHash(seed int64, x, z int) uint64 {
	h := uint64(seed) ^ 0x9e3779b97f4a7c15
	h = mix(h ^ uint64(int64(x)))
	h = mix(h ^ uint64(int64(z)))
	return h
}

func mix(h uint64) uint64 {
	h ^= h >> 30
	h *= 0xbf58476d1ce4e5b9
	h ^= h >> 27
	h *= 0x94d049bb133111eb
	h ^= h >> 31
	return h
}
