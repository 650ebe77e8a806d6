// Package chunk holds the spatial data model shared by the cache and the
// batch scheduler: chunk keys, world/chunk coordinate math, the chunk value
// type, and the update requests applied against it.
package chunk

// Block palette. The pipeline does not own a full block catalog; it only
// needs stable ids plus light emission for derived-request expansion.
const (
	Air uint16 = iota
	Stone
	Dirt
	Grass
	Sand
	Gravel
	Log
	Glowstone
	Torch
)

// Emission returns the light level a block type radiates (0 for most).
func Emission(b uint16) uint8 {
	switch b {
	case Glowstone:
		return 15
	case Torch:
		return 14
	default:
		return 0
	}
}

// EmitsLight reports whether placing or removing b affects light propagation.
func EmitsLight(b uint16) bool { return Emission(b) > 0 }

// volume is the number of cells in one chunk.
const volume = Size * Size * Height

// Chunk is the cached value for one Key: a dense block volume, a light map,
// and the opaque entity deltas resident in the column.
//
// A Chunk is not safe for concurrent mutation; the scheduler applies updates
// to a private copy and publishes the result through the cache.
type Chunk struct {
	Key    Key
	Blocks []uint16 // len = Size*Size*Height, x fastest, then z, then y
	Light  []uint8  // same layout as Blocks
	// Entities maps entity id to its latest opaque delta payload.
	Entities map[uint64][]byte
}

// New returns an empty (all-air) chunk for the given key.
func New(k Key) *Chunk {
	return &Chunk{
		Key:      k,
		Blocks:   make([]uint16, volume),
		Light:    make([]uint8, volume),
		Entities: make(map[uint64][]byte),
	}
}

// index maps chunk-local coordinates to the dense array offset.
// x fastest, then z, then y.
func index(x, y, z int) int { return x + z*Size + y*Size*Size }

// BlockAt returns the block id at a world-space position inside this chunk.
// Out-of-bounds vertical positions read as Air.
func (c *Chunk) BlockAt(p Vec3i) uint16 {
	if !InBounds(p) {
		return Air
	}
	x, y, z := Local(p)
	return c.Blocks[index(x, y, z)]
}

// SetBlock writes the block id at a world-space position inside this chunk.
// Out-of-bounds writes are ignored.
func (c *Chunk) SetBlock(p Vec3i, b uint16) {
	if !InBounds(p) {
		return
	}
	x, y, z := Local(p)
	c.Blocks[index(x, y, z)] = b
}

// LightAt returns the stored light level at a world-space position.
func (c *Chunk) LightAt(p Vec3i) uint8 {
	if !InBounds(p) {
		return 0
	}
	x, y, z := Local(p)
	return c.Light[index(x, y, z)]
}

// SetLight writes the light level at a world-space position.
func (c *Chunk) SetLight(p Vec3i, l uint8) {
	if !InBounds(p) {
		return
	}
	x, y, z := Local(p)
	c.Light[index(x, y, z)] = l
}

// Clone returns a deep copy. The scheduler mutates the copy and writes it
// back in one step so readers never observe a half-applied batch.
func (c *Chunk) Clone() *Chunk {
	cp := &Chunk{
		Key:      c.Key,
		Blocks:   make([]uint16, len(c.Blocks)),
		Light:    make([]uint8, len(c.Light)),
		Entities: make(map[uint64][]byte, len(c.Entities)),
	}
	copy(cp.Blocks, c.Blocks)
	copy(cp.Light, c.Light)
	for id, d := range c.Entities {
		nd := make([]byte, len(d))
		copy(nd, d)
		cp.Entities[id] = nd
	}
	return cp
}

// Apply mutates the chunk with a single update. Callers are responsible for
// ordering: within one batch, updates are applied in submission order, so a
// later write to the same cell wins.
func (c *Chunk) Apply(u Update) {
	switch u.Type {
	case UpdateBlock:
		c.SetBlock(u.Pos, u.Block)
	case UpdateLighting:
		// Recompute emission at the cell from whatever block is there now.
		c.SetLight(u.Pos, Emission(c.BlockAt(u.Pos)))
	case UpdateEntity:
		if len(u.Data) == 0 {
			delete(c.Entities, u.Entity)
			return
		}
		d := make([]byte, len(u.Data))
		copy(d, u.Data)
		c.Entities[u.Entity] = d
	case UpdatePhysics:
		c.settle(u.Pos)
	}
}

// settle applies the single-step support rule for granular blocks:
// sand and gravel fall one cell when unsupported. One step per request keeps
// batches bounded; continued falling arrives as further derived requests.
func (c *Chunk) settle(p Vec3i) {
	b := c.BlockAt(p)
	if b != Sand && b != Gravel {
		return
	}
	below := p.Add(Vec3i{Y: -1})
	if !InBounds(below) || c.BlockAt(below) != Air {
		return
	}
	c.SetBlock(p, Air)
	c.SetBlock(below, b)
}
