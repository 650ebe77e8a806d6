package chunk

import "testing"

// Floor division must map negative world coordinates into negative chunks
// (x=-1 belongs to chunk -1, not chunk 0).
func TestKeyAt_NegativeCoords(t *testing.T) {
	t.Parallel()

	cases := []struct {
		pos  Vec3i
		want Key
	}{
		{Vec3i{X: 0, Z: 0}, Key{0, 0}},
		{Vec3i{X: 15, Z: 15}, Key{0, 0}},
		{Vec3i{X: 16, Z: 0}, Key{1, 0}},
		{Vec3i{X: -1, Z: 0}, Key{-1, 0}},
		{Vec3i{X: -16, Z: -16}, Key{-1, -1}},
		{Vec3i{X: -17, Z: 31}, Key{-2, 1}},
	}
	for _, c := range cases {
		if got := KeyAt(c.pos); got != c.want {
			t.Fatalf("KeyAt(%v) = %v, want %v", c.pos, got, c.want)
		}
	}
}

func TestLocal_WrapsNegatives(t *testing.T) {
	t.Parallel()

	x, y, z := Local(Vec3i{X: -1, Y: 5, Z: -16})
	if x != 15 || y != 5 || z != 0 {
		t.Fatalf("Local(-1,5,-16) = (%d,%d,%d), want (15,5,0)", x, y, z)
	}
}

// Vertical faces outside the chunk volume must be clipped: a block at y=0
// has 5 neighbors, not 6.
func TestFaceNeighbors_ClipsVertical(t *testing.T) {
	t.Parallel()

	if got := len(FaceNeighbors(Vec3i{X: 3, Y: 10, Z: 3})); got != 6 {
		t.Fatalf("interior cell: %d neighbors, want 6", got)
	}
	if got := len(FaceNeighbors(Vec3i{X: 3, Y: 0, Z: 3})); got != 5 {
		t.Fatalf("floor cell: %d neighbors, want 5", got)
	}
	if got := len(FaceNeighbors(Vec3i{X: 3, Y: Height - 1, Z: 3})); got != 5 {
		t.Fatalf("ceiling cell: %d neighbors, want 5", got)
	}
}

func TestChunk_SetGetBlock(t *testing.T) {
	t.Parallel()

	c := New(Key{1, -1})
	p := Vec3i{X: 16, Y: 3, Z: -16} // inside chunk (1,-1)
	c.SetBlock(p, Stone)
	if got := c.BlockAt(p); got != Stone {
		t.Fatalf("BlockAt = %d, want Stone", got)
	}
	// Out-of-bounds writes are ignored, reads see air.
	c.SetBlock(Vec3i{X: 16, Y: -1, Z: -16}, Stone)
	if got := c.BlockAt(Vec3i{X: 16, Y: -1, Z: -16}); got != Air {
		t.Fatalf("out-of-bounds read = %d, want Air", got)
	}
}

// Applying updates in order must make the last write win.
func TestChunk_Apply_LastWriteWins(t *testing.T) {
	t.Parallel()

	c := New(Key{0, 0})
	p := Vec3i{X: 4, Y: 8, Z: 4}
	for _, b := range []uint16{Stone, Sand, Glowstone} {
		c.Apply(Update{Pos: p, Type: UpdateBlock, Block: b})
	}
	if got := c.BlockAt(p); got != Glowstone {
		t.Fatalf("final block = %d, want Glowstone", got)
	}
}

func TestChunk_Apply_Entity(t *testing.T) {
	t.Parallel()

	c := New(Key{0, 0})
	p := Vec3i{X: 1, Y: 1, Z: 1}
	c.Apply(Update{Pos: p, Type: UpdateEntity, Entity: 42, Data: []byte{1, 2}})
	if got := c.Entities[42]; len(got) != 2 || got[0] != 1 {
		t.Fatalf("entity delta = %v", got)
	}
	// Empty payload removes the entity.
	c.Apply(Update{Pos: p, Type: UpdateEntity, Entity: 42})
	if _, ok := c.Entities[42]; ok {
		t.Fatal("entity must be removed by empty delta")
	}
}

func TestChunk_Apply_Lighting(t *testing.T) {
	t.Parallel()

	c := New(Key{0, 0})
	p := Vec3i{X: 2, Y: 2, Z: 2}
	c.Apply(Update{Pos: p, Type: UpdateBlock, Block: Glowstone})
	c.Apply(Update{Pos: p, Type: UpdateLighting})
	if got := c.LightAt(p); got != Emission(Glowstone) {
		t.Fatalf("light = %d, want %d", got, Emission(Glowstone))
	}

	// Replacing with a non-luminous block and recomputing zeroes the cell.
	c.Apply(Update{Pos: p, Type: UpdateBlock, Block: Stone})
	c.Apply(Update{Pos: p, Type: UpdateLighting})
	if got := c.LightAt(p); got != 0 {
		t.Fatalf("light after stone = %d, want 0", got)
	}
}

// Physics re-check: unsupported sand falls exactly one cell per request.
func TestChunk_Apply_PhysicsSettle(t *testing.T) {
	t.Parallel()

	c := New(Key{0, 0})
	p := Vec3i{X: 5, Y: 10, Z: 5}
	c.SetBlock(p, Sand)

	c.Apply(Update{Pos: p, Type: UpdatePhysics})
	if got := c.BlockAt(p); got != Air {
		t.Fatalf("origin = %d, want Air", got)
	}
	if got := c.BlockAt(p.Add(Vec3i{Y: -1})); got != Sand {
		t.Fatalf("below = %d, want Sand", got)
	}

	// Supported stone does not move.
	q := Vec3i{X: 6, Y: 0, Z: 5}
	c.SetBlock(q, Stone)
	c.Apply(Update{Pos: q, Type: UpdatePhysics})
	if got := c.BlockAt(q); got != Stone {
		t.Fatalf("stone moved: %d", got)
	}
}

func TestChunk_Clone_Independent(t *testing.T) {
	t.Parallel()

	c := New(Key{0, 0})
	p := Vec3i{X: 0, Y: 0, Z: 0}
	c.SetBlock(p, Stone)
	c.Entities[7] = []byte{9}

	cp := c.Clone()
	cp.SetBlock(p, Sand)
	cp.Entities[7][0] = 1

	if c.BlockAt(p) != Stone {
		t.Fatal("clone write leaked into original blocks")
	}
	if c.Entities[7][0] != 9 {
		t.Fatal("clone write leaked into original entities")
	}
}

// Block updates derive one physics re-check per in-bounds neighbor, plus a
// lighting recompute when the block emits light. Other types derive nothing.
func TestUpdate_Derived(t *testing.T) {
	t.Parallel()

	u := Update{Pos: Vec3i{X: 1, Y: 10, Z: 1}, Type: UpdateBlock, Block: Stone}
	if got := len(u.Derived()); got != 6 {
		t.Fatalf("stone derived %d, want 6", got)
	}

	u.Block = Torch
	d := u.Derived()
	if got := len(d); got != 7 {
		t.Fatalf("torch derived %d, want 7", got)
	}
	last := d[len(d)-1]
	if last.Type != UpdateLighting || last.Pos != u.Pos {
		t.Fatalf("last derived = %+v, want lighting at origin", last)
	}

	for _, typ := range []UpdateType{UpdateEntity, UpdateLighting, UpdatePhysics} {
		if got := len(Update{Pos: u.Pos, Type: typ}.Derived()); got != 0 {
			t.Fatalf("%v derived %d, want 0", typ, got)
		}
	}
}

// Neighbor notifications for an edge block must target the adjacent chunk.
func TestUpdate_Derived_CrossChunk(t *testing.T) {
	t.Parallel()

	u := Update{Pos: Vec3i{X: 0, Y: 10, Z: 8}, Type: UpdateBlock, Block: Stone}
	crossed := false
	for _, d := range u.Derived() {
		if d.Key() == (Key{-1, 0}) {
			crossed = true
		}
	}
	if !crossed {
		t.Fatal("edge block must notify the neighboring chunk")
	}
}
