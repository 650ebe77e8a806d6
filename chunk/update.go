package chunk

// UpdateType tags an update request for batch grouping and for derived
// request expansion.
type UpdateType uint8

const (
	// UpdateBlock replaces the block id at a cell.
	UpdateBlock UpdateType = iota
	// UpdateEntity replaces (or removes, with an empty payload) an entity delta.
	UpdateEntity
	// UpdateLighting recomputes the light level at a cell.
	UpdateLighting
	// UpdatePhysics re-checks block support at a cell (neighbor notification).
	UpdatePhysics
)

func (t UpdateType) String() string {
	switch t {
	case UpdateBlock:
		return "block"
	case UpdateEntity:
		return "entity"
	case UpdateLighting:
		return "lighting"
	case UpdatePhysics:
		return "physics"
	default:
		return "unknown"
	}
}

// Update is a single mutation request against the world. The target chunk is
// derived from Pos; cross-chunk effects are always expressed as additional
// Updates targeting the neighbor's chunk, never as multi-chunk operations.
type Update struct {
	Pos  Vec3i
	Type UpdateType

	// Block is the payload for UpdateBlock.
	Block uint16
	// Entity/Data are the payload for UpdateEntity.
	Entity uint64
	Data   []byte
}

// Key returns the chunk key the update targets.
func (u Update) Key() Key { return KeyAt(u.Pos) }

// Derived expands the secondary updates a block change produces: one physics
// re-check per adjacent face (the neighbor notification) and, when the placed
// block affects light propagation, a lighting recompute at the same cell.
// Non-block updates derive nothing.
func (u Update) Derived() []Update {
	if u.Type != UpdateBlock {
		return nil
	}
	ns := FaceNeighbors(u.Pos)
	out := make([]Update, 0, len(ns)+1)
	for _, n := range ns {
		out = append(out, Update{Pos: n, Type: UpdatePhysics})
	}
	if EmitsLight(u.Block) {
		out = append(out, Update{Pos: u.Pos, Type: UpdateLighting})
	}
	return out
}
