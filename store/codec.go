package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/IvanBrykalov/chunkstream/chunk"
)

// Blob format: a version byte followed by the chunk fields in little-endian
// order, the whole payload zstd-compressed. Entities are written in id order
// so encoding is deterministic for a given chunk state.
const codecVersion = 1

var errCorrupt = errors.New("store: corrupt chunk blob")

// Shared zstd coders; both are safe for concurrent use via EncodeAll/DecodeAll.
var (
	zenc, _ = zstd.NewWriter(nil)
	zdec, _ = zstd.NewReader(nil)
)

// Encode serializes and compresses a chunk.
func Encode(c *chunk.Chunk) []byte {
	raw := make([]byte, 0, 1+16+len(c.Blocks)*2+len(c.Light))
	raw = append(raw, codecVersion)
	raw = binary.LittleEndian.AppendUint64(raw, uint64(int64(c.Key.X)))
	raw = binary.LittleEndian.AppendUint64(raw, uint64(int64(c.Key.Z)))

	raw = binary.LittleEndian.AppendUint32(raw, uint32(len(c.Blocks)))
	for _, b := range c.Blocks {
		raw = binary.LittleEndian.AppendUint16(raw, b)
	}
	raw = binary.LittleEndian.AppendUint32(raw, uint32(len(c.Light)))
	raw = append(raw, c.Light...)

	ids := make([]uint64, 0, len(c.Entities))
	for id := range c.Entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	raw = binary.LittleEndian.AppendUint32(raw, uint32(len(ids)))
	for _, id := range ids {
		d := c.Entities[id]
		raw = binary.LittleEndian.AppendUint64(raw, id)
		raw = binary.LittleEndian.AppendUint32(raw, uint32(len(d)))
		raw = append(raw, d...)
	}

	return zenc.EncodeAll(raw, make([]byte, 0, len(raw)/4))
}

// Decode decompresses and deserializes a chunk blob produced by Encode.
func Decode(blob []byte) (*chunk.Chunk, error) {
	raw, err := zdec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("store: decompress chunk: %w", err)
	}
	r := reader{buf: raw}

	ver, err := r.byte()
	if err != nil {
		return nil, err
	}
	if ver != codecVersion {
		return nil, fmt.Errorf("store: unsupported chunk blob version %d", ver)
	}

	x, err := r.uint64()
	if err != nil {
		return nil, err
	}
	z, err := r.uint64()
	if err != nil {
		return nil, err
	}
	c := &chunk.Chunk{
		Key:      chunk.Key{X: int(int64(x)), Z: int(int64(z))},
		Entities: make(map[uint64][]byte),
	}

	nb, err := r.uint32()
	if err != nil {
		return nil, err
	}
	c.Blocks = make([]uint16, nb)
	for i := range c.Blocks {
		v, err := r.uint16()
		if err != nil {
			return nil, err
		}
		c.Blocks[i] = v
	}

	nl, err := r.uint32()
	if err != nil {
		return nil, err
	}
	light, err := r.bytes(int(nl))
	if err != nil {
		return nil, err
	}
	c.Light = append([]uint8(nil), light...)

	ne, err := r.uint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < ne; i++ {
		id, err := r.uint64()
		if err != nil {
			return nil, err
		}
		dl, err := r.uint32()
		if err != nil {
			return nil, err
		}
		d, err := r.bytes(int(dl))
		if err != nil {
			return nil, err
		}
		c.Entities[id] = append([]byte(nil), d...)
	}
	return c, nil
}

// reader is a bounds-checked cursor over the decompressed payload.
type reader struct {
	buf []byte
	off int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, errCorrupt
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) byte() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}
