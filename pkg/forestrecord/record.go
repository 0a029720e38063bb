// Package forestrecord encodes the two record shapes persisted in the
// KV store: raw item vectors and forest tree nodes (leaf or internal).
// Layout mirrors the teacher's pkg/hnsw/serialize.go header-then-fields
// shape, using the teacher's pkg/encoding varint codec for compact
// integer fields instead of fixed-width ints everywhere.
package forestrecord

import (
	"encoding/binary"
	"math"

	"annforest/pkg/encoding"
	"annforest/pkg/errs"
)

// VectorRecord is a single raw item: its id and its feature vector.
type VectorRecord struct {
	ID   int32
	Data []float32
}

// EncodeVector serializes v as [id int32 LE][dim varint][data[dim] float32 LE].
func EncodeVector(v VectorRecord) []byte {
	dim := len(v.Data)
	buf := make([]byte, 4+binary.MaxVarintLen64+dim*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(v.ID))
	n := encoding.PutVarint(buf[4:], uint64(dim))
	off := 4 + n
	for _, f := range v.Data {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(f))
		off += 4
	}
	return buf[:off]
}

// DecodeVector parses a VectorRecord, returning errs.ErrCorruptRecord on
// any length mismatch rather than panicking on attacker-controlled bytes.
func DecodeVector(buf []byte) (VectorRecord, error) {
	if len(buf) < 5 {
		return VectorRecord{}, errs.ErrCorruptRecord
	}
	id := int32(binary.LittleEndian.Uint32(buf[0:4]))
	dim64, n := encoding.GetVarint(buf[4:])
	if n == 0 {
		return VectorRecord{}, errs.ErrCorruptRecord
	}
	off := 4 + n
	if dim64 > uint64(len(buf)-off)/4 {
		return VectorRecord{}, errs.ErrCorruptRecord
	}
	dim := int(dim64)
	data := make([]float32, dim)
	for i := 0; i < dim; i++ {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	return VectorRecord{ID: id, Data: data}, nil
}

// NodeRecord is one forest node: a leaf carries Items, an internal node
// carries the split hyperplane (V, T) and its two children. Left/Right are
// -1 when absent, and Items is nil/empty for internal nodes — the Leaf
// flag, not either slice's zero value, is what callers must branch on.
type NodeRecord struct {
	Index       int32
	Leaf        bool
	Items       []int32
	V           []float32
	T           float32
	Left, Right int32
}

const (
	flagInternal = 1 << 0
)

// EncodeNode serializes a NodeRecord per the two-shape layout:
//
//	leaf:     [index int32][flags byte][nitems varint][items[nitems] int32 LE]
//	internal: [index int32][flags byte][dim varint][v[dim] float32 LE][t float32 LE][left int32][right int32]
func EncodeNode(n NodeRecord) []byte {
	if n.Leaf {
		buf := make([]byte, 5+binary.MaxVarintLen64+len(n.Items)*4)
		binary.LittleEndian.PutUint32(buf[0:4], uint32(n.Index))
		buf[4] = 0
		off := 5
		off += encoding.PutVarint(buf[off:], uint64(len(n.Items)))
		for _, it := range n.Items {
			binary.LittleEndian.PutUint32(buf[off:off+4], uint32(it))
			off += 4
		}
		return buf[:off]
	}

	dim := len(n.V)
	buf := make([]byte, 5+binary.MaxVarintLen64+dim*4+4+4+4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n.Index))
	buf[4] = flagInternal
	off := 5
	off += encoding.PutVarint(buf[off:], uint64(dim))
	for _, f := range n.V {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(f))
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(n.T))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(n.Left))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(n.Right))
	off += 4
	return buf[:off]
}

// DecodeNode parses a NodeRecord, returning errs.ErrCorruptRecord on any
// length mismatch.
func DecodeNode(buf []byte) (NodeRecord, error) {
	if len(buf) < 5 {
		return NodeRecord{}, errs.ErrCorruptRecord
	}
	index := int32(binary.LittleEndian.Uint32(buf[0:4]))
	flags := buf[4]
	off := 5

	if flags&flagInternal == 0 {
		nitems64, n := encoding.GetVarint(buf[off:])
		if n == 0 {
			return NodeRecord{}, errs.ErrCorruptRecord
		}
		off += n
		if nitems64 > uint64(len(buf)-off)/4 {
			return NodeRecord{}, errs.ErrCorruptRecord
		}
		nitems := int(nitems64)
		items := make([]int32, nitems)
		for i := 0; i < nitems; i++ {
			items[i] = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
		}
		return NodeRecord{Index: index, Leaf: true, Items: items, Left: -1, Right: -1}, nil
	}

	dim64, n := encoding.GetVarint(buf[off:])
	if n == 0 {
		return NodeRecord{}, errs.ErrCorruptRecord
	}
	off += n
	if len(buf)-off < 4+4+4 || dim64 > uint64(len(buf)-off-4-4-4)/4 {
		return NodeRecord{}, errs.ErrCorruptRecord
	}
	dim := int(dim64)
	v := make([]float32, dim)
	for i := 0; i < dim; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	t := math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	left := int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	right := int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	return NodeRecord{Index: index, Leaf: false, V: v, T: t, Left: left, Right: right}, nil
}
