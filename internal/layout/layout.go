// Package layout provides the data-layout oracle the alias package's
// pointer-size-sensitive queries are grounded on: given a go/types.Type, it
// reports the byte size and field offsets a real compiler would assign,
// using the standard library's own go/types.Sizes machinery (the same
// default gcSizes table cmd/compile and go/analysis passes use) rather than
// hand-rolling per-kind size arithmetic.
package layout

import (
	"go/types"
)

// Oracle answers struct/array layout queries for a fixed architecture.
type Oracle struct {
	sizes types.Sizes
}

// New creates a layout Oracle for the given Sizes table. Pass nil to use
// the default 64-bit gc sizing (types.SizesFor("gc", "amd64")).
func New(sizes types.Sizes) *Oracle {
	if sizes == nil {
		sizes = types.SizesFor("gc", "amd64")
	}
	return &Oracle{sizes: sizes}
}

// SizeOf returns the byte size of t, or -1 if t's size cannot be computed
// (e.g. an unresolved type parameter).
func (o *Oracle) SizeOf(t types.Type) (size int64) {
	if t == nil {
		return -1
	}
	defer func() {
		if recover() != nil {
			size = -1
		}
	}()
	return o.sizes.Sizeof(t)
}

// FieldOffsets returns the byte offset of every field in a struct type, or
// nil if the layout cannot be computed.
func (o *Oracle) FieldOffsets(s *types.Struct) (offsets []int64) {
	defer func() {
		if recover() != nil {
			offsets = nil
		}
	}()
	n := s.NumFields()
	fields := make([]*types.Var, n)
	for i := 0; i < n; i++ {
		fields[i] = s.Field(i)
	}
	return o.sizes.Offsetsof(fields)
}

// Overlaps reports whether a field at byteOffset with size fieldSize can
// overlap a region [otherOffset, otherOffset+otherSize) — used by
// internal/alias.Heuristic when a FieldAddr path comparison needs to
// cross-check two differently-shaped projections into the same struct
// rather than compare opaque path tags.
func Overlaps(byteOffset, fieldSize, otherOffset, otherSize int64) bool {
	return byteOffset < otherOffset+otherSize && otherOffset < byteOffset+fieldSize
}
