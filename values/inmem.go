// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package values

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/teneval/types/mixed"
)

// Mixed is the in-memory Value implementation: one flat cell slice plus one
// mapped-coordinate address per subspace.
//
// Its sparse index answers lookups with a scan over the stored addresses;
// subspace ordinals are insertion order. That keeps the representation
// trivially correct -- callers needing a faster index can provide their own
// Value implementation, the interpreter only sees the interfaces.
type Mixed[T dtypes.Supported] struct {
	vtype mixed.Type
	addrs [][]string
	cells []T
}

// Compile-time check.
var _ Value = (*Mixed[float32])(nil)

// NewMixed creates a value of the given type from one address per subspace
// (each with one coordinate per mapped dimension, in name order) and the flat
// cells of all subspaces concatenated in the same order.
//
// A dtype mismatch between T and vtype panics: it is a programming error.
// Inconsistent cardinalities return an error: they are data-shape problems
// the caller may be assembling from external input.
func NewMixed[T dtypes.Supported](vtype mixed.Type, addrs [][]string, cells []T) (*Mixed[T], error) {
	if got := dtypes.FromGenericsType[T](); got != vtype.DType() {
		exceptions.Panicf("values.NewMixed[%s]: cell type does not match type %s", got, vtype)
	}
	numMapped := vtype.CountMappedDims()
	if numMapped == 0 && len(addrs) != 1 {
		return nil, errors.Errorf("value of fully dense type %s must have exactly 1 subspace, got %d", vtype, len(addrs))
	}
	for _, addr := range addrs {
		if len(addr) != numMapped {
			return nil, errors.Errorf("subspace address %q has %d coordinates, type %s has %d mapped dimensions",
				addr, len(addr), vtype, numMapped)
		}
	}
	if want := len(addrs) * vtype.DenseSubspaceSize(); len(cells) != want {
		return nil, errors.Errorf("type %s with %d subspaces needs %d cells, got %d",
			vtype, len(addrs), want, len(cells))
	}
	return &Mixed[T]{vtype: vtype, addrs: addrs, cells: cells}, nil
}

// NewDense creates a value of a fully dense (no mapped dimensions) type from
// its cells.
func NewDense[T dtypes.Supported](vtype mixed.Type, cells []T) (*Mixed[T], error) {
	if vtype.CountMappedDims() != 0 {
		return nil, errors.Errorf("NewDense: type %s has mapped dimensions", vtype)
	}
	return NewMixed(vtype, [][]string{{}}, cells)
}

// NewScalar creates a scalar value holding v.
func NewScalar[T dtypes.Supported](v T) *Mixed[T] {
	return &Mixed[T]{
		vtype: mixed.Scalar(dtypes.FromGenericsType[T]()),
		addrs: [][]string{{}},
		cells: []T{v},
	}
}

// Type implements Value.
func (m *Mixed[T]) Type() mixed.Type { return m.vtype }

// Cells implements Value: it returns the flat []T cell storage.
func (m *Mixed[T]) Cells() any { return m.cells }

// FlatCells returns the typed flat cell storage.
func (m *Mixed[T]) FlatCells() []T { return m.cells }

// SubspaceAddr returns the mapped coordinates of the subspace with the given
// ordinal.
func (m *Mixed[T]) SubspaceAddr(subspace int) []string { return m.addrs[subspace] }

// AsDouble implements Value.
func (m *Mixed[T]) AsDouble() float64 {
	if len(m.cells) == 0 {
		return 0
	}
	return ConvertToFloat64(m.cells[0])
}

// Index implements Value.
func (m *Mixed[T]) Index() Index { return mixedIndex[T]{m} }

type mixedIndex[T dtypes.Supported] struct {
	m *Mixed[T]
}

func (idx mixedIndex[T]) NumSubspaces() int { return len(idx.m.addrs) }

func (idx mixedIndex[T]) CreateView(dims []int) View {
	numMapped := idx.m.vtype.CountMappedDims()
	for ii, dim := range dims {
		if dim < 0 || dim >= numMapped {
			exceptions.Panicf("values: view dimension %d out of range, type %s has %d mapped dimensions",
				dim, idx.m.vtype, numMapped)
		}
		if ii > 0 && dims[ii-1] >= dim {
			exceptions.Panicf("values: view dimensions %v not in ascending order", dims)
		}
	}
	// The non-view mapped dimensions survive into NextResult addresses.
	var otherDims []int
	for dim := 0; dim < numMapped; dim++ {
		if !slices.Contains(dims, dim) {
			otherDims = append(otherDims, dim)
		}
	}
	return &mixedView[T]{m: idx.m, viewDims: dims, otherDims: otherDims}
}

type mixedView[T dtypes.Supported] struct {
	m         *Mixed[T]
	viewDims  []int
	otherDims []int
	keys      []string
	next      int
}

// Lookup implements View.
func (v *mixedView[T]) Lookup(keys []string) {
	if len(keys) != len(v.viewDims) {
		exceptions.Panicf("values: view over %d dimensions got %d lookup keys", len(v.viewDims), len(keys))
	}
	v.keys = slices.Clone(keys)
	v.next = 0
}

// NextResult implements View.
func (v *mixedView[T]) NextResult(addrOut []string) (subspace int, ok bool) {
	for ; v.next < len(v.m.addrs); v.next++ {
		addr := v.m.addrs[v.next]
		matched := true
		for ii, dim := range v.viewDims {
			if addr[dim] != v.keys[ii] {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		for ii, dim := range v.otherDims {
			addrOut[ii] = addr[dim]
		}
		subspace = v.next
		v.next++
		return subspace, true
	}
	return 0, false
}

// Builder constructs a Mixed[T] value subspace-by-subspace. Create one with
// NewBuilder, fill the cell range returned by each AddSubspace call, and
// finalize with Build. A Builder is single-use and not goroutine-safe.
type Builder[T dtypes.Supported] struct {
	vtype        mixed.Type
	numMapped    int
	subspaceSize int
	addrs        [][]string
	subspaces    [][]T
	built        bool
}

// NewBuilder creates a Builder for values of the given type.
//
// numMappedDims and subspaceSize restate what the type implies and are
// asserted against it: a mismatch means the caller's plan disagrees with the
// declared result type, which is a bug upstream. capacityHint is a non-binding
// guess of how many subspaces will be added.
func NewBuilder[T dtypes.Supported](vtype mixed.Type, numMappedDims, subspaceSize, capacityHint int) *Builder[T] {
	if got := dtypes.FromGenericsType[T](); got != vtype.DType() {
		exceptions.Panicf("values.NewBuilder[%s]: cell type does not match type %s", got, vtype)
	}
	if numMappedDims != vtype.CountMappedDims() {
		exceptions.Panicf("values.NewBuilder: %d mapped dimensions inconsistent with type %s", numMappedDims, vtype)
	}
	if subspaceSize != vtype.DenseSubspaceSize() {
		exceptions.Panicf("values.NewBuilder: subspace size %d inconsistent with type %s", subspaceSize, vtype)
	}
	return &Builder[T]{
		vtype:        vtype,
		numMapped:    numMappedDims,
		subspaceSize: subspaceSize,
		addrs:        make([][]string, 0, capacityHint),
		subspaces:    make([][]T, 0, capacityHint),
	}
}

// AddSubspace appends a subspace at the given mapped coordinates (name order)
// and returns its zero-initialized cell range for the caller to fill. The
// addr slice is copied and may be reused by the caller.
func (b *Builder[T]) AddSubspace(addr []string) []T {
	if b.built {
		exceptions.Panicf("values.Builder: AddSubspace after Build")
	}
	if len(addr) != b.numMapped {
		exceptions.Panicf("values.Builder: address %q has %d coordinates, want %d", addr, len(addr), b.numMapped)
	}
	cells := make([]T, b.subspaceSize)
	b.addrs = append(b.addrs, slices.Clone(addr))
	b.subspaces = append(b.subspaces, cells)
	return cells
}

// Build finalizes and returns the value. The Builder is unusable afterwards.
func (b *Builder[T]) Build() *Mixed[T] {
	if b.built {
		exceptions.Panicf("values.Builder: Build called twice")
	}
	b.built = true
	addrs := b.addrs
	cells := make([]T, 0, len(b.subspaces)*b.subspaceSize)
	for _, subspace := range b.subspaces {
		cells = append(cells, subspace...)
	}
	if b.numMapped == 0 && len(addrs) == 0 {
		// A fully dense value always has its single subspace; an instruction
		// that filled nothing still builds a well-formed empty value.
		addrs = [][]string{{}}
		cells = make([]T, b.subspaceSize)
	}
	m, err := NewMixed(b.vtype, addrs, cells)
	if err != nil {
		exceptions.Panicf("values.Builder: built inconsistent value: %+v", err)
	}
	return m
}
