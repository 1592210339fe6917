// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package mixed defines the type model for mixed tensors: tensors whose
// dimensions are either indexed (dense, with a fixed size known at the type
// level, addressed by integer coordinates) or mapped (sparse, addressed by
// arbitrary string coordinates that may be absent for any given cell block).
//
// A Type is the cell data type (a dtypes.DType) plus a set of uniquely named
// Dimensions kept sorted by name. The dense cell block associated with one
// combination of mapped coordinates is called a subspace; its size is the
// product of the indexed dimension sizes (see Type.DenseSubspaceSize).
//
// Types are immutable after construction and safe to share across goroutines.
package mixed

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Dimension is one named axis of a mixed tensor type.
//
// Size > 0 means the dimension is indexed (dense) with Size coordinates;
// Size == 0 means it is mapped (sparse). Negative sizes are invalid.
type Dimension struct {
	Name string
	Size int
}

// Indexed returns a dense dimension with the given size.
func Indexed(name string, size int) Dimension {
	return Dimension{Name: name, Size: size}
}

// Mapped returns a sparse dimension.
func Mapped(name string) Dimension {
	return Dimension{Name: name}
}

// IsIndexed returns whether the dimension is dense.
func (d Dimension) IsIndexed() bool { return d.Size > 0 }

// IsMapped returns whether the dimension is sparse.
func (d Dimension) IsMapped() bool { return d.Size == 0 }

// String implements fmt.Stringer: "x[3]" for indexed, "y{}" for mapped.
func (d Dimension) String() string {
	if d.IsMapped() {
		return d.Name + "{}"
	}
	return fmt.Sprintf("%s[%d]", d.Name, d.Size)
}

// Type is the type of one mixed tensor value: the cell DType plus the
// dimensions, unique and sorted by name.
//
// Use MakeType to create one. A Type with no dimensions is a scalar.
type Type struct {
	dtype dtypes.DType
	dims  []Dimension
}

// MakeType returns the Type with the given cell dtype and dimensions.
// The dimensions are sorted by name; the given slice is not modified.
//
// It panics if a dimension name is empty or repeated, or a size is negative:
// these are bugs in the caller, not data-dependent conditions.
func MakeType(dtype dtypes.DType, dims ...Dimension) Type {
	sorted := slices.Clone(dims)
	slices.SortFunc(sorted, func(a, b Dimension) int { return strings.Compare(a.Name, b.Name) })
	for ii, dim := range sorted {
		if dim.Name == "" {
			exceptions.Panicf("mixed.MakeType(%s): dimension with empty name", dtype)
		}
		if dim.Size < 0 {
			exceptions.Panicf("mixed.MakeType(%s): dimension %q with negative size %d", dtype, dim.Name, dim.Size)
		}
		if ii > 0 && sorted[ii-1].Name == dim.Name {
			exceptions.Panicf("mixed.MakeType(%s): duplicate dimension name %q", dtype, dim.Name)
		}
	}
	return Type{dtype: dtype, dims: sorted}
}

// Scalar returns the dimension-less Type for the given dtype.
func Scalar(dtype dtypes.DType) Type {
	return Type{dtype: dtype}
}

// DType returns the cell data type.
func (t Type) DType() dtypes.DType { return t.dtype }

// Dimensions returns the dimensions, sorted by name. The returned slice is
// owned by the Type and must not be modified.
func (t Type) Dimensions() []Dimension { return t.dims }

// IsScalar returns whether the type has no dimensions.
func (t Type) IsScalar() bool { return len(t.dims) == 0 }

// DenseSubspaceSize returns the number of cells in one subspace: the product
// of the indexed dimension sizes. It is 1 for scalars and purely mapped types.
func (t Type) DenseSubspaceSize() int {
	size := 1
	for _, dim := range t.dims {
		if dim.IsIndexed() {
			size *= dim.Size
		}
	}
	return size
}

// CountMappedDims returns the number of mapped dimensions.
func (t Type) CountMappedDims() int {
	count := 0
	for _, dim := range t.dims {
		if dim.IsMapped() {
			count++
		}
	}
	return count
}

// CountIndexedDims returns the number of indexed dimensions.
func (t Type) CountIndexedDims() int {
	return len(t.dims) - t.CountMappedDims()
}

// MappedDimensions returns only the mapped dimensions, in name order.
func (t Type) MappedDimensions() []Dimension {
	var mapped []Dimension
	for _, dim := range t.dims {
		if dim.IsMapped() {
			mapped = append(mapped, dim)
		}
	}
	return mapped
}

// Equal compares dtype and dimensions.
func (t Type) Equal(t2 Type) bool {
	return t.dtype == t2.dtype && slices.Equal(t.dims, t2.dims)
}

// String implements fmt.Stringer, e.g. "(Float32)(x[3],y{})" or "(Int64)" for
// a scalar.
func (t Type) String() string {
	if t.IsScalar() {
		return fmt.Sprintf("(%s)", t.dtype)
	}
	parts := make([]string, 0, len(t.dims))
	for _, dim := range t.dims {
		parts = append(parts, dim.String())
	}
	return fmt.Sprintf("(%s)(%s)", t.dtype, strings.Join(parts, ","))
}
