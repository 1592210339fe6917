// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package values defines the value collaborators of the teneval interpreter:
// the read-only Value interface with its sparse Index/View lookup protocol,
// and the Builder used by instructions to construct result values
// subspace-by-subspace.
//
// It also provides Mixed[T], a complete in-memory implementation backed by a
// flat cell slice, and scalar helpers used for operand passing.
//
// Cell storage follows the flat-slice-behind-any convention: Value.Cells
// returns a []T where T is the Go type matching Type().DType(), and typed
// code asserts it back, e.g. `cells := v.Cells().([]float32)`.
package values

import (
	"github.com/gomlx/teneval/types/mixed"
)

// Value is one read-only mixed tensor value.
//
// Values are immutable once built and safe to share across goroutines.
type Value interface {
	// Type returns the value's mixed tensor type.
	Type() mixed.Type

	// Cells returns the flat dense cell storage as a []T with T matching
	// Type().DType(). Subspace ordinal s occupies
	// cells[s*denseSubspaceSize : (s+1)*denseSubspaceSize], row-major over the
	// indexed dimensions in name order.
	Cells() any

	// Index returns the sparse index over the value's subspaces.
	Index() Index

	// AsDouble returns the first cell converted to float64, or 0 for a value
	// with no cells. This is the numeric read-through used for scalar
	// operands: every cell representation is read as float64.
	AsDouble() float64
}

// Index enumerates and looks up the subspaces of a Value by their mapped
// coordinates.
type Index interface {
	// NumSubspaces returns how many subspaces the value holds. A value of a
	// fully dense type always has exactly one.
	NumSubspaces() int

	// CreateView returns a lookup View restricted to the given positions into
	// the type's mapped dimensions (in ascending order). An empty dims view
	// matches every subspace.
	CreateView(dims []int) View
}

// View is a query handle over a subset of mapped dimensions.
//
// Usage: call Lookup once with one key per view dimension, then call
// NextResult until it returns ok == false. Views hold per-query state and
// must not be shared across goroutines.
type View interface {
	// Lookup starts a query for the subspaces whose coordinates on the view
	// dimensions equal keys, in view-dimension order.
	Lookup(keys []string)

	// NextResult reports the next matching subspace: it fills addrOut with the
	// coordinates of the surviving (non-view) mapped dimensions, in name
	// order, and returns the subspace ordinal. ok is false when exhausted.
	NextResult(addrOut []string) (subspace int, ok bool)
}
