package instruction

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"

	"github.com/gomlx/teneval/types/mixed"
)

// Pin says how a peek specification fixes one dimension of the input: either
// to the runtime value of an operand (ChildRef) or to a literal coordinate
// (NameLabel for mapped dimensions, IndexLabel for indexed ones).
//
// It is a closed sum: exactly ChildRef, NameLabel and IndexLabel implement it,
// and consumers match all three.
type Pin interface {
	isPin()
}

// ChildRef pins a dimension to the value of the operand at this position
// (0-based, in specification-declaration order) -- evaluated once per
// invocation.
type ChildRef int

// NameLabel pins a mapped dimension to a literal coordinate name.
type NameLabel string

// IndexLabel pins an indexed dimension to a literal integer coordinate.
type IndexLabel int

func (ChildRef) isPin()   {}
func (NameLabel) isPin()  {}
func (IndexLabel) isPin() {}

// Spec is a peek specification: for each named dimension of the input, how it
// is pinned. Dimensions absent from the Spec stay free and survive into the
// result.
type Spec map[string]Pin

// CountChildren returns how many dimensions are pinned by operands: the
// number of scalar operands a compiled peek pops besides the input value.
func (spec Spec) CountChildren() int {
	count := 0
	for _, pin := range spec {
		if _, ok := pin.(ChildRef); ok {
			count++
		}
	}
	return count
}

// dimSpec pairs a pinned dimension's name with its Pin, in a name-sorted list.
type dimSpec struct {
	name string
	pin  Pin
}

// classify splits the input dimensions of one kind (indexed when indexed is
// true, else mapped) against the spec in a single merge pass over both
// name-sorted sequences. It returns all dimensions of that kind, in name
// order, and the dimSpecs of the pinned ones among them, in the same order.
// Dimensions of the other kind are skipped, whether pinned or not.
//
// A spec entry naming a dimension the input does not have panics: the
// specification was produced for a different type, a bug in the caller.
func classify(indexed bool, inputDims []mixed.Dimension, spec Spec) (dims []mixed.Dimension, specs []dimSpec) {
	names := make([]string, 0, len(spec))
	for name := range spec {
		names = append(names, name)
	}
	slices.Sort(names)

	specPos := 0
	for _, dim := range inputDims {
		if specPos < len(names) && names[specPos] < dim.Name {
			exceptions.Panicf("peek: specification pins dimension %q absent from input type", names[specPos])
		}
		pinned := specPos < len(names) && names[specPos] == dim.Name
		if dim.IsIndexed() == indexed {
			dims = append(dims, dim)
			if pinned {
				specs = append(specs, dimSpec{name: dim.Name, pin: spec[dim.Name]})
			}
		}
		if pinned {
			specPos++
		}
	}
	if specPos < len(names) {
		exceptions.Panicf("peek: specification pins dimension %q absent from input type", names[specPos])
	}
	return dims, specs
}

// String formats the spec with names sorted, for logs and panics.
func (spec Spec) String() string {
	names := make([]string, 0, len(spec))
	for name := range spec {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		switch pin := spec[name].(type) {
		case ChildRef:
			parts = append(parts, fmt.Sprintf("%s:child(%d)", name, int(pin)))
		case NameLabel:
			parts = append(parts, fmt.Sprintf("%s:%q", name, string(pin)))
		case IndexLabel:
			parts = append(parts, fmt.Sprintf("%s:%d", name, int(pin)))
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}
