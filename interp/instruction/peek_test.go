package instruction

import (
	"fmt"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/teneval/interp"
	"github.com/gomlx/teneval/types/mixed"
	"github.com/gomlx/teneval/values"
)

// runPeek compiles the peek, pushes input then the children (child 0 first)
// and runs it on a fresh stack, returning the result.
func runPeek(t *testing.T, inputType, resType mixed.Type, spec Spec,
	input values.Value, children ...float64) values.Value {
	instr := MakePeekInstruction(inputType, resType, spec)
	state := interp.NewState()
	state.Push(input)
	for _, child := range children {
		state.Push(values.NewScalar(child))
	}
	state.Run([]interp.Instruction{instr})
	require.Equal(t, 1, state.Depth())
	result := state.Pop()
	require.True(t, result.Type().Equal(resType))
	return result
}

// mixedInput is the worked example input: (x[3],y{}) with subspaces
// y="a" -> [1,2,3] and y="b" -> [4,5,6].
func mixedInput(t *testing.T) (mixed.Type, *values.Mixed[float64]) {
	vt := mixed.MakeType(dtypes.Float64, mixed.Indexed("x", 3), mixed.Mapped("y"))
	v, err := values.NewMixed(vt, [][]string{{"a"}, {"b"}}, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	return vt, v
}

func TestPeekPinIndexed(t *testing.T) {
	// Pin x to coordinate 1, leave y free: a purely mapped result with one
	// cell per input subspace.
	inputType, input := mixedInput(t)
	resType := mixed.MakeType(dtypes.Float64, mixed.Mapped("y"))
	result := runPeek(t, inputType, resType, Spec{"x": IndexLabel(1)}, input)

	m := result.(*values.Mixed[float64])
	fmt.Printf("\tresult=%s cells=%v\n", m.Type(), m.FlatCells())
	require.Equal(t, 2, m.Index().NumSubspaces())
	assert.Equal(t, []string{"a"}, m.SubspaceAddr(0))
	assert.Equal(t, []string{"b"}, m.SubspaceAddr(1))
	assert.Equal(t, []float64{2, 5}, m.FlatCells())
}

func TestPeekPinMapped(t *testing.T) {
	// Pin y to "a", leave x free: a purely dense result.
	inputType, input := mixedInput(t)
	resType := mixed.MakeType(dtypes.Float64, mixed.Indexed("x", 3))
	result := runPeek(t, inputType, resType, Spec{"y": NameLabel("a")}, input)
	assert.Equal(t, []float64{1, 2, 3}, result.(*values.Mixed[float64]).FlatCells())
}

func TestPeekMissingKey(t *testing.T) {
	// A pinned sparse key with no matching entry contributes zero subspaces.
	vt := mixed.MakeType(dtypes.Float64, mixed.Mapped("y"), mixed.Mapped("z"))
	input, err := values.NewMixed(vt, [][]string{{"a", "p"}, {"b", "q"}}, []float64{1, 2})
	require.NoError(t, err)
	resType := mixed.MakeType(dtypes.Float64, mixed.Mapped("y"))
	result := runPeek(t, vt, resType, Spec{"z": NameLabel("absent")}, input)
	assert.Equal(t, 0, result.Index().NumSubspaces())
	assert.Empty(t, result.(*values.Mixed[float64]).FlatCells())
}

func TestPeekDenseChildOutOfRange(t *testing.T) {
	// A runtime coordinate out of [0, size) degrades to a default-valued
	// dense result, never an error.
	vt := mixed.MakeType(dtypes.Float64, mixed.Indexed("x", 3))
	input, err := values.NewDense(vt, []float64{1, 2, 3})
	require.NoError(t, err)
	resType := mixed.Scalar(dtypes.Float64)
	spec := Spec{"x": ChildRef(0)}

	result := runPeek(t, vt, resType, spec, input, 5)
	require.Equal(t, 1, result.Index().NumSubspaces())
	assert.Equal(t, []float64{0}, result.(*values.Mixed[float64]).FlatCells())

	// Negative coordinates miss too.
	result = runPeek(t, vt, resType, spec, input, -1)
	assert.Equal(t, []float64{0}, result.(*values.Mixed[float64]).FlatCells())

	// In range: truncation toward zero, 1.9 addresses coordinate 1.
	result = runPeek(t, vt, resType, spec, input, 1.9)
	assert.Equal(t, []float64{2}, result.(*values.Mixed[float64]).FlatCells())
}

func TestPeekRoundTrip(t *testing.T) {
	// Pinning every dimension to an existing coordinate yields the single
	// corresponding input cell as a scalar.
	inputType, input := mixedInput(t)
	resType := mixed.Scalar(dtypes.Float64)
	result := runPeek(t, inputType, resType,
		Spec{"x": IndexLabel(2), "y": NameLabel("b")}, input)
	assert.Equal(t, []float64{6}, result.(*values.Mixed[float64]).FlatCells())
	assert.Equal(t, 6.0, result.AsDouble())
}

func TestPeekChildPinsMappedDim(t *testing.T) {
	// A child pinning a mapped dimension addresses it by the decimal string
	// of the truncated value.
	vt := mixed.MakeType(dtypes.Float32, mixed.Indexed("x", 2), mixed.Mapped("m"))
	input, err := values.NewMixed(vt, [][]string{{"7"}, {"8"}}, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	resType := mixed.MakeType(dtypes.Float32, mixed.Indexed("x", 2))

	result := runPeek(t, vt, resType, Spec{"m": ChildRef(0)}, input, 7.9)
	assert.Equal(t, []float32{1, 2}, result.(*values.Mixed[float32]).FlatCells())

	// Missing numeric key with a fully dense result: default subspace.
	result = runPeek(t, vt, resType, Spec{"m": ChildRef(0)}, input, 9)
	assert.Equal(t, []float32{0, 0}, result.(*values.Mixed[float32]).FlatCells())
}

func TestPeekMultipleChildren(t *testing.T) {
	// Child i is at stack depth numChildren-1-i: the last pushed operand is
	// the highest child index.
	vt := mixed.MakeType(dtypes.Float64, mixed.Indexed("x", 2), mixed.Indexed("y", 3))
	input, err := values.NewDense(vt, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	resType := mixed.Scalar(dtypes.Float64)
	spec := Spec{"x": ChildRef(0), "y": ChildRef(1)}

	result := runPeek(t, vt, resType, spec, input, 1, 2)
	assert.Equal(t, 6.0, result.AsDouble()) // cells[1*3+2]

	// One child in range, one out: the whole dense addressing misses.
	result = runPeek(t, vt, resType, spec, input, 1, 3)
	assert.Equal(t, 0.0, result.AsDouble())
}

func TestPeekNoPins(t *testing.T) {
	// An empty spec copies the whole value.
	inputType, input := mixedInput(t)
	result := runPeek(t, inputType, inputType, Spec{}, input)
	m := result.(*values.Mixed[float64])
	assert.Equal(t, input.FlatCells(), m.FlatCells())
	assert.Equal(t, input.SubspaceAddr(0), m.SubspaceAddr(0))
	assert.Equal(t, input.SubspaceAddr(1), m.SubspaceAddr(1))
}

func TestPeekMatchCounting(t *testing.T) {
	// The number of output subspaces equals the number of input subspaces
	// matching every pinned key exactly.
	vt := mixed.MakeType(dtypes.Float64, mixed.Mapped("a"), mixed.Mapped("b"))
	input, err := values.NewMixed(vt,
		[][]string{{"x", "0"}, {"x", "1"}, {"y", "0"}, {"x", "2"}},
		[]float64{1, 2, 3, 4})
	require.NoError(t, err)
	resType := mixed.MakeType(dtypes.Float64, mixed.Mapped("b"))

	result := runPeek(t, vt, resType, Spec{"a": NameLabel("x")}, input)
	m := result.(*values.Mixed[float64])
	require.Equal(t, 3, m.Index().NumSubspaces())
	assert.Equal(t, []string{"0"}, m.SubspaceAddr(0))
	assert.Equal(t, []string{"1"}, m.SubspaceAddr(1))
	assert.Equal(t, []string{"2"}, m.SubspaceAddr(2))
	assert.Equal(t, []float64{1, 2, 4}, m.FlatCells())
}

func TestPeekCrossCellTypes(t *testing.T) {
	// The (input, output) cell representation pair is bound at compile time.
	vt := mixed.MakeType(dtypes.Float32, mixed.Indexed("x", 3))
	input, err := values.NewDense(vt, []float32{1.5, 2.5, 3.5})
	require.NoError(t, err)
	result := runPeek(t, vt, mixed.Scalar(dtypes.Float64), Spec{"x": IndexLabel(1)}, input)
	assert.Equal(t, []float64{2.5}, result.(*values.Mixed[float64]).FlatCells())

	vt16 := mixed.MakeType(dtypes.BFloat16, mixed.Indexed("x", 2))
	input16, err := values.NewDense(vt16,
		[]bfloat16.BFloat16{bfloat16.FromFloat32(1), bfloat16.FromFloat32(2)})
	require.NoError(t, err)
	result = runPeek(t, vt16, mixed.Scalar(dtypes.Float32), Spec{"x": IndexLabel(1)}, input16)
	assert.Equal(t, []float32{2}, result.(*values.Mixed[float32]).FlatCells())
}

func TestPeekStackEffect(t *testing.T) {
	// Net stack effect is -(numChildren+1)+1; values below the operands are
	// untouched.
	inputType, input := mixedInput(t)
	resType := mixed.MakeType(dtypes.Float64, mixed.Mapped("y"))
	instr := MakePeekInstruction(inputType, resType, Spec{"x": ChildRef(0)})

	sentinel := values.NewScalar(-1.0)
	state := interp.NewState()
	state.Push(sentinel)
	state.Push(input)
	state.Push(values.NewScalar(1.0))
	state.Run([]interp.Instruction{instr})

	require.Equal(t, 2, state.Depth())
	assert.Equal(t, []float64{2, 5}, state.Pop().(*values.Mixed[float64]).FlatCells())
	assert.Same(t, sentinel, state.Pop())
}

func TestPeekPlanInvariants(t *testing.T) {
	vt := mixed.MakeType(dtypes.Float64,
		mixed.Indexed("a", 2), mixed.Indexed("b", 3), mixed.Indexed("c", 4))
	plan := newDensePlan(vt, Spec{"b": IndexLabel(1)})
	assert.Equal(t, 24, plan.inDenseSize)
	assert.Equal(t, 8, plan.outDenseSize)
	assert.Equal(t, []int{2, 4}, plan.loopCounts)
	assert.Equal(t, []int{12, 1}, plan.loopStrides)
	assert.Equal(t, 4, plan.verbatimOffset) // coordinate 1 on stride-4 "b"
	assert.Empty(t, plan.children)

	// Output dense size is the product of the free loop counts.
	product := 1
	for _, count := range plan.loopCounts {
		product *= count
	}
	assert.Equal(t, plan.outDenseSize, product)

	withChild := newDensePlan(vt, Spec{"a": ChildRef(0)})
	assert.Equal(t, []denseChild{{child: 0, stride: 12, limit: 2}}, withChild.children)
}

func TestPeekPlanIdempotence(t *testing.T) {
	vt := mixed.MakeType(dtypes.Float64,
		mixed.Indexed("x", 3), mixed.Mapped("y"), mixed.Mapped("z"))
	spec := Spec{"x": ChildRef(0), "z": NameLabel("k")}
	assert.Equal(t, newDensePlan(vt, spec), newDensePlan(vt, spec))
	assert.Equal(t, newSparsePlan(vt, spec), newSparsePlan(vt, spec))
}

func TestPeekSparsePlan(t *testing.T) {
	vt := mixed.MakeType(dtypes.Float64,
		mixed.Mapped("a"), mixed.Indexed("i", 2), mixed.Mapped("m"), mixed.Mapped("z"))
	plan := newSparsePlan(vt, Spec{"m": NameLabel("k"), "i": IndexLabel(0)})
	assert.Equal(t, 2, plan.outMappedDims) // "a" and "z" survive
	assert.Equal(t, []int{1}, plan.viewDims)
	require.Len(t, plan.lookupSpecs, 1)
	assert.Equal(t, "m", plan.lookupSpecs[0].name)

	state := plan.makeState(nil)
	assert.Equal(t, []string{"k"}, state.viewAddr)
	assert.Len(t, state.outputAddr, 2)
}

func TestPeekSpecInvariantViolations(t *testing.T) {
	inputType, _ := mixedInput(t)
	resType := mixed.Scalar(dtypes.Float64)

	// Unknown dimension.
	require.Panics(t, func() {
		MakePeekInstruction(inputType, resType, Spec{"nope": IndexLabel(0), "x": IndexLabel(0), "y": NameLabel("a")})
	})
	// Label kind mismatched to the dimension kind.
	require.Panics(t, func() {
		MakePeekInstruction(inputType, resType, Spec{"x": NameLabel("a"), "y": NameLabel("a")})
	})
	require.Panics(t, func() {
		MakePeekInstruction(inputType, resType, Spec{"x": IndexLabel(0), "y": IndexLabel(0)})
	})
	// Literal coordinate out of range for the indexed dimension size.
	require.Panics(t, func() {
		MakePeekInstruction(inputType, resType, Spec{"x": IndexLabel(3), "y": NameLabel("a")})
	})
	// Declared result type inconsistent with the plan.
	require.Panics(t, func() {
		MakePeekInstruction(inputType, mixed.Scalar(dtypes.Float64), Spec{"x": IndexLabel(0)})
	})
}

func TestSpecString(t *testing.T) {
	spec := Spec{"x": IndexLabel(1), "y": NameLabel("a"), "z": ChildRef(0)}
	assert.Equal(t, `{x:1,y:"a",z:child(0)}`, spec.String())
	assert.Equal(t, 1, spec.CountChildren())
}
