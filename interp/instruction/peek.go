// Package instruction compiles teneval operations into interp.Instruction
// values.
//
// The only operation so far is peek, tensor indexing: given an input mixed
// tensor and a per-dimension Spec pinning some dimensions to literal
// coordinates or to operand-computed values, it extracts the sub-tensor over
// the remaining free dimensions.
//
// Compilation is split from execution: MakePeekInstruction derives from the
// static types and the Spec an immutable pair of plans -- a densePlan with
// strides, free-dimension loops and the verbatim offset of literal-pinned
// indexed dimensions, and a sparsePlan with the lookup-key order for pinned
// mapped dimensions.  The returned instruction reuses the plans on every
// invocation; only the per-invocation lookup keys and the result value are
// allocated at run time, so one compiled instruction is safe to run
// concurrently on independent interp.States.
package instruction

import (
	"strconv"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"
	"k8s.io/klog/v2"

	"github.com/gomlx/teneval/interp"
	"github.com/gomlx/teneval/types/mixed"
	"github.com/gomlx/teneval/values"
)

// getChildFn resolves the runtime value of the operand pinned at a ChildRef
// position. Valid only for the duration of one invocation.
type getChildFn func(child int) float64

// denseChild is an indexed dimension pinned by an operand: its coordinate is
// only known at run time, so the plan keeps the stride and the size as a
// bounds limit instead of folding the contribution into verbatimOffset.
type denseChild struct {
	child  int
	stride int
	limit  int
}

// densePlan precomputes the dense addressing of a peek: which indexed
// dimensions are iterated (loopCounts/loopStrides, ascending name order,
// which is also the result's dimension order) and which are pinned, either
// verbatim (literal labels, folded into verbatimOffset at compile time) or
// per-invocation (children).
type densePlan struct {
	inDenseSize    int
	outDenseSize   int
	loopCounts     []int
	loopStrides    []int
	verbatimOffset int
	children       []denseChild
}

func newDensePlan(inputType mixed.Type, spec Spec) *densePlan {
	dims, specs := classify(true, inputType.Dimensions(), spec)

	// Row-major strides: rightmost dimension varies fastest.
	strides := make([]int, len(dims))
	size := 1
	for ii := len(dims) - 1; ii >= 0; ii-- {
		strides[ii] = size
		size *= dims[ii].Size
	}

	plan := &densePlan{inDenseSize: size, outDenseSize: 1}
	specPos := 0
	for ii, dim := range dims {
		if specPos == len(specs) || dim.Name < specs[specPos].name {
			// Free dimension: one nested loop, surviving into the result.
			plan.loopCounts = append(plan.loopCounts, dim.Size)
			plan.loopStrides = append(plan.loopStrides, strides[ii])
			plan.outDenseSize *= dim.Size
			continue
		}
		switch pin := specs[specPos].pin.(type) {
		case ChildRef:
			plan.children = append(plan.children, denseChild{child: int(pin), stride: strides[ii], limit: dim.Size})
		case IndexLabel:
			if int(pin) < 0 || int(pin) >= dim.Size {
				exceptions.Panicf("peek: label %d out of range for indexed dimension %s of %s",
					int(pin), dim, inputType)
			}
			plan.verbatimOffset += int(pin) * strides[ii]
		case NameLabel:
			exceptions.Panicf("peek: indexed dimension %s of %s pinned with mapped label %q",
				dim, inputType, string(pin))
		}
		specPos++
	}
	return plan
}

// offset resolves the dense base offset for one invocation: verbatimOffset
// plus the contribution of every child-pinned dimension. Child values are
// truncated toward zero; any coordinate outside [0, limit) makes the whole
// dense addressing miss for this invocation and ok comes back false.
func (plan *densePlan) offset(getChild getChildFn) (offset int, ok bool) {
	offset = plan.verbatimOffset
	for _, child := range plan.children {
		coord := int64(getChild(child.child))
		if coord < 0 || coord >= int64(child.limit) {
			return 0, false
		}
		offset += int(coord) * child.stride
	}
	return offset, true
}

// execute visits the input cell offset of every output cell, in output
// row-major order, starting from the resolved base offset.
func (plan *densePlan) execute(base int, visit func(offset int)) {
	runNestedLoop(base, plan.loopCounts, plan.loopStrides, visit)
}

// sparsePlan precomputes the sparse side of a peek: how many mapped
// dimensions survive into the result, and for the pinned ones, their
// positions (viewDims, used to open the lookup view) and their pins in
// lookup-key order (ascending dimension name, not spec declaration order).
type sparsePlan struct {
	outMappedDims int
	lookupSpecs   []dimSpec
	viewDims      []int
}

func newSparsePlan(inputType mixed.Type, spec Spec) *sparsePlan {
	dims, specs := classify(false, inputType.Dimensions(), spec)
	plan := &sparsePlan{lookupSpecs: specs}
	specPos := 0
	for dimIdx, dim := range dims {
		if specPos == len(specs) || dim.Name < specs[specPos].name {
			plan.outMappedDims++
			continue
		}
		if _, bad := specs[specPos].pin.(IndexLabel); bad {
			exceptions.Panicf("peek: mapped dimension %s of %s pinned with indexed label",
				dim, inputType)
		}
		plan.viewDims = append(plan.viewDims, dimIdx)
		specPos++
	}
	return plan
}

// sparseState is the per-invocation scratch of the sparse lookup: the
// resolved key strings in view order, and the buffer the view fills with the
// coordinates of the surviving mapped dimensions.
type sparseState struct {
	viewAddr   []string
	outputAddr []string
}

// makeState resolves the lookup keys for one invocation: literal names are
// used verbatim, child values are truncated and formatted as base-10 decimal
// strings -- the addressing convention for sparse coordinates that originated
// as computed integers.
func (plan *sparsePlan) makeState(getChild getChildFn) sparseState {
	viewAddr := make([]string, 0, len(plan.lookupSpecs))
	for _, spec := range plan.lookupSpecs {
		switch pin := spec.pin.(type) {
		case ChildRef:
			viewAddr = append(viewAddr, strconv.FormatInt(int64(getChild(int(pin))), 10))
		case NameLabel:
			viewAddr = append(viewAddr, string(pin))
		case IndexLabel:
			exceptions.Panicf("peek: mapped dimension %q pinned with indexed label", spec.name)
		}
	}
	return sparseState{
		viewAddr:   viewAddr,
		outputAddr: make([]string, plan.outMappedDims),
	}
}

// peekParam is everything a compiled peek shares across invocations.
// Immutable after newPeekParam.
type peekParam struct {
	resType     mixed.Type
	densePlan   *densePlan
	sparsePlan  *sparsePlan
	numChildren int
}

func newPeekParam(inputType, resType mixed.Type, spec Spec) *peekParam {
	param := &peekParam{
		resType:     resType,
		densePlan:   newDensePlan(inputType, spec),
		sparsePlan:  newSparsePlan(inputType, spec),
		numChildren: spec.CountChildren(),
	}
	if param.densePlan.inDenseSize != inputType.DenseSubspaceSize() {
		exceptions.Panicf("peek: dense plan input size %d != input type %s subspace size %d",
			param.densePlan.inDenseSize, inputType, inputType.DenseSubspaceSize())
	}
	if param.densePlan.outDenseSize != resType.DenseSubspaceSize() {
		exceptions.Panicf("peek: dense plan output size %d != result type %s subspace size %d",
			param.densePlan.outDenseSize, resType, resType.DenseSubspaceSize())
	}
	if param.sparsePlan.outMappedDims != resType.CountMappedDims() {
		exceptions.Panicf("peek: sparse plan keeps %d mapped dimensions, result type %s has %d",
			param.sparsePlan.outMappedDims, resType, resType.CountMappedDims())
	}
	if klog.V(2).Enabled() {
		klog.Infof("peek: compiled %s -> %s with spec %s: %d free dense loops, %d children, %d lookup keys",
			inputType, resType, spec, len(param.densePlan.loopCounts), param.numChildren,
			len(param.sparsePlan.viewDims))
	}
	return param
}

// mixedPeek executes one peek invocation: resolve the dense base offset, look
// up the pinned sparse keys, and copy one dense subspace per match into a
// freshly built value. If the dense addressing misses or no sparse entry
// matches, no subspace is filled from the input -- but a fully dense result
// still gets its single default-valued subspace.
func mixedPeek[ICT, OCT dtypes.Supported](
	param *peekParam, input values.Value, getChild getChildFn, convert func(ICT) OCT) values.Value {
	inputCells := input.Cells().([]ICT)
	builder := values.NewBuilder[OCT](param.resType,
		param.sparsePlan.outMappedDims, param.densePlan.outDenseSize, 1)
	filledSubspaces := 0
	if denseOffset, ok := param.densePlan.offset(getChild); ok {
		state := param.sparsePlan.makeState(getChild)
		view := input.Index().CreateView(param.sparsePlan.viewDims)
		view.Lookup(state.viewAddr)
		for {
			inputSubspace, ok := view.NextResult(state.outputAddr)
			if !ok {
				break
			}
			dst := builder.AddSubspace(state.outputAddr)
			pos := 0
			base := inputSubspace*param.densePlan.inDenseSize + denseOffset
			param.densePlan.execute(base, func(offset int) {
				dst[pos] = convert(inputCells[offset])
				pos++
			})
			filledSubspaces++
		}
	}
	if param.sparsePlan.outMappedDims == 0 && filledSubspaces == 0 {
		// A fully dense result logically always has its single subspace, even
		// when no input data matched: emit it with default-valued cells.
		var zero OCT
		dst := builder.AddSubspace(nil)
		for ii := range dst {
			dst[ii] = zero
		}
	}
	return builder.Build()
}

// MakePeekInstruction compiles a peek operation for the given input and
// result types and specification. The result type is decided by the caller's
// type inference, not derived here; inconsistencies between the three panic.
//
// The returned instruction pops spec.CountChildren() scalar operands plus,
// below them, the input value, and pushes the result: child i sits at stack
// depth numChildren-1-i, so the last-pushed operand is the highest child
// index.
func MakePeekInstruction(inputType, resType mixed.Type, spec Spec) interp.Instruction {
	param := newPeekParam(inputType, resType, spec)
	return interp.Instruction{Fn: peekFnForCellTypes(inputType.DType(), resType.DType(), param)}
}

// peekFn is the execution half of a compiled peek, bound to one (input cell
// type, output cell type) pair.
type peekFn = func(state *interp.State)

func makePeekFn[ICT, OCT dtypes.Supported](param *peekParam) peekFn {
	convert := cellConverter[ICT, OCT]()
	return func(state *interp.State) {
		input := state.Peek(param.numChildren)
		lastChild := param.numChildren - 1
		getChild := func(child int) float64 {
			return state.Peek(lastChild - child).AsDouble()
		}
		result := mixedPeek(param, input, getChild, convert)
		state.PopNPush(param.numChildren+1, result)
	}
}

// cellConverter returns the From -> To cell conversion. Identical
// representations copy as-is; every other pair goes through float64, the
// evaluator's numeric model.
func cellConverter[From, To dtypes.Supported]() func(From) To {
	identity := func(v From) From { return v }
	if convert, ok := any(identity).(func(From) To); ok {
		return convert
	}
	return func(v From) To {
		return values.ConvertFromFloat64[To](values.ConvertToFloat64(v))
	}
}

// peekFnForCellTypes selects the specialization for the (input, output) cell
// representation pair, once, at compile time.
func peekFnForCellTypes(inputDType, outputDType dtypes.DType, param *peekParam) peekFn {
	switch inputDType {
	case dtypes.Int8:
		return peekFnForOutput[int8](outputDType, param)
	case dtypes.Int16:
		return peekFnForOutput[int16](outputDType, param)
	case dtypes.Int32:
		return peekFnForOutput[int32](outputDType, param)
	case dtypes.Int64:
		return peekFnForOutput[int64](outputDType, param)
	case dtypes.Uint8:
		return peekFnForOutput[uint8](outputDType, param)
	case dtypes.Uint16:
		return peekFnForOutput[uint16](outputDType, param)
	case dtypes.Uint32:
		return peekFnForOutput[uint32](outputDType, param)
	case dtypes.Uint64:
		return peekFnForOutput[uint64](outputDType, param)
	case dtypes.Float32:
		return peekFnForOutput[float32](outputDType, param)
	case dtypes.Float64:
		return peekFnForOutput[float64](outputDType, param)
	case dtypes.BFloat16:
		return peekFnForOutput[bfloat16.BFloat16](outputDType, param)
	case dtypes.Float16:
		return peekFnForOutput[float16.Float16](outputDType, param)
	}
	exceptions.Panicf("peek: input cell type %s not supported", inputDType)
	return nil
}

func peekFnForOutput[ICT dtypes.Supported](outputDType dtypes.DType, param *peekParam) peekFn {
	switch outputDType {
	case dtypes.Int8:
		return makePeekFn[ICT, int8](param)
	case dtypes.Int16:
		return makePeekFn[ICT, int16](param)
	case dtypes.Int32:
		return makePeekFn[ICT, int32](param)
	case dtypes.Int64:
		return makePeekFn[ICT, int64](param)
	case dtypes.Uint8:
		return makePeekFn[ICT, uint8](param)
	case dtypes.Uint16:
		return makePeekFn[ICT, uint16](param)
	case dtypes.Uint32:
		return makePeekFn[ICT, uint32](param)
	case dtypes.Uint64:
		return makePeekFn[ICT, uint64](param)
	case dtypes.Float32:
		return makePeekFn[ICT, float32](param)
	case dtypes.Float64:
		return makePeekFn[ICT, float64](param)
	case dtypes.BFloat16:
		return makePeekFn[ICT, bfloat16.BFloat16](param)
	case dtypes.Float16:
		return makePeekFn[ICT, float16.Float16](param)
	}
	exceptions.Panicf("peek: output cell type %s not supported", outputDType)
	return nil
}
