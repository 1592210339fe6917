package instruction

// runNestedLoop calls visit once per combination of loop indices, with the
// linear offset base + sum(index[i]*strides[i]). The first (count, stride)
// pair is the outermost loop, so offsets come out in row-major order over the
// loop dimensions. Zero pairs means a single visit of base itself.
//
// The small-arity cases are unrolled: most peek plans have at most two free
// dense dimensions.
func runNestedLoop(base int, counts, strides []int, visit func(offset int)) {
	switch len(counts) {
	case 0:
		visit(base)
	case 1:
		for i, offset := 0, base; i < counts[0]; i, offset = i+1, offset+strides[0] {
			visit(offset)
		}
	case 2:
		for i, outer := 0, base; i < counts[0]; i, outer = i+1, outer+strides[0] {
			for j, offset := 0, outer; j < counts[1]; j, offset = j+1, offset+strides[1] {
				visit(offset)
			}
		}
	default:
		for i, outer := 0, base; i < counts[0]; i, outer = i+1, outer+strides[0] {
			runNestedLoop(outer, counts[1:], strides[1:], visit)
		}
	}
}
