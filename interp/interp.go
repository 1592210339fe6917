// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package interp holds the operand-stack machine that teneval instructions
// run on.
//
// A compiled operation is an Instruction: a function over the State that pops
// its operands off the stack and pushes its one result. Instructions are
// compiled once (see the instruction package) and can be executed many times;
// everything precomputed is owned by the instruction closure and read-only, so
// the same Instruction may run concurrently on independent States.
package interp

import (
	"github.com/gomlx/exceptions"

	"github.com/gomlx/teneval/values"
)

// Instruction is one compiled operation. Fn pops the operands it was compiled
// for and pushes exactly one result.
type Instruction struct {
	Fn func(state *State)
}

// State is the operand stack of one evaluation. It is not goroutine-safe:
// each concurrent evaluation uses its own State.
type State struct {
	stack []values.Value
}

// NewState returns an empty State.
func NewState() *State {
	return &State{}
}

// Depth returns the number of values on the stack.
func (s *State) Depth() int { return len(s.stack) }

// Push v on top of the stack.
func (s *State) Push(v values.Value) {
	s.stack = append(s.stack, v)
}

// Pop removes and returns the top of the stack.
// Popping an empty stack is an interpreter bug and panics.
func (s *State) Pop() values.Value {
	if len(s.stack) == 0 {
		exceptions.Panicf("interp: pop of empty stack")
	}
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v
}

// Peek returns the value depth positions below the top (Peek(0) is the top)
// without removing it.
func (s *State) Peek(depth int) values.Value {
	if depth < 0 || depth >= len(s.stack) {
		exceptions.Panicf("interp: peek depth %d on stack of %d", depth, len(s.stack))
	}
	return s.stack[len(s.stack)-1-depth]
}

// PopNPush pops n values and pushes v, the net stack effect of an instruction
// consuming n operands.
func (s *State) PopNPush(n int, v values.Value) {
	if n < 0 || n > len(s.stack) {
		exceptions.Panicf("interp: pop %d on stack of %d", n, len(s.stack))
	}
	s.stack = s.stack[:len(s.stack)-n]
	s.stack = append(s.stack, v)
}

// Run executes a straight-line sequence of instructions.
func (s *State) Run(program []Instruction) {
	for _, instr := range program {
		instr.Fn(s)
	}
}
