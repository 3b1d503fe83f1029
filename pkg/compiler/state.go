package compiler

import (
	"tlog.app/go/tlog"

	"github.com/chazu/bst2go/pkg/ir"
)

// State is the symbolic stack machine state for one instruction sequence:
// the operand stack, the statements emitted so far and the locals the
// sequence took from its caller's stack.
//
// Popping an empty stack never fails. It creates a fresh local standing for
// a value the caller will provide, which is how branch and loop bodies read
// values pushed before them.
type State struct {
	c     *Compiler
	entry string // Go variable holding the current entry

	stack  []ir.Node
	stmts  []ir.Node
	locals []*ir.Local
}

// NewState creates a top level state bound to the entry variable.
func (c *Compiler) NewState(entry string) *State {
	return &State{c: c, entry: entry}
}

// Nested creates an independent state sharing the compiler and entry.
func (st *State) Nested() *State {
	return &State{c: st.c, entry: st.entry}
}

// Push pushes a value.
func (st *State) Push(n ir.Node) {
	st.stack = append(st.stack, n)
}

// Pop pops a value, taking a new input local if the stack is empty.
func (st *State) Pop() ir.Node {
	if len(st.stack) == 0 {
		return st.newInput()
	}

	n := st.stack[len(st.stack)-1]
	st.stack = st.stack[:len(st.stack)-1]

	return n
}

func (st *State) newInput() *ir.Local {
	l := st.c.slots.New(ir.TypeUnknown)

	st.stmts = append(st.stmts, &ir.InitLocal{Slot: l})
	st.locals = append(st.locals, l)

	tlog.V("eval").Printw("new input", "slot", l, "inputs", len(st.locals))

	return l
}

// PopAs pops a value and converts it to t.
func (st *State) PopAs(t ir.Type, op string) (ir.Node, error) {
	return st.Coerce(st.Pop(), t, op)
}

// Add appends a statement. Stack values the statement could change are
// first copied into locals, since stack expressions are evaluated lazily.
func (st *State) Add(stmt ir.Node) {
	w := ir.Writes(stmt)

	for i, v := range st.stack {
		if ir.Touches(v, w) {
			tlog.V("eval").Printw("spill", "pos", i)

			st.stack[i] = st.materialize(v)
		}
	}

	st.stmts = append(st.stmts, stmt)
}

// Pad takes n more inputs and places them below the current stack.
func (st *State) Pad(n int) {
	for i := 0; i < n; i++ {
		l := st.newInput()
		st.stack = append([]ir.Node{l}, st.stack...)
	}
}

// Len returns the operand stack size.
func (st *State) Len() int { return len(st.stack) }

// Stack returns the operand stack, bottom first.
func (st *State) Stack() []ir.Node { return st.stack }

// Statements returns the emitted statements.
func (st *State) Statements() []ir.Node { return st.stmts }

// Locals returns the inputs taken from the caller, in pop order.
func (st *State) Locals() []*ir.Local { return st.locals }

// fromTop returns the stack value i positions below the top.
func (st *State) fromTop(i int) ir.Node {
	return st.stack[len(st.stack)-1-i]
}

// materialize stores v in a fresh local and returns the local.
func (st *State) materialize(v ir.Node) *ir.Local {
	if v.Type() == ir.TypeBool {
		v = st.boolToInt(v)
	}

	l := st.c.slots.New(v.Type())
	st.c.flow(l, v)
	st.stmts = append(st.stmts, &ir.InitLocal{Slot: l, Value: v})

	return l
}

// EliminateSideEffects copies into fresh locals every stack value that
// reads one of targets[:k] while sitting at the position assigned by
// targets[k]. Values are then safe to assign to targets in order.
//
// targets is indexed by stack position, bottom first; nil entries are not
// assigned.
func (st *State) EliminateSideEffects(targets []*ir.Local) {
	var written []*ir.Local

	for j, t := range targets {
		if t == nil {
			continue
		}

		v := st.stack[j]
		for _, w := range written {
			if ir.ReadsSlot(v, w) {
				st.stack[j] = st.materialize(v)
				break
			}
		}

		written = append(written, t)
	}
}

// assignTo returns the statements assigning stack values to targets.
// Call EliminateSideEffects first.
func (st *State) assignTo(targets []*ir.Local, op string) ([]ir.Node, error) {
	var res []ir.Node

	for j, t := range targets {
		if t == nil {
			continue
		}

		v := st.stack[j]
		if l, ok := v.(*ir.Local); ok && l.Same(t) {
			continue
		}

		v, err := st.Coerce(v, t.Type(), op)
		if err != nil {
			return nil, err
		}

		st.c.flow(t, v)
		res = append(res, &ir.AssignLocal{Slot: t, Value: v})
	}

	return res, nil
}

// body returns the statements without the placeholders declaring inputs.
func (st *State) body() []ir.Node {
	res := make([]ir.Node, 0, len(st.stmts))

outer:
	for _, s := range st.stmts {
		if init, ok := s.(*ir.InitLocal); ok && init.Value == nil {
			for _, l := range st.locals {
				if init.Slot == l {
					continue outer
				}
			}
		}

		res = append(res, s)
	}

	return res
}

// bind pops one caller value per input and makes the input hold it.
// A caller local is aliased to the input when their types agree.
func (st *State) bind(inputs []*ir.Local, op string) error {
	aliased := map[int]bool{}

	for _, in := range inputs {
		v := st.Pop()

		if l, ok := v.(*ir.Local); ok && !aliased[l.ID()] {
			if _, err := ir.MergeTypes(in.Type(), l.Type()); err == nil {
				if err := st.c.slots.Union(in, l); err != nil {
					return &TypeShapeError{Op: op, Want: in.Type().String(), Got: l.Type().String()}
				}

				aliased[in.ID()] = true

				continue
			}
		}

		t := in.Type()
		if t == ir.TypeUnknown {
			t = slotType(v.Type())
		}

		v, err := st.Coerce(v, t, op)
		if err != nil {
			return err
		}

		if err := st.c.slots.Refine(in, t); err != nil {
			return &TypeShapeError{Op: op, Want: in.Type().String(), Got: t.String()}
		}

		st.c.flow(in, v)
		st.Add(&ir.InitLocal{Slot: in, Value: v})
	}

	return nil
}

// slotType is the type a local takes to hold a value of type t.
// Locals never hold bools so that later unification cannot retype them.
func slotType(t ir.Type) ir.Type {
	if t == ir.TypeBool {
		return ir.TypeInt
	}
	return t
}

// Coerce converts v to type t.
//
// bool converts to int through boolToInt and int to bool as v > 0. A local
// of unknown type takes the requested type. Strings never convert.
func (st *State) Coerce(v ir.Node, t ir.Type, op string) (ir.Node, error) {
	vt := v.Type()

	if t == ir.TypeUnknown || vt == t {
		return v, nil
	}

	if vt == ir.TypeCode || t == ir.TypeCode {
		return nil, &TypeShapeError{Op: op, Want: t.String(), Got: describe(v)}
	}

	if vt == ir.TypeUnknown {
		l, ok := v.(*ir.Local)
		if !ok {
			return v, nil
		}

		if err := st.c.slots.Refine(l, slotType(t)); err != nil {
			return nil, &TypeShapeError{Op: op, Want: t.String(), Got: l.Type().String()}
		}

		if t == ir.TypeBool {
			return intToBool(l), nil
		}

		return l, nil
	}

	switch {
	case t == ir.TypeInt && vt == ir.TypeBool:
		return st.boolToInt(v), nil
	case t == ir.TypeBool && vt == ir.TypeInt:
		return intToBool(v), nil
	}

	return nil, &TypeShapeError{Op: op, Want: t.String(), Got: vt.String()}
}

func (st *State) boolToInt(v ir.Node) ir.Node {
	if lit, ok := v.(*ir.Literal); ok {
		if lit.Bool {
			return ir.IntLit(1)
		}
		return ir.IntLit(0)
	}

	st.c.link(helperBoolToInt)

	return &ir.Call{Typ: ir.TypeInt, Name: helperBoolToInt, Args: []ir.Node{v}}
}

func intToBool(v ir.Node) ir.Node {
	switch v := v.(type) {
	case *ir.Literal:
		return ir.BoolLit(v.Int > 0)
	case *ir.Call:
		if v.Name == helperBoolToInt && v.Recv == nil && v.Pkg == "" {
			return v.Args[0]
		}
	}

	return &ir.Binary{Op: ">", Prec: ir.PrecCompare, Typ: ir.TypeBool, L: v, R: ir.IntLit(0)}
}
