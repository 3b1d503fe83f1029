package compiler

import (
	"strings"

	"github.com/chazu/bst2go/pkg/ir"
)

// buildFunc builds the result of a builtin from its coerced operands,
// given bottom first.
type buildFunc func(st *State, ret ir.Type, args []ir.Node) ir.Node

// RegisterBuiltins registers the standard BibTeX builtins.
func RegisterBuiltins(r *Registry) {
	var (
		I = ir.TypeInt
		S = ir.TypeString
		B = ir.TypeBool
		V = ir.TypeVoid
	)

	for _, b := range []*Builtin{
		{Name: "=", In: 2, Out: 1, Compile: compileEquals},
		simple(">", B, []ir.Type{I, I}, binary(">", ir.PrecCompare)),
		simple("<", B, []ir.Type{I, I}, binary("<", ir.PrecCompare)),
		simple("+", I, []ir.Type{I, I}, binary("+", ir.PrecAdd)),
		simple("-", I, []ir.Type{I, I}, binary("-", ir.PrecAdd)),
		simple("*", S, []ir.Type{S, S}, binary("+", ir.PrecAdd)),
		{Name: ":=", In: 2, Out: 0, Compile: compileAssign},
		simple("add.period$", S, []ir.Type{S}, rt("AddPeriod")),
		{Name: "call.type$", In: 0, Out: 0, Compile: compileCallType},
		simple("change.case$", S, []ir.Type{S, S}, rt("ChangeCase")),
		simple("chr.to.int$", I, []ir.Type{S}, helper(helperChrToInt)),
		simple("cite$", S, nil, entryCall("Key")),
		{Name: "duplicate$", In: 1, Out: 2, Compile: compileDuplicate},
		simple("empty$", B, []ir.Type{S}, empty),
		simple("format.name$", S, []ir.Type{S, I, S}, rt("FormatName")),
		{Name: "if$", In: 3, Out: -1, Compile: compileIf},
		simple("int.to.chr$", S, []ir.Type{I}, intToChr),
		simple("int.to.str$", S, []ir.Type{I}, pkgCall("strconv", "Itoa")),
		{Name: "missing$", In: 1, Out: 1, Compile: compileMissing},
		simple("newline$", V, nil, rt("Newline")),
		simple("num.names$", I, []ir.Type{S}, rt("NumNames")),
		{Name: "pop$", In: 1, Out: 0, Compile: compilePop},
		simple("preamble$", S, nil, dbCall("Preamble")),
		simple("purify$", S, []ir.Type{S}, rt("Purify")),
		simple("quote$", S, nil, constant(ir.StrLit(`"`))),
		{Name: "skip$", In: 0, Out: 0, Compile: func(*Compiler, *State) error { return nil }},
		{Name: "stack$", In: -1, Out: 0, Compile: compileStack},
		simple("substring$", S, []ir.Type{S, I, I}, rt("Substring")),
		{Name: "swap$", In: 2, Out: 2, Compile: compileSwap},
		simple("text.length$", I, []ir.Type{S}, rt("TextLength")),
		simple("text.prefix$", S, []ir.Type{S, I}, helper(helperTextPrefix)),
		{Name: "top$", In: 1, Out: 0, Compile: compileTop},
		simple("type$", S, nil, entryCall("Type")),
		simple("warning$", V, []ir.Type{S}, rt("Warning")),
		{Name: "while$", In: 2, Out: -1, Compile: compileWhile},
		simple("width$", I, []ir.Type{S}, rt("Width")),
		simple("write$", V, []ir.Type{S}, rt("Write")),
		{Name: "entry.max$", In: 0, Out: 1, Compile: func(c *Compiler, st *State) error {
			st.Push(ir.IntLit(c.opts.EntryMax))
			return nil
		}},
		{Name: "global.max$", In: 0, Out: 1, Compile: func(c *Compiler, st *State) error {
			st.Push(ir.IntLit(c.opts.GlobalMax))
			return nil
		}},
	} {
		r.Register(b)
	}
}

// simple makes a builtin popping typed operands and either pushing the
// built value or, for void results, appending it as a statement.
func simple(name string, ret ir.Type, params []ir.Type, build buildFunc) *Builtin {
	out := 1
	if ret == ir.TypeVoid {
		out = 0
	}

	return &Builtin{
		Name: name,
		In:   len(params),
		Out:  out,
		Compile: func(c *Compiler, st *State) error {
			args := make([]ir.Node, len(params))

			for i := len(params) - 1; i >= 0; i-- {
				v, err := st.PopAs(params[i], name)
				if err != nil {
					return err
				}
				args[i] = v
			}

			n := build(st, ret, args)

			if ret == ir.TypeVoid {
				st.Add(&ir.ExprStmt{X: n})
				return nil
			}

			st.Push(n)

			return nil
		},
	}
}

func binary(op string, prec int) buildFunc {
	return func(st *State, ret ir.Type, args []ir.Node) ir.Node {
		return &ir.Binary{Op: op, Prec: prec, Typ: ret, L: args[0], R: args[1]}
	}
}

func rt(name string) buildFunc {
	return func(st *State, ret ir.Type, args []ir.Node) ir.Node {
		return &ir.Call{Typ: ret, Recv: []string{recvName, "rt"}, Name: name, Args: args}
	}
}

func dbCall(name string) buildFunc {
	return func(st *State, ret ir.Type, args []ir.Node) ir.Node {
		return &ir.Call{Typ: ret, Recv: []string{recvName, "bibDB"}, Name: name, Args: args}
	}
}

func entryCall(name string) buildFunc {
	return func(st *State, ret ir.Type, args []ir.Node) ir.Node {
		return &ir.Call{Typ: ret, Recv: []string{st.entry}, Name: name, Args: args}
	}
}

func pkgCall(pkg, name string) buildFunc {
	return func(st *State, ret ir.Type, args []ir.Node) ir.Node {
		return &ir.Call{Typ: ret, Pkg: pkg, Name: name, Args: args}
	}
}

func helper(name string) buildFunc {
	return func(st *State, ret ir.Type, args []ir.Node) ir.Node {
		st.c.link(name)
		return &ir.Call{Typ: ret, Name: name, Args: args}
	}
}

func constant(n ir.Node) buildFunc {
	return func(*State, ir.Type, []ir.Node) ir.Node { return n }
}

func empty(st *State, ret ir.Type, args []ir.Node) ir.Node {
	if lit, ok := args[0].(*ir.Literal); ok {
		return ir.BoolLit(strings.TrimSpace(lit.Str) == "")
	}

	trim := &ir.Call{Typ: ir.TypeString, Pkg: "strings", Name: "TrimSpace", Args: args}

	return &ir.Binary{Op: "==", Prec: ir.PrecCompare, Typ: ir.TypeBool, L: trim, R: ir.StrLit("")}
}

func intToChr(st *State, ret ir.Type, args []ir.Node) ir.Node {
	if lit, ok := args[0].(*ir.Literal); ok {
		return ir.StrLit(string(rune(lit.Int)))
	}

	r := &ir.Call{Typ: ir.TypeInt, Name: "rune", Args: args}

	return &ir.Call{Typ: ret, Name: "string", Args: []ir.Node{r}}
}

// compileEquals compares strings if either operand is a string, bools if
// both are bools and ints otherwise.
func compileEquals(c *Compiler, st *State) error {
	r, l := st.Pop(), st.Pop()

	t := ir.TypeInt
	switch {
	case l.Type() == ir.TypeString || r.Type() == ir.TypeString:
		t = ir.TypeString
	case l.Type() == ir.TypeBool && r.Type() == ir.TypeBool:
		t = ir.TypeBool
	}

	l, err := st.Coerce(l, t, "=")
	if err != nil {
		return err
	}

	r, err = st.Coerce(r, t, "=")
	if err != nil {
		return err
	}

	st.Push(&ir.Binary{Op: "==", Prec: ir.PrecCompare, Typ: ir.TypeBool, L: l, R: r})

	return nil
}

// compileAssign handles value 'name :=.
func compileAssign(c *Compiler, st *State) error {
	target := st.Pop()

	q, ok := target.(*ir.QuoteRef)
	if !ok {
		return &TypeShapeError{Op: ":=", Want: "quoted variable", Got: describe(target)}
	}

	ref, ok := c.variable(q.Name, st.entry)
	if !ok {
		if c.isFunction(q.Name) {
			return &TypeShapeError{Op: ":=", Want: "variable", Got: "function " + q.Name}
		}
		return &UnknownNameError{Name: q.Name}
	}

	v, err := st.PopAs(ref.Type(), ":=")
	if err != nil {
		return err
	}

	st.Add(&ir.Store{Ref: ref, Value: v})

	return nil
}

func compileCallType(c *Compiler, st *State) error {
	c.link(helperCallType)

	st.Add(&ir.ExprStmt{X: &ir.Call{
		Typ:      ir.TypeVoid,
		Recv:     []string{recvName},
		Name:     helperCallType,
		Args:     []ir.Node{&ir.Ident{Name: st.entry, Typ: ir.TypeUnknown}},
		Clobbers: true,
	}})

	return nil
}

// compileDuplicate evaluates a non-trivial value once before pushing it
// twice.
func compileDuplicate(c *Compiler, st *State) error {
	v := st.Pop()
	if !ir.Trivial(v) {
		v = st.materialize(v)
	}

	st.Push(v)
	st.Push(v)

	return nil
}

// compileMissing is true only for a field absent from the current entry.
func compileMissing(c *Compiler, st *State) error {
	v := st.Pop()

	switch v := v.(type) {
	case *ir.VarRef:
		if v.Kind == ir.VarField {
			st.Push(&ir.Call{
				Typ:   ir.TypeBool,
				Recv:  []string{v.Scope},
				Name:  "Missing",
				Args:  []ir.Node{ir.StrLit(v.Name)},
				Reads: []string{v.Name},
			})
			return nil
		}
	case *ir.BlockRef, *ir.QuoteRef:
		return &TypeShapeError{Op: "missing$", Want: "field", Got: describe(v)}
	}

	discardLocals(st, v)

	st.Push(ir.BoolLit(false))

	return nil
}

func compilePop(c *Compiler, st *State) error {
	discardLocals(st, st.Pop())

	return nil
}

// discardLocals drops v, keeping the locals it reads used in the generated code.
func discardLocals(st *State, v ir.Node) {
	if len(ir.Reads(v).Slots) != 0 {
		st.Add(&ir.Discard{X: v})
	}
}

// compileStack prints and clears what is on the symbolic stack. Values the
// caller pushed before are not reachable.
func compileStack(c *Compiler, st *State) error {
	args := make([]ir.Node, len(st.stack))

	for i, v := range st.stack {
		if v.Type() == ir.TypeCode {
			return &TypeShapeError{Op: "stack$", Want: "value", Got: describe(v)}
		}
		args[i] = v
	}

	st.stack = st.stack[:0]

	st.Add(&ir.ExprStmt{X: &ir.Call{Typ: ir.TypeVoid, Recv: []string{recvName, "rt"}, Name: "Stack", Args: args}})

	return nil
}

func compileSwap(c *Compiler, st *State) error {
	a, b := st.Pop(), st.Pop()

	st.Push(a)
	st.Push(b)

	return nil
}

func compileTop(c *Compiler, st *State) error {
	v := st.Pop()
	if v.Type() == ir.TypeCode {
		return &TypeShapeError{Op: "top$", Want: "value", Got: describe(v)}
	}

	st.Add(&ir.ExprStmt{X: &ir.Call{Typ: ir.TypeVoid, Recv: []string{recvName, "rt"}, Name: "Top", Args: []ir.Node{v}}})

	return nil
}
