package ir

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/dave/jennifer/jen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(c jen.Code) string {
	return fmt.Sprintf("%#v", c)
}

func TestSlots_Union(t *testing.T) {
	s := NewSlots()
	a := s.New(TypeUnknown)
	b := s.New(TypeInt)
	c := s.New(TypeBool)

	assert.False(t, a.Same(b))

	require.NoError(t, s.Union(b, a))
	assert.True(t, a.Same(b))
	assert.Equal(t, 0, b.ID(), "first discovered slot is the root")
	assert.Equal(t, TypeInt, a.Type())

	require.NoError(t, s.Union(c, a))
	assert.True(t, c.Same(b))
	assert.Equal(t, TypeInt, c.Type())

	d := s.New(TypeString)
	assert.Error(t, s.Union(a, d))
	assert.False(t, a.Same(d))
}

func TestMergeTypes(t *testing.T) {
	tests := []struct {
		a, b Type
		want Type
		err  bool
	}{
		{TypeUnknown, TypeString, TypeString, false},
		{TypeInt, TypeUnknown, TypeInt, false},
		{TypeInt, TypeBool, TypeInt, false},
		{TypeBool, TypeBool, TypeBool, false},
		{TypeString, TypeInt, TypeUnknown, true},
		{TypeString, TypeBool, TypeUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.a.String()+"+"+tt.b.String(), func(t *testing.T) {
			got, err := MergeTypes(tt.a, tt.b)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmit_Expressions(t *testing.T) {
	s := NewSlots()
	a := s.New(TypeInt)
	b := s.New(TypeInt)

	title := &VarRef{Kind: VarField, Scope: "entry", Name: "title"}
	label := &VarRef{Kind: VarLocalString, Scope: "entry", Name: "label"}
	count := &VarRef{Kind: VarGlobalInt, Scope: "s", Name: "count", Ident: "count"}

	tests := []struct {
		name string
		node Node
		want string
	}{
		{"concat", &Binary{Op: "+", Prec: PrecAdd, Typ: TypeString, L: StrLit("abc"), R: StrLit("def")}, `"abc" + "def"`},
		{"compare", &Binary{Op: ">", Prec: PrecCompare, Typ: TypeBool, L: a, R: b}, "v0 > v1"},
		{"field", title, `entry.Field("title")`},
		{"entry local", label, `entry.LocalString("label")`},
		{"global", count, "s.count"},
		{"right assoc parens", &Binary{Op: "-", Prec: PrecAdd, Typ: TypeInt, L: a,
			R: &Binary{Op: "-", Prec: PrecAdd, Typ: TypeInt, L: b, R: IntLit(1)}}, "v0 - (v1 - 1)"},
		{"not compare", &Not{X: &Binary{Op: "&&", Prec: PrecAnd, Typ: TypeBool, L: BoolLit(true), R: BoolLit(false)}}, "!(true && false)"},
		{"package call", &Call{Typ: TypeString, Pkg: "strconv", Name: "Itoa", Args: []Node{a}}, "strconv.Itoa(v0)"},
		{"method call", &Call{Typ: TypeString, Recv: []string{"s", "rt"}, Name: "Purify", Args: []Node{title}}, `s.rt.Purify(entry.Field("title"))`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(NewEmitter().Expr(tt.node)))
		})
	}
}

func TestEmit_Statements(t *testing.T) {
	s := NewSlots()
	x := s.New(TypeInt)
	str := s.New(TypeUnknown)

	e := NewEmitter()

	assert.Equal(t, "var v0 int", render(e.Stmt(&InitLocal{Slot: x})))
	assert.Equal(t, "v0 = 1", render(e.Stmt(&AssignLocal{Slot: x, Value: IntLit(1)})))
	assert.Equal(t, "var v1 interface{}", render(e.Stmt(&InitLocal{Slot: str})))
	assert.Equal(t, `v1 := "a"`, render(e.Stmt(&InitLocal{Slot: str, Value: StrLit("a")})))
	assert.Equal(t, "_ = v0", render(e.Stmt(&Discard{X: x})))

	field := &VarRef{Kind: VarField, Scope: "entry", Name: "note"}
	assert.Equal(t, `entry.Set("note", "n")`, render(e.Stmt(&Store{Ref: field, Value: StrLit("n")})))

	intLocal := &VarRef{Kind: VarLocalInt, Scope: "entry", Name: "len"}
	assert.Equal(t, `entry.SetLocalInt("len", v0)`, render(e.Stmt(&Store{Ref: intLocal, Value: x})))

	global := &VarRef{Kind: VarGlobalString, Scope: "s", Name: "s", Ident: "s_"}
	assert.Equal(t, `s.s_ = "x"`, render(e.Stmt(&Store{Ref: global, Value: StrLit("x")})))

	loop := &Loop{
		Cond: &Binary{Op: ">", Prec: PrecCompare, Typ: TypeBool, L: x, R: IntLit(0)},
		Body: []Node{&AssignLocal{Slot: x, Value: &Binary{Op: "-", Prec: PrecAdd, Typ: TypeInt, L: x, R: IntLit(1)}}},
	}
	assert.Equal(t, "for v0 > 0 {\n\tv0 = v0 - 1\n}", render(e.Stmt(loop)))
}

func TestEmit_ElseIfChain(t *testing.T) {
	s := NewSlots()
	x := s.New(TypeInt)

	n := &If{
		Cond: &Ident{Name: "a", Typ: TypeBool},
		Then: []Node{&AssignLocal{Slot: x, Value: IntLit(1)}},
		Else: []Node{&If{
			Cond: &Ident{Name: "b", Typ: TypeBool},
			Then: []Node{&AssignLocal{Slot: x, Value: IntLit(2)}},
		}},
	}

	assert.Equal(t, "if a {\n\tv0 = 1\n} else if b {\n\tv0 = 2\n}", render(NewEmitter().Stmt(n)))
}

func TestEmit_LocalNamesFollowUnification(t *testing.T) {
	s := NewSlots()
	a := s.New(TypeInt)
	b := s.New(TypeInt)
	c := s.New(TypeInt)

	require.NoError(t, s.Union(c, b))

	e := NewEmitter()
	assert.Equal(t, "v0", e.Name(c))
	assert.Equal(t, "v0", e.Name(b))
	assert.Equal(t, "v1", e.Name(a))
}

func TestEmit_Ternary(t *testing.T) {
	s := NewSlots()
	x := s.New(TypeInt)
	cond := &Ident{Name: "c", Typ: TypeBool}

	e := NewEmitter()
	simple := &Ternary{Typ: TypeInt, Cond: cond, Then: IntLit(1), Else: x}
	assert.Equal(t, "choose(c, 1, v0)", render(e.Expr(simple)))
	assert.True(t, e.Helpers[HelperChoose])

	e = NewEmitter()
	complexArm := &Ternary{Typ: TypeInt, Cond: cond,
		Then: &Binary{Op: "+", Prec: PrecAdd, Typ: TypeInt, L: x, R: IntLit(1)}, Else: x}
	e.Name(x)
	y := s.New(TypeInt)

	// a function literal only formats as part of a statement
	got := render(e.Stmt(&InitLocal{Slot: y, Value: complexArm}))
	assert.Equal(t, `v1 := func() int {
	if c {
		return v0 + 1
	}
	return v0
}()`, got)
	assert.False(t, e.Helpers[HelperChoose])
}

func TestOptimize_BranchSwap(t *testing.T) {
	s := NewSlots()
	x := s.New(TypeInt)
	cond := &Binary{Op: "<", Prec: PrecCompare, Typ: TypeBool, L: x, R: IntLit(3)}

	out := Optimize([]Node{&If{Cond: cond, Else: []Node{&AssignLocal{Slot: x, Value: IntLit(1)}}}})

	require.Len(t, out, 1)
	n := out[0].(*If)
	assert.Empty(t, n.Else)
	require.Len(t, n.Then, 1)
	assert.Equal(t, ">=", n.Cond.(*Binary).Op)
}

func TestOptimize_EmptyIfDropped(t *testing.T) {
	out := Optimize([]Node{&If{Cond: &Ident{Name: "c", Typ: TypeBool}}})
	assert.Empty(t, out)

	s := NewSlots()
	x := s.New(TypeInt)
	cond := &Binary{Op: ">", Prec: PrecCompare, Typ: TypeBool, L: x, R: IntLit(0)}

	// x stays used in the output
	out = Optimize([]Node{&If{Cond: cond}})
	require.Len(t, out, 1)
	assert.Equal(t, &Discard{X: cond}, out[0])
	assert.Equal(t, "_ = v0 > 0", render(NewEmitter().Stmt(out[0])))
}

func TestOptimize_NestedIfFusion(t *testing.T) {
	s := NewSlots()
	x := s.New(TypeInt)
	a := &Ident{Name: "a", Typ: TypeBool}
	b := &Ident{Name: "b", Typ: TypeBool}

	// if a {} else { if b {} else { x = 1 } } => if !a && !b { x = 1 }
	in := &If{Cond: a, Else: []Node{
		&If{Cond: b, Else: []Node{&AssignLocal{Slot: x, Value: IntLit(1)}}},
	}}

	out := Optimize([]Node{in})
	require.Len(t, out, 1)
	assert.Equal(t, "if !a && !b {\n\tv0 = 1\n}", render(NewEmitter().Stmt(out[0])))
}

func TestOptimize_TernaryInlining(t *testing.T) {
	s := NewSlots()
	x := s.New(TypeString)
	cond := &Ident{Name: "c", Typ: TypeBool}

	out := Optimize([]Node{
		&InitLocal{Slot: x},
		&If{Cond: cond,
			Then: []Node{&AssignLocal{Slot: x, Value: StrLit("a")}},
			Else: []Node{&AssignLocal{Slot: x, Value: StrLit("b")}},
		},
	})

	require.Len(t, out, 1)
	assert.Equal(t, `v0 := choose(c, "a", "b")`, render(NewEmitter().Stmt(out[0])))
}

func TestOptimize_TernaryNeedsBothBranches(t *testing.T) {
	s := NewSlots()
	x := s.New(TypeInt)

	in := []Node{
		&InitLocal{Slot: x},
		&If{Cond: &Ident{Name: "c", Typ: TypeBool}, Then: []Node{&AssignLocal{Slot: x, Value: IntLit(1)}}},
	}

	assert.Len(t, Optimize(in), 2)
}

func TestOptimize_RedundantInit(t *testing.T) {
	s := NewSlots()
	x := s.New(TypeInt)
	y := s.New(TypeInt)

	out := Optimize([]Node{
		&InitLocal{Slot: x},
		&AssignLocal{Slot: x, Value: y},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "v0 := v1", render(NewEmitter().Stmt(out[0])))

	// self-reading assignment must keep the declaration
	out = Optimize([]Node{
		&InitLocal{Slot: x},
		&AssignLocal{Slot: x, Value: &Binary{Op: "+", Prec: PrecAdd, Typ: TypeInt, L: x, R: IntLit(1)}},
	})
	assert.Len(t, out, 2)
}

func TestSimplify(t *testing.T) {
	s := NewSlots()
	x := s.New(TypeInt)
	c := &Ident{Name: "c", Typ: TypeBool}

	eq := &Binary{Op: "==", Prec: PrecCompare, Typ: TypeBool, L: x, R: IntLit(0)}

	assert.Equal(t, "!=", Simplify(&Not{X: eq}).(*Binary).Op)
	assert.Equal(t, c, Simplify(&Not{X: &Not{X: c}}))
	assert.Equal(t, BoolLit(false), Simplify(&Not{X: BoolLit(true)}))
	assert.Equal(t, &Not{X: c}, Simplify(&Not{X: c}))
}

func TestTouches(t *testing.T) {
	s := NewSlots()
	x := s.New(TypeInt)
	title := &VarRef{Kind: VarField, Scope: "entry", Name: "title"}
	concat := &Binary{Op: "+", Prec: PrecAdd, Typ: TypeString, L: title, R: StrLit("!")}

	store := &Store{Ref: &VarRef{Kind: VarField, Scope: "entry", Name: "title"}, Value: StrLit("")}
	assert.True(t, Touches(concat, Writes(store)))
	assert.False(t, Touches(x, Writes(store)))

	assign := &AssignLocal{Slot: x, Value: IntLit(1)}
	assert.True(t, Touches(x, Writes(&If{Cond: BoolLit(true), Then: []Node{assign}})))

	clobber := &ExprStmt{X: &Call{Typ: TypeVoid, Name: "callType", Clobbers: true}}
	assert.True(t, Touches(concat, Writes(clobber)))
	assert.False(t, Touches(x, Writes(clobber)))

	missing := &Call{Typ: TypeBool, Recv: []string{"entry"}, Name: "Missing", Args: []Node{StrLit("title")}, Reads: []string{"title"}}
	assert.True(t, Touches(missing, Writes(store)))
}

// randomTree builds a random statement list over a few slots.
func randomTree(r *rand.Rand, s *Slots, slots []*Local, depth int) []Node {
	n := r.Intn(4)
	res := make([]Node, 0, n)

	cond := func() Node {
		l := slots[r.Intn(len(slots))]
		c := Node(&Binary{Op: []string{"<", ">", "=="}[r.Intn(3)], Prec: PrecCompare, Typ: TypeBool, L: l, R: IntLit(r.Intn(3))})
		if r.Intn(2) == 0 {
			c = &Not{X: c}
		}
		return c
	}

	for i := 0; i < n; i++ {
		l := slots[r.Intn(len(slots))]

		switch k := r.Intn(5); {
		case k == 0 && depth > 0:
			res = append(res, &If{Cond: cond(), Then: randomTree(r, s, slots, depth-1), Else: randomTree(r, s, slots, depth-1)})
		case k == 1 && depth > 0:
			res = append(res, &Loop{Cond: cond(), Body: randomTree(r, s, slots, depth-1)})
		case k == 2:
			res = append(res, &InitLocal{Slot: l})
		default:
			res = append(res, &AssignLocal{Slot: l, Value: IntLit(r.Intn(5))})
		}
	}

	return res
}

func TestOptimize_Idempotent(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 300; i++ {
		s := NewSlots()
		slots := []*Local{s.New(TypeInt), s.New(TypeInt), s.New(TypeInt)}
		tree := randomTree(r, s, slots, 3)

		once := Optimize(tree)
		twice := Optimize(once)

		a := render(jen.Block(NewEmitter().Block(once)...))
		b := render(jen.Block(NewEmitter().Block(twice)...))
		require.Equal(t, a, b, "tree %d", i)
	}
}

func TestOptimize_BranchSymmetry(t *testing.T) {
	s := NewSlots()
	x := s.New(TypeInt)
	cond := &Binary{Op: "<", Prec: PrecCompare, Typ: TypeBool, L: x, R: IntLit(3)}
	body := []Node{&AssignLocal{Slot: x, Value: IntLit(1)}}

	a := Optimize([]Node{&If{Cond: cond, Else: body}})
	b := Optimize([]Node{&If{Cond: &Not{X: cond}, Then: body}})

	assert.Equal(t,
		render(jen.Block(NewEmitter().Block(a)...)),
		render(jen.Block(NewEmitter().Block(b)...)))
}

func TestMentions(t *testing.T) {
	s := NewSlots()
	x := s.New(TypeInt)

	title := &VarRef{Kind: VarField, Scope: "entry", Name: "title"}
	global := &VarRef{Kind: VarGlobalInt, Scope: "s", Name: "n", Ident: "n"}

	assert.True(t, Mentions("entry", &Store{Ref: global, Value: &Call{Typ: TypeInt, Name: "f", Args: []Node{title}}}))
	assert.True(t, Mentions("entry", &ExprStmt{X: &Call{Typ: TypeVoid, Recv: []string{"s"}, Name: "m", Args: []Node{&Ident{Name: "entry"}}}}))
	assert.True(t, Mentions("entry", &Loop{Cond: BoolLit(true), Body: []Node{&Discard{X: title}}}))
	assert.True(t, Mentions("s", &AssignLocal{Slot: x, Value: global}))

	assert.False(t, Mentions("entry", &Store{Ref: global, Value: x}))
	assert.False(t, Mentions("entry", &InitLocal{Slot: x}))
	assert.False(t, Mentions("entry", &ExprStmt{X: &Call{Typ: TypeVoid, Recv: []string{"s", "rt"}, Name: "Write", Args: []Node{StrLit("entry")}}}))
}
