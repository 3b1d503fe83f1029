package compiler

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/bst2go/pkg/ast"
	"github.com/chazu/bst2go/pkg/ir"
	"github.com/chazu/bst2go/pkg/parser"
)

const testDecls = `
ENTRY { title author } { len } { label }
INTEGERS { n count }
STRINGS { t }
`

func newTestCompiler(t *testing.T, src string) (*Compiler, *ast.Style) {
	t.Helper()

	style, err := parser.Parse("test", testDecls+src)
	require.NoError(t, err)

	c, err := NewCompiler(style, Options{})
	require.NoError(t, err)

	return c, style
}

// eval runs body as the body of a function f against a fresh state.
func eval(t *testing.T, body string, pre ...ir.Node) (*Compiler, *State, error) {
	t.Helper()

	c, _ := newTestCompiler(t, "FUNCTION {f} { "+body+" }")

	st := c.NewState(entryName)
	for _, n := range pre {
		st.Push(n)
	}

	return c, st, c.Evaluate(c.funcs["f"].Body, st)
}

func render(e *ir.Emitter, stmts []ir.Node) string {
	lines := make([]string, len(stmts))
	for i, s := range stmts {
		lines[i] = fmt.Sprintf("%#v", e.Stmt(s))
	}
	return strings.Join(lines, "\n")
}

// compileFunc compiles fn of src as a method and renders its body.
func compileFunc(t *testing.T, src, fn string) (*Compiler, string) {
	t.Helper()

	c, _ := newTestCompiler(t, src)

	m, err := c.compileMethod(c.funcs[fn])
	require.NoError(t, err)
	require.NoError(t, c.settleTypes())

	return c, render(ir.NewEmitter(), m.body)
}

func TestEvaluate_StringConcat(t *testing.T) {
	_, st, err := eval(t, `"abc" "def" *`)
	require.NoError(t, err)

	require.Equal(t, 1, st.Len())
	assert.Empty(t, st.Statements())
	assert.Equal(t, `"abc" + "def"`, fmt.Sprintf("%#v", ir.NewEmitter().Expr(st.Stack()[0])))
}

func TestEvaluate_CompareLocals(t *testing.T) {
	c, _ := newTestCompiler(t, "FUNCTION {f} { > }")
	a := c.slots.New(ir.TypeInt)
	b := c.slots.New(ir.TypeInt)

	st := c.NewState(entryName)
	st.Push(a)
	st.Push(b)

	require.NoError(t, c.Evaluate(c.funcs["f"].Body, st))

	require.Equal(t, 1, st.Len())
	assert.Empty(t, st.Statements())

	cmp, ok := st.Stack()[0].(*ir.Binary)
	require.True(t, ok)
	assert.Equal(t, ">", cmp.Op)
	assert.Equal(t, ir.PrecCompare, cmp.Prec)
	assert.Equal(t, ir.TypeBool, cmp.Type())
	assert.Same(t, a, cmp.L)
	assert.Same(t, b, cmp.R)
}

func TestCompile_IfWithEmptyThen(t *testing.T) {
	c, code := compileFunc(t, `FUNCTION {f} { title empty$ { } { #1 } if$ 'n := }`, "f")

	assert.Equal(t, `var v0 int
if strings.TrimSpace(entry.Field("title")) != "" {
	v0 = 1
}
s.n = v0`, code)

	assert.Equal(t, []string{"f takes 1 values from an empty stack"}, c.warnings)
}

func TestCompile_WhileRepeatsCondition(t *testing.T) {
	_, code := compileFunc(t, `FUNCTION {f} {
		#3 { "tick" write$ duplicate$ #0 > } { #1 - } while$ 'n :=
	}`, "f")

	// the condition's statements run before the loop and after each iteration
	assert.Equal(t, `v0 := 3
s.rt.Write("tick")
for v0 > 0 {
	v0 = v0 - 1
	s.rt.Write("tick")
}
s.n = v0`, code)
}

func TestCompile_WhileCountsChars(t *testing.T) {
	c, code := compileFunc(t, `
FUNCTION {not} { { #0 } { #1 } if$ }
FUNCTION {f} {
	title 't :=
	#0
	{ t empty$ not }
	{ t #2 global.max$ substring$ 't := #1 + }
	while$
	'count :=
}`, "f")

	assert.Equal(t, `s.t = entry.Field("title")
v0 := 0
v1 := choose(strings.TrimSpace(s.t) == "", 0, 1)
for v1 > 0 {
	s.t = s.rt.Substring(s.t, 2, 20000)
	v0 = v0 + 1
	if strings.TrimSpace(s.t) == "" {
		v1 = 0
	} else {
		v1 = 1
	}
}
s.count = v0`, code)

	assert.Empty(t, c.warnings)
}

func TestCompile_WhileBodyReplacesCarried(t *testing.T) {
	_, code := compileFunc(t, `FUNCTION {f} {
		#5 { duplicate$ #0 > } { pop$ #0 } while$ 'n :=
	}`, "f")

	// the body only has to leave as many values as it takes
	assert.Equal(t, `v0 := 5
for v0 > 0 {
	_ = v0
	v0 = 0
}
s.n = v0`, code)

	for _, body := range []string{
		"#5 { duplicate$ #0 > } { pop$ #0 #1 } while$",
		"#5 #5 { duplicate$ #0 > } { pop$ pop$ #0 } while$",
	} {
		_, _, err := eval(t, body)

		var e *ControlFlowError
		require.ErrorAs(t, err, &e, body)
		assert.Equal(t, ReasonComplexBody, e.Reason, body)
	}
}

func TestCompile_PopKeepsLocalsUsed(t *testing.T) {
	c, code := compileFunc(t, `FUNCTION {f} {
		title text.length$ duplicate$ #1 + swap$ #2 + pop$ pop$
	}`, "f")

	assert.Equal(t, `v0 := s.rt.TextLength(entry.Field("title"))
_ = v0 + 2
_ = v0 + 1`, code)
	assert.Empty(t, c.warnings)

	_, code = compileFunc(t, `FUNCTION {f} { title text.length$ duplicate$ #1 + missing$ pop$ 'n := }`, "f")

	assert.Equal(t, `v0 := s.rt.TextLength(entry.Field("title"))
_ = v0 + 1
s.n = v0`, code)

	_, code = compileFunc(t, `FUNCTION {f} { title text.length$ duplicate$ > { } { } if$ }`, "f")

	assert.Equal(t, `v0 := s.rt.TextLength(entry.Field("title"))
_ = v0 > v0`, code)

	// values reading no locals are dropped
	_, code = compileFunc(t, `FUNCTION {f} { title text.length$ #1 + pop$ }`, "f")
	assert.Empty(t, code)
}

func TestCompile_IfUnifiesInputsWithCaller(t *testing.T) {
	c, _ := newTestCompiler(t, `FUNCTION {f} { "a" "b" = { #1 + } { #2 - } if$ }`)

	x := c.slots.New(ir.TypeInt)

	st := c.NewState(entryName)
	st.Push(x)
	require.NoError(t, c.Evaluate(c.funcs["f"].Body, st))

	require.Equal(t, 1, st.Len())
	assert.Empty(t, st.Locals())

	r, ok := st.Stack()[0].(*ir.Local)
	require.True(t, ok)
	assert.False(t, r.Same(x), "the result gets a fresh local")
	assert.Equal(t, ir.TypeInt, r.Type())

	e := ir.NewEmitter()
	assert.Equal(t, "v0", e.Name(x))

	// both branches read the caller's local
	assert.Equal(t, `var v1 int
if "a" == "b" {
	v1 = v0 + 1
} else {
	v1 = v0 - 2
}`, render(e, st.Statements()))
}

func TestEvaluate_StackBalance(t *testing.T) {
	type op struct {
		name   string
		effect int
	}

	ops := []op{
		{"+", -1}, {"-", -1}, {">", -1}, {"<", -1}, {"=", -1},
		{"duplicate$", 1}, {"swap$", 0}, {"pop$", -1},
	}

	r := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		c, _ := newTestCompiler(t, "")

		var (
			instrs []ast.Instr
			effect int
		)

		for j := r.Intn(12); j >= 0; j-- {
			if r.Intn(3) == 0 {
				instrs = append(instrs, ast.Int(r.Intn(10)))
				effect++
				continue
			}

			o := ops[r.Intn(len(ops))]
			instrs = append(instrs, ast.Name(o.name))
			effect += o.effect
		}

		b := &ast.Block{Instrs: instrs}
		st := c.NewState(entryName)

		require.NoError(t, c.Evaluate(b, st), "program %d: %v", i, b)
		require.Equal(t, effect+len(st.Locals()), st.Len(), "program %d: %v", i, b)
	}
}

func TestEvaluate_Errors(t *testing.T) {
	t.Run("unknown name", func(t *testing.T) {
		_, _, err := eval(t, "frob")

		var e *UnknownNameError
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "frob", e.Name)
	})

	controlFlow := []struct {
		body      string
		construct string
		reason    string
		fragment  string
	}{
		{"#1 #2 { } if$", "if$", ReasonIfThen, "#2"},
		{"#1 { } #3 if$", "if$", ReasonIfElse, "#3"},
		{"#1 { } while$", "while$", ReasonWhileCond, "#1"},
		{`{ } "x" while$`, "while$", ReasonWhileBody, `"x"`},
		{"{ #1 #2 } { } while$", "while$", ReasonComplexCondition, ""},
		{"{ #1 } { #1 } while$", "while$", ReasonComplexBody, ""},
	}

	for _, tt := range controlFlow {
		t.Run(tt.body, func(t *testing.T) {
			_, _, err := eval(t, tt.body)

			var e *ControlFlowError
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.construct, e.Construct)
			assert.Equal(t, tt.reason, e.Reason)
			if tt.fragment != "" {
				assert.Equal(t, tt.fragment, e.Fragment)
			}
		})
	}

	shape := []struct {
		body string
		op   string
		got  string
	}{
		{`"a" #1 +`, "+", "string"},
		{"#1 #2 :=", ":=", "#2"},
		{"#1 'write$ :=", ":=", "function write$"},
		{`"a" 'n :=`, ":=", "string"},
		{"{ } write$", "write$", "{ }"},
	}

	for _, tt := range shape {
		t.Run(tt.body, func(t *testing.T) {
			_, _, err := eval(t, tt.body)

			var e *TypeShapeError
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.op, e.Op)
			assert.Equal(t, tt.got, e.Got)
		})
	}
}

func TestCompile_Recursion(t *testing.T) {
	style, err := parser.Parse("rec", "FUNCTION {f} { f } EXECUTE {f}")
	require.NoError(t, err)

	_, err = Compile(context.Background(), style, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recursive call to f")
}

func TestCompile_UnknownCommandTarget(t *testing.T) {
	style, err := parser.Parse("unknown", "EXECUTE {frob}")
	require.NoError(t, err)

	_, err = Compile(context.Background(), style, Options{})

	var e *UnknownNameError
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "frob", e.Name)
}

func TestNewCompiler_Redefinition(t *testing.T) {
	style, err := parser.Parse("dup", "INTEGERS { n } FUNCTION {n} { }")
	require.NoError(t, err)

	_, err = NewCompiler(style, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "n already defined")
}

func TestProgram_CallTypeLinkedOnce(t *testing.T) {
	style, err := parser.Parse("dispatch", testDecls+`
FUNCTION {article} { title write$ }
FUNCTION {book} { write$ }
FUNCTION {default.type} { }
READ
ITERATE {call.type$}
ITERATE {call.type$}
`)
	require.NoError(t, err)

	res, err := Compile(context.Background(), style, Options{Package: "bib", TypeName: "Plain"})
	require.NoError(t, err)

	assert.Equal(t, []string{helperCallType}, res.Helpers)
	assert.Equal(t, 1, strings.Count(res.Code, "func (s *Plain) callType("))
	assert.Equal(t, 2, strings.Count(res.Code, "s.callType(entry)"))

	// book takes a value, which starts out as the zero string
	assert.Equal(t, []string{"article", "book", "default.type"}, res.Methods)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, []string{"book takes 1 values from an empty stack"}, res.Warnings)
	assert.Contains(t, res.Code, `case "article":`)
	assert.Contains(t, res.Code, `case "book":`)
	assert.Contains(t, res.Code, "s.book(entry)")
	assert.Contains(t, res.Code, "var v0 string\n\ts.rt.Write(v0)")
	assert.NotContains(t, res.Code, `case "default.type":`)
	assert.Contains(t, res.Code, "s.defaultType(entry)")

	assert.True(t, strings.HasPrefix(res.Code, "// Code generated by bst2go from dispatch. DO NOT EDIT."))
	assert.Contains(t, res.Code, "package bib")
	assert.Contains(t, res.Code, "type Plain struct")
}

func TestProgram_DispatchesOpenFunctions(t *testing.T) {
	style, err := parser.Parse("names", `
ENTRY { author } { } { }
INTEGERS { nameptr namesleft }
STRINGS { names t }
FUNCTION {format.names}
{ 'names :=
  #1 'nameptr :=
  names num.names$ 'namesleft :=
    { namesleft #0 > }
    { names nameptr "{vv~}{ll}" format.name$ 't :=
      nameptr #1 >
        { ", " * t * }
        't
      if$
      nameptr #1 + 'nameptr :=
      namesleft #1 - 'namesleft :=
    }
  while$
}
FUNCTION {article} { author format.names write$ }
FUNCTION {either} { if$ }
FUNCTION {misc} { #1 { "a" } { "b" } either write$ }
READ
ITERATE {call.type$}
`)
	require.NoError(t, err)

	res, err := Compile(context.Background(), style, Options{})
	require.NoError(t, err)

	// the loop carries its accumulator in from the caller's stack
	assert.Equal(t, []string{"format.names", "article", "misc"}, res.Methods)
	assert.Equal(t, []string{"either"}, res.Skipped)

	for _, want := range []string{
		`case "format.names":`,
		`case "article":`,
		"s.article(entry)",
		`case "misc":`,
		"var v0 string\n\tfor s.namesleft > 0 {",
		`return v0 + ", " + s.t`,
		"s.rt.Write(v0)",
	} {
		assert.Contains(t, res.Code, want)
	}

	assert.NotContains(t, res.Code, `case "either":`)

	assert.Contains(t, res.Warnings, "article takes 1 values from an empty stack")
	assert.Contains(t, res.Warnings, "format.names takes 2 values from an empty stack")
	assert.Contains(t, res.Warnings, "format.names leaves 1 values on the stack")

	var skipped []string
	for _, w := range res.Warnings {
		if strings.HasPrefix(w, "either is not dispatched by call.type$: ") {
			skipped = append(skipped, w)
		}
	}
	assert.Len(t, skipped, 1)
}

func TestProgram_RunSteps(t *testing.T) {
	style, err := parser.Parse("run", testDecls+`
MACRO {feb} {"February"}
FUNCTION {hello} { "hello" write$ }
FUNCTION {label.it} { cite$ 'label := }
READ
EXECUTE {hello}
EXECUTE {newline$}
SORT
ITERATE {label.it}
REVERSE {hello}
ITERATE {newline$}
EXECUTE {stack$}
`)
	require.NoError(t, err)

	res, err := Compile(context.Background(), style, Options{})
	require.NoError(t, err)

	run := res.Code[strings.Index(res.Code, "func (s *Style) Run() error {"):]
	run = run[:strings.Index(run, "\n}\n")]

	for _, want := range []string{
		`s.bibDB.DefineMacro("feb", "February")`,
		"if err := s.bibDB.Read(); err != nil {",
		"s.hello(nil)",
		"s.rt.Newline()",
		"s.bibDB.Sort()",
		"for _, entry := range s.bibDB.Entries() {",
		"s.labelIt(entry)",
		"for _, entry := range bstrt.Reverse(s.bibDB.Entries()) {",
		"s.hello(entry)",
		"for range s.bibDB.Entries() {",
		"s.rt.Stack()",
		"return nil",
	} {
		assert.Contains(t, run, want)
	}

	assert.Equal(t, []string{"hello", "label.it"}, res.Methods)
	assert.Contains(t, res.Code, `entry.SetLocalString("label", entry.Key())`)
}

func TestProgram_Warnings(t *testing.T) {
	style, err := parser.Parse("warn", testDecls+`
FUNCTION {leftover} { #1 "x" }
EXECUTE {leftover}
`)
	require.NoError(t, err)

	res, err := Compile(context.Background(), style, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"leftover leaves 2 values on the stack"}, res.Warnings)
}

func TestProgram_Globals(t *testing.T) {
	style, err := parser.Parse("globals", `
INTEGERS { s type }
STRINGS { default.label }
FUNCTION {f} { #1 's := #2 'type := "x" 'default.label := }
EXECUTE {f}
`)
	require.NoError(t, err)

	res, err := Compile(context.Background(), style, Options{})
	require.NoError(t, err)

	assert.Regexp(t, `\ts2\s+int\n`, res.Code)
	assert.Regexp(t, `\ttype_\s+int\n`, res.Code)
	assert.Regexp(t, `\tdefaultLabel\s+string\n`, res.Code)

	for _, want := range []string{"s.s2 = 1", "s.type_ = 2", `s.defaultLabel = "x"`} {
		assert.Contains(t, res.Code, want)
	}
}

func TestProgram_NoOptimize(t *testing.T) {
	src := testDecls + `
FUNCTION {f} { title empty$ { "a" } { "b" } if$ 't := }
EXECUTE {f}
`
	style, err := parser.Parse("opt", src)
	require.NoError(t, err)

	res, err := Compile(context.Background(), style, Options{})
	require.NoError(t, err)
	assert.Contains(t, res.Code, `choose(strings.TrimSpace(entry.Field("title")) == "", "a", "b")`)

	res, err = Compile(context.Background(), style, Options{NoOptimize: true})
	require.NoError(t, err)
	assert.NotContains(t, res.Code, "choose(")
	assert.Contains(t, res.Code, "var v0 string")
}

func TestNameTable(t *testing.T) {
	n := NewNameTable()

	assert.Equal(t, "formatNames", n.Member("format.names$"))
	assert.Equal(t, "formatNames", n.Member("format.names$"))
	assert.Equal(t, "formatNames2", n.Member("format.names"))
	assert.Equal(t, "s2", n.Member("s"))
	assert.Equal(t, "callType2", n.Member("call.type$"))
	assert.Equal(t, "type_", n.Member("type"))
	assert.Equal(t, "x2nd", n.Member("2nd"))
	assert.Equal(t, "x", n.Member("$"))
}

func TestLinker(t *testing.T) {
	l := NewLinker()

	assert.True(t, l.Add("a", &ir.Void{}))
	assert.True(t, l.Add("b", &ir.Void{}))
	assert.False(t, l.Add("a", &ir.Void{}))

	assert.True(t, l.Has("b"))
	assert.False(t, l.Has("c"))
	assert.Equal(t, []string{"a", "b"}, l.Keys())
	assert.Equal(t, 2, l.Len())
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()

	assert.Equal(t, DefaultPackage, o.Package)
	assert.Equal(t, DefaultTypeName, o.TypeName)
	assert.Equal(t, DefaultRuntimePath, o.RuntimePath)
	assert.Equal(t, DefaultEntryMax, o.EntryMax)
	assert.Equal(t, DefaultGlobalMax, o.GlobalMax)
	assert.Same(t, DefaultRegistry, o.Registry)
	assert.True(t, o.optimize())

	o = Options{Package: "p", EntryMax: 10, NoOptimize: true}.withDefaults()
	assert.Equal(t, "p", o.Package)
	assert.Equal(t, 10, o.EntryMax)
	assert.False(t, o.optimize())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)

	for _, name := range []string{"if$", "while$", "call.type$", "text.prefix$", ":=", "global.max$"} {
		assert.NotNil(t, r.Lookup(name), name)
	}
	assert.Nil(t, r.Lookup("frob"))

	names := r.List()
	assert.Len(t, names, 39)
	assert.IsIncreasing(t, names)
}
