package compiler

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dave/jennifer/jen"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/chazu/bst2go/pkg/ast"
	"github.com/chazu/bst2go/pkg/ir"
)

// Result contains the generated code and any warnings.
type Result struct {
	Code     string
	Warnings []string
	Methods  []string // functions compiled to methods, in file order
	Skipped  []string // functions left out of call.type$ dispatch
	Helpers  []string // linked helper definitions
}

// method is a user function compiled to a Go method.
type method struct {
	fn     string
	name   string
	body   []ir.Node
	closed bool // neither takes nor leaves stack values
}

// Compile translates style to a Go source file.
func Compile(ctx context.Context, style *ast.Style, opts Options) (res *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile style", "name", style.Name)
	defer tr.Finish("err", &err)

	c, err := NewCompiler(style, opts)
	if err != nil {
		return nil, errors.Wrap(err, "declarations")
	}

	return c.Program(ctx, style)
}

// Program compiles the commands of style and assembles the file.
func (c *Compiler) Program(ctx context.Context, style *ast.Style) (*Result, error) {
	tr := tlog.SpanFromContext(ctx)

	var (
		methods []*method
		byName  = map[string]*method{}
		run     []runStep
	)

	methodFor := func(fn *ast.Command) (*method, error) {
		if m, ok := byName[fn.Name]; ok {
			return m, nil
		}

		m, err := c.compileMethod(fn)
		if err != nil {
			return nil, err
		}

		tr.Printw("compile method", "func", fn.Name, "method", m.name, "stmts", len(m.body), "closed", m.closed)

		methods = append(methods, m)
		byName[fn.Name] = m

		return m, nil
	}

	for i := range style.Commands {
		cmd := &style.Commands[i]

		step := runStep{cmd: cmd}

		switch cmd.Kind {
		case ast.CmdExecute, ast.CmdIterate, ast.CmdReverse:
			if fn, ok := c.funcs[cmd.Name]; ok {
				m, err := methodFor(fn)
				if err != nil {
					return nil, errors.Wrap(err, "line %d", cmd.Location.Line)
				}

				step.method = m.name

				break
			}

			b := c.registry.Lookup(cmd.Name)
			if b == nil {
				return nil, errors.Wrap(&UnknownNameError{Name: cmd.Name}, "line %d", cmd.Location.Line)
			}

			st := c.NewState(entryName)
			if err := b.Compile(c, st); err != nil {
				return nil, errors.Wrap(err, "line %d: %v", cmd.Location.Line, cmd.Name)
			}

			step.inline = c.finish(cmd.Name, st)
		case ast.CmdMacro, ast.CmdRead, ast.CmdSort:
		default:
			continue
		}

		run = append(run, step)
	}

	var skipped []string

	// Any function may be named by an entry type. Inputs a function takes
	// from an empty stack start as zero values.
	if c.linker.Has(helperCallType) {
		for i := range style.Commands {
			cmd := &style.Commands[i]
			if cmd.Kind != ast.CmdFunction {
				continue
			}

			flows := len(c.flows)

			m, err := methodFor(cmd)
			if err != nil {
				c.flows = c.flows[:flows]

				tr.V("dispatch").Printw("not dispatchable", "func", cmd.Name, "err", err)
				c.warnf("%v is not dispatched by call.type$: %v", cmd.Name, err)

				skipped = append(skipped, cmd.Name)

				continue
			}

			c.dispatch = append(c.dispatch, m.fn)
		}
	}

	if err := c.settleTypes(); err != nil {
		return nil, errors.Wrap(err, "settle types")
	}

	helpers := map[string]bool{}

	methodCode := make([]jen.Code, len(methods))
	for i, m := range methods {
		e := ir.NewEmitter()

		methodCode[i] = jen.Func().Params(c.receiver()).Id(m.name).Params(
			jen.Id(entryName).Qual(c.opts.RuntimePath, "Entry"),
		).Block(e.Block(m.body)...)

		for h := range e.Helpers {
			helpers[h] = true
		}
	}

	e := ir.NewEmitter()
	runCode := c.runBody(e, run)

	for h := range e.Helpers {
		helpers[h] = true
	}

	if helpers[ir.HelperChoose] {
		c.link(ir.HelperChoose)
	}

	f := jen.NewFile(c.opts.Package)
	f.HeaderComment(fmt.Sprintf("Code generated by bst2go from %s. DO NOT EDIT.", styleName(style)))

	c.emitType(f)

	c.linker.Emit(f)

	f.Comment("Run executes the style's commands in order.")
	f.Func().Params(c.receiver()).Id("Run").Params().Error().Block(runCode...)

	res := &Result{
		Warnings: c.warnings,
		Skipped:  skipped,
		Helpers:  c.linker.Keys(),
	}

	for i, m := range methods {
		f.Line()
		f.Add(methodCode[i])

		res.Methods = append(res.Methods, m.fn)
	}

	var buf bytes.Buffer

	if err := f.Render(&buf); err != nil {
		return nil, errors.Wrap(err, "render")
	}

	res.Code = buf.String()

	return res, nil
}

// compileMethod compiles a user function as a method body.
// Values the function takes become zero-valued locals and values it leaves
// are discarded, both with a warning.
func (c *Compiler) compileMethod(fn *ast.Command) (*method, error) {
	st := c.NewState(entryName)

	if err := c.inline(fn, st); err != nil {
		return nil, err
	}

	closed := st.Len() == 0 && len(st.locals) == 0

	name := c.names.Member(fn.Name)
	c.methods[fn.Name] = name

	return &method{
		fn:     fn.Name,
		name:   name,
		body:   c.finish(fn.Name, st),
		closed: closed,
	}, nil
}

// finish closes a top level state: free inputs and leftover values are
// reported, leftovers are dropped and the statements optimized.
func (c *Compiler) finish(name string, st *State) []ir.Node {
	if n := len(st.locals); n != 0 {
		c.warnf("%v takes %d values from an empty stack", name, n)
	}

	if n := st.Len(); n != 0 {
		c.warnf("%v leaves %d values on the stack", name, n)
	}

	for _, v := range st.stack {
		switch v.(type) {
		case *ir.Literal, *ir.BlockRef, *ir.QuoteRef:
			continue
		}

		st.Add(&ir.Discard{X: v})
	}

	st.stack = nil

	body := st.stmts

	if c.opts.optimize() {
		body = ir.Optimize(body)
	}

	return body
}

// runStep is one command of the Run method.
type runStep struct {
	cmd    *ast.Command
	method string    // user function target
	inline []ir.Node // builtin target
}

func (c *Compiler) runBody(e *ir.Emitter, steps []runStep) []jen.Code {
	var res []jen.Code

	bibDB := func() *jen.Statement { return jen.Id(recvName).Dot("bibDB") }

	for _, s := range steps {
		switch s.cmd.Kind {
		case ast.CmdMacro:
			res = append(res, bibDB().Dot("DefineMacro").Call(jen.Lit(s.cmd.Name), jen.Lit(s.cmd.Value)))
		case ast.CmdRead:
			res = append(res, jen.If(
				jen.Err().Op(":=").Add(bibDB()).Dot("Read").Call(),
				jen.Err().Op("!=").Nil(),
			).Block(jen.Return(jen.Err())))
		case ast.CmdSort:
			res = append(res, bibDB().Dot("Sort").Call())
		case ast.CmdExecute:
			if s.method != "" {
				res = append(res, jen.Id(recvName).Dot(s.method).Call(jen.Nil()))
				break
			}

			code := e.Block(s.inline)
			if ir.Mentions(entryName, s.inline...) {
				code = append([]jen.Code{jen.Var().Id(entryName).Qual(c.opts.RuntimePath, "Entry")}, code...)
				res = append(res, jen.Block(code...))
				break
			}

			res = append(res, code...)
		case ast.CmdIterate, ast.CmdReverse:
			entries := bibDB().Dot("Entries").Call()
			if s.cmd.Kind == ast.CmdReverse {
				entries = jen.Qual(c.opts.RuntimePath, "Reverse").Call(entries)
			}

			body := s.inline
			if s.method != "" {
				body = []ir.Node{&ir.ExprStmt{X: &ir.Call{
					Typ:  ir.TypeVoid,
					Recv: []string{recvName},
					Name: s.method,
					Args: []ir.Node{&ir.Ident{Name: entryName}},
				}}}
			}

			loop := jen.For(jen.List(jen.Id("_"), jen.Id(entryName)).Op(":=").Range().Add(entries))
			if !ir.Mentions(entryName, body...) {
				loop = jen.For(jen.Range().Add(entries))
			}

			res = append(res, loop.Block(e.Block(body)...))
		}
	}

	return append(res, jen.Return(jen.Nil()))
}

func (c *Compiler) emitType(f *jen.File) {
	rt := c.opts.RuntimePath

	fields := []jen.Code{
		jen.Id("rt").Qual(rt, "Runtime"),
		jen.Id("bibDB").Qual(rt, "Database"),
	}

	for _, g := range c.globals {
		ref := c.vars[g]

		typ := jen.String()
		if ref.Kind == ir.VarGlobalInt {
			typ = jen.Int()
		}

		fields = append(fields, jen.Id(ref.Ident).Add(typ))
	}

	f.Commentf("%s is the compiled style. Globals declared by INTEGERS and STRINGS are its fields.", c.opts.TypeName)
	f.Type().Id(c.opts.TypeName).Struct(fields...)
	f.Line()

	f.Commentf("New creates a %s writing through rt and reading db.", c.opts.TypeName)
	f.Func().Id("New").Params(
		jen.Id("rt").Qual(rt, "Runtime"),
		jen.Id("db").Qual(rt, "Database"),
	).Op("*").Id(c.opts.TypeName).Block(
		jen.Return(jen.Op("&").Id(c.opts.TypeName).Values(jen.Dict{
			jen.Id("rt"):    jen.Id("rt"),
			jen.Id("bibDB"): jen.Id("db"),
		})),
	)
	f.Line()
}

func (c *Compiler) receiver() *jen.Statement {
	return jen.Id(recvName).Op("*").Id(c.opts.TypeName)
}

func styleName(s *ast.Style) string {
	if s.Name == "" {
		return "style"
	}
	return s.Name
}
