// Package compiler translates .bst styles into Go by symbolic execution of
// the style's stack machine.
//
// Each function body is run against a State whose operand stack holds IR
// expressions instead of values. Builtins pop and push expressions and emit
// statements for side effects; if$ and while$ run their blocks against
// nested states and merge the results back into structured control flow.
package compiler

import (
	"fmt"
	"strconv"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/chazu/bst2go/pkg/ast"
	"github.com/chazu/bst2go/pkg/ir"
)

const (
	recvName  = "s"     // receiver of generated methods
	entryName = "entry" // parameter holding the current entry
)

// Compiler holds the state of one compilation unit.
type Compiler struct {
	opts     Options
	registry *Registry

	slots  *ir.Slots
	linker *Linker
	names  *NameTable

	vars    map[string]*ir.VarRef // declared storage; Scope is filled per use
	globals []string              // global names in declaration order
	funcs   map[string]*ast.Command

	active []string // functions being inlined, innermost last

	methods  map[string]string // compiled functions -> Go method names
	dispatch []string          // functions callType switches over

	flows [][2]*ir.Local // local to local copies, for type settling

	warnings []string
}

// NewCompiler prepares a compiler for style. Declarations are collected
// here; nothing is compiled yet.
func NewCompiler(style *ast.Style, opts Options) (*Compiler, error) {
	opts = opts.withDefaults()

	c := &Compiler{
		opts:     opts,
		registry: opts.Registry,
		slots:    ir.NewSlots(),
		linker:   NewLinker(),
		names:    NewNameTable(),
		vars:     map[string]*ir.VarRef{},
		funcs:    map[string]*ast.Command{},
		methods:  map[string]string{},
	}

	// built-in variables
	c.declare("crossref", ir.VarField)
	c.declare("sort.key$", ir.VarLocalString)

	for i := range style.Commands {
		cmd := &style.Commands[i]

		var err error

		switch cmd.Kind {
		case ast.CmdEntry:
			err = c.declareAll(cmd.Fields, ir.VarField)
			if err == nil {
				err = c.declareAll(cmd.Integers, ir.VarLocalInt)
			}
			if err == nil {
				err = c.declareAll(cmd.Strings, ir.VarLocalString)
			}
		case ast.CmdIntegers:
			err = c.declareAll(cmd.Names, ir.VarGlobalInt)
		case ast.CmdStrings:
			err = c.declareAll(cmd.Names, ir.VarGlobalString)
		case ast.CmdFunction:
			err = c.defined(cmd.Name)
			if err == nil {
				c.funcs[cmd.Name] = cmd
			}
		}

		if err != nil {
			return nil, errors.Wrap(err, "line %d", cmd.Location.Line)
		}
	}

	return c, nil
}

func (c *Compiler) defined(name string) error {
	if _, ok := c.vars[name]; ok || c.isFunction(name) {
		return errors.New("%v already defined", name)
	}
	return nil
}

func (c *Compiler) declareAll(names []string, kind ir.VarKind) error {
	for _, n := range names {
		if err := c.defined(n); err != nil {
			return err
		}
		c.declare(n, kind)
	}
	return nil
}

func (c *Compiler) declare(name string, kind ir.VarKind) {
	ref := &ir.VarRef{Kind: kind, Name: name}
	if kind.IsGlobal() {
		ref.Ident = c.names.Member(name)
		c.globals = append(c.globals, name)
	}
	c.vars[name] = ref
}

// variable returns a reference to declared storage seen from entry.
func (c *Compiler) variable(name, entry string) (*ir.VarRef, bool) {
	tmpl, ok := c.vars[name]
	if !ok {
		return nil, false
	}

	ref := *tmpl
	if ref.Kind.IsGlobal() {
		ref.Scope = recvName
	} else {
		ref.Scope = entry
	}

	return &ref, true
}

func (c *Compiler) isFunction(name string) bool {
	if _, ok := c.funcs[name]; ok {
		return true
	}
	return c.registry.Lookup(name) != nil
}

// Evaluate runs the instructions of b against st.
func (c *Compiler) Evaluate(b *ast.Block, st *State) error {
	for _, in := range b.Instrs {
		if err := c.step(in, st); err != nil {
			return err
		}
	}

	return nil
}

func (c *Compiler) step(in ast.Instr, st *State) error {
	switch in.Kind {
	case ast.InstrString:
		st.Push(ir.StrLit(in.Str))
	case ast.InstrInt:
		st.Push(ir.IntLit(in.Int))
	case ast.InstrQuote:
		st.Push(&ir.QuoteRef{Name: in.Name})
	case ast.InstrBlock:
		st.Push(&ir.BlockRef{Block: in.Block})
	case ast.InstrName:
		return c.call(in.Name, st)
	default:
		return errors.New("bad instruction kind %q", in.Kind)
	}

	return nil
}

// call resolves a name: builtin, then user function, then storage.
func (c *Compiler) call(name string, st *State) error {
	tlog.V("eval").Printw("call", "name", name, "stack", st.Len())

	if b := c.registry.Lookup(name); b != nil {
		return b.Compile(c, st)
	}

	if fn, ok := c.funcs[name]; ok {
		return c.inline(fn, st)
	}

	if ref, ok := c.variable(name, st.entry); ok {
		st.Push(ref)
		return nil
	}

	return &UnknownNameError{Name: name}
}

// inline evaluates a user function body in the caller's state.
func (c *Compiler) inline(fn *ast.Command, st *State) error {
	for _, a := range c.active {
		if a == fn.Name {
			return errors.New("recursive call to %v", fn.Name)
		}
	}

	c.active = append(c.active, fn.Name)
	defer func() { c.active = c.active[:len(c.active)-1] }()

	if err := c.Evaluate(fn.Body, st); err != nil {
		return errors.Wrap(err, "function %v", fn.Name)
	}

	return nil
}

// codeBlock returns the block a code value runs.
func codeBlock(v ir.Node) (*ast.Block, bool) {
	switch v := v.(type) {
	case *ir.BlockRef:
		return v.Block, true
	case *ir.QuoteRef:
		return &ast.Block{Instrs: []ast.Instr{ast.Name(v.Name)}}, true
	}
	return nil, false
}

// describe renders a stack value for diagnostics.
func describe(v ir.Node) string {
	switch v := v.(type) {
	case *ir.BlockRef:
		return v.Block.String()
	case *ir.QuoteRef:
		return "'" + v.Name
	case *ir.Literal:
		switch v.Typ {
		case ir.TypeInt:
			return "#" + strconv.Itoa(v.Int)
		case ir.TypeString:
			return strconv.Quote(v.Str)
		}
	case *ir.VarRef:
		return v.Kind.String() + " " + v.Name
	case *ir.Local:
		return v.Type().String() + " local"
	}
	return v.Type().String() + " value"
}

func (c *Compiler) warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	tlog.Printw("warning", "msg", msg)

	c.warnings = append(c.warnings, msg)
}

// flow records that v is copied into l.
func (c *Compiler) flow(l *ir.Local, v ir.Node) {
	if src, ok := v.(*ir.Local); ok && !src.Same(l) {
		c.flows = append(c.flows, [2]*ir.Local{l, src})
	}
}

// settleTypes gives locals still of unknown type the type of the locals
// they are copied from or into. Go needs both sides of a copy to agree.
func (c *Compiler) settleTypes() error {
	for changed := true; changed; {
		changed = false

		for _, f := range c.flows {
			a, b := f[0].Type(), f[1].Type()

			switch {
			case a == b:
				continue
			case a == ir.TypeUnknown:
				_ = c.slots.Refine(f[0], b)
			case b == ir.TypeUnknown:
				_ = c.slots.Refine(f[1], a)
			default:
				return &TypeShapeError{Op: "copy", Want: a.String(), Got: b.String()}
			}

			changed = true
		}
	}

	return nil
}
