package compiler

import (
	"github.com/dave/jennifer/jen"
	"tlog.app/go/tlog"

	"github.com/chazu/bst2go/pkg/ir"
)

// Linker collects auxiliary definitions the generated code needs, each
// emitted once, in the order first requested.
type Linker struct {
	keys []string
	defs map[string]*ir.Void
}

// NewLinker creates an empty linker.
func NewLinker() *Linker {
	return &Linker{defs: map[string]*ir.Void{}}
}

// Add registers def under key. It reports false and keeps the first
// definition if key is already present.
func (l *Linker) Add(key string, def *ir.Void) bool {
	if _, ok := l.defs[key]; ok {
		return false
	}

	l.keys = append(l.keys, key)
	l.defs[key] = def

	return true
}

// Has reports whether key was added.
func (l *Linker) Has(key string) bool {
	_, ok := l.defs[key]
	return ok
}

// Keys returns the keys in registration order.
func (l *Linker) Keys() []string { return l.keys }

// Len returns the number of definitions.
func (l *Linker) Len() int { return len(l.keys) }

// Emit renders every definition into f.
// Definitions are generated now, so they may depend on the whole program.
func (l *Linker) Emit(f *jen.File) {
	for _, k := range l.keys {
		f.Add(l.defs[k].Gen())
		f.Line()
	}
}

// link requests a helper by name.
func (c *Compiler) link(key string) {
	if c.linker.Has(key) {
		return
	}

	gen, ok := helperDefs[key]
	if !ok {
		panic("compiler: unknown helper " + key)
	}

	c.linker.Add(key, &ir.Void{Gen: func() jen.Code { return gen(c) }})

	tlog.V("link").Printw("link helper", "name", key)
}
