package compiler

import (
	"sort"
	"sync"
)

// BuiltinFunc compiles one builtin against the symbolic state.
type BuiltinFunc func(c *Compiler, st *State) error

// Builtin describes a builtin function and its stack effect.
type Builtin struct {
	Name string
	In   int // values consumed, -1 if it depends on the operands
	Out  int // values produced, -1 if it depends on the operands

	Compile BuiltinFunc
}

// Registry maps builtin names to their compilers.
type Registry struct {
	builtins map[string]*Builtin
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		builtins: make(map[string]*Builtin),
	}
}

// Register adds or replaces a builtin.
func (r *Registry) Register(b *Builtin) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.builtins[b.Name] = b
}

// Lookup finds a builtin by name. Returns nil if there is none.
func (r *Registry) Lookup(name string) *Builtin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.builtins[name]
}

// List returns all registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.builtins))
	for k := range r.builtins {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// DefaultRegistry holds the standard BibTeX builtins.
var DefaultRegistry = NewRegistry()

func init() {
	RegisterBuiltins(DefaultRegistry)
}
