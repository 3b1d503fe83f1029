package compiler

// Options configure code generation.
type Options struct {
	Package     string // Go package of the generated file
	TypeName    string // generated struct type
	RuntimePath string // import path of the runtime interfaces

	EntryMax  int // value of entry.max$
	GlobalMax int // value of global.max$

	NoOptimize bool

	// Registry resolves builtins. DefaultRegistry if nil.
	Registry *Registry
}

// Version identifies the code generator. Bump it when generated code changes.
const Version = "0.2.0"

// Defaults.
const (
	DefaultPackage     = "style"
	DefaultTypeName    = "Style"
	DefaultRuntimePath = "github.com/chazu/bst2go/pkg/bstrt"
	DefaultEntryMax    = 250
	DefaultGlobalMax   = 20000
)

func (o Options) withDefaults() Options {
	if o.Package == "" {
		o.Package = DefaultPackage
	}
	if o.TypeName == "" {
		o.TypeName = DefaultTypeName
	}
	if o.RuntimePath == "" {
		o.RuntimePath = DefaultRuntimePath
	}
	if o.EntryMax == 0 {
		o.EntryMax = DefaultEntryMax
	}
	if o.GlobalMax == 0 {
		o.GlobalMax = DefaultGlobalMax
	}
	if o.Registry == nil {
		o.Registry = DefaultRegistry
	}

	return o
}

func (o Options) optimize() bool { return !o.NoOptimize }
