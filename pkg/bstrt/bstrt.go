// Package bstrt is the runtime contract of styles generated by bst2go.
//
// Generated code talks to three interfaces: the current Entry, the bibliography
// Database and the output Runtime implementing BibTeX's string builtins.
// The package also provides map-backed implementations for tests and hosts.
package bstrt

// Entry is one bibliography entry as seen by a style.
//
// Fields come from the .bib file. Locals are per-entry variables declared by
// the style's ENTRY command.
type Entry interface {
	Key() string
	Type() string

	Field(name string) string
	Missing(name string) bool
	Set(name, value string)

	LocalString(name string) string
	SetLocalString(name, value string)
	LocalInt(name string) int
	SetLocalInt(name string, value int)
}

// Database is the bibliography being processed.
type Database interface {
	Read() error
	Entries() []Entry
	Sort()
	Preamble() string
	DefineMacro(name, value string)
}

// Runtime implements output and the builtins needing BibTeX's text rules.
type Runtime interface {
	Write(s string)
	Newline()
	Warning(msg string)
	Stack(vals ...any)
	Top(v any)

	AddPeriod(s string) string
	ChangeCase(s, spec string) string
	FormatName(names string, n int, format string) string
	NumNames(names string) int
	Purify(s string) string
	Substring(s string, start, n int) string
	TextLength(s string) int
	Width(s string) int
}

// Reverse returns entries in reverse order. The argument is not modified.
func Reverse(entries []Entry) []Entry {
	res := make([]Entry, len(entries))
	for i, e := range entries {
		res[len(entries)-1-i] = e
	}
	return res
}
