// Package ast defines types for a parsed BibTeX style (.bst) program.
package ast

import (
	"strconv"
	"strings"
)

// Style represents a whole .bst file: its commands in source order.
type Style struct {
	Type     string    `json:"type"` // Always "style"
	Name     string    `json:"name"`
	Commands []Command `json:"commands"`
}

// Location represents a position in the source file.
type Location struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// CommandKind names one of the ten .bst commands.
type CommandKind string

const (
	CmdEntry    CommandKind = "ENTRY"
	CmdExecute  CommandKind = "EXECUTE"
	CmdFunction CommandKind = "FUNCTION"
	CmdIntegers CommandKind = "INTEGERS"
	CmdIterate  CommandKind = "ITERATE"
	CmdMacro    CommandKind = "MACRO"
	CmdRead     CommandKind = "READ"
	CmdReverse  CommandKind = "REVERSE"
	CmdSort     CommandKind = "SORT"
	CmdStrings  CommandKind = "STRINGS"
)

// Command represents one top-level command.
//
// Which fields are set depends on Kind:
//
//	ENTRY                      Fields, Integers, Strings
//	FUNCTION                   Name, Body
//	MACRO                      Name, Value
//	EXECUTE, ITERATE, REVERSE  Name
//	INTEGERS, STRINGS          Names
type Command struct {
	Kind     CommandKind `json:"kind"`
	Name     string      `json:"name,omitempty"`
	Value    string      `json:"value,omitempty"`
	Body     *Block      `json:"body,omitempty"`
	Names    []string    `json:"names,omitempty"`
	Fields   []string    `json:"fields,omitempty"`
	Integers []string    `json:"integers,omitempty"`
	Strings  []string    `json:"strings,omitempty"`
	Location Location    `json:"location"`
}

// Function returns the FUNCTION command with the given name.
func (s *Style) Function(name string) (*Command, bool) {
	for i := range s.Commands {
		c := &s.Commands[i]
		if c.Kind == CmdFunction && c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Block is a brace-delimited instruction sequence.
type Block struct {
	Instrs   []Instr  `json:"instrs"`
	Location Location `json:"location"`
}

// String renders the block in .bst syntax; used in diagnostics.
func (b *Block) String() string {
	if b == nil || len(b.Instrs) == 0 {
		return "{ }"
	}
	parts := make([]string, len(b.Instrs))
	for i, in := range b.Instrs {
		parts[i] = in.String()
	}
	return "{ " + strings.Join(parts, " ") + " }"
}

// InstrKind distinguishes the five instruction forms.
type InstrKind string

const (
	InstrString InstrKind = "string" // "text"
	InstrInt    InstrKind = "int"    // #12
	InstrQuote  InstrKind = "quote"  // 'name
	InstrBlock  InstrKind = "block"  // { ... }
	InstrName   InstrKind = "name"   // bare name, resolved at compile time
)

// Instr is a single instruction of a function body.
type Instr struct {
	Kind     InstrKind `json:"kind"`
	Str      string    `json:"str,omitempty"`
	Int      int       `json:"int,omitempty"`
	Name     string    `json:"name,omitempty"`
	Block    *Block    `json:"block,omitempty"`
	Location Location  `json:"location"`
}

// Name builds a bare-name instruction.
func Name(name string) Instr { return Instr{Kind: InstrName, Name: name} }

// Quote builds a quoted-name instruction.
func Quote(name string) Instr { return Instr{Kind: InstrQuote, Name: name} }

// Str builds a string literal instruction.
func Str(s string) Instr { return Instr{Kind: InstrString, Str: s} }

// Int builds an integer literal instruction.
func Int(n int) Instr { return Instr{Kind: InstrInt, Int: n} }

// Code builds a block instruction.
func Code(instrs ...Instr) Instr {
	return Instr{Kind: InstrBlock, Block: &Block{Instrs: instrs}}
}

// String renders the instruction in .bst syntax.
func (i Instr) String() string {
	switch i.Kind {
	case InstrString:
		return `"` + i.Str + `"`
	case InstrInt:
		return "#" + strconv.Itoa(i.Int)
	case InstrQuote:
		return "'" + i.Name
	case InstrBlock:
		return i.Block.String()
	default:
		return i.Name
	}
}
