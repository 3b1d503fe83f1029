package compiler

import (
	"go/token"
	"strconv"
	"strings"
	"unicode"
)

// NameTable hands out unique Go identifiers for .bst names.
type NameTable struct {
	used   map[string]bool
	byName map[string]string
}

// Identifiers the generated file defines itself.
var reservedNames = []string{
	"rt", "bibDB", "Run", "New", "entry", "s",
	helperBoolToInt, helperCallType, helperChrToInt, helperTextPrefix, "choose",
}

// NewNameTable creates a table with the generated file's own names taken.
func NewNameTable() *NameTable {
	t := &NameTable{
		used:   map[string]bool{},
		byName: map[string]string{},
	}

	for _, n := range reservedNames {
		t.used[n] = true
	}

	return t
}

// Member returns the identifier for name, allocating it on first use.
// The same name always gets the same identifier.
func (t *NameTable) Member(name string) string {
	if id, ok := t.byName[name]; ok {
		return id
	}

	base := goName(name)

	id := base
	for i := 2; t.used[id]; i++ {
		id = base + strconv.Itoa(i)
	}

	t.used[id] = true
	t.byName[name] = id

	return id
}

// goName converts a .bst name like "format.names$" to lower camel case.
func goName(name string) string {
	var b strings.Builder

	upper := false
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = b.Len() != 0
			continue
		}

		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}

		b.WriteRune(r)
	}

	s := b.String()

	switch {
	case s == "":
		s = "x"
	case unicode.IsDigit(rune(s[0])):
		s = "x" + s
	}

	if token.IsKeyword(s) {
		s += "_"
	}

	return s
}
