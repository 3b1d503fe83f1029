package ir

// Footprint is a set of storage locations and local slots.
type Footprint struct {
	All   bool
	Vars  map[string]bool
	Slots map[int]bool // root ids
}

// Empty reports whether the footprint touches nothing.
func (f *Footprint) Empty() bool {
	return !f.All && len(f.Vars) == 0 && len(f.Slots) == 0
}

func (f *Footprint) addVar(name string) {
	if f.Vars == nil {
		f.Vars = map[string]bool{}
	}
	f.Vars[name] = true
}

func (f *Footprint) addSlot(l *Local) {
	if f.Slots == nil {
		f.Slots = map[int]bool{}
	}
	f.Slots[l.ID()] = true
}

// Writes returns everything the statements may write.
func Writes(stmts ...Node) *Footprint {
	f := &Footprint{}
	for _, s := range stmts {
		f.writes(s)
	}
	return f
}

func (f *Footprint) writes(n Node) {
	switch n := n.(type) {
	case *Store:
		f.addVar(n.Ref.Name)
	case *InitLocal:
		if n.Value != nil {
			f.addSlot(n.Slot)
		}
	case *AssignLocal:
		f.addSlot(n.Slot)
	case *ExprStmt:
		if c, ok := n.X.(*Call); ok && c.Clobbers {
			f.All = true
		}
	case *If:
		for _, s := range n.Then {
			f.writes(s)
		}
		for _, s := range n.Else {
			f.writes(s)
		}
	case *Loop:
		for _, s := range n.Body {
			f.writes(s)
		}
	}
}

// Reads returns everything the expression reads.
func Reads(n Node) *Footprint {
	f := &Footprint{}
	f.reads(n)
	return f
}

func (f *Footprint) reads(n Node) {
	switch n := n.(type) {
	case *VarRef:
		f.addVar(n.Name)
	case *Local:
		f.addSlot(n)
	case *Binary:
		f.reads(n.L)
		f.reads(n.R)
	case *Not:
		f.reads(n.X)
	case *Ternary:
		f.reads(n.Cond)
		f.reads(n.Then)
		f.reads(n.Else)
	case *Call:
		for _, name := range n.Reads {
			f.addVar(name)
		}
		for _, a := range n.Args {
			f.reads(a)
		}
	}
}

// Touches reports whether an expression reads anything in w.
//
// Storage reads are affected by a clobbering write; local slots are not,
// since nothing outside the function can reach them.
func Touches(n Node, w *Footprint) bool {
	if w.Empty() {
		return false
	}

	r := Reads(n)

	if w.All && len(r.Vars) != 0 {
		return true
	}
	for v := range r.Vars {
		if w.Vars[v] {
			return true
		}
	}
	for s := range r.Slots {
		if w.Slots[s] {
			return true
		}
	}

	return false
}

// ReadsSlot reports whether n reads local l.
func ReadsSlot(n Node, l *Local) bool {
	return Reads(n).Slots[l.ID()]
}

// Mentions reports whether any of the nodes refers to the Go identifier
// name, as a storage scope, call receiver or plain identifier.
func Mentions(name string, nodes ...Node) bool {
	for _, n := range nodes {
		if mentions(name, n) {
			return true
		}
	}
	return false
}

func mentions(name string, n Node) bool {
	switch n := n.(type) {
	case *VarRef:
		return n.Scope == name
	case *Ident:
		return n.Name == name
	case *Binary:
		return Mentions(name, n.L, n.R)
	case *Not:
		return mentions(name, n.X)
	case *Ternary:
		return Mentions(name, n.Cond, n.Then, n.Else)
	case *Call:
		if len(n.Recv) != 0 && n.Recv[0] == name {
			return true
		}
		return Mentions(name, n.Args...)
	case *If:
		return mentions(name, n.Cond) || Mentions(name, n.Then...) || Mentions(name, n.Else...)
	case *Loop:
		return mentions(name, n.Cond) || Mentions(name, n.Body...)
	case *InitLocal:
		return n.Value != nil && mentions(name, n.Value)
	case *AssignLocal:
		return mentions(name, n.Value)
	case *Store:
		return n.Ref.Scope == name || mentions(name, n.Value)
	case *ExprStmt:
		return mentions(name, n.X)
	case *Discard:
		return mentions(name, n.X)
	}
	return false
}
