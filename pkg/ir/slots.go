package ir

import (
	"fmt"

	"tlog.app/go/errors"
)

// Slots is an arena of local variables with union-find identity.
//
// Two slots created independently (for example in the two branches of a
// conditional) can later be unified; from then on every read resolves through
// Find to the same root. The root of a merged set is its smallest id, i.e.
// the slot discovered first.
type Slots struct {
	parent []int
	types  []Type
}

// Local is a reference to a slot in the arena.
type Local struct {
	slots *Slots
	id    int
}

// NewSlots creates an empty arena.
func NewSlots() *Slots {
	return &Slots{}
}

// New allocates a fresh slot.
func (s *Slots) New(t Type) *Local {
	id := len(s.parent)
	s.parent = append(s.parent, id)
	s.types = append(s.types, t)
	return &Local{slots: s, id: id}
}

// Len returns the number of slots ever allocated.
func (s *Slots) Len() int { return len(s.parent) }

// Find returns the root id of a slot.
func (s *Slots) Find(id int) int {
	for s.parent[id] != id {
		s.parent[id] = s.parent[s.parent[id]]
		id = s.parent[id]
	}
	return id
}

// Union merges the identities of a and b and their types.
func (s *Slots) Union(a, b *Local) error {
	ra, rb := s.Find(a.id), s.Find(b.id)
	if ra == rb {
		return nil
	}

	t, err := MergeTypes(s.types[ra], s.types[rb])
	if err != nil {
		return errors.Wrap(err, "unify v%d and v%d", ra, rb)
	}

	if rb < ra {
		ra, rb = rb, ra
	}
	s.parent[rb] = ra
	s.types[ra] = t

	return nil
}

// Refine merges t into the slot's type.
func (s *Slots) Refine(l *Local, t Type) error {
	r := s.Find(l.id)

	m, err := MergeTypes(s.types[r], t)
	if err != nil {
		return err
	}
	s.types[r] = m

	return nil
}

// MergeTypes combines the types of two values that flow into one slot.
func MergeTypes(a, b Type) (Type, error) {
	switch {
	case a == b:
		return a, nil
	case a == TypeUnknown:
		return b, nil
	case b == TypeUnknown:
		return a, nil
	case a == TypeInt && b == TypeBool, a == TypeBool && b == TypeInt:
		return TypeInt, nil
	}
	return TypeUnknown, errors.New("incompatible types %v and %v", a, b)
}

// ID returns the root id of the slot.
func (l *Local) ID() int { return l.slots.Find(l.id) }

// Same reports whether two locals resolve to the same slot.
func (l *Local) Same(o *Local) bool {
	return l.slots == o.slots && l.ID() == o.ID()
}

// Type returns the current type of the slot.
func (l *Local) Type() Type {
	return l.slots.types[l.ID()]
}

func (l *Local) String() string {
	return fmt.Sprintf("v%d", l.ID())
}
