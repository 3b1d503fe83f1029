package bstrt

import (
	"sort"
	"sync"
)

// SortKey is the entry local SORT orders by.
const SortKey = "sort.key$"

// MemDB is a Database over entries already in memory.
type MemDB struct {
	mu sync.RWMutex

	entries  []Entry
	preamble string
	macros   map[string]string

	// Load is called by Read if set. It returns the entries and preamble.
	Load func(macros map[string]string) ([]Entry, string, error)
}

// NewMemDB creates a database holding entries.
func NewMemDB(entries ...Entry) *MemDB {
	return &MemDB{
		entries: entries,
		macros:  map[string]string{},
	}
}

// Read loads entries through Load. Without Load it keeps what it has.
func (db *MemDB) Read() error {
	if db.Load == nil {
		return nil
	}

	db.mu.RLock()
	macros := make(map[string]string, len(db.macros))
	for k, v := range db.macros {
		macros[k] = v
	}
	db.mu.RUnlock()

	entries, preamble, err := db.Load(macros)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.entries = entries
	db.preamble = preamble

	return nil
}

// Entries returns the entries in current order.
func (db *MemDB) Entries() []Entry {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return append([]Entry(nil), db.entries...)
}

// Sort orders entries by their sort key. Equal keys keep their order.
func (db *MemDB) Sort() {
	db.mu.Lock()
	defer db.mu.Unlock()

	sort.SliceStable(db.entries, func(i, j int) bool {
		return db.entries[i].LocalString(SortKey) < db.entries[j].LocalString(SortKey)
	})
}

func (db *MemDB) Preamble() string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.preamble
}

// SetPreamble sets the text preamble$ returns.
func (db *MemDB) SetPreamble(s string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.preamble = s
}

func (db *MemDB) DefineMacro(name, value string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.macros == nil {
		db.macros = map[string]string{}
	}

	db.macros[name] = value
}

// Macro returns a defined macro.
func (db *MemDB) Macro(name string) (string, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	v, ok := db.macros[name]

	return v, ok
}
