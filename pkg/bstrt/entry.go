package bstrt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MapEntry is an Entry backed by maps.
type MapEntry struct {
	EntryKey  string
	EntryType string

	Fields map[string]string
	Locals map[string]interface{}
}

// NewMapEntry creates an entry of the given type and key.
func NewMapEntry(typ, key string, fields map[string]string) *MapEntry {
	if fields == nil {
		fields = map[string]string{}
	}

	return &MapEntry{
		EntryKey:  key,
		EntryType: strings.ToLower(typ),
		Fields:    fields,
		Locals:    map[string]interface{}{},
	}
}

func (e *MapEntry) Key() string  { return e.EntryKey }
func (e *MapEntry) Type() string { return e.EntryType }

// Field returns the field value, empty if missing.
func (e *MapEntry) Field(name string) string {
	return e.Fields[strings.ToLower(name)]
}

func (e *MapEntry) Missing(name string) bool {
	_, ok := e.Fields[strings.ToLower(name)]
	return !ok
}

func (e *MapEntry) Set(name, value string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[strings.ToLower(name)] = value
}

func (e *MapEntry) local(name string) interface{} {
	if e.Locals == nil {
		return nil
	}
	return e.Locals[name]
}

func (e *MapEntry) setLocal(name string, v interface{}) {
	if e.Locals == nil {
		e.Locals = make(map[string]interface{})
	}
	e.Locals[name] = v
}

// LocalString returns a local as a string. Unset locals are empty.
func (e *MapEntry) LocalString(name string) string {
	v := e.local(name)
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func (e *MapEntry) SetLocalString(name, value string) { e.setLocal(name, value) }

// LocalInt returns a local as an int. Unset locals are zero.
// Values decoded from JSON or set as strings are converted.
func (e *MapEntry) LocalInt(name string) int {
	switch x := e.local(name).(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case string:
		n, _ := strconv.Atoi(x)
		return n
	default:
		return 0
	}
}

func (e *MapEntry) SetLocalInt(name string, value int) { e.setLocal(name, value) }

type mapEntryJSON struct {
	Key    string                 `json:"key"`
	Type   string                 `json:"type"`
	Fields map[string]string      `json:"fields,omitempty"`
	Locals map[string]interface{} `json:"locals,omitempty"`
}

// MarshalJSON encodes the entry with lowercase keys.
func (e *MapEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(mapEntryJSON{
		Key:    e.EntryKey,
		Type:   e.EntryType,
		Fields: e.Fields,
		Locals: e.Locals,
	})
}

func (e *MapEntry) UnmarshalJSON(data []byte) error {
	var j mapEntryJSON

	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}

	*e = MapEntry{EntryKey: j.Key, EntryType: j.Type, Fields: j.Fields, Locals: j.Locals}

	return nil
}
