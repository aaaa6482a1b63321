// Package index implements the opaque, append-only indexed containers that
// back every named collection in the engine (nodes, edges, parameters,
// aggregated/virtual nodes, metric sets, recorders).
package index

import (
	"fmt"

	"simcore/pkg/apperror"
)

// Index is an opaque handle into a Table. Equality and hashing are by the
// wrapped integer; callers must not assume any other structure.
type Index struct {
	pos int
}

// Valid reports whether idx is not the invalid sentinel that failed
// lookups and failed PushNew calls return. The zero Index refers to
// position 0 and is therefore valid.
func (idx Index) Valid() bool { return idx.pos >= 0 }

// Pos returns the wrapped integer, for packages that back per-index state
// with plain slices. Still opaque to callers outside the engine.
func (idx Index) Pos() int { return idx.pos }

func (idx Index) String() string { return fmt.Sprintf("#%d", idx.pos) }

var invalidIndex = Index{pos: -1}

// Name identifies an entry by a primary name and an optional sub-name, e.g.
// a node "reservoir" with sub-name "spill".
type Name struct {
	Name    string
	SubName string
}

func (n Name) String() string {
	if n.SubName == "" {
		return n.Name
	}
	return n.Name + "/" + n.SubName
}

// Table is an append-only vector of T with a parallel name->index map.
// Not safe for concurrent writers; the engine builds tables during a single
// setup phase before any scenario runs.
type Table[T any] struct {
	items    []T
	byName   map[Name]int
	kindName string
}

// NewTable creates an empty table. kindName is used only for error messages
// (e.g. "node", "parameter").
func NewTable[T any](kindName string) *Table[T] {
	return &Table[T]{
		byName:   make(map[Name]int),
		kindName: kindName,
	}
}

// PushNew appends item under name, returning its new Index.
// Fails with apperror.CodeNameAlreadyExists if name is already taken.
func (t *Table[T]) PushNew(name Name, item T) (Index, error) {
	if _, exists := t.byName[name]; exists {
		return invalidIndex, apperror.NewBuildError(
			apperror.CodeNameAlreadyExists,
			fmt.Sprintf("%s %q already exists", t.kindName, name.String()),
		)
	}
	pos := len(t.items)
	t.items = append(t.items, item)
	t.byName[name] = pos
	return Index{pos: pos}, nil
}

// GetByName returns the item registered under name, if any.
func (t *Table[T]) GetByName(name Name) (T, Index, bool) {
	pos, ok := t.byName[name]
	if !ok {
		var zero T
		return zero, invalidIndex, false
	}
	return t.items[pos], Index{pos: pos}, true
}

// IndexOf returns the Index registered for name, if any.
func (t *Table[T]) IndexOf(name Name) (Index, bool) {
	pos, ok := t.byName[name]
	if !ok {
		return invalidIndex, false
	}
	return Index{pos: pos}, true
}

// Get dereferences idx. Panics on an out-of-range index, mirroring the
// contract that indices are only ever produced by PushNew on this table.
func (t *Table[T]) Get(idx Index) *T {
	return &t.items[idx.pos]
}

// Len returns the number of entries.
func (t *Table[T]) Len() int { return len(t.items) }

// All iterates entries in insertion (and index) order.
func (t *Table[T]) All() []T { return t.items }

// Indices returns every valid Index in the table, in order.
func (t *Table[T]) Indices() []Index {
	out := make([]Index, len(t.items))
	for i := range out {
		out[i] = Index{pos: i}
	}
	return out
}
