// Package translation implements the name-mapping translation table
// supplemented from original_source/src/mesh/thingset_mesh_priv.h (spec
// §S.1 in SPEC_FULL.md): a fixed-capacity table resolving a
// meshid.NameMappingID to the human-readable node name carried in a "node
// name" (wire id 0x17) statement.
package translation

import (
	"thingset-mesh-go/internal/mesherr"
	"thingset-mesh-go/internal/meshid"
)

type entry struct {
	id   meshid.NameMappingID
	name string
}

func (e entry) free() bool { return e.id == meshid.NameMappingUnknown }

// Table is the fixed-capacity NameMappingID -> name directory.
type Table struct {
	entries []entry
}

// New allocates a Table of the given capacity (spec §6 default 16), all
// slots free.
func New(capacity int) *Table {
	t := &Table{entries: make([]entry, capacity)}
	for i := range t.entries {
		t.entries[i].id = meshid.NameMappingUnknown
	}
	return t
}

// Get resolves id to its name, if any.
func (t *Table) Get(id meshid.NameMappingID) (name string, ok bool) {
	if id == meshid.NameMappingUnknown {
		return "", false
	}
	for _, e := range t.entries {
		if !e.free() && e.id == id {
			return e.name, true
		}
	}
	return "", false
}

// Set records (or updates) the name for id. It never evicts: when the
// table is full and id is not already present, it reports mesherr.NoMem
// the same way the path and node tables report exhaustion.
func (t *Table) Set(id meshid.NameMappingID, name string) (created bool, err error) {
	if id == meshid.NameMappingUnknown {
		return false, nil
	}
	freeIdx := -1
	for i := range t.entries {
		if t.entries[i].free() {
			if freeIdx < 0 {
				freeIdx = i
			}
			continue
		}
		if t.entries[i].id == id {
			t.entries[i].name = name
			return false, nil
		}
	}
	if freeIdx < 0 {
		return false, mesherr.NoMem
	}
	t.entries[freeIdx] = entry{id: id, name: name}
	return true, nil
}
