package gamedata

import "slices"

// EntityData is a detached copy of an entity's state.
type EntityData struct {
	ID      ID
	Name    string
	Version int64
	Blocks  []BlockData
	HeldBy  ID
	Hold    []ID
}

type BlockData struct {
	Name       string
	Attributes []AttributeData
}

type AttributeData struct {
	Key   string
	Value Value
}

func exportState(id ID, st *entityState) EntityData {
	d := EntityData{
		ID:      id,
		Name:    st.name,
		Version: st.version,
		Blocks:  make([]BlockData, 0, len(st.blockNames)),
		HeldBy:  st.heldBy,
		Hold:    slices.Clone(st.hold),
	}
	for _, name := range st.blockNames {
		b := st.blocks[name]
		bd := BlockData{Name: name, Attributes: make([]AttributeData, 0, b.Len())}
		for _, key := range b.keys {
			bd.Attributes = append(bd.Attributes, AttributeData{Key: key, Value: b.values[key].clone()})
		}
		d.Blocks = append(d.Blocks, bd)
	}
	return d
}

// Export returns the committed state of every entity in insertion order. Pending changes are not included.
func (s *Store) Export() []EntityData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]EntityData, 0, len(s.order))
	for _, e := range s.order {
		out = append(out, exportState(e.id, e.committed))
	}
	return out
}
