package gamedata

import "slices"

// ID identifies an entity within one Store.
type ID int64

// NoID is the container of an entity that is not held by anything.
const NoID ID = -1

// entityState is everything a mutation can touch. Each entity owns one committed state; while tracking, the store
// may also hold an overlay copy of it.
type entityState struct {
	name       string
	version    int64
	blockNames []string
	blocks     map[string]*Block
	heldBy     ID
	hold       []ID

	// removed marks an overlay whose entity is deleted by a pending change.
	removed bool
}

func newEntityState() *entityState {
	return &entityState{
		blocks: make(map[string]*Block),
		heldBy: NoID,
	}
}

func (st *entityState) clone() *entityState {
	c := &entityState{
		name:       st.name,
		version:    st.version,
		blockNames: slices.Clone(st.blockNames),
		blocks:     make(map[string]*Block, len(st.blocks)),
		heldBy:     st.heldBy,
		hold:       slices.Clone(st.hold),
		removed:    st.removed,
	}
	for name, b := range st.blocks {
		c.blocks[name] = b.clone()
	}
	return c
}

func (st *entityState) value(block, key string) (Value, bool) {
	b, ok := st.blocks[block]
	if !ok {
		return Value{}, false
	}
	v, ok := b.values[key]
	return v, ok
}

func (st *entityState) ensureBlock(name string) *Block {
	if b, ok := st.blocks[name]; ok {
		return b
	}
	b := newBlock()
	st.putBlock(name, b)
	return b
}

// putBlock stores b under name, keeping the position of an existing block of that name.
func (st *entityState) putBlock(name string, b *Block) {
	if _, ok := st.blocks[name]; !ok {
		st.blockNames = append(st.blockNames, name)
	}
	st.blocks[name] = b
}

func (st *entityState) dropBlock(name string) bool {
	if _, ok := st.blocks[name]; !ok {
		return false
	}
	delete(st.blocks, name)
	st.blockNames = slices.DeleteFunc(st.blockNames, func(n string) bool { return n == name })
	return true
}

func (st *entityState) renameBlock(from, to string) {
	b := st.blocks[from]
	if _, exists := st.blocks[to]; exists {
		st.dropBlock(to)
	}
	delete(st.blocks, from)
	st.blocks[to] = b
	st.blockNames[slices.Index(st.blockNames, from)] = to
}

func (st *entityState) holds(id ID) bool {
	return slices.Contains(st.hold, id)
}

func (st *entityState) removeHeld(id ID) bool {
	i := slices.Index(st.hold, id)
	if i < 0 {
		return false
	}
	st.hold = slices.Delete(st.hold, i, i+1)
	return true
}

// subject evaluates queries against a state without going through the store lock.
type subject struct{ st *entityState }

func (s subject) Name() string { return s.st.name }

func (s subject) Lookup(block, key string) ([]string, bool, bool) {
	v, ok := s.st.value(block, normalizeKey(key))
	if !ok {
		return nil, false, false
	}
	if v.IsList() {
		return v.list, true, true
	}
	return []string{v.scalar}, false, true
}
