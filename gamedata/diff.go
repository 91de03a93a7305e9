package gamedata

import "slices"

// BuildChanges returns the changes that turn the committed state of base into the committed state of target.
// Replayed in order on base (or a copy of it) with ApplyChanges, they leave it with the same entities, names,
// attributes and containment as target. Versions are not carried over; each record is stamped with the version
// its target will have on base when the record is reached, so replay also passes VersionReject.
//
// Neither store may be mutated while BuildChanges runs.
func BuildChanges(base, target *Store) []Change {
	base.mu.RLock()
	defer base.mu.RUnlock()
	if target != base {
		target.mu.RLock()
		defer target.mu.RUnlock()
	}

	d := &differ{
		session: base.session,
		version: make(map[ID]int64),
		name:    make(map[ID]string),
	}

	var created []*Entity
	for _, te := range target.order {
		if _, ok := base.entities[te.id]; !ok {
			created = append(created, te)
			d.emit(Change{Kind: ChangeCreate, ID: te.id})
		}
	}
	for _, te := range created {
		d.populate(te.id, te.committed)
	}

	for _, te := range target.order {
		if be, ok := base.entities[te.id]; ok {
			d.version[be.id] = be.committed.version
			d.name[be.id] = be.committed.name
			d.update(te.id, be.committed, te.committed)
		}
	}

	for _, be := range base.order {
		if _, ok := target.entities[be.id]; !ok {
			d.version[be.id] = be.committed.version
			d.name[be.id] = be.committed.name
			d.emit(Change{Kind: ChangeDelete, ID: be.id})
		}
	}
	return d.out
}

type differ struct {
	session *Session
	out     []Change
	// version and name follow each entity through the emitted records.
	version map[ID]int64
	name    map[ID]string
}

func (d *differ) emit(c Change) {
	c.Seq = d.session.nextSeq()
	c.Version = d.version[c.ID]
	c.Name = d.name[c.ID]
	d.out = append(d.out, c)

	switch c.Kind {
	case ChangeCreate, ChangeDelete:
		return
	case ChangeSetName:
		d.name[c.ID] = c.Value
	default:
	}
	d.version[c.ID]++
}

func (d *differ) populate(id ID, st *entityState) {
	if st.name != "" {
		d.emit(Change{Kind: ChangeSetName, ID: id, Value: st.name})
	}
	for _, block := range st.blockNames {
		b := st.blocks[block]
		for _, key := range b.keys {
			d.set(id, block, key, nil, b.values[key])
		}
	}
	for _, child := range st.hold {
		d.emit(Change{Kind: ChangeHoldAdd, ID: id, Child: child})
	}
}

func (d *differ) update(id ID, from, to *entityState) {
	if from.name != to.name {
		d.emit(Change{Kind: ChangeSetName, ID: id, Value: to.name})
	}

	for _, block := range from.blockNames {
		fb := from.blocks[block]
		tb, ok := to.blocks[block]
		if !ok {
			d.emit(Change{Kind: ChangeRemoveBlock, ID: id, Block: block})
			continue
		}
		for _, key := range fb.keys {
			old := fb.values[key]
			next, ok := tb.values[key]
			switch {
			case !ok:
				d.emit(Change{Kind: ChangeDeleteAttribute, ID: id, Block: block, Key: key})
			case !old.Equal(next):
				d.set(id, block, key, &old, next)
			}
		}
		for _, key := range tb.keys {
			if _, ok := fb.values[key]; !ok {
				d.set(id, block, key, nil, tb.values[key])
			}
		}
	}
	for _, block := range to.blockNames {
		if _, ok := from.blocks[block]; ok {
			continue
		}
		tb := to.blocks[block]
		for _, key := range tb.keys {
			d.set(id, block, key, nil, tb.values[key])
		}
	}

	for _, child := range to.hold {
		if !slices.Contains(from.hold, child) {
			d.emit(Change{Kind: ChangeHoldAdd, ID: id, Child: child})
		}
	}
	for _, child := range from.hold {
		if !slices.Contains(to.hold, child) {
			d.emit(Change{Kind: ChangeHoldRemove, ID: id, Child: child})
		}
	}
}

// set emits the records that replace old (nil when absent) with next. A change of shape deletes the key first.
func (d *differ) set(id ID, block, key string, old *Value, next Value) {
	if old != nil && old.kind != next.kind {
		d.emit(Change{Kind: ChangeDeleteAttribute, ID: id, Block: block, Key: key})
		old = nil
	}
	if !next.IsList() {
		d.emit(Change{Kind: ChangeSetAttribute, ID: id, Block: block, Key: key, Value: next.scalar})
		return
	}

	var current []string
	if old != nil {
		current = old.list
	}
	edit := DiffList(current, next.list)
	if old != nil && edit.IsNoop() {
		return
	}
	d.emit(Change{Kind: ChangeSetList, ID: id, Block: block, Key: key, Clear: edit.Clear, Items: edit.Append})
}
