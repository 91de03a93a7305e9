package gamedata

import (
	"slices"

	"github.com/rotisserie/eris"
)

type applyMode uint8

const (
	// modeCommitted writes committed state. This is the only mode commit and replay use.
	modeCommitted applyMode = iota
	// modeOverlay writes the overlay of each touched entity, creating it from committed state on first write.
	modeOverlay
)

func (s *Store) stateFor(e *Entity, m applyMode) *entityState {
	if m == modeCommitted {
		return e.committed
	}
	if ov, ok := s.overlays[e.id]; ok {
		return ov
	}
	ov := e.committed.clone()
	s.overlays[e.id] = ov
	return ov
}

// submit records c for e. Without tracking it is applied to committed state straight away; with tracking it is
// queued and applied to e's overlay. The caller holds the write lock and has validated c against the view.
func (s *Store) submit(e *Entity, c *Change) error {
	if !s.tracking {
		c.Name, c.Version = e.committed.name, e.committed.version
		if err := s.mutate(e, c, modeCommitted); err != nil {
			return err
		}
		s.stats.Applied++
		return nil
	}

	st := s.view(e)
	c.Seq = s.session.nextSeq()
	c.Name, c.Version = st.name, st.version
	s.pending = append(s.pending, *c)
	s.stats.Tracked++
	return s.mutate(e, c, modeOverlay)
}

// mutate is the single implementation of every change kind. In committed mode the target's version is bumped,
// it is marked modified and the name index follows renames.
func (s *Store) mutate(e *Entity, c *Change, m applyMode) error {
	switch c.Kind {
	case ChangeCreate:
		return nil
	case ChangeDelete:
		if m == modeCommitted {
			s.deleteLocked(e)
			return nil
		}
		s.detach(e, m)
		s.stateFor(e, m).removed = true
		return nil
	case ChangeUnknown:
		return eris.Wrapf(ErrUnknownChangeKind, "%d", c.Kind)
	default:
	}

	st := s.stateFor(e, m)
	switch c.Kind {
	case ChangeSetName:
		if m == modeCommitted {
			s.unindexName(e)
			st.name = c.Value
			s.indexName(e)
		} else {
			st.name = c.Value
		}

	case ChangeSetAttribute:
		if old, ok := st.value(c.Block, c.Key); ok && old.IsList() {
			return eris.Wrapf(ErrTypeMismatch, "entity %d: %s.%s is a list", e.id, c.Block, c.Key)
		}
		st.ensureBlock(c.Block).set(c.Key, Scalar(c.Value))

	case ChangeDeleteAttribute:
		if b, ok := st.blocks[c.Block]; ok && b.delete(c.Key) && b.Len() == 0 {
			st.dropBlock(c.Block)
		}

	case ChangeSetList, ChangeListAdd:
		old, ok := st.value(c.Block, c.Key)
		if ok && !old.IsList() {
			return eris.Wrapf(ErrTypeMismatch, "entity %d: %s.%s is a scalar", e.id, c.Block, c.Key)
		}
		next := List(c.Items...)
		if ok && !(c.Kind == ChangeSetList && c.Clear) {
			next.list = append(slices.Clone(old.list), c.Items...)
		}
		st.ensureBlock(c.Block).set(c.Key, next)

	case ChangeListRemove:
		old, ok := st.value(c.Block, c.Key)
		if !ok {
			break
		}
		if !old.IsList() {
			return eris.Wrapf(ErrTypeMismatch, "entity %d: %s.%s is a scalar", e.id, c.Block, c.Key)
		}
		items := slices.Clone(old.list)
		for _, item := range c.Items {
			if i := slices.Index(items, item); i >= 0 {
				items = slices.Delete(items, i, i+1)
			}
		}
		st.blocks[c.Block].set(c.Key, Value{kind: ListValue, list: items})

	case ChangeRemoveBlock:
		st.dropBlock(c.Block)

	case ChangeRenameBlock:
		if _, ok := st.blocks[c.Block]; !ok {
			return eris.Wrapf(ErrBlockNotFound, "entity %d: %q", e.id, c.Block)
		}
		if c.Block != c.Target {
			st.renameBlock(c.Block, c.Target)
		}

	case ChangeCopyBlock:
		src, ok := st.blocks[c.Block]
		if !ok {
			return eris.Wrapf(ErrBlockNotFound, "entity %d: %q", e.id, c.Block)
		}
		if c.Block != c.Target {
			st.putBlock(c.Target, src.clone())
		}

	case ChangeHoldAdd:
		child, ok := s.entities[c.Child]
		if !ok {
			return eris.Wrapf(ErrEntityNotFound, "child %d", c.Child)
		}
		if child == e {
			return eris.Wrapf(ErrSelfContainment, "%d", e.id)
		}
		s.attach(e, child, m)

	case ChangeHoldRemove:
		st.removeHeld(c.Child)
		if child, ok := s.entities[c.Child]; ok {
			if cst := s.stateFor(child, m); cst.heldBy == e.id {
				cst.heldBy = NoID
			}
		}

	case ChangeBumpVersion:

	case ChangeCreate, ChangeDelete, ChangeUnknown:
	default:
		return eris.Wrapf(ErrUnknownChangeKind, "%d", c.Kind)
	}

	st.version++
	if m == modeCommitted {
		e.modified = true
	}
	return nil
}

// attach moves child into container, taking it out of its previous container first.
func (s *Store) attach(container, child *Entity, m applyMode) {
	st := s.stateFor(container, m)
	cst := s.stateFor(child, m)
	if cst.heldBy != NoID && cst.heldBy != container.id {
		if prev, ok := s.entities[cst.heldBy]; ok {
			s.stateFor(prev, m).removeHeld(child.id)
		}
	}
	if !st.holds(child.id) {
		st.hold = append(st.hold, child.id)
	}
	cst.heldBy = container.id
}

// detach takes e out of its container and leaves everything e holds without a container.
func (s *Store) detach(e *Entity, m applyMode) {
	st := s.stateFor(e, m)
	if st.heldBy != NoID {
		if container, ok := s.entities[st.heldBy]; ok {
			s.stateFor(container, m).removeHeld(e.id)
		}
		st.heldBy = NoID
	}
	for _, id := range st.hold {
		child, ok := s.entities[id]
		if !ok {
			continue
		}
		if cst := s.stateFor(child, m); cst.heldBy == e.id {
			cst.heldBy = NoID
		}
	}
	st.hold = nil
}
