package gamedata

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Loader fills a store in two passes. Entities are declared first, each with the ids it contains; Resolve then
// links containment once every id is known. Until then the declared entities reject mutation with
// ErrPendingResolution.
type Loader struct {
	store    *Store
	declared []*Entity
	holds    map[ID][]ID
	errs     []error
}

// NewLoader starts a load into s, which should not be tracking changes.
func (s *Store) NewLoader() *Loader {
	return &Loader{store: s, holds: make(map[ID][]ID)}
}

// Declare creates an entity with its saved identity. The version is restored as is.
func (l *Loader) Declare(id ID, name string, version int64) (*Entity, error) {
	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.createLocked(id)
	if err != nil {
		return nil, err
	}
	s.unindexName(e)
	e.committed.name = name
	e.committed.version = version
	s.indexName(e)
	e.unresolved = true
	l.declared = append(l.declared, e)
	return e, nil
}

// SetAttribute stores a value on a declared entity without recording a change or bumping its version.
func (l *Loader) SetAttribute(e *Entity, block, key string, v Value) {
	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()
	e.committed.ensureBlock(block).set(normalizeKey(key), v.clone())
}

// Hold records the ids e contains, in order. They are linked by Resolve.
func (l *Loader) Hold(e *Entity, ids []ID) {
	l.holds[e.id] = append(l.holds[e.id], ids...)
}

// Resolve links containment. An id that names no entity, or an entity already claimed by another container, is
// logged and skipped; the returned error lists every such reference. The store is usable either way.
func (l *Loader) Resolve() error {
	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range l.declared {
		for _, id := range l.holds[e.id] {
			child, ok := s.entities[id]
			switch {
			case !ok:
				l.fail(eris.Wrapf(ErrUnresolvedEntityID, "entity %d holds %d", e.id, id))
				continue
			case child == e:
				l.fail(eris.Wrapf(ErrSelfContainment, "%d", id))
				continue
			case child.committed.heldBy != NoID && child.committed.heldBy != e.id:
				l.fail(eris.Errorf("entity %d is held by both %d and %d", id, child.committed.heldBy, e.id))
				continue
			}
			if !e.committed.holds(id) {
				e.committed.hold = append(e.committed.hold, id)
			}
			child.committed.heldBy = e.id
		}
	}
	for _, e := range l.declared {
		e.unresolved = false
	}
	l.declared = nil
	clear(l.holds)
	return errors.Join(l.errs...)
}

func (l *Loader) fail(err error) {
	l.store.anomaly().Err(err).Msg("unresolved containment")
	l.errs = append(l.errs, err)
}
