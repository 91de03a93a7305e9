package gamedata

import (
	"errors"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// SetTracksChanges turns change tracking on or off. Turning it off rolls back whatever is pending.
func (s *Store) SetTracksChanges(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !on && s.tracking {
		s.rollbackLocked()
	}
	s.tracking = on
}

// TracksChanges reports whether mutations are recorded as pending changes.
func (s *Store) TracksChanges() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracking
}

// Pending returns a copy of the pending queue in FIFO order.
func (s *Store) Pending() []Change {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneChanges(s.pending)
}

// AddChange queues c and applies it to the overlay of its target, as if the matching mutator had been called.
// It fails with ErrNotTracking when tracking is off.
func (s *Store) AddChange(c Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tracking {
		return eris.Wrapf(ErrNotTracking, "cannot add %s", c.Kind)
	}
	return s.track(c)
}

// Commit applies every pending change to committed state in FIFO order and drops all overlays. Changes that fail
// to apply are reported together; the remaining changes are still applied.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.commitLocked()
	return err
}

// PopAndCommit is Commit returning the changes it applied, for forwarding to peers.
func (s *Store) PopAndCommit() ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commitLocked()
}

func (s *Store) commitLocked() ([]Change, error) {
	if len(s.pending) == 0 && len(s.overlays) == 0 {
		return nil, nil
	}

	clear(s.overlays)
	clear(s.created)

	var (
		applied []Change
		errs    []error
	)
	for len(s.pending) > 0 {
		c := s.pending[0]
		s.pending = s.pending[1:]
		if err := s.replay(c); err != nil {
			errs = append(errs, err)
			continue
		}
		applied = append(applied, c)
	}
	s.pending = nil
	s.stats.Commits++
	s.log.Debug().Int("applied", len(applied)).Int("failed", len(errs)).Msg("committed")
	return applied, errors.Join(errs...)
}

// Rollback drops every pending change and overlay. Entities created by the dropped changes are deleted.
func (s *Store) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbackLocked()
}

func (s *Store) rollbackLocked() {
	if len(s.pending) == 0 && len(s.overlays) == 0 && len(s.created) == 0 {
		return
	}
	discarded := len(s.pending)

	clear(s.overlays)
	for id := range s.created {
		if e, ok := s.entities[id]; ok {
			s.deleteLocked(e)
		}
	}
	clear(s.created)
	s.pending = nil
	s.stats.Rollbacks++
	s.log.Debug().Int("discarded", discarded).Msg("rolled back")
}

// RebuildChanges replays the pending queue through the tracked path, rebuilding overlays from committed state.
// Changes that no longer apply are dropped and reported.
func (s *Store) RebuildChanges() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := s.pending
	s.pending = nil
	clear(s.overlays)
	return s.rebuildLocked(queue)
}

// RestorePending installs a queue saved from an earlier run and rebuilds the overlays it describes.
func (s *Store) RestorePending(changes []Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tracking {
		return eris.Wrap(ErrNotTracking, "cannot restore pending changes")
	}
	if len(s.pending) > 0 {
		return eris.Wrapf(ErrPendingChanges, "%d changes", len(s.pending))
	}
	return s.rebuildLocked(changes)
}

func (s *Store) rebuildLocked(queue []Change) error {
	var errs []error
	for _, c := range queue {
		var err error
		if s.tracking {
			err = s.track(c)
		} else {
			err = s.replay(c)
		}
		if err != nil {
			s.anomaly().Err(err).Stringer("change", c).Msg("dropped change during rebuild")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ApplyChange applies c directly to committed state, bypassing tracking. It fails with ErrShadowActive if an
// entity it touches has uncommitted changes.
func (s *Store) ApplyChange(c Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replay(c)
}

// ApplyChanges applies changes in order like ApplyChange. A failing change does not stop the batch; all failures
// are returned together.
func (s *Store) ApplyChanges(changes []Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, c := range changes {
		if err := s.replay(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ApplyRemote applies a batch committed by a peer. Local pending changes are set aside, the batch is applied to
// committed state and the local changes are then rebuilt on top of it. Local changes that no longer apply are
// dropped and logged as anomalies; only failures of the batch's own records are returned.
//
// An entity created by a pending change whose id the batch also uses is moved to a fresh id, and the pending
// changes that refer to it follow.
func (s *Store) ApplyRemote(changes []Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stash := s.pending
	s.pending = nil
	clear(s.overlays)
	evicted := s.evictClaimed(changes)

	var errs []error
	for _, c := range changes {
		if err := s.replay(c); err != nil {
			errs = append(errs, err)
		}
	}

	if remap := s.rekey(evicted); len(remap) > 0 {
		for i := range stash {
			if id, ok := remap[stash[i].ID]; ok {
				stash[i].ID = id
			}
			if id, ok := remap[stash[i].Child]; ok && stash[i].Kind.holds() {
				stash[i].Child = id
			}
		}
	}
	_ = s.rebuildLocked(stash)
	return errors.Join(errs...)
}

// evictClaimed takes the entities created by pending changes out of the store when changes refer to their ids.
func (s *Store) evictClaimed(changes []Change) []*Entity {
	var evicted []*Entity
	claim := func(id ID) {
		if _, ok := s.created[id]; !ok {
			return
		}
		delete(s.created, id)
		e, ok := s.entities[id]
		if !ok {
			return
		}
		s.unindexName(e)
		delete(s.entities, id)
		s.order = slices.DeleteFunc(s.order, func(x *Entity) bool { return x == e })
		evicted = append(evicted, e)
	}
	for _, c := range changes {
		claim(c.ID)
		if c.Kind.holds() {
			claim(c.Child)
		}
	}
	return evicted
}

// rekey puts evicted entities back under fresh ids and returns the old to new id mapping.
func (s *Store) rekey(evicted []*Entity) map[ID]ID {
	if len(evicted) == 0 {
		return nil
	}
	remap := make(map[ID]ID, len(evicted))
	for _, e := range evicted {
		id := s.nextID
		s.anomaly().Int64("id", int64(e.id)).Int64("new_id", int64(id)).
			Msg("remote batch claimed the id of a locally created entity")
		remap[e.id] = id
		e.id = id
		e.committed = newEntityState()
		s.order = append(s.order, e)
		s.entities[id] = e
		s.indexName(e)
		s.nextID = id + 1
	}
	return remap
}

// track is the rebuild path: c is validated against the current view and submitted as a new record.
func (s *Store) track(c Change) error {
	if !c.Kind.IsValid() {
		return eris.Wrapf(ErrUnknownChangeKind, "%d", c.Kind)
	}
	if c.Kind == ChangeCreate {
		if _, ok := s.entities[c.ID]; !ok {
			if _, err := s.createLocked(c.ID); err != nil {
				return err
			}
		}
		s.pending = append(s.pending, Change{Seq: s.session.nextSeq(), Kind: ChangeCreate, ID: c.ID})
		s.created[c.ID] = struct{}{}
		s.stats.Tracked++
		return nil
	}

	e, ok := s.entities[c.ID]
	if !ok {
		return eris.Wrapf(ErrEntityNotFound, "%d", c.ID)
	}
	st, err := s.writable(e)
	if err != nil {
		return err
	}
	if err := s.precheck(e, st, &c); err != nil {
		return err
	}
	c.Items = slices.Clone(c.Items)
	return s.submit(e, &c)
}

func (s *Store) precheck(e *Entity, st *entityState, c *Change) error {
	switch c.Kind {
	case ChangeSetAttribute:
		if old, ok := st.value(c.Block, c.Key); ok && old.IsList() {
			return eris.Wrapf(ErrTypeMismatch, "%s.%s is a list", c.Block, c.Key)
		}
	case ChangeSetList, ChangeListAdd, ChangeListRemove:
		if old, ok := st.value(c.Block, c.Key); ok && !old.IsList() {
			return eris.Wrapf(ErrTypeMismatch, "%s.%s is a scalar", c.Block, c.Key)
		}
	case ChangeRenameBlock, ChangeCopyBlock:
		if _, ok := st.blocks[c.Block]; !ok {
			return eris.Wrapf(ErrBlockNotFound, "%q", c.Block)
		}
	case ChangeHoldAdd, ChangeHoldRemove:
		child, ok := s.entities[c.Child]
		if !ok {
			return eris.Wrapf(ErrEntityNotFound, "child %d", c.Child)
		}
		return s.checkRelated(e, child)
	case ChangeUnknown, ChangeCreate, ChangeDelete, ChangeSetName, ChangeDeleteAttribute,
		ChangeRemoveBlock, ChangeBumpVersion:
	}
	return nil
}

// replay applies c to committed state. Targets that do not exist are created as empty placeholders so a merge
// keeps going; the anomaly is logged.
func (s *Store) replay(c Change) error {
	if !c.Kind.IsValid() {
		return eris.Wrapf(ErrUnknownChangeKind, "%d", c.Kind)
	}

	e, ok := s.entities[c.ID]
	if c.Kind == ChangeCreate {
		if ok {
			return nil
		}
		if _, err := s.createLocked(c.ID); err != nil {
			return err
		}
		s.stats.Applied++
		return nil
	}

	fresh := false
	if !ok {
		if c.Kind == ChangeDelete {
			s.anomaly().Int64("id", int64(c.ID)).Msg("ignoring delete of unknown entity")
			return nil
		}
		var err error
		if e, err = s.placeholder(c.ID); err != nil {
			return err
		}
		fresh = true
	}
	if _, shadowed := s.overlays[c.ID]; shadowed {
		return eris.Wrapf(ErrShadowActive, "cannot apply %s to entity %d", c.Kind, c.ID)
	}

	if c.Kind.holds() {
		if c.Child == c.ID {
			return eris.Wrapf(ErrSelfContainment, "%d", c.ID)
		}
		_, childExists := s.entities[c.Child]
		if !childExists && c.Kind == ChangeHoldAdd {
			if _, err := s.placeholder(c.Child); err != nil {
				return err
			}
		}
		if _, shadowed := s.overlays[c.Child]; shadowed {
			return eris.Wrapf(ErrShadowActive, "cannot apply %s to child %d", c.Kind, c.Child)
		}
	}

	if !fresh {
		if err := s.checkVersion(e, &c); err != nil {
			return err
		}
	}
	c.Items = slices.Clone(c.Items)
	if err := s.mutate(e, &c, modeCommitted); err != nil {
		return err
	}
	s.stats.Applied++
	return nil
}

func (s *Store) placeholder(id ID) (*Entity, error) {
	e, err := s.createLocked(id)
	if err != nil {
		return nil, err
	}
	s.anomaly().Int64("id", int64(id)).Msg("created placeholder for unknown entity")
	return e, nil
}

func (s *Store) checkVersion(e *Entity, c *Change) error {
	if s.versionCheck == VersionIgnore || c.Version == e.committed.version {
		return nil
	}
	if s.versionCheck == VersionWarn {
		s.anomaly().
			Int64("id", int64(e.id)).
			Int64("have", e.committed.version).
			Int64("want", c.Version).
			Msg("applying change recorded against another version")
		return nil
	}
	s.stats.Anomalies++
	return eris.Wrapf(ErrStaleChange, "entity %d is at version %d, %s expects %d",
		e.id, e.committed.version, c.Kind, c.Version)
}

func (s *Store) anomaly() *zerolog.Event {
	s.stats.Anomalies++
	return s.log.Warn()
}

func cloneChanges(changes []Change) []Change {
	out := make([]Change, len(changes))
	for i, c := range changes {
		c.Items = slices.Clone(c.Items)
		out[i] = c
	}
	return out
}
