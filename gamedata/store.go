package gamedata

import (
	"slices"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/argus-labs/tabletop/query"
)

// VersionPolicy decides what replay does with a change whose recorded version differs from the target's.
type VersionPolicy uint8

const (
	// VersionIgnore applies the change regardless of its version stamp.
	VersionIgnore VersionPolicy = iota
	// VersionWarn applies the change and logs the mismatch.
	VersionWarn
	// VersionReject refuses the change with ErrStaleChange.
	VersionReject
)

// String returns the configuration name of p.
func (p VersionPolicy) String() string {
	switch p {
	case VersionIgnore:
		return "ignore"
	case VersionWarn:
		return "warn"
	case VersionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseVersionPolicy parses a policy name case-insensitively. The empty string is VersionIgnore.
func ParseVersionPolicy(s string) (VersionPolicy, error) {
	switch strings.ToLower(s) {
	case "ignore", "":
		return VersionIgnore, nil
	case "warn":
		return VersionWarn, nil
	case "reject":
		return VersionReject, nil
	default:
		return VersionIgnore, eris.Errorf("invalid version check policy %q (must be 'ignore', 'warn' or 'reject')", s)
	}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger the store reports anomalies to.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.log = logger }
}

// WithVersionCheck sets how replay treats changes recorded against another version.
func WithVersionCheck(policy VersionPolicy) Option {
	return func(s *Store) { s.versionCheck = policy }
}

// Store owns a set of entities. It is safe to call from several goroutines, but mutations are serialised and a
// store has a single logical writer.
type Store struct {
	mu sync.RWMutex

	session      *Session
	log          zerolog.Logger
	versionCheck VersionPolicy

	order    []*Entity
	entities map[ID]*Entity
	names    map[string][]*Entity
	nextID   ID

	tracking bool
	pending  []Change
	overlays map[ID]*entityState
	// created holds the entities created by pending changes; rollback deletes them.
	created map[ID]struct{}

	filter *query.Query
	stats  Stats
}

// NewStore returns an empty store. A nil session starts a new one.
func NewStore(session *Session, opts ...Option) *Store {
	if session == nil {
		session = NewSession()
	}
	s := &Store{
		session:  session,
		log:      zerolog.Nop(),
		entities: make(map[ID]*Entity),
		names:    make(map[string][]*Entity),
		overlays: make(map[ID]*entityState),
		created:  make(map[ID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session returns the session s numbers its changes in.
func (s *Store) Session() *Session { return s.session }

func (s *Store) VersionCheck() VersionPolicy { return s.versionCheck }

// CreateEntity creates an entity with the next free id.
func (s *Store) CreateEntity() *Entity {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.createTracked(s.nextID)
	if err != nil {
		// nextID is always above every id in use.
		panic(err)
	}
	return e
}

// CreateEntityWithID creates an entity with an explicit id. The running id counter moves past it.
func (s *Store) CreateEntityWithID(id ID) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createTracked(id)
}

func (s *Store) createTracked(id ID) (*Entity, error) {
	e, err := s.createLocked(id)
	if err != nil {
		return nil, err
	}
	if s.tracking {
		s.pending = append(s.pending, Change{Seq: s.session.nextSeq(), Kind: ChangeCreate, ID: id})
		s.created[id] = struct{}{}
		s.stats.Tracked++
	}
	return e, nil
}

func (s *Store) createLocked(id ID) (*Entity, error) {
	if id < 0 {
		return nil, eris.Wrapf(ErrInvalidID, "%d", id)
	}
	if _, ok := s.entities[id]; ok {
		return nil, eris.Wrapf(ErrDuplicateID, "%d", id)
	}
	e := &Entity{store: s, id: id, committed: newEntityState()}
	s.order = append(s.order, e)
	s.entities[id] = e
	s.indexName(e)
	if id >= s.nextID {
		s.nextID = id + 1
	}
	s.log.Debug().Int64("id", int64(id)).Msg("created")
	return e, nil
}

// RemoveEntity detaches e from its container and deletes it. Entities e contained are left without a container;
// they are not deleted.
func (s *Store) RemoveEntity(e *Entity) error {
	if e == nil {
		return eris.Wrap(ErrEntityNotFound, "nil entity")
	}
	if e.store != s {
		return eris.Wrapf(ErrCrossStore, "entity %d", e.id)
	}
	return s.mutateEntity(e, func(*entityState) (*Change, error) {
		return &Change{Kind: ChangeDelete}, nil
	})
}

func (s *Store) deleteLocked(e *Entity) {
	s.detach(e, modeCommitted)
	s.unindexName(e)
	delete(s.entities, e.id)
	delete(s.overlays, e.id)
	s.order = slices.DeleteFunc(s.order, func(x *Entity) bool { return x == e })
	e.deleted = true
	s.log.Debug().Int64("id", int64(e.id)).Msg("deleted")
}

// Entity returns the entity with the given id as readers currently see it.
func (s *Store) Entity(id ID) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok || s.view(e).removed {
		return nil, eris.Wrapf(ErrEntityNotFound, "%d", id)
	}
	return e, nil
}

// Entities returns every visible entity in insertion order.
func (s *Store) Entities() []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible()
}

func (s *Store) visible() []*Entity {
	out := make([]*Entity, 0, len(s.order))
	for _, e := range s.order {
		if !s.view(e).removed {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of visible entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.visible())
}

// FindByName returns the visible entities named name, in insertion order.
func (s *Store) FindByName(name string) []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entity
	for _, e := range s.names[name] {
		if st := s.view(e); !st.removed && st.name == name {
			out = append(out, e)
		}
	}
	for id, ov := range s.overlays {
		e := s.entities[id]
		if !ov.removed && ov.name == name && e.committed.name != name {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b *Entity) int { return s.position(a) - s.position(b) })
	return out
}

func (s *Store) position(e *Entity) int {
	return slices.Index(s.order, e)
}

func (s *Store) indexName(e *Entity) {
	name := e.committed.name
	s.names[name] = append(s.names[name], e)
}

func (s *Store) unindexName(e *Entity) {
	name := e.committed.name
	s.names[name] = slices.DeleteFunc(s.names[name], func(x *Entity) bool { return x == e })
	if len(s.names[name]) == 0 {
		delete(s.names, name)
	}
}

// RenumberByInsertionOrder assigns every entity the id of its position in the store, starting at zero.
func (s *Store) RenumberByInsertionOrder() error {
	return s.RenumberStartingAt(0)
}

// RenumberStartingAt assigns ids base, base+1, ... in insertion order and rewrites containment to match. It
// fails while changes are pending.
func (s *Store) RenumberStartingAt(base ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) > 0 {
		return eris.Wrapf(ErrPendingChanges, "%d changes", len(s.pending))
	}
	if base < 0 {
		return eris.Wrapf(ErrInvalidID, "%d", base)
	}

	remap := make(map[ID]ID, len(s.order))
	for i, e := range s.order {
		remap[e.id] = base + ID(i)
	}
	s.entities = make(map[ID]*Entity, len(s.order))
	for _, e := range s.order {
		e.id = remap[e.id]
		s.entities[e.id] = e

		st := e.committed
		if id, ok := remap[st.heldBy]; ok {
			st.heldBy = id
		} else {
			st.heldBy = NoID
		}
		hold := st.hold[:0]
		for _, id := range st.hold {
			if nid, ok := remap[id]; ok {
				hold = append(hold, nid)
			}
		}
		st.hold = hold
	}
	s.nextID = base + ID(len(s.order))
	s.log.Debug().Int64("base", int64(base)).Int("count", len(s.order)).Msg("renumbered")
	return nil
}

// NextID returns the id CreateEntity would assign.
func (s *Store) NextID() ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID
}

// Modified returns the entities whose committed state changed since the last ClearModified.
func (s *Store) Modified() []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entity
	for _, e := range s.order {
		if e.modified {
			out = append(out, e)
		}
	}
	return out
}

// ClearModified resets the modified flag of every entity.
func (s *Store) ClearModified() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.order {
		e.modified = false
	}
}

// view returns what readers see of e: its overlay when one exists, otherwise committed state.
func (s *Store) view(e *Entity) *entityState {
	if ov, ok := s.overlays[e.id]; ok {
		return ov
	}
	return e.committed
}

func (s *Store) readable(e *Entity) (*entityState, error) {
	if e.deleted {
		return nil, eris.Wrapf(ErrEntityNotFound, "%d", e.id)
	}
	st := s.view(e)
	if st.removed {
		return nil, eris.Wrapf(ErrEntityNotFound, "%d is removed by a pending change", e.id)
	}
	return st, nil
}

func (s *Store) writable(e *Entity) (*entityState, error) {
	st, err := s.readable(e)
	if err != nil {
		return nil, err
	}
	if e.unresolved {
		return nil, eris.Wrapf(ErrPendingResolution, "%d", e.id)
	}
	return st, nil
}

func (s *Store) checkRelated(container, child *Entity) error {
	if child == nil {
		return eris.Wrap(ErrEntityNotFound, "nil entity")
	}
	if child.store != s {
		return eris.Wrapf(ErrCrossStore, "entity %d cannot hold entity %d of another store", container.id, child.id)
	}
	if child == container {
		return eris.Wrapf(ErrSelfContainment, "%d", child.id)
	}
	if _, err := s.writable(child); err != nil {
		return err
	}
	return nil
}

// mutateEntity runs build against the current view of e under the write lock and submits the change it returns.
// A nil change means there is nothing to do.
func (s *Store) mutateEntity(e *Entity, build func(*entityState) (*Change, error)) error {
	if e == nil {
		return eris.Wrap(ErrEntityNotFound, "nil entity")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.writable(e)
	if err != nil {
		return err
	}
	c, err := build(st)
	if err != nil || c == nil {
		return err
	}
	c.ID = e.id
	return s.submit(e, c)
}
