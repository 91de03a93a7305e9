package gamedata

import (
	"slices"

	"github.com/rotisserie/eris"
)

// Entity is a handle to one addressable node of a Store. Handles stay valid across renumbering; once the entity
// is deleted every accessor that can fail returns ErrEntityNotFound.
type Entity struct {
	store     *Store
	id        ID
	committed *entityState

	modified   bool
	unresolved bool
	deleted    bool
}

// Store returns the store e belongs to.
func (e *Entity) Store() *Store { return e.store }

// ID returns the id of e. It changes only when the store renumbers its entities.
func (e *Entity) ID() ID {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()
	return e.id
}

// Name returns the current name of e, including pending edits.
func (e *Entity) Name() string {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()
	return e.store.view(e).name
}

// Version returns the version of e as readers currently see it.
func (e *Entity) Version() int64 {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()
	return e.store.view(e).version
}

// IsModified reports whether committed state changed since the last Store.ClearModified.
func (e *Entity) IsModified() bool {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()
	return e.modified
}

// HasShadow reports whether uncommitted changes are visible through e.
func (e *Entity) HasShadow() bool {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()
	_, ok := e.store.overlays[e.id]
	return ok
}

// Attribute returns the scalar under block/key. It fails with ErrAttributeNotFound when the key is missing and
// with ErrTypeMismatch when it holds a list.
func (e *Entity) Attribute(block, key string) (string, error) {
	v, err := e.lookup(block, key)
	if err != nil {
		return "", err
	}
	s, ok := v.Scalar()
	if !ok {
		return "", eris.Wrapf(ErrTypeMismatch, "%s.%s is a list", block, key)
	}
	return s, nil
}

// AttributeList returns a copy of the list under block/key. A scalar fails with ErrTypeMismatch.
func (e *Entity) AttributeList(block, key string) ([]string, error) {
	v, err := e.lookup(block, key)
	if err != nil {
		return nil, err
	}
	items, ok := v.List()
	if !ok {
		return nil, eris.Wrapf(ErrTypeMismatch, "%s.%s is a scalar", block, key)
	}
	return items, nil
}

// HasAttribute reports whether block/key holds a value of either shape.
func (e *Entity) HasAttribute(block, key string) bool {
	_, err := e.lookup(block, key)
	return err == nil
}

// Value returns the raw value under block/key whatever its shape.
func (e *Entity) Value(block, key string) (Value, bool) {
	v, err := e.lookup(block, key)
	return v, err == nil
}

func (e *Entity) lookup(block, key string) (Value, error) {
	s := e.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.readable(e)
	if err != nil {
		return Value{}, err
	}
	v, ok := st.value(block, normalizeKey(key))
	if !ok {
		return Value{}, eris.Wrapf(ErrAttributeNotFound, "%s.%s on entity %d", block, key, e.id)
	}
	return v.clone(), nil
}

// Lookup lets queries run against an entity.
func (e *Entity) Lookup(block, key string) ([]string, bool, bool) {
	s := e.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	return subject{st: s.view(e)}.Lookup(block, key)
}

// BlockNames returns the attribute block names in insertion order.
func (e *Entity) BlockNames() []string {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()
	return slices.Clone(e.store.view(e).blockNames)
}

// BlockKeys returns the keys of block in insertion order, or nil when e has no such block.
func (e *Entity) BlockKeys(block string) []string {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()
	b, ok := e.store.view(e).blocks[block]
	if !ok {
		return nil
	}
	return b.Keys()
}

// HeldBy returns the container of e, or nil.
func (e *Entity) HeldBy() *Entity {
	s := e.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entities[s.view(e).heldBy]
}

// Hold returns the contained entities in order.
func (e *Entity) Hold() []*Entity {
	s := e.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	hold := s.view(e).hold
	out := make([]*Entity, 0, len(hold))
	for _, id := range hold {
		if child, ok := s.entities[id]; ok {
			out = append(out, child)
		}
	}
	return out
}

// HoldIDs returns the ids of the contained entities in order.
func (e *Entity) HoldIDs() []ID {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()
	return slices.Clone(e.store.view(e).hold)
}

// SetName renames e. Setting the current name records nothing.
func (e *Entity) SetName(name string) error {
	return e.store.mutateEntity(e, func(st *entityState) (*Change, error) {
		if st.name == name {
			return nil, nil
		}
		return &Change{Kind: ChangeSetName, Value: name}, nil
	})
}

// SetAttribute stores a scalar under block/key, creating the block when needed. Overwriting a list fails with
// ErrTypeMismatch; writing the value already there records nothing.
func (e *Entity) SetAttribute(block, key, value string) error {
	key = normalizeKey(key)
	return e.store.mutateEntity(e, func(st *entityState) (*Change, error) {
		if old, ok := st.value(block, key); ok {
			if old.IsList() {
				return nil, eris.Wrapf(ErrTypeMismatch, "%s.%s is a list", block, key)
			}
			if old.scalar == value {
				return nil, nil
			}
		}
		return &Change{Kind: ChangeSetAttribute, Block: block, Key: key, Value: value}, nil
	})
}

// SetAttributeList replaces the list under block/key, recording only the appended suffix when the current list
// is a prefix of items.
func (e *Entity) SetAttributeList(block, key string, items []string) error {
	key = normalizeKey(key)
	return e.store.mutateEntity(e, func(st *entityState) (*Change, error) {
		var current []string
		old, exists := st.value(block, key)
		if exists {
			if !old.IsList() {
				return nil, eris.Wrapf(ErrTypeMismatch, "%s.%s is a scalar", block, key)
			}
			current = old.list
		}
		edit := DiffList(current, items)
		if exists && edit.IsNoop() {
			return nil, nil
		}
		return &Change{
			Kind:  ChangeSetList,
			Block: block,
			Key:   key,
			Clear: edit.Clear,
			Items: edit.Append,
		}, nil
	})
}

// AddAttributeListItem appends item to the list under block/key, starting a new list when the key is missing.
func (e *Entity) AddAttributeListItem(block, key, item string) error {
	key = normalizeKey(key)
	return e.store.mutateEntity(e, func(st *entityState) (*Change, error) {
		if old, ok := st.value(block, key); ok && !old.IsList() {
			return nil, eris.Wrapf(ErrTypeMismatch, "%s.%s is a scalar", block, key)
		}
		return &Change{Kind: ChangeListAdd, Block: block, Key: key, Items: []string{item}}, nil
	})
}

// RemoveAttributeListItem removes the first occurrence of item. Removing an item the list does not hold is a
// no-op.
func (e *Entity) RemoveAttributeListItem(block, key, item string) error {
	key = normalizeKey(key)
	return e.store.mutateEntity(e, func(st *entityState) (*Change, error) {
		old, ok := st.value(block, key)
		if !ok {
			return nil, eris.Wrapf(ErrAttributeNotFound, "%s.%s", block, key)
		}
		if !old.IsList() {
			return nil, eris.Wrapf(ErrTypeMismatch, "%s.%s is a scalar", block, key)
		}
		if !slices.Contains(old.list, item) {
			return nil, nil
		}
		return &Change{Kind: ChangeListRemove, Block: block, Key: key, Items: []string{item}}, nil
	})
}

// RemoveAttribute deletes block/key. A missing key is a no-op.
func (e *Entity) RemoveAttribute(block, key string) error {
	key = normalizeKey(key)
	return e.store.mutateEntity(e, func(st *entityState) (*Change, error) {
		if _, ok := st.value(block, key); !ok {
			return nil, nil
		}
		return &Change{Kind: ChangeDeleteAttribute, Block: block, Key: key}, nil
	})
}

// RemoveAttributeBlock deletes block with every key in it. A missing block is a no-op.
func (e *Entity) RemoveAttributeBlock(block string) error {
	return e.store.mutateEntity(e, func(st *entityState) (*Change, error) {
		if _, ok := st.blocks[block]; !ok {
			return nil, nil
		}
		return &Change{Kind: ChangeRemoveBlock, Block: block}, nil
	})
}

// RenameAttributeBlock renames from to to, keeping its position. The target must not exist.
func (e *Entity) RenameAttributeBlock(from, to string) error {
	return e.store.mutateEntity(e, func(st *entityState) (*Change, error) {
		if _, ok := st.blocks[from]; !ok {
			return nil, eris.Wrapf(ErrBlockNotFound, "%q", from)
		}
		if from == to {
			return nil, nil
		}
		if _, ok := st.blocks[to]; ok {
			return nil, eris.Wrapf(ErrBlockExists, "%q", to)
		}
		return &Change{Kind: ChangeRenameBlock, Block: from, Target: to}, nil
	})
}

// CopyAttributeBlock copies from into to, replacing whatever to held.
func (e *Entity) CopyAttributeBlock(from, to string) error {
	return e.store.mutateEntity(e, func(st *entityState) (*Change, error) {
		if _, ok := st.blocks[from]; !ok {
			return nil, eris.Wrapf(ErrBlockNotFound, "%q", from)
		}
		if from == to {
			return nil, nil
		}
		return &Change{Kind: ChangeCopyBlock, Block: from, Target: to}, nil
	})
}

// BumpVersion raises the version of e without changing anything else.
func (e *Entity) BumpVersion() error {
	return e.store.mutateEntity(e, func(*entityState) (*Change, error) {
		return &Change{Kind: ChangeBumpVersion}, nil
	})
}

// Add makes e the container of child, taking child out of its previous container.
func (e *Entity) Add(child *Entity) error {
	return e.store.mutateEntity(e, func(st *entityState) (*Change, error) {
		if err := e.store.checkRelated(e, child); err != nil {
			return nil, err
		}
		if st.holds(child.id) {
			return nil, nil
		}
		return &Change{Kind: ChangeHoldAdd, Child: child.id}, nil
	})
}

// Remove takes child out of e. Removing an entity e does not hold is a no-op.
func (e *Entity) Remove(child *Entity) error {
	return e.store.mutateEntity(e, func(st *entityState) (*Change, error) {
		if err := e.store.checkRelated(e, child); err != nil {
			return nil, err
		}
		if !st.holds(child.id) {
			return nil, nil
		}
		return &Change{Kind: ChangeHoldRemove, Child: child.id}, nil
	})
}

// Committed returns the committed state of e, ignoring any uncommitted changes.
func (e *Entity) Committed() EntityData {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()
	return exportState(e.id, e.committed)
}

// Data returns what readers currently see of e, including uncommitted changes.
func (e *Entity) Data() EntityData {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()
	return exportState(e.id, e.store.view(e))
}
