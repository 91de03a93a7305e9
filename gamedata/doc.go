/*
Package gamedata is the transactional object store behind a tabletop session. Every piece of mutable game state
(cards, characters, chits, tiles) is an Entity held by a Store. An entity carries a name, a version counter, named
attribute blocks and an ordered list of entities it contains.

# Attributes

A block maps keys to values. Block names are case-sensitive; keys are not, and are stored lower-cased. A value is
either a scalar string or an ordered list of strings. A key keeps its shape until it is removed: reading a list as a
scalar, or setting a scalar over a list, fails with ErrTypeMismatch. Keys keep their insertion order, which is what
snapshots and renderers see. A block exists while it holds at least one key; removing its last key removes it.

# Change tracking

With tracking off, the public mutators on Entity write straight into the committed graph, bumping the entity's
version by one per mutation.

With tracking on, each mutation becomes a Change appended to the store's pending queue, and the same Change is
applied to an overlay: a full copy of the entity made on its first write and kept in a map keyed by entity id. All
readers prefer the overlay, so rule code sees its own uncommitted edits. Store.Commit drops every overlay and replays
the queue against committed state in FIFO order, which leaves committed state equal to what the overlays showed.
Store.Rollback drops overlays and the queue, leaving committed state untouched.

Store.PopAndCommit does the same as Commit but returns the records it applied so they can be forwarded to peers.
A peer replays them with Store.ApplyRemote, which sets its own pending edits aside, applies the batch and then
rebuilds its overlays on top. Local edits that no longer fit are dropped and logged. A locally created entity whose
id the batch also uses moves to a fresh id, so rolling back never deletes an entity the batch created.

# Reconciliation

BuildChanges compares two stores and returns the Changes that turn the first into the second. Creations are
emitted first, then the records populating new entities, then updates, then deletions, so a receiver replaying
the list in order never references an entity it has not seen yet.
*/
package gamedata
