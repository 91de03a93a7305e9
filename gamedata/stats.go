package gamedata

// Stats counts what a store has done since it was created.
type Stats struct {
	Entities int
	Pending  int
	Overlays int

	Commits   uint64
	Rollbacks uint64
	// Tracked counts changes queued while tracking.
	Tracked uint64
	// Applied counts changes written to committed state.
	Applied uint64
	// Anomalies counts placeholders, stale versions and unresolved references.
	Anomalies uint64
}

// Stats returns the counters of s together with its current sizes.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.stats
	st.Entities = len(s.visible())
	st.Pending = len(s.pending)
	st.Overlays = len(s.overlays)
	return st
}
