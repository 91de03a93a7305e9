package gamedata

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/query"
)

// SetFilter installs the query behind Filtered. A nil query clears it.
func (s *Store) SetFilter(q *query.Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = q
}

// Filtered returns the visible entities matching the installed filter. It is recomputed on every call.
func (s *Store) Filtered() []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.filter == nil {
		return s.visible()
	}
	return s.selectLocked(s.filter)
}

// Select returns the visible entities matching q, in insertion order.
func (s *Store) Select(q *query.Query) []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectLocked(q)
}

func (s *Store) selectLocked(q *query.Query) []*Entity {
	var out []*Entity
	for _, e := range s.visible() {
		if q.Matches(subject{st: s.view(e)}) {
			out = append(out, e)
		}
	}
	return out
}

// Search narrows the entities matching q with an expr-lang where clause, see https://expr-lang.org. The clause
// sees id, name, version, held (the container id or -1), hold (the contained ids), attrs (the query's block) and
// blocks (every block by name). Attribute values are strings or string slices.
func (s *Store) Search(q *query.Query, where string) ([]*Entity, error) {
	var program *vm.Program
	if where != "" {
		var err error
		program, err = expr.Compile(where, expr.AsBool())
		if err != nil {
			return nil, eris.Wrap(err, "failed to parse where clause")
		}
	}
	if q == nil {
		q = &query.Query{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := s.visible()
	var matches bitmap.Bitmap
	for i, e := range candidates {
		if q.Matches(subject{st: s.view(e)}) {
			matches.Set(uint32(i)) //nolint:gosec // store sizes fit
		}
	}

	if program != nil {
		var (
			kept   bitmap.Bitmap
			runErr error
		)
		matches.Range(func(i uint32) {
			if runErr != nil {
				return
			}
			e := candidates[i]
			out, err := expr.Run(program, searchEnv(e.id, s.view(e), q.Block()))
			if err != nil {
				runErr = eris.Wrapf(err, "failed to run where clause on entity %d", e.id)
				return
			}
			if ok, isBool := out.(bool); isBool && ok {
				kept.Set(i)
			}
		})
		if runErr != nil {
			return nil, runErr
		}
		matches = kept
	}

	out := make([]*Entity, 0, matches.Count())
	matches.Range(func(i uint32) {
		out = append(out, candidates[i])
	})
	return out, nil
}

func searchEnv(id ID, st *entityState, block string) map[string]any {
	blocks := make(map[string]any, len(st.blocks))
	for name, b := range st.blocks {
		attrs := make(map[string]any, len(b.values))
		for key, v := range b.values {
			if v.IsList() {
				attrs[key] = v.Strings()
			} else {
				attrs[key] = v.scalar
			}
		}
		blocks[name] = attrs
	}
	attrs, ok := blocks[block]
	if !ok {
		attrs = map[string]any{}
	}
	hold := make([]int, len(st.hold))
	for i, h := range st.hold {
		hold[i] = int(h)
	}
	return map[string]any{
		"id":      int(id),
		"name":    st.name,
		"version": int(st.version),
		"held":    int(st.heldBy),
		"hold":    hold,
		"attrs":   attrs,
		"blocks":  blocks,
	}
}
