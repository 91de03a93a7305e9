package setup

import (
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/assert"
	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/query"
)

// Mode selects which entities Pick takes.
type Mode uint8

const (
	ModeRandom Mode = iota
	ModeFromStart
	ModeFromEnd
)

var modeNames = [...]string{
	ModeRandom:    "random",
	ModeFromStart: "start",
	ModeFromEnd:   "end",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// ParseMode accepts the mode names case-insensitively. The empty string is ModeRandom.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeRandom, nil
	}
	if i := slices.Index(modeNames[:], strings.ToLower(s)); i >= 0 {
		return Mode(i), nil
	}
	return ModeRandom, eris.Wrapf(ErrInvalidParam, "mode %q", s)
}

// Pool is an ordered collection of entities. Removing an entity from a pool does not touch the store.
type Pool struct {
	name     string
	entities []*gamedata.Entity
	rng      *rand.Rand
}

func (p *Pool) Name() string { return p.name }

// Size returns the number of entities in the pool.
func (p *Pool) Size() int { return len(p.entities) }

// Entities returns the pool contents in order.
func (p *Pool) Entities() []*gamedata.Entity {
	return slices.Clone(p.entities)
}

// Add appends entities that are not in the pool yet.
func (p *Pool) Add(entities ...*gamedata.Entity) {
	for _, e := range entities {
		if !slices.Contains(p.entities, e) {
			p.entities = append(p.entities, e)
		}
	}
}

// Extract removes and returns up to limit entities matching q, in pool order. A limit of zero or less takes
// every match and a nil q matches everything.
func (p *Pool) Extract(q *query.Query, limit int) []*gamedata.Entity {
	var taken []*gamedata.Entity
	kept := p.entities[:0]
	for _, e := range p.entities {
		if (limit <= 0 || len(taken) < limit) && (q == nil || q.Matches(e)) {
			taken = append(taken, e)
			continue
		}
		kept = append(kept, e)
	}
	clear(p.entities[len(kept):])
	p.entities = kept
	return taken
}

// Pick removes and returns count entities chosen by mode. It returns fewer when the pool runs out.
func (p *Pool) Pick(count int, mode Mode) []*gamedata.Entity {
	count = min(max(count, 0), len(p.entities))
	var picked []*gamedata.Entity
	switch mode {
	case ModeFromStart:
		picked = slices.Clone(p.entities[:count])
		p.entities = slices.Delete(p.entities, 0, count)
	case ModeFromEnd:
		n := len(p.entities)
		picked = slices.Clone(p.entities[n-count:])
		slices.Reverse(picked)
		p.entities = slices.Delete(p.entities, n-count, n)
	default:
		picked = make([]*gamedata.Entity, 0, count)
		for range count {
			i := p.rng.IntN(len(p.entities))
			picked = append(picked, p.entities[i])
			p.entities = slices.Delete(p.entities, i, i+1)
		}
	}
	assert.That(len(picked) == count, "picked %d entities, wanted %d", len(picked), count)
	return picked
}

// Distribute deals entities from p into the hold of every entity of target, one per target per round, until
// each target received count entities or p is empty. It returns the number of entities dealt.
func (p *Pool) Distribute(target *Pool, count int, mode Mode) (int, error) {
	dealt := 0
	for range count {
		for _, holder := range target.entities {
			picked := p.Pick(1, mode)
			if len(picked) == 0 {
				return dealt, nil
			}
			if err := holder.Add(picked[0]); err != nil {
				return dealt, eris.Wrapf(err, "failed to deal %d into %d", picked[0].ID(), holder.ID())
			}
			dealt++
		}
	}
	return dealt, nil
}

// Shuffle reorders the pool with the registry's random source.
func (p *Pool) Shuffle() {
	p.rng.Shuffle(len(p.entities), func(i, j int) {
		p.entities[i], p.entities[j] = p.entities[j], p.entities[i]
	})
}
