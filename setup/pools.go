package setup

import (
	"math/rand/v2"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/argus-labs/tabletop/gamedata"
)

// Pools is the registry setup commands operate on. Every pool shares the registry's random source.
type Pools struct {
	store *gamedata.Store
	pools map[string]*Pool
	rng   *rand.Rand
	log   zerolog.Logger
}

type Option func(*Pools)

// WithLogger sets the logger commands report to.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pools) {
		p.log = log
	}
}

// NewPools creates an empty registry over store with a random source seeded from seed.
func NewPools(store *gamedata.Store, seed uint64, opts ...Option) *Pools {
	p := &Pools{
		store: store,
		pools: make(map[string]*Pool),
		rng:   rand.New(rand.NewPCG(seed, seed)), //nolint:gosec // layouts need reproducibility, not secrecy
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (ps *Pools) Store() *gamedata.Store { return ps.store }

// CreatePool declares an empty pool. Names must be non-empty and unique within the registry.
func (ps *Pools) CreatePool(name string) (*Pool, error) {
	if name == "" {
		return nil, eris.Wrap(ErrInvalidParam, "pool name cannot be empty")
	}
	if _, ok := ps.pools[name]; ok {
		return nil, eris.Wrapf(ErrPoolExists, "%q", name)
	}
	p := &Pool{name: name, rng: ps.rng}
	ps.pools[name] = p
	return p, nil
}

// Pool returns the named pool or ErrPoolNotFound.
func (ps *Pools) Pool(name string) (*Pool, error) {
	p, ok := ps.pools[name]
	if !ok {
		return nil, eris.Wrapf(ErrPoolNotFound, "%q", name)
	}
	return p, nil
}

// Ensure returns the named pool, creating it when missing.
func (ps *Pools) Ensure(name string) (*Pool, error) {
	if p, ok := ps.pools[name]; ok {
		return p, nil
	}
	return ps.CreatePool(name)
}

// Drop forgets the named pool. Its entities stay where they are in the store.
func (ps *Pools) Drop(name string) {
	delete(ps.pools, name)
}

// Len returns the number of declared pools.
func (ps *Pools) Len() int {
	return len(ps.pools)
}
