package gamedata_test

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/testutils"
)

var (
	blockVocab = []string{"this", "dark", "light"}
	keyVocab   = []string{"strength", "Side", "tags", "weight", "fame"}
	valueVocab = []string{"1", "2", "3", "gold", "red"}
	nameVocab  = []string{"", "Scout", "Sword", "Castle", "Knight"}
)

type op uint8

// Each op's value is its weight.
const (
	opDelete       op = 1
	opRemoveBlock  op = 2
	opRenameBlock  op = 3
	opCopyBlock    op = 4
	opRemoveItem   op = 5
	opRemoveAttr   op = 6
	opSetName      op = 7
	opHoldRemove   op = 8
	opCreate       op = 9
	opAddItem      op = 10
	opBumpVersion  op = 11
	opHoldAdd      op = 12
	opSetList      op = 15
	opSetAttribute op = 20
)

var allOps = []op{
	opDelete, opRemoveBlock, opRenameBlock, opCopyBlock, opRemoveItem, opRemoveAttr, opSetName,
	opHoldRemove, opCreate, opAddItem, opBumpVersion, opHoldAdd, opSetList, opSetAttribute,
}

// mutateRandomly drives s through its public API. Errors a caller can legitimately provoke are tolerated.
func mutateRandomly(t *testing.T, r *rand.Rand, s *gamedata.Store, steps int) {
	t.Helper()

	for range steps {
		o := testutils.RandWeightedOp(r, allOps)
		entities := s.Entities()
		if o == opCreate || len(entities) == 0 {
			s.CreateEntity()
			continue
		}

		e := testutils.RandFrom(r, entities)
		block := testutils.RandFrom(r, blockVocab)
		key := testutils.RandFrom(r, keyVocab)
		var err error
		switch o {
		case opDelete:
			err = s.RemoveEntity(e)
		case opRemoveBlock:
			err = e.RemoveAttributeBlock(block)
		case opRenameBlock:
			err = e.RenameAttributeBlock(block, testutils.RandFrom(r, blockVocab))
		case opCopyBlock:
			err = e.CopyAttributeBlock(block, testutils.RandFrom(r, blockVocab))
		case opRemoveItem:
			err = e.RemoveAttributeListItem(block, key, testutils.RandFrom(r, valueVocab))
		case opRemoveAttr:
			err = e.RemoveAttribute(block, key)
		case opSetName:
			err = e.SetName(testutils.RandFrom(r, nameVocab))
		case opHoldRemove:
			err = e.Remove(testutils.RandFrom(r, entities))
		case opAddItem:
			err = e.AddAttributeListItem(block, key, testutils.RandFrom(r, valueVocab))
		case opBumpVersion:
			err = e.BumpVersion()
		case opHoldAdd:
			err = e.Add(testutils.RandFrom(r, entities))
		case opSetList:
			err = e.SetAttributeList(block, key, testutils.RandStrings(r, valueVocab, 4))
		case opSetAttribute:
			err = e.SetAttribute(block, key, testutils.RandFrom(r, valueVocab))
		case opCreate:
		}
		if err != nil {
			require.True(t, tolerable(err), "op %d: %v", o, err)
		}
	}
}

func tolerable(err error) bool {
	return eris.Is(err, gamedata.ErrTypeMismatch) ||
		eris.Is(err, gamedata.ErrBlockNotFound) ||
		eris.Is(err, gamedata.ErrBlockExists) ||
		eris.Is(err, gamedata.ErrSelfContainment) ||
		eris.Is(err, gamedata.ErrAttributeNotFound)
}

// observed is what two stores must agree on to be considered equal: versions, key order, hold order and empty
// blocks are not part of it.
type observed struct {
	Name   string
	Attrs  map[string]string
	HeldBy gamedata.ID
	Hold   []gamedata.ID
}

func observe(s *gamedata.Store) map[gamedata.ID]observed {
	out := make(map[gamedata.ID]observed)
	for _, d := range s.Export() {
		o := observed{Name: d.Name, Attrs: map[string]string{}, HeldBy: d.HeldBy, Hold: slices.Clone(d.Hold)}
		slices.Sort(o.Hold)
		for _, b := range d.Blocks {
			for _, a := range b.Attributes {
				o.Attrs[b.Name+"."+a.Key] = a.Value.Kind().String() + ":" + a.Value.String()
			}
		}
		out[d.ID] = o
	}
	return out
}

// views captures what readers see of every visible entity, versions included.
func views(s *gamedata.Store) []gamedata.EntityData {
	var out []gamedata.EntityData
	for _, e := range s.Entities() {
		out = append(out, e.Data())
	}
	return out
}

// requireConsistent checks that heldBy and hold agree in committed state.
func requireConsistent(t *testing.T, s *gamedata.Store) {
	t.Helper()

	byID := map[gamedata.ID]gamedata.EntityData{}
	for _, d := range s.Export() {
		byID[d.ID] = d
	}
	for id, d := range byID {
		if d.HeldBy != gamedata.NoID {
			container, ok := byID[d.HeldBy]
			require.True(t, ok, "entity %d held by missing %d", id, d.HeldBy)
			require.Contains(t, container.Hold, id)
		}
		for _, child := range d.Hold {
			require.Equal(t, id, byID[child].HeldBy, "entity %d holds %d", id, child)
		}
	}
}

// clone copies the committed state of s into a new store of the same session.
func clone(t *testing.T, s *gamedata.Store) *gamedata.Store {
	t.Helper()

	c := gamedata.NewStore(s.Session())
	require.NoError(t, c.ApplyChanges(gamedata.BuildChanges(c, s)))
	return c
}
