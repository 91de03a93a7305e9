package snapshot

import (
	"cmp"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/gamedata"
)

// CurrentVersion is the document format written by Capture.
const CurrentVersion = 1

// Document is the saved form of a store plus the setups that go with it.
type Document struct {
	Version int        `json:"version"           yaml:"version"`
	Objects []Object   `json:"objects"           yaml:"objects"`
	Setups  []SetupDoc `json:"setups,omitempty"  yaml:"setups,omitempty"`
}

type Object struct {
	ID      int64      `json:"id"               yaml:"id"`
	Name    string     `json:"name"             yaml:"name"`
	Version int64      `json:"version"          yaml:"version"`
	Blocks  []BlockDoc `json:"blocks,omitempty" yaml:"blocks,omitempty"`
	Hold    []int64    `json:"hold,omitempty"   yaml:"hold,omitempty"`
}

type BlockDoc struct {
	Name       string         `json:"name"       yaml:"name"`
	Attributes []AttributeDoc `json:"attributes" yaml:"attributes"`
}

// AttributeDoc holds either a scalar Value or a positionally numbered List. A nil Value marks a list, which
// may be empty.
type AttributeDoc struct {
	Key   string      `json:"key"                     yaml:"key"`
	Value *string     `json:"value,omitempty"         yaml:"value,omitempty"`
	List  []ListEntry `json:"attributeList,omitempty" yaml:"attributeList,omitempty"`
}

type ListEntry struct {
	N int    `json:"n" yaml:"n"`
	V string `json:"v" yaml:"v"`
}

// SetupDoc is a named command sequence. The setup package owns the command vocabulary.
type SetupDoc struct {
	Name     string       `json:"name"     yaml:"name"`
	Commands []CommandDoc `json:"commands" yaml:"commands"`
}

type CommandDoc struct {
	Type       string  `json:"type"       yaml:"type"`
	Attributes []Param `json:"attributes" yaml:"attributes"`
}

type Param struct {
	Key   string `json:"key"   yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Param returns the value of the first attribute named key.
func (c CommandDoc) Param(key string) (string, bool) {
	for _, p := range c.Attributes {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Capture copies the committed state of s into a document. Pending changes are left out.
func Capture(s *gamedata.Store) *Document {
	data := s.Export()
	doc := &Document{Version: CurrentVersion, Objects: make([]Object, 0, len(data))}
	for _, d := range data {
		doc.Objects = append(doc.Objects, NewObject(d))
	}
	return doc
}

// NewObject converts exported entity data into its document form.
func NewObject(d gamedata.EntityData) Object {
	obj := Object{ID: int64(d.ID), Name: d.Name, Version: d.Version}
	for _, b := range d.Blocks {
		bd := BlockDoc{Name: b.Name, Attributes: make([]AttributeDoc, 0, len(b.Attributes))}
		for _, a := range b.Attributes {
			bd.Attributes = append(bd.Attributes, attributeFromValue(a.Key, a.Value))
		}
		obj.Blocks = append(obj.Blocks, bd)
	}
	for _, id := range d.Hold {
		obj.Hold = append(obj.Hold, int64(id))
	}
	return obj
}

func attributeFromValue(key string, v gamedata.Value) AttributeDoc {
	if s, ok := v.Scalar(); ok {
		return AttributeDoc{Key: key, Value: &s}
	}
	items, _ := v.List()
	a := AttributeDoc{Key: key}
	for i, item := range items {
		a.List = append(a.List, ListEntry{N: i, V: item})
	}
	return a
}

// value converts the document form back. List entries are ordered by position; a repeated position is an error.
func (a AttributeDoc) value() (gamedata.Value, error) {
	if a.Value != nil {
		if len(a.List) > 0 {
			return gamedata.Value{}, eris.Wrapf(ErrInvalidDocument, "attribute %q has both a value and a list", a.Key)
		}
		return gamedata.Scalar(*a.Value), nil
	}
	entries := slices.Clone(a.List)
	slices.SortStableFunc(entries, func(x, y ListEntry) int { return cmp.Compare(x.N, y.N) })
	items := make([]string, 0, len(entries))
	for i, e := range entries {
		if i > 0 && entries[i-1].N == e.N {
			return gamedata.Value{}, eris.Wrapf(ErrInvalidDocument, "attribute %q repeats list position %d", a.Key, e.N)
		}
		items = append(items, e.V)
	}
	return gamedata.List(items...), nil
}

// Restore builds a new store from doc. Entities are declared in document order and containment is linked once
// all of them exist. A containment reference to a missing or already claimed entity is logged through the
// store logger and left out; any other problem fails the whole restore.
func Restore(session *gamedata.Session, doc *Document, opts ...gamedata.Option) (*gamedata.Store, error) {
	if doc.Version > CurrentVersion {
		return nil, eris.Wrapf(ErrUnsupportedVersion, "version %d", doc.Version)
	}

	s := gamedata.NewStore(session, opts...)
	loader := s.NewLoader()
	for _, obj := range doc.Objects {
		e, err := loader.Declare(gamedata.ID(obj.ID), obj.Name, obj.Version)
		if err != nil {
			return nil, eris.Wrapf(err, "object %d", obj.ID)
		}
		for _, b := range obj.Blocks {
			for _, a := range b.Attributes {
				v, err := a.value()
				if err != nil {
					return nil, eris.Wrapf(err, "object %d block %q", obj.ID, b.Name)
				}
				loader.SetAttribute(e, b.Name, a.Key, v)
			}
		}
		hold := make([]gamedata.ID, 0, len(obj.Hold))
		for _, id := range obj.Hold {
			hold = append(hold, gamedata.ID(id))
		}
		loader.Hold(e, hold)
	}
	// Unresolved containment is already logged by the loader.
	_ = loader.Resolve()
	return s, nil
}
