package gamedata

import (
	"slices"
	"strings"
)

// ValueKind is the shape of a Value.
type ValueKind uint8

const (
	ScalarValue ValueKind = iota
	ListValue
)

func (k ValueKind) String() string {
	if k == ListValue {
		return "list"
	}
	return "scalar"
}

// Value is either a single string or an ordered list of strings. The zero Value is the empty scalar.
type Value struct {
	kind   ValueKind
	scalar string
	list   []string
}

// Scalar returns a scalar holding s.
func Scalar(s string) Value {
	return Value{kind: ScalarValue, scalar: s}
}

// List returns a list holding a copy of items.
func List(items ...string) Value {
	return Value{kind: ListValue, list: slices.Clone(items)}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsList() bool { return v.kind == ListValue }

// Scalar returns the scalar content. ok is false for lists.
func (v Value) Scalar() (s string, ok bool) {
	return v.scalar, v.kind == ScalarValue
}

// List returns a copy of the list content. ok is false for scalars.
func (v Value) List() (items []string, ok bool) {
	if v.kind != ListValue {
		return nil, false
	}
	return slices.Clone(v.list), true
}

// Strings returns the content as a slice whatever the shape.
func (v Value) Strings() []string {
	if v.kind == ListValue {
		return slices.Clone(v.list)
	}
	return []string{v.scalar}
}

// Equal reports whether v and o have the same shape and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind == ScalarValue {
		return v.scalar == o.scalar
	}
	return slices.Equal(v.list, o.list)
}

// String renders lists as [a,b,c].
func (v Value) String() string {
	if v.kind == ListValue {
		return "[" + strings.Join(v.list, ",") + "]"
	}
	return v.scalar
}

func (v Value) clone() Value {
	if v.kind == ListValue {
		v.list = slices.Clone(v.list)
	}
	return v
}

// Block is an insertion-ordered map of lower-cased keys to values.
type Block struct {
	keys   []string
	values map[string]Value
}

func newBlock() *Block {
	return &Block{values: make(map[string]Value)}
}

// Len returns the number of keys in b.
func (b *Block) Len() int { return len(b.keys) }

// Keys returns the keys in insertion order.
func (b *Block) Keys() []string { return slices.Clone(b.keys) }

// Get returns a copy of the value under key. Keys are matched case-insensitively.
func (b *Block) Get(key string) (Value, bool) {
	v, ok := b.values[normalizeKey(key)]
	return v.clone(), ok
}

func (b *Block) set(key string, v Value) {
	if _, ok := b.values[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.values[key] = v
}

func (b *Block) delete(key string) bool {
	if _, ok := b.values[key]; !ok {
		return false
	}
	delete(b.values, key)
	b.keys = slices.DeleteFunc(b.keys, func(k string) bool { return k == key })
	return true
}

func (b *Block) clone() *Block {
	c := &Block{keys: slices.Clone(b.keys), values: make(map[string]Value, len(b.values))}
	for k, v := range b.values {
		c.values[k] = v.clone()
	}
	return c
}

func normalizeKey(key string) string {
	return strings.ToLower(key)
}
