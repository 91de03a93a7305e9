package gamedata_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/testutils"
)

func TestDiffListReproducesTarget(t *testing.T) {
	t.Parallel()

	vocab := []string{"a", "b"}
	for g := testutils.NewGen(); !g.Done(); {
		old := testutils.Strings(g, vocab, 3)
		next := testutils.Strings(g, vocab, 3)

		edit := gamedata.DiffList(old, next)
		got := edit.Apply(old)
		require.True(t, slices.Equal(next, got) || (len(next) == 0 && len(got) == 0),
			"old=%q next=%q edit=%+v got=%q", old, next, edit, got)

		if len(old) > 0 && len(old) <= len(next) && slices.Equal(old, next[:len(old)]) {
			assert.False(t, edit.Clear, "prefix growth only appends: old=%q next=%q", old, next)
		} else {
			assert.True(t, edit.Clear, "old=%q next=%q", old, next)
		}
	}
}

func TestDiffListBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		old  []string
		next []string
		want gamedata.ListEdit
	}{
		{"empty to empty", nil, nil, gamedata.ListEdit{Clear: true}},
		{"empty to some", nil, []string{"a"}, gamedata.ListEdit{Clear: true, Append: []string{"a"}}},
		{"some to empty", []string{"a"}, nil, gamedata.ListEdit{Clear: true}},
		{"prefix growth", []string{"a"}, []string{"a", "b"}, gamedata.ListEdit{Append: []string{"b"}}},
		{"equal", []string{"a"}, []string{"a"}, gamedata.ListEdit{Append: []string{}}},
		{"truncation", []string{"a", "b"}, []string{"a"}, gamedata.ListEdit{Clear: true, Append: []string{"a"}}},
		{"replacement", []string{"a", "b"}, []string{"b", "a"}, gamedata.ListEdit{Clear: true, Append: []string{"b", "a"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, gamedata.DiffList(tc.old, tc.next))
		})
	}
	assert.True(t, gamedata.DiffList([]string{"a"}, []string{"a"}).IsNoop())
}

func TestSetAttributeListRecordsSuffix(t *testing.T) {
	t.Parallel()

	s := gamedata.NewStore(nil)
	e := s.CreateEntity()
	require.NoError(t, e.SetAttributeList("this", "path", []string{"a"}))
	s.SetTracksChanges(true)

	require.NoError(t, e.SetAttributeList("this", "path", []string{"a", "b", "c"}))
	require.NoError(t, e.SetAttributeList("this", "path", []string{"a", "b", "c"}))
	require.NoError(t, e.SetAttributeList("this", "path", []string{"c"}))

	pending := s.Pending()
	require.Len(t, pending, 2)
	assert.False(t, pending[0].Clear)
	assert.Equal(t, []string{"b", "c"}, pending[0].Items)
	assert.True(t, pending[1].Clear)
	assert.Equal(t, []string{"c"}, pending[1].Items)

	require.NoError(t, s.Commit())
	items, err := e.AttributeList("this", "path")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, items)
}
