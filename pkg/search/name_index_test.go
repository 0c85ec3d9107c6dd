package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameIndexExactMatch(t *testing.T) {
	idx := NewNameIndex()
	idx.Rebuild(
		[]string{"Gandalf", "Frodo", "Galadriel"},
		[]NameEntry{{ObjectID: "g"}, {ObjectID: "f"}, {ObjectID: "ga"}},
	)

	hits := idx.SearchExact("Gandalf", 10)
	require.Len(t, hits, 1)
	assert.Equal(t, "g", hits[0].ObjectID)
}

func TestNameIndexPrefixMatch(t *testing.T) {
	idx := NewNameIndex()
	idx.Rebuild(
		[]string{"Gandalf", "Frodo", "Galadriel"},
		[]NameEntry{{ObjectID: "g"}, {ObjectID: "f"}, {ObjectID: "ga"}},
	)

	hits := idx.SearchExact("Ga", 10)
	require.Len(t, hits, 2)
	assert.Equal(t, "ga", hits[0].ObjectID)
	assert.Equal(t, "g", hits[1].ObjectID)
}

func TestNameIndexLimit(t *testing.T) {
	idx := NewNameIndex()
	idx.Rebuild(
		[]string{"Aaa", "Aab", "Aac"},
		[]NameEntry{{ObjectID: "1"}, {ObjectID: "2"}, {ObjectID: "3"}},
	)

	hits := idx.SearchExact("Aa", 2)
	assert.Len(t, hits, 2)
}

func TestNameIndexNoMatch(t *testing.T) {
	idx := NewNameIndex()
	idx.Rebuild([]string{"Gandalf"}, []NameEntry{{ObjectID: "g"}})

	hits := idx.SearchExact("Zzz", 10)
	assert.Empty(t, hits)
}

func TestNameIndexCaseSensitive(t *testing.T) {
	idx := NewNameIndex()
	idx.Rebuild([]string{"Gandalf"}, []NameEntry{{ObjectID: "g"}})

	assert.Empty(t, idx.SearchExact("gandalf", 10))
}

func TestNameIndexDumpReload(t *testing.T) {
	idx := NewNameIndex()
	idx.Rebuild([]string{"Gandalf", "Frodo"}, []NameEntry{{ObjectID: "g"}, {ObjectID: "f"}})

	data, err := idx.Dump()
	require.NoError(t, err)

	reloaded, err := LoadNameIndex(data)
	require.NoError(t, err)
	assert.Equal(t, idx.Size(), reloaded.Size())

	hits := reloaded.SearchExact("Frodo", 10)
	require.Len(t, hits, 1)
	assert.Equal(t, "f", hits[0].ObjectID)
}

func TestNameIndexAllowsDuplicateNames(t *testing.T) {
	idx := NewNameIndex()
	idx.Rebuild(
		[]string{"Shadow", "Shadow"},
		[]NameEntry{{ObjectID: "1", ObjectType: "character"}, {ObjectID: "2", ObjectType: "location"}},
	)

	hits := idx.SearchExact("Shadow", 10)
	assert.Len(t, hits, 2)
}
