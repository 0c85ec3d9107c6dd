package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertAndGetNode(t *testing.T) {
	s := newTestStore(t)

	gandalf := NewObject("character", "Gandalf")
	gandalf.Description = "A wizard"
	require.NoError(t, s.UpsertNode(gandalf))

	got, err := s.GetNode(gandalf.ID)
	require.NoError(t, err)
	assert.Equal(t, gandalf.Name, got.Name)
	assert.Equal(t, gandalf.ObjectType, got.ObjectType)
}

func TestGetNodeNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetNode(NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
}

// Scenario (a): two characters plus a relationship between them.
func TestTwoCharactersWithRelationship(t *testing.T) {
	s := newTestStore(t)

	frodo := NewObject("character", "Frodo")
	sam := NewObject("character", "Sam")
	require.NoError(t, s.UpsertNode(frodo))
	require.NoError(t, s.UpsertNode(sam))

	edge := NewEdge(frodo.ID, sam.ID, "knows")
	require.NoError(t, s.UpsertEdge(edge))

	found, err := s.FindNodesByName("character", "Frodo")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, frodo.ID, found[0].ID)

	outEdges, err := s.GetEdges(frodo.ID)
	require.NoError(t, err)
	require.Len(t, outEdges, 1)
	assert.Equal(t, sam.ID, outEdges[0].To)

	inEdges, err := s.GetEdges(sam.ID)
	require.NoError(t, err)
	require.Len(t, inEdges, 1)
	assert.Equal(t, frodo.ID, inEdges[0].From)

	neighbors, err := s.GetNeighbors(frodo.ID)
	require.NoError(t, err)
	assert.Equal(t, []ObjectID{sam.ID}, neighbors)
}

func TestUpsertEdgeReplacesExistingTriple(t *testing.T) {
	s := newTestStore(t)

	a := NewObject("character", "A")
	b := NewObject("character", "B")
	require.NoError(t, s.UpsertNode(a))
	require.NoError(t, s.UpsertNode(b))

	e1 := NewEdge(a.ID, b.ID, "knows")
	e1.Weight = 1.0
	require.NoError(t, s.UpsertEdge(e1))

	e2 := NewEdge(a.ID, b.ID, "knows")
	e2.Weight = 5.0
	require.NoError(t, s.UpsertEdge(e2))

	edges, err := s.GetEdges(a.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, float32(5.0), edges[0].Weight)
}

// Scenario (b): deleting a node cascades to its name index entry, its own
// adjacency record, its owned chunks, and every reference from other nodes'
// adjacency records.
func TestDeleteNodeCascades(t *testing.T) {
	s := newTestStore(t)

	a := NewObject("character", "A")
	b := NewObject("character", "B")
	require.NoError(t, s.UpsertNode(a))
	require.NoError(t, s.UpsertNode(b))
	require.NoError(t, s.UpsertEdge(NewEdge(a.ID, b.ID, "knows")))

	chunk := NewTextChunk(a.ID, "A is a character", ChunkDescription)
	require.NoError(t, s.UpsertChunk(chunk))

	require.NoError(t, s.DeleteNode(a.ID))

	_, err := s.GetNode(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := s.FindNodesByName("character", "A")
	require.NoError(t, err)
	assert.Empty(t, found)

	chunks, err := s.GetChunksForNode(a.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	bEdges, err := s.GetEdges(b.ID)
	require.NoError(t, err)
	assert.Empty(t, bEdges)
}

// Scenario (c): query_subgraph(A, 2) over A-B, B-C yields 3 objects and 4
// edges because each physical edge is emitted once per endpoint's adjacency
// record, by design — not deduplicated.
func TestQuerySubgraphEmitsEdgesPerEndpoint(t *testing.T) {
	s := newTestStore(t)

	a := NewObject("character", "A")
	b := NewObject("character", "B")
	c := NewObject("character", "C")
	require.NoError(t, s.UpsertNode(a))
	require.NoError(t, s.UpsertNode(b))
	require.NoError(t, s.UpsertNode(c))
	require.NoError(t, s.UpsertEdge(NewEdge(a.ID, b.ID, "knows")))
	require.NoError(t, s.UpsertEdge(NewEdge(b.ID, c.ID, "knows")))

	sub, err := s.QuerySubgraph(a.ID, 2)
	require.NoError(t, err)

	assert.Len(t, sub.Objects, 3)
	assert.Len(t, sub.Edges, 4)
}

func TestQuerySubgraphZeroHopsReturnsOnlyStart(t *testing.T) {
	s := newTestStore(t)

	a := NewObject("character", "A")
	b := NewObject("character", "B")
	require.NoError(t, s.UpsertNode(a))
	require.NoError(t, s.UpsertNode(b))
	require.NoError(t, s.UpsertEdge(NewEdge(a.ID, b.ID, "knows")))

	sub, err := s.QuerySubgraph(a.ID, 0)
	require.NoError(t, err)
	require.Len(t, sub.Objects, 1)
	assert.Equal(t, a.ID, sub.Objects[0].ID)
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t)

	a := NewObject("character", "A")
	b := NewObject("character", "B")
	require.NoError(t, s.UpsertNode(a))
	require.NoError(t, s.UpsertNode(b))
	require.NoError(t, s.UpsertEdge(NewEdge(a.ID, b.ID, "knows")))
	require.NoError(t, s.UpsertChunk(NewTextChunk(a.ID, "hello world", ChunkDescription)))

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NodeCount)
	assert.Equal(t, 1, stats.EdgeCount)
	assert.Equal(t, 1, stats.ChunkCount)
}

func TestChunksForNode(t *testing.T) {
	s := newTestStore(t)

	a := NewObject("character", "A")
	require.NoError(t, s.UpsertNode(a))

	c1 := NewTextChunk(a.ID, "first", ChunkDescription)
	c2 := NewTextChunk(a.ID, "second", ChunkSessionNote)
	require.NoError(t, s.UpsertChunk(c1))
	require.NoError(t, s.UpsertChunk(c2))

	chunks, err := s.GetChunksForNode(a.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestSchemaBytesRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutSchemaBytes("character", []byte(`{"object_type":"character"}`)))

	data, err := s.GetSchemaBytes("character")
	require.NoError(t, err)
	assert.JSONEq(t, `{"object_type":"character"}`, string(data))

	names, err := s.ListSchemaNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"character"}, names)

	require.NoError(t, s.DeleteSchemaBytes("character"))
	_, err = s.GetSchemaBytes("character")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOperationsFailOnClosedStore(t *testing.T) {
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.GetNode(NewObjectID())
	assert.ErrorIs(t, err, ErrStorageClosed)
}
