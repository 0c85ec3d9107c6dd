package uforge

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/orneryd/uforge/pkg/embed"
	"github.com/orneryd/uforge/pkg/schema"
	"github.com/orneryd/uforge/pkg/search"
	"github.com/orneryd/uforge/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	dir := t.TempDir()
	g, err := Open(filepath.Join(dir, "db"), "", Config{
		EmbeddingProvider: embed.NewHashEmbedder(32),
		HNSW:              search.DefaultHNSWConfig(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestAddAndGetObject(t *testing.T) {
	g := newTestGraph(t)
	obj := storage.NewObject("character", "Gandalf")

	require.NoError(t, g.AddObject(obj))

	fetched, err := g.GetObject(obj.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gandalf", fetched.Name)
}

func TestAddObjectValidatedRejectsInvalid(t *testing.T) {
	g := newTestGraph(t)
	obj := storage.NewObject("location", "Bree")
	// location requires "type"; omit it

	result, err := g.AddObjectValidated(obj)
	require.NoError(t, err)
	assert.False(t, result.Valid)

	_, err = g.GetObject(obj.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAddObjectValidatedStoresValid(t *testing.T) {
	g := newTestGraph(t)
	obj := storage.NewObject("location", "Bree")
	obj.Properties["type"] = "town"

	result, err := g.AddObjectValidated(obj)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	fetched, err := g.GetObject(obj.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bree", fetched.Name)
}

func TestUpdateObjectTouchesUpdatedAt(t *testing.T) {
	g := newTestGraph(t)
	obj := storage.NewObject("character", "Frodo")
	require.NoError(t, g.AddObject(obj))

	before := obj.UpdatedAt
	time.Sleep(time.Millisecond)
	obj.Properties["status"] = "traveling"
	require.NoError(t, g.UpdateObject(obj))

	assert.True(t, obj.UpdatedAt.After(before))
}

func TestConnectAndGetRelationships(t *testing.T) {
	g := newTestGraph(t)
	frodo := storage.NewObject("character", "Frodo")
	sam := storage.NewObject("character", "Sam")
	require.NoError(t, g.AddObject(frodo))
	require.NoError(t, g.AddObject(sam))

	require.NoError(t, g.ConnectObjects(frodo.ID, sam.ID, "knows"))

	edges, err := g.GetRelationships(frodo.ID)
	require.NoError(t, err)
	assert.Len(t, edges, 1)

	neighbors, err := g.GetNeighbors(frodo.ID)
	require.NoError(t, err)
	assert.Equal(t, []storage.ObjectID{sam.ID}, neighbors)
}

func TestDeleteObjectCascades(t *testing.T) {
	g := newTestGraph(t)
	frodo := storage.NewObject("character", "Frodo")
	require.NoError(t, g.AddObject(frodo))
	_, err := g.AddTextChunk(frodo.ID, "Frodo carries the ring", storage.ChunkDescription)
	require.NoError(t, err)

	require.NoError(t, g.DeleteObject(frodo.ID))

	_, err = g.GetObject(frodo.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	chunks, err := g.GetTextChunks(frodo.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestQuerySubgraph(t *testing.T) {
	g := newTestGraph(t)
	a := storage.NewObject("character", "A")
	b := storage.NewObject("character", "B")
	c := storage.NewObject("character", "C")
	require.NoError(t, g.AddObject(a))
	require.NoError(t, g.AddObject(b))
	require.NoError(t, g.AddObject(c))
	require.NoError(t, g.ConnectObjects(a.ID, b.ID, "knows"))
	require.NoError(t, g.ConnectObjects(b.ID, c.ID, "knows"))

	sub, err := g.QuerySubgraph(a.ID, 2)
	require.NoError(t, err)
	assert.Len(t, sub.Objects, 3)
	assert.Len(t, sub.Edges, 4)
}

func TestAddTextChunkIndexesAsynchronously(t *testing.T) {
	g := newTestGraph(t)
	frodo := storage.NewObject("character", "Frodo")
	require.NoError(t, g.AddObject(frodo))

	_, err := g.AddTextChunk(frodo.ID, "Frodo carries the One Ring to Mordor", storage.ChunkDescription)
	require.NoError(t, err)

	require.NoError(t, g.Close()) // Close waits for async indexing to finish
	g.mu.Wait()                   // idempotent; already-finished WaitGroup

	hits, err := g.SearchSemantic(context.Background(), "Frodo carries the One Ring to Mordor", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestValidateObjectAgainstDefaultSchema(t *testing.T) {
	g := newTestGraph(t)
	obj := storage.NewObject("character", "Aragorn")

	result, err := g.ValidateObject(obj)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestRegisterObjectTypeAndGetSchemaStats(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.RegisterObjectType("default", "spell", schema.NewObjectTypeSchema("spell", "A spell")))

	stats, err := g.GetSchemaStats("default")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.ObjectTypeCount, 7)
}

func TestRebuildSearchIndexesFromObjects(t *testing.T) {
	g := newTestGraph(t)
	obj := storage.NewObject("character", "Gandalf")
	require.NoError(t, g.AddObject(obj))

	require.NoError(t, g.RebuildSearchIndexes())

	hits := g.SearchExact("Gandalf", 10)
	require.Len(t, hits, 1)
	assert.Equal(t, string(obj.ID), hits[0].ObjectID)
}

func TestRebuildVectorIndexReembedsChunks(t *testing.T) {
	g := newTestGraph(t)
	obj := storage.NewObject("character", "Gandalf")
	require.NoError(t, g.AddObject(obj))
	chunk := storage.NewTextChunk(obj.ID, "Gandalf the Grey", storage.ChunkDescription)
	require.NoError(t, g.store.UpsertChunk(chunk))

	n, err := g.RebuildVectorIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetStats(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.AddObject(storage.NewObject("character", "Gandalf")))

	stats, err := g.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NodeCount)
}
