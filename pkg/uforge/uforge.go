// Package uforge provides the main embedded API: a single Graph that
// composes the key-value store, graph store, schema engine, search engine,
// and embedding queue behind the operation set a worldbuilding tool needs.
//
// Example Usage:
//
//	g, err := uforge.Open("./data", "./data/index", uforge.Config{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer g.Close()
//
//	gandalf := storage.NewObject("character", "Gandalf")
//	gandalf.Properties["species"] = "Maiar"
//	if err := g.AddObject(gandalf); err != nil {
//		log.Fatal(err)
//	}
package uforge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/orneryd/uforge/pkg/embed"
	"github.com/orneryd/uforge/pkg/schema"
	"github.com/orneryd/uforge/pkg/search"
	"github.com/orneryd/uforge/pkg/storage"
)

const (
	vectorIndexFile = "vector.hnsw"
	nameIndexFile   = "names.idx"
)

// Config configures Open. A zero Config is usable: Open fills in a
// deterministic hash-based embedding provider and spec-default HNSW
// parameters when left unset, so a caller gets a working graph with no
// external embedding service required.
type Config struct {
	EmbeddingProvider embed.Provider
	HNSW              search.HNSWConfig
	QueueCapacity     int
}

// Graph is the embedded worldbuilding knowledge graph: one store, one
// schema manager, one search engine, one embedding queue.
type Graph struct {
	store             *storage.Store
	schemaMgr         *schema.Manager
	searchEngine      *search.Engine
	embedQueue        *embed.Queue
	embeddingProvider embed.Provider
	embeddingCacheDir string

	mu sync.WaitGroup // tracks in-flight async chunk-indexing goroutines, for a clean Close
}

// Open creates or opens a graph at dbPath, with vector/name index snapshots
// persisted under embeddingCacheDir. Passing an empty embeddingCacheDir
// disables index persistence: the search indexes start (and stay) empty
// across restarts.
func Open(dbPath, embeddingCacheDir string, cfg Config) (*Graph, error) {
	store, err := storage.Open(storage.Options{DataDir: dbPath})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	provider := cfg.EmbeddingProvider
	if provider == nil {
		provider = embed.NewHashEmbedder(384)
	}
	hnswCfg := cfg.HNSW
	if hnswCfg.MaxElements == 0 {
		hnswCfg = search.DefaultHNSWConfig()
	}
	queueCapacity := cfg.QueueCapacity
	if queueCapacity == 0 {
		queueCapacity = 256
	}

	g := &Graph{
		store:             store,
		schemaMgr:         schema.NewManager(store),
		searchEngine:      search.NewEngine(provider, hnswCfg),
		embedQueue:        embed.NewQueue(provider, queueCapacity),
		embeddingProvider: provider,
		embeddingCacheDir: embeddingCacheDir,
	}

	if embeddingCacheDir != "" {
		g.loadSearchIndexes()
	}

	return g, nil
}

func (g *Graph) loadSearchIndexes() {
	if data, err := os.ReadFile(filepath.Join(g.embeddingCacheDir, vectorIndexFile)); err == nil {
		if err := g.searchEngine.LoadVectorIndex(data); err != nil {
			fmt.Printf("warning: failed to reload vector index: %v\n", err)
		}
	}
	if data, err := os.ReadFile(filepath.Join(g.embeddingCacheDir, nameIndexFile)); err == nil {
		if err := g.searchEngine.LoadNameIndex(data); err != nil {
			fmt.Printf("warning: failed to reload name index: %v\n", err)
		}
	}
}

func (g *Graph) saveSearchIndexes() {
	if g.embeddingCacheDir == "" {
		return
	}
	if err := os.MkdirAll(g.embeddingCacheDir, 0o755); err != nil {
		fmt.Printf("warning: failed to create embedding cache dir: %v\n", err)
		return
	}
	if data, err := g.searchEngine.DumpVectorIndex(); err == nil {
		_ = os.WriteFile(filepath.Join(g.embeddingCacheDir, vectorIndexFile), data, 0o644)
	}
	if data, err := g.searchEngine.DumpNameIndex(); err == nil {
		_ = os.WriteFile(filepath.Join(g.embeddingCacheDir, nameIndexFile), data, 0o644)
	}
}

// Close shuts down the embedding queue, waits for any in-flight async chunk
// indexing to finish, persists the search indexes, and closes the store.
func (g *Graph) Close() error {
	g.embedQueue.Shutdown()
	g.mu.Wait()
	g.saveSearchIndexes()
	return g.store.Close()
}

// AddObject stores object with no schema validation.
func (g *Graph) AddObject(object *storage.Object) error {
	return g.store.UpsertNode(object)
}

// AddObjectValidated validates object against the default schema; it is
// only stored if the result is valid.
func (g *Graph) AddObjectValidated(object *storage.Object) (schema.ValidationResult, error) {
	result, err := g.schemaMgr.ValidateObject(object)
	if err != nil {
		return schema.ValidationResult{}, err
	}
	if !result.Valid {
		return result, nil
	}
	return result, g.store.UpsertNode(object)
}

// GetObject fetches an object by id.
func (g *Graph) GetObject(id storage.ObjectID) (*storage.Object, error) {
	return g.store.GetNode(id)
}

// GetAllObjects returns every object in the graph.
func (g *Graph) GetAllObjects() ([]*storage.Object, error) {
	return g.store.GetAllObjects()
}

// UpdateObject bumps object's updated_at and re-persists it.
func (g *Graph) UpdateObject(object *storage.Object) error {
	object.Touch()
	return g.store.UpsertNode(object)
}

// DeleteObject removes an object, its name index entry, its adjacency
// record, its chunks, and every edge referencing it.
func (g *Graph) DeleteObject(id storage.ObjectID) error {
	return g.store.DeleteNode(id)
}

// ConnectObjects creates a weight-1.0 edge from->to of the given type.
func (g *Graph) ConnectObjects(from, to storage.ObjectID, edgeType string) error {
	return g.store.UpsertEdge(storage.NewEdge(from, to, edgeType))
}

// ConnectObjectsWeighted creates an edge with an explicit weight.
func (g *Graph) ConnectObjectsWeighted(from, to storage.ObjectID, edgeType string, weight float32) error {
	edge := storage.NewEdge(from, to, edgeType)
	edge.Weight = weight
	return g.store.UpsertEdge(edge)
}

// ConnectObjectsStr is ConnectObjects taking raw string ids, for callers
// (e.g. ingestion, the CLI) that don't already hold typed ObjectIDs.
func (g *Graph) ConnectObjectsStr(from, to, edgeType string) error {
	return g.ConnectObjects(storage.ObjectID(from), storage.ObjectID(to), edgeType)
}

// GetRelationships returns every edge touching id, outgoing then incoming,
// with the non-deduplicated double-counting documented on storage.GetEdges.
func (g *Graph) GetRelationships(id storage.ObjectID) ([]storage.Edge, error) {
	return g.store.GetEdges(id)
}

// GetNeighbors returns the deduplicated set of ids reachable by one edge
// from id, in either direction.
func (g *Graph) GetNeighbors(id storage.ObjectID) ([]storage.ObjectID, error) {
	return g.store.GetNeighbors(id)
}

// AddTextChunk persists a chunk synchronously and submits it to the
// embedding queue; the chunk is searchable as soon as the queue's worker
// finishes embedding it, not necessarily before this call returns.
func (g *Graph) AddTextChunk(objectID storage.ObjectID, content string, chunkType storage.ChunkType) (*storage.TextChunk, error) {
	chunk := storage.NewTextChunk(objectID, content, chunkType)
	if err := g.store.UpsertChunk(chunk); err != nil {
		return nil, fmt.Errorf("upsert chunk: %w", err)
	}

	_, resultCh, err := g.embedQueue.EmbedText(string(chunk.ID), string(objectID), content)
	if err != nil {
		fmt.Printf("warning: failed to queue embedding for chunk %s: %v\n", chunk.ID, err)
		return chunk, nil
	}

	g.mu.Add(1)
	go g.indexChunkAsync(chunk, objectID, content, resultCh)

	return chunk, nil
}

func (g *Graph) indexChunkAsync(chunk *storage.TextChunk, objectID storage.ObjectID, content string, resultCh <-chan embed.Result) {
	defer g.mu.Done()
	result := <-resultCh
	if result.Err != nil {
		fmt.Printf("warning: embedding failed for chunk %s: %v\n", chunk.ID, result.Err)
		return
	}
	if err := g.searchEngine.IndexEmbedding(string(chunk.ID), string(objectID), content, result.Vector); err != nil {
		fmt.Printf("warning: failed to index chunk %s: %v\n", chunk.ID, err)
	}
}

// GetTextChunks returns every chunk owned by objectID.
func (g *Graph) GetTextChunks(objectID storage.ObjectID) ([]*storage.TextChunk, error) {
	return g.store.GetChunksForNode(objectID)
}

// FindByName looks up the (at most one) object stored under (objectType, name).
func (g *Graph) FindByName(objectType, name string) ([]*storage.Object, error) {
	return g.store.FindNodesByName(objectType, name)
}

// QuerySubgraph runs a breadth-first expansion from start out to maxHops.
func (g *Graph) QuerySubgraph(start storage.ObjectID, maxHops int) (*storage.Subgraph, error) {
	return g.store.QuerySubgraph(start, maxHops)
}

// GetStats summarizes the graph store's size.
func (g *Graph) GetStats() (storage.Stats, error) {
	return g.store.GetStats()
}

// GetSchemaManager exposes the schema manager for callers that need direct
// access beyond the validate/register operations mirrored here.
func (g *Graph) GetSchemaManager() *schema.Manager {
	return g.schemaMgr
}

// Store exposes the underlying storage.Store for callers that operate below
// the schema-aware facade, such as the line-delimited data ingester.
func (g *Graph) Store() *storage.Store {
	return g.store
}

// ValidateObject validates object against the default schema without
// storing it.
func (g *Graph) ValidateObject(object *storage.Object) (schema.ValidationResult, error) {
	return g.schemaMgr.ValidateObject(object)
}

// RegisterObjectType adds a new object type to the named schema.
func (g *Graph) RegisterObjectType(schemaName, typeName string, typeSchema schema.ObjectTypeSchema) error {
	return g.schemaMgr.RegisterObjectType(schemaName, typeName, typeSchema)
}

// RegisterEdgeType adds a new edge type to the named schema.
func (g *Graph) RegisterEdgeType(schemaName, edgeName string, edgeSchema schema.EdgeTypeSchema) error {
	return g.schemaMgr.RegisterEdgeType(schemaName, edgeName, edgeSchema)
}

// GetSchemaStats summarizes the named schema.
func (g *Graph) GetSchemaStats(schemaName string) (schema.Stats, error) {
	return g.schemaMgr.GetSchemaStats(schemaName)
}

// ListSchemas returns every schema name known to storage.
func (g *Graph) ListSchemas() ([]string, error) {
	return g.schemaMgr.ListSchemas()
}

// GetEmbeddingProvider exposes the configured embedding provider, e.g. for a
// caller that wants to embed a query directly rather than through the search
// engine.
func (g *Graph) GetEmbeddingProvider() embed.Provider {
	return g.embeddingProvider
}

// RebuildSearchIndexes rebuilds the name index from every object currently
// in the graph. The vector index is not rebuilt here: chunk embeddings are
// not retrievable from storage once the embedding itself is lost, only the
// chunk text is, so rebuilding the vector index is a re-embed-everything
// operation left to the caller (see RebuildVectorIndex).
func (g *Graph) RebuildSearchIndexes() error {
	objects, err := g.store.GetAllObjects()
	if err != nil {
		return fmt.Errorf("list objects: %w", err)
	}
	named := make([]search.NamedObject, len(objects))
	for i, o := range objects {
		named[i] = search.NamedObject{ID: string(o.ID), ObjectType: o.ObjectType, Name: o.Name}
	}
	sort.Slice(named, func(i, j int) bool { return named[i].Name < named[j].Name })
	g.searchEngine.RebuildNameIndex(named)
	return nil
}

// RebuildVectorIndex re-embeds and re-indexes every chunk currently in
// storage, synchronously, bypassing the embedding queue. Use this after
// bulk ingestion or when the on-disk vector index snapshot was lost.
func (g *Graph) RebuildVectorIndex(ctx context.Context) (int, error) {
	objects, err := g.store.GetAllObjects()
	if err != nil {
		return 0, fmt.Errorf("list objects: %w", err)
	}

	count := 0
	for _, o := range objects {
		chunks, err := g.store.GetChunksForNode(o.ID)
		if err != nil {
			return count, fmt.Errorf("list chunks for %s: %w", o.ID, err)
		}
		for _, c := range chunks {
			if err := g.searchEngine.AddChunk(ctx, string(c.ID), string(o.ID), c.Content); err != nil {
				fmt.Printf("warning: failed to re-embed chunk %s: %v\n", c.ID, err)
				continue
			}
			count++
		}
	}
	return count, nil
}

// SearchSemantic runs a semantic search over indexed chunks.
func (g *Graph) SearchSemantic(ctx context.Context, query string, limit int) ([]search.SemanticHit, error) {
	return g.searchEngine.SearchSemantic(ctx, query, limit)
}

// SearchExact runs a prefix search over indexed object names.
func (g *Graph) SearchExact(query string, limit int) []search.ExactHit {
	return g.searchEngine.SearchExact(query, limit)
}

// SearchHybrid runs both SearchSemantic and SearchExact, unmerged.
func (g *Graph) SearchHybrid(ctx context.Context, query string, semanticLimit, exactLimit int) (search.HybridResult, error) {
	return g.searchEngine.SearchHybrid(ctx, query, semanticLimit, exactLimit)
}
