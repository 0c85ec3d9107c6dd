package search

import (
	"context"
	"fmt"

	"github.com/orneryd/uforge/pkg/embed"
)

const (
	previewMaxLen   = 100
	previewTruncate = 97
)

// Engine ties the vector index and name index together behind the
// operations a Graph Facade needs: embed-and-index a chunk, rebuild the
// name index from the current set of objects, and run semantic, exact, or
// hybrid queries.
type Engine struct {
	provider   embed.Provider
	vectorIdx  *HNSWIndex
	nameIdx    *NameIndex
}

// NewEngine constructs a search engine whose vector index is sized to the
// provider's embedding dimension.
func NewEngine(provider embed.Provider, config HNSWConfig) *Engine {
	return &Engine{
		provider:  provider,
		vectorIdx: NewHNSWIndex(provider.Dimensions(), config),
		nameIdx:   NewNameIndex(),
	}
}

// SemanticHit is one result of SearchSemantic.
type SemanticHit struct {
	ChunkID    string
	ObjectID   string
	Similarity float64
	Preview    string
}

// ExactHit is one result of SearchExact.
type ExactHit struct {
	ObjectID   string
	ObjectType string
}

// HybridResult bundles the two independent result sets SearchHybrid
// produces, unmerged: ranking and tie-breaking across the two lists is left
// to the caller.
type HybridResult struct {
	Semantic []SemanticHit
	Exact    []ExactHit
}

// AddChunk embeds content, truncates it into a short preview (first 100
// characters, or the first 97 plus "..." when truncation occurs), and
// inserts the result into the vector index.
func (e *Engine) AddChunk(ctx context.Context, chunkID, objectID, content string) error {
	vec, err := e.provider.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed chunk: %w", err)
	}
	preview := truncatePreview(content)
	return e.vectorIdx.Add(chunkID, objectID, preview, vec)
}

// IndexEmbedding inserts a precomputed embedding vector directly into the
// vector index, skipping the provider call AddChunk makes. This is the path
// the embedding queue's async worker uses: the text was already embedded on
// the queue's blocking worker, so indexing here is just a vector-index
// insert plus preview truncation.
func (e *Engine) IndexEmbedding(chunkID, objectID, content string, vec []float32) error {
	return e.vectorIdx.Add(chunkID, objectID, truncatePreview(content), vec)
}

func truncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewMaxLen {
		return content
	}
	return string(runes[:previewTruncate]) + "..."
}

// NamedObject is the minimal shape RebuildNameIndex needs from a graph
// object.
type NamedObject struct {
	ID         string
	ObjectType string
	Name       string
}

// RebuildNameIndex replaces the name index contents from the given objects.
// This is the only mutation path for the name index; there is no incremental
// update.
func (e *Engine) RebuildNameIndex(objects []NamedObject) {
	names := make([]string, len(objects))
	entries := make([]NameEntry, len(objects))
	for i, o := range objects {
		names[i] = o.Name
		entries[i] = NameEntry{ObjectID: o.ID, ObjectType: o.ObjectType}
	}
	e.nameIdx.Rebuild(names, entries)
}

// SearchSemantic embeds query and returns up to limit nearest chunks by
// cosine similarity, sorted as returned by the vector index (descending
// similarity). Similarity lies in [-1, 1] and no minimum is applied — a hit
// with negative similarity (opposite-direction vectors) is still returned
// if it ranks within the top limit.
func (e *Engine) SearchSemantic(ctx context.Context, query string, limit int) ([]SemanticHit, error) {
	vec, err := e.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := e.vectorIdx.Search(ctx, vec, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]SemanticHit, len(results))
	for i, r := range results {
		hits[i] = SemanticHit{
			ChunkID:    r.ChunkID,
			ObjectID:   r.ObjectID,
			Similarity: r.Score,
			Preview:    r.Preview,
		}
	}
	return hits, nil
}

// SearchExact returns up to limit objects whose name starts with query, in
// lexicographic order.
func (e *Engine) SearchExact(query string, limit int) []ExactHit {
	entries := e.nameIdx.SearchExact(query, limit)
	hits := make([]ExactHit, len(entries))
	for i, ent := range entries {
		hits[i] = ExactHit{ObjectID: ent.ObjectID, ObjectType: ent.ObjectType}
	}
	return hits
}

// SearchHybrid runs SearchSemantic and SearchExact and returns both result
// sets side by side, unmerged.
func (e *Engine) SearchHybrid(ctx context.Context, query string, semanticLimit, exactLimit int) (HybridResult, error) {
	semantic, err := e.SearchSemantic(ctx, query, semanticLimit)
	if err != nil {
		return HybridResult{}, err
	}
	exact := e.SearchExact(query, exactLimit)
	return HybridResult{Semantic: semantic, Exact: exact}, nil
}

// VectorIndexSize reports how many chunks are currently embedded.
func (e *Engine) VectorIndexSize() int { return e.vectorIdx.Size() }

// NameIndexSize reports how many names are currently indexed.
func (e *Engine) NameIndexSize() int { return e.nameIdx.Size() }

// DumpVectorIndex/DumpNameIndex/LoadVectorIndex/LoadNameIndex expose the
// underlying indexes' persistence so a caller (the Graph Facade) can manage
// where the bytes live without this package knowing about the filesystem.
func (e *Engine) DumpVectorIndex() ([]byte, error) { return e.vectorIdx.Dump() }
func (e *Engine) DumpNameIndex() ([]byte, error)   { return e.nameIdx.Dump() }

func (e *Engine) LoadVectorIndex(data []byte) error {
	idx, err := LoadHNSWIndex(data)
	if err != nil {
		return err
	}
	e.vectorIdx = idx
	return nil
}

func (e *Engine) LoadNameIndex(data []byte) error {
	idx, err := LoadNameIndex(data)
	if err != nil {
		return err
	}
	e.nameIdx = idx
	return nil
}
