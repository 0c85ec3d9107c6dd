// Package storage persists the knowledge graph — objects, typed edges stored
// as per-node adjacency records, text chunks, and schema blobs — in an
// embedded BadgerDB instance. Column families are simulated with single-byte
// key prefixes inside one physical database, the same trick BadgerDB-backed
// graph engines use in place of RocksDB's native column family handles.
package storage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Point lookups return (nil, ErrNotFound); iteration instead
// logs and skips a corrupt record without aborting, per the ingestion and
// scan policy.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidData         = errors.New("invalid data")
	ErrStorageClosed       = errors.New("storage is closed")
	ErrBatchLengthMismatch = errors.New("batch lengths do not match")
)

// ObjectID and ChunkID are opaque 128-bit identifiers, formatted as
// dash-separated hex for JSON and log legibility.
type ObjectID string
type ChunkID string

func newID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// NewObjectID generates a fresh, universally-unique object identifier.
func NewObjectID() ObjectID { return ObjectID(newID()) }

// NewChunkID generates a fresh, universally-unique chunk identifier.
func NewChunkID() ChunkID { return ChunkID(newID()) }

// ChunkType classifies the provenance of a TextChunk.
type ChunkType string

const (
	ChunkDescription ChunkType = "description"
	ChunkSessionNote ChunkType = "session_note"
	ChunkAIGenerated ChunkType = "ai_generated"
	ChunkUserNote    ChunkType = "user_note"
	ChunkImported    ChunkType = "imported"
)

// Object is a typed node in the graph: a character, location, faction, item,
// event, session, or any custom type a schema declares.
type Object struct {
	ID          ObjectID       `json:"id"`
	ObjectType  string         `json:"object_type"`
	SchemaName  string         `json:"schema_name,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags"`
	Properties  map[string]any `json:"properties"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewObject constructs an Object with fresh id and timestamps.
func NewObject(objectType, name string) *Object {
	now := time.Now().UTC()
	return &Object{
		ID:         NewObjectID(),
		ObjectType: objectType,
		Name:       name,
		Tags:       []string{},
		Properties: map[string]any{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// AddTag appends tag if not already present, preserving the de-duplicated,
// insertion-ordered set invariant.
func (o *Object) AddTag(tag string) {
	for _, t := range o.Tags {
		if t == tag {
			return
		}
	}
	o.Tags = append(o.Tags, tag)
}

// Touch bumps UpdatedAt to now.
func (o *Object) Touch() { o.UpdatedAt = time.Now().UTC() }

// Edge connects two objects. An edge is uniquely identified by
// (From, To, EdgeType); upserting an existing triple replaces it.
type Edge struct {
	From      ObjectID          `json:"from"`
	To        ObjectID          `json:"to"`
	EdgeType  string            `json:"edge_type"`
	Weight    float32           `json:"weight"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata"`
}

// NewEdge constructs an Edge with weight 1.0 and the current timestamp.
func NewEdge(from, to ObjectID, edgeType string) Edge {
	return Edge{
		From: from, To: to, EdgeType: edgeType,
		Weight: 1.0, CreatedAt: time.Now().UTC(),
		Metadata: map[string]string{},
	}
}

// TextChunk is a unit of indexable text owned by exactly one object.
type TextChunk struct {
	ID         ChunkID   `json:"id"`
	ObjectID   ObjectID  `json:"object_id"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	ChunkType  ChunkType `json:"chunk_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewTextChunk constructs a TextChunk, computing an estimated token count.
func NewTextChunk(objectID ObjectID, content string, chunkType ChunkType) *TextChunk {
	return &TextChunk{
		ID:         NewChunkID(),
		ObjectID:   objectID,
		Content:    content,
		TokenCount: EstimateTokenCount(content),
		ChunkType:  chunkType,
		CreatedAt:  time.Now().UTC(),
	}
}

// EstimateTokenCount is an advisory, non-exact estimate: content.len()/4,
// floored at 1 unconditionally, including for empty input.
func EstimateTokenCount(content string) int {
	n := len(content) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// adjacencyList is the per-node adjacency record: everything pointing out of
// a node and everything pointing into it, stored as one serialized blob
// keyed by the node's own id.
type adjacencyList struct {
	Outgoing []Edge
	Incoming []Edge
}

func retainEdges(edges []Edge, keep func(Edge) bool) []Edge {
	out := edges[:0]
	for _, e := range edges {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Stats summarizes the graph store's size.
type Stats struct {
	NodeCount   int `json:"node_count"`
	EdgeCount   int `json:"edge_count"`
	ChunkCount  int `json:"chunk_count"`
	TotalTokens int `json:"total_tokens"`
}
