// Package search provides semantic (vector), exact-name, and hybrid search
// over the knowledge graph. Its vector index is a hand-rolled HNSW
// (Hierarchical Navigable Small World) graph: no third-party ANN library
// appears anywhere in the example pack this was built against, so the index
// follows the same approach the pack's other hand-rolled indexes (BM25,
// trigram) take — stdlib data structures only.
package search

import (
	"bytes"
	"container/heap"
	"context"
	"encoding/gob"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/orneryd/uforge/pkg/math/vector"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// HNSWConfig contains configuration parameters for the HNSW index.
type HNSWConfig struct {
	M               int     // Max connections per node per layer
	EfConstruction  int     // Candidate list size during construction
	EfSearch        int     // Candidate list size during search
	MaxElements     int     // Advisory capacity hint used to presize internal maps
	LevelMultiplier float64 // Level multiplier = 1/ln(M)
}

// DefaultHNSWConfig returns the defaults used throughout this index: M=16,
// efConstruction=200, efSearch=50, a 10000-vector capacity hint.
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{
		M:               16,
		EfConstruction:  200,
		EfSearch:        50,
		MaxElements:     10000,
		LevelMultiplier: 1.0 / math.Log(16.0),
	}
}

// SearchResult is one hit from a vector index search: the owning chunk,
// its parent object, a short text preview, and a similarity score in
// [-1, 1] (cosine similarity of normalized vectors).
type SearchResult struct {
	ChunkID  string
	ObjectID string
	Preview  string
	Score    float64
}

// hnswNode is a node in the HNSW graph, keyed by chunk id.
type hnswNode struct {
	id        string
	objectID  string
	preview   string
	vector    []float32
	level     int
	neighbors [][]string
	mu        sync.RWMutex
}

// hnswNodeSnapshot is the gob-serializable form of hnswNode, used for
// dump/reload persistence.
type hnswNodeSnapshot struct {
	ID        string
	ObjectID  string
	Preview   string
	Vector    []float32
	Level     int
	Neighbors [][]string
}

// indexSnapshot is the full on-disk representation of an HNSWIndex.
type indexSnapshot struct {
	Dimensions int
	Config     HNSWConfig
	EntryPoint string
	MaxLevel   int
	Nodes      []hnswNodeSnapshot
}

// HNSWIndex provides fast approximate nearest neighbor search over text
// chunk embeddings.
type HNSWIndex struct {
	config     HNSWConfig
	dimensions int
	mu         sync.RWMutex
	nodes      map[string]*hnswNode
	entryPoint string
	maxLevel   int
}

// NewHNSWIndex creates a new HNSW index with the given dimensions and config.
// A zero-value config is replaced by DefaultHNSWConfig.
func NewHNSWIndex(dimensions int, config HNSWConfig) *HNSWIndex {
	if config.M == 0 {
		config = DefaultHNSWConfig()
	}
	return &HNSWIndex{
		config:     config,
		dimensions: dimensions,
		nodes:      make(map[string]*hnswNode, config.MaxElements),
		maxLevel:   0,
	}
}

// Add inserts a chunk's embedding into the index, along with the metadata
// needed to turn a search hit into a SearchResult without a storage lookup.
func (h *HNSWIndex) Add(chunkID, objectID, preview string, vec []float32) error {
	if len(vec) != h.dimensions {
		return ErrDimensionMismatch
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	normalized := vector.Normalize(vec)
	level := h.randomLevel()

	node := &hnswNode{
		id:        chunkID,
		objectID:  objectID,
		preview:   preview,
		vector:    normalized,
		level:     level,
		neighbors: make([][]string, level+1),
	}
	for i := range node.neighbors {
		node.neighbors[i] = make([]string, 0, h.config.M)
	}

	h.nodes[chunkID] = node

	if h.entryPoint == "" {
		h.entryPoint = chunkID
		h.maxLevel = level
		return nil
	}

	ep := h.entryPoint
	epLevel := h.nodes[ep].level

	for l := epLevel; l > level; l-- {
		ep = h.searchLayerSingle(normalized, ep, l)
	}

	for l := min(level, epLevel); l >= 0; l-- {
		candidates := h.searchLayer(normalized, ep, h.config.EfConstruction, l)
		neighbors := h.selectNeighbors(normalized, candidates, h.config.M)
		node.neighbors[l] = neighbors

		for _, neighborID := range neighbors {
			neighbor := h.nodes[neighborID]
			neighbor.mu.Lock()
			if len(neighbor.neighbors) > l {
				if len(neighbor.neighbors[l]) < h.config.M {
					neighbor.neighbors[l] = append(neighbor.neighbors[l], chunkID)
				} else {
					allNeighbors := append(neighbor.neighbors[l], chunkID)
					neighbor.neighbors[l] = h.selectNeighbors(neighbor.vector, allNeighbors, h.config.M)
				}
			}
			neighbor.mu.Unlock()
		}

		if len(candidates) > 0 {
			ep = candidates[0]
		}
	}

	if level > h.maxLevel {
		h.entryPoint = chunkID
		h.maxLevel = level
	}

	return nil
}

// Remove deletes a chunk's embedding from the index by chunk id.
func (h *HNSWIndex) Remove(chunkID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	node, exists := h.nodes[chunkID]
	if !exists {
		return
	}

	for l := 0; l <= node.level; l++ {
		for _, neighborID := range node.neighbors[l] {
			if neighbor, ok := h.nodes[neighborID]; ok {
				neighbor.mu.Lock()
				if len(neighbor.neighbors) > l {
					newNeighbors := make([]string, 0, len(neighbor.neighbors[l]))
					for _, nid := range neighbor.neighbors[l] {
						if nid != chunkID {
							newNeighbors = append(newNeighbors, nid)
						}
					}
					neighbor.neighbors[l] = newNeighbors
				}
				neighbor.mu.Unlock()
			}
		}
	}

	delete(h.nodes, chunkID)

	if h.entryPoint == chunkID {
		h.entryPoint = ""
		h.maxLevel = -1
		for nid, n := range h.nodes {
			if n.level > h.maxLevel {
				h.maxLevel = n.level
				h.entryPoint = nid
			}
		}
		if h.maxLevel == -1 {
			h.maxLevel = 0
		}
	}
}

// Search finds the k nearest chunks to the query vector. Results are sorted
// by descending similarity. No minimum similarity filter is applied here —
// the search engine layer above decides whether to trim low-scoring hits,
// per its own unbounded-by-default semantic search contract.
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if len(query) != h.dimensions {
		return nil, ErrDimensionMismatch
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.nodes) == 0 {
		return []SearchResult{}, nil
	}

	normalized := vector.Normalize(query)
	ep := h.entryPoint

	for l := h.maxLevel; l > 0; l-- {
		ep = h.searchLayerSingle(normalized, ep, l)
	}

	ef := h.config.EfSearch
	if ef < k {
		ef = k
	}
	candidates := h.searchLayer(normalized, ep, ef, 0)

	results := make([]SearchResult, 0, len(candidates))
	for _, candidateID := range candidates {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		node := h.nodes[candidateID]
		similarity := vector.DotProduct(normalized, node.vector)
		results = append(results, SearchResult{
			ChunkID:  node.id,
			ObjectID: node.objectID,
			Preview:  node.preview,
			Score:    similarity,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}

	return results, nil
}

// Size returns the number of vectors in the index.
func (h *HNSWIndex) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

// Dump serializes the entire index to a gob-encoded snapshot, for
// best-effort persistence across restarts.
func (h *HNSWIndex) Dump() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snap := indexSnapshot{
		Dimensions: h.dimensions,
		Config:     h.config,
		EntryPoint: h.entryPoint,
		MaxLevel:   h.maxLevel,
		Nodes:      make([]hnswNodeSnapshot, 0, len(h.nodes)),
	}
	for _, n := range h.nodes {
		n.mu.RLock()
		snap.Nodes = append(snap.Nodes, hnswNodeSnapshot{
			ID: n.id, ObjectID: n.objectID, Preview: n.preview,
			Vector: n.vector, Level: n.level, Neighbors: n.neighbors,
		})
		n.mu.RUnlock()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadHNSWIndex reconstructs an index previously produced by Dump. A
// corrupt or unreadable snapshot returns an error; callers are expected to
// fall back to an empty index and rebuild from storage in that case, rather
// than fail startup outright.
func LoadHNSWIndex(data []byte) (*HNSWIndex, error) {
	var snap indexSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, err
	}
	h := &HNSWIndex{
		config:     snap.Config,
		dimensions: snap.Dimensions,
		nodes:      make(map[string]*hnswNode, len(snap.Nodes)),
		entryPoint: snap.EntryPoint,
		maxLevel:   snap.MaxLevel,
	}
	for _, n := range snap.Nodes {
		h.nodes[n.ID] = &hnswNode{
			id: n.ID, objectID: n.ObjectID, preview: n.Preview,
			vector: n.Vector, level: n.Level, neighbors: n.Neighbors,
		}
	}
	return h, nil
}

func (h *HNSWIndex) searchLayerSingle(query []float32, entryID string, level int) string {
	current := entryID
	currentDist := 1.0 - vector.DotProduct(query, h.nodes[current].vector)

	for {
		changed := false
		node := h.nodes[current]
		node.mu.RLock()
		neighbors := node.neighbors[level]
		node.mu.RUnlock()

		for _, neighborID := range neighbors {
			neighbor := h.nodes[neighborID]
			dist := 1.0 - vector.DotProduct(query, neighbor.vector)
			if dist < currentDist {
				current = neighborID
				currentDist = dist
				changed = true
			}
		}

		if !changed {
			break
		}
	}

	return current
}

func (h *HNSWIndex) searchLayer(query []float32, entryID string, ef int, level int) []string {
	visited := make(map[string]bool)
	visited[entryID] = true

	candidates := &hnswDistHeap{}
	heap.Init(candidates)

	results := &hnswDistHeap{}
	heap.Init(results)

	entryDist := 1.0 - vector.DotProduct(query, h.nodes[entryID].vector)
	heap.Push(candidates, hnswDistItem{id: entryID, dist: entryDist, isMax: false})
	heap.Push(results, hnswDistItem{id: entryID, dist: entryDist, isMax: true})

	for candidates.Len() > 0 {
		closest := heap.Pop(candidates).(hnswDistItem)

		if results.Len() >= ef {
			furthest := (*results)[0]
			if closest.dist > furthest.dist {
				break
			}
		}

		node := h.nodes[closest.id]
		node.mu.RLock()
		neighbors := node.neighbors[level]
		node.mu.RUnlock()

		for _, neighborID := range neighbors {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true

			neighbor := h.nodes[neighborID]
			dist := 1.0 - vector.DotProduct(query, neighbor.vector)

			if results.Len() < ef || dist < (*results)[0].dist {
				heap.Push(candidates, hnswDistItem{id: neighborID, dist: dist, isMax: false})
				heap.Push(results, hnswDistItem{id: neighborID, dist: dist, isMax: true})

				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	resultList := make([]string, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		item := heap.Pop(results).(hnswDistItem)
		resultList[i] = item.id
	}

	return resultList
}

func (h *HNSWIndex) selectNeighbors(query []float32, candidates []string, m int) []string {
	if len(candidates) <= m {
		return candidates
	}

	type distNode struct {
		id   string
		dist float64
	}
	dists := make([]distNode, len(candidates))
	for i, cid := range candidates {
		dists[i] = distNode{
			id:   cid,
			dist: 1.0 - vector.DotProduct(query, h.nodes[cid].vector),
		}
	}

	sort.Slice(dists, func(i, j int) bool {
		return dists[i].dist < dists[j].dist
	})

	result := make([]string, m)
	for i := 0; i < m; i++ {
		result[i] = dists[i].id
	}
	return result
}

func (h *HNSWIndex) randomLevel() int {
	r := rand.Float64()
	return int(-math.Log(r) * h.config.LevelMultiplier)
}

// Heap types for HNSW search.
type hnswDistItem struct {
	id    string
	dist  float64
	isMax bool
}

type hnswDistHeap []hnswDistItem

func (dh hnswDistHeap) Len() int { return len(dh) }
func (dh hnswDistHeap) Less(i, j int) bool {
	if dh[i].isMax {
		return dh[i].dist > dh[j].dist
	}
	return dh[i].dist < dh[j].dist
}
func (dh hnswDistHeap) Swap(i, j int) { dh[i], dh[j] = dh[j], dh[i] }

func (dh *hnswDistHeap) Push(x interface{}) {
	*dh = append(*dh, x.(hnswDistItem))
}

func (dh *hnswDistHeap) Pop() interface{} {
	old := *dh
	n := len(old)
	x := old[n-1]
	*dh = old[0 : n-1]
	return x
}
