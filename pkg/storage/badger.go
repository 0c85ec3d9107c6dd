package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Column-family prefixes. BadgerDB has no native column family concept, so
// each logical family gets its own single-byte key prefix inside one
// physical database — the same column families RocksDB-backed graph stores
// give native handles to: nodes, chunks, edges (adjacency records), names,
// schemas.
const (
	prefixNode   byte = 0x01
	prefixChunk  byte = 0x02
	prefixEdge   byte = 0x03
	prefixName   byte = 0x04
	prefixSchema byte = 0x05
)

func nodeKey(id ObjectID) []byte   { return append([]byte{prefixNode}, id...) }
func chunkKey(id ChunkID) []byte   { return append([]byte{prefixChunk}, id...) }
func edgeKey(id ObjectID) []byte   { return append([]byte{prefixEdge}, id...) }
func schemaKey(name string) []byte { return append([]byte{prefixSchema}, name...) }

func nameKey(objectType, name string) []byte {
	return append([]byte{prefixName}, []byte(objectType+":"+name)...)
}

func chunkScanPrefix() []byte  { return []byte{prefixChunk} }
func nodeScanPrefix() []byte   { return []byte{prefixNode} }
func edgeScanPrefix() []byte   { return []byte{prefixEdge} }
func schemaScanPrefix() []byte { return []byte{prefixSchema} }

// Options configures a Store. None of these are read from the environment;
// callers (e.g. the CLI's cmd layer) are responsible for resolving
// environment variables into concrete values before constructing Options.
type Options struct {
	DataDir    string
	InMemory   bool
	SyncWrites bool
	Logger     badger.Logger
}

// Store is the embedded, ordered key-value engine and the graph store built
// on top of it: objects, edges-as-adjacency-records, text chunks, and schema
// blobs, each confined to its own column-family prefix. One writer process is
// assumed; readers may run concurrently with it.
type Store struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// Open creates or opens a Store at opts.DataDir (or a purely in-memory
// instance when opts.InMemory is set).
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithSyncWrites(opts.SyncWrites).WithLoggingLevel(badger.WARNING)
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	}
	// Tuned down from badger's server-oriented defaults: this is an
	// embedded, single-user desktop workload, not a multi-tenant service.
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStorageClosed
	}
	return nil
}

func (s *Store) Sync() error { return s.db.Sync() }

// RunGC runs badger's value-log garbage collection once. badger.ErrNoRewrite
// is not an error from the caller's perspective — it just means there was
// nothing to reclaim this round.
func (s *Store) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if err == badger.ErrNoRewrite {
		return nil
	}
	return err
}

// --- Objects ---

// UpsertNode writes the object record and its name-index entry
// ("{object_type}:{name}" -> id) in a single atomic batch.
func (s *Store) UpsertNode(o *Object) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if o.ID == "" {
		return ErrInvalidID
	}
	data, err := encodeObject(o)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(nodeKey(o.ID), data); err != nil {
			return err
		}
		return txn.Set(nameKey(o.ObjectType, o.Name), []byte(o.ID))
	})
}

func (s *Store) GetNode(id ObjectID) (*Object, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var obj *Object
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(id))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, derr := decodeObject(val)
			if derr != nil {
				return derr
			}
			obj = decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// GetAllObjects iterates every object record. A corrupt record is logged and
// skipped rather than aborting the whole scan.
func (s *Store) GetAllObjects() ([]*Object, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var out []*Object
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := nodeScanPrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				obj, err := decodeObject(val)
				if err != nil {
					fmt.Printf("skipping corrupt object record %s: %v\n", item.Key(), err)
					return nil
				}
				out = append(out, obj)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// FindNodesByName consults the name index for the exact composite key. The
// index retains only the last writer under a given (type, name), so this
// returns at most one object.
func (s *Store) FindNodesByName(objectType, name string) ([]*Object, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var id ObjectID
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nameKey(objectType, name))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = ObjectID(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	obj, err := s.GetNode(id)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []*Object{obj}, nil
}

func (s *Store) getAdjacency(txn *badger.Txn, id ObjectID) (adjacencyList, error) {
	item, err := txn.Get(edgeKey(id))
	if err == badger.ErrKeyNotFound {
		return adjacencyList{}, nil
	}
	if err != nil {
		return adjacencyList{}, err
	}
	var adj adjacencyList
	err = item.Value(func(val []byte) error {
		decoded, derr := decodeAdjacency(val)
		if derr != nil {
			return derr
		}
		adj = decoded
		return nil
	})
	return adj, err
}

// UpsertEdge replaces any existing (from, to, edge_type) triple and writes
// both adjacency records atomically.
func (s *Store) UpsertEdge(e Edge) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		fromAdj, err := s.getAdjacency(txn, e.From)
		if err != nil {
			return err
		}
		toAdj, err := s.getAdjacency(txn, e.To)
		if err != nil {
			return err
		}

		fromAdj.Outgoing = retainEdges(fromAdj.Outgoing, func(existing Edge) bool {
			return !(existing.To == e.To && existing.EdgeType == e.EdgeType)
		})
		toAdj.Incoming = retainEdges(toAdj.Incoming, func(existing Edge) bool {
			return !(existing.From == e.From && existing.EdgeType == e.EdgeType)
		})

		fromAdj.Outgoing = append(fromAdj.Outgoing, e)
		toAdj.Incoming = append(toAdj.Incoming, e)

		fromBytes, err := encodeAdjacency(fromAdj)
		if err != nil {
			return err
		}
		toBytes, err := encodeAdjacency(toAdj)
		if err != nil {
			return err
		}
		if err := txn.Set(edgeKey(e.From), fromBytes); err != nil {
			return err
		}
		return txn.Set(edgeKey(e.To), toBytes)
	})
}

// GetEdges concatenates outgoing then incoming from the adjacency record.
// An edge between id and another node appears once; a self-loop (both
// endpoints equal to id) sits in both lists and is intentionally returned
// twice — once per side. Callers wanting a deduplicated view must dedupe by
// (from, to, edge_type) themselves.
func (s *Store) GetEdges(id ObjectID) ([]Edge, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var adj adjacencyList
	err := s.db.View(func(txn *badger.Txn) error {
		a, err := s.getAdjacency(txn, id)
		adj = a
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Edge, 0, len(adj.Outgoing)+len(adj.Incoming))
	out = append(out, adj.Outgoing...)
	out = append(out, adj.Incoming...)
	return out, nil
}

// GetNeighbors returns the sorted, duplicate-free union of outgoing.to and
// incoming.from.
func (s *Store) GetNeighbors(id ObjectID) ([]ObjectID, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var adj adjacencyList
	err := s.db.View(func(txn *badger.Txn) error {
		a, err := s.getAdjacency(txn, id)
		adj = a
		return err
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[ObjectID]struct{})
	for _, e := range adj.Outgoing {
		seen[e.To] = struct{}{}
	}
	for _, e := range adj.Incoming {
		seen[e.From] = struct{}{}
	}
	out := make([]ObjectID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// --- Chunks ---

func (s *Store) UpsertChunk(c *TextChunk) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	data, err := encodeChunk(c)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(c.ID), data)
	})
}

// GetChunksForNode does a full scan of the chunks column family, filtering by
// owning object id. Acceptable because chunks-per-object is expected to be
// small; a deployment with many chunks per object should add a secondary
// "{object_id}:{chunk_id}" prefix index instead.
func (s *Store) GetChunksForNode(id ObjectID) ([]*TextChunk, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var out []*TextChunk
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := chunkScanPrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				chunk, err := decodeChunk(val)
				if err != nil {
					fmt.Printf("skipping corrupt chunk record %s: %v\n", item.Key(), err)
					return nil
				}
				if chunk.ObjectID == id {
					out = append(out, chunk)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// --- Delete ---

// DeleteNode atomically removes an object, its name-index entry, its own
// adjacency record, every chunk it owns, and every reference to it from
// every other adjacency record in the store. The last step is O(E): it scans
// every remaining adjacency record and rewrites any that shrank. A
// reverse index keyed by "nodes this node is referenced from" would make
// this O(degree) instead, at the cost of maintaining that index on every
// edge upsert; this implementation accepts the O(E) scan, the same tradeoff
// the original RocksDB storage layer makes.
func (s *Store) DeleteNode(id ObjectID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if item, err := txn.Get(nodeKey(id)); err == nil {
			_ = item.Value(func(val []byte) error {
				if obj, derr := decodeObject(val); derr == nil {
					_ = txn.Delete(nameKey(obj.ObjectType, obj.Name))
				}
				return nil
			})
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if err := txn.Delete(nodeKey(id)); err != nil {
			return err
		}
		if err := txn.Delete(edgeKey(id)); err != nil {
			return err
		}

		// Delete all chunks owned by this node.
		toDeleteChunks := [][]byte{}
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		chunkPrefix := chunkScanPrefix()
		for it.Seek(chunkPrefix); it.ValidForPrefix(chunkPrefix); it.Next() {
			item := it.Item()
			key := append([]byte{}, item.Key()...)
			_ = item.Value(func(val []byte) error {
				if chunk, derr := decodeChunk(val); derr == nil && chunk.ObjectID == id {
					toDeleteChunks = append(toDeleteChunks, key)
				}
				return nil
			})
		}
		it.Close()
		for _, k := range toDeleteChunks {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}

		// Scrub every remaining adjacency record of references to id.
		type rewrite struct {
			key  []byte
			data []byte
		}
		var rewrites []rewrite
		edgeIt := txn.NewIterator(badger.DefaultIteratorOptions)
		edgePrefix := edgeScanPrefix()
		for edgeIt.Seek(edgePrefix); edgeIt.ValidForPrefix(edgePrefix); edgeIt.Next() {
			item := edgeIt.Item()
			key := append([]byte{}, item.Key()...)
			_ = item.Value(func(val []byte) error {
				adj, derr := decodeAdjacency(val)
				if derr != nil {
					return nil
				}
				before := len(adj.Outgoing) + len(adj.Incoming)
				adj.Outgoing = retainEdges(adj.Outgoing, func(e Edge) bool { return e.To != id })
				adj.Incoming = retainEdges(adj.Incoming, func(e Edge) bool { return e.From != id })
				if len(adj.Outgoing)+len(adj.Incoming) != before {
					encoded, eerr := encodeAdjacency(adj)
					if eerr == nil {
						rewrites = append(rewrites, rewrite{key: key, data: encoded})
					}
				}
				return nil
			})
		}
		edgeIt.Close()
		for _, rw := range rewrites {
			if err := txn.Set(rw.key, rw.data); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Subgraph traversal ---

// Subgraph is the result of a bounded breadth-first expansion from a start
// object.
type Subgraph struct {
	Objects []*Object
	Edges   []Edge
	Chunks  []*TextChunk
}

// QuerySubgraph performs a breadth-first expansion from start out to
// maxHops. At each frontier node it fetches metadata, fetches all edges in
// both directions (appended verbatim — bidirectional duplicates are kept by
// design), appends owned chunks, and enqueues unseen endpoints.
func (s *Store) QuerySubgraph(start ObjectID, maxHops int) (*Subgraph, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	result := &Subgraph{}
	visited := map[ObjectID]struct{}{}
	frontier := []ObjectID{start}

	for hop := 0; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []ObjectID
		for _, id := range frontier {
			if _, ok := visited[id]; ok {
				continue
			}
			visited[id] = struct{}{}

			obj, err := s.GetNode(id)
			if err == ErrNotFound {
				continue
			}
			if err != nil {
				return nil, err
			}
			result.Objects = append(result.Objects, obj)

			edges, err := s.GetEdges(id)
			if err != nil {
				return nil, err
			}
			result.Edges = append(result.Edges, edges...)
			for _, e := range edges {
				if e.To != id {
					if _, seen := visited[e.To]; !seen {
						next = append(next, e.To)
					}
				}
				if e.From != id {
					if _, seen := visited[e.From]; !seen {
						next = append(next, e.From)
					}
				}
			}

			chunks, err := s.GetChunksForNode(id)
			if err != nil {
				return nil, err
			}
			result.Chunks = append(result.Chunks, chunks...)
		}
		frontier = next
	}
	return result, nil
}

// --- Stats ---

// GetStats returns iterative counts. EdgeCount counts only outgoing entries
// across all adjacency records, so each physical edge is counted once.
func (s *Store) GetStats() (Stats, error) {
	if err := s.checkOpen(); err != nil {
		return Stats{}, err
	}
	var stats Stats
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		nodePrefix := nodeScanPrefix()
		for it.Seek(nodePrefix); it.ValidForPrefix(nodePrefix); it.Next() {
			stats.NodeCount++
		}

		chunkPrefix := chunkScanPrefix()
		for it.Seek(chunkPrefix); it.ValidForPrefix(chunkPrefix); it.Next() {
			item := it.Item()
			_ = item.Value(func(val []byte) error {
				if chunk, derr := decodeChunk(val); derr == nil {
					stats.ChunkCount++
					stats.TotalTokens += chunk.TokenCount
				}
				return nil
			})
		}

		edgePrefix := edgeScanPrefix()
		for it.Seek(edgePrefix); it.ValidForPrefix(edgePrefix); it.Next() {
			item := it.Item()
			_ = item.Value(func(val []byte) error {
				if adj, derr := decodeAdjacency(val); derr == nil {
					stats.EdgeCount += len(adj.Outgoing)
				}
				return nil
			})
		}
		return nil
	})
	return stats, err
}

// --- Schema blobs (raw bytes; the schema package owns serialization) ---

func (s *Store) PutSchemaBytes(name string, data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(schemaKey(name), data)
	})
}

func (s *Store) GetSchemaBytes(name string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(schemaKey(name))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteSchemaBytes(name string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(schemaKey(name))
	})
}

func (s *Store) ListSchemaNames() ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := schemaScanPrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			names = append(names, string(key[1:]))
		}
		return nil
	})
	sort.Strings(names)
	return names, err
}
