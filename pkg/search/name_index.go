package search

import (
	"bytes"
	"encoding/gob"
	"sort"
	"strings"
	"sync"
)

// NameEntry is one row of the name index's side table: the object a name
// belongs to, and its type.
type NameEntry struct {
	ObjectID   string
	ObjectType string
}

// nameRecord pairs a name with its side-table entry for sorting.
type nameRecord struct {
	Name  string
	Entry NameEntry
}

// NameIndex is an ordered map from object name to (object id, object type),
// supporting exact and prefix lookup in lexicographic order. A real FST
// (finite-state transducer) would store this far more compactly; absent any
// FST library in the dependency surface this was built against, the same
// ordered-lookup contract is implemented with a sorted slice and binary
// search — asymptotically log-n lookup, just a larger constant in memory.
type NameIndex struct {
	mu      sync.RWMutex
	records []nameRecord // sorted by Name ascending
}

// NewNameIndex returns an empty index.
func NewNameIndex() *NameIndex {
	return &NameIndex{}
}

// Rebuild replaces the index contents from scratch: sort names ascending,
// append each (id, type) to the side vector. Names are not deduplicated —
// per (type, name) uniqueness is a graph-store concern, not this index's;
// a collision here simply yields two records, both returned on lookup.
func (idx *NameIndex) Rebuild(names []string, entries []NameEntry) {
	records := make([]nameRecord, len(names))
	for i := range names {
		records[i] = nameRecord{Name: names[i], Entry: entries[i]}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })

	idx.mu.Lock()
	idx.records = records
	idx.mu.Unlock()
}

// SearchExact returns up to limit entries whose name starts with query,
// streamed in sorted order — an exact match is simply a query that equals
// a full name, not a separate code path.
func (idx *NameIndex) SearchExact(query string, limit int) []NameEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if limit <= 0 {
		return nil
	}

	start := sort.Search(len(idx.records), func(i int) bool {
		return idx.records[i].Name >= query
	})

	var out []NameEntry
	for i := start; i < len(idx.records) && len(out) < limit; i++ {
		if !strings.HasPrefix(idx.records[i].Name, query) {
			break
		}
		out = append(out, idx.records[i].Entry)
	}
	return out
}

// Size returns the number of names currently indexed.
func (idx *NameIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

// Dump serializes the index for best-effort persistence.
func (idx *NameIndex) Dump() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(idx.records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadNameIndex reconstructs an index previously produced by Dump.
func LoadNameIndex(data []byte) (*NameIndex, error) {
	var records []nameRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&records); err != nil {
		return nil, err
	}
	return &NameIndex{records: records}, nil
}
