package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/orneryd/uforge/pkg/schema"
	"github.com/orneryd/uforge/pkg/storage"
)

// IngestionStats summarizes one line-delimited JSON ingestion pass. A
// malformed line increments ParseErrors and is otherwise skipped; it never
// aborts the pass.
type IngestionStats struct {
	ObjectsCreated       int
	RelationshipsCreated int
	ParseErrors          int
}

// jsonEntry is the line-delimited record shape: either a node or an edge,
// discriminated by Type.
type jsonEntry struct {
	Type     string   `json:"type"`
	Name     string   `json:"name,omitempty"`
	NodeType string   `json:"nodeType,omitempty"`
	Metadata []string `json:"metadata,omitempty"`
	From     string   `json:"from,omitempty"`
	To       string   `json:"to,omitempty"`
	EdgeType string   `json:"edgeType,omitempty"`
}

// builderTypeFallback maps a raw node type string from the data file onto
// one of the built-in object types when neither the "imported_schemas" nor
// the "default" schema declares that exact type name. Types not present
// here pass through unchanged as a custom object type.
var builderTypeFallback = map[string]string{
	"location":           "location",
	"npc":                "character",
	"player_character":   "character",
	"faction":            "faction",
	"quest":              "event",
	"setting_reference":  "event",
	"system_reference":   "event",
	"temporal":           "event",
	"artifact":           "item",
	"currency":           "item",
	"inventory":          "item",
	"transportation":     "item",
	"skills":             "item",
}

// DataIngester loads a line-delimited JSON graph dump into the store,
// resolving each node's effective object type against the "imported_schemas"
// and "default" schemas before falling back to the builder type table.
type DataIngester struct {
	store      *storage.Store
	schemaMgr  *schema.Manager
	namesToIDs map[string]storage.ObjectID
}

// NewDataIngester constructs a DataIngester over an open store and schema
// manager.
func NewDataIngester(store *storage.Store, schemaMgr *schema.Manager) *DataIngester {
	return &DataIngester{
		store:      store,
		schemaMgr:  schemaMgr,
		namesToIDs: map[string]storage.ObjectID{},
	}
}

// IngestReader reads one JSON object per line from r, creating an object for
// every "node" entry and an edge for every "edge" entry. A line that fails to
// parse, or an edge whose endpoints were not seen as prior node entries, is
// logged, counted in ParseErrors, and skipped.
func (d *DataIngester) IngestReader(r io.Reader) (IngestionStats, error) {
	var stats IngestionStats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry jsonEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			fmt.Printf("warning: line %d: failed to parse json: %v\n", lineNum, err)
			stats.ParseErrors++
			continue
		}

		switch entry.Type {
		case "node":
			if err := d.ingestNode(entry); err != nil {
				fmt.Printf("warning: line %d: failed to ingest node: %v\n", lineNum, err)
				stats.ParseErrors++
				continue
			}
			stats.ObjectsCreated++
		case "edge":
			if err := d.ingestEdge(entry); err != nil {
				fmt.Printf("warning: line %d: failed to ingest edge: %v\n", lineNum, err)
				stats.ParseErrors++
				continue
			}
			stats.RelationshipsCreated++
		default:
			fmt.Printf("warning: line %d: unknown entry type %q\n", lineNum, entry.Type)
			stats.ParseErrors++
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	return stats, nil
}

func (d *DataIngester) ingestNode(entry jsonEntry) error {
	if entry.Name == "" {
		return fmt.Errorf("node entry missing name")
	}

	objectType := d.resolveObjectType(entry.NodeType)
	obj := storage.NewObject(objectType, entry.Name)

	for _, m := range entry.Metadata {
		key, value, isProperty := strings.Cut(m, ":")
		if isProperty {
			obj.Properties[key] = value
		} else {
			obj.AddTag(m)
		}
	}

	if err := d.store.UpsertNode(obj); err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	d.namesToIDs[entry.Name] = obj.ID
	return nil
}

func (d *DataIngester) ingestEdge(entry jsonEntry) error {
	if entry.From == "" || entry.To == "" || entry.EdgeType == "" {
		return fmt.Errorf("edge entry missing from/to/edgeType")
	}

	fromID, ok := d.namesToIDs[entry.From]
	if !ok {
		return fmt.Errorf("unknown edge source %q: must be ingested as a node first", entry.From)
	}
	toID, ok := d.namesToIDs[entry.To]
	if !ok {
		return fmt.Errorf("unknown edge target %q: must be ingested as a node first", entry.To)
	}

	edge := storage.NewEdge(fromID, toID, entry.EdgeType)
	if err := d.store.UpsertEdge(edge); err != nil {
		return fmt.Errorf("upsert edge: %w", err)
	}
	return nil
}

// resolveObjectType returns rawType unchanged if either the "imported_schemas"
// or "default" schema already declares an object type with that exact name;
// otherwise it consults the builder type fallback table, and failing that,
// passes rawType through as a custom object type.
func (d *DataIngester) resolveObjectType(rawType string) string {
	for _, schemaName := range []string{"imported_schemas", "default"} {
		def, err := d.schemaMgr.LoadSchema(schemaName)
		if err != nil {
			continue
		}
		if _, ok := def.ObjectTypes[rawType]; ok {
			return rawType
		}
	}

	if mapped, ok := builderTypeFallback[rawType]; ok {
		return mapped
	}
	return rawType
}
