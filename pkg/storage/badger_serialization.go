package storage

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
)

// Objects are serialized as JSON — they are the hottest point-lookup path and
// benefit from being human-inspectable on disk. Adjacency lists and chunks
// use gob, a more compact binary encoding, since those are either
// bulk-scanned or write-heavy and never need to be read outside Go. Schema
// blobs are stored as raw bytes; the schema package encodes them (as JSON).

func encodeObject(o *Object) ([]byte, error) {
	return json.Marshal(o)
}

func decodeObject(data []byte) (*Object, error) {
	var o Object
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return &o, nil
}

func encodeAdjacency(a adjacencyList) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return nil, fmt.Errorf("encode adjacency: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeAdjacency(data []byte) (adjacencyList, error) {
	var a adjacencyList
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return adjacencyList{}, fmt.Errorf("decode adjacency: %w", err)
	}
	return a, nil
}

func encodeChunk(c *TextChunk) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("encode chunk: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeChunk(data []byte) (*TextChunk, error) {
	var c TextChunk
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode chunk: %w", err)
	}
	return &c, nil
}
