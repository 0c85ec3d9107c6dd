package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSchemaFile(t *testing.T, dir, filename, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644))
}

func TestLoadSchemasFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "npc.json", `{
		"name": "add_npc",
		"description": "A non-player character",
		"properties": {
			"name": {"type": "string", "required": true},
			"level": {"type": "number"},
			"allies": {"type": "array", "items": {"type": "string"}},
			"status": {"type": "string", "enum": ["alive", "dead", "missing"]},
			"faction": {"type": "string", "relationship": {"edgeType": "member_of", "description": "Belongs to a faction"}}
		}
	}`)

	def, stats, err := LoadSchemasFromDirectory(dir, "imported_schemas", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesLoaded)
	assert.Equal(t, 0, stats.FilesFailed)

	npc, ok := def.ObjectTypes["npc"]
	require.True(t, ok)
	assert.Contains(t, npc.RequiredProperties, "name")
	assert.Contains(t, npc.AllowedEdges, "member_of")

	statusProp := npc.Properties["status"]
	assert.Equal(t, "enum", string(statusProp.PropertyType.Kind))
	assert.ElementsMatch(t, []string{"alive", "dead", "missing"}, statusProp.PropertyType.EnumValues)

	levelProp := npc.Properties["level"]
	assert.Equal(t, "number", string(levelProp.PropertyType.Kind))

	alliesProp := npc.Properties["allies"]
	assert.Equal(t, "array", string(alliesProp.PropertyType.Kind))
	require.NotNil(t, alliesProp.PropertyType.Element)
	assert.Equal(t, "string", string(alliesProp.PropertyType.Element.Kind))
}

func TestLoadSchemasFromDirectoryAcceptsYAML(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "spell.yaml", "name: add_spell\n"+
		"description: A spell\n"+
		"properties:\n"+
		"  name:\n"+
		"    type: string\n"+
		"    required: true\n"+
		"  school:\n"+
		"    type: string\n"+
		"    enum: [evocation, abjuration]\n")

	def, stats, err := LoadSchemasFromDirectory(dir, "imported_schemas", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesLoaded)
	assert.Equal(t, 0, stats.FilesFailed)

	spell, ok := def.ObjectTypes["spell"]
	require.True(t, ok)
	assert.Contains(t, spell.RequiredProperties, "name")
	schoolProp := spell.Properties["school"]
	assert.ElementsMatch(t, []string{"evocation", "abjuration"}, schoolProp.PropertyType.EnumValues)
}

func TestLoadSchemasFromDirectorySkipsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "broken.json", `not json at all`)
	writeSchemaFile(t, dir, "good.json", `{"name": "add_item", "properties": {"name": {"type": "string"}}}`)

	def, stats, err := LoadSchemasFromDirectory(dir, "imported_schemas", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesLoaded)
	assert.Equal(t, 1, stats.FilesFailed)
	_, ok := def.ObjectTypes["item"]
	assert.True(t, ok)
}

func TestLoadSchemasFromDirectoryAttachesCanonicalEdgeTypes(t *testing.T) {
	dir := t.TempDir()
	def, _, err := LoadSchemasFromDirectory(dir, "imported_schemas", "1.0.0")
	require.NoError(t, err)

	for _, name := range []string{"owned_by", "member_of", "subquest_of", "affects_faction"} {
		_, ok := def.EdgeTypes[name]
		assert.True(t, ok, "expected canonical edge type %s", name)
	}
	assert.Len(t, def.EdgeTypes, len(canonicalEdgeTypes))
}

func TestExtractObjectTypeNameStripsAddPrefix(t *testing.T) {
	assert.Equal(t, "npc", extractObjectTypeName("add_npc"))
	assert.Equal(t, "location", extractObjectTypeName("location"))
}
