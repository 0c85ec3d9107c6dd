// Package ingest loads external JSON schema directories and line-delimited
// JSON graph dumps into the knowledge graph. Both passes are best-effort:
// a malformed file or line is logged and skipped, never aborting the rest
// of the pass.
package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/orneryd/uforge/pkg/schema"
	"gopkg.in/yaml.v3"
)

// SchemaIngestionStats summarizes one schema-directory ingestion pass.
type SchemaIngestionStats struct {
	FilesLoaded int
	FilesFailed int
}

type jsonSchemaFile struct {
	Name        string
	Description string
	Properties  map[string]map[string]any
}

// LoadSchemasFromDirectory reads every .json, .yaml, or .yml file directly
// under directory, converts each into an ObjectTypeSchema, and assembles
// them plus the fixed set of canonical edge types into a single
// SchemaDefinition named schemaName at schemaVersion. A file that fails to
// parse is logged and skipped; the pass continues.
func LoadSchemasFromDirectory(directory, schemaName, schemaVersion string) (*schema.SchemaDefinition, SchemaIngestionStats, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, SchemaIngestionStats{}, fmt.Errorf("read schema directory: %w", err)
	}

	def := schema.NewSchemaDefinition(schemaName, schemaVersion, fmt.Sprintf("Schema loaded from directory: %s", directory))
	var stats SchemaIngestionStats

	for _, entry := range entries {
		if entry.IsDir() || !isSchemaFileExt(entry.Name()) {
			continue
		}
		path := filepath.Join(directory, entry.Name())
		jsonSchema, err := loadJSONSchemaFile(path)
		if err != nil {
			fmt.Printf("warning: failed to load schema file %s: %v\n", path, err)
			stats.FilesFailed++
			continue
		}
		objectSchema, err := convertJSONToObjectSchema(jsonSchema)
		if err != nil {
			fmt.Printf("warning: failed to convert schema file %s: %v\n", path, err)
			stats.FilesFailed++
			continue
		}
		objectTypeName := extractObjectTypeName(jsonSchema.Name)
		def.AddObjectType(objectTypeName, objectSchema)
		stats.FilesLoaded++
	}

	addCommonEdgeTypes(def)

	return def, stats, nil
}

func isSchemaFileExt(name string) bool {
	switch filepath.Ext(name) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func loadJSONSchemaFile(path string) (jsonSchemaFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return jsonSchemaFile{}, fmt.Errorf("read file: %w", err)
	}

	var raw map[string]any
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &raw); err != nil {
			return jsonSchemaFile{}, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(content, &raw); err != nil {
			return jsonSchemaFile{}, fmt.Errorf("parse json: %w", err)
		}
	}

	name, ok := raw["name"].(string)
	if !ok {
		return jsonSchemaFile{}, fmt.Errorf("missing 'name' field")
	}

	description := "No description"
	if d, ok := raw["description"].(string); ok {
		description = d
	}

	propsRaw, ok := raw["properties"].(map[string]any)
	if !ok {
		return jsonSchemaFile{}, fmt.Errorf("missing or invalid 'properties' field")
	}
	properties := make(map[string]map[string]any, len(propsRaw))
	for name, v := range propsRaw {
		obj, ok := v.(map[string]any)
		if !ok {
			return jsonSchemaFile{}, fmt.Errorf("property '%s' must be an object", name)
		}
		properties[name] = obj
	}

	return jsonSchemaFile{Name: name, Description: description, Properties: properties}, nil
}

func convertJSONToObjectSchema(f jsonSchemaFile) (schema.ObjectTypeSchema, error) {
	objectTypeName := extractObjectTypeName(f.Name)
	objectSchema := schema.NewObjectTypeSchema(objectTypeName, f.Description)

	for propName, propObj := range f.Properties {
		propSchema, err := convertJSONPropertyToSchema(propName, propObj)
		if err != nil {
			return schema.ObjectTypeSchema{}, err
		}

		if required, _ := propObj["required"].(bool); required {
			objectSchema = objectSchema.WithRequiredProperty(propName)
		}

		if relationship, ok := propObj["relationship"].(map[string]any); ok {
			if edgeType, ok := relationship["edgeType"].(string); ok {
				objectSchema = objectSchema.WithAllowedEdge(edgeType)
			}
		}

		objectSchema = objectSchema.WithProperty(propName, propSchema)
	}

	return objectSchema, nil
}

func convertJSONPropertyToSchema(propName string, propObj map[string]any) (schema.PropertySchema, error) {
	propType, ok := propObj["type"].(string)
	if !ok {
		return schema.PropertySchema{}, fmt.Errorf("property '%s' missing type", propName)
	}

	description := "No description"
	if d, ok := propObj["description"].(string); ok {
		description = d
	}

	var propertyType schema.PropertyType
	switch propType {
	case "string":
		propertyType = schema.StringType()
	case "number":
		propertyType = schema.NumberType()
	case "boolean":
		propertyType = schema.BooleanType()
	case "array":
		elementType := schema.StringType()
		if items, ok := propObj["items"].(map[string]any); ok {
			if itemType, ok := items["type"].(string); ok {
				switch itemType {
				case "string":
					elementType = schema.StringType()
				case "number":
					elementType = schema.NumberType()
				case "boolean":
					elementType = schema.BooleanType()
				}
			}
		}
		propertyType = schema.ArrayType(elementType)
	default:
		propertyType = schema.StringType()
	}

	propertySchema := schema.PropertySchema{PropertyType: propertyType, Description: description}

	var rule schema.ValidationRule
	hasValidation := false

	if enumValues, ok := propObj["enum"].([]any); ok && len(enumValues) > 0 {
		values := make([]string, 0, len(enumValues))
		for _, v := range enumValues {
			if s, ok := v.(string); ok {
				values = append(values, s)
			}
		}
		if len(values) > 0 {
			propertySchema.PropertyType = schema.EnumType(values...)
			rule = rule.WithAllowedValues(values...)
			hasValidation = true
		}
	}

	if required, _ := propObj["required"].(bool); required {
		rule.Required = true
		hasValidation = true
	}

	if hasValidation {
		propertySchema = propertySchema.WithValidation(rule)
	}

	if relationship, ok := propObj["relationship"].(map[string]any); ok {
		edgeType := "related_to"
		if et, ok := relationship["edgeType"].(string); ok {
			edgeType = et
		}
		relDescription := "Related entity"
		if d, ok := relationship["description"].(string); ok {
			relDescription = d
		}
		rel := schema.NewRelationshipDefinition(edgeType, relDescription)
		rel.Cardinality = schema.ManyToMany
		propertySchema = propertySchema.WithRelationship(rel)
	}

	return propertySchema, nil
}

func extractObjectTypeName(schemaName string) string {
	if strings.HasPrefix(schemaName, "add_") {
		return strings.TrimPrefix(schemaName, "add_")
	}
	return schemaName
}

type canonicalEdgeType struct {
	name        string
	description string
	sourceTypes []string
	targetTypes []string
}

// canonicalEdgeTypes is the fixed set of ~23 edge types attached to every
// schema loaded from a directory, independent of what the JSON files
// themselves declare.
var canonicalEdgeTypes = []canonicalEdgeType{
	{"owned_by", "Ownership relationship", []string{"artifact", "currency", "inventory", "transportation"}, []string{"player_character", "npc", "faction"}},
	{"led_by", "Leadership relationship", []string{"faction"}, []string{"player_character", "npc"}},
	{"allied_with", "Alliance relationship", []string{"faction"}, []string{"faction"}},
	{"rival_of", "Rivalry relationship", []string{"faction"}, []string{"faction"}},
	{"subfaction_of", "Sub-organization relationship", []string{"faction"}, []string{"faction"}},
	{"a_part_of", "Containment relationship", []string{"location"}, []string{"location"}},
	{"contains", "Contains relationship", []string{"location"}, []string{"location", "artifact"}},
	{"present_in", "Presence relationship", []string{"player_character", "npc"}, []string{"location"}},
	{"takes_place_in", "Event location relationship", []string{"quest"}, []string{"location"}},
	{"located_at", "Item location relationship", []string{"artifact"}, []string{"location"}},
	{"controlled_by", "Control relationship", []string{"location"}, []string{"faction", "player_character", "npc"}},
	{"occurred_at", "Event occurrence relationship", []string{"temporal"}, []string{"location"}},
	{"located_in", "Current location relationship", []string{"npc", "player_character"}, []string{"location"}},
	{"originates_from", "Origin relationship", []string{"npc", "player_character"}, []string{"location"}},
	{"member_of", "Membership relationship", []string{"player_character", "npc"}, []string{"faction"}},
	{"player_can", "Player ability relationship", []string{"player_character"}, []string{"skills"}},
	{"npc_can", "NPC ability relationship", []string{"npc"}, []string{"skills"}},
	{"sourced_from", "Source reference relationship", []string{"skills"}, []string{"system_reference"}},
	{"applies_to", "Application relationship", []string{"system_reference", "setting_reference"}, []string{"player_character", "npc", "location", "faction"}},
	{"modifies_source", "Modification relationship", []string{"setting_reference"}, []string{"system_reference"}},
	{"associated_with", "General association", []string{"quest"}, []string{"artifact"}},
	{"found_at", "Discovery location", []string{"artifact"}, []string{"location"}},
	{"subquest_of", "Sub-quest relationship", []string{"quest"}, []string{"quest"}},
	{"affects_faction", "Faction impact relationship", []string{"quest"}, []string{"faction"}},
}

func addCommonEdgeTypes(def *schema.SchemaDefinition) {
	for _, et := range canonicalEdgeTypes {
		edgeSchema := schema.NewEdgeTypeSchema(et.name, et.description).
			WithSourceTypes(et.sourceTypes...).
			WithTargetTypes(et.targetTypes...)
		def.AddEdgeType(et.name, edgeSchema)
	}
}
