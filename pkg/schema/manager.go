package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/orneryd/uforge/pkg/storage"
	"gopkg.in/yaml.v3"
)

// Manager loads, caches, and validates against schemas, backed by a
// storage.Store for persistence. The cache avoids a storage round trip on
// every validation; RegisterObjectType/RegisterEdgeType evict a schema's
// cache entry after persisting so the next load picks up the change.
type Manager struct {
	store *storage.Store

	mu    sync.RWMutex
	cache map[string]*SchemaDefinition
}

// NewManager constructs a Manager over store.
func NewManager(store *storage.Store) *Manager {
	return &Manager{store: store, cache: map[string]*SchemaDefinition{}}
}

// LoadSchema returns the named schema, consulting the cache first, then
// storage, and finally falling back to a freshly created schema — the
// built-in default for name "default", an empty auto-generated schema
// otherwise. A freshly created schema is persisted before it is returned.
func (m *Manager) LoadSchema(name string) (*SchemaDefinition, error) {
	m.mu.RLock()
	if s, ok := m.cache[name]; ok {
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	data, err := m.store.GetSchemaBytes(name)
	if err == nil {
		s, derr := decodeSchema(data)
		if derr != nil {
			return nil, derr
		}
		m.mu.Lock()
		m.cache[name] = s
		m.mu.Unlock()
		return s, nil
	}
	if err != storage.ErrNotFound {
		return nil, err
	}

	var fresh *SchemaDefinition
	if name == "default" {
		fresh = CreateDefault()
	} else {
		fresh = NewSchemaDefinition(name, "1.0.0", fmt.Sprintf("Auto-generated schema for %s", name))
	}
	if err := m.SaveSchema(fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// SaveSchema persists schema and refreshes its cache entry.
func (m *Manager) SaveSchema(s *SchemaDefinition) error {
	data, err := encodeSchema(s)
	if err != nil {
		return err
	}
	if err := m.store.PutSchemaBytes(s.Name, data); err != nil {
		return err
	}
	m.mu.Lock()
	m.cache[s.Name] = s
	m.mu.Unlock()
	return nil
}

// ClearCache drops every cached schema, forcing the next LoadSchema to
// re-read from storage.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = map[string]*SchemaDefinition{}
}

// ValidateObject validates object against the "default" schema.
func (m *Manager) ValidateObject(object *storage.Object) (ValidationResult, error) {
	s, err := m.LoadSchema("default")
	if err != nil {
		return ValidationResult{}, err
	}
	return ValidateObjectWithSchema(object, s), nil
}

// ValidateObjectWithSchema validates object against an explicit schema.
func ValidateObjectWithSchema(object *storage.Object, s *SchemaDefinition) ValidationResult {
	result := Valid()

	objectSchema, ok := s.ObjectTypes[object.ObjectType]
	if !ok {
		result.AddError(ValidationError{
			Property:  "object_type",
			Message:   fmt.Sprintf("Unknown object type: %s", object.ObjectType),
			ErrorType: ErrInvalidValue,
		})
		return result
	}

	for _, required := range objectSchema.RequiredProperties {
		if required == "name" {
			continue
		}
		if _, present := object.Properties[required]; !present {
			result.AddError(ValidationError{
				Property:  required,
				Message:   fmt.Sprintf("Missing required property: %s", required),
				ErrorType: ErrMissingRequired,
			})
		}
	}

	for key, value := range object.Properties {
		propSchema, ok := objectSchema.Properties[key]
		if !ok {
			result.AddWarning(ValidationWarning{
				Property: key,
				Message:  fmt.Sprintf("Property '%s' is not defined in schema", key),
			})
			continue
		}
		if verr := validatePropertyValue(key, value, propSchema); verr != nil {
			result.AddError(*verr)
		}
	}

	return result
}

// ValidateEdge validates edge, sourceObject, and targetObject against the
// "default" schema.
func (m *Manager) ValidateEdge(edge storage.Edge, sourceObject, targetObject *storage.Object) (ValidationResult, error) {
	s, err := m.LoadSchema("default")
	if err != nil {
		return ValidationResult{}, err
	}
	return ValidateEdgeWithSchema(edge, sourceObject, targetObject, s), nil
}

// ValidateEdgeWithSchema validates edge against an explicit schema.
func ValidateEdgeWithSchema(edge storage.Edge, sourceObject, targetObject *storage.Object, s *SchemaDefinition) ValidationResult {
	result := Valid()

	edgeSchema, ok := s.EdgeTypes[edge.EdgeType]
	if !ok {
		result.AddWarning(ValidationWarning{
			Property: "edge_type",
			Message:  fmt.Sprintf("Edge type '%s' is not defined in schema", edge.EdgeType),
		})
		return result
	}

	if len(edgeSchema.AllowedSourceTypes) > 0 && !contains(edgeSchema.AllowedSourceTypes, sourceObject.ObjectType) {
		result.AddError(ValidationError{
			Property:  "source_type",
			Message:   fmt.Sprintf("Edge type '%s' does not allow source type '%s'. Allowed: %v", edge.EdgeType, sourceObject.ObjectType, edgeSchema.AllowedSourceTypes),
			ErrorType: ErrInvalidValue,
		})
	}
	if len(edgeSchema.AllowedTargetTypes) > 0 && !contains(edgeSchema.AllowedTargetTypes, targetObject.ObjectType) {
		result.AddError(ValidationError{
			Property:  "target_type",
			Message:   fmt.Sprintf("Edge type '%s' does not allow target type '%s'. Allowed: %v", edge.EdgeType, targetObject.ObjectType, edgeSchema.AllowedTargetTypes),
			ErrorType: ErrInvalidValue,
		})
	}

	for key, value := range edge.Metadata {
		if propSchema, ok := edgeSchema.Properties[key]; ok {
			if verr := validatePropertyValue(key, value, propSchema); verr != nil {
				result.AddError(*verr)
			}
		}
	}

	return result
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// RegisterObjectType adds typeSchema to schemaName and evicts the cache
// entry so the next LoadSchema re-reads the persisted version.
func (m *Manager) RegisterObjectType(schemaName, typeName string, typeSchema ObjectTypeSchema) error {
	s, err := m.LoadSchema(schemaName)
	if err != nil {
		return err
	}
	s.AddObjectType(typeName, typeSchema)
	if err := m.SaveSchema(s); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.cache, schemaName)
	m.mu.Unlock()
	return nil
}

// RegisterEdgeType adds edgeSchema to schemaName and evicts the cache entry.
func (m *Manager) RegisterEdgeType(schemaName, edgeName string, edgeSchema EdgeTypeSchema) error {
	s, err := m.LoadSchema(schemaName)
	if err != nil {
		return err
	}
	s.AddEdgeType(edgeName, edgeSchema)
	if err := m.SaveSchema(s); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.cache, schemaName)
	m.mu.Unlock()
	return nil
}

// ListSchemas returns every schema name known to storage.
func (m *Manager) ListSchemas() ([]string, error) {
	return m.store.ListSchemaNames()
}

// DeleteSchema removes a schema from storage and evicts its cache entry.
func (m *Manager) DeleteSchema(name string) error {
	if err := m.store.DeleteSchemaBytes(name); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.cache, name)
	m.mu.Unlock()
	return nil
}

// Stats summarizes a single schema.
type Stats struct {
	Name             string `json:"name"`
	Version          string `json:"version"`
	ObjectTypeCount  int    `json:"object_type_count"`
	EdgeTypeCount    int    `json:"edge_type_count"`
	TotalProperties  int    `json:"total_properties"`
}

// GetSchemaStats summarizes schemaName.
func (m *Manager) GetSchemaStats(schemaName string) (Stats, error) {
	s, err := m.LoadSchema(schemaName)
	if err != nil {
		return Stats{}, err
	}
	total := 0
	for _, ot := range s.ObjectTypes {
		total += len(ot.Properties)
	}
	return Stats{
		Name:            s.Name,
		Version:         s.Version,
		ObjectTypeCount: len(s.ObjectTypes),
		EdgeTypeCount:   len(s.EdgeTypes),
		TotalProperties: total,
	}, nil
}

func validatePropertyValue(propertyName string, value any, schema PropertySchema) *ValidationError {
	typeOk := false
	switch schema.PropertyType.Kind {
	case KindString, KindText:
		_, typeOk = value.(string)
	case KindNumber:
		switch value.(type) {
		case float64, float32, int, int64:
			typeOk = true
		}
	case KindBoolean:
		_, typeOk = value.(bool)
	case KindArray:
		_, typeOk = value.([]any)
	case KindObject:
		_, typeOk = value.(map[string]any)
	case KindReference:
		_, typeOk = value.(string)
	case KindEnum:
		if s, ok := value.(string); ok {
			typeOk = contains(schema.PropertyType.EnumValues, s)
		}
	}

	if !typeOk {
		return &ValidationError{
			Property:  propertyName,
			Message:   fmt.Sprintf("Property '%s' has incorrect type. Expected: %s, Got: %s", propertyName, schema.PropertyType.Name(), goTypeName(value)),
			ErrorType: ErrTypeMismatch,
		}
	}

	if schema.Validation != nil {
		if verr := applyValidationRules(propertyName, value, *schema.Validation); verr != nil {
			return verr
		}
	}

	if schema.PropertyType.Kind == KindArray && schema.PropertyType.Element != nil {
		if arr, ok := value.([]any); ok {
			elementSchema := newProperty(*schema.PropertyType.Element, "Array element")
			for i, element := range arr {
				if verr := validatePropertyValue(fmt.Sprintf("%s[%d]", propertyName, i), element, elementSchema); verr != nil {
					return verr
				}
			}
		}
	}

	if schema.PropertyType.Kind == KindObject {
		if obj, ok := value.(map[string]any); ok {
			for key, nested := range schema.PropertyType.Object {
				if nestedValue, present := obj[key]; present {
					if verr := validatePropertyValue(propertyName+"."+key, nestedValue, nested); verr != nil {
						return verr
					}
				}
			}
		}
	}

	return nil
}

func applyValidationRules(propertyName string, value any, rule ValidationRule) *ValidationError {
	if s, ok := value.(string); ok {
		if rule.MinLength != nil && len(s) < *rule.MinLength {
			return &ValidationError{propertyName, fmt.Sprintf("Property '%s' is too short. Minimum length: %d", propertyName, *rule.MinLength), ErrValidationFailed}
		}
		if rule.MaxLength != nil && len(s) > *rule.MaxLength {
			return &ValidationError{propertyName, fmt.Sprintf("Property '%s' is too long. Maximum length: %d", propertyName, *rule.MaxLength), ErrValidationFailed}
		}
		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return &ValidationError{propertyName, fmt.Sprintf("Invalid regex pattern in schema: %s", rule.Pattern), ErrValidationFailed}
			}
			if !re.MatchString(s) {
				return &ValidationError{propertyName, fmt.Sprintf("Property '%s' does not match required pattern: %s", propertyName, rule.Pattern), ErrValidationFailed}
			}
		}
		if rule.AllowedValues != nil && !contains(rule.AllowedValues, s) {
			return &ValidationError{propertyName, fmt.Sprintf("Property '%s' has invalid value. Allowed values: %v", propertyName, rule.AllowedValues), ErrValidationFailed}
		}
	}

	if n, ok := asFloat64(value); ok {
		if rule.MinValue != nil && n < *rule.MinValue {
			return &ValidationError{propertyName, fmt.Sprintf("Property '%s' is too small. Minimum value: %v", propertyName, *rule.MinValue), ErrValidationFailed}
		}
		if rule.MaxValue != nil && n > *rule.MaxValue {
			return &ValidationError{propertyName, fmt.Sprintf("Property '%s' is too large. Maximum value: %v", propertyName, *rule.MaxValue), ErrValidationFailed}
		}
	}

	return nil
}

func asFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func goTypeName(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case float64, float32, int, int64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", value)
	}
}

// encodeSchema/decodeSchema use JSON, matching the storage package's choice
// for point-lookup-hot, human-inspectable records; a schema file on disk
// (loaded via pkg/ingest) may instead be YAML, re-marshaled into the same
// JSON representation for storage.
func encodeSchema(s *SchemaDefinition) ([]byte, error) {
	return json.Marshal(s)
}

func decodeSchema(data []byte) (*SchemaDefinition, error) {
	var s SchemaDefinition
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return &s, nil
}

// DecodeSchemaFile parses a schema definition from either JSON or YAML bytes.
// JSON is tried first; a parse failure there falls back to YAML, which is a
// superset of JSON syntax closely enough for schema files in practice.
func DecodeSchemaFile(data []byte) (*SchemaDefinition, error) {
	var s SchemaDefinition
	if err := json.Unmarshal(data, &s); err == nil {
		return &s, nil
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schema file: %w", err)
	}
	return &s, nil
}
