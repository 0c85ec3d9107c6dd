// Package schema defines the typed shape of a worldbuilding graph — which
// object types and edge types exist, what properties they carry, and what
// validation rules apply — and validates objects and edges against it.
package schema

import (
	"time"
)

// PropertyKind classifies the kind of value a property holds. Go has no
// payload-carrying enum, so PropertyType's variant-specific fields (Element,
// Reference, Object, EnumValues) are populated only for the matching Kind;
// everything else ignores them.
type PropertyKind string

const (
	KindString    PropertyKind = "string"
	KindText      PropertyKind = "text"
	KindNumber    PropertyKind = "number"
	KindBoolean   PropertyKind = "boolean"
	KindArray     PropertyKind = "array"
	KindObject    PropertyKind = "object"
	KindReference PropertyKind = "reference"
	KindEnum      PropertyKind = "enum"
)

type PropertyType struct {
	Kind       PropertyKind             `json:"kind" yaml:"kind"`
	Element    *PropertyType            `json:"element,omitempty" yaml:"element,omitempty"`
	Reference  string                   `json:"reference,omitempty" yaml:"reference,omitempty"`
	Object     map[string]PropertySchema `json:"object,omitempty" yaml:"object,omitempty"`
	EnumValues []string                 `json:"enum_values,omitempty" yaml:"enum_values,omitempty"`
}

func (pt PropertyType) Name() string { return string(pt.Kind) }

func StringType() PropertyType  { return PropertyType{Kind: KindString} }
func TextType() PropertyType    { return PropertyType{Kind: KindText} }
func NumberType() PropertyType  { return PropertyType{Kind: KindNumber} }
func BooleanType() PropertyType { return PropertyType{Kind: KindBoolean} }

func ArrayType(element PropertyType) PropertyType {
	return PropertyType{Kind: KindArray, Element: &element}
}

func ReferenceType(targetType string) PropertyType {
	return PropertyType{Kind: KindReference, Reference: targetType}
}

func EnumType(values ...string) PropertyType {
	return PropertyType{Kind: KindEnum, EnumValues: values}
}

// ValidationRule constrains the values a property may take beyond its type.
type ValidationRule struct {
	MinLength     *int     `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength     *int     `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	MinValue      *float64 `json:"min_value,omitempty" yaml:"min_value,omitempty"`
	MaxValue      *float64 `json:"max_value,omitempty" yaml:"max_value,omitempty"`
	Pattern       string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty" yaml:"allowed_values,omitempty"`
	Required      bool     `json:"required" yaml:"required"`
}

func intPtr(v int) *int          { return &v }
func floatPtr(v float64) *float64 { return &v }

func RequiredRule() ValidationRule { return ValidationRule{Required: true} }

func (v ValidationRule) WithLengthRange(min, max int) ValidationRule {
	v.MinLength = intPtr(min)
	v.MaxLength = intPtr(max)
	return v
}

func (v ValidationRule) WithValueRange(min, max float64) ValidationRule {
	v.MinValue = floatPtr(min)
	v.MaxValue = floatPtr(max)
	return v
}

func (v ValidationRule) WithAllowedValues(values ...string) ValidationRule {
	v.AllowedValues = values
	return v
}

func (v ValidationRule) WithPattern(pattern string) ValidationRule {
	v.Pattern = pattern
	return v
}

// Cardinality constrains how many edges of a relationship may exist per
// endpoint.
type Cardinality string

const (
	OneToOne   Cardinality = "one_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToOne  Cardinality = "many_to_one"
	ManyToMany Cardinality = "many_to_many"
)

// RelationshipDefinition documents a property that, beyond holding a value,
// also implies an edge in the graph.
type RelationshipDefinition struct {
	EdgeType    string      `json:"edge_type" yaml:"edge_type"`
	TargetType  string      `json:"target_type,omitempty" yaml:"target_type,omitempty"`
	Description string      `json:"description" yaml:"description"`
	Cardinality Cardinality `json:"cardinality" yaml:"cardinality"`
}

func NewRelationshipDefinition(edgeType, description string) RelationshipDefinition {
	return RelationshipDefinition{EdgeType: edgeType, Description: description, Cardinality: ManyToMany}
}

// PropertySchema fully describes one property of an object or edge type.
type PropertySchema struct {
	PropertyType PropertyType             `json:"property_type" yaml:"property_type"`
	Description  string                   `json:"description" yaml:"description"`
	Validation   *ValidationRule          `json:"validation,omitempty" yaml:"validation,omitempty"`
	Relationship *RelationshipDefinition  `json:"relationship,omitempty" yaml:"relationship,omitempty"`
	Default      any                      `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	Metadata     map[string]string        `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func newProperty(pt PropertyType, description string) PropertySchema {
	return PropertySchema{PropertyType: pt, Description: description}
}

func StringProperty(description string) PropertySchema  { return newProperty(StringType(), description) }
func TextProperty(description string) PropertySchema    { return newProperty(TextType(), description) }
func NumberProperty(description string) PropertySchema  { return newProperty(NumberType(), description) }
func BooleanProperty(description string) PropertySchema { return newProperty(BooleanType(), description) }

func ArrayProperty(element PropertyType) PropertySchema {
	return newProperty(ArrayType(element), "Array of items")
}

func ReferenceProperty(targetType string) PropertySchema {
	return newProperty(ReferenceType(targetType), "Reference to "+targetType)
}

func (p PropertySchema) WithValidation(v ValidationRule) PropertySchema {
	p.Validation = &v
	return p
}

func (p PropertySchema) WithRelationship(r RelationshipDefinition) PropertySchema {
	p.Relationship = &r
	return p
}

func (p PropertySchema) WithDefault(value any) PropertySchema {
	p.Default = value
	return p
}

// ObjectTypeSchema is the schema for one kind of node (e.g. "character").
type ObjectTypeSchema struct {
	Name               string                    `json:"name" yaml:"name"`
	Description        string                    `json:"description" yaml:"description"`
	Properties         map[string]PropertySchema `json:"properties" yaml:"properties"`
	RequiredProperties []string                  `json:"required_properties" yaml:"required_properties"`
	AllowedEdges       []string                  `json:"allowed_edges" yaml:"allowed_edges"`
	Inheritance        string                    `json:"inheritance,omitempty" yaml:"inheritance,omitempty"`
	Metadata           map[string]string         `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func NewObjectTypeSchema(name, description string) ObjectTypeSchema {
	return ObjectTypeSchema{
		Name:        name,
		Description: description,
		Properties:  map[string]PropertySchema{},
	}
}

func (o ObjectTypeSchema) WithProperty(name string, p PropertySchema) ObjectTypeSchema {
	o.Properties[name] = p
	return o
}

func (o ObjectTypeSchema) WithRequiredProperty(name string) ObjectTypeSchema {
	for _, existing := range o.RequiredProperties {
		if existing == name {
			return o
		}
	}
	o.RequiredProperties = append(o.RequiredProperties, name)
	return o
}

func (o ObjectTypeSchema) WithAllowedEdge(edgeType string) ObjectTypeSchema {
	for _, existing := range o.AllowedEdges {
		if existing == edgeType {
			return o
		}
	}
	o.AllowedEdges = append(o.AllowedEdges, edgeType)
	return o
}

// EdgeTypeSchema is the schema for one kind of edge (e.g. "knows").
type EdgeTypeSchema struct {
	Name                string                    `json:"name" yaml:"name"`
	Description         string                    `json:"description" yaml:"description"`
	AllowedSourceTypes  []string                  `json:"allowed_source_types" yaml:"allowed_source_types"`
	AllowedTargetTypes  []string                  `json:"allowed_target_types" yaml:"allowed_target_types"`
	Properties          map[string]PropertySchema `json:"properties" yaml:"properties"`
	Bidirectional       bool                      `json:"bidirectional" yaml:"bidirectional"`
	Metadata            map[string]string         `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func NewEdgeTypeSchema(name, description string) EdgeTypeSchema {
	return EdgeTypeSchema{Name: name, Description: description, Properties: map[string]PropertySchema{}}
}

func (e EdgeTypeSchema) WithSourceTypes(types ...string) EdgeTypeSchema {
	e.AllowedSourceTypes = types
	return e
}

func (e EdgeTypeSchema) WithTargetTypes(types ...string) EdgeTypeSchema {
	e.AllowedTargetTypes = types
	return e
}

func (e EdgeTypeSchema) AsBidirectional() EdgeTypeSchema {
	e.Bidirectional = true
	return e
}

func (e EdgeTypeSchema) WithProperty(name string, p PropertySchema) EdgeTypeSchema {
	e.Properties[name] = p
	return e
}

// SchemaDefinition is a complete, named schema for a worldbuilding system.
type SchemaDefinition struct {
	Name        string                      `json:"name" yaml:"name"`
	Version     string                      `json:"version" yaml:"version"`
	Description string                      `json:"description" yaml:"description"`
	CreatedAt   time.Time                   `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at" yaml:"updated_at"`
	ObjectTypes map[string]ObjectTypeSchema `json:"object_types" yaml:"object_types"`
	EdgeTypes   map[string]EdgeTypeSchema   `json:"edge_types" yaml:"edge_types"`
	Metadata    map[string]string           `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewSchemaDefinition constructs an empty schema with the given identity.
func NewSchemaDefinition(name, version, description string) *SchemaDefinition {
	now := time.Now().UTC()
	return &SchemaDefinition{
		Name:        name,
		Version:     version,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		ObjectTypes: map[string]ObjectTypeSchema{},
		EdgeTypes:   map[string]EdgeTypeSchema{},
	}
}

func (s *SchemaDefinition) AddObjectType(name string, schema ObjectTypeSchema) {
	s.ObjectTypes[name] = schema
	s.Touch()
}

func (s *SchemaDefinition) AddEdgeType(name string, schema EdgeTypeSchema) {
	s.EdgeTypes[name] = schema
	s.Touch()
}

func (s *SchemaDefinition) Touch() { s.UpdatedAt = time.Now().UTC() }

// CreateDefault returns the built-in TTRPG worldbuilding schema: character,
// location, faction, item, event, and session object types, connected by
// related_to, contains, member_of, knows, enemy_of, and ally_of edges.
func CreateDefault() *SchemaDefinition {
	s := NewSchemaDefinition("default", "1.0.0", "Default worldbuilding schema with basic object types")

	s.AddObjectType("character", defaultCharacter())
	s.AddObjectType("location", defaultLocation())
	s.AddObjectType("faction", defaultFaction())
	s.AddObjectType("item", defaultItem())
	s.AddObjectType("event", defaultEvent())
	s.AddObjectType("session", defaultSession())

	s.AddEdgeType("related_to", defaultRelatedTo())
	s.AddEdgeType("contains", defaultContains())
	s.AddEdgeType("member_of", defaultMemberOf())
	s.AddEdgeType("knows", defaultKnows())
	s.AddEdgeType("enemy_of", defaultEnemyOf())
	s.AddEdgeType("ally_of", defaultAllyOf())

	return s
}

func defaultCharacter() ObjectTypeSchema {
	return NewObjectTypeSchema("character", "A character in the game world").
		WithProperty("age", StringProperty("Character's age")).
		WithProperty("gender", StringProperty("Character's gender")).
		WithProperty("occupation", StringProperty("Character's occupation")).
		WithProperty("status", StringProperty("Character's current status")).
		WithProperty("species", StringProperty("Character's species")).
		WithProperty("background", TextProperty("Character's background story")).
		WithProperty("equipment", ArrayProperty(StringType())).
		WithProperty("secrets", ArrayProperty(StringType())).
		WithProperty("goals", ArrayProperty(StringType())).
		WithRequiredProperty("name").
		WithAllowedEdge("knows").
		WithAllowedEdge("enemy_of").
		WithAllowedEdge("ally_of").
		WithAllowedEdge("member_of")
}

func defaultLocation() ObjectTypeSchema {
	return NewObjectTypeSchema("location", "A location in the game world").
		WithProperty("type", StringProperty("Type of location")).
		WithProperty("status", StringProperty("Current state of location")).
		WithProperty("atmosphere", StringProperty("General feel/mood")).
		WithProperty("size", StringProperty("Size or scale")).
		WithProperty("danger_level", StringProperty("Level of danger")).
		WithProperty("notable_features", ArrayProperty(StringType())).
		WithRequiredProperty("name").
		WithRequiredProperty("type").
		WithAllowedEdge("contains").
		WithAllowedEdge("connected_to")
}

func defaultFaction() ObjectTypeSchema {
	return NewObjectTypeSchema("faction", "An organization or group").
		WithProperty("type", StringProperty("Type of faction")).
		WithProperty("goals", ArrayProperty(StringType())).
		WithProperty("resources", ArrayProperty(StringType())).
		WithProperty("reputation", StringProperty("Public reputation")).
		WithRequiredProperty("name").
		WithRequiredProperty("type").
		WithAllowedEdge("ally_of").
		WithAllowedEdge("enemy_of").
		WithAllowedEdge("member_of")
}

func defaultItem() ObjectTypeSchema {
	return NewObjectTypeSchema("item", "An item, artifact, or object").
		WithProperty("type", StringProperty("Type of item")).
		WithProperty("rarity", StringProperty("Item rarity")).
		WithProperty("value", StringProperty("Item value")).
		WithProperty("properties", ArrayProperty(StringType())).
		WithRequiredProperty("name").
		WithAllowedEdge("contains")
}

func defaultEvent() ObjectTypeSchema {
	return NewObjectTypeSchema("event", "An event or happening").
		WithProperty("date", StringProperty("When the event occurred")).
		WithProperty("location", ReferenceProperty("location")).
		WithProperty("participants", ArrayProperty(ReferenceType("character"))).
		WithProperty("outcome", StringProperty("Result of the event")).
		WithRequiredProperty("name").
		WithAllowedEdge("related_to")
}

func defaultSession() ObjectTypeSchema {
	return NewObjectTypeSchema("session", "A game session").
		WithProperty("date", StringProperty("Session date")).
		WithProperty("participants", ArrayProperty(ReferenceType("character"))).
		WithProperty("summary", TextProperty("Session summary")).
		WithProperty("notes", TextProperty("Session notes")).
		WithRequiredProperty("name").
		WithAllowedEdge("related_to")
}

func defaultRelatedTo() EdgeTypeSchema {
	return NewEdgeTypeSchema("related_to", "Generic relationship").
		WithProperty("context", StringProperty("Context of the relationship")).
		AsBidirectional()
}

func defaultContains() EdgeTypeSchema {
	return NewEdgeTypeSchema("contains", "Containment relationship").
		WithSourceTypes("location", "faction").
		WithTargetTypes("location", "character", "item")
}

func defaultMemberOf() EdgeTypeSchema {
	return NewEdgeTypeSchema("member_of", "Membership relationship").
		WithSourceTypes("character").
		WithTargetTypes("faction").
		WithProperty("role", StringProperty("Role within the organization")).
		WithProperty("rank", StringProperty("Rank or level"))
}

func defaultKnows() EdgeTypeSchema {
	return NewEdgeTypeSchema("knows", "Knowledge relationship between characters").
		WithSourceTypes("character").
		WithTargetTypes("character").
		WithProperty("relationship", StringProperty("Nature of the relationship")).
		AsBidirectional()
}

func defaultEnemyOf() EdgeTypeSchema {
	return NewEdgeTypeSchema("enemy_of", "Hostile relationship").
		WithSourceTypes("character", "faction").
		WithTargetTypes("character", "faction").
		WithProperty("reason", StringProperty("Reason for hostility")).
		AsBidirectional()
}

func defaultAllyOf() EdgeTypeSchema {
	return NewEdgeTypeSchema("ally_of", "Allied relationship").
		WithSourceTypes("character", "faction").
		WithTargetTypes("character", "faction").
		WithProperty("alliance_type", StringProperty("Type of alliance")).
		AsBidirectional()
}

// ValidationErrorType classifies why a ValidationError was raised.
type ValidationErrorType string

const (
	ErrMissingRequired   ValidationErrorType = "missing_required"
	ErrTypeMismatch      ValidationErrorType = "type_mismatch"
	ErrInvalidValue      ValidationErrorType = "invalid_value"
	ErrInvalidReference  ValidationErrorType = "invalid_reference"
	ErrValidationFailed  ValidationErrorType = "validation_rule_failed"
)

type ValidationError struct {
	Property  string              `json:"property"`
	Message   string              `json:"message"`
	ErrorType ValidationErrorType `json:"error_type"`
}

type ValidationWarning struct {
	Property string `json:"property"`
	Message  string `json:"message"`
}

// ValidationResult reports whether an object or edge conforms to a schema.
// Unknown properties and unknown edge types are warnings, not errors: a
// schema describes what a well-formed world looks like, it does not reject
// data it has not been taught about yet.
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []ValidationError   `json:"errors"`
	Warnings []ValidationWarning `json:"warnings"`
}

func Valid() ValidationResult { return ValidationResult{Valid: true} }

func Invalid(errors ...ValidationError) ValidationResult {
	return ValidationResult{Valid: false, Errors: errors}
}

func (r *ValidationResult) AddError(e ValidationError) {
	r.Errors = append(r.Errors, e)
	r.Valid = false
}

func (r *ValidationResult) AddWarning(w ValidationWarning) {
	r.Warnings = append(r.Warnings, w)
}
