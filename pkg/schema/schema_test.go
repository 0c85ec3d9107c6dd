package schema

import (
	"testing"

	"github.com/orneryd/uforge/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDefaultSchema(t *testing.T) {
	s := CreateDefault()
	assert.Equal(t, "default", s.Name)
	assert.Contains(t, s.ObjectTypes, "character")
	assert.Contains(t, s.ObjectTypes, "location")
	assert.Contains(t, s.EdgeTypes, "knows")
}

func TestDefaultCharacterSchema(t *testing.T) {
	c := defaultCharacter()
	assert.Equal(t, "character", c.Name)
	assert.Contains(t, c.Properties, "age")
	assert.Contains(t, c.RequiredProperties, "name")
	assert.Contains(t, c.AllowedEdges, "knows")
}

func TestPropertySchemaWithValidation(t *testing.T) {
	prop := StringProperty("Test description").
		WithValidation(RequiredRule().WithLengthRange(1, 100))

	assert.Equal(t, "string", prop.PropertyType.Name())
	require.NotNil(t, prop.Validation)
	assert.True(t, prop.Validation.Required)
}

func TestDefaultKnowsEdgeSchema(t *testing.T) {
	e := defaultKnows()
	assert.Equal(t, "knows", e.Name)
	assert.True(t, e.Bidirectional)
	assert.Contains(t, e.AllowedSourceTypes, "character")
}

func TestValidationResultAddError(t *testing.T) {
	result := Valid()
	assert.True(t, result.Valid)

	result.AddError(ValidationError{
		Property:  "test",
		Message:   "Test error",
		ErrorType: ErrMissingRequired,
	})

	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 1)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := storage.Open(storage.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewManager(store)
}

func TestSchemaLoadingAndCaching(t *testing.T) {
	m := newTestManager(t)

	s1, err := m.LoadSchema("default")
	require.NoError(t, err)
	assert.Equal(t, "default", s1.Name)

	s2, err := m.LoadSchema("default")
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	assert.Contains(t, s1.ObjectTypes, "character")
	assert.Contains(t, s1.EdgeTypes, "knows")
}

func TestObjectValidation(t *testing.T) {
	m := newTestManager(t)

	gandalf := storage.NewObject("character", "Gandalf")
	gandalf.Properties = map[string]any{
		"age":        "2019",
		"species":    "Maiar",
		"occupation": "Wizard",
	}

	result, err := m.ValidateObject(gandalf)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	incomplete := storage.NewObject("character", "Incomplete")
	incomplete.Properties = map[string]any{"species": "Human"}
	result, err = m.ValidateObject(incomplete)
	require.NoError(t, err)
	assert.True(t, result.Valid || len(result.Warnings) >= 0)
}

func TestEdgeValidation(t *testing.T) {
	m := newTestManager(t)

	frodo := storage.NewObject("character", "Frodo")
	sam := storage.NewObject("character", "Sam")
	edge := storage.NewEdge(frodo.ID, sam.ID, "knows")

	result, err := m.ValidateEdge(edge, frodo, sam)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	shire := storage.NewObject("location", "Shire")
	invalidEdge := storage.NewEdge(shire.ID, frodo.ID, "knows")
	result, err = m.ValidateEdge(invalidEdge, shire, frodo)
	require.NoError(t, err)
	assert.True(t, len(result.Errors) > 0 || len(result.Warnings) > 0)
}

func TestSchemaRegistration(t *testing.T) {
	m := newTestManager(t)

	spellSchema := NewObjectTypeSchema("spell", "A magical spell").
		WithProperty("level", NumberProperty("Spell level")).
		WithProperty("school", StringProperty("School of magic")).
		WithRequiredProperty("level")

	require.NoError(t, m.RegisterObjectType("default", "spell", spellSchema))

	s, err := m.LoadSchema("default")
	require.NoError(t, err)
	assert.Contains(t, s.ObjectTypes, "spell")

	fireball := storage.NewObject("spell", "Fireball")
	fireball.Properties = map[string]any{"level": float64(3), "school": "Evocation"}

	result, err := m.ValidateObject(fireball)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestSchemaStats(t *testing.T) {
	m := newTestManager(t)

	stats, err := m.GetSchemaStats("default")
	require.NoError(t, err)
	assert.Equal(t, "default", stats.Name)
	assert.GreaterOrEqual(t, stats.ObjectTypeCount, 6)
	assert.GreaterOrEqual(t, stats.EdgeTypeCount, 6)
	assert.Greater(t, stats.TotalProperties, 0)
}

func TestPropertyValidationLengthRange(t *testing.T) {
	propSchema := StringProperty("Test property").
		WithValidation(ValidationRule{}.WithLengthRange(5, 10))

	assert.Nil(t, validatePropertyValue("test", "hello", propSchema))
	assert.NotNil(t, validatePropertyValue("test", "hi", propSchema))
}

func TestEnumValidation(t *testing.T) {
	enumSchema := newProperty(EnumType("red", "green", "blue"), "Color choice")

	assert.Nil(t, validatePropertyValue("color", "red", enumSchema))
	assert.NotNil(t, validatePropertyValue("color", "purple", enumSchema))
}

func TestClearCacheForcesReload(t *testing.T) {
	m := newTestManager(t)

	s1, err := m.LoadSchema("default")
	require.NoError(t, err)

	m.ClearCache()

	s2, err := m.LoadSchema("default")
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	assert.Equal(t, s1.Name, s2.Name)
}
