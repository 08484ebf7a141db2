package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
)

func TestSchema_Normalize_CompoundGeometry(t *testing.T) {
	schema := NewSchema(map[string]string{"SHAPE": "x~y"})

	canonical, err := schema.Normalize(map[string]any{
		"SHAPE": map[string]any{"x": 7.14, "y": 50.70},
	})

	assert.NoError(t, err)
	assert.Len(t, canonical, 2)
	assert.Equal(t, Attribute{Label: "X", Value: 7.14}, canonical["x"])
	assert.Equal(t, Attribute{Label: "Y", Value: 50.70}, canonical["y"])
}

func TestSchema_Normalize_OtherFallback(t *testing.T) {
	schema := NewSchema(map[string]string{
		"camera_attached_to_other": "Camera attached to",
	})

	// Empty override falls back to the suffix-stripped field.
	canonical, err := schema.Normalize(map[string]any{
		"camera_attached_to_other": "",
		"camera_attached_to":       "tree",
	})
	assert.NoError(t, err)
	assert.Equal(t, "tree", canonical["camera_attached_to_other"].Value)
	assert.Equal(t, "Camera attached to", canonical["camera_attached_to_other"].Label)

	// Non-empty override wins.
	canonical, err = schema.Normalize(map[string]any{
		"camera_attached_to_other": "fence post",
		"camera_attached_to":       "tree",
	})
	assert.NoError(t, err)
	assert.Equal(t, "fence post", canonical["camera_attached_to_other"].Value)
}

func TestSchema_Normalize_PlainCopy(t *testing.T) {
	schema := NewSchema(map[string]string{
		"project_name": "Project name",
	})

	canonical, err := schema.Normalize(map[string]any{
		"project_name": "Chimpanzee retreat zone 1",
		"ignored":      "not configured",
	})

	assert.NoError(t, err)
	assert.Len(t, canonical, 1)
	assert.Equal(t, Attribute{Label: "Project name", Value: "Chimpanzee retreat zone 1"}, canonical["project_name"])
}

func TestSchema_Normalize_MissingFieldIsConfigurationError(t *testing.T) {
	schema := NewSchema(map[string]string{"project_name": "Project name"})

	_, err := schema.Normalize(map[string]any{"something_else": 1})

	assert.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))
}

func TestSchema_Normalize_MissingFallbackIsConfigurationError(t *testing.T) {
	schema := NewSchema(map[string]string{"camera_attached_to_other": "Camera attached to"})

	_, err := schema.Normalize(map[string]any{"camera_attached_to_other": ""})

	assert.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))
}

func TestSchema_Normalize_CompoundOnScalarIsConfigurationError(t *testing.T) {
	schema := NewSchema(map[string]string{"SHAPE": "x~y"})

	_, err := schema.Normalize(map[string]any{"SHAPE": "not a mapping"})

	assert.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))
}
