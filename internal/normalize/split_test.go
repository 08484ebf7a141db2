package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
)

func TestSplit_DirectAndAggregatedArePartition(t *testing.T) {
	canonical := Canonical{
		"x":            {Label: "X", Value: 794787.76},
		"y":            {Label: "Y", Value: 6567800.23},
		"project_name": {Label: "Project name", Value: "Zone 1"},
		"habitat":      {Label: "Habitat", Value: "forest"},
	}

	tags, err := Split(canonical, []string{"x", "y"})
	assert.NoError(t, err)

	// Direct carries exactly the configured keys, keyed by uppercased label.
	assert.Len(t, tags.Direct, 2)
	assert.Equal(t, "794787.76", tags.Direct["X"])
	assert.Equal(t, "6567800.23", tags.Direct["Y"])

	// The description aggregates every remaining attribute, one per line.
	lines := strings.Split(tags.Description, "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines, "Habitat: forest")
	assert.Contains(t, lines, "Project name: Zone 1")
	assert.NotContains(t, tags.Description, "X:")
	assert.NotContains(t, tags.Description, "Y:")
}

func TestSplit_NoDirectKeys(t *testing.T) {
	canonical := Canonical{
		"habitat": {Label: "Habitat", Value: "forest"},
	}

	tags, err := Split(canonical, nil)
	assert.NoError(t, err)
	assert.Empty(t, tags.Direct)
	assert.Equal(t, "Habitat: forest", tags.Description)
}

func TestSplit_UnknownDirectKeyIsConfigurationError(t *testing.T) {
	canonical := Canonical{
		"habitat": {Label: "Habitat", Value: "forest"},
	}

	_, err := Split(canonical, []string{"x"})
	assert.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))
}

func TestTagSet_Attributes(t *testing.T) {
	tags := TagSet{
		Direct:      map[string]string{"X": "7.14"},
		Description: "Habitat: forest",
	}

	attrs := tags.Attributes("Description")
	assert.Equal(t, "7.14", attrs["X"])
	assert.Equal(t, "Habitat: forest", attrs["Description"])
	assert.Len(t, attrs, 2)
}
