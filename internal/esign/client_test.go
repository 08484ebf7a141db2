package esign

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
)

func TestPowerFormIDFromURL(t *testing.T) {
	id, err := PowerFormIDFromURL("https://demo.docusign.net/Member/PowerFormSigning.aspx?PowerFormId=abc-123&env=demo")
	assert.NoError(t, err)
	assert.Equal(t, "abc-123", id)
}

func TestPowerFormIDFromURL_Missing(t *testing.T) {
	_, err := PowerFormIDFromURL("https://demo.docusign.net/Member/PowerFormSigning.aspx?env=demo")
	assert.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))
}
