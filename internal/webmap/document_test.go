package webmap

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderDocument_Features(t *testing.T) {
	raw, err := RenderDocument(map[string]FeatureAttributes{
		"CAM-9_20240615": {
			X: 812000.5, Y: 6570000.25,
			Title:       "CAM-9_20240615",
			ImageURL:    "https://assets.example.com/9.jpg",
			Description: "Species: emu",
		},
		"CAM-7_20240501": {
			X: 794787.768416722, Y: 6567800.23790998,
			Title:       "CAM-7_20240501",
			ImageURL:    "https://assets.example.com/7.jpg",
			Description: "Species: quokka",
		},
	})
	assert.NoError(t, err)

	var doc struct {
		OperationalLayers []struct {
			FeatureCollection struct {
				Layers []struct {
					FeatureSet struct {
						GeometryType string `json:"geometryType"`
						Features     []struct {
							Geometry struct {
								X                float64 `json:"x"`
								Y                float64 `json:"y"`
								SpatialReference struct {
									WKID int `json:"wkid"`
								} `json:"spatialReference"`
							} `json:"geometry"`
							Attributes map[string]any `json:"attributes"`
						} `json:"features"`
					} `json:"featureSet"`
				} `json:"layers"`
			} `json:"featureCollection"`
		} `json:"operationalLayers"`
		SpatialReference struct {
			WKID       int `json:"wkid"`
			LatestWKID int `json:"latestWkid"`
		} `json:"spatialReference"`
	}
	assert.NoError(t, json.Unmarshal(raw, &doc))
	assert.Len(t, doc.OperationalLayers, 1)
	assert.Equal(t, 102100, doc.SpatialReference.WKID)
	assert.Equal(t, 3857, doc.SpatialReference.LatestWKID)

	features := doc.OperationalLayers[0].FeatureCollection.Layers[0].FeatureSet.Features
	assert.Len(t, features, 2)

	// Folder order is alphabetical, independent of map iteration order.
	assert.Equal(t, "CAM-7_20240501", features[0].Attributes["TITLE"])
	assert.Equal(t, "CAM-9_20240615", features[1].Attributes["TITLE"])

	first := features[0]
	assert.InDelta(t, 794787.768416722, first.Geometry.X, 1e-9)
	assert.Equal(t, 102100, first.Geometry.SpatialReference.WKID)
	assert.Equal(t, "https://assets.example.com/7.jpg", first.Attributes["IMAGE_URL"])
	assert.Contains(t, first.Attributes["DESCRIPTION"], "Species: quokka")
	assert.Equal(t, float64(1), first.Attributes["VISIBLE"])
}

func TestRenderDocument_Empty(t *testing.T) {
	raw, err := RenderDocument(nil)
	assert.NoError(t, err)
	assert.Contains(t, string(raw), `"features":[]`)
}
