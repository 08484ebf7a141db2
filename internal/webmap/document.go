package webmap

import (
	"encoding/json"
	"fmt"
	"sort"
)

// spatialRef is the web-mercator spatial reference every map element
// carries. 102100 is the platform's legacy alias for EPSG:3857.
type spatialRef struct {
	WKID       int `json:"wkid"`
	LatestWKID int `json:"latestWkid"`
}

var webMercator = spatialRef{WKID: 102100, LatestWKID: 3857}

type pointGeometry struct {
	X                float64    `json:"x"`
	Y                float64    `json:"y"`
	SpatialReference spatialRef `json:"spatialReference"`
}

type feature struct {
	Geometry   pointGeometry  `json:"geometry"`
	Attributes map[string]any `json:"attributes"`
}

type featureSet struct {
	GeometryType string    `json:"geometryType"`
	Features     []feature `json:"features"`
}

type mediaInfo struct {
	Type  string `json:"type"`
	Value struct {
		SourceURL string `json:"sourceURL"`
		LinkURL   string `json:"linkURL"`
	} `json:"value"`
}

type popupInfo struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	MediaInfos  []mediaInfo `json:"mediaInfos"`
}

type fieldDef struct {
	Name     string `json:"name"`
	Alias    string `json:"alias"`
	Type     string `json:"type"`
	Editable bool   `json:"editable"`
	Length   int    `json:"length,omitempty"`
}

type markerSymbol struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	XOffset     int    `json:"xoffset"`
	YOffset     int    `json:"yoffset"`
}

type uniqueValueInfo struct {
	Value  string       `json:"value"`
	Label  string       `json:"label"`
	Symbol markerSymbol `json:"symbol"`
}

type renderer struct {
	Type             string            `json:"type"`
	Field1           string            `json:"field1"`
	UniqueValueInfos []uniqueValueInfo `json:"uniqueValueInfos"`
}

type drawingInfo struct {
	Renderer renderer `json:"renderer"`
}

type layerDefinition struct {
	Name             string      `json:"name"`
	Type             string      `json:"type"`
	GeometryType     string      `json:"geometryType"`
	ObjectIDField    string      `json:"objectIdField"`
	TypeIDField      string      `json:"typeIdField"`
	DisplayField     string      `json:"displayField"`
	VisibilityField  string      `json:"visibilityField"`
	Capabilities     string      `json:"capabilities"`
	HasAttachments   bool        `json:"hasAttachments"`
	Fields           []fieldDef  `json:"fields"`
	DrawingInfo      drawingInfo `json:"drawingInfo"`
	SpatialReference spatialRef  `json:"spatialReference"`
}

type collectionLayer struct {
	LayerDefinition layerDefinition `json:"layerDefinition"`
	PopupInfo       popupInfo       `json:"popupInfo"`
	FeatureSet      featureSet      `json:"featureSet"`
}

type featureCollection struct {
	Layers     []collectionLayer `json:"layers"`
	ShowLegend bool              `json:"showLegend"`
}

type operationalLayer struct {
	ID                    string            `json:"id"`
	Title                 string            `json:"title"`
	LayerType             string            `json:"layerType"`
	FeatureCollectionType string            `json:"featureCollectionType"`
	FeatureCollection     featureCollection `json:"featureCollection"`
	Opacity               float64           `json:"opacity"`
	Visibility            bool              `json:"visibility"`
}

type baseMapLayer struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	LayerType   string  `json:"layerType"`
	URL         string  `json:"url,omitempty"`
	StyleURL    string  `json:"styleUrl,omitempty"`
	IsReference bool    `json:"isReference,omitempty"`
	Visibility  bool    `json:"visibility"`
	Opacity     float64 `json:"opacity"`
}

type baseMap struct {
	Title         string         `json:"title"`
	BaseMapLayers []baseMapLayer `json:"baseMapLayers"`
}

// document is the full web-map JSON the mapping platform stores for an
// item. One marker layer over an imagery basemap, one feature per camera
// folder.
type document struct {
	OperationalLayers []operationalLayer `json:"operationalLayers"`
	BaseMap           baseMap            `json:"baseMap"`
	SpatialReference  spatialRef         `json:"spatialReference"`
	AuthoringApp      string             `json:"authoringApp"`
	Version           string             `json:"version"`
}

func newFeature(attrs FeatureAttributes) feature {
	return feature{
		Geometry: pointGeometry{X: attrs.X, Y: attrs.Y, SpatialReference: webMercator},
		Attributes: map[string]any{
			"VISIBLE":     1,
			"TYPEID":      0,
			"TITLE":       attrs.Title,
			"IMAGE_URL":   attrs.ImageURL,
			"DESCRIPTION": fmt.Sprintf("<span style='background-color: rgb(255, 255, 255);'>%s<br /></span>", attrs.Description),
		},
	}
}

// RenderDocument builds the web-map JSON for the frozen submission
// attributes. Features are ordered by camera folder so rendering is
// deterministic.
func RenderDocument(attributes map[string]FeatureAttributes) (json.RawMessage, error) {
	folders := make([]string, 0, len(attributes))
	for folder := range attributes {
		folders = append(folders, folder)
	}
	sort.Strings(folders)

	features := make([]feature, 0, len(folders))
	for _, folder := range folders {
		features = append(features, newFeature(attributes[folder]))
	}

	layer := collectionLayer{
		LayerDefinition: markerLayerDefinition(),
		PopupInfo: popupInfo{
			Title:       "{TITLE}",
			Description: "{DESCRIPTION}",
			MediaInfos:  []mediaInfo{popupImage()},
		},
		FeatureSet: featureSet{GeometryType: "esriGeometryPoint", Features: features},
	}

	doc := document{
		OperationalLayers: []operationalLayer{{
			ID:                    "cameraTrapLocations",
			Title:                 "Camera trap locations",
			LayerType:             "ArcGISFeatureLayer",
			FeatureCollectionType: "notes",
			FeatureCollection:     featureCollection{Layers: []collectionLayer{layer}},
			Opacity:               1,
			Visibility:            true,
		}},
		BaseMap: baseMap{
			Title: "Imagery Hybrid",
			BaseMapLayers: []baseMapLayer{{
				ID:         "World_Imagery",
				Title:      "World Imagery",
				LayerType:  "ArcGISTiledMapServiceLayer",
				URL:        "https://services.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer",
				Visibility: true,
				Opacity:    1,
			}},
		},
		SpatialReference: webMercator,
		AuthoringApp:     "WebMapViewer",
		Version:          "2.25",
	}
	return json.Marshal(doc)
}

func popupImage() mediaInfo {
	var media mediaInfo
	media.Type = "image"
	media.Value.SourceURL = "{IMAGE_URL}"
	media.Value.LinkURL = "{IMAGE_URL}"
	return media
}

func markerLayerDefinition() layerDefinition {
	def := layerDefinition{
		Name:            "Points",
		Type:            "Feature Layer",
		GeometryType:    "esriGeometryPoint",
		ObjectIDField:   "OBJECTID",
		TypeIDField:     "TYPEID",
		DisplayField:    "TITLE",
		VisibilityField: "VISIBLE",
		Capabilities:    "Query",
		Fields: []fieldDef{
			{Name: "OBJECTID", Alias: "OBJECTID", Type: "esriFieldTypeOID"},
			{Name: "TITLE", Alias: "Title", Type: "esriFieldTypeString", Editable: true, Length: 255},
			{Name: "VISIBLE", Alias: "Visible", Type: "esriFieldTypeInteger", Editable: true},
			{Name: "DESCRIPTION", Alias: "Description", Type: "esriFieldTypeString", Editable: true, Length: 1073741822},
			{Name: "IMAGE_URL", Alias: "Image URL", Type: "esriFieldTypeString", Editable: true, Length: 255},
			{Name: "TYPEID", Alias: "Type ID", Type: "esriFieldTypeInteger", Editable: true},
		},
		SpatialReference: webMercator,
	}
	def.DrawingInfo.Renderer = renderer{
		Type:   "uniqueValue",
		Field1: "TYPEID",
		UniqueValueInfos: []uniqueValueInfo{{
			Value: "0",
			Label: "Stickpin",
			Symbol: markerSymbol{
				Type:        "esriPMS",
				URL:         "https://static.arcgis.com/images/Symbols/Basic/GreenStickpin.png",
				ContentType: "image/png",
				Width:       24,
				Height:      24,
				YOffset:     12,
			},
		}},
	}
	return def
}
