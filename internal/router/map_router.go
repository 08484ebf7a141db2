package router

import (
	"encoding/json"
	"net/http"

	"github.com/OpenCamTrap/camtrap/internal/webmap"
)

// MapRouter serves web-map creation and retrieval.
type MapRouter struct {
	maps *webmap.Service
}

func NewMapRouter(maps *webmap.Service) *MapRouter {
	return &MapRouter{maps: maps}
}

// HandleCreateMap handles POST /api/maps
func (r *MapRouter) HandleCreateMap(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Title         string   `json:"title"`
		CameraFolders []string `json:"cameraFolders"`
		RequestedBy   string   `json:"requestedBy"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := r.maps.CreateMap(req.Context(), body.Title, body.CameraFolders, body.RequestedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// HandleGetMapByID handles GET /api/maps/{mapID}
func (r *MapRouter) HandleGetMapByID(w http.ResponseWriter, req *http.Request) {
	mapID := req.PathValue("mapID")
	if mapID == "" {
		http.Error(w, "map ID is required", http.StatusBadRequest)
		return
	}

	m, err := r.maps.Get(req.Context(), mapID)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}
