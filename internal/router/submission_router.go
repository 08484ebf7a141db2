package router

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/OpenCamTrap/camtrap/internal/approval"
	"github.com/OpenCamTrap/camtrap/internal/submission"
	"github.com/OpenCamTrap/camtrap/internal/survey"
)

// maxUploadBytes bounds one photo upload request in memory.
const maxUploadBytes = 128 << 20

// SubmissionRouter serves submission matching, photo uploads, tag
// requests, and the camera-folder choice list.
type SubmissionRouter struct {
	matcher *submission.Matcher
	photos  *submission.PhotoService
	tags    *approval.TagService
	choices *survey.ChoiceList
}

func NewSubmissionRouter(matcher *submission.Matcher, photos *submission.PhotoService,
	tags *approval.TagService, choices *survey.ChoiceList) *SubmissionRouter {
	return &SubmissionRouter{matcher: matcher, photos: photos, tags: tags, choices: choices}
}

// HandleMatchSubmission handles POST /api/submissions/match
func (r *SubmissionRouter) HandleMatchSubmission(w http.ResponseWriter, req *http.Request) {
	var body struct {
		CameraFolder string `json:"cameraFolder"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	sub, err := r.matcher.Match(req.Context(), body.CameraFolder)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

// HandleUploadPhotos handles POST /api/submissions/{submissionID}/photos
// Multipart form: one or more "photos" files, optional "tagGps" flag.
func (r *SubmissionRouter) HandleUploadPhotos(w http.ResponseWriter, req *http.Request) {
	submissionID := req.PathValue("submissionID")
	if submissionID == "" {
		http.Error(w, "submission ID is required", http.StatusBadRequest)
		return
	}
	sub, err := r.matcher.Get(req.Context(), submissionID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	tagGPS, _ := strconv.ParseBool(req.FormValue("tagGps"))

	var files []submission.PhotoInput
	for _, header := range req.MultipartForm.File["photos"] {
		file, err := header.Open()
		if err != nil {
			http.Error(w, "failed to read uploaded file: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		files = append(files, submission.PhotoInput{
			FileName: header.Filename,
			Reader:   file,
			Size:     header.Size,
			MimeType: header.Header.Get("Content-Type"),
		})
	}

	if _, err := r.photos.Attach(req.Context(), sub, files); err != nil {
		writeError(w, err)
		return
	}
	result, err := r.photos.Push(req.Context(), sub, tagGPS)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// HandleCreateTagRequest handles POST /api/submissions/{submissionID}/tag-requests
func (r *SubmissionRouter) HandleCreateTagRequest(w http.ResponseWriter, req *http.Request) {
	submissionID := req.PathValue("submissionID")
	if submissionID == "" {
		http.Error(w, "submission ID is required", http.StatusBadRequest)
		return
	}
	sub, err := r.matcher.Get(req.Context(), submissionID)
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		RequestedBy string `json:"requestedBy"`
	}
	if req.Body != nil && req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	outcome, err := r.tags.RequestTagging(req.Context(), sub, body.RequestedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, outcome)
}

// HandleGetCameraFolders handles GET /api/camera-folders
func (r *SubmissionRouter) HandleGetCameraFolders(w http.ResponseWriter, req *http.Request) {
	folders, err := r.choices.CameraFolders(req.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"cameraFolders": folders})
}
