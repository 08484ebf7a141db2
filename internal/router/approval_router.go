package router

import (
	"context"
	"net/http"
	"time"

	"github.com/OpenCamTrap/camtrap/internal/approval"
)

// pollTimeout bounds one approval poll, which may fan out into several
// provider calls plus the side effect.
const pollTimeout = 60 * time.Second

// ApprovalRouter serves the approval polling boundary.
type ApprovalRouter struct {
	tracker *approval.Tracker
}

func NewApprovalRouter(tracker *approval.Tracker) *ApprovalRouter {
	return &ApprovalRouter{tracker: tracker}
}

// HandleGetApproval handles GET /api/approvals/{token}
// Safe to call repeatedly: a decided request is returned as-is and its
// side effect never re-fires.
func (r *ApprovalRouter) HandleGetApproval(w http.ResponseWriter, req *http.Request) {
	token := req.PathValue("token")
	if token == "" {
		http.Error(w, "correlation token is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), pollTimeout)
	defer cancel()

	request, err := r.tracker.Poll(ctx, token)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, request)
}
