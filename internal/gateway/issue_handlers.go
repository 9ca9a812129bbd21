package gateway

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"reportmitra.org/internal/audit"
	"reportmitra.org/internal/lifecycle"
)

// handleIssues routes everything under /restapi/issues/.
func (a *API) handleIssues(w http.ResponseWriter, r *http.Request, sc *sessionContext) {
	path := strings.TrimPrefix(r.URL.Path, "/restapi/issues/")
	path = strings.Trim(path, "/")
	if path == "" {
		a.handleIssueList(w, r, sc)
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleIssueDetail(w, r, sc, parts[0])
	case len(parts) == 2 && parts[1] == "status":
		a.handleIssueStatus(w, r, sc, parts[0])
	case len(parts) == 2 && parts[1] == "resolve":
		a.handleIssueResolve(w, r, sc, parts[0])
	case len(parts) == 2 && parts[1] == "pdf":
		a.handleIssuePDF(w, r, sc, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// handleIssueList relays the issue list. Besides the raw status filter two
// named views exist: "urgent" (open issues ordered by confidence score) and
// "history" (resolved issues).
func (a *API) handleIssueList(w http.ResponseWriter, r *http.Request, sc *sessionContext) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && !lifecycle.Known(lifecycle.Status(status)) {
		writeError(w, r, http.StatusBadRequest, "unknown status filter")
		return
	}
	view := strings.TrimSpace(r.URL.Query().Get("view"))
	switch view {
	case "", "urgent":
	case "history":
		status = string(lifecycle.StatusResolved)
	default:
		writeError(w, r, http.StatusBadRequest, "unknown view")
		return
	}

	issues, err := sc.client.ListIssues(r.Context(), status)
	if err != nil {
		a.fail(w, r, sc, err)
		return
	}
	if view == "urgent" {
		sort.SliceStable(issues, func(i, j int) bool {
			return issues[i].ConfidenceScore > issues[j].ConfidenceScore
		})
	}
	writeJSON(w, http.StatusOK, issues)
}

func (a *API) handleIssueDetail(w http.ResponseWriter, r *http.Request, sc *sessionContext, trackingID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	issue, err := sc.client.GetIssue(r.Context(), trackingID)
	if err != nil {
		a.fail(w, r, sc, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

type statusRequest struct {
	Status string `json:"status"`
}

// handleIssueStatus applies a workflow transition. The transition is
// validated here, against the issue's current state, before any call reaches
// the backend; resolution goes through the dedicated resolve endpoint since
// it needs evidence.
func (a *API) handleIssueStatus(w http.ResponseWriter, r *http.Request, sc *sessionContext, trackingID string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	to := lifecycle.Status(strings.TrimSpace(req.Status))
	if to == lifecycle.StatusResolved {
		writeError(w, r, http.StatusBadRequest, "resolving requires a completion image; use the resolve endpoint")
		return
	}

	issue, err := sc.client.GetIssue(r.Context(), trackingID)
	if err != nil {
		a.fail(w, r, sc, err)
		return
	}
	from := lifecycle.Status(issue.Status)
	if err := lifecycle.CheckTransition(from, to); err != nil {
		a.fail(w, r, sc, err)
		return
	}

	upd, err := sc.client.UpdateIssueStatus(r.Context(), trackingID, string(to))
	if err != nil {
		a.fail(w, r, sc, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "issue.status.update", map[string]any{
		"tracking_id": trackingID,
		"from":        string(from),
		"to":          upd.Status,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       upd.Status,
		"allocated_to": upd.AllocatedTo,
		// escalation is a hand-off: the UI returns to the issue list
		"handoff": lifecycle.Handoff(to),
	})
}

// handleIssueResolve runs the three-phase resolve on behalf of the browser:
// validate the evidence image, presign, PUT the bytes, confirm the key. Any
// failure aborts the whole action with the issue status unchanged.
func (a *API) handleIssueResolve(w http.ResponseWriter, r *http.Request, sc *sessionContext, trackingID string) {
	if r.Method != http.MethodPatch && r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPatch, http.MethodPost)
		return
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, r, http.StatusBadRequest, "multipart form with a completion_image file is required")
		return
	}
	file, header, err := r.FormFile("completion_image")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "completion image is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if err := lifecycle.ValidateCompletionImage(contentType, header.Size); err != nil {
		a.fail(w, r, sc, err)
		return
	}

	issue, err := sc.client.GetIssue(r.Context(), trackingID)
	if err != nil {
		a.fail(w, r, sc, err)
		return
	}
	if err := lifecycle.CheckTransition(lifecycle.Status(issue.Status), lifecycle.StatusResolved); err != nil {
		a.fail(w, r, sc, err)
		return
	}

	updated, err := sc.client.ResolveWithImage(r.Context(), trackingID, header.Filename, contentType, header.Size, file)
	if err != nil {
		a.fail(w, r, sc, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "issue.resolve", map[string]any{
		"tracking_id": trackingID,
	})
	writeJSON(w, http.StatusOK, updated)
}

// handleIssuePDF streams the report straight through to the browser.
func (a *API) handleIssuePDF(w http.ResponseWriter, r *http.Request, sc *sessionContext, trackingID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	body, err := sc.client.DownloadPDF(r.Context(), trackingID)
	if err != nil {
		a.fail(w, r, sc, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "issue_"+trackingID+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}
