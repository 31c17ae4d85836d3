package api

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"

	"github.com/erazemk/nettrac/internal/model"
	"github.com/erazemk/nettrac/internal/workflow"
)

// DeletionsHandler exposes the deletion workflow.
type DeletionsHandler struct {
	DB *sql.DB
}

// bulkRequest names the records a bulk transition applies to. Plain ids and
// versioned targets may be mixed.
type bulkRequest struct {
	IDs     []int64           `json:"ids"`
	Targets []workflow.Target `json:"targets"`
}

func (req *bulkRequest) targets() []workflow.Target {
	out := make([]workflow.Target, 0, len(req.IDs)+len(req.Targets))
	for _, id := range req.IDs {
		out = append(out, workflow.Target{ID: id})
	}
	return append(out, req.Targets...)
}

type countResponse struct {
	Outcome workflow.Outcome `json:"outcome"`
	Count   int64            `json:"count"`
}

// target reads the record id from the path and an optional version from the
// query string.
func target(r *http.Request) (workflow.Target, bool) {
	id, ok := parseID(r)
	if !ok {
		return workflow.Target{}, false
	}
	t := workflow.Target{ID: id}
	if v := r.URL.Query().Get("version"); v != "" {
		version, err := strconv.ParseInt(v, 10, 64)
		if err != nil || version <= 0 {
			return workflow.Target{}, false
		}
		t.Version = version
	}
	return t, true
}

type transitionFunc func(context.Context, *sql.DB, model.Actor, workflow.Target) (workflow.Outcome, error)

func (h *DeletionsHandler) single(w http.ResponseWriter, r *http.Request, action string, fn transitionFunc) {
	t, ok := target(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid record id or version")
		return
	}
	outcome, err := fn(r.Context(), h.DB, GetActor(r.Context()), t)
	if err != nil {
		writeError(w, r, err, action)
		return
	}
	jsonResponse(w, http.StatusOK, workflow.Result{ID: t.ID, Outcome: outcome})
}

// Delete handles DELETE /api/records/{id}.
func (h *DeletionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, "delete record", workflow.Delete)
}

// Approve handles POST /api/records/{id}/approve.
func (h *DeletionsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, "approve deletion", workflow.Approve)
}

// Deny handles POST /api/records/{id}/deny.
func (h *DeletionsHandler) Deny(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, "deny deletion", workflow.Deny)
}

type bulkFunc func(context.Context, *sql.DB, model.Actor, []workflow.Target) (*workflow.Summary, error)

func (h *DeletionsHandler) bulk(w http.ResponseWriter, r *http.Request, action string, fn bulkFunc) {
	var req bulkRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	targets := req.targets()
	if len(targets) == 0 {
		jsonError(w, http.StatusBadRequest, "no records selected")
		return
	}
	summary, err := fn(r.Context(), h.DB, GetActor(r.Context()), targets)
	if err != nil {
		writeError(w, r, err, action)
		return
	}
	jsonResponse(w, http.StatusOK, summary)
}

// DeleteMany handles POST /api/records/delete.
func (h *DeletionsHandler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, "delete records", workflow.DeleteMany)
}

// ApproveMany handles POST /api/deletions/approve.
func (h *DeletionsHandler) ApproveMany(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, "approve deletions", workflow.ApproveMany)
}

// DenyMany handles POST /api/deletions/deny.
func (h *DeletionsHandler) DenyMany(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, "deny deletions", workflow.DenyMany)
}

// DeleteAll handles POST /api/records/delete-all.
func (h *DeletionsHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	outcome, n, err := workflow.DeleteAll(r.Context(), h.DB, GetActor(r.Context()))
	if err != nil {
		writeError(w, r, err, "delete all records")
		return
	}
	jsonResponse(w, http.StatusOK, countResponse{Outcome: outcome, Count: n})
}

// ApproveAll handles POST /api/deletions/approve-all.
func (h *DeletionsHandler) ApproveAll(w http.ResponseWriter, r *http.Request) {
	n, err := workflow.ApproveAll(r.Context(), h.DB, GetActor(r.Context()))
	if err != nil {
		writeError(w, r, err, "approve all deletions")
		return
	}
	jsonResponse(w, http.StatusOK, countResponse{Outcome: workflow.OutcomeDeleted, Count: n})
}
