package web

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/nettrac/internal/model"
	"github.com/erazemk/nettrac/internal/store"
	"github.com/erazemk/nettrac/internal/workflow"
)

// DeletionsPage handles GET /deletions (approvers only).
func (s *Server) DeletionsPage(w http.ResponseWriter, r *http.Request) {
	data := &struct {
		PageData
		Records []model.Record
	}{PageData: page(r, "Pending deletions")}
	data.Success = r.URL.Query().Get("msg")
	data.Error = r.URL.Query().Get("err")

	records, err := store.ListRecords(r.Context(), s.DB, model.RecordFilter{PendingOnly: true})
	if err != nil {
		slog.Error("failed to list pending records", "error", err)
		data.Error = "Could not load pending deletions."
	}
	data.Records = records
	s.Templates.Render(w, "deletions.html", data)
}

type transitionFunc func(context.Context, *sql.DB, model.Actor, workflow.Target) (workflow.Outcome, error)

func (s *Server) resolveOne(w http.ResponseWriter, r *http.Request, fn transitionFunc, done string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	t := workflow.Target{ID: id}
	t.Version, _ = strconv.ParseInt(r.FormValue("version"), 10, 64)

	if _, err := fn(r.Context(), s.DB, GetWebActor(r.Context()), t); err != nil {
		redirectWithMessage(w, r, "/deletions", "", workflowErrorMessage(err))
		return
	}
	redirectWithMessage(w, r, "/deletions", done, "")
}

// ApproveSubmit handles POST /deletions/{id}/approve.
func (s *Server) ApproveSubmit(w http.ResponseWriter, r *http.Request) {
	s.resolveOne(w, r, workflow.Approve, "Record deleted.")
}

// DenySubmit handles POST /deletions/{id}/deny.
func (s *Server) DenySubmit(w http.ResponseWriter, r *http.Request) {
	s.resolveOne(w, r, workflow.Deny, "Deletion request denied.")
}

// BulkResolveSubmit handles POST /deletions. The "action" form value is
// either "approve" or "deny".
func (s *Server) BulkResolveSubmit(w http.ResponseWriter, r *http.Request) {
	actor := GetWebActor(r.Context())
	targets := formTargets(r)
	if len(targets) == 0 {
		redirectWithMessage(w, r, "/deletions", "", "Select at least one record.")
		return
	}

	var (
		summary *workflow.Summary
		err     error
	)
	switch r.FormValue("action") {
	case "approve":
		summary, err = workflow.ApproveMany(r.Context(), s.DB, actor, targets)
	case "deny":
		summary, err = workflow.DenyMany(r.Context(), s.DB, actor, targets)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	if err != nil {
		redirectWithMessage(w, r, "/deletions", "", workflowErrorMessage(err))
		return
	}
	redirectWithMessage(w, r, "/deletions", summaryMessage(summary), "")
}

// ApproveAllSubmit handles POST /deletions/approve-all.
func (s *Server) ApproveAllSubmit(w http.ResponseWriter, r *http.Request) {
	n, err := workflow.ApproveAll(r.Context(), s.DB, GetWebActor(r.Context()))
	if err != nil {
		redirectWithMessage(w, r, "/deletions", "", workflowErrorMessage(err))
		return
	}
	redirectWithMessage(w, r, "/deletions", fmt.Sprintf("%d records deleted.", n), "")
}
