package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/nettrac/internal/csvio"
	"github.com/erazemk/nettrac/internal/model"
	"github.com/erazemk/nettrac/internal/store"
	"github.com/erazemk/nettrac/internal/workflow"
)

type recordsPage struct {
	PageData
	Query   string
	Records []model.Record
	Report  *csvio.Report
}

// renderRecords lists records matching the q parameter, with optional
// messages from a preceding action.
func (s *Server) renderRecords(w http.ResponseWriter, r *http.Request, data recordsPage) {
	data.PageData.Title = "Inventory"
	data.Query = r.FormValue("q")

	records, err := store.ListRecords(r.Context(), s.DB, model.RecordFilter{Search: data.Query})
	if err != nil {
		slog.Error("failed to list records", "error", err)
		data.Error = "Could not load records."
	}
	data.Records = records
	s.Templates.Render(w, "records.html", &data)
}

// RecordsPage handles GET /records.
func (s *Server) RecordsPage(w http.ResponseWriter, r *http.Request) {
	data := recordsPage{PageData: page(r, "")}
	data.Success = r.URL.Query().Get("msg")
	data.Error = r.URL.Query().Get("err")
	s.renderRecords(w, r, data)
}

// ImportSubmit handles POST /records/import.
func (s *Server) ImportSubmit(w http.ResponseWriter, r *http.Request) {
	actor := GetWebActor(r.Context())
	data := recordsPage{PageData: page(r, "")}

	if s.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			data.Error = "The upload is too large."
		} else {
			data.Error = "Could not read the upload."
		}
		s.renderRecords(w, r, data)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var files []csvio.File
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			slog.Error("failed to open upload", "file", fh.Filename, "error", err)
			continue
		}
		defer f.Close()
		files = append(files, csvio.File{Name: fh.Filename, Body: f})
	}
	if len(files) == 0 {
		data.Error = "Choose at least one CSV file."
		s.renderRecords(w, r, data)
		return
	}

	im := &csvio.Importer{DB: s.DB, MaxRowsPerFile: s.MaxRowsPerFile}
	data.Report = im.Import(r.Context(), actor, files)
	data.Success = fmt.Sprintf("Imported %d new records.", data.Report.NewRecords)
	s.renderRecords(w, r, data)
}

// ExportDownload handles GET /export.
func (s *Server) ExportDownload(w http.ResponseWriter, r *http.Request) {
	out := csvio.NewAttachment(w, csvio.ExportFilename(time.Now()))
	n, err := csvio.Export(r.Context(), s.DB, out)
	if err != nil {
		slog.Error("failed to export records", "error", err)
		if !out.Started() {
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	slog.Info("records exported", "user", GetWebActor(r.Context()).Username, "count", n)
}

type recordFormPage struct {
	PageData
	Record *model.Record
	IsNew  bool
}

// RecordNewPage handles GET /records/new.
func (s *Server) RecordNewPage(w http.ResponseWriter, r *http.Request) {
	s.Templates.Render(w, "record_form.html", &recordFormPage{
		PageData: page(r, "New record"),
		Record:   &model.Record{},
		IsNew:    true,
	})
}

// RecordCreateSubmit handles POST /records/new.
func (s *Server) RecordCreateSubmit(w http.ResponseWriter, r *http.Request) {
	actor := GetWebActor(r.Context())

	rec := &model.Record{}
	now := time.Now().UTC()
	rec.Created = &now
	rec.CreatedBy = actor.Username
	formErr := readRecordForm(r, rec)

	if formErr == "" {
		created, err := store.CreateRecord(r.Context(), s.DB, rec)
		if err == nil {
			slog.Info("record created", "user", actor.Username, "id", created.ID, "serial", created.SerialNumber)
			redirectWithMessage(w, r, "/records", "Record "+created.SerialNumber+" created.", "")
			return
		}
		formErr = recordErrorMessage(err)
	}

	data := &recordFormPage{PageData: page(r, "New record"), Record: rec, IsNew: true}
	data.Error = formErr
	s.Templates.RenderStatus(w, http.StatusBadRequest, "record_form.html", data)
}

// RecordEditPage handles GET /records/{id}.
func (s *Server) RecordEditPage(w http.ResponseWriter, r *http.Request) {
	rec := s.loadRecord(w, r)
	if rec == nil {
		return
	}
	s.Templates.Render(w, "record_form.html", &recordFormPage{
		PageData: page(r, rec.SerialNumber),
		Record:   rec,
	})
}

// RecordUpdateSubmit handles POST /records/{id}.
func (s *Server) RecordUpdateSubmit(w http.ResponseWriter, r *http.Request) {
	actor := GetWebActor(r.Context())
	rec := s.loadRecord(w, r)
	if rec == nil {
		return
	}

	formErr := readRecordForm(r, rec)
	if formErr == "" {
		version, err := strconv.ParseInt(r.FormValue("version"), 10, 64)
		if err != nil {
			http.Error(w, "invalid version", http.StatusBadRequest)
			return
		}
		rec.Version = version
		now := time.Now().UTC()
		rec.Modified = &now
		rec.ModifiedBy = actor.Username

		err = store.UpdateRecord(r.Context(), s.DB, rec)
		if err == nil {
			slog.Info("record updated", "user", actor.Username, "id", rec.ID, "serial", rec.SerialNumber)
			redirectWithMessage(w, r, "/records", "Record "+rec.SerialNumber+" saved.", "")
			return
		}
		formErr = recordErrorMessage(err)
	}

	data := &recordFormPage{PageData: page(r, rec.SerialNumber), Record: rec}
	data.Error = formErr
	s.Templates.RenderStatus(w, http.StatusBadRequest, "record_form.html", data)
}

func (s *Server) loadRecord(w http.ResponseWriter, r *http.Request) *model.Record {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return nil
	}

	rec, err := store.GetRecord(r.Context(), s.DB, id)
	if err != nil {
		slog.Error("failed to get record", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil
	}
	if rec == nil {
		http.Error(w, "record not found", http.StatusNotFound)
		return nil
	}
	return rec
}

// readRecordForm copies the editable form fields into rec. It returns a
// user-facing message for invalid input.
func readRecordForm(r *http.Request, rec *model.Record) string {
	field := func(name string) string { return strings.TrimSpace(r.FormValue(name)) }

	rec.Vendor = field("vendor")
	rec.DeviceType = field("device_type")
	rec.SerialNumber = field("serial_number")
	rec.HostName = field("host_name")
	rec.AssetTag = field("asset_tag")
	rec.PartID = field("part_id")
	rec.FutureLocation = field("future_location")
	rec.CurrentLocation = field("current_location")
	rec.Status = field("status")
	rec.Notes = field("notes")
	rec.ProductDescription = field("product_description")
	rec.BackOrdered = r.FormValue("back_ordered") != ""
	rec.Ready = r.FormValue("ready") != ""
	rec.LegacyDevice = r.FormValue("legacy_device") != ""

	rec.DateReceived = nil
	if v := field("date_received"); v != "" {
		t, ok := csvio.ParseDate(v)
		if !ok {
			return "Date received is not a valid date."
		}
		rec.DateReceived = &t
	}

	if err := store.ValidateRecord(rec); err != nil {
		return "Vendor and serial number are required."
	}
	return ""
}

func recordErrorMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrDuplicateSerial):
		return "A record with this serial number already exists."
	case errors.Is(err, store.ErrConflict):
		return "Someone else changed this record. Reload it and try again."
	case errors.Is(err, store.ErrNotFound):
		return "The record no longer exists."
	case errors.Is(err, store.ErrInvalidRecord):
		return "Vendor and serial number are required."
	default:
		slog.Error("failed to save record", "error", err)
		return "Could not save the record."
	}
}

// formTargets reads the selected record ids from the "id" form values.
func formTargets(r *http.Request) []workflow.Target {
	r.ParseForm()
	var targets []workflow.Target
	for _, v := range r.Form["id"] {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		targets = append(targets, workflow.Target{ID: id})
	}
	return targets
}

// summaryMessage describes a bulk result, e.g. "2 deleted, 1 not found".
func summaryMessage(s *workflow.Summary) string {
	labels := map[workflow.Outcome]string{
		workflow.OutcomeDeleted:  "deleted",
		workflow.OutcomePending:  "flagged for deletion",
		workflow.OutcomeRestored: "restored",
		workflow.OutcomeNotFound: "not found",
		workflow.OutcomeFailed:   "failed",
	}
	var parts []string
	for outcome, n := range s.Counts {
		parts = append(parts, fmt.Sprintf("%d %s", n, labels[outcome]))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ") + "."
}

// redirectWithMessage sends the browser to path with a flash message.
func redirectWithMessage(w http.ResponseWriter, r *http.Request, path, success, failure string) {
	q := url.Values{}
	if success != "" {
		q.Set("msg", success)
	}
	if failure != "" {
		q.Set("err", failure)
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// RecordDeleteSubmit handles POST /records/{id}/delete.
func (s *Server) RecordDeleteSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	t := workflow.Target{ID: id}
	t.Version, _ = strconv.ParseInt(r.FormValue("version"), 10, 64)

	outcome, err := workflow.Delete(r.Context(), s.DB, GetWebActor(r.Context()), t)
	switch {
	case err != nil:
		redirectWithMessage(w, r, "/records", "", workflowErrorMessage(err))
	case outcome == workflow.OutcomePending:
		redirectWithMessage(w, r, "/records", "Deletion requested. An approver has to confirm it.", "")
	default:
		redirectWithMessage(w, r, "/records", "Record deleted.", "")
	}
}

// BulkDeleteSubmit handles POST /records/delete.
func (s *Server) BulkDeleteSubmit(w http.ResponseWriter, r *http.Request) {
	targets := formTargets(r)
	if len(targets) == 0 {
		redirectWithMessage(w, r, "/records", "", "Select at least one record.")
		return
	}

	summary, err := workflow.DeleteMany(r.Context(), s.DB, GetWebActor(r.Context()), targets)
	if err != nil {
		redirectWithMessage(w, r, "/records", "", workflowErrorMessage(err))
		return
	}
	redirectWithMessage(w, r, "/records", summaryMessage(summary), "")
}

// DeleteAllSubmit handles POST /records/delete-all.
func (s *Server) DeleteAllSubmit(w http.ResponseWriter, r *http.Request) {
	outcome, n, err := workflow.DeleteAll(r.Context(), s.DB, GetWebActor(r.Context()))
	switch {
	case err != nil:
		redirectWithMessage(w, r, "/records", "", workflowErrorMessage(err))
	case outcome == workflow.OutcomePending:
		redirectWithMessage(w, r, "/records", fmt.Sprintf("%d records flagged for deletion.", n), "")
	default:
		redirectWithMessage(w, r, "/records", fmt.Sprintf("%d records deleted.", n), "")
	}
}

func workflowErrorMessage(err error) string {
	switch {
	case errors.Is(err, workflow.ErrForbidden):
		return "You are not allowed to do that."
	case errors.Is(err, workflow.ErrNotPending):
		return "The record is not pending deletion."
	case errors.Is(err, store.ErrNotFound):
		return "The record no longer exists."
	case errors.Is(err, store.ErrConflict):
		return "Someone else changed this record. Reload and try again."
	default:
		slog.Error("deletion workflow failed", "error", err)
		return "The operation failed."
	}
}
