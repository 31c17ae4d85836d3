package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/nettrac/internal/csvio"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// CSVHandler handles CSV import and export.
type CSVHandler struct {
	DB             *sql.DB
	MaxUploadBytes int64
	MaxRowsPerFile int
}

// Import handles POST /api/import. Files are sent as multipart form field
// "files"; each one is processed independently.
func (h *CSVHandler) Import(w http.ResponseWriter, r *http.Request) {
	actor := GetActor(r.Context())

	files, cleanup, err := uploadedFiles(w, r, h.MaxUploadBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	im := &csvio.Importer{DB: h.DB, MaxRowsPerFile: h.MaxRowsPerFile}
	jsonResponse(w, http.StatusOK, im.Import(r.Context(), actor, files))
}

// uploadedFiles opens every file in the "files" form field. The returned
// cleanup closes them and removes temporary files.
func uploadedFiles(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]csvio.File, func(), error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, nil, err
	}

	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			c()
		}
		r.MultipartForm.RemoveAll()
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		cleanup()
		return nil, nil, errors.New("no files uploaded")
	}

	files := make([]csvio.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, f.Close)
		files = append(files, csvio.File{Name: fh.Filename, Body: f})
	}
	return files, cleanup, nil
}

// Export handles GET /api/export.
func (h *CSVHandler) Export(w http.ResponseWriter, r *http.Request) {
	writeExport(w, r, h.DB)
}

// writeExport streams the store as a CSV attachment.
func writeExport(w http.ResponseWriter, r *http.Request, db *sql.DB) {
	out := csvio.NewAttachment(w, csvio.ExportFilename(time.Now()))
	n, err := csvio.Export(r.Context(), db, out)
	if err != nil {
		if !out.Started() {
			writeError(w, r, err, "export records")
			return
		}
		slog.Error("failed to write export", "error", err, "request_id", RequestID(r.Context()))
		return
	}
	slog.Info("records exported", "user", GetActor(r.Context()).Username, "count", n)
}
