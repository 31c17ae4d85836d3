package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/nettrac/internal/model"
	"github.com/erazemk/nettrac/internal/store"
)

// RecordsHandler handles record listing and manual entry.
type RecordsHandler struct {
	DB *sql.DB
}

// recordRequest carries the user-editable fields of a record.
type recordRequest struct {
	Vendor             string     `json:"vendor"`
	DeviceType         string     `json:"device_type"`
	SerialNumber       string     `json:"serial_number"`
	HostName           string     `json:"host_name"`
	AssetTag           string     `json:"asset_tag"`
	PartID             string     `json:"part_id"`
	FutureLocation     string     `json:"future_location"`
	CurrentLocation    string     `json:"current_location"`
	Status             string     `json:"status"`
	DateReceived       *time.Time `json:"date_received"`
	BackOrdered        bool       `json:"back_ordered"`
	Ready              bool       `json:"ready"`
	LegacyDevice       bool       `json:"legacy_device"`
	Notes              string     `json:"notes"`
	ProductDescription string     `json:"product_description"`
	// Version is required on update and ignored on create.
	Version int64 `json:"version"`
}

func (req *recordRequest) apply(r *model.Record) {
	r.Vendor = req.Vendor
	r.DeviceType = req.DeviceType
	r.SerialNumber = req.SerialNumber
	r.HostName = req.HostName
	r.AssetTag = req.AssetTag
	r.PartID = req.PartID
	r.FutureLocation = req.FutureLocation
	r.CurrentLocation = req.CurrentLocation
	r.Status = req.Status
	r.DateReceived = req.DateReceived
	r.BackOrdered = req.BackOrdered
	r.Ready = req.Ready
	r.LegacyDevice = req.LegacyDevice
	r.Notes = req.Notes
	r.ProductDescription = req.ProductDescription
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// List handles GET /api/records. The q parameter searches vendor and serial
// number; pending=true limits the result to records awaiting deletion.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	pending, _ := strconv.ParseBool(r.URL.Query().Get("pending"))
	records, err := store.ListRecords(r.Context(), h.DB, model.RecordFilter{
		Search:      r.URL.Query().Get("q"),
		PendingOnly: pending,
	})
	if err != nil {
		writeError(w, r, err, "list records")
		return
	}
	if records == nil {
		records = []model.Record{}
	}
	jsonResponse(w, http.StatusOK, records)
}

// Get handles GET /api/records/{id}.
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	rec, err := store.GetRecord(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err, "get record")
		return
	}
	if rec == nil {
		jsonError(w, http.StatusNotFound, store.ErrNotFound.Error())
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}

// Create handles POST /api/records.
func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := GetActor(r.Context())

	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	now := time.Now().UTC()
	rec := &model.Record{Created: &now, CreatedBy: actor.Username}
	req.apply(rec)

	created, err := store.CreateRecord(r.Context(), h.DB, rec)
	if err != nil {
		writeError(w, r, err, "create record")
		return
	}

	slog.Info("record created", "user", actor.Username, "id", created.ID, "serial", created.SerialNumber)
	jsonResponse(w, http.StatusCreated, created)
}

// Update handles PUT /api/records/{id}. The request must carry the version
// the client last read.
func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor := GetActor(r.Context())
	id, ok := parseID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Version <= 0 {
		jsonError(w, http.StatusBadRequest, "version required")
		return
	}

	rec, err := store.GetRecord(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err, "update record")
		return
	}
	if rec == nil {
		jsonError(w, http.StatusNotFound, store.ErrNotFound.Error())
		return
	}

	req.apply(rec)
	now := time.Now().UTC()
	rec.Modified = &now
	rec.ModifiedBy = actor.Username
	rec.Version = req.Version

	if err := store.UpdateRecord(r.Context(), h.DB, rec); err != nil {
		writeError(w, r, err, "update record")
		return
	}

	slog.Info("record updated", "user", actor.Username, "id", rec.ID, "serial", rec.SerialNumber)
	jsonResponse(w, http.StatusOK, rec)
}
