package csvio

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/nettrac/internal/model"
	"github.com/erazemk/nettrac/internal/store"
)

// Export writes every stored record to w and returns the number written.
// Records are listed before anything is written, so a store error leaves w
// untouched.
func Export(ctx context.Context, db *sql.DB, w io.Writer) (int, error) {
	records, err := store.ListRecords(ctx, db, model.RecordFilter{})
	if err != nil {
		return 0, err
	}
	if err := WriteRecords(w, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// WriteRecords writes a header row followed by one row per record.
func WriteRecords(w io.Writer, records []model.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for i := range records {
		r := &records[i]
		row := []string{
			strconv.FormatInt(r.ID, 10),
			r.Vendor,
			r.DeviceType,
			r.SerialNumber,
			r.HostName,
			r.AssetTag,
			r.PartID,
			r.FutureLocation,
			formatTime(r.DateReceived),
			r.CurrentLocation,
			r.Status,
			strconv.FormatBool(r.BackOrdered),
			r.Notes,
			r.ProductDescription,
			strconv.FormatBool(r.Ready),
			strconv.FormatBool(r.LegacyDevice),
			formatTime(r.Created),
			r.CreatedBy,
			formatTime(r.Modified),
			r.ModifiedBy,
			strconv.FormatBool(r.PendingDeletion),
			strconv.FormatBool(r.DeletionApproved),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ExportFilename returns the download name for an export taken at t.
func ExportFilename(t time.Time) string {
	return "inventory_" + t.Format("20060102_150405") + ".csv"
}

// Attachment is a writer that marks an HTTP response as a CSV download on
// its first write.
type Attachment struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

// NewAttachment wraps w for a download named filename.
func NewAttachment(w http.ResponseWriter, filename string) *Attachment {
	return &Attachment{w: w, filename: filename}
}

func (a *Attachment) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true
		a.w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		a.w.Header().Set("Content-Disposition", `attachment; filename="`+a.filename+`"`)
	}
	return a.w.Write(p)
}

// Started reports whether any part of the body has been written.
func (a *Attachment) Started() bool {
	return a.started
}
