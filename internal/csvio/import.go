package csvio

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/erazemk/nettrac/internal/model"
	"github.com/erazemk/nettrac/internal/store"
)

// ErrNotCSV is returned for uploads without a .csv extension.
var ErrNotCSV = errors.New("only CSV files are allowed")

// File is one uploaded file.
type File struct {
	Name string
	Body io.Reader
}

// FileError reports a file that could not be processed at all.
type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Report aggregates the outcome of an import across all files.
type Report struct {
	Files        int         `json:"files"`
	NewRecords   int         `json:"new_records"`
	Duplicates   []string    `json:"duplicates"`
	Skipped      []RowIssue  `json:"skipped"`
	InvalidDates []RowIssue  `json:"invalid_dates"`
	Errors       []FileError `json:"errors"`
}

// Importer loads CSV files into the record store.
type Importer struct {
	DB *sql.DB
	// MaxRowsPerFile caps data rows read per file. Zero means no cap.
	MaxRowsPerFile int
	// Now stamps records that carry no creation time. Defaults to time.Now.
	Now func() time.Time
}

// Import processes files one after another. A file that cannot be read is
// reported and skipped; it never stops the remaining files. Serial numbers
// that are already stored, or repeated within a file, are reported as
// duplicates and not inserted, so importing the same file twice is a no-op.
func (im *Importer) Import(ctx context.Context, actor model.Actor, files []File) *Report {
	report := &Report{
		Duplicates:   []string{},
		Skipped:      []RowIssue{},
		InvalidDates: []RowIssue{},
		Errors:       []FileError{},
	}

	for _, f := range files {
		report.Files++
		if err := im.importFile(ctx, actor, f, report); err != nil {
			slog.Warn("csv import failed", "user", actor.Username, "file", f.Name, "error", err)
			report.Errors = append(report.Errors, FileError{File: f.Name, Error: err.Error()})
		}
	}

	slog.Info("csv import finished",
		"user", actor.Username,
		"files", report.Files,
		"new", report.NewRecords,
		"duplicates", len(report.Duplicates),
		"skipped", len(report.Skipped),
		"invalid_dates", len(report.InvalidDates),
		"errors", len(report.Errors),
	)
	return report
}

func (im *Importer) importFile(ctx context.Context, actor model.Actor, f File, report *Report) error {
	if !IsCSVName(f.Name) {
		return ErrNotCSV
	}

	parsed, err := Parse(f.Body, f.Name, im.MaxRowsPerFile)
	if err != nil {
		return err
	}
	report.Skipped = append(report.Skipped, parsed.Skipped...)
	report.InvalidDates = append(report.InvalidDates, parsed.InvalidDates...)

	serials := make([]string, len(parsed.Records))
	for i, r := range parsed.Records {
		serials[i] = r.SerialNumber
	}
	existing, err := store.SerialsExist(ctx, im.DB, serials)
	if err != nil {
		return err
	}

	now := im.now()
	fresh := make([]model.Record, 0, len(parsed.Records))
	for _, r := range parsed.Records {
		if existing[r.SerialNumber] {
			report.Duplicates = append(report.Duplicates, r.SerialNumber)
			continue
		}
		if r.CreatedBy == "" {
			r.CreatedBy = actor.Username
		}
		if r.Created == nil {
			r.Created = &now
		}
		fresh = append(fresh, r)
	}
	report.Duplicates = append(report.Duplicates, parsed.Duplicates...)

	if len(fresh) == 0 {
		return nil
	}

	// A concurrent import may have stored some serials since the check.
	inserted, raced, err := store.CreateRecords(ctx, im.DB, fresh)
	if err != nil {
		return err
	}
	report.NewRecords += inserted
	report.Duplicates = append(report.Duplicates, raced...)

	slog.Info("csv file imported", "user", actor.Username, "file", f.Name, "new", inserted)
	return nil
}

func (im *Importer) now() time.Time {
	if im.Now != nil {
		return im.Now().UTC()
	}
	return time.Now().UTC()
}

// IsCSVName reports whether name carries a .csv extension. The content is
// not inspected.
func IsCSVName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}
