package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	appdb "github.com/erazemk/nettrac/internal/db"
	"github.com/erazemk/nettrac/internal/model"
)

var (
	// ErrNotFound is returned when the target record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when the record changed since it was read.
	ErrConflict = errors.New("record was modified by another request")
	// ErrDuplicateSerial is returned when a serial number is already stored.
	ErrDuplicateSerial = errors.New("serial number already exists")
	// ErrInvalidRecord is returned when a required field is empty.
	ErrInvalidRecord = errors.New("vendor and serial number are required")
)

const recordColumns = `id, vendor, device_type, serial_number, host_name, asset_tag, part_id,
	future_location, current_location, status, date_received, back_ordered, ready,
	legacy_device, notes, product_description, created, created_by, modified,
	modified_by, pending_deletion, deletion_approved, version`

const insertRecordSQL = `INSERT INTO records (vendor, device_type, serial_number, host_name,
	asset_tag, part_id, future_location, current_location, status, date_received,
	back_ordered, ready, legacy_device, notes, product_description, created, created_by,
	modified, modified_by, pending_deletion, deletion_approved)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (serial_number) DO NOTHING`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (*model.Record, error) {
	var r model.Record
	var dateReceived, created, modified sql.NullTime
	err := s.Scan(&r.ID, &r.Vendor, &r.DeviceType, &r.SerialNumber, &r.HostName, &r.AssetTag,
		&r.PartID, &r.FutureLocation, &r.CurrentLocation, &r.Status, &dateReceived,
		&r.BackOrdered, &r.Ready, &r.LegacyDevice, &r.Notes, &r.ProductDescription,
		&created, &r.CreatedBy, &modified, &r.ModifiedBy, &r.PendingDeletion,
		&r.DeletionApproved, &r.Version)
	if err != nil {
		return nil, err
	}
	r.DateReceived = timePtr(dateReceived)
	r.Created = timePtr(created)
	r.Modified = timePtr(modified)
	return &r, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func insertArgs(r *model.Record) []any {
	return []any{
		r.Vendor, r.DeviceType, r.SerialNumber, r.HostName, r.AssetTag, r.PartID,
		r.FutureLocation, r.CurrentLocation, r.Status, nullTime(r.DateReceived),
		r.BackOrdered, r.Ready, r.LegacyDevice, r.Notes, r.ProductDescription,
		nullTime(r.Created), r.CreatedBy, nullTime(r.Modified), r.ModifiedBy,
		r.PendingDeletion, r.DeletionApproved,
	}
}

// ValidateRecord checks the fields every persisted record must carry.
func ValidateRecord(r *model.Record) error {
	if strings.TrimSpace(r.Vendor) == "" || strings.TrimSpace(r.SerialNumber) == "" {
		return ErrInvalidRecord
	}
	return nil
}

// CreateRecord inserts a single record. A serial number that is already
// stored yields ErrDuplicateSerial.
func CreateRecord(ctx context.Context, db *sql.DB, r *model.Record) (*model.Record, error) {
	if err := ValidateRecord(r); err != nil {
		return nil, err
	}

	var id int64
	err := withRetry(ctx, func() error {
		result, err := db.ExecContext(ctx, insertRecordSQL, insertArgs(r)...)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrDuplicateSerial
		}
		id, err = result.LastInsertId()
		return err
	})
	if errors.Is(err, ErrDuplicateSerial) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("creating record: %w", err)
	}

	return GetRecord(ctx, db, id)
}

// CreateRecords inserts records in a single transaction. Records whose serial
// number is already stored are left out and their serials returned.
func CreateRecords(ctx context.Context, db *sql.DB, records []model.Record) (inserted int, duplicates []string, err error) {
	for i := range records {
		if err := ValidateRecord(&records[i]); err != nil {
			return 0, nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	err = withRetry(ctx, func() error {
		inserted, duplicates = 0, nil

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range records {
			result, err := stmt.ExecContext(ctx, insertArgs(&records[i])...)
			if err != nil {
				return err
			}
			n, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				duplicates = append(duplicates, records[i].SerialNumber)
				continue
			}
			inserted++
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, nil, fmt.Errorf("creating records: %w", err)
	}
	return inserted, duplicates, nil
}

// GetRecord returns a record by ID, or nil if it does not exist.
func GetRecord(ctx context.Context, db *sql.DB, id int64) (*model.Record, error) {
	var r *model.Record
	err := withRetry(ctx, func() error {
		var err error
		r, err = scanRecord(db.QueryRowContext(ctx,
			`SELECT `+recordColumns+` FROM records WHERE id = ?`, id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return r, nil
}

// GetRecordBySerial returns the record with the given serial number, or nil.
func GetRecordBySerial(ctx context.Context, db *sql.DB, serial string) (*model.Record, error) {
	var r *model.Record
	err := withRetry(ctx, func() error {
		var err error
		r, err = scanRecord(db.QueryRowContext(ctx,
			`SELECT `+recordColumns+` FROM records WHERE serial_number = ?`, serial))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting record by serial: %w", err)
	}
	return r, nil
}

// SerialsExist returns the subset of serials that are already stored.
func SerialsExist(ctx context.Context, db *sql.DB, serials []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(serials) == 0 {
		return found, nil
	}

	// Stay well below SQLite's bound parameter limit.
	const chunk = 500
	for start := 0; start < len(serials); start += chunk {
		end := min(start+chunk, len(serials))
		part := serials[start:end]

		args := make([]any, len(part))
		for i, s := range part {
			args[i] = s
		}
		query := `SELECT serial_number FROM records WHERE serial_number IN (?` +
			strings.Repeat(", ?", len(part)-1) + `)`

		err := withRetry(ctx, func() error {
			rows, err := db.QueryContext(ctx, query, args...)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var s string
				if err := rows.Scan(&s); err != nil {
					return err
				}
				found[s] = true
			}
			return rows.Err()
		})
		if err != nil {
			return nil, fmt.Errorf("checking serial numbers: %w", err)
		}
	}
	return found, nil
}

// ListRecords returns records matching the filter, ordered by ID.
func ListRecords(ctx context.Context, db *sql.DB, filter model.RecordFilter) ([]model.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE 1=1`
	var args []any

	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + escapeLike(strings.ToLower(s)) + "%"
		query += ` AND (` + appdb.FoldFunc + `(vendor) LIKE ? ESCAPE '\' OR ` + appdb.FoldFunc + `(serial_number) LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	}
	if filter.PendingOnly {
		query += ` AND pending_deletion = 1`
	}
	query += ` ORDER BY id`

	var records []model.Record
	err := withRetry(ctx, func() error {
		records = nil
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, *r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// UpdateRecord writes all editable fields of r, provided the stored version
// still equals r.Version. On success r.Version is advanced.
func UpdateRecord(ctx context.Context, db *sql.DB, r *model.Record) error {
	if err := ValidateRecord(r); err != nil {
		return err
	}

	var n int64
	err := withRetry(ctx, func() error {
		result, err := db.ExecContext(ctx,
			`UPDATE records SET vendor = ?, device_type = ?, serial_number = ?, host_name = ?,
			        asset_tag = ?, part_id = ?, future_location = ?, current_location = ?,
			        status = ?, date_received = ?, back_ordered = ?, ready = ?, legacy_device = ?,
			        notes = ?, product_description = ?, modified = ?, modified_by = ?,
			        version = version + 1
			 WHERE id = ? AND version = ?`,
			r.Vendor, r.DeviceType, r.SerialNumber, r.HostName, r.AssetTag, r.PartID,
			r.FutureLocation, r.CurrentLocation, r.Status, nullTime(r.DateReceived),
			r.BackOrdered, r.Ready, r.LegacyDevice, r.Notes, r.ProductDescription,
			nullTime(r.Modified), r.ModifiedBy, r.ID, r.Version,
		)
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSerial
		}
		return fmt.Errorf("updating record: %w", err)
	}
	if n == 0 {
		return missingOrConflict(ctx, db, r.ID)
	}

	r.Version++
	return nil
}

// SetPendingDeletion raises or clears the pending deletion flag. Raising it
// always clears deletion_approved.
func SetPendingDeletion(ctx context.Context, db *sql.DB, id, version int64, pending bool, by string) error {
	var n int64
	err := withRetry(ctx, func() error {
		result, err := db.ExecContext(ctx,
			`UPDATE records SET pending_deletion = ?, deletion_approved = 0,
			        modified = ?, modified_by = ?, version = version + 1
			 WHERE id = ? AND version = ?`,
			pending, time.Now().UTC(), by, id, version,
		)
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("setting pending deletion: %w", err)
	}
	if n == 0 {
		return missingOrConflict(ctx, db, id)
	}
	return nil
}

// MarkAllPending flags every live record for deletion and returns how many
// records changed.
func MarkAllPending(ctx context.Context, db *sql.DB, by string) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		result, err := db.ExecContext(ctx,
			`UPDATE records SET pending_deletion = 1, deletion_approved = 0,
			        modified = ?, modified_by = ?, version = version + 1
			 WHERE pending_deletion = 0`,
			time.Now().UTC(), by,
		)
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("marking records pending: %w", err)
	}
	return n, nil
}

// DeleteRecord permanently removes a record, provided the stored version
// still equals version.
func DeleteRecord(ctx context.Context, db *sql.DB, id, version int64) error {
	var n int64
	err := withRetry(ctx, func() error {
		result, err := db.ExecContext(ctx,
			`DELETE FROM records WHERE id = ? AND version = ?`, id, version)
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	if n == 0 {
		return missingOrConflict(ctx, db, id)
	}
	return nil
}

// DeleteAllRecords permanently removes every record.
func DeleteAllRecords(ctx context.Context, db *sql.DB) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		result, err := db.ExecContext(ctx, `DELETE FROM records`)
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("deleting all records: %w", err)
	}
	return n, nil
}

// DeletePendingRecords permanently removes every record flagged for
// deletion.
func DeletePendingRecords(ctx context.Context, db *sql.DB) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		result, err := db.ExecContext(ctx, `DELETE FROM records WHERE pending_deletion = 1`)
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("deleting pending records: %w", err)
	}
	return n, nil
}

// missingOrConflict explains why a versioned write touched no rows.
func missingOrConflict(ctx context.Context, db *sql.DB, id int64) error {
	r, err := GetRecord(ctx, db, id)
	if err != nil {
		return err
	}
	if r == nil {
		return ErrNotFound
	}
	return ErrConflict
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
