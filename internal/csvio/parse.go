// Package csvio reads inventory records from uploaded CSV files and writes
// the store back out as CSV.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/erazemk/nettrac/internal/model"
)

// Canonical column names, in export order.
const (
	colID                 = "Id"
	colVendor             = "Vendor"
	colDeviceType         = "DeviceType"
	colSerialNumber       = "SerialNumber"
	colHostName           = "HostName"
	colAssetTag           = "AssetTag"
	colPartID             = "PartID"
	colFutureLocation     = "FutureLocation"
	colDateReceived       = "DateReceived"
	colCurrentLocation    = "CurrentLocation"
	colStatus             = "Status"
	colBackOrdered        = "BackOrdered"
	colNotes              = "Notes"
	colProductDescription = "ProductDescription"
	colReady              = "Ready"
	colLegacyDevice       = "LegacyDevice"
	colCreated            = "Created"
	colCreatedBy          = "CreatedBy"
	colModified           = "Modified"
	colModifiedBy         = "ModifiedBy"
	colPendingDeletion    = "PendingDeletion"
	colDeletionApproved   = "DeletionApproved"
)

// Header is the export header row. ID, PendingDeletion and DeletionApproved
// are written for reference only; imported records always start live with
// a fresh id.
var Header = []string{
	colID, colVendor, colDeviceType, colSerialNumber, colHostName, colAssetTag,
	colPartID, colFutureLocation, colDateReceived, colCurrentLocation, colStatus,
	colBackOrdered, colNotes, colProductDescription, colReady, colLegacyDevice,
	colCreated, colCreatedBy, colModified, colModifiedBy, colPendingDeletion,
	colDeletionApproved,
}

// legacyColumns is the fixed positional layout of the old 10-column export.
var legacyColumns = []string{
	colVendor, colDeviceType, colSerialNumber, colHostName, colAssetTag,
	colPartID, colFutureLocation, colDateReceived, colCurrentLocation, colStatus,
}

// aliases maps normalized alternative header spellings to canonical names.
var aliases = map[string]string{
	"serial":   colSerialNumber,
	"serialno": colSerialNumber,
	"sn":       colSerialNumber,
	"host":     colHostName,
	"partno":   colPartID,
	"type":     colDeviceType,
}

// canonical maps normalized header names to canonical column names.
var canonical = func() map[string]string {
	m := make(map[string]string, len(Header)+len(aliases))
	for _, c := range Header {
		m[normalize(c)] = c
	}
	for k, v := range aliases {
		m[k] = v
	}
	return m
}()

// normalize lowercases s and drops everything but letters and digits, so
// "Serial Number", "serial_number" and "SerialNumber" compare equal.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Skip reasons.
const (
	ReasonMissingFields = "missing vendor or serial number"
	ReasonMalformedRow  = "malformed row"
	ReasonInvalidStatus = "invalid status"
	ReasonRowLimit      = "row limit exceeded, remaining rows ignored"
)

// RowIssue describes a row that was skipped or only partially read.
type RowIssue struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Serial string `json:"serial_number,omitempty"`
	Reason string `json:"reason"`
}

// Parsed is the result of reading one CSV file.
type Parsed struct {
	// Records holds one candidate per distinct serial number, in file order.
	Records []model.Record
	// Duplicates lists serial numbers repeated within the file. The first
	// occurrence is kept.
	Duplicates   []string
	Skipped      []RowIssue
	InvalidDates []RowIssue
}

// ErrEmptyFile is returned for input without a header row.
var ErrEmptyFile = errors.New("file is empty")

// Parse reads header-driven CSV from r. Column order does not matter and
// unknown or missing columns are tolerated. A file whose header names
// neither a vendor nor a serial number column and has exactly ten columns is
// read with the legacy positional layout. maxRows caps the number of data
// rows read; zero means no cap.
func Parse(r io.Reader, file string, maxRows int) (*Parsed, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	first, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if len(first) > 0 {
		first[0] = strings.TrimPrefix(first[0], "\ufeff")
	}

	p := &rowParser{file: file, parsed: &Parsed{}, seen: make(map[string]bool)}

	index, headerRow := headerIndex(first)
	if !headerRow {
		p.legacy = true
		index = make(map[string]int, len(legacyColumns))
		for i, c := range legacyColumns {
			index[c] = i
		}
		if !looksLikeHeader(first) {
			p.row(index, first, 1)
		}
	}

	rows := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}

		var perr *csv.ParseError
		if errors.As(err, &perr) {
			p.skip(perr.StartLine, "", ReasonMalformedRow)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		line, _ := cr.FieldPos(0)

		rows++
		if maxRows > 0 && rows > maxRows {
			p.skip(line, "", ReasonRowLimit)
			break
		}
		p.row(index, record, line)
	}

	return p.parsed, nil
}

// headerIndex maps canonical column names to positions. The second result is
// false when the row should be read with the legacy positional layout.
func headerIndex(row []string) (map[string]int, bool) {
	index := make(map[string]int, len(row))
	for i, name := range row {
		if c, ok := canonical[normalize(name)]; ok {
			if _, dup := index[c]; !dup {
				index[c] = i
			}
		}
	}

	_, hasVendor := index[colVendor]
	_, hasSerial := index[colSerialNumber]
	if !hasVendor && !hasSerial && len(row) == len(legacyColumns) {
		return nil, false
	}
	return index, true
}

// looksLikeHeader reports whether any field names a known column.
func looksLikeHeader(row []string) bool {
	for _, name := range row {
		if _, ok := canonical[normalize(name)]; ok {
			return true
		}
	}
	return false
}

type rowParser struct {
	file   string
	legacy bool
	parsed *Parsed
	seen   map[string]bool
}

func (p *rowParser) skip(line int, serial, reason string) {
	p.parsed.Skipped = append(p.parsed.Skipped, RowIssue{File: p.file, Line: line, Serial: serial, Reason: reason})
}

func (p *rowParser) row(index map[string]int, fields []string, line int) {
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}

	rec := model.Record{
		Vendor:             get(colVendor),
		DeviceType:         get(colDeviceType),
		SerialNumber:       get(colSerialNumber),
		HostName:           get(colHostName),
		AssetTag:           get(colAssetTag),
		PartID:             get(colPartID),
		FutureLocation:     get(colFutureLocation),
		CurrentLocation:    get(colCurrentLocation),
		Status:             get(colStatus),
		BackOrdered:        parseBool(get(colBackOrdered)),
		Ready:              parseBool(get(colReady)),
		LegacyDevice:       parseBool(get(colLegacyDevice)),
		Notes:              get(colNotes),
		ProductDescription: get(colProductDescription),
		CreatedBy:          get(colCreatedBy),
		ModifiedBy:         get(colModifiedBy),
	}

	if rec.Vendor == "" || rec.SerialNumber == "" {
		p.skip(line, rec.SerialNumber, ReasonMissingFields)
		return
	}

	if p.legacy {
		status, ok := legacyStatus(rec.Status)
		if !ok {
			p.skip(line, rec.SerialNumber, ReasonInvalidStatus)
			return
		}
		rec.Status = status
	}

	if p.seen[rec.SerialNumber] {
		p.parsed.Duplicates = append(p.parsed.Duplicates, rec.SerialNumber)
		return
	}
	p.seen[rec.SerialNumber] = true

	rec.DateReceived = p.date(get(colDateReceived), colDateReceived, rec.SerialNumber, line)
	rec.Created = p.date(get(colCreated), colCreated, rec.SerialNumber, line)
	rec.Modified = p.date(get(colModified), colModified, rec.SerialNumber, line)
	p.parsed.Records = append(p.parsed.Records, rec)
}

// date parses a date column. Unparsable values are reported and dropped.
func (p *rowParser) date(value, col, serial string, line int) *time.Time {
	if value == "" {
		return nil
	}
	t, ok := ParseDate(value)
	if !ok {
		p.parsed.InvalidDates = append(p.parsed.InvalidDates, RowIssue{
			File:   p.file,
			Line:   line,
			Serial: serial,
			Reason: fmt.Sprintf("invalid %s %q", col, value),
		})
		return nil
	}
	return &t
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// ParseDate accepts the date formats seen in vendor exports.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "yes", "y", "x":
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

func legacyStatus(s string) (string, bool) {
	switch normalize(s) {
	case "received":
		return model.StatusReceived, true
	case "inroute":
		return model.StatusInRoute, true
	case "settodelete":
		return model.StatusSetToDelete, true
	default:
		return "", false
	}
}
