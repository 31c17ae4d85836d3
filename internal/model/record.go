package model

import "time"

// Record is a single piece of tracked hardware.
type Record struct {
	ID                 int64      `json:"id"`
	Vendor             string     `json:"vendor"`
	DeviceType         string     `json:"device_type,omitempty"`
	SerialNumber       string     `json:"serial_number"`
	HostName           string     `json:"host_name,omitempty"`
	AssetTag           string     `json:"asset_tag,omitempty"`
	PartID             string     `json:"part_id,omitempty"`
	FutureLocation     string     `json:"future_location,omitempty"`
	CurrentLocation    string     `json:"current_location,omitempty"`
	Status             string     `json:"status,omitempty"`
	DateReceived       *time.Time `json:"date_received,omitempty"`
	BackOrdered        bool       `json:"back_ordered"`
	Ready              bool       `json:"ready"`
	LegacyDevice       bool       `json:"legacy_device"`
	Notes              string     `json:"notes,omitempty"`
	ProductDescription string     `json:"product_description,omitempty"`
	Created            *time.Time `json:"created,omitempty"`
	CreatedBy          string     `json:"created_by,omitempty"`
	Modified           *time.Time `json:"modified,omitempty"`
	ModifiedBy         string     `json:"modified_by,omitempty"`
	PendingDeletion    bool       `json:"pending_deletion"`
	DeletionApproved   bool       `json:"deletion_approved"`
	Version            int64      `json:"version"`
}

// Legacy status values used by the positional CSV format.
const (
	StatusReceived    = "Received"
	StatusInRoute     = "InRoute"
	StatusSetToDelete = "SetToDelete"
)

// State is the deletion workflow state of a record.
type State string

// Workflow states.
const (
	StateLive            State = "live"
	StatePendingDeletion State = "pending_deletion"
	StateRemoved         State = "removed"
)

// State reports where the record sits in the deletion workflow.
// A persisted record is never in StateRemoved.
func (r *Record) State() State {
	if r.PendingDeletion {
		return StatePendingDeletion
	}
	return StateLive
}

// RecordFilter narrows a record listing.
type RecordFilter struct {
	// Search matches vendor or serial number, case-insensitively.
	Search string
	// PendingOnly limits the listing to records awaiting deletion approval.
	PendingOnly bool
}
