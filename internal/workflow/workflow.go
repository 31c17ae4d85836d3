// Package workflow implements the deletion state machine for inventory
// records: Live, PendingDeletion and Removed.
//
// Every function takes an already authorized model.Actor. Submitters can only
// move records into PendingDeletion; approvers remove records and resolve
// pending requests.
package workflow

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/erazemk/nettrac/internal/model"
	"github.com/erazemk/nettrac/internal/store"
)

var (
	// ErrForbidden is returned when the actor's role does not allow the transition.
	ErrForbidden = errors.New("not allowed for this role")
	// ErrNotPending is returned when approving or denying a live record.
	ErrNotPending = errors.New("record is not pending deletion")
)

// Outcome is the result of a transition on one record.
type Outcome string

// Outcomes.
const (
	OutcomeDeleted  Outcome = "deleted"
	OutcomePending  Outcome = "pending"
	OutcomeRestored Outcome = "restored"
	OutcomeNotFound Outcome = "not_found"
	OutcomeFailed   Outcome = "failed"
)

// Target identifies a record and the version the caller last saw. A zero
// Version means the caller holds no version and accepts the current one.
type Target struct {
	ID      int64 `json:"id"`
	Version int64 `json:"version,omitempty"`
}

// load reads the target record and resolves its version.
func load(ctx context.Context, db *sql.DB, t Target) (*model.Record, error) {
	r, err := store.GetRecord(ctx, db, t.ID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, store.ErrNotFound
	}
	if t.Version != 0 && t.Version != r.Version {
		return nil, store.ErrConflict
	}
	return r, nil
}

// Delete applies a delete request. Approvers remove the record outright,
// whatever its state. Submitters flag it as pending deletion; flagging a
// record that is already pending is a no-op.
func Delete(ctx context.Context, db *sql.DB, actor model.Actor, t Target) (Outcome, error) {
	if !actor.Role.CanRequestDeletion() {
		return "", ErrForbidden
	}

	r, err := load(ctx, db, t)
	if err != nil {
		return "", err
	}

	if actor.Role.CanDelete() {
		if err := store.DeleteRecord(ctx, db, r.ID, r.Version); err != nil {
			return "", err
		}
		slog.Info("record deleted", "user", actor.Username, "id", r.ID, "serial", r.SerialNumber)
		return OutcomeDeleted, nil
	}

	if r.PendingDeletion {
		return OutcomePending, nil
	}
	if err := store.SetPendingDeletion(ctx, db, r.ID, r.Version, true, actor.Username); err != nil {
		return "", err
	}
	slog.Info("record deletion requested", "user", actor.Username, "id", r.ID, "serial", r.SerialNumber)
	return OutcomePending, nil
}

// Approve removes a record that is pending deletion.
func Approve(ctx context.Context, db *sql.DB, actor model.Actor, t Target) (Outcome, error) {
	if !actor.Role.CanDelete() {
		return "", ErrForbidden
	}

	r, err := load(ctx, db, t)
	if err != nil {
		return "", err
	}
	if !r.PendingDeletion {
		return "", ErrNotPending
	}

	if err := store.DeleteRecord(ctx, db, r.ID, r.Version); err != nil {
		return "", err
	}
	slog.Info("record deletion approved", "user", actor.Username, "id", r.ID, "serial", r.SerialNumber)
	return OutcomeDeleted, nil
}

// Deny returns a pending record to the live state.
func Deny(ctx context.Context, db *sql.DB, actor model.Actor, t Target) (Outcome, error) {
	if !actor.Role.CanDelete() {
		return "", ErrForbidden
	}

	r, err := load(ctx, db, t)
	if err != nil {
		return "", err
	}
	if !r.PendingDeletion {
		return "", ErrNotPending
	}

	if err := store.SetPendingDeletion(ctx, db, r.ID, r.Version, false, actor.Username); err != nil {
		return "", err
	}
	slog.Info("record deletion denied", "user", actor.Username, "id", r.ID, "serial", r.SerialNumber)
	return OutcomeRestored, nil
}

// Result is the per-record outcome of a bulk transition.
type Result struct {
	ID      int64   `json:"id"`
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
}

// Summary counts bulk results by outcome.
type Summary struct {
	Results []Result        `json:"results"`
	Counts  map[Outcome]int `json:"counts"`
}

type transition func(context.Context, *sql.DB, model.Actor, Target) (Outcome, error)

// bulk applies fn to each target independently. A failing item is recorded
// and processing moves on to the next one.
func bulk(ctx context.Context, db *sql.DB, actor model.Actor, targets []Target, fn transition) *Summary {
	s := &Summary{
		Results: make([]Result, 0, len(targets)),
		Counts:  make(map[Outcome]int),
	}
	for _, t := range targets {
		res := Result{ID: t.ID}
		outcome, err := fn(ctx, db, actor, t)
		switch {
		case err == nil:
			res.Outcome = outcome
		case errors.Is(err, store.ErrNotFound):
			res.Outcome = OutcomeNotFound
		default:
			res.Outcome = OutcomeFailed
			res.Error = err.Error()
			slog.Warn("bulk transition failed", "user", actor.Username, "id", t.ID, "error", err)
		}
		s.Results = append(s.Results, res)
		s.Counts[res.Outcome]++
	}
	return s
}

// DeleteMany applies Delete to each target.
func DeleteMany(ctx context.Context, db *sql.DB, actor model.Actor, targets []Target) (*Summary, error) {
	if !actor.Role.CanRequestDeletion() {
		return nil, ErrForbidden
	}
	return bulk(ctx, db, actor, targets, Delete), nil
}

// ApproveMany applies Approve to each target.
func ApproveMany(ctx context.Context, db *sql.DB, actor model.Actor, targets []Target) (*Summary, error) {
	if !actor.Role.CanDelete() {
		return nil, ErrForbidden
	}
	return bulk(ctx, db, actor, targets, Approve), nil
}

// DenyMany applies Deny to each target.
func DenyMany(ctx context.Context, db *sql.DB, actor model.Actor, targets []Target) (*Summary, error) {
	if !actor.Role.CanDelete() {
		return nil, ErrForbidden
	}
	return bulk(ctx, db, actor, targets, Deny), nil
}

// ApproveAll removes every record pending deletion and returns the count.
func ApproveAll(ctx context.Context, db *sql.DB, actor model.Actor) (int64, error) {
	if !actor.Role.CanDelete() {
		return 0, ErrForbidden
	}
	n, err := store.DeletePendingRecords(ctx, db)
	if err != nil {
		return 0, err
	}
	slog.Info("all pending deletions approved", "user", actor.Username, "count", n)
	return n, nil
}

// DeleteAll removes every record when the actor is an approver. For a
// submitter every live record is flagged as pending deletion instead. The
// returned outcome says which happened.
func DeleteAll(ctx context.Context, db *sql.DB, actor model.Actor) (Outcome, int64, error) {
	switch {
	case actor.Role.CanDelete():
		n, err := store.DeleteAllRecords(ctx, db)
		if err != nil {
			return "", 0, err
		}
		slog.Info("all records deleted", "user", actor.Username, "count", n)
		return OutcomeDeleted, n, nil
	case actor.Role.CanRequestDeletion():
		n, err := store.MarkAllPending(ctx, db, actor.Username)
		if err != nil {
			return "", 0, err
		}
		slog.Info("deletion requested for all records", "user", actor.Username, "count", n)
		return OutcomePending, n, nil
	default:
		return "", 0, ErrForbidden
	}
}
