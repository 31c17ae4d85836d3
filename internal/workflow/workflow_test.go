package workflow

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/nettrac/internal/db"
	"github.com/erazemk/nettrac/internal/model"
	"github.com/erazemk/nettrac/internal/store"
)

var (
	submitter = model.Actor{UserID: 1, Username: "t2", Role: model.RoleSubmitter}
	approver  = model.Actor{UserID: 2, Username: "t3", Role: model.RoleApprover}
	nobody    = model.Actor{Username: "anon"}
)

func seed(t *testing.T, database *sql.DB, serial string) *model.Record {
	t.Helper()
	r, err := store.CreateRecord(context.Background(), database, &model.Record{SerialNumber: serial, Vendor: "Cisco"})
	require.NoError(t, err)
	return r
}

func reload(t *testing.T, database *sql.DB, id int64) *model.Record {
	t.Helper()
	r, err := store.GetRecord(context.Background(), database, id)
	require.NoError(t, err)
	return r
}

func pending(t *testing.T, database *sql.DB, serial string) *model.Record {
	t.Helper()
	r := seed(t, database, serial)
	_, err := Delete(context.Background(), database, submitter, Target{ID: r.ID})
	require.NoError(t, err)
	return reload(t, database, r.ID)
}

func TestSubmitterDeleteFlagsPending(t *testing.T) {
	database := db.NewTestDB(t)
	r := seed(t, database, "SN-1")

	outcome, err := Delete(context.Background(), database, submitter, Target{ID: r.ID, Version: r.Version})
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, outcome)

	got := reload(t, database, r.ID)
	require.NotNil(t, got, "submitter delete must never remove a record")
	assert.Equal(t, model.StatePendingDeletion, got.State())
	assert.False(t, got.DeletionApproved)
	assert.Equal(t, "t2", got.ModifiedBy)

	// Repeating the request leaves the record pending.
	outcome, err = Delete(context.Background(), database, submitter, Target{ID: r.ID})
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, outcome)
	assert.NotNil(t, reload(t, database, r.ID))
}

func TestApproverDeleteRemoves(t *testing.T) {
	database := db.NewTestDB(t)
	live := seed(t, database, "SN-1")
	flagged := pending(t, database, "SN-2")

	for _, r := range []*model.Record{live, flagged} {
		outcome, err := Delete(context.Background(), database, approver, Target{ID: r.ID})
		require.NoError(t, err)
		assert.Equal(t, OutcomeDeleted, outcome)
		assert.Nil(t, reload(t, database, r.ID))
	}
}

func TestDeleteStaleVersion(t *testing.T) {
	database := db.NewTestDB(t)
	r := seed(t, database, "SN-1")

	_, err := Delete(context.Background(), database, approver, Target{ID: r.ID, Version: r.Version + 1})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.NotNil(t, reload(t, database, r.ID))
}

func TestUnknownRoleForbidden(t *testing.T) {
	database := db.NewTestDB(t)
	r := seed(t, database, "SN-1")
	ctx := context.Background()

	_, err := Delete(ctx, database, nobody, Target{ID: r.ID})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = DeleteMany(ctx, database, nobody, []Target{{ID: r.ID}})
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = DeleteAll(ctx, database, nobody)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.NotNil(t, reload(t, database, r.ID))
}

func TestSubmitterCannotResolve(t *testing.T) {
	database := db.NewTestDB(t)
	r := pending(t, database, "SN-1")
	ctx := context.Background()

	_, err := Approve(ctx, database, submitter, Target{ID: r.ID})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = Deny(ctx, database, submitter, Target{ID: r.ID})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = ApproveMany(ctx, database, submitter, []Target{{ID: r.ID}})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = ApproveAll(ctx, database, submitter)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.True(t, reload(t, database, r.ID).PendingDeletion)
}

func TestApprovePending(t *testing.T) {
	database := db.NewTestDB(t)
	r := pending(t, database, "SN-1")

	outcome, err := Approve(context.Background(), database, approver, Target{ID: r.ID, Version: r.Version})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, outcome)
	assert.Nil(t, reload(t, database, r.ID))
}

func TestApproveLiveRecord(t *testing.T) {
	database := db.NewTestDB(t)
	r := seed(t, database, "SN-1")

	_, err := Approve(context.Background(), database, approver, Target{ID: r.ID})
	assert.ErrorIs(t, err, ErrNotPending)
	assert.NotNil(t, reload(t, database, r.ID))
}

func TestDenyRevertsToLive(t *testing.T) {
	database := db.NewTestDB(t)
	r := pending(t, database, "SN-1")

	outcome, err := Deny(context.Background(), database, approver, Target{ID: r.ID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRestored, outcome)

	got := reload(t, database, r.ID)
	require.NotNil(t, got)
	assert.Equal(t, model.StateLive, got.State())
	assert.False(t, got.PendingDeletion)

	_, err = Deny(context.Background(), database, approver, Target{ID: r.ID})
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestMissingRecord(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	_, err := Delete(ctx, database, approver, Target{ID: 999})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = Approve(ctx, database, approver, Target{ID: 999})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = Deny(ctx, database, approver, Target{ID: 999})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBulkDeletePartialSuccess(t *testing.T) {
	database := db.NewTestDB(t)
	r := seed(t, database, "SN-1")
	ctx := context.Background()

	s, err := DeleteMany(ctx, database, approver, []Target{{ID: r.ID}, {ID: 999}})
	require.NoError(t, err)
	assert.Equal(t, []Result{
		{ID: r.ID, Outcome: OutcomeDeleted},
		{ID: 999, Outcome: OutcomeNotFound},
	}, s.Results)
	assert.Equal(t, 1, s.Counts[OutcomeDeleted])
	assert.Equal(t, 1, s.Counts[OutcomeNotFound])
	assert.Nil(t, reload(t, database, r.ID))
}

func TestBulkSubmitterFlags(t *testing.T) {
	database := db.NewTestDB(t)
	a := seed(t, database, "SN-1")
	b := seed(t, database, "SN-2")

	s, err := DeleteMany(context.Background(), database, submitter, []Target{{ID: a.ID}, {ID: 999}, {ID: b.ID}})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Counts[OutcomePending])
	assert.Equal(t, 1, s.Counts[OutcomeNotFound])
	assert.True(t, reload(t, database, a.ID).PendingDeletion)
	assert.True(t, reload(t, database, b.ID).PendingDeletion)
}

func TestBulkApproveAndDeny(t *testing.T) {
	database := db.NewTestDB(t)
	a := pending(t, database, "SN-1")
	b := pending(t, database, "SN-2")
	live := seed(t, database, "SN-3")
	ctx := context.Background()

	s, err := ApproveMany(ctx, database, approver, []Target{{ID: a.ID}, {ID: live.ID}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, s.Results[0].Outcome)
	assert.Equal(t, OutcomeFailed, s.Results[1].Outcome)
	assert.Equal(t, ErrNotPending.Error(), s.Results[1].Error)

	s, err = DenyMany(ctx, database, approver, []Target{{ID: b.ID}, {ID: a.ID}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRestored, s.Results[0].Outcome)
	assert.Equal(t, OutcomeNotFound, s.Results[1].Outcome)
	assert.False(t, reload(t, database, b.ID).PendingDeletion)
}

func TestApproveAll(t *testing.T) {
	database := db.NewTestDB(t)
	pending(t, database, "SN-1")
	pending(t, database, "SN-2")
	live := seed(t, database, "SN-3")

	n, err := ApproveAll(context.Background(), database, approver)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	all, err := store.ListRecords(context.Background(), database, model.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, live.ID, all[0].ID)
}

func TestDeleteAllByRole(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seed(t, database, "SN-1")
	seed(t, database, "SN-2")

	outcome, n, err := DeleteAll(ctx, database, submitter)
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, outcome)
	assert.EqualValues(t, 2, n)

	flagged, err := store.ListRecords(ctx, database, model.RecordFilter{PendingOnly: true})
	require.NoError(t, err)
	assert.Len(t, flagged, 2)

	outcome, n, err = DeleteAll(ctx, database, approver)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, outcome)
	assert.EqualValues(t, 2, n)

	all, err := store.ListRecords(ctx, database, model.RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStaleTargetAfterRecreate(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	old := seed(t, database, "SN-OLD")
	stale := Target{ID: old.ID, Version: old.Version}

	_, err := Delete(ctx, database, approver, stale)
	require.NoError(t, err)
	fresh := seed(t, database, "SN-NEW")
	require.NotEqual(t, old.ID, fresh.ID)

	// Replaying the same request must not reach the new record.
	_, err = Delete(ctx, database, approver, stale)
	assert.ErrorIs(t, err, store.ErrNotFound)
	s, err := ApproveMany(ctx, database, approver, []Target{stale})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, s.Results[0].Outcome)
	assert.NotNil(t, reload(t, database, fresh.ID))
}
