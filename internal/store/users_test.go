package store

import (
	"context"
	"testing"

	"github.com/erazemk/nettrac/internal/db"
	"github.com/erazemk/nettrac/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "testuser", "hash123", model.RoleSubmitter)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", user.Username)
	}
	if user.Role != model.RoleSubmitter {
		t.Errorf("expected role 'submitter', got %q", user.Role)
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", got.Username)
	}
}

func TestGetUserByUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "alice", "hash", model.RoleApprover)

	user, err := GetUserByUsername(ctx, database, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Username != "alice" {
		t.Errorf("expected 'alice', got %q", user.Username)
	}

	missing, err := GetUserByUsername(ctx, database, "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestListUsers(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "a", "hash", model.RoleSubmitter)
	CreateUser(ctx, database, "b", "hash", model.RoleApprover)

	users, err := ListUsers(ctx, database)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}
}

func TestDeleteUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "deleteme", "hash", model.RoleSubmitter)
	DeleteUser(ctx, database, user.ID)

	users, _ := ListUsers(ctx, database)
	if len(users) != 0 {
		t.Errorf("expected 0 users after delete, got %d", len(users))
	}
}

func TestUpdateUserPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "pwuser", "oldhash", model.RoleSubmitter)
	UpdateUserPassword(ctx, database, user.ID, "newhash")

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "newhash" {
		t.Errorf("expected password hash 'newhash', got %q", got.PasswordHash)
	}
}

func TestDeletedUserCannotBeFoundByUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "gone", "hash", model.RoleSubmitter)
	DeleteUser(ctx, database, user.ID)

	got, err := GetUserByUsername(ctx, database, "gone")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got != nil {
		t.Error("expected soft-deleted user to be hidden")
	}

	// The username can be reused.
	if _, err := CreateUser(ctx, database, "gone", "hash", model.RoleApprover); err != nil {
		t.Fatalf("re-creating user: %v", err)
	}
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "dup", "hash", model.RoleSubmitter)
	_, err := CreateUser(ctx, database, "dup", "hash", model.RoleSubmitter)
	if err != ErrUsernameTaken {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestUpdateUserRole(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "promote", "hash", model.RoleSubmitter)
	if err := UpdateUserRole(ctx, database, user.ID, model.RoleApprover); err != nil {
		t.Fatalf("UpdateUserRole: %v", err)
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.Role != model.RoleApprover {
		t.Errorf("expected role approver, got %q", got.Role)
	}
}

func TestCountApprovers(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "t2", "hash", model.RoleSubmitter)
	a, _ := CreateUser(ctx, database, "t3", "hash", model.RoleApprover)
	b, _ := CreateUser(ctx, database, "t3b", "hash", model.RoleApprover)
	DeleteUser(ctx, database, b.ID)

	n, err := CountApprovers(ctx, database)
	if err != nil {
		t.Fatalf("CountApprovers: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 active approver, got %d", n)
	}

	UpdateUserRole(ctx, database, a.ID, model.RoleSubmitter)
	if n, _ := CountApprovers(ctx, database); n != 0 {
		t.Errorf("expected 0 approvers after demotion, got %d", n)
	}
}
