package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/nettrac/internal/auth"
	"github.com/erazemk/nettrac/internal/model"
	"github.com/erazemk/nettrac/internal/store"
)

// UsersPage handles GET /users (approvers only).
func (s *Server) UsersPage(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), s.DB)
	data := &struct {
		PageData
		Users []model.User
		Roles []model.Role
	}{
		PageData: page(r, "Users"),
		Users:    users,
		Roles:    []model.Role{model.RoleSubmitter, model.RoleApprover},
	}
	if err != nil {
		slog.Error("failed to list users", "error", err)
		data.Error = "Could not load users."
	}
	data.Success = r.URL.Query().Get("msg")
	if e := r.URL.Query().Get("err"); e != "" {
		data.Error = e
	}
	s.Templates.Render(w, "users.html", data)
}

// UserCreateSubmit handles POST /users (approvers only).
func (s *Server) UserCreateSubmit(w http.ResponseWriter, r *http.Request) {
	actor := GetWebActor(r.Context())
	username := r.FormValue("username")
	password := r.FormValue("password")

	role, ok := model.ParseRole(r.FormValue("role"))
	if username == "" || !ok {
		redirectWithMessage(w, r, "/users", "", "Enter a username and pick a role.")
		return
	}
	if err := model.ValidatePassword(password); err != nil {
		redirectWithMessage(w, r, "/users", "", err.Error())
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	if _, err := store.CreateUser(r.Context(), s.DB, username, hash, role); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			redirectWithMessage(w, r, "/users", "", "That username is taken.")
			return
		}
		slog.Error("failed to create user", "error", err)
		redirectWithMessage(w, r, "/users", "", "Could not create the user.")
		return
	}

	slog.Info("user created", "user", actor.Username, "new_user", username, "role", role)
	redirectWithMessage(w, r, "/users", "User "+username+" created.", "")
}

// UserResetPasswordSubmit handles POST /users/{id}/password (approvers only).
func (s *Server) UserResetPasswordSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	newPassword := r.FormValue("new_password")
	if err := model.ValidatePassword(newPassword); err != nil {
		redirectWithMessage(w, r, "/users", "", err.Error())
		return
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	if err := store.UpdateUserPassword(r.Context(), s.DB, id, hash); err != nil {
		slog.Error("failed to reset password", "error", err)
		redirectWithMessage(w, r, "/users", "", "Could not reset the password.")
		return
	}
	slog.Info("user password reset", "user", GetWebActor(r.Context()).Username, "target_id", id)
	redirectWithMessage(w, r, "/users", "Password reset.", "")
}

// UserUpdateRoleSubmit handles POST /users/{id}/role (approvers only).
func (s *Server) UserUpdateRoleSubmit(w http.ResponseWriter, r *http.Request) {
	actor := GetWebActor(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if id == actor.UserID {
		redirectWithMessage(w, r, "/users", "", "You cannot change your own role.")
		return
	}

	role, ok := model.ParseRole(r.FormValue("role"))
	if !ok {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	if err := store.UpdateUserRole(r.Context(), s.DB, id, role); err != nil {
		slog.Error("failed to update role", "error", err)
		redirectWithMessage(w, r, "/users", "", "Could not change the role.")
		return
	}
	slog.Info("user role updated", "user", actor.Username, "target_id", id, "new_role", role)
	redirectWithMessage(w, r, "/users", "Role updated.", "")
}

// SettingsPage handles GET /settings.
func (s *Server) SettingsPage(w http.ResponseWriter, r *http.Request) {
	data := page(r, "Settings")
	data.Success = r.URL.Query().Get("msg")
	s.Templates.Render(w, "settings.html", &data)
}

// SettingsSubmit handles POST /settings (change own password).
func (s *Server) SettingsSubmit(w http.ResponseWriter, r *http.Request) {
	actor := GetWebActor(r.Context())
	fail := func(msg string) {
		data := page(r, "Settings")
		data.Error = msg
		s.Templates.Render(w, "settings.html", &data)
	}

	currentPassword := r.FormValue("current_password")
	newPassword := r.FormValue("new_password")
	if currentPassword == "" || newPassword == "" {
		fail("Enter your current and new password.")
		return
	}
	if err := model.ValidatePassword(newPassword); err != nil {
		fail(err.Error())
		return
	}

	if _, err := auth.Authenticate(r.Context(), s.DB, actor.Username, currentPassword); err != nil {
		fail("Your current password is wrong.")
		return
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		fail("Could not save the password.")
		return
	}
	if err := store.UpdateUserPassword(r.Context(), s.DB, actor.UserID, hash); err != nil {
		slog.Error("failed to update password", "error", err)
		fail("Could not save the password.")
		return
	}

	slog.Info("user changed own password", "user", actor.Username)
	redirectWithMessage(w, r, "/settings", "Password changed.", "")
}
