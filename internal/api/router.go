package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/nettrac/internal/config"
	"github.com/erazemk/nettrac/internal/model"
	"github.com/erazemk/nettrac/internal/ratelimit"
)

// NewRouter creates the API router with all endpoints registered. Login
// attempts are throttled by limiter.
func NewRouter(db *sql.DB, jwtSecret string, cfg config.Config, limiter *ratelimit.Limiter) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	recordsHandler := &RecordsHandler{DB: db}
	deletionsHandler := &DeletionsHandler{DB: db}
	csvHandler := &CSVHandler{DB: db, MaxUploadBytes: cfg.MaxUploadBytes, MaxRowsPerFile: cfg.MaxRowsPerFile}

	authMW := AuthMiddleware(jwtSecret, db)
	requireApprover := RequireRole(model.RoleApprover)

	// Public: login.
	mux.Handle("POST /api/auth/login", limiter.Middleware(http.HandlerFunc(authHandler.Login)))

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (approvers only).
	mux.Handle("GET /api/users", authMW(requireApprover(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireApprover(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireApprover(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireApprover(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireApprover(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireApprover(http.HandlerFunc(usersHandler.Delete))))

	// Records.
	mux.Handle("GET /api/records", authMW(http.HandlerFunc(recordsHandler.List)))
	mux.Handle("POST /api/records", authMW(http.HandlerFunc(recordsHandler.Create)))
	mux.Handle("GET /api/records/{id}", authMW(http.HandlerFunc(recordsHandler.Get)))
	mux.Handle("PUT /api/records/{id}", authMW(http.HandlerFunc(recordsHandler.Update)))

	// Deletion workflow. Role checks happen in the workflow package.
	mux.Handle("DELETE /api/records/{id}", authMW(http.HandlerFunc(deletionsHandler.Delete)))
	mux.Handle("POST /api/records/{id}/approve", authMW(http.HandlerFunc(deletionsHandler.Approve)))
	mux.Handle("POST /api/records/{id}/deny", authMW(http.HandlerFunc(deletionsHandler.Deny)))
	mux.Handle("POST /api/records/delete", authMW(http.HandlerFunc(deletionsHandler.DeleteMany)))
	mux.Handle("POST /api/records/delete-all", authMW(http.HandlerFunc(deletionsHandler.DeleteAll)))
	mux.Handle("POST /api/deletions/approve", authMW(http.HandlerFunc(deletionsHandler.ApproveMany)))
	mux.Handle("POST /api/deletions/deny", authMW(http.HandlerFunc(deletionsHandler.DenyMany)))
	mux.Handle("POST /api/deletions/approve-all", authMW(http.HandlerFunc(deletionsHandler.ApproveAll)))

	// CSV.
	mux.Handle("POST /api/import", authMW(http.HandlerFunc(csvHandler.Import)))
	mux.Handle("GET /api/export", authMW(http.HandlerFunc(csvHandler.Export)))

	return mux
}
