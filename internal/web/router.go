package web

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/nettrac/internal/config"
	"github.com/erazemk/nettrac/internal/ratelimit"
	webembed "github.com/erazemk/nettrac/web"
)

// NewRouter creates the web page router with all page routes registered.
func NewRouter(db *sql.DB, jwtSecret string, cfg config.Config, limiter *ratelimit.Limiter) (http.Handler, error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		DB:             db,
		Templates:      templates,
		JWTSecret:      jwtSecret,
		CookieSecure:   cfg.CookieSecure,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxRowsPerFile: cfg.MaxRowsPerFile,
	}

	mux := http.NewServeMux()
	cookieAuth := CookieAuthMiddleware(jwtSecret, db)
	approver := func(h http.HandlerFunc) http.Handler { return cookieAuth(requireApprover(h)) }

	// Static assets.
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(webembed.StaticFS()))))

	// Public routes.
	mux.HandleFunc("GET /login", s.LoginPage)
	mux.Handle("POST /login", limiter.Middleware(http.HandlerFunc(s.LoginSubmit)))
	mux.HandleFunc("POST /logout", s.Logout)

	// Authenticated routes.
	mux.Handle("GET /{$}", cookieAuth(http.RedirectHandler("/records", http.StatusSeeOther)))

	mux.Handle("GET /records", cookieAuth(http.HandlerFunc(s.RecordsPage)))
	mux.Handle("POST /records/import", cookieAuth(http.HandlerFunc(s.ImportSubmit)))
	mux.Handle("POST /records/delete", cookieAuth(http.HandlerFunc(s.BulkDeleteSubmit)))
	mux.Handle("POST /records/delete-all", cookieAuth(http.HandlerFunc(s.DeleteAllSubmit)))
	mux.Handle("GET /records/new", cookieAuth(http.HandlerFunc(s.RecordNewPage)))
	mux.Handle("POST /records/new", cookieAuth(http.HandlerFunc(s.RecordCreateSubmit)))
	mux.Handle("GET /records/{id}", cookieAuth(http.HandlerFunc(s.RecordEditPage)))
	mux.Handle("POST /records/{id}", cookieAuth(http.HandlerFunc(s.RecordUpdateSubmit)))
	mux.Handle("POST /records/{id}/delete", cookieAuth(http.HandlerFunc(s.RecordDeleteSubmit)))
	mux.Handle("GET /export", cookieAuth(http.HandlerFunc(s.ExportDownload)))

	mux.Handle("GET /deletions", approver(s.DeletionsPage))
	mux.Handle("POST /deletions", approver(s.BulkResolveSubmit))
	mux.Handle("POST /deletions/approve-all", approver(s.ApproveAllSubmit))
	mux.Handle("POST /deletions/{id}/approve", approver(s.ApproveSubmit))
	mux.Handle("POST /deletions/{id}/deny", approver(s.DenySubmit))

	mux.Handle("GET /users", approver(s.UsersPage))
	mux.Handle("POST /users", approver(s.UserCreateSubmit))
	mux.Handle("POST /users/{id}/password", approver(s.UserResetPasswordSubmit))
	mux.Handle("POST /users/{id}/role", approver(s.UserUpdateRoleSubmit))

	mux.Handle("GET /settings", cookieAuth(http.HandlerFunc(s.SettingsPage)))
	mux.Handle("POST /settings", cookieAuth(http.HandlerFunc(s.SettingsSubmit)))

	return mux, nil
}
