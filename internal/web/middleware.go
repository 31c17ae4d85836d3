package web

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/nettrac/internal/auth"
	"github.com/erazemk/nettrac/internal/model"
)

type webContextKey string

const (
	webClaimsKey webContextKey = "webclaims"
	webActorKey  webContextKey = "webactor"
)

const cookieName = "token"

// CookieAuthMiddleware validates the JWT cookie, checks token revocation and
// resolves the caller's role. Failures redirect to the login page.
func CookieAuthMiddleware(secret string, db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			claims, err := auth.Check(r.Context(), db, secret, cookie.Value)
			if err != nil {
				slog.Warn("rejected session cookie", "error", err, "remote", r.RemoteAddr)
				clearAuthCookie(w)
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			actor, err := auth.Resolve(r.Context(), db, claims)
			if err != nil && !errors.Is(err, auth.ErrUnauthenticated) {
				slog.Error("failed to resolve session", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if err != nil {
				clearAuthCookie(w)
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), webClaimsKey, claims)
			ctx = context.WithValue(ctx, webActorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireApprover rejects callers that cannot resolve deletions.
func requireApprover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetWebActor(r.Context()).Role.CanDelete() {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clearAuthCookie clears the authentication cookie with consistent attributes.
func clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// GetWebClaims retrieves the JWT claims from web context.
func GetWebClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(webClaimsKey).(*auth.Claims)
	return claims
}

// GetWebActor retrieves the authorized caller from web context.
func GetWebActor(ctx context.Context) model.Actor {
	actor, _ := ctx.Value(webActorKey).(model.Actor)
	return actor
}
