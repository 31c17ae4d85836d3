package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/nettrac/internal/model"
	"github.com/erazemk/nettrac/internal/store"
)

// ErrUnauthenticated is returned for callers without a recognized role.
var ErrUnauthenticated = errors.New("not authenticated")

// Authorize resolves validated claims into an Actor. It is the only place
// role names are interpreted; everything downstream works with model.Role.
func Authorize(claims *Claims) (model.Actor, error) {
	if claims == nil || claims.Username == "" {
		return model.Actor{}, ErrUnauthenticated
	}

	role, ok := model.ParseRole(claims.Role)
	if !ok {
		return model.Actor{}, ErrUnauthenticated
	}

	return model.Actor{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     role,
	}, nil
}

// Resolve loads the token's user and authorizes the stored role. The role in
// the token is ignored so that demotions and deletions apply to sessions that
// are already open.
func Resolve(ctx context.Context, db *sql.DB, claims *Claims) (model.Actor, error) {
	if claims == nil {
		return model.Actor{}, ErrUnauthenticated
	}

	user, err := store.GetUser(ctx, db, claims.UserID)
	if err != nil {
		return model.Actor{}, fmt.Errorf("loading session user: %w", err)
	}
	if user == nil || user.DeletedAt != nil || user.Username != claims.Username {
		return model.Actor{}, ErrUnauthenticated
	}

	return Authorize(&Claims{UserID: user.ID, Username: user.Username, Role: string(user.Role)})
}
