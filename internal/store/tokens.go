package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// RevokeToken adds a session token's JTI to the revocation list.
func RevokeToken(ctx context.Context, db *sql.DB, jti string, expiresAt time.Time) error {
	err := withRetry(ctx, func() error {
		_, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
			jti, expiresAt.UTC(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}

	// Expired tokens fail validation anyway.
	if _, err := db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, time.Now().UTC(),
	); err != nil {
		slog.Warn("failed to prune revoked tokens", "error", err)
	}

	return nil
}

// IsTokenRevoked checks if a token's JTI has been revoked.
func IsTokenRevoked(ctx context.Context, db *sql.DB, jti string) (bool, error) {
	var count int
	err := withRetry(ctx, func() error {
		return db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?`, jti,
		).Scan(&count)
	})
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return count > 0, nil
}
