package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/erazemk/nettrac/internal/api"
	"github.com/erazemk/nettrac/internal/auth"
	"github.com/erazemk/nettrac/internal/model"
	"github.com/erazemk/nettrac/internal/ratelimit"
	"github.com/erazemk/nettrac/internal/store"
	"github.com/erazemk/nettrac/internal/web"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web interface and JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Usage: "listen address"},
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Value: "admin", Usage: "approver username created on first run"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			closeLog, err := setupLogger(os.Stdout, os.Stderr, cfg.LogPath)
			if err != nil {
				return err
			}
			defer closeLog()

			database, err := openDB(ctx, cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()
			slog.Info("database ready", "path", cfg.DBPath)

			password, err := bootstrapApprover(ctx, database, c.String("user"))
			if err != nil {
				return err
			}
			if password != "" {
				printBootstrap(os.Stdout, c.String("user"), password)
			}

			jwtSecret, err := store.GetJWTSecret(ctx, database)
			if err != nil {
				return fmt.Errorf("getting JWT secret: %w", err)
			}

			// One limiter so API and web logins share a budget per client.
			limiter := ratelimit.New(cfg.LoginRate, cfg.LoginBurst)

			apiRouter := api.NewRouter(database, jwtSecret, cfg, limiter)
			webRouter, err := web.NewRouter(database, jwtSecret, cfg, limiter)
			if err != nil {
				return fmt.Errorf("setting up web router: %w", err)
			}

			mux := http.NewServeMux()
			mux.Handle("/api/", apiRouter)
			mux.Handle("/", webRouter)

			server := &http.Server{
				Addr:              cfg.Addr,
				Handler:           api.LoggingMiddleware(mux),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       120 * time.Second,
			}
			return run(ctx, server)
		},
	}
}

// run serves until SIGINT/SIGTERM and then shuts down gracefully.
func run(ctx context.Context, server *http.Server) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", server.Addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	slog.Info("server stopped, closing database")
	return nil
}

// bootstrapApprover creates an approver with a random password when the
// database has no users yet. It returns the password, or "" if nothing was
// created.
func bootstrapApprover(ctx context.Context, database *sql.DB, username string) (string, error) {
	users, err := store.ListUsers(ctx, database)
	if err != nil {
		return "", err
	}
	if len(users) > 0 {
		return "", nil
	}

	password, err := generatePassword(16)
	if err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}
	if _, err := store.CreateUser(ctx, database, username, hash, model.RoleApprover); err != nil {
		return "", fmt.Errorf("creating approver: %w", err)
	}
	slog.Info("approver account created", "username", username)
	return password, nil
}

func printBootstrap(w io.Writer, username, password string) {
	fmt.Fprintln(w, "Approver account created:")
	fmt.Fprintf(w, "  Username: %s\n", username)
	fmt.Fprintf(w, "  Password: %s\n", password)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Save this password. It cannot be recovered.")
	fmt.Fprintln(w)
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
