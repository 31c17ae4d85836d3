// Command nettrac serves the network hardware inventory and manages it from
// the command line.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/erazemk/nettrac/internal/config"
	"github.com/erazemk/nettrac/internal/db"
)

func main() {
	root := &cli.Command{
		Name:  "nettrac",
		Usage: "Network hardware inventory with CSV import and approved deletions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db", Aliases: []string{"d"}, Usage: "SQLite database path (env " + config.EnvDB + ")"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Usage: "also append logs to this file (env " + config.EnvLog + ")"},
		},
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Commands: []*cli.Command{
			serveCommand(),
			importCommand(),
			exportCommand(),
			userCommand(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies flags the user set explicitly.
func loadConfig(c *cli.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}
	if c.IsSet("log") {
		cfg.LogPath = c.String("log")
	}
	if c.IsSet("addr") {
		cfg.Addr = c.String("addr")
	}
	return cfg, nil
}

// openDB opens the database and applies pending migrations.
func openDB(ctx context.Context, path string) (*sql.DB, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return database, nil
}
