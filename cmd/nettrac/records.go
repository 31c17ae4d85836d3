package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/erazemk/nettrac/internal/csvio"
	"github.com/erazemk/nettrac/internal/model"
	"github.com/erazemk/nettrac/internal/store"
)

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import records from CSV files",
		ArgsUsage: "<file.csv>...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "as", Value: "cli", Usage: "username recorded as creator of imported records"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.NArg() == 0 {
				return fmt.Errorf("no files given")
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			database, err := openDB(ctx, cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()

			actor, err := cliActor(ctx, database, c.String("as"))
			if err != nil {
				return err
			}

			var files []csvio.File
			for _, path := range c.Args().Slice() {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("opening %s: %w", path, err)
				}
				defer f.Close()
				files = append(files, csvio.File{Name: filepath.Base(path), Body: f})
			}

			im := &csvio.Importer{DB: database, MaxRowsPerFile: cfg.MaxRowsPerFile}
			printReport(c.Root().Writer, im.Import(ctx, actor, files))
			return nil
		},
	}
}

// cliActor resolves the username to a stored user when one exists, so
// attribution matches what the web interface would record.
func cliActor(ctx context.Context, database *sql.DB, username string) (model.Actor, error) {
	u, err := store.GetUserByUsername(ctx, database, username)
	if err != nil {
		return model.Actor{}, err
	}
	if u == nil {
		return model.Actor{Username: username}, nil
	}
	return model.Actor{UserID: u.ID, Username: u.Username, Role: u.Role}, nil
}

func printReport(w io.Writer, r *csvio.Report) {
	fmt.Fprintf(w, "Files processed: %d\n", r.Files)
	fmt.Fprintf(w, "New records:     %d\n", r.NewRecords)
	fmt.Fprintf(w, "Duplicates:      %d\n", len(r.Duplicates))
	for _, sn := range r.Duplicates {
		fmt.Fprintf(w, "  %s\n", sn)
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped rows:    %d\n", len(r.Skipped))
		for _, s := range r.Skipped {
			fmt.Fprintf(w, "  %s:%d %s\n", s.File, s.Line, s.Reason)
		}
	}
	if len(r.InvalidDates) > 0 {
		fmt.Fprintf(w, "Invalid dates:   %d\n", len(r.InvalidDates))
		for _, s := range r.InvalidDates {
			fmt.Fprintf(w, "  %s:%d %s %s\n", s.File, s.Line, s.Serial, s.Reason)
		}
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "Error: %s: %s\n", e.File, e.Error)
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export all records as CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file (default: stdout)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			database, err := openDB(ctx, cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()

			var w io.Writer = c.Root().Writer
			if path := c.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("creating %s: %w", path, err)
				}
				defer f.Close()
				w = f
			}

			n, err := csvio.Export(ctx, database, w)
			if err != nil {
				return err
			}
			if c.IsSet("output") {
				fmt.Fprintf(c.Root().ErrWriter, "Exported %d records to %s\n", n, c.String("output"))
			}
			return nil
		},
	}
}
