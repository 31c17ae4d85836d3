package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/erazemk/nettrac/internal/auth"
	"github.com/erazemk/nettrac/internal/model"
	"github.com/erazemk/nettrac/internal/store"
)

func userCommand() *cli.Command {
	passwordFlag := &cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "password (default: generated)"}

	return &cli.Command{
		Name:  "user",
		Usage: "Manage user accounts",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create a user",
				ArgsUsage: "<username>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role", Aliases: []string{"r"}, Value: string(model.RoleSubmitter), Usage: "submitter or approver"},
					passwordFlag,
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					username := c.Args().First()
					if username == "" {
						return fmt.Errorf("username is required")
					}
					role, ok := model.ParseRole(c.String("role"))
					if !ok {
						return fmt.Errorf("unknown role %q", c.String("role"))
					}
					password, generated, err := passwordArg(c.String("password"))
					if err != nil {
						return err
					}
					hash, err := auth.HashPassword(password)
					if err != nil {
						return err
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

					u, err := store.CreateUser(ctx, database, username, hash, role)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.Root().Writer, "Created %s (%s)\n", u.Username, u.Role)
					if generated {
						fmt.Fprintf(c.Root().Writer, "Password: %s\n", password)
					}
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List users",
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

					users, err := store.ListUsers(ctx, database)
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(c.Root().Writer, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tUSERNAME\tROLE\tCREATED")
					for _, u := range users {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, u.CreatedAt.Format("2006-01-02"))
					}
					return tw.Flush()
				},
			},
			{
				Name:      "passwd",
				Usage:     "Reset a user's password",
				ArgsUsage: "<username>",
				Flags:     []cli.Flag{passwordFlag},
				Action: func(ctx context.Context, c *cli.Command) error {
					username := c.Args().First()
					if username == "" {
						return fmt.Errorf("username is required")
					}
					password, generated, err := passwordArg(c.String("password"))
					if err != nil {
						return err
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

					u, err := store.GetUserByUsername(ctx, database, username)
					if err != nil {
						return err
					}
					if u == nil {
						return fmt.Errorf("user %q not found", username)
					}
					hash, err := auth.HashPassword(password)
					if err != nil {
						return err
					}
					if err := store.UpdateUserPassword(ctx, database, u.ID, hash); err != nil {
						return err
					}
					fmt.Fprintf(c.Root().Writer, "Password updated for %s\n", u.Username)
					if generated {
						fmt.Fprintf(c.Root().Writer, "Password: %s\n", password)
					}
					return nil
				},
			},
		},
	}
}

// passwordArg validates an explicit password or generates one when empty.
func passwordArg(password string) (string, bool, error) {
	if password == "" {
		p, err := generatePassword(16)
		return p, true, err
	}
	if err := model.ValidatePassword(password); err != nil {
		return "", false, err
	}
	return password, false, nil
}
