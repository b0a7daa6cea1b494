package users

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/andrebq/sambro/auth"
	"github.com/andrebq/sambro/credential"
	"github.com/andrebq/sambro/internal/cmdflags"
	"github.com/andrebq/sambro/session"
	"github.com/andrebq/sambro/userdb"
	"github.com/urfave/cli/v2"
)

func Cmd() *cli.Command {
	var db *userdb.DB
	var database string
	return &cli.Command{
		Name:  "users",
		Usage: "Manage the user database without starting the server",
		Flags: []cli.Flag{
			cmdflags.Database(&database),
		},
		Before: func(ctx *cli.Context) error {
			var err error
			db, err = userdb.Open(ctx.Context, database)
			return err
		},
		After: func(ctx *cli.Context) error {
			if db == nil {
				return nil
			}
			return db.Close()
		},
		Subcommands: []*cli.Command{
			addCmd(&db),
			listCmd(&db),
		},
	}
}

func addCmd(db **userdb.DB) *cli.Command {
	var name string
	var email string
	return &cli.Command{
		Name:  "add",
		Usage: "Register a new user (password is read from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "name",
				Aliases:     []string{"n"},
				Usage:       "Display name of the user",
				Destination: &name,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "email",
				Aliases:     []string{"e"},
				Usage:       "Email, also used as login",
				Destination: &email,
				Required:    true,
			},
		},
		Action: func(ctx *cli.Context) error {
			sc := bufio.NewScanner(ctx.App.Reader)
			if !sc.Scan() {
				if sc.Err() != nil {
					return sc.Err()
				}
				return errors.New("missing password from stdin")
			}
			password := strings.TrimRight(sc.Text(), "\r\n")
			svc := auth.NewService(*db, session.NewShardedStore(session.Options{}), credential.NewHasher(credential.DefaultParams(), 0))
			u, err := svc.Register(ctx.Context, name, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(ctx.App.Writer, u.ID)
			return nil
		},
	}
}

func listCmd(db **userdb.DB) *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List registered users",
		Action: func(ctx *cli.Context) error {
			users, err := (*db).ListUsers(ctx.Context)
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Fprintf(ctx.App.Writer, "%v\t%v\t%v\n", u.ID, u.Email, u.Name)
			}
			return nil
		},
	}
}
