package serve

import (
	"github.com/andrebq/sambro/auth"
	"github.com/andrebq/sambro/auth/api"
	"github.com/andrebq/sambro/credential"
	"github.com/andrebq/sambro/internal/cmdflags"
	"github.com/andrebq/sambro/internal/httpserver"
	"github.com/andrebq/sambro/userdb"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func Cmd() *cli.Command {
	bindAddr := "localhost:3000"
	var database string
	var insecureCookie bool
	var hashSlots int
	var sessions cmdflags.Sessions
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP server",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "bind",
				Usage:       "Address to bind for incoming requests",
				EnvVars:     []string{"SAMBRO_BIND"},
				Value:       bindAddr,
				Destination: &bindAddr,
			},
			cmdflags.Database(&database),
			&cli.BoolFlag{
				Name:        "insecure-cookie",
				Usage:       "Send the session cookie over plain HTTP (development only)",
				EnvVars:     []string{"SAMBRO_INSECURE_COOKIE"},
				Destination: &insecureCookie,
			},
			&cli.IntFlag{
				Name:        "hash-slots",
				Usage:       "Maximum number of password hashes computed at the same time (0 means one per CPU)",
				Destination: &hashSlots,
			},
		}, sessions.Flags()...),
		Action: func(ctx *cli.Context) error {
			db, err := userdb.Open(ctx.Context, database)
			if err != nil {
				return err
			}
			defer db.Close()
			store, err := sessions.Store(ctx.Context)
			if err != nil {
				return err
			}
			svc := auth.NewService(db, store, credential.NewHasher(credential.DefaultParams(), hashSlots))
			realm := api.NewRealm(svc, insecureCookie)
			handler, err := api.AsHandler(ctx.Context, svc, realm)
			if err != nil {
				return err
			}
			log.Info().Str("database", database).Str("session.backend", sessions.Backend).
				Dur("session.ttl", sessions.TTL).Msg("Serving")
			return httpserver.Serve(ctx.Context, bindAddr, handler)
		},
	}
}
