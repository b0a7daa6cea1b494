package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/andrebq/sambro/cmd/sambro/serve"
	"github.com/andrebq/sambro/cmd/sambro/users"
	"github.com/andrebq/sambro/internal/cmdflags"
	"github.com/andrebq/sambro/internal/logutil"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	var level string
	var pretty bool
	app := &cli.App{
		Name:  "sambro",
		Usage: "Users, passwords and cookie sessions",
		Flags: []cli.Flag{
			cmdflags.LogLevel(&level),
			cmdflags.PrettyLog(&pretty),
		},
		Before: func(ctx *cli.Context) error {
			return logutil.Setup(level, pretty)
		},
		Commands: []*cli.Command{
			serve.Cmd(),
			users.Cmd(),
		},
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		log.Error().Err(err).Msg("Application failed")
		os.Exit(1)
	}
}
