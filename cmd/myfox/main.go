// Package main provides the implementation of the myfox CLI.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bartekpacia/myfox/cfg"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v2"
)

var config *cfg.Config

// This is set by GoReleaser, see https://goreleaser.com/cookbooks/using-main.version
var version = "dev"

func main() {
	app := &cli.App{
		Name:                 "myfox",
		Usage:                "Control a home secured by Myfox",
		Version:              version,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "output logs in JSON Lines format",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "show debug logs",
			},
			&cli.StringSliceFlag{
				Name:  "config",
				Usage: "read config from `FILE`, can be repeated",
			},
		},
		Before: func(c *cli.Context) error {
			setUpLogging(c.Bool("json"), c.Bool("debug"))

			paths := cfg.DefaultPaths()
			paths = append(paths, c.StringSlice("config")...)

			var err error
			config, err = cfg.Load(paths...)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			slog.Debug("loaded config", slog.String("config", config.String()))
			return nil
		},
		Commands: []*cli.Command{
			&homeCommand,
			&stateCommand,
			&scenarioCommand,
			&domoticCommand,
			&heatingCommand,
			&alarmCommand,
		},
		CommandNotFound: func(c *cli.Context, command string) {
			log.Printf("invalid command '%s'. See 'myfox --help'\n", command)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := app.RunContext(ctx, os.Args)
	if err != nil {
		slog.Error("exit", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func setUpLogging(json, debug bool) {
	var level slog.Level
	if debug {
		level = slog.LevelDebug
	} else {
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.TimeOnly})
	}
	slog.SetDefault(slog.New(handler))
}
