// Package main provides the implementation of the myfoxd daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bartekpacia/myfox/cfg"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v2"
)

// This is set by GoReleaser, see https://goreleaser.com/cookbooks/using-main.version
var version = "dev"

func main() {
	app := &cli.App{
		Name:    "myfoxd",
		Usage:   "Bridge a home secured by Myfox with HomeKit, MQTT and InfluxDB",
		Version: version,
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
			&cli.IntFlag{
				Name:  "port",
				Usage: "port of the HTTP API (default: daemon.port from config)",
			},
		},
		Before: func(c *cli.Context) error {
			var level slog.Level
			if c.Bool("debug") {
				level = slog.LevelDebug
			} else {
				level = slog.LevelInfo
			}

			if c.Bool("json") {
				opts := slog.HandlerOptions{Level: level}
				handler := slog.NewJSONHandler(os.Stdout, &opts)
				slog.SetDefault(slog.New(handler))
			} else {
				opts := tint.Options{Level: level, TimeFormat: time.TimeOnly}
				handler := tint.NewHandler(os.Stdout, &opts)
				slog.SetDefault(slog.New(handler))
			}

			return nil
		},
		Action: func(c *cli.Context) error {
			paths := append(cfg.DefaultPaths(), c.StringSlice("config")...)
			config, err := cfg.Load(paths...)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if port := c.Int("port"); port != 0 {
				config.Daemon.Port = port
			}

			return daemon(c.Context, config)
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
