package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bartekpacia/myfox/api"
	"github.com/bartekpacia/myfox/cfg"
	"github.com/bartekpacia/myfox/cmd/myfoxd/broker"
	"github.com/bartekpacia/myfox/cmd/myfoxd/db"
	"github.com/bartekpacia/myfox/cmd/myfoxd/homekit"
	"github.com/bartekpacia/myfox/cmd/myfoxd/metrics"
	"github.com/bartekpacia/myfox/cmd/myfoxd/webserver"
	"github.com/bartekpacia/myfox/highlevel"
)

const httpTimeout = 30 * time.Second

func daemon(ctx context.Context, config *cfg.Config) error {
	if config.Password == "" {
		return fmt.Errorf("MYFOX_PASSWORD is not set")
	}

	m := metrics.New()
	httpClient := m.HTTPClient(&http.Client{Timeout: httpTimeout})

	wrapper, err := highlevel.Connect(ctx, config, api.WithHTTPClient(httpClient))
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}

	err = highlevel.SeedState(wrapper.State(), config)
	if err != nil {
		return fmt.Errorf("seed state: %w", err)
	}

	err = m.Watch(wrapper)
	if err != nil {
		return fmt.Errorf("watch metrics: %w", err)
	}

	if influx := config.Daemon.InfluxDB; influx.URL != "" {
		influxClient, err := db.Connect(ctx, influx.URL, influx.Token)
		if err != nil {
			return err
		}
		defer influxClient.Close()

		recorder := db.NewRecorder(influxClient.WriteAPIBlocking(influx.Org, influx.Bucket))
		if err := recorder.Watch(wrapper.State()); err != nil {
			return err
		}
	}

	if mqtt := config.Daemon.MQTT; mqtt.Broker != "" {
		mqttClient, err := broker.Connect(broker.Options{
			Broker:   mqtt.Broker,
			ClientID: mqtt.ClientID,
			Username: mqtt.Username,
			Password: mqtt.Password,
		})
		if err != nil {
			return err
		}
		defer mqttClient.Disconnect(250)

		if err := broker.NewPublisher(mqttClient, mqtt.Topic).Watch(ctx, wrapper); err != nil {
			return err
		}
	}

	errs := make(chan error, 2)

	if hk := config.Daemon.HomeKit; hk.PIN != "" {
		homekitClient := &homekit.Client{
			PIN:           hk.PIN,
			Name:          hk.Name,
			StoreDir:      hk.StoreDir,
			AlarmPassword: config.Password,
			Wrapper:       wrapper,
		}
		if homekitClient.StoreDir == "" {
			homekitClient.StoreDir = defaultStoreDir()
		}

		_, accessories, err := homekitClient.SetUp(ctx)
		if err != nil {
			slog.Error("failed to set up homekit", slog.Any("error", err))
			return err
		}

		go func() {
			err := homekitClient.Serve(ctx, accessories)
			if err != nil {
				slog.Error("failed to start HAP server", slog.Any("error", err))
			}
			errs <- err
		}()
	}

	go refresh(ctx, wrapper, config.Daemon.Refresh)

	go func() {
		errs <- webserver.New(wrapper, config.Daemon.PassphraseHash, m.Handler()).Run(ctx, config.Daemon.Port)
	}()

	err = <-errs
	if err == nil || errors.Is(err, context.Canceled) {
		slog.Info("shutting down")
		return nil
	}
	return err
}

// refresh reads the home page every interval, which also keeps the session
// alive.
func refresh(ctx context.Context, wrapper api.Wrapper, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := wrapper.CallHome(ctx)
			if errors.Is(err, api.ErrUnsupported) {
				return
			}
			if err != nil {
				slog.Error("failed to refresh home", slog.Any("error", err), slog.Int("status", api.Status(err)))
			}
		}
	}
}

func defaultStoreDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "./db"
	}
	return filepath.Join(dir, ".local", "state", "myfoxd")
}
