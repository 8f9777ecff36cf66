// Package db records state changes in InfluxDB.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bartekpacia/myfox/api"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const writeTimeout = 10 * time.Second

// PointWriter is implemented by the blocking write API of the Influx client.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type Recorder struct {
	writer   PointWriter
	listener api.StateListener
}

// Connect checks that the database at url is healthy.
func Connect(ctx context.Context, url, token string) (influxdb2.Client, error) {
	client := influxdb2.NewClient(url, token)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("perform healthcheck on influx database: %w", err)
	}
	slog.Info("connected to Influx database", slog.String("url", url), slog.String("status", string(health.Status)))

	return client, nil
}

func NewRecorder(writer PointWriter) *Recorder {
	r := &Recorder{writer: writer}
	r.listener = func(label string, value, old any, at time.Time) {
		points := Points(label, value, at)
		if len(points) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := r.writer.WritePoint(ctx, points...); err != nil {
			slog.Error("failed to write points", slog.String("label", label), slog.Any("error", err))
		}
	}
	return r
}

// Watch records every state change of store.
func (r *Recorder) Watch(store *api.StateStore) error {
	for _, label := range api.DefaultStateLabels {
		if _, err := store.AddListener(label, &r.listener); err != nil {
			return fmt.Errorf("watch %s: %w", label, err)
		}
	}
	return nil
}

// Points converts the value of a state channel to points.
func Points(label string, value any, at time.Time) []*write.Point {
	switch v := value.(type) {
	case api.Home:
		return []*write.Point{influxdb2.NewPoint("status",
			map[string]string{"site": v.SiteName},
			map[string]any{"master_status": strings.Join(v.MasterStatus, ",")},
			at,
		)}
	case api.AlarmLevel:
		level, err := api.MapSecurityLevel(string(v))
		if err != nil {
			return nil
		}
		return []*write.Point{influxdb2.NewPoint("alarm",
			map[string]string{"level": string(v)},
			map[string]any{"security_level": level},
			at,
		)}
	case []api.Scenario:
		points := make([]*write.Point, 0, len(v))
		for _, s := range v {
			points = append(points, influxdb2.NewPoint("scenario",
				map[string]string{"id": strconv.Itoa(s.ID), "label": s.Label},
				map[string]any{"active": s.Active},
				at,
			))
		}
		return points
	case []api.Domotic:
		points := make([]*write.Point, 0, len(v))
		for _, d := range v {
			if d.SupposedState == "" {
				continue
			}
			points = append(points, influxdb2.NewPoint("domotic",
				map[string]string{"id": strconv.Itoa(d.ID), "label": d.Label},
				map[string]any{"on": d.SupposedState == api.ActionOn},
				at,
			))
		}
		return points
	case []api.Heating:
		points := make([]*write.Point, 0, len(v))
		for _, h := range v {
			if h.State == "" {
				continue
			}
			points = append(points, influxdb2.NewPoint("heating",
				map[string]string{"id": strconv.Itoa(h.ID), "label": h.Label},
				map[string]any{"mode": h.State},
				at,
			))
		}
		return points
	default:
		slog.Debug("not recording state", slog.String("label", label), slog.String("type", fmt.Sprintf("%T", value)))
		return nil
	}
}
