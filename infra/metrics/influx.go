package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/doser/core/metrics"
	"github.com/kilianp07/doser/infra/logger"
)

// InfluxSink writes dosing events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordDose writes a finished session.
func (s *InfluxSink) RecordDose(res coremetrics.DoseResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("dose").
		AddTag("liquid", res.Liquid).
		AddTag("outcome", res.Outcome).
		AddTag("session_id", res.SessionID).
		AddField("target_g", round3(res.Target)).
		AddField("dispensed_g", round3(res.Dispensed)).
		AddField("error_g", round3(res.Error())).
		AddField("iterations", res.Iterations).
		AddField("flow_rate", round3(res.FlowRate)).
		AddField("duration_s", round3(res.Duration.Seconds())).
		SetTime(res.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordIteration writes one dispensing round.
func (s *InfluxSink) RecordIteration(ev coremetrics.IterationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("dose_iteration").
		AddTag("liquid", ev.Liquid).
		AddTag("session_id", ev.SessionID).
		AddTag("iteration", strconv.Itoa(ev.Iteration)).
		AddField("pump_ms", ev.PumpTime.Milliseconds()).
		AddField("delivered_g", round3(ev.Delivered)).
		AddField("remaining_g", round3(ev.Remaining)).
		AddField("flow_rate", round3(ev.FlowRate)).
		AddField("fraction", round3(ev.Fraction)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFault writes a hardware fault.
func (s *InfluxSink) RecordFault(ev coremetrics.FaultEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("hardware_fault").
		AddTag("op", ev.Op).
		AddTag("state", ev.State).
		AddField("error", ev.Error).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
