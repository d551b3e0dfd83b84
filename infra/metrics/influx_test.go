package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/doser/core/metrics"
)

type lineServer struct {
	mu     sync.Mutex
	bodies []string
	srv    *httptest.Server
}

func newLineServer(t *testing.T) *lineServer {
	ls := &lineServer{}
	ls.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		ls.mu.Lock()
		ls.bodies = append(ls.bodies, strings.TrimSpace(string(data)))
		ls.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ls.srv.Close)
	return ls
}

func (ls *lineServer) got() []string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return append([]string(nil), ls.bodies...)
}

func TestInfluxSink_RecordDose(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL, "token", "org", "bucket")
	defer sink.Close()

	now := time.Now()
	res := coremetrics.DoseResult{
		SessionID:  "s1",
		Liquid:     "water",
		Target:     1.5,
		Dispensed:  1.4951,
		Iterations: 6,
		FlowRate:   1.02,
		Outcome:    "completed",
		Duration:   14 * time.Second,
		Time:       now,
	}
	if err := sink.RecordDose(res); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("dose").
		AddTag("liquid", "water").
		AddTag("outcome", "completed").
		AddTag("session_id", "s1").
		AddField("target_g", 1.5).
		AddField("dispensed_g", 1.495).
		AddField("error_g", -0.005).
		AddField("iterations", 6).
		AddField("flow_rate", 1.02).
		AddField("duration_s", 14.0).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if b := ls.got(); len(b) != 1 || b[0] != expected {
		t.Errorf("unexpected bodies: %#v", b)
	}
}

func TestInfluxSink_RecordIteration(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()

	now := time.Now()
	ev := coremetrics.IterationEvent{
		SessionID: "s1",
		Liquid:    "water",
		Iteration: 2,
		PumpTime:  360 * time.Millisecond,
		Delivered: 0.36,
		Remaining: 0.24,
		FlowRate:  1,
		Fraction:  0.6,
		Time:      now,
	}
	if err := sink.RecordIteration(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("dose_iteration").
		AddTag("liquid", "water").
		AddTag("session_id", "s1").
		AddTag("iteration", "2").
		AddField("pump_ms", int64(360)).
		AddField("delivered_g", 0.36).
		AddField("remaining_g", 0.24).
		AddField("flow_rate", 1.0).
		AddField("fraction", 0.6).
		SetTime(now)
	exp := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if b := ls.got(); len(b) != 1 || b[0] != exp {
		t.Errorf("bodies: %#v", b)
	}
}

func TestInfluxSink_RecordFault(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL, "token", "org", "bucket")
	defer sink.Close()

	now := time.Now()
	ev := coremetrics.FaultEvent{Op: "pump on", State: "DISPENSING", Error: "relay stuck", Time: now}
	if err := sink.RecordFault(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("hardware_fault").
		AddTag("op", "pump on").
		AddTag("state", "DISPENSING").
		AddField("error", "relay stuck").
		SetTime(now)
	exp := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if b := ls.got(); len(b) != 1 || b[0] != exp {
		t.Errorf("bodies: %#v", b)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
