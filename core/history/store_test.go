package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/doser/core/events"
	"github.com/kilianp07/doser/core/model"
	"github.com/kilianp07/doser/internal/eventbus"
)

var base = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func record(i int, liquid, outcome string) DoseRecord {
	return DoseRecord{
		SessionID: fmt.Sprintf("s%d", i),
		Liquid:    liquid,
		Target:    1.5,
		Dispensed: 1.49,
		Outcome:   outcome,
		Started:   base.Add(time.Duration(i) * time.Minute),
		Finished:  base.Add(time.Duration(i)*time.Minute + 20*time.Second),
		Samples:   []model.DataPoint{{Timestamp: base, Weight: 0}, {Timestamp: base.Add(time.Second), Weight: 0.9}},
	}
}

func seed(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, record(0, "water", "completed")))
	require.NoError(t, s.Append(ctx, record(1, "syrup", "timeout")))
	require.NoError(t, s.Append(ctx, record(2, "water", "completed")))
}

func exerciseStore(t *testing.T, s Store) {
	seed(t, s)
	ctx := context.Background()

	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s0", all[0].SessionID)
	assert.Len(t, all[0].Samples, 2)

	water, err := s.Query(ctx, Query{Liquid: "water"})
	require.NoError(t, err)
	assert.Len(t, water, 2)

	timeouts, err := s.Query(ctx, Query{Outcome: "timeout"})
	require.NoError(t, err)
	require.Len(t, timeouts, 1)
	assert.Equal(t, "syrup", timeouts[0].Liquid)

	recent, err := s.Query(ctx, Query{Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "s1", recent[0].SessionID)
	assert.Equal(t, "s2", recent[1].SessionID)

	window, err := s.Query(ctx, Query{Start: base.Add(time.Minute), End: base.Add(90 * time.Second)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "s1", window[0].SessionID)
}

func TestJSONLStore(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "doses.jsonl"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestJSONLStore_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doses.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n"), 0o644))
	s, err := NewJSONLStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), record(0, "water", "completed")))
	out, err := s.Query(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestRotatingJSONLStore(t *testing.T) {
	s, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "hist", "doses.jsonl"), 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestRotatingJSONLStore_QueriesBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doses.jsonl")
	s, err := NewRotatingJSONLStore(path, 1, 5, 0)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, record(0, "water", "completed")))
	require.NoError(t, s.Rotate())
	require.NoError(t, s.Append(ctx, record(1, "water", "completed")))

	files, _ := filepath.Glob(filepath.Join(dir, "doses*.jsonl"))
	assert.Len(t, files, 2)
	out, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "s0", out[0].SessionID)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestNewStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(Config{Path: filepath.Join(dir, "a.jsonl")})
	require.NoError(t, err)
	assert.IsType(t, &JSONLStore{}, s)

	s, err = NewStore(Config{Backend: "rotating", Path: filepath.Join(dir, "b.jsonl")})
	require.NoError(t, err)
	assert.IsType(t, &RotatingJSONLStore{}, s)
	_ = s.Close()

	s, err = NewStore(Config{Backend: "sqlite", Path: filepath.Join(dir, "c.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	_ = s.Close()

	_, err = NewStore(Config{Backend: "csv"})
	assert.Error(t, err)
}

func TestStartRecorder(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "doses.jsonl"))
	require.NoError(t, err)
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := StartRecorder(ctx, bus, s, nil)

	bus.Publish(events.StateChanged{})
	bus.Publish(events.DoseFinished{SessionID: "abc", Liquid: "water", Target: 2, Dispensed: 1.98, Outcome: events.OutcomeCompleted, Finished: base})

	require.Eventually(t, func() bool {
		out, err := s.Query(context.Background(), Query{})
		return err == nil && len(out) == 1
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	out, err := s.Query(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, "abc", out[0].SessionID)
	assert.InDelta(t, -0.02, out[0].Error(), 1e-9)
	bus.Close()
}
