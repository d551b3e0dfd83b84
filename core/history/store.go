// Package history persists finished dosing sessions.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/doser/core/events"
	"github.com/kilianp07/doser/core/model"
)

// DoseRecord captures one dosing session and its weight trace.
type DoseRecord struct {
	SessionID  string            `json:"session_id"`
	Liquid     string            `json:"liquid"`
	Target     float64           `json:"target"`
	Dispensed  float64           `json:"dispensed"`
	Iterations int               `json:"iterations"`
	FlowRate   float64           `json:"flow_rate"`
	Outcome    string            `json:"outcome"`
	Reason     string            `json:"reason,omitempty"`
	Started    time.Time         `json:"started"`
	Finished   time.Time         `json:"finished"`
	Samples    []model.DataPoint `json:"samples,omitempty"`
}

// Error returns dispensed minus target in grams.
func (r DoseRecord) Error() float64 { return r.Dispensed - r.Target }

// FromEvent converts a DoseFinished event into a record.
func FromEvent(e events.DoseFinished) DoseRecord {
	return DoseRecord{
		SessionID:  e.SessionID,
		Liquid:     e.Liquid,
		Target:     e.Target,
		Dispensed:  e.Dispensed,
		Iterations: e.Iterations,
		FlowRate:   e.FlowRate,
		Outcome:    string(e.Outcome),
		Reason:     e.Reason,
		Started:    e.Started,
		Finished:   e.Finished,
		Samples:    e.Samples,
	}
}

// Query defines filters for retrieving records. Limit keeps the most recent
// matches.
type Query struct {
	Start   time.Time
	End     time.Time
	Liquid  string
	Outcome string
	Limit   int
}

// Match reports whether r passes the time, liquid and outcome filters.
func (q Query) Match(r DoseRecord) bool {
	if !q.Start.IsZero() && r.Finished.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Finished.After(q.End) {
		return false
	}
	if q.Liquid != "" && r.Liquid != q.Liquid {
		return false
	}
	if q.Outcome != "" && r.Outcome != q.Outcome {
		return false
	}
	return true
}

func (q Query) limit(recs []DoseRecord) []DoseRecord {
	if q.Limit > 0 && len(recs) > q.Limit {
		return recs[len(recs)-q.Limit:]
	}
	return recs
}

// Store persists DoseRecords and supports querying.
type Store interface {
	Append(ctx context.Context, rec DoseRecord) error
	Query(ctx context.Context, q Query) ([]DoseRecord, error)
	Close() error
}

// Config selects and tunes the history backend.
type Config struct {
	// Backend is "jsonl", "rotating" or "sqlite".
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		if c.Backend == "sqlite" {
			c.Path = "doses.db"
		} else {
			c.Path = "doses.jsonl"
		}
	}
	if c.Backend == "rotating" && c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "jsonl", "rotating", "sqlite":
	default:
		return fmt.Errorf("unknown history backend %s", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("history path is required")
	}
	return nil
}

// NewStore opens the store described by cfg.
func NewStore(cfg Config) (Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "rotating":
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return NewJSONLStore(cfg.Path)
	}
}
