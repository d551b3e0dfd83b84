// Package export writes dosing traces in file formats for offline analysis.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/doser/core/model"
	"github.com/kilianp07/doser/core/trace"
)

// Trace is an exportable weight trace with its summary.
type Trace struct {
	SessionID string            `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Liquid    string            `json:"liquid" yaml:"liquid"`
	Target    float64           `json:"target" yaml:"target"`
	Summary   *trace.Summary    `json:"summary,omitempty" yaml:"summary,omitempty"`
	Samples   []model.DataPoint `json:"samples" yaml:"samples"`
}

// NewTrace builds a Trace and attaches its summary when samples exist.
func NewTrace(sessionID, liquid string, target float64, samples []model.DataPoint) Trace {
	t := Trace{SessionID: sessionID, Liquid: liquid, Target: target, Samples: samples}
	if s, err := trace.Summarize(samples, target); err == nil {
		t.Summary = &s
	}
	return t
}

// Formats lists the accepted Write formats.
var Formats = []string{"csv", "json", "yaml", "html"}

// Write encodes t to w in the named format.
func Write(w io.Writer, format string, t Trace) error {
	switch format {
	case "csv":
		return WriteCSV(w, t.Samples)
	case "json":
		return WriteJSON(w, t)
	case "yaml", "yml":
		return WriteYAML(w, t)
	case "html":
		return RenderChart(w, t)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// WriteJSON writes the trace to w in JSON format.
func WriteJSON(w io.Writer, t Trace) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}

// WriteYAML writes the trace to w in YAML format.
func WriteYAML(w io.Writer, t Trace) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return err
	}
	return enc.Close()
}

// WriteCSV writes one row per sample with the elapsed time since the first.
func WriteCSV(w io.Writer, samples []model.DataPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "elapsed_ms", "weight_g"}); err != nil {
		return err
	}
	for _, p := range samples {
		rec := []string{
			p.Timestamp.Format(time.RFC3339Nano),
			strconv.FormatInt(p.Timestamp.Sub(samples[0].Timestamp).Milliseconds(), 10),
			strconv.FormatFloat(p.Weight, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
