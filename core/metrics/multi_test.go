package metrics

import "testing"

type recordSink struct {
	count int
}

func (r *recordSink) RecordDose(DoseResult) error {
	r.count++
	return nil
}

func (r *recordSink) RecordIteration(IterationEvent) error {
	r.count++
	return nil
}

// doseOnly supports no optional recorder.
type doseOnly struct{ count int }

func (d *doseOnly) RecordDose(DoseResult) error {
	d.count++
	return nil
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	s3 := &doseOnly{}
	m := NewMultiSink(s1, s2, s3)
	if err := m.RecordDose(DoseResult{}); err != nil {
		t.Fatalf("record dose: %v", err)
	}
	if err := m.RecordIteration(IterationEvent{}); err != nil {
		t.Fatalf("record iteration: %v", err)
	}
	if err := m.RecordFault(FaultEvent{}); err != nil {
		t.Fatalf("record fault: %v", err)
	}
	if s1.count != 2 || s2.count != 2 {
		t.Fatalf("records not forwarded")
	}
	if s3.count != 1 {
		t.Fatalf("expected dose-only sink to get 1 record, got %d", s3.count)
	}
}

func TestDoseResult_Error(t *testing.T) {
	d := DoseResult{Target: 2, Dispensed: 1.95}
	if e := d.Error(); e > -0.049 || e < -0.051 {
		t.Fatalf("unexpected error %.4f", e)
	}
}
