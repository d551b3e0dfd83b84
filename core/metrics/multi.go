package metrics

// MultiSink fans records out to several sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDose forwards the result to all sinks, returning the first error encountered.
func (m *MultiSink) RecordDose(res DoseResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordDose(res); err != nil {
			return err
		}
	}
	return nil
}

// RecordIteration forwards iterations to sinks supporting them.
func (m *MultiSink) RecordIteration(ev IterationEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(IterationRecorder); ok {
			if err := rec.RecordIteration(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordStateChange forwards transitions.
func (m *MultiSink) RecordStateChange(ev StateEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(StateRecorder); ok {
			if err := rec.RecordStateChange(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordRejection forwards refused requests.
func (m *MultiSink) RecordRejection(ev RejectionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(RejectionRecorder); ok {
			if err := rec.RecordRejection(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFault forwards hardware faults.
func (m *MultiSink) RecordFault(ev FaultEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(FaultRecorder); ok {
			if err := rec.RecordFault(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFlush forwards flushes.
func (m *MultiSink) RecordFlush(ev FlushEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(FlushRecorder); ok {
			if err := rec.RecordFlush(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
