package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/doser/core/metrics"
)

// PromSink records dosing activity in Prometheus metrics.
type PromSink struct {
	doses       *prometheus.CounterVec
	doseError   *prometheus.HistogramVec
	duration    *prometheus.HistogramVec
	iterations  *prometheus.HistogramVec
	flowRate    *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	faults      *prometheus.CounterVec
	flushes     prometheus.Counter
}

// NewPromSink registers dosing metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.doses, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doser_doses_total",
		Help: "Finished dosing sessions by outcome",
	}, []string{"liquid", "outcome"})); err != nil {
		return nil, err
	}
	if s.doseError, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "doser_dose_error_grams",
		Help:    "Dispensed minus target weight of completed doses",
		Buckets: []float64{-0.5, -0.2, -0.1, -0.05, -0.01, 0, 0.01, 0.05, 0.1, 0.2, 0.5},
	}, []string{"liquid"})); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "doser_dose_duration_seconds",
		Help:    "Time from request to the end of a dosing session",
		Buckets: prometheus.ExponentialBuckets(5, 2, 7),
	}, []string{"liquid"})); err != nil {
		return nil, err
	}
	if s.iterations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "doser_dose_iterations",
		Help:    "Dispensing iterations per session",
		Buckets: prometheus.LinearBuckets(1, 2, 10),
	}, []string{"liquid"})); err != nil {
		return nil, err
	}
	if s.flowRate, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "doser_flow_rate_grams_per_second",
		Help: "Learned pump throughput after the last iteration",
	}, []string{"liquid"})); err != nil {
		return nil, err
	}
	if s.transitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doser_state_transitions_total",
		Help: "Controller transitions by target state",
	}, []string{"state"})); err != nil {
		return nil, err
	}
	if s.rejections, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doser_requests_rejected_total",
		Help: "Requests refused by the controller",
	}, []string{"request"})); err != nil {
		return nil, err
	}
	if s.faults, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doser_hardware_faults_total",
		Help: "Failed sensor reads and actuations",
	}, []string{"op"})); err != nil {
		return nil, err
	}
	if s.flushes, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "doser_flushes_total",
		Help: "Completed stand-alone flushes",
	})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDose counts the session and observes its accuracy.
func (s *PromSink) RecordDose(res coremetrics.DoseResult) error {
	s.doses.WithLabelValues(res.Liquid, res.Outcome).Inc()
	s.duration.WithLabelValues(res.Liquid).Observe(res.Duration.Seconds())
	s.iterations.WithLabelValues(res.Liquid).Observe(float64(res.Iterations))
	if res.Outcome == "completed" {
		s.doseError.WithLabelValues(res.Liquid).Observe(res.Error())
	}
	return nil
}

// RecordIteration updates the flow-rate gauge.
func (s *PromSink) RecordIteration(ev coremetrics.IterationEvent) error {
	s.flowRate.WithLabelValues(ev.Liquid).Set(ev.FlowRate)
	return nil
}

// RecordStateChange counts transitions.
func (s *PromSink) RecordStateChange(ev coremetrics.StateEvent) error {
	s.transitions.WithLabelValues(ev.To).Inc()
	return nil
}

// RecordRejection counts refused requests.
func (s *PromSink) RecordRejection(ev coremetrics.RejectionEvent) error {
	s.rejections.WithLabelValues(ev.Request).Inc()
	return nil
}

// RecordFault counts hardware faults.
func (s *PromSink) RecordFault(ev coremetrics.FaultEvent) error {
	s.faults.WithLabelValues(ev.Op).Inc()
	return nil
}

// RecordFlush counts stand-alone flushes.
func (s *PromSink) RecordFlush(coremetrics.FlushEvent) error {
	s.flushes.Inc()
	return nil
}
