package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/doser/api/doses"
	"github.com/kilianp07/doser/api/status"
	"github.com/kilianp07/doser/config"
	"github.com/kilianp07/doser/core/dosing"
	"github.com/kilianp07/doser/core/events"
	"github.com/kilianp07/doser/core/history"
	coremetrics "github.com/kilianp07/doser/core/metrics"
	"github.com/kilianp07/doser/core/model"
	coremon "github.com/kilianp07/doser/core/monitoring"
	"github.com/kilianp07/doser/core/panel"
	"github.com/kilianp07/doser/core/registry"
	"github.com/kilianp07/doser/infra/logger"
	"github.com/kilianp07/doser/infra/metrics"
	"github.com/kilianp07/doser/infra/monitoring"
	"github.com/kilianp07/doser/infra/mqtt"
	"github.com/kilianp07/doser/infra/sim"
	"github.com/kilianp07/doser/internal/eventbus"
)

// Option customizes a Service.
type Option func(*Service)

// WithClock drives the controller and the simulated rig from clock instead
// of wall time. Sessions then complete as fast as they can be ticked.
func WithClock(clock *sim.ManualClock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithoutHistory skips opening the configured history store.
func WithoutHistory() Option {
	return func(s *Service) { s.noHistory = true }
}

// Service orchestrates the controller, its driver loop and the telemetry
// consumers hanging off the event bus.
type Service struct {
	Registry   *registry.Registry
	Rig        *sim.Rig
	Controller *dosing.Controller
	Loop       *dosing.Loop
	Panel      *panel.Panel
	Commands   chan dosing.Command
	History    history.Store

	cfg       *config.Config
	bus       *eventbus.Bus
	sink      coremetrics.MetricsSink
	monitor   coremon.Monitor
	publisher *mqtt.Publisher
	log       logger.Logger
	clock     *sim.ManualClock
	noHistory bool

	started bool
	cancel  context.CancelFunc
	waits   []<-chan struct{}
}

// New creates a Service from the configuration.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{cfg: cfg, log: logger.New("service")}
	for _, o := range opts {
		o(s)
	}
	if cfg.Logging.Level != "" && !logger.SetLevel(cfg.Logging.Level) {
		s.log.Warnf("unknown log level %q", cfg.Logging.Level)
	}

	now := time.Now
	if s.clock != nil {
		now = s.clock.Now
	}
	s.Rig = sim.NewRig(cfg.Hardware.Sim, now)
	s.Registry = registry.New()
	for _, lc := range cfg.Liquids {
		l := model.Liquid{Name: lc.Name, TargetAmount: lc.Target, Valve: s.Rig.AddValve(lc.Valve)}
		if _, err := s.Registry.Add(l); err != nil {
			return nil, fmt.Errorf("liquid %s: %w", lc.Name, err)
		}
	}

	s.bus = eventbus.New(eventbus.WithBuffer(cfg.Driver.EventBuffer))
	hw := dosing.Hardware{Sensor: s.Rig.Scale(), Pump: s.Rig.Pump(), FlushValve: s.Rig.FlushValve()}
	ctrl, err := dosing.NewController(cfg.Controller, s.Registry, hw, s.bus, logger.New("controller"))
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	if s.clock != nil {
		ctrl.SetClock(s.clock.Now)
	}
	s.Controller = ctrl
	s.Loop = dosing.NewLoop(ctrl, cfg.Driver.TickInterval, logger.New("driver"))
	s.Commands = make(chan dosing.Command, cfg.Driver.CommandBuffer)
	s.Panel = panel.New(s.Registry, ctrl, s.Commands)

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	s.sink = sink

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)
	s.monitor = mon

	if !s.noHistory {
		store, err := history.NewStore(cfg.History)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		s.History = store
	}

	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			_ = s.closeStores()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		s.publisher = pub
	}
	return s, nil
}

// Bus exposes the event bus for additional subscribers.
func (s *Service) Bus() eventbus.EventBus { return s.bus }

// start launches the bus consumers once.
func (s *Service) start() {
	if s.started {
		return
	}
	s.started = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	metrics.StartEventCollector(ctx, s.bus, s.sink, logger.New("metrics"))
	coremon.StartReporter(ctx, s.bus, s.monitor)
	if s.History != nil {
		s.waits = append(s.waits, history.StartRecorder(ctx, s.bus, s.History, logger.New("history")))
	}
	if s.publisher != nil {
		s.waits = append(s.waits, s.publisher.Start(ctx, s.bus))
	}
}

// Handlers returns the read-only HTTP API.
func (s *Service) Handlers() map[string]http.Handler {
	h := map[string]http.Handler{
		"/api/status": status.NewHandler(s.Controller, s.Registry),
	}
	if s.History != nil {
		h["/api/doses"] = doses.NewHandler(s.History, s.cfg.HTTP.Token)
	}
	return h
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	defer s.monitor.Recover()
	s.start()
	if s.cfg.HTTP.Addr != "" {
		go func() {
			if err := metrics.StartServer(ctx, s.cfg.HTTP.Addr, s.Handlers(), s.log); err != nil {
				s.log.Errorf("http server: %v", err)
			}
		}()
	}
	s.log.Infof("doser running with %d liquids, tick %s", s.Registry.Count(), s.Loop.Interval())
	s.Loop.Run(ctx, s.Commands)
	return nil
}

// Dispense runs one dosing session for the named liquid to completion and
// returns its outcome.
func (s *Service) Dispense(ctx context.Context, liquid string) (events.DoseFinished, error) {
	idx, ok := s.Registry.Index(liquid)
	if !ok {
		return events.DoseFinished{}, fmt.Errorf("%s: %w", liquid, dosing.ErrUnknownLiquid)
	}
	var res events.DoseFinished
	found := false
	err := s.runSession(ctx, func() error { return s.Controller.RequestDispense(idx) }, func(ev eventbus.Event) {
		if e, ok := ev.(events.DoseFinished); ok {
			res, found = e, true
		}
	})
	if err != nil {
		return res, err
	}
	if !found {
		return res, errors.New("dose outcome not observed")
	}
	return res, nil
}

// Flush runs a stand-alone flush to completion.
func (s *Service) Flush(ctx context.Context) (events.FlushFinished, error) {
	var res events.FlushFinished
	err := s.runSession(ctx, s.Controller.RequestFlush, func(ev eventbus.Event) {
		if e, ok := ev.(events.FlushFinished); ok {
			res = e
		}
	})
	return res, err
}

// Calibrate calibrates the scale against knownWeight grams. The simulated
// rig zeroes the scale, places the reference mass itself and removes it
// afterwards.
func (s *Service) Calibrate(knownWeight float64) (float64, error) {
	if s.Controller.IsBusy() {
		return 0, dosing.ErrBusy
	}
	if err := s.Rig.Scale().Tare(); err != nil {
		return 0, err
	}
	s.Rig.Place(knownWeight)
	defer s.Rig.Place(-knownWeight)
	return s.Controller.CalibrateScale(knownWeight)
}

func (s *Service) runSession(ctx context.Context, request func() error, observe func(eventbus.Event)) error {
	s.start()
	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)
	drain := func() {
		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					return
				}
				observe(ev)
			default:
				return
			}
		}
	}
	if err := request(); err != nil {
		return err
	}
	advance := func(d time.Duration) {
		drain()
		if s.clock != nil {
			s.clock.Advance(d)
			return
		}
		time.Sleep(d)
	}
	if err := s.Loop.RunUntilIdle(ctx, advance); err != nil {
		return err
	}
	drain()
	return nil
}

func (s *Service) closeStores() error {
	if s.History != nil {
		return s.History.Close()
	}
	return nil
}

// Close drains the bus consumers and releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	for _, w := range s.waits {
		select {
		case <-w:
		case <-time.After(5 * time.Second):
			s.log.Warnf("event consumer did not stop in time")
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	s.monitor.Flush(2 * time.Second)
	return s.closeStores()
}
