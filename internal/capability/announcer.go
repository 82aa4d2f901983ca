package capability

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/bus"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/protocol"
)

// Probe checks whether one named component is usable right now. Checks run
// off the hot path and may be slow; the announcer serializes them.
type Probe struct {
	Name  string
	Check func(ctx context.Context) (bool, string)
}

// Announcer periodically probes local components and publishes their
// availability so the control CLI and health endpoints can report it
// without re-probing.
type Announcer struct {
	interval time.Duration
	log      *slog.Logger
	bus      *bus.Client
	probes   []Probe

	mu     sync.RWMutex
	status map[string]protocol.Availability

	cancel context.CancelFunc
	done   chan struct{}
	meter  metric.Meter
	gauge  metric.Int64ObservableGauge
}

func NewAnnouncer(ctx context.Context, interval time.Duration, probes []Probe, busClient *bus.Client, log *slog.Logger) *Announcer {
	ctx, cancel := context.WithCancel(ctx)
	a := &Announcer{
		interval: interval,
		log:      log.With(slog.String("component", "capability")),
		bus:      busClient,
		probes:   probes,
		status:   make(map[string]protocol.Availability),
		cancel:   cancel,
		done:     make(chan struct{}),
		meter:    otel.Meter("github.com/MushroomFleet/Careless-Whisper-V3-sub000/capability"),
	}

	if err := a.initMetrics(); err != nil {
		a.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	go a.run(ctx)
	return a
}

func (a *Announcer) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	<-a.done
}

func (a *Announcer) run(ctx context.Context) {
	defer close(a.done)

	a.sweep(ctx)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

func (a *Announcer) sweep(ctx context.Context) {
	for _, probe := range a.probes {
		if ctx.Err() != nil {
			return
		}
		available, detail := probe.Check(ctx)
		report := protocol.Availability{
			Component: probe.Name,
			Available: available,
			Detail:    detail,
			Timestamp: time.Now().UTC(),
		}

		a.mu.Lock()
		prev, seen := a.status[probe.Name]
		a.status[probe.Name] = report
		a.mu.Unlock()

		if !seen || prev.Available != available {
			a.log.Info("component availability changed",
				slog.String("name", probe.Name),
				slog.Bool("available", available),
				slog.String("detail", detail))
		}
		if err := a.publish(report); err != nil {
			a.log.Warn("failed to publish availability", slog.String("error", err.Error()))
		}
	}
}

func (a *Announcer) publish(report protocol.Availability) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return a.bus.Conn().Publish(protocol.SubjectAvailability, payload)
}

// Snapshot returns the latest report per component, in no particular order.
func (a *Announcer) Snapshot() []protocol.Availability {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]protocol.Availability, 0, len(a.status))
	for _, report := range a.status {
		out = append(out, report)
	}
	return out
}

// Available reports the last probed state of one component.
func (a *Announcer) Available(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	report, ok := a.status[name]
	return ok && report.Available
}

// Healthy reports whether every probe has completed at least once.
func (a *Announcer) Healthy() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.status) == len(a.probes)
}

func (a *Announcer) initMetrics() error {
	gauge, err := a.meter.Int64ObservableGauge("cw.capabilities.available", metric.WithDescription("Number of components currently available"))
	if err != nil {
		return err
	}
	a.gauge = gauge
	_, err = a.meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, a.availableCount())
		return nil
	}, gauge)
	return err
}

func (a *Announcer) availableCount() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var n int64
	for _, report := range a.status {
		if report.Available {
			n++
		}
	}
	return n
}
