// Package backfill fills in missing coordinates on donations and needs in the
// background.
package backfill

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/healnet/donation-matching/internal/domain"
	"github.com/healnet/donation-matching/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Store lists records awaiting geocoding and persists outcomes.
type Store interface {
	PendingGeocodes(ctx context.Context, kind domain.RecordKind, limit int, retryBefore time.Time) ([]domain.GeocodeTarget, error)
	ApplyGeocodes(ctx context.Context, kind domain.RecordKind, updates []domain.GeocodeUpdate) error
}

// Config tunes a Worker. Zero values take defaults.
type Config struct {
	BatchSize  int
	Delay      time.Duration // after a pass that found work
	RetryAfter time.Duration // before re-geocoding a record that failed
}

const (
	DefaultBatchSize  = 10
	DefaultDelay      = 5 * time.Second
	DefaultRetryAfter = 24 * time.Hour

	// Idle passes sleep idleFactor*Delay; failed passes sleep errorFactor*Delay.
	idleFactor  = 5
	errorFactor = 2
)

// Worker polls the store for records missing coordinates and geocodes them
// one batch of donations and one batch of needs per pass. At most one loop
// runs per Worker.
type Worker struct {
	store    Store
	geocoder domain.Geocoder
	cfg      Config
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewWorker(cfg Config, store Store, geocoder domain.Geocoder, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = DefaultRetryAfter
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Worker{
		store:    store,
		geocoder: geocoder,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Start launches the polling loop. It returns false without side effects if
// the loop is already running.
func (w *Worker) Start(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return false
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	go w.run(ctx, w.stop, w.done)
	return true
}

// Stop asks the loop to exit. The current pass finishes first; only the
// sleep between passes is interrupted. Safe to call more than once.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
}

// Done is closed when the current loop exits. It is nil before Start.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Running reports whether a loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	w.logger.Info("backfill worker started", "batch_size", w.cfg.BatchSize, "delay", w.cfg.Delay)
	w.metrics.BackfillRunning.Set(1)
	defer func() {
		w.metrics.BackfillRunning.Set(0)
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(done)
		w.logger.Info("backfill worker stopped")
	}()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		processed, err := w.RunPass(ctx)
		if err != nil && ctx.Err() != nil {
			return
		}

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-w.clock.After(w.nextDelay(processed, err)):
		}
	}
}

func (w *Worker) nextDelay(processed int, err error) time.Duration {
	switch {
	case err != nil:
		return errorFactor * w.cfg.Delay
	case processed == 0:
		return idleFactor * w.cfg.Delay
	default:
		return w.cfg.Delay
	}
}

// RunPass geocodes one batch of donations then one batch of needs and
// returns how many pending records it found, including ones skipped after a
// transient error. A store error aborts the pass.
func (w *Worker) RunPass(ctx context.Context) (int, error) {
	total := 0
	for _, kind := range []domain.RecordKind{domain.KindDonation, domain.KindNeed} {
		n, err := w.processKind(ctx, kind)
		total += n
		if err != nil {
			w.metrics.BackfillPasses.WithLabelValues("error").Inc()
			w.logger.Error("backfill pass aborted", "kind", kind, "error", err)
			return total, err
		}
	}

	if total == 0 {
		w.metrics.BackfillPasses.WithLabelValues("idle").Inc()
	} else {
		w.metrics.BackfillPasses.WithLabelValues("work").Inc()
		w.logger.Info("backfill pass complete", "records", total)
	}
	return total, nil
}

func (w *Worker) processKind(ctx context.Context, kind domain.RecordKind) (int, error) {
	retryBefore := w.clock.Now().Add(-w.cfg.RetryAfter)
	targets, err := w.store.PendingGeocodes(ctx, kind, w.cfg.BatchSize, retryBefore)
	if err != nil {
		return 0, err
	}
	if len(targets) == 0 {
		return 0, nil
	}

	updates := make([]domain.GeocodeUpdate, 0, len(targets))
	for _, t := range targets {
		if u, ok := w.geocodeTarget(ctx, t); ok {
			updates = append(updates, u)
		}
	}

	if len(updates) > 0 {
		if err := w.store.ApplyGeocodes(ctx, kind, updates); err != nil {
			return 0, err
		}
	}
	return len(targets), nil
}

// geocodeTarget returns ok=false when the record should be left untouched
// and picked up again on a later pass.
func (w *Worker) geocodeTarget(ctx context.Context, t domain.GeocodeTarget) (domain.GeocodeUpdate, bool) {
	update := domain.GeocodeUpdate{ID: t.ID, AttemptedAt: w.clock.Now()}
	kind := string(t.Kind)

	if strings.TrimSpace(t.LocationText) == "" {
		w.metrics.BackfillRecords.WithLabelValues(kind, "attempted").Inc()
		return update, true
	}

	result, err := w.geocoder.Geocode(ctx, t.LocationText)
	switch {
	case err == nil && result.Quality.Usable():
		update.Result = &result
		w.metrics.BackfillRecords.WithLabelValues(kind, "geocoded").Inc()
		return update, true
	case err == nil, errors.Is(err, domain.ErrGeocodeUnavailable), errors.Is(err, domain.ErrInvalidInput):
		// Stamp the attempt so the record is not retried every pass.
		w.logger.Warn("geocode failed, marking attempted", "kind", kind, "id", t.ID, "location", t.LocationText, "error", err)
		w.metrics.BackfillRecords.WithLabelValues(kind, "attempted").Inc()
		return update, true
	default:
		w.logger.Warn("geocode error, skipping record", "kind", kind, "id", t.ID, "error", err)
		w.metrics.BackfillRecords.WithLabelValues(kind, "skipped").Inc()
		return domain.GeocodeUpdate{}, false
	}
}
