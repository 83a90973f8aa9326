// Package scheduler runs syncs on a cron schedule that follows the stored settings.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Veraticus/autobudgeter/internal/audit"
	"github.com/Veraticus/autobudgeter/internal/model"
	"github.com/Veraticus/autobudgeter/internal/syncer"
)

// DefaultRefreshInterval is how often settings are re-read.
const DefaultRefreshInterval = time.Minute

// Syncer runs one sync.
type Syncer interface {
	PerformSync(ctx context.Context, opts syncer.Options) (syncer.Result, error)
}

// Settings is the part of the application settings the scheduler follows.
type Settings struct {
	Location          *time.Location
	Cron              string
	ExportDestination model.ExportDestination
	AutoSyncEnabled   bool
	AutoPushToSheets  bool
}

// PushToSheets reports whether scheduled syncs push to the spreadsheet.
func (s Settings) PushToSheets() bool {
	return s.AutoPushToSheets && s.ExportDestination == model.ExportGoogleSheets
}

func (s Settings) equal(o Settings) bool {
	return s.Cron == o.Cron &&
		s.AutoSyncEnabled == o.AutoSyncEnabled &&
		s.PushToSheets() == o.PushToSheets() &&
		s.Location.String() == o.Location.String()
}

// SettingsFunc loads the current settings.
type SettingsFunc func(ctx context.Context) (Settings, error)

// Scheduler keeps at most one cron entry registered, matching the latest settings.
type Scheduler struct {
	syncer   Syncer
	settings SettingsFunc
	recorder audit.Sink
	logger   *slog.Logger
	cron     *cron.Cron
	cancel   context.CancelFunc
	done     chan struct{}
	current  Settings
	interval time.Duration
	entry    cron.EntryID
	mu       sync.Mutex
	applied  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRecorder sets where cron errors are audited.
func WithRecorder(recorder audit.Sink) Option {
	return func(s *Scheduler) {
		s.recorder = recorder
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRefreshInterval sets how often settings are re-read.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// New creates a scheduler. Nothing runs until Start.
func New(syncer Syncer, settings SettingsFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		syncer:   syncer,
		settings: settings,
		logger:   slog.Default(),
		interval: DefaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	return s
}

// Start applies the current settings and keeps re-reading them until ctx ends or Stop
// is called. Scheduled syncs run with a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.refresh(ctx)

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refresh(ctx)
			}
		}
	}()
}

// Stop unregisters the schedule and waits for a running sync to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
		s.entry = 0
	}
	s.applied = false
}

// refresh re-reads settings and (re)registers the cron entry when they changed.
func (s *Scheduler) refresh(ctx context.Context) {
	settings, err := s.settings(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.fail(ctx, fmt.Errorf("failed to load settings: %w", err))
		}
		return
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.applied && settings.equal(s.current) {
		return
	}

	wasEnabled := s.cron != nil
	s.unregister()
	s.current = settings
	s.applied = true

	if !settings.AutoSyncEnabled {
		if wasEnabled {
			s.logger.Info("Auto-sync disabled")
		}
		return
	}

	c := cron.New(
		cron.WithLocation(settings.Location),
		cron.WithChain(cron.Recover(cronLogger{s.logger}), cron.SkipIfStillRunning(cronLogger{s.logger})),
	)
	push := settings.PushToSheets()
	id, err := c.AddFunc(settings.Cron, func() { s.run(ctx, push) })
	if err != nil {
		s.fail(ctx, fmt.Errorf("invalid cron expression %q: %w", settings.Cron, err))
		return
	}

	c.Start()
	s.cron = c
	s.entry = id
	s.logger.Info("Scheduled auto-sync",
		"cron", settings.Cron,
		"timezone", settings.Location.String(),
		"push_to_sheets", push,
		"next", c.Entry(id).Schedule.Next(time.Now().In(settings.Location)))
}

// unregister stops the current cron without waiting for a running job. Callers hold mu.
func (s *Scheduler) unregister() {
	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.entry = 0
}

func (s *Scheduler) run(ctx context.Context, push bool) {
	result, err := s.syncer.PerformSync(ctx, syncer.Options{PushToSheets: push})
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		s.logger.Warn("Skipping scheduled sync, another sync is running")
	case err != nil:
		s.fail(ctx, fmt.Errorf("scheduled sync failed: %w", err))
	default:
		s.logger.Info("Scheduled sync finished",
			"ingested", result.Ingested,
			"categorized", result.Categorized,
			"needs_review", result.NeedsReview)
	}
}

func (s *Scheduler) fail(ctx context.Context, err error) {
	s.logger.Error("Scheduler error", "error", err)
	if s.recorder == nil {
		return
	}
	if recErr := s.recorder.Append(context.WithoutCancel(ctx), model.EventCronError, map[string]any{
		"message": err.Error(),
	}); recErr != nil {
		s.logger.Error("Failed to record audit event", "event_type", model.EventCronError, "error", recErr)
	}
}

// entries returns the registered cron entries.
func (s *Scheduler) entries() []cron.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return nil
	}
	return s.cron.Entries()
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
