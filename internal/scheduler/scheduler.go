// Package scheduler drives the hourly sync sweep and the maintenance loops
// (stats, cleanup, reminders, backups) on independent cadences.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
	"golang.org/x/sync/errgroup"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/lifecycle"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/metrics"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/platform"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/reconcile"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/storage"
)

// Loop names
const (
	LoopSweep    = "sweep"
	LoopStats    = "stats"
	LoopCleanup  = "cleanup"
	LoopReminder = "reminder"
	LoopBackup   = "backup"
)

const (
	triggerSweep  = "sweep"
	triggerManual = "manual"

	stopTimeout = 30 * time.Second
)

// ErrUnknownLoop is returned by Stop for a name that is not running
var ErrUnknownLoop = errors.New("unknown loop")

// Store is the slice of the repository the scheduler uses
type Store interface {
	GetGuildConfig(ctx context.Context, guildID string) (*storage.GuildConfig, error)
	FindGuildByGroupID(ctx context.Context, groupID int64) (*storage.GuildConfig, error)
	ListConfiguredGuilds(ctx context.Context) ([]*storage.GuildConfig, error)
	SetLastChange(ctx context.Context, guildID string, at time.Time) error
	PutStat(ctx context.Context, key, value string) error
	PutTimeStat(ctx context.Context, key string, t time.Time) error
	Backup(ctx context.Context, dir string, keep int, now time.Time) (string, error)
}

// Reconciler runs one guild pass
type Reconciler interface {
	Reconcile(ctx context.Context, t reconcile.Target) (*reconcile.Summary, error)
}

// Cleaner runs the guild lifecycle pass
type Cleaner interface {
	Run(ctx context.Context) (*lifecycle.Result, error)
}

// Config tunes the scheduler
type Config struct {
	// GuildTimeout bounds one guild pass; a pass in flight is never cut short
	// by shutdown, only by this timeout
	GuildTimeout time.Duration

	// Concurrency caps guild passes running at once during a sweep
	Concurrency int

	StatsInterval time.Duration

	// DailyStagger offsets the first runs of the daily loops from each other
	DailyStagger time.Duration

	BackupDir       string
	BackupRetention int
}

// SweepResult summarizes one sweep
type SweepResult struct {
	SweepID  string
	Guilds   int
	Synced   int
	Aborted  int
	Failed   int
	Skipped  int
	Duration time.Duration
}

// Scheduler owns the background loops
type Scheduler struct {
	store    Store
	engine   Reconciler
	cleaner  Cleaner
	platform platform.Platform
	observer platform.Observer
	cfg      Config
	now      func() time.Time

	supervisor *suture.Supervisor
	mu         sync.Mutex
	tokens     map[string]suture.ServiceToken
}

// New creates a scheduler whose loops wait for ready to be closed
func New(store Store, engine Reconciler, cleaner Cleaner, p platform.Platform, observer platform.Observer, cfg Config, ready <-chan struct{}) *Scheduler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.GuildTimeout <= 0 {
		cfg.GuildTimeout = 2 * time.Minute
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 5 * time.Minute
	}

	s := &Scheduler{
		store:    store,
		engine:   engine,
		cleaner:  cleaner,
		platform: p,
		observer: observer,
		cfg:      cfg,
		now:      time.Now,
		tokens:   make(map[string]suture.ServiceToken),
	}

	handler := &sutureslog.Handler{Logger: slog.Default()}
	s.supervisor = suture.New("scheduler", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          stopTimeout,
	})

	for _, l := range s.loops(ready) {
		s.tokens[l.name] = s.supervisor.Add(l)
	}
	return s
}

func (s *Scheduler) loops(ready <-chan struct{}) []*Loop {
	day := 24 * time.Hour
	stagger := s.cfg.DailyStagger
	return []*Loop{
		NewLoop(LoopSweep, Hourly{}, func(ctx context.Context) error {
			_, err := s.Sweep(ctx)
			return err
		}, ready),
		NewLoop(LoopStats, Interval{Every: s.cfg.StatsInterval}, s.RefreshStats, ready),
		NewLoop(LoopCleanup, Interval{Every: day, Offset: stagger}, func(ctx context.Context) error {
			_, err := s.cleaner.Run(ctx)
			return err
		}, ready),
		NewLoop(LoopReminder, Interval{Every: day, Offset: 2 * stagger}, func(ctx context.Context) error {
			_, err := s.SendReminders(ctx)
			return err
		}, ready),
		NewLoop(LoopBackup, Interval{Every: day, Offset: 3 * stagger}, func(ctx context.Context) error {
			_, err := s.Backup(ctx)
			return err
		}, ready),
	}
}

// Serve implements suture.Service; it runs every loop until ctx is done
func (s *Scheduler) Serve(ctx context.Context) error {
	return s.supervisor.Serve(ctx)
}

// String implements fmt.Stringer
func (s *Scheduler) String() string {
	return "scheduler"
}

// Stop stops a single loop and waits for its current iteration to finish
func (s *Scheduler) Stop(name string) error {
	s.mu.Lock()
	token, ok := s.tokens[name]
	delete(s.tokens, name)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLoop, name)
	}

	slog.Info("Stopping loop", "loop", name)
	return s.supervisor.RemoveAndWait(token, stopTimeout)
}

// Sweep reconciles every configured guild the bot can see, then stamps the
// global sync time. Cancellation is honored between guilds only.
func (s *Scheduler) Sweep(ctx context.Context) (*SweepResult, error) {
	start := s.now()
	res := &SweepResult{SweepID: uuid.NewString()}
	logger := slog.With("sweepID", res.SweepID)

	guilds, err := s.store.ListConfiguredGuilds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list configured guilds: %w", err)
	}
	res.Guilds = len(guilds)
	logger.Info("Starting sync sweep", "guilds", len(guilds), "concurrency", s.cfg.Concurrency)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)

	for _, cfg := range guilds {
		if ctx.Err() != nil {
			break
		}
		if cfg.InactiveSince != nil || !s.observer.CanObserve(cfg.GuildID) {
			res.Skipped++
			continue
		}
		target, err := reconcile.TargetFromConfig(cfg)
		if err != nil {
			res.Skipped++
			continue
		}

		// Blocks until a slot is free
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			_, err := s.syncOne(ctx, target, triggerSweep)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Synced++
			case errors.Is(err, reconcile.ErrInProgress):
				// A manual sync holds the guild
				res.Skipped++
			case errors.Is(err, reconcile.ErrAborted):
				res.Aborted++
			default:
				res.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Duration = s.now().Sub(start)
	if err := ctx.Err(); err != nil {
		logger.Warn("Sync sweep interrupted", "synced", res.Synced)
		return res, err
	}

	if err := s.store.PutTimeStat(ctx, storage.StatLastGlobalSync, s.now()); err != nil {
		return res, fmt.Errorf("failed to record sweep time: %w", err)
	}
	metrics.SweepDuration.Observe(res.Duration.Seconds())

	logger.Info("Sync sweep complete",
		"synced", res.Synced,
		"aborted", res.Aborted,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"duration", res.Duration,
	)
	return res, nil
}

// syncOne runs one guild pass on a context that outlives loop cancellation,
// so a guild's changes are never cut off halfway by shutdown
func (s *Scheduler) syncOne(ctx context.Context, target reconcile.Target, trigger string) (*reconcile.Summary, error) {
	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.GuildTimeout)
	defer cancel()

	summary, err := s.engine.Reconcile(gctx, target)
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, reconcile.ErrInProgress):
		outcome = "busy"
	case errors.Is(err, reconcile.ErrAborted):
		outcome = "aborted"
	default:
		outcome = "failed"
		slog.Error("Guild sync failed", "guildID", target.GuildID, "trigger", trigger, "error", err)
	}
	metrics.GuildSyncs.WithLabelValues(trigger, outcome).Inc()
	return summary, err
}

// SyncGuild runs an on-demand pass for one guild
func (s *Scheduler) SyncGuild(ctx context.Context, guildID string) (*reconcile.Summary, error) {
	cfg, err := s.store.GetGuildConfig(ctx, guildID)
	if err != nil {
		return nil, err
	}
	target, err := reconcile.TargetFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return s.syncOne(ctx, target, triggerManual)
}

// SyncGroup runs an on-demand pass for the guild configured with groupID
func (s *Scheduler) SyncGroup(ctx context.Context, groupID int64) (*reconcile.Summary, error) {
	cfg, err := s.store.FindGuildByGroupID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	target, err := reconcile.TargetFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return s.syncOne(ctx, target, triggerManual)
}

// RefreshStats persists the number of guilds the bot can currently see
func (s *Scheduler) RefreshStats(ctx context.Context) error {
	n := s.observer.ObservedCount()
	metrics.ObservedGuilds.Set(float64(n))
	if err := s.store.PutStat(ctx, storage.StatServerCount, strconv.Itoa(n)); err != nil {
		return fmt.Errorf("failed to store server count: %w", err)
	}
	return nil
}

// SendReminders nudges guilds that have had no changes for their reminder
// interval and restarts their change clock. It returns the number sent.
func (s *Scheduler) SendReminders(ctx context.Context) (int, error) {
	guilds, err := s.store.ListConfiguredGuilds(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list configured guilds: %w", err)
	}

	sent := 0
	for _, cfg := range guilds {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if cfg.ReminderIntervalDays <= 0 || cfg.LogChannelID == "" || cfg.InactiveSince != nil {
			continue
		}
		if !s.observer.CanObserve(cfg.GuildID) {
			continue
		}

		now := s.now().UTC()
		// Start the clock for guilds that never recorded a change
		if cfg.LastChange == nil {
			if err := s.store.SetLastChange(ctx, cfg.GuildID, now); err != nil {
				slog.Error("Failed to start reminder clock", "guildID", cfg.GuildID, "error", err)
			}
			continue
		}

		interval := time.Duration(cfg.ReminderIntervalDays) * 24 * time.Hour
		if now.Sub(*cfg.LastChange) < interval {
			continue
		}

		if err := s.platform.SendMessage(ctx, cfg.LogChannelID, reminderMessage(cfg.ReminderIntervalDays)); err != nil {
			slog.Warn("Failed to send reminder", "guildID", cfg.GuildID, "error", err)
			continue
		}
		if err := s.store.SetLastChange(ctx, cfg.GuildID, now); err != nil {
			slog.Error("Failed to reset reminder clock", "guildID", cfg.GuildID, "error", err)
			continue
		}
		sent++
		slog.Info("Sent rank reminder", "guildID", cfg.GuildID, "days", cfg.ReminderIntervalDays)
	}
	return sent, nil
}

// Backup writes a dated snapshot of the database
func (s *Scheduler) Backup(ctx context.Context) (string, error) {
	path, err := s.store.Backup(ctx, s.cfg.BackupDir, s.cfg.BackupRetention, s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("backup failed: %w", err)
	}
	slog.Info("Database backup complete", "path", path)
	return path, nil
}

func reminderMessage(days int) string {
	return fmt.Sprintf("⏰ **Rank check reminder:** no rank changes have been synced in the last %d days. "+
		"Make sure in-game ranks are up to date and your Wise Old Man group has been updated.", days)
}
