// Package lifecycle tracks whether configured guilds are still reachable and
// purges the ones that have been gone for longer than the grace period.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/metrics"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/platform"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/storage"
)

// DefaultGrace is how long a guild may stay unobservable before it is purged
const DefaultGrace = 30 * 24 * time.Hour

// State is a guild's lifecycle state
type State int

const (
	Active State = iota
	Inactive
	Purged
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	case Purged:
		return "purged"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateOf returns the stored state of a guild config
func StateOf(cfg *storage.GuildConfig) State {
	if cfg.InactiveSince != nil {
		return Inactive
	}
	return Active
}

// Action is the transition Evaluate selects
type Action int

const (
	None Action = iota
	MarkInactive
	Reactivate
	Purge
)

func (a Action) String() string {
	switch a {
	case None:
		return "none"
	case MarkInactive:
		return "mark_inactive"
	case Reactivate:
		return "reactivate"
	case Purge:
		return "purge"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Evaluate decides the transition for one guild
func Evaluate(cfg *storage.GuildConfig, observable bool, now time.Time, grace time.Duration) Action {
	switch {
	case observable && cfg.InactiveSince != nil:
		return Reactivate
	case observable:
		return None
	case cfg.InactiveSince == nil:
		return MarkInactive
	case now.Sub(*cfg.InactiveSince) >= grace:
		return Purge
	default:
		return None
	}
}

// Store is the slice of the repository the tracker uses
type Store interface {
	ListGuildConfigs(ctx context.Context) ([]*storage.GuildConfig, error)
	MarkInactive(ctx context.Context, guildID string, since time.Time) (bool, error)
	ClearInactive(ctx context.Context, guildID string) (bool, error)
	PurgeGuild(ctx context.Context, guildID string, inactiveBefore time.Time) (bool, error)
}

// Result counts the transitions applied by one Run
type Result struct {
	Checked     int
	Marked      int
	Reactivated int
	Purged      int
	Errors      int
}

// Tracker applies lifecycle transitions to stored guilds
type Tracker struct {
	store    Store
	observer platform.Observer
	grace    time.Duration
	now      func() time.Time
}

// NewTracker creates a tracker. A non-positive grace uses DefaultGrace.
func NewTracker(store Store, observer platform.Observer, grace time.Duration) *Tracker {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Tracker{
		store:    store,
		observer: observer,
		grace:    grace,
		now:      time.Now,
	}
}

// SetClock overrides the tracker's time source
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Run evaluates every stored guild once. Each transition is its own store
// write; a failing row is logged and counted, and cancellation is honored
// between rows.
func (t *Tracker) Run(ctx context.Context) (*Result, error) {
	configs, err := t.store.ListGuildConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list guilds: %w", err)
	}

	res := &Result{}
	inactive := 0
	for _, cfg := range configs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++

		now := t.now().UTC()
		action := Evaluate(cfg, t.observer.CanObserve(cfg.GuildID), now, t.grace)
		if err := t.apply(ctx, cfg.GuildID, action, now, res); err != nil {
			res.Errors++
			slog.Error("Failed to apply guild lifecycle transition",
				"guildID", cfg.GuildID, "action", action.String(), "error", err)
		}

		switch {
		case action == MarkInactive:
			inactive++
		case action == None && cfg.InactiveSince != nil:
			inactive++
		}
	}
	metrics.InactiveGuilds.Set(float64(inactive))

	slog.Info("Guild cleanup complete",
		"checked", res.Checked,
		"marked", res.Marked,
		"reactivated", res.Reactivated,
		"purged", res.Purged,
		"errors", res.Errors,
	)
	return res, nil
}

func (t *Tracker) apply(ctx context.Context, guildID string, action Action, now time.Time, res *Result) error {
	switch action {
	case MarkInactive:
		marked, err := t.store.MarkInactive(ctx, guildID, now)
		if err != nil {
			return err
		}
		if marked {
			res.Marked++
			slog.Info("Guild marked inactive", "guildID", guildID)
		}
	case Reactivate:
		cleared, err := t.store.ClearInactive(ctx, guildID)
		if err != nil {
			return err
		}
		if cleared {
			res.Reactivated++
			slog.Info("Guild active again", "guildID", guildID)
		}
	case Purge:
		purged, err := t.store.PurgeGuild(ctx, guildID, now.Add(-t.grace))
		if err != nil {
			return err
		}
		if purged {
			res.Purged++
			slog.Info("Purged inactive guild", "guildID", guildID)
		}
	}
	return nil
}

// Observe records a gateway visibility change for a guild immediately. It
// never purges; that is left to Run.
func (t *Tracker) Observe(ctx context.Context, guildID string, observable bool) error {
	if observable {
		cleared, err := t.store.ClearInactive(ctx, guildID)
		if err != nil {
			return fmt.Errorf("failed to clear inactive marker: %w", err)
		}
		if cleared {
			slog.Info("Guild active again", "guildID", guildID)
		}
		return nil
	}

	marked, err := t.store.MarkInactive(ctx, guildID, t.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark guild inactive: %w", err)
	}
	if marked {
		slog.Info("Guild marked inactive", "guildID", guildID)
	}
	return nil
}
