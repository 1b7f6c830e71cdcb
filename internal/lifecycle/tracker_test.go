package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/platform/platformtest"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/storage"
)

var base = time.Date(2024, 6, 1, 4, 0, 0, 0, time.UTC)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	since := func(d time.Duration) *time.Time {
		ts := base.Add(-d)
		return &ts
	}

	tests := []struct {
		name       string
		inactive   *time.Time
		observable bool
		want       Action
	}{
		{name: "active and visible", observable: true, want: None},
		{name: "becomes invisible", observable: false, want: MarkInactive},
		{name: "visible again", inactive: since(time.Hour), observable: true, want: Reactivate},
		{name: "visible again after grace", inactive: since(40 * 24 * time.Hour), observable: true, want: Reactivate},
		{name: "within grace", inactive: since(29 * 24 * time.Hour), observable: false, want: None},
		{name: "exactly at grace", inactive: since(DefaultGrace), observable: false, want: Purge},
		{name: "past grace", inactive: since(31 * 24 * time.Hour), observable: false, want: Purge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &storage.GuildConfig{GuildID: "g", InactiveSince: tt.inactive}
			assert.Equal(t, tt.want, Evaluate(cfg, tt.observable, base, DefaultGrace))
		})
	}
}

func TestStateOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Active, StateOf(&storage.GuildConfig{}))
	assert.Equal(t, Inactive, StateOf(&storage.GuildConfig{InactiveSince: &base}))
	assert.Equal(t, "inactive", Inactive.String())
	assert.Equal(t, "purge", Purge.String())
}

func newTestStore(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "wom_multi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestTracker_RunLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newTestStore(t)
	plat := platformtest.NewMemory()

	for _, id := range []string{"visible", "gone"} {
		require.NoError(t, repo.SetGroupID(ctx, id, 1))
	}
	require.NoError(t, repo.UpsertLink(ctx, "gone", "u1", "Zezima"))
	_, err := repo.PutRoleMapping(ctx, "gone", "owner", "r1")
	require.NoError(t, err)
	plat.AddGuild("visible", "Visible")

	now := base
	tracker := NewTracker(repo, plat, DefaultGrace)
	tracker.SetClock(func() time.Time { return now })

	// Day 0: the missing guild is marked inactive
	res, err := tracker.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 1, res.Marked)

	cfg, err := repo.GetGuildConfig(ctx, "gone")
	require.NoError(t, err)
	require.NotNil(t, cfg.InactiveSince)
	assert.True(t, cfg.InactiveSince.Equal(base))

	// Day 29: still within grace, the original timestamp is kept
	now = base.Add(29 * 24 * time.Hour)
	res, err = tracker.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Marked)
	assert.Zero(t, res.Purged)
	cfg, err = repo.GetGuildConfig(ctx, "gone")
	require.NoError(t, err)
	assert.True(t, cfg.InactiveSince.Equal(base))

	// Day 30: purged with its links and mappings
	now = base.Add(DefaultGrace)
	res, err = tracker.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Purged)

	_, err = repo.GetGuildConfig(ctx, "gone")
	require.ErrorIs(t, err, storage.ErrNotFound)
	links, err := repo.ListLinks(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, links)
	mappings, err := repo.ListRoleMappings(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, mappings)

	_, err = repo.GetGuildConfig(ctx, "visible")
	require.NoError(t, err)
}

func TestTracker_RunReactivates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newTestStore(t)
	plat := platformtest.NewMemory()

	require.NoError(t, repo.SetGroupID(ctx, "g1", 1))
	_, err := repo.MarkInactive(ctx, "g1", base.Add(-40*24*time.Hour))
	require.NoError(t, err)
	plat.AddGuild("g1", "Back")

	tracker := NewTracker(repo, plat, DefaultGrace)
	tracker.SetClock(func() time.Time { return base })

	res, err := tracker.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reactivated)
	assert.Zero(t, res.Purged, "a visible guild is never purged")

	cfg, err := repo.GetGuildConfig(ctx, "g1")
	require.NoError(t, err)
	assert.Nil(t, cfg.InactiveSince)
}

func TestTracker_RunStopsBetweenRowsOnCancel(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	require.NoError(t, repo.SetGroupID(context.Background(), "g1", 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tracker := NewTracker(repo, platformtest.NewMemory(), DefaultGrace)
	res, err := tracker.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Checked)
}

type failingStore struct {
	*storage.Repository
}

func (failingStore) MarkInactive(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("disk I/O error")
}

func TestTracker_RunContinuesAfterRowError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newTestStore(t)
	require.NoError(t, repo.SetGroupID(ctx, "a", 1))
	require.NoError(t, repo.SetGroupID(ctx, "b", 2))
	_, err := repo.MarkInactive(ctx, "b", base.Add(-time.Hour))
	require.NoError(t, err)

	plat := platformtest.NewMemory()
	plat.AddGuild("b", "B")

	tracker := NewTracker(failingStore{repo}, plat, DefaultGrace)
	tracker.SetClock(func() time.Time { return base })

	res, err := tracker.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Reactivated, "later rows still processed")
}

func TestTracker_Observe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newTestStore(t)
	require.NoError(t, repo.SetGroupID(ctx, "g1", 1))

	tracker := NewTracker(repo, platformtest.NewMemory(), DefaultGrace)
	now := base
	tracker.SetClock(func() time.Time { return now })

	require.NoError(t, tracker.Observe(ctx, "g1", false))
	now = base.Add(time.Hour)
	require.NoError(t, tracker.Observe(ctx, "g1", false))

	cfg, err := repo.GetGuildConfig(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, cfg.InactiveSince)
	assert.True(t, cfg.InactiveSince.Equal(base), "first sighting wins")

	require.NoError(t, tracker.Observe(ctx, "g1", true))
	cfg, err = repo.GetGuildConfig(ctx, "g1")
	require.NoError(t, err)
	assert.Nil(t, cfg.InactiveSince)

	// Unknown guilds are a no-op
	require.NoError(t, tracker.Observe(ctx, "unknown", false))
}
