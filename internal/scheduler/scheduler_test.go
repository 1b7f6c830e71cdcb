package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/lifecycle"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/platform"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/platform/platformtest"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/reconcile"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/storage"
)

type fakeEngine struct {
	mu        sync.Mutex
	calls     []string
	errs      map[string]error
	active    int
	maxActive int
	delay     time.Duration
	onCall    func(guildID string)
	ctxErrs   []error
}

func (f *fakeEngine) Reconcile(ctx context.Context, t reconcile.Target) (*reconcile.Summary, error) {
	f.mu.Lock()
	f.calls = append(f.calls, t.GuildID)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	onCall := f.onCall
	f.mu.Unlock()

	if onCall != nil {
		onCall(t.GuildID)
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if err := f.errs[t.GuildID]; err != nil {
		return nil, err
	}
	return &reconcile.Summary{GuildID: t.GuildID}, nil
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeCleaner struct {
	runs atomic.Int32
}

func (c *fakeCleaner) Run(context.Context) (*lifecycle.Result, error) {
	c.runs.Add(1)
	return &lifecycle.Result{}, nil
}

type harness struct {
	repo   *storage.Repository
	plat   *platformtest.Memory
	engine *fakeEngine
	sched  *Scheduler
	ready  chan struct{}
	now    time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "wom_multi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	h := &harness{
		repo:   repo,
		plat:   platformtest.NewMemory(),
		engine: &fakeEngine{errs: map[string]error{}},
		ready:  make(chan struct{}),
		now:    time.Date(2024, 6, 10, 3, 0, 0, 0, time.UTC),
	}
	h.sched = New(repo, h.engine, &fakeCleaner{}, h.plat, h.plat, cfg, h.ready)
	h.sched.now = func() time.Time { return h.now }
	return h
}

func (h *harness) addGuild(t *testing.T, id string, groupID int64) {
	t.Helper()
	require.NoError(t, h.repo.SetGroupID(context.Background(), id, groupID))
	h.plat.AddGuild(id, id)
}

func TestSweep_SyncsObservableConfiguredGuilds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, Config{})

	h.addGuild(t, "g1", 1)
	h.addGuild(t, "g2", 2)
	h.addGuild(t, "g3", 3)
	h.addGuild(t, "g4", 4)
	require.NoError(t, h.repo.EnsureGuild(ctx, "unconfigured"))
	_, err := h.repo.MarkInactive(ctx, "g3", h.now)
	require.NoError(t, err)
	h.plat.SetObservable("g4", false)
	h.engine.errs["g2"] = fmt.Errorf("%w: HTTP 500", reconcile.ErrAborted)

	res, err := h.sched.Sweep(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, res.SweepID)
	assert.Equal(t, 4, res.Guilds)
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 1, res.Aborted)
	assert.Equal(t, 2, res.Skipped)
	assert.ElementsMatch(t, []string{"g1", "g2"}, h.engine.Calls())

	stats, err := h.repo.LoadStats(ctx)
	require.NoError(t, err)
	require.NotNil(t, stats.LastGlobalSync)
	assert.True(t, stats.LastGlobalSync.Equal(h.now))
}

func TestSweep_FailedGuildDoesNotStopSweep(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})

	h.addGuild(t, "g1", 1)
	h.addGuild(t, "g2", 2)
	h.engine.errs["g1"] = errors.New("database is locked")

	res, err := h.sched.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Synced)
}

func TestSweep_GuildHeldByManualSyncIsSkipped(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})

	h.addGuild(t, "g1", 1)
	h.addGuild(t, "g2", 2)
	h.engine.errs["g1"] = reconcile.ErrInProgress

	res, err := h.sched.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Failed)
}

func TestSweep_RespectsConcurrencyCap(t *testing.T) {
	t.Parallel()

	for _, limit := range []int{1, 2} {
		t.Run(strconv.Itoa(limit), func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, Config{Concurrency: limit})
			h.engine.delay = 20 * time.Millisecond
			for i := range 5 {
				h.addGuild(t, fmt.Sprintf("g%d", i), int64(i+1))
			}

			res, err := h.sched.Sweep(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 5, res.Synced)
			assert.LessOrEqual(t, h.engine.maxActive, limit)
		})
	}
}

func TestSweep_CancellationBetweenGuilds(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{Concurrency: 1})
	for i := range 3 {
		h.addGuild(t, fmt.Sprintf("g%d", i), int64(i+1))
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.engine.delay = 10 * time.Millisecond
	h.engine.onCall = func(string) { cancel() }

	res, err := h.sched.Sweep(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Synced, "the guild in flight completes")
	assert.Len(t, h.engine.Calls(), 1, "no guild starts after cancellation")
	require.Len(t, h.engine.ctxErrs, 1)
	assert.NoError(t, h.engine.ctxErrs[0], "a guild pass is not cancelled mid-flight")

	_, err = h.repo.GetStat(context.Background(), storage.StatLastGlobalSync)
	assert.ErrorIs(t, err, storage.ErrNotFound, "an interrupted sweep is not stamped")
}

func TestSyncGuildAndGroup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.addGuild(t, "g1", 42)
	require.NoError(t, h.repo.EnsureGuild(ctx, "bare"))

	summary, err := h.sched.SyncGuild(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", summary.GuildID)

	summary, err = h.sched.SyncGroup(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "g1", summary.GuildID)

	_, err = h.sched.SyncGroup(ctx, 7)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = h.sched.SyncGuild(ctx, "bare")
	assert.ErrorIs(t, err, reconcile.ErrNoGroup)
}

func TestRefreshStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.plat.AddGuild("a", "A")
	h.plat.AddGuild("b", "B")
	h.plat.AddGuild("c", "C")
	h.plat.SetObservable("c", false)

	require.NoError(t, h.sched.RefreshStats(ctx))

	v, err := h.repo.GetStat(ctx, storage.StatServerCount)
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestSendReminders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, Config{})

	setup := func(id string, days int, lastChange *time.Time) {
		h.addGuild(t, id, int64(len(id)))
		require.NoError(t, h.repo.SetLogChannel(ctx, id, "log-"+id))
		require.NoError(t, h.repo.SetReminderInterval(ctx, id, days))
		if lastChange != nil {
			require.NoError(t, h.repo.SetLastChange(ctx, id, *lastChange))
		}
	}
	stale := h.now.Add(-8 * 24 * time.Hour)
	fresh := h.now.Add(-2 * 24 * time.Hour)

	setup("due", 7, &stale)
	setup("fresh", 7, &fresh)
	setup("off", 0, &stale)
	setup("never", 7, nil)

	sent, err := h.sched.SendReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	msgs := h.plat.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "log-due", msgs[0].Target)
	assert.Contains(t, msgs[0].Content, "7 days")

	due, err := h.repo.GetGuildConfig(ctx, "due")
	require.NoError(t, err)
	assert.True(t, due.LastChange.Equal(h.now), "firing resets the change clock")

	never, err := h.repo.GetGuildConfig(ctx, "never")
	require.NoError(t, err)
	require.NotNil(t, never.LastChange, "a missing clock is started, not fired")
	assert.True(t, never.LastChange.Equal(h.now))

	// An immediate second check must not fire again
	sent, err = h.sched.SendReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, h.plat.Messages(), 1)
}

func TestSendReminders_DeliveryFailureKeepsClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, Config{})

	stale := h.now.Add(-30 * 24 * time.Hour)
	h.addGuild(t, "g1", 1)
	require.NoError(t, h.repo.SetLogChannel(ctx, "g1", "log"))
	require.NoError(t, h.repo.SetReminderInterval(ctx, "g1", 7))
	require.NoError(t, h.repo.SetLastChange(ctx, "g1", stale))
	h.plat.FailChannel("log", fmt.Errorf("%w: missing access", platform.ErrForbidden))

	sent, err := h.sched.SendReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	cfg, err := h.repo.GetGuildConfig(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, cfg.LastChange.Equal(stale))
}

func TestSendReminders_SkipsUnobservableGuilds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, Config{})

	stale := h.now.Add(-30 * 24 * time.Hour)
	h.addGuild(t, "g1", 1)
	require.NoError(t, h.repo.SetLogChannel(ctx, "g1", "log"))
	require.NoError(t, h.repo.SetLastChange(ctx, "g1", stale))
	h.plat.SetObservable("g1", false)

	sent, err := h.sched.SendReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestBackup(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	h := newHarness(t, Config{BackupDir: dir, BackupRetention: 3})

	path, err := h.sched.Backup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Contains(t, filepath.Base(path), "2024-06-10")

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestScheduler_LoopsWaitForReadyAndStopIndependently(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{StatsInterval: 10 * time.Millisecond, DailyStagger: time.Hour})
	h.plat.AddGuild("a", "A")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := h.sched.supervisor.ServeBackground(ctx)

	time.Sleep(50 * time.Millisecond)
	_, err := h.repo.GetStat(ctx, storage.StatServerCount)
	require.ErrorIs(t, err, storage.ErrNotFound, "no loop runs before ready")

	close(h.ready)
	require.Eventually(t, func() bool {
		v, err := h.repo.GetStat(ctx, storage.StatServerCount)
		return err == nil && v == "1"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.sched.Stop(LoopStats))
	assert.ErrorIs(t, h.sched.Stop(LoopStats), ErrUnknownLoop)

	// Stats are no longer refreshed once the loop is stopped
	h.plat.AddGuild("b", "B")
	time.Sleep(50 * time.Millisecond)
	v, err := h.repo.GetStat(ctx, storage.StatServerCount)
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
