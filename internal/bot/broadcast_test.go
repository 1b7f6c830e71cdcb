package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/platform"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/platform/platformtest"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/storage"
)

func newRepo(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "wom_multi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestBroadcast(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newRepo(t)

	for idx, id := range []string{"a", "b", "c", "inactive", "nolog"} {
		require.NoError(t, repo.SetGroupID(ctx, id, int64(idx+1)))
		if id != "nolog" {
			require.NoError(t, repo.SetLogChannel(ctx, id, "log-"+id))
		}
	}
	_, err := repo.MarkInactive(ctx, "inactive", time.Now())
	require.NoError(t, err)

	plat := platformtest.NewMemory()
	plat.FailChannel("log-b", fmt.Errorf("%w: missing access", platform.ErrForbidden))

	b := NewBroadcaster(repo, plat)
	b.delay = time.Millisecond

	res, err := b.Broadcast(ctx, "Maintenance tonight")
	require.NoError(t, err)
	assert.Equal(t, &BroadcastResult{Sent: 2, Failed: 1}, res)

	var targets []string
	for _, m := range plat.Messages() {
		assert.Equal(t, "Maintenance tonight", m.Content)
		targets = append(targets, m.Target)
	}
	assert.ElementsMatch(t, []string{"log-a", "log-c"}, targets)
}

func TestBroadcast_StopsOnCancel(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx, cancel := context.WithCancel(context.Background())

	for idx, id := range []string{"a", "b"} {
		require.NoError(t, repo.SetGroupID(ctx, id, int64(idx+1)))
		require.NoError(t, repo.SetLogChannel(ctx, id, "log-"+id))
	}

	plat := platformtest.NewMemory()
	b := NewBroadcaster(repo, plat)
	b.delay = time.Hour

	go func() {
		assert.Eventually(t, func() bool { return len(plat.Messages()) == 1 }, 2*time.Second, time.Millisecond)
		cancel()
	}()

	res, err := b.Broadcast(ctx, "hello")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Sent)
}

type failingChannels struct{}

func (failingChannels) ListActiveLogChannels(context.Context) ([]*storage.GuildConfig, error) {
	return nil, errors.New("database is locked")
}

func TestBroadcast_StoreFailure(t *testing.T) {
	t.Parallel()

	_, err := NewBroadcaster(failingChannels{}, platformtest.NewMemory()).Broadcast(context.Background(), "hi")
	require.Error(t, err)
}
