package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/platform"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/storage"
)

const defaultBroadcastDelay = 500 * time.Millisecond

// LogChannelStore lists guilds that have a log channel and are not inactive
type LogChannelStore interface {
	ListActiveLogChannels(ctx context.Context) ([]*storage.GuildConfig, error)
}

// BroadcastResult counts deliveries of one broadcast
type BroadcastResult struct {
	Sent   int
	Failed int
}

// Broadcaster sends owner announcements to every active log channel
type Broadcaster struct {
	store    LogChannelStore
	platform platform.Platform
	delay    time.Duration
}

// NewBroadcaster creates a broadcaster that spaces sends by 500ms
func NewBroadcaster(store LogChannelStore, p platform.Platform) *Broadcaster {
	return &Broadcaster{
		store:    store,
		platform: p,
		delay:    defaultBroadcastDelay,
	}
}

// Broadcast sends message to each active log channel in turn. Delivery
// failures are counted, not returned.
func (b *Broadcaster) Broadcast(ctx context.Context, message string) (*BroadcastResult, error) {
	guilds, err := b.store.ListActiveLogChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list log channels: %w", err)
	}

	res := &BroadcastResult{}
	for idx, cfg := range guilds {
		if idx > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(b.delay):
			}
		}

		if err := b.platform.SendMessage(ctx, cfg.LogChannelID, message); err != nil {
			slog.Warn("Failed to send broadcast", "guildID", cfg.GuildID, "channelID", cfg.LogChannelID, "error", err)
			res.Failed++
			continue
		}
		res.Sent++
	}

	slog.Info("Broadcast complete", "sent", res.Sent, "failed", res.Failed)
	return res, nil
}
