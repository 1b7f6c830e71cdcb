package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/reconcile"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/storage"
)

const commandTimeout = 10 * time.Second

// Syncer runs on-demand guild passes
type Syncer interface {
	SyncGuild(ctx context.Context, guildID string) (*reconcile.Summary, error)
	SyncGroup(ctx context.Context, groupID int64) (*reconcile.Summary, error)
}

// GuildObserver records whether the bot can see a guild
type GuildObserver interface {
	Observe(ctx context.Context, guildID string, observable bool) error
}

// Bot represents the Discord bot instance
type Bot struct {
	session     *discordgo.Session
	repo        *storage.Repository
	syncer      Syncer
	observer    GuildObserver
	broadcaster *Broadcaster
	ownerID     string

	ready     chan struct{}
	readyOnce sync.Once
	commands  []*discordgo.ApplicationCommand
}

// NewSession creates a Discord session with the intents the bot needs:
// guilds for lifecycle events and members for role sync
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	session.StateEnabled = true
	return session, nil
}

// New creates a new Bot instance. /sync is unavailable until SetSyncer is
// called.
func New(session *discordgo.Session, repo *storage.Repository, observer GuildObserver, broadcaster *Broadcaster, ownerID string) *Bot {
	b := &Bot{
		session:     session,
		repo:        repo,
		observer:    observer,
		broadcaster: broadcaster,
		ownerID:     ownerID,
		ready:       make(chan struct{}),
	}

	b.registerHandlers()

	return b
}

// SetSyncer wires the on-demand sync runner
func (b *Bot) SetSyncer(s Syncer) {
	b.syncer = s
}

// Ready is closed once the gateway session is ready and guild state is
// populated
func (b *Bot) Ready() <-chan struct{} {
	return b.ready
}

// Start opens the Discord connection and registers slash commands
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	return nil
}

// Stop closes the Discord session
func (b *Bot) Stop() error {
	if b.session != nil {
		return b.session.Close()
	}
	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(b.handleReady)
	b.session.AddHandler(b.handleGuildCreate)
	b.session.AddHandler(b.handleGuildDelete)
}

func (b *Bot) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	slog.Info("Bot is ready", "user", r.User.Username, "guilds", len(r.Guilds))
	b.readyOnce.Do(func() { close(b.ready) })
}

func (b *Bot) handleGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Unavailable {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := b.observer.Observe(ctx, g.ID, true); err != nil {
		slog.Error("Failed to record guild as visible", "guildID", g.ID, "error", err)
	}
}

// handleGuildDelete marks the guild inactive when the bot was removed. An
// unavailable guild is an outage, not a removal.
func (b *Bot) handleGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Unavailable {
		slog.Warn("Guild became unavailable", "guildID", g.ID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	slog.Info("Removed from guild", "guildID", g.ID)
	if err := b.observer.Observe(ctx, g.ID, false); err != nil {
		slog.Error("Failed to record guild as gone", "guildID", g.ID, "error", err)
	}
}

// handleInteraction routes slash commands, autocomplete requests and
// player list page buttons
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		b.handleAutocomplete(s, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(s, i)
	}
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	slog.Debug("Received command", "command", data.Name, "guild", i.GuildID, "user", interactionUserID(i))

	if i.GuildID == "" {
		respondWithMessage(s, i, "This command can only be used in a server.")
		return
	}

	handler, ok := b.handlers()[data.Name]
	if !ok {
		slog.Warn("Unknown command", "command", data.Name)
		return
	}
	if ownerOnly[data.Name] && !b.isOwner(i) {
		respondWithMessage(s, i, "Restricted to Bot Developer.")
		return
	}
	handler(s, i)
}

func (b *Bot) isOwner(i *discordgo.InteractionCreate) bool {
	return b.ownerID != "" && interactionUserID(i) == b.ownerID
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
