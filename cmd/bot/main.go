package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
	"golang.org/x/time/rate"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/api"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/bot"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/config"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/lifecycle"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/platform"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/reconcile"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/scheduler"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/storage"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/wom"
)

func main() {
	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFiles []string
		cfg      *config.Config
	)

	root := &cobra.Command{
		Use:           "wombot",
		Short:         "Sync Wise Old Man group ranks to Discord roles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if cfg, err = config.Load(envFiles...); err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), cfg)
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env files to load (default config.env and .env)")

	root.AddCommand(
		&cobra.Command{
			Use:   "backup",
			Short: "Write a database snapshot and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runBackup(cmd.Context(), cfg)
			},
		},
	)

	var guildID string
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile one guild once without starting the scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), cfg, guildID)
		},
	}
	syncCmd.Flags().StringVar(&guildID, "guild", "", "Discord guild ID to sync")
	_ = syncCmd.MarkFlagRequired("guild")
	root.AddCommand(syncCmd)

	return root
}

// runBot starts the Discord session and supervises the scheduler and status
// server until ctx is cancelled
func runBot(ctx context.Context, cfg *config.Config) error {
	slog.Info("Starting WOM Role Sync Bot")

	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer repo.Close()

	session, err := bot.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	discord := platform.NewDiscord(session)

	engine := reconcile.NewEngine(newWOMClient(cfg), repo, discord)
	tracker := lifecycle.NewTracker(repo, discord, cfg.InactiveGrace)

	b := bot.New(session, repo, tracker, bot.NewBroadcaster(repo, discord), cfg.OwnerID)
	sched := scheduler.New(repo, engine, tracker, discord, discord, scheduler.Config{
		GuildTimeout:    cfg.GuildTimeout,
		Concurrency:     cfg.SweepConcurrency,
		StatsInterval:   cfg.StatsInterval,
		DailyStagger:    cfg.DailyStagger,
		BackupDir:       cfg.BackupDir,
		BackupRetention: cfg.BackupRetention,
	}, b.Ready())
	b.SetSyncer(sched)

	handler := &sutureslog.Handler{Logger: slog.Default()}
	supervisor := suture.New("wombot", suture.Spec{
		EventHook: handler.MustHook(),
		Timeout:   time.Minute,
	})
	supervisor.Add(sched)
	supervisor.Add(api.NewServer(cfg.APIAddr, api.NewRouter(repo, cfg.WebsiteDir)))

	if err := b.Start(); err != nil {
		return err
	}

	slog.Info("Bot is running. Press Ctrl+C to stop.")
	err = supervisor.Serve(ctx)

	slog.Info("Shutting down...")
	if stopErr := b.Stop(); stopErr != nil {
		slog.Error("Error during shutdown", "error", stopErr)
	}
	slog.Info("Bot stopped")

	if ctx.Err() != nil {
		return nil
	}
	return err
}

// runBackup writes one snapshot using the configured directory and retention
func runBackup(ctx context.Context, cfg *config.Config) error {
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer repo.Close()

	path, err := repo.Backup(ctx, cfg.BackupDir, cfg.BackupRetention, time.Now().UTC())
	if err != nil {
		return err
	}
	slog.Info("Database backup complete", "path", path)
	return nil
}

// runSync reconciles one guild over the REST API without a gateway session
func runSync(ctx context.Context, cfg *config.Config, guildID string) error {
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer repo.Close()

	guild, err := repo.GetGuildConfig(ctx, guildID)
	if err != nil {
		return err
	}
	target, err := reconcile.TargetFromConfig(guild)
	if err != nil {
		return err
	}

	session, err := bot.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}

	engine := reconcile.NewEngine(newWOMClient(cfg), repo, platform.NewDiscord(session))
	summary, err := engine.Reconcile(ctx, target)
	if err != nil {
		return err
	}

	slog.Info("Sync finished",
		"guildID", summary.GuildID,
		"guild", summary.GuildName,
		"checked", summary.Checked,
		"updated", summary.Changed,
		"failed", summary.Failed,
	)
	return nil
}

// newWOMClient builds the group client; its limiter spaces every WOM request
// by GUILD_DELAY across the sweep and manual syncs
func newWOMClient(cfg *config.Config) *wom.Client {
	limit := rate.Inf
	if cfg.GuildDelay > 0 {
		limit = rate.Every(cfg.GuildDelay)
	}
	return wom.NewClient(wom.Options{
		BaseURL:   cfg.WOMBaseURL,
		APIKey:    cfg.WOMAPIKey,
		UserAgent: cfg.WOMUserAgent,
		Timeout:   cfg.WOMTimeout,
		Limiter:   rate.NewLimiter(limit, 1),
	})
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
