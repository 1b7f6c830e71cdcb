package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/storage/migrations"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/wom"
)

// timeFormat is fixed width so timestamps sort lexically in SQL
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a guild config, link or mapping does not exist
var ErrNotFound = errors.New("not found")

// Repository handles all database operations
type Repository struct {
	db   *sql.DB
	path string
}

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := filepath.Clean(dbPath) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one connection keeps per-guild
	// transactions from the different loops strictly serialized.
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db, path: dbPath}

	// Run migrations
	if err := applyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// withTx runs fn inside a transaction, committing only if fn succeeds
func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Guild config operations

const guildColumns = `guild_id, group_id, last_sync, last_change, inactive_since, log_channel_id,
	nickname_enforcement, reminder_interval_days, dm_notifications_on`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGuildConfig(row rowScanner) (*GuildConfig, error) {
	var (
		g                                 GuildConfig
		groupID                           sql.NullInt64
		lastSync, lastChange, inactive    sql.NullString
		logChannel                        sql.NullString
		nickEnforce, dmNotify, remindDays int64
	)
	if err := row.Scan(&g.GuildID, &groupID, &lastSync, &lastChange, &inactive, &logChannel,
		&nickEnforce, &remindDays, &dmNotify); err != nil {
		return nil, err
	}

	var err error
	if groupID.Valid {
		id := groupID.Int64
		g.GroupID = &id
	}
	if g.LastSync, err = parseTime(lastSync); err != nil {
		return nil, err
	}
	if g.LastChange, err = parseTime(lastChange); err != nil {
		return nil, err
	}
	if g.InactiveSince, err = parseTime(inactive); err != nil {
		return nil, err
	}
	g.LogChannelID = logChannel.String
	g.NicknameEnforcement = nickEnforce != 0
	g.ReminderIntervalDays = int(remindDays)
	g.DMNotifications = dmNotify != 0
	return &g, nil
}

func (r *Repository) queryGuildConfigs(ctx context.Context, where string, args ...any) ([]*GuildConfig, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+guildColumns+` FROM guild_configs `+where+` ORDER BY guild_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*GuildConfig
	for rows.Next() {
		g, err := scanGuildConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, g)
	}
	return configs, rows.Err()
}

// GetGuildConfig retrieves a guild's configuration
func (r *Repository) GetGuildConfig(ctx context.Context, guildID string) (*GuildConfig, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+guildColumns+` FROM guild_configs WHERE guild_id = ?`, guildID)
	g, err := scanGuildConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("guild %s: %w", guildID, ErrNotFound)
	}
	return g, err
}

// ListGuildConfigs returns every known guild, configured or not
func (r *Repository) ListGuildConfigs(ctx context.Context) ([]*GuildConfig, error) {
	return r.queryGuildConfigs(ctx, "")
}

// ListConfiguredGuilds returns the guilds that have a WOM group set
func (r *Repository) ListConfiguredGuilds(ctx context.Context) ([]*GuildConfig, error) {
	return r.queryGuildConfigs(ctx, "WHERE group_id IS NOT NULL")
}

// ListActiveLogChannels returns the guilds with a log channel that are not marked inactive
func (r *Repository) ListActiveLogChannels(ctx context.Context) ([]*GuildConfig, error) {
	return r.queryGuildConfigs(ctx, "WHERE log_channel_id IS NOT NULL AND log_channel_id != '' AND inactive_since IS NULL")
}

// FindGuildByGroupID finds the guild configured for a WOM group
func (r *Repository) FindGuildByGroupID(ctx context.Context, groupID int64) (*GuildConfig, error) {
	configs, err := r.queryGuildConfigs(ctx, "WHERE group_id = ?", groupID)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("group %d: %w", groupID, ErrNotFound)
	}
	return configs[0], nil
}

// SetGroupID creates the guild config if needed and sets its WOM group.
// Setting a group also clears any inactive marker.
func (r *Repository) SetGroupID(ctx context.Context, guildID string, groupID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO guild_configs (guild_id, group_id) VALUES (?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET group_id = excluded.group_id, inactive_since = NULL`,
		guildID, groupID,
	)
	return err
}

// EnsureGuild creates a default config row for a guild if none exists
func (r *Repository) EnsureGuild(ctx context.Context, guildID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO guild_configs (guild_id) VALUES (?) ON CONFLICT(guild_id) DO NOTHING`, guildID)
	return err
}

// updateGuild runs a single-row update, mapping zero affected rows to ErrNotFound
func (r *Repository) updateGuild(ctx context.Context, guildID, set string, args ...any) error {
	args = append(args, guildID)
	result, err := r.db.ExecContext(ctx, `UPDATE guild_configs SET `+set+` WHERE guild_id = ?`, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("guild %s: %w", guildID, ErrNotFound)
	}
	return nil
}

// SetLogChannel sets or (with an empty id) clears the log channel
func (r *Repository) SetLogChannel(ctx context.Context, guildID, channelID string) error {
	return r.updateGuild(ctx, guildID, "log_channel_id = ?", nullString(channelID))
}

// SetNicknameEnforcement toggles forcing nicknames to RSNs
func (r *Repository) SetNicknameEnforcement(ctx context.Context, guildID string, on bool) error {
	return r.updateGuild(ctx, guildID, "nickname_enforcement = ?", boolInt(on))
}

// SetReminderInterval sets the reminder interval in days, 0 disables reminders
func (r *Repository) SetReminderInterval(ctx context.Context, guildID string, days int) error {
	if days < 0 {
		return fmt.Errorf("reminder interval must not be negative")
	}
	return r.updateGuild(ctx, guildID, "reminder_interval_days = ?", days)
}

// SetDMNotifications toggles role change DMs for the whole guild
func (r *Repository) SetDMNotifications(ctx context.Context, guildID string, on bool) error {
	return r.updateGuild(ctx, guildID, "dm_notifications_on = ?", boolInt(on))
}

// SetLastChange overwrites the last change timestamp
func (r *Repository) SetLastChange(ctx context.Context, guildID string, at time.Time) error {
	return r.updateGuild(ctx, guildID, "last_change = ?", formatTime(at))
}

// MarkInactive records when the guild stopped being observable. An existing
// marker is kept so the grace period is measured from the first sighting.
func (r *Repository) MarkInactive(ctx context.Context, guildID string, since time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE guild_configs SET inactive_since = ? WHERE guild_id = ? AND inactive_since IS NULL`,
		formatTime(since), guildID,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// ClearInactive removes the inactive marker, reporting whether one was set
func (r *Repository) ClearInactive(ctx context.Context, guildID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE guild_configs SET inactive_since = NULL WHERE guild_id = ? AND inactive_since IS NOT NULL`,
		guildID,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// PurgeGuild deletes a guild config together with its links and role
// mappings, but only while the guild is still marked inactive since at or
// before inactiveBefore. It reports whether the guild was deleted.
func (r *Repository) PurgeGuild(ctx context.Context, guildID string, inactiveBefore time.Time) (bool, error) {
	purged := false
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var since sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT inactive_since FROM guild_configs WHERE guild_id = ?`, guildID,
		).Scan(&since)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read guild %s: %w", guildID, err)
		}
		// Fixed-width UTC timestamps compare correctly as text
		if !since.Valid || since.String > formatTime(inactiveBefore) {
			return nil
		}

		for _, q := range []string{
			`DELETE FROM links WHERE guild_id = ?`,
			`DELETE FROM role_mappings WHERE guild_id = ?`,
			`DELETE FROM guild_configs WHERE guild_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, guildID); err != nil {
				return fmt.Errorf("failed to purge guild %s: %w", guildID, err)
			}
		}
		purged = true
		return nil
	})
	return purged, err
}

// Link operations

// UpsertLink links a member to an RSN. Relinking resets the resolved WOM id
// so the new name is verified on the next sync.
func (r *Repository) UpsertLink(ctx context.Context, guildID, discordID, rsn string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO links (guild_id, discord_id, rsn, wom_id) VALUES (?, ?, ?, NULL)
		 ON CONFLICT(guild_id, discord_id) DO UPDATE SET rsn = excluded.rsn, wom_id = NULL`,
		guildID, discordID, rsn,
	)
	return err
}

// DeleteLink removes a link, reporting whether it existed
func (r *Repository) DeleteLink(ctx context.Context, guildID, discordID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM links WHERE guild_id = ? AND discord_id = ?`, guildID, discordID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func scanLink(row rowScanner) (*Link, error) {
	var (
		l     Link
		womID sql.NullInt64
		dm    int64
	)
	if err := row.Scan(&l.GuildID, &l.DiscordID, &l.RSN, &womID, &dm); err != nil {
		return nil, err
	}
	if womID.Valid {
		id := womID.Int64
		l.WOMID = &id
	}
	l.DMNotifications = dm != 0
	return &l, nil
}

// GetLink retrieves a single member's link
func (r *Repository) GetLink(ctx context.Context, guildID, discordID string) (*Link, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT guild_id, discord_id, rsn, wom_id, dm_notifications_on FROM links WHERE guild_id = ? AND discord_id = ?`,
		guildID, discordID,
	)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("link %s/%s: %w", guildID, discordID, ErrNotFound)
	}
	return l, err
}

// ListLinks returns all links in a guild
func (r *Repository) ListLinks(ctx context.Context, guildID string) ([]*Link, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT guild_id, discord_id, rsn, wom_id, dm_notifications_on FROM links WHERE guild_id = ? ORDER BY discord_id`,
		guildID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// SetLinkDMNotifications sets a member's personal DM preference
func (r *Repository) SetLinkDMNotifications(ctx context.Context, guildID, discordID string, on bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE links SET dm_notifications_on = ? WHERE guild_id = ? AND discord_id = ?`,
		boolInt(on), guildID, discordID,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("link %s/%s: %w", guildID, discordID, ErrNotFound)
	}
	return nil
}

// Role mapping operations

// PutRoleMapping maps a WOM role to a Discord role. The WOM role must be one of
// the known group roles; it is normalized to lower case.
func (r *Repository) PutRoleMapping(ctx context.Context, guildID, womRole, discordRoleID string) (wom.Role, error) {
	role, err := wom.ParseRole(womRole)
	if err != nil {
		return "", err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO role_mappings (guild_id, wom_role, discord_role_id) VALUES (?, ?, ?)
		 ON CONFLICT(guild_id, wom_role) DO UPDATE SET discord_role_id = excluded.discord_role_id`,
		guildID, string(role), discordRoleID,
	)
	return role, err
}

// DeleteRoleMapping removes a mapping, reporting whether it existed
func (r *Repository) DeleteRoleMapping(ctx context.Context, guildID, womRole string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM role_mappings WHERE guild_id = ? AND wom_role = ?`, guildID, strings.ToLower(womRole))
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// ListRoleMappings returns all role mappings in a guild
func (r *Repository) ListRoleMappings(ctx context.Context, guildID string) ([]*RoleMapping, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT guild_id, wom_role, discord_role_id FROM role_mappings WHERE guild_id = ? ORDER BY wom_role`,
		guildID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []*RoleMapping
	for rows.Next() {
		m := &RoleMapping{}
		if err := rows.Scan(&m.GuildID, &m.WOMRole, &m.DiscordRoleID); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// Sync operations

// CommitSync writes one guild's reconciliation results atomically. Link
// writes whose row changed since the pass read it are skipped.
func (r *Repository) CommitSync(ctx context.Context, changes *SyncChanges) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, rm := range changes.Removed {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM links WHERE guild_id = ? AND discord_id = ? AND rsn = ? AND wom_id IS ?`,
				changes.GuildID, rm.DiscordID, rm.RSN, nullInt64(rm.WOMID))
			if err != nil {
				return fmt.Errorf("failed to delete link %s: %w", rm.DiscordID, err)
			}
			logStale(res, changes.GuildID, rm.DiscordID, "removal")
		}
		for _, rv := range changes.Resolutions {
			res, err := tx.ExecContext(ctx,
				`UPDATE links SET wom_id = ? WHERE guild_id = ? AND discord_id = ? AND rsn = ? AND wom_id IS NULL`,
				rv.WOMID, changes.GuildID, rv.DiscordID, rv.RSN)
			if err != nil {
				return fmt.Errorf("failed to store WOM id for %s: %w", rv.DiscordID, err)
			}
			logStale(res, changes.GuildID, rv.DiscordID, "resolution")
		}
		for _, rn := range changes.Renames {
			res, err := tx.ExecContext(ctx,
				`UPDATE links SET rsn = ? WHERE guild_id = ? AND discord_id = ? AND rsn = ? AND wom_id = ?`,
				rn.RSN, changes.GuildID, rn.DiscordID, rn.OldRSN, rn.WOMID)
			if err != nil {
				return fmt.Errorf("failed to rename link %s: %w", rn.DiscordID, err)
			}
			logStale(res, changes.GuildID, rn.DiscordID, "rename")
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE guild_configs SET last_sync = ? WHERE guild_id = ?`,
			formatTime(changes.SyncedAt), changes.GuildID); err != nil {
			return fmt.Errorf("failed to update last sync: %w", err)
		}
		if changes.ChangedAt != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE guild_configs SET last_change = ? WHERE guild_id = ?`,
				formatTime(*changes.ChangedAt), changes.GuildID); err != nil {
				return fmt.Errorf("failed to update last change: %w", err)
			}
		}
		return nil
	})
}

// Bot stat operations

// PutStat creates or overwrites a stat value
func (r *Repository) PutStat(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bot_stats (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// PutTimeStat stores a timestamp stat in the same format as other stored times
func (r *Repository) PutTimeStat(ctx context.Context, key string, t time.Time) error {
	return r.PutStat(ctx, key, formatTime(t))
}

// GetStat reads a stat value
func (r *Repository) GetStat(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT value FROM bot_stats WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("stat %s: %w", key, ErrNotFound)
	}
	return value.String, err
}

// LoadStats computes the aggregate counters for the status page
func (r *Repository) LoadStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if v, err := r.GetStat(ctx, StatServerCount); err == nil {
		if stats.Servers, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid %s stat %q: %w", StatServerCount, v, err)
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT group_id) FROM guild_configs WHERE group_id IS NOT NULL`,
	).Scan(&stats.Groups); err != nil {
		return nil, err
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM links`).Scan(&stats.Users); err != nil {
		return nil, err
	}

	var lastSync sql.NullString
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(last_sync) FROM guild_configs`).Scan(&lastSync); err != nil {
		return nil, err
	}
	var err error
	if stats.LastSync, err = parseTime(lastSync); err != nil {
		return nil, err
	}

	if v, err := r.GetStat(ctx, StatLastGlobalSync); err == nil {
		if stats.LastGlobalSync, err = parseTime(sql.NullString{String: v, Valid: v != ""}); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return stats, nil
}

// Helpers

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeFormat, s.String)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", s.String, err)
	}
	return &t, nil
}

// logStale notes a link write that matched no row because the link was
// edited while the pass ran
func logStale(res sql.Result, guildID, discordID, kind string) {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		slog.Info("Link changed during sync, keeping it", "guildID", guildID, "discordID", discordID, "write", kind)
	}
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
