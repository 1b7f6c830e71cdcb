package storage

import "time"

// GuildConfig stores per-server configuration and sync bookkeeping
type GuildConfig struct {
	GuildID              string
	GroupID              *int64 // nil until /groupid is used
	LastSync             *time.Time
	LastChange           *time.Time
	InactiveSince        *time.Time // set while the bot cannot see the guild
	LogChannelID         string     // empty = no log channel
	NicknameEnforcement  bool
	ReminderIntervalDays int // 0 = reminders off
	DMNotifications      bool
}

// Configured reports whether a WOM group has been set for the guild
func (g *GuildConfig) Configured() bool {
	return g.GroupID != nil
}

// Link associates a Discord member with an RSN and, once resolved, a WOM player
type Link struct {
	GuildID         string
	DiscordID       string
	RSN             string
	WOMID           *int64 // nil until resolved by name during a sync
	DMNotifications bool
}

// RoleMapping maps a WOM group role onto a Discord role
type RoleMapping struct {
	GuildID       string
	WOMRole       string
	DiscordRoleID string
}

// Bot stat keys
const (
	StatServerCount    = "server_count"
	StatLastGlobalSync = "last_global_sync"
)

// BotStat is a single process-wide counter row
type BotStat struct {
	Key   string
	Value string
}

// LinkKey identifies a link within a guild
type LinkKey struct {
	GuildID   string
	DiscordID string
}

// Removal deletes a link whose member left the guild. RSN and WOMID are the
// values the pass read; a link edited since then is kept.
type Removal struct {
	DiscordID string
	RSN       string
	WOMID     *int64
}

// Resolution records a WOM id found for an unresolved link by name. It only
// applies while the link still carries RSN and no id.
type Resolution struct {
	DiscordID string
	RSN       string
	WOMID     int64
}

// Rename records a new RSN reported by WOM for a resolved link. It only
// applies while the link still carries OldRSN and WOMID.
type Rename struct {
	DiscordID string
	OldRSN    string
	RSN       string
	WOMID     int64
}

// SyncChanges is everything one guild reconciliation writes. It is committed
// in a single transaction so a guild's pass is all-or-nothing in the store.
// Link writes are conditional on the row the pass read, so edits made while
// the pass ran win.
type SyncChanges struct {
	GuildID     string
	Removed     []Removal
	Resolutions []Resolution
	Renames     []Rename
	SyncedAt    time.Time
	ChangedAt   *time.Time // nil when no role/name/nickname changed
}

// Stats are the aggregate counters shown by the status page
type Stats struct {
	Servers        int
	Groups         int
	Users          int
	LastSync       *time.Time
	LastGlobalSync *time.Time
}
