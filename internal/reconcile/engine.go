// Package reconcile applies a Wise Old Man group roster to one guild's
// linked members: rank roles, renamed RSNs, nicknames and notifications.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/metrics"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/platform"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/storage"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/wom"
)

//go:generate mockgen -destination=mocks/mock_engine.go -package=mocks -source=engine.go Registry,Store

var (
	// ErrAborted is returned when a guild pass stops before touching any state
	ErrAborted = errors.New("sync aborted")

	// ErrInProgress is returned when the guild is already being reconciled
	ErrInProgress = errors.New("sync already in progress")

	// ErrNoGroup is returned for a guild without a WOM group
	ErrNoGroup = errors.New("no group configured")
)

// Registry fetches group rosters
type Registry interface {
	GetGroup(ctx context.Context, groupID int64) (*wom.Group, error)
}

// Store is the slice of the repository the engine reads and writes
type Store interface {
	ListLinks(ctx context.Context, guildID string) ([]*storage.Link, error)
	ListRoleMappings(ctx context.Context, guildID string) ([]*storage.RoleMapping, error)
	CommitSync(ctx context.Context, changes *storage.SyncChanges) error
}

// Target is one guild's sync settings
type Target struct {
	GuildID          string
	GroupID          int64
	LogChannelID     string
	NicknameEnforced bool
	DMDefault        bool
}

// TargetFromConfig builds a Target from a stored guild configuration
func TargetFromConfig(cfg *storage.GuildConfig) (Target, error) {
	if cfg.GroupID == nil {
		return Target{}, fmt.Errorf("guild %s: %w", cfg.GuildID, ErrNoGroup)
	}
	return Target{
		GuildID:          cfg.GuildID,
		GroupID:          *cfg.GroupID,
		LogChannelID:     cfg.LogChannelID,
		NicknameEnforced: cfg.NicknameEnforcement,
		DMDefault:        cfg.DMNotifications,
	}, nil
}

// Summary is the outcome of one guild pass
type Summary struct {
	GuildID   string
	GuildName string
	GroupName string

	Checked int
	Changed int
	Failed  int

	RoleUpdates []string
	NameUpdates []string
	NickUpdates []string
	Removed     []string
	NotFound    []string
	DMFailures  int
}

// Eventful reports whether the pass did anything worth reporting
func (s *Summary) Eventful() bool {
	return len(s.RoleUpdates) > 0 || len(s.NameUpdates) > 0 || len(s.NickUpdates) > 0 ||
		len(s.Removed) > 0 || len(s.NotFound) > 0 || s.Failed > 0
}

// Engine reconciles guilds against their WOM group
type Engine struct {
	registry Registry
	store    Store
	platform platform.Platform
	now      func() time.Time

	mu      sync.Mutex
	running map[string]struct{}
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the engine's time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a reconciliation engine
func NewEngine(registry Registry, store Store, p platform.Platform, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		store:    store,
		platform: p,
		now:      time.Now,
		running:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) acquire(guildID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.running[guildID]; busy {
		return false
	}
	e.running[guildID] = struct{}{}
	return true
}

func (e *Engine) release(guildID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, guildID)
}

// Reconcile runs one pass for a guild. Platform-side failures for individual
// members are counted in the summary; a fetch failure returns ErrAborted
// with nothing changed, and a store failure is returned as is.
func (e *Engine) Reconcile(ctx context.Context, t Target) (*Summary, error) {
	if !e.acquire(t.GuildID) {
		return nil, fmt.Errorf("guild %s: %w", t.GuildID, ErrInProgress)
	}
	defer e.release(t.GuildID)

	logger := slog.With("guildID", t.GuildID, "groupID", t.GroupID)

	group, err := e.registry.GetGroup(ctx, t.GroupID)
	if err != nil {
		logger.Error("Failed to fetch WOM group", "error", err)
		e.alert(ctx, t, err)
		return nil, fmt.Errorf("%w: %w", ErrAborted, err)
	}

	guild, err := e.platform.Guild(ctx, t.GuildID)
	if err != nil {
		logger.Error("Failed to read guild", "error", err)
		return nil, fmt.Errorf("%w: failed to read guild: %w", ErrAborted, err)
	}

	links, err := e.store.ListLinks(ctx, t.GuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	mappings, err := e.store.ListRoleMappings(ctx, t.GuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role mappings: %w", err)
	}

	p := &pass{
		engine:   e,
		target:   t,
		guild:    guild,
		snapshot: wom.NewSnapshot(group),
		rankRole: make(map[wom.Role]string, len(mappings)),
		managed:  make(map[string]struct{}, len(mappings)),
		logger:   logger,
		summary: &Summary{
			GuildID:   t.GuildID,
			GuildName: guild.Name,
			GroupName: group.Name,
		},
		changes: &storage.SyncChanges{GuildID: t.GuildID},
	}
	for _, m := range mappings {
		// Mappings pointing at deleted Discord roles are ignored
		if !guild.HasRole(m.DiscordRoleID) {
			continue
		}
		p.rankRole[wom.Role(m.WOMRole)] = m.DiscordRoleID
		p.managed[m.DiscordRoleID] = struct{}{}
	}

	sort.Slice(links, func(i, j int) bool { return links[i].DiscordID < links[j].DiscordID })
	for _, link := range links {
		p.member(ctx, link)
	}

	now := e.now().UTC()
	p.changes.SyncedAt = now
	if p.changed {
		p.changes.ChangedAt = &now
	}
	if err := e.store.CommitSync(ctx, p.changes); err != nil {
		logger.Error("Failed to persist sync", "error", err)
		return p.summary, fmt.Errorf("failed to persist sync for guild %s: %w", t.GuildID, err)
	}

	if p.summary.Eventful() && t.LogChannelID != "" {
		if err := e.platform.SendEmbed(ctx, t.LogChannelID, buildReport(p.summary, now)); err != nil {
			logger.Warn("Failed to send sync report", "channelID", t.LogChannelID, "error", err)
		}
	}

	logger.Info("Guild sync complete",
		"checked", p.summary.Checked,
		"changed", p.summary.Changed,
		"failed", p.summary.Failed,
		"removed", len(p.summary.Removed),
		"notFound", len(p.summary.NotFound),
	)
	return p.summary, nil
}

// alert posts a single fetch failure notice to the guild's log channel
func (e *Engine) alert(ctx context.Context, t Target, cause error) {
	if t.LogChannelID == "" {
		return
	}
	if err := e.platform.SendMessage(ctx, t.LogChannelID, failureMessage(t.GroupID, cause)); err != nil {
		slog.Warn("Failed to send sync failure alert", "guildID", t.GuildID, "error", err)
	}
}

// pass is the working state of one Reconcile call
type pass struct {
	engine   *Engine
	target   Target
	guild    *platform.GuildState
	snapshot *wom.Snapshot
	rankRole map[wom.Role]string
	managed  map[string]struct{}
	logger   *slog.Logger

	summary *Summary
	changes *storage.SyncChanges
	changed bool
}

func (p *pass) member(ctx context.Context, link *storage.Link) {
	member, ok := p.guild.Member(link.DiscordID)
	if !ok {
		p.changes.Removed = append(p.changes.Removed, storage.Removal{
			DiscordID: link.DiscordID,
			RSN:       link.RSN,
			WOMID:     link.WOMID,
		})
		p.summary.Removed = append(p.summary.Removed, link.RSN)
		return
	}
	p.summary.Checked++

	rsn := link.RSN
	var playerID int64
	if link.WOMID != nil {
		playerID = *link.WOMID
	} else {
		id, found := p.snapshot.Lookup(rsn)
		if !found {
			p.summary.NotFound = append(p.summary.NotFound, rsn)
			return
		}
		playerID = id
		p.changes.Resolutions = append(p.changes.Resolutions, storage.Resolution{
			DiscordID: link.DiscordID,
			RSN:       link.RSN,
			WOMID:     id,
		})
	}

	memberChanged := false

	if username, inGroup := p.snapshot.Username(playerID); inGroup && !wom.SameName(username, rsn) {
		p.changes.Renames = append(p.changes.Renames, storage.Rename{
			DiscordID: link.DiscordID,
			OldRSN:    link.RSN,
			RSN:       username,
			WOMID:     playerID,
		})
		p.summary.NameUpdates = append(p.summary.NameUpdates, fmt.Sprintf("%s → %s", rsn, username))
		rsn = username
		memberChanged = true
	}

	rank, inGroup := p.snapshot.Role(playerID)
	targetRole := ""
	if inGroup {
		targetRole = p.rankRole[rank]
	}

	roles, added, removed := p.desiredRoles(member, targetRole)
	if len(added) > 0 || len(removed) > 0 {
		if err := p.engine.platform.SetMemberRoles(ctx, p.target.GuildID, member.UserID, roles); err != nil {
			p.fail(member, rsn, "roles", err)
			p.finish(memberChanged)
			return
		}
		metrics.RoleChanges.WithLabelValues("added").Add(float64(len(added)))
		metrics.RoleChanges.WithLabelValues("removed").Add(float64(len(removed)))
		p.summary.RoleUpdates = append(p.summary.RoleUpdates, roleUpdateLine(rsn, p.roleNames(added), p.roleNames(removed)))
		memberChanged = true

		if p.target.DMDefault && link.DMNotifications {
			p.notify(ctx, member, rank, targetRole)
		}
	}

	if p.target.NicknameEnforced && member.DisplayName != rsn {
		if err := p.engine.platform.SetNickname(ctx, p.target.GuildID, member.UserID, rsn); err != nil {
			p.fail(member, rsn, "nickname", err)
			p.finish(memberChanged)
			return
		}
		p.summary.NickUpdates = append(p.summary.NickUpdates, fmt.Sprintf("%s → %s", member.DisplayName, rsn))
		memberChanged = true
	}

	p.finish(memberChanged)
}

func (p *pass) finish(memberChanged bool) {
	if memberChanged {
		p.summary.Changed++
		p.changed = true
	}
}

// desiredRoles returns the member's full new role set plus the managed roles
// added and removed. Roles outside the mapped set are left as they are.
func (p *pass) desiredRoles(member *platform.Member, targetRole string) (roles, added, removed []string) {
	hasTarget := false
	for _, r := range member.Roles {
		if _, mapped := p.managed[r]; !mapped {
			roles = append(roles, r)
			continue
		}
		if r == targetRole && !hasTarget {
			roles = append(roles, r)
			hasTarget = true
			continue
		}
		if r != targetRole {
			removed = append(removed, r)
		}
	}
	if targetRole != "" && !hasTarget {
		roles = append(roles, targetRole)
		added = append(added, targetRole)
	}
	if roles == nil {
		roles = []string{}
	}
	return roles, added, removed
}

func (p *pass) fail(member *platform.Member, rsn, action string, err error) {
	p.summary.Failed++
	kind := "error"
	if errors.Is(err, platform.ErrForbidden) {
		kind = "forbidden"
	}
	metrics.MemberFailures.WithLabelValues(kind).Inc()
	p.logger.Warn("Failed to update member",
		"userID", member.UserID,
		"rsn", rsn,
		"action", action,
		"error", err,
	)
}

func (p *pass) notify(ctx context.Context, member *platform.Member, rank wom.Role, roleID string) {
	content := dmMessage(p.guild.Name, string(rank), p.roleName(roleID))
	if err := p.engine.platform.SendDM(ctx, member.UserID, content); err != nil {
		p.summary.DMFailures++
		p.logger.Debug("Failed to DM member", "userID", member.UserID, "error", err)
	}
}

func (p *pass) roleName(roleID string) string {
	if r, ok := p.guild.Roles[roleID]; ok {
		return r.Name
	}
	return roleID
}

func (p *pass) roleNames(ids []string) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = p.roleName(id)
	}
	return names
}
