// Package platform is the chat platform boundary: reading a guild's members
// and roles, mutating member roles and nicknames, and delivering messages.
package platform

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrForbidden is returned when the platform denies an action for lack of permissions
	ErrForbidden = errors.New("forbidden")

	// ErrUnknownGuild is returned when the guild cannot be read at all
	ErrUnknownGuild = errors.New("unknown guild")
)

// Member is a guild member and the roles they currently hold
type Member struct {
	UserID      string
	Username    string
	DisplayName string
	Nick        string
	Bot         bool
	Roles       []string
}

// HasRole reports whether the member holds roleID
func (m *Member) HasRole(roleID string) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// Role is a guild role
type Role struct {
	ID   string
	Name string
}

// GuildState is a point-in-time view of a guild
type GuildState struct {
	ID      string
	Name    string
	Members map[string]*Member
	Roles   map[string]Role
}

// Member looks up a member by user id
func (g *GuildState) Member(userID string) (*Member, bool) {
	m, ok := g.Members[userID]
	return m, ok
}

// HasRole reports whether the guild still has roleID
func (g *GuildState) HasRole(roleID string) bool {
	_, ok := g.Roles[roleID]
	return ok
}

// EmbedField is one name/value block of an Embed
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a rich channel message
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
	Timestamp   time.Time
}

// Platform is everything the sync engine needs from the chat platform.
// Mutations and deliveries return an error wrapping ErrForbidden when the
// platform refuses them.
type Platform interface {
	// Guild returns the guild's members with their role sets and the guild roles
	Guild(ctx context.Context, guildID string) (*GuildState, error)

	// SetMemberRoles replaces the member's whole role set in one call
	SetMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string) error

	SetNickname(ctx context.Context, guildID, userID, nick string) error

	SendMessage(ctx context.Context, channelID, content string) error
	SendEmbed(ctx context.Context, channelID string, embed *Embed) error

	// SendDM delivers a private message to a user
	SendDM(ctx context.Context, userID, content string) error
}

// Observer reports which guilds the bot can currently see
type Observer interface {
	CanObserve(guildID string) bool
	ObservedCount() int
}
