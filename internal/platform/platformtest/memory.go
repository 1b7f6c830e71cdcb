// Package platformtest provides an in-memory platform.Platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/platform"
)

var (
	_ platform.Platform = (*Memory)(nil)
	_ platform.Observer = (*Memory)(nil)
)

// Delivery is a message recorded by Memory
type Delivery struct {
	Target  string
	Content string
	Embed   *platform.Embed
}

// Memory is an in-process platform.Platform and platform.Observer that
// records every call
type Memory struct {
	mu sync.Mutex

	guilds      map[string]*platform.GuildState
	unobserved  map[string]bool
	forbidden   map[string]bool
	dmForbidden map[string]bool
	channelErrs map[string]error

	messages  []Delivery
	dms       []Delivery
	roleEdits int
	nickEdits int
}

// NewMemory returns an empty Memory platform
func NewMemory() *Memory {
	return &Memory{
		guilds:      make(map[string]*platform.GuildState),
		unobserved:  make(map[string]bool),
		forbidden:   make(map[string]bool),
		dmForbidden: make(map[string]bool),
		channelErrs: make(map[string]error),
	}
}

// AddGuild registers an observable guild
func (m *Memory) AddGuild(guildID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guilds[guildID] = &platform.GuildState{
		ID:      guildID,
		Name:    name,
		Members: make(map[string]*platform.Member),
		Roles:   make(map[string]platform.Role),
	}
}

// RemoveGuild drops a guild entirely, as if the bot was kicked
func (m *Memory) RemoveGuild(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.guilds, guildID)
}

// AddRole adds a role to a guild
func (m *Memory) AddRole(guildID, roleID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guilds[guildID].Roles[roleID] = platform.Role{ID: roleID, Name: name}
}

// AddMember adds a member holding roleIDs to a guild
func (m *Memory) AddMember(guildID, userID, displayName string, roleIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guilds[guildID].Members[userID] = &platform.Member{
		UserID:      userID,
		Username:    displayName,
		DisplayName: displayName,
		Roles:       append([]string(nil), roleIDs...),
	}
}

// RemoveMember removes a member from a guild
func (m *Memory) RemoveMember(guildID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.guilds[guildID].Members, userID)
}

// SetObservable toggles whether CanObserve reports the guild
func (m *Memory) SetObservable(guildID string, observable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unobserved[guildID] = !observable
}

// Forbid makes role and nickname mutations for userID fail with platform.ErrForbidden
func (m *Memory) Forbid(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forbidden[userID] = true
}

// ForbidDM makes DMs to userID fail with platform.ErrForbidden
func (m *Memory) ForbidDM(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dmForbidden[userID] = true
}

// FailChannel makes every delivery to channelID fail with err
func (m *Memory) FailChannel(channelID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelErrs[channelID] = err
}

// MemberRoles returns a copy of the member's current roles
func (m *Memory) MemberRoles(guildID, userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.guilds[guildID].Members[userID]
	if !ok {
		return nil
	}
	return append([]string(nil), mem.Roles...)
}

// MemberNick returns the member's current nickname
func (m *Memory) MemberNick(guildID, userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.guilds[guildID].Members[userID]; ok {
		return mem.Nick
	}
	return ""
}

// Messages returns every channel delivery so far
func (m *Memory) Messages() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.messages...)
}

// DMs returns every direct message delivered so far
func (m *Memory) DMs() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.dms...)
}

// RoleEdits returns the number of successful SetMemberRoles calls
func (m *Memory) RoleEdits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roleEdits
}

// NickEdits returns the number of successful SetNickname calls
func (m *Memory) NickEdits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nickEdits
}

func (m *Memory) Guild(_ context.Context, guildID string) (*platform.GuildState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.guilds[guildID]
	if !ok {
		return nil, fmt.Errorf("%w %s", platform.ErrUnknownGuild, guildID)
	}
	out := &platform.GuildState{
		ID:      g.ID,
		Name:    g.Name,
		Members: make(map[string]*platform.Member, len(g.Members)),
		Roles:   make(map[string]platform.Role, len(g.Roles)),
	}
	for id, r := range g.Roles {
		out.Roles[id] = r
	}
	for id, mem := range g.Members {
		cp := *mem
		cp.Roles = append([]string(nil), mem.Roles...)
		out.Members[id] = &cp
	}
	return out, nil
}

func (m *Memory) SetMemberRoles(_ context.Context, guildID, userID string, roleIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, err := m.member(guildID, userID)
	if err != nil {
		return err
	}
	mem.Roles = append([]string(nil), roleIDs...)
	m.roleEdits++
	return nil
}

func (m *Memory) SetNickname(_ context.Context, guildID, userID, nick string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, err := m.member(guildID, userID)
	if err != nil {
		return err
	}
	mem.Nick = nick
	mem.DisplayName = nick
	m.nickEdits++
	return nil
}

func (m *Memory) SendMessage(_ context.Context, channelID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.channelErrs[channelID]; err != nil {
		return err
	}
	m.messages = append(m.messages, Delivery{Target: channelID, Content: content})
	return nil
}

func (m *Memory) SendEmbed(_ context.Context, channelID string, embed *platform.Embed) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.channelErrs[channelID]; err != nil {
		return err
	}
	m.messages = append(m.messages, Delivery{Target: channelID, Embed: embed})
	return nil
}

func (m *Memory) SendDM(_ context.Context, userID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dmForbidden[userID] {
		return fmt.Errorf("%w: DMs closed", platform.ErrForbidden)
	}
	m.dms = append(m.dms, Delivery{Target: userID, Content: content})
	return nil
}

func (m *Memory) CanObserve(guildID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.guilds[guildID]
	return ok && !m.unobserved[guildID]
}

func (m *Memory) ObservedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id := range m.guilds {
		if !m.unobserved[id] {
			n++
		}
	}
	return n
}

// member must be called with mu held
func (m *Memory) member(guildID, userID string) (*platform.Member, error) {
	if m.forbidden[userID] {
		return nil, fmt.Errorf("%w: missing permissions", platform.ErrForbidden)
	}
	g, ok := m.guilds[guildID]
	if !ok {
		return nil, fmt.Errorf("%w %s", platform.ErrUnknownGuild, guildID)
	}
	mem, ok := g.Members[userID]
	if !ok {
		return nil, fmt.Errorf("unknown member %s", userID)
	}
	return mem, nil
}
