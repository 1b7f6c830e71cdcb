package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// membersPageSize is the maximum page size of the list guild members endpoint
const membersPageSize = 1000

// Discord implements Platform and Observer on a discordgo session
type Discord struct {
	session *discordgo.Session
}

// NewDiscord wraps an open discordgo session
func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{session: session}
}

// Guild fetches every member page and the role list of a guild
func (d *Discord) Guild(ctx context.Context, guildID string) (*GuildState, error) {
	state := &GuildState{
		ID:      guildID,
		Members: make(map[string]*Member),
		Roles:   make(map[string]Role),
	}

	if g, err := d.session.State.Guild(guildID); err == nil {
		state.Name = g.Name
	} else {
		g, err := d.session.Guild(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrUnknownGuild, guildID, mapError(err))
		}
		state.Name = g.Name
	}

	roles, err := d.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", mapError(err))
	}
	for _, r := range roles {
		state.Roles[r.ID] = Role{ID: r.ID, Name: r.Name}
	}

	after := ""
	for {
		page, err := d.session.GuildMembers(guildID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list members: %w", mapError(err))
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			state.Members[m.User.ID] = toMember(m)
			after = m.User.ID
		}
		if len(page) < membersPageSize {
			break
		}
	}

	return state, nil
}

// SetMemberRoles replaces the member's role set with a single member edit
func (d *Discord) SetMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string) error {
	roles := roleIDs
	_, err := d.session.GuildMemberEdit(guildID, userID, &discordgo.GuildMemberParams{
		Roles: &roles,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to set roles: %w", mapError(err))
	}
	return nil
}

func (d *Discord) SetNickname(ctx context.Context, guildID, userID, nick string) error {
	if err := d.session.GuildMemberNickname(guildID, userID, nick, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to set nickname: %w", mapError(err))
	}
	return nil
}

func (d *Discord) SendMessage(ctx context.Context, channelID, content string) error {
	if _, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send message: %w", mapError(err))
	}
	return nil
}

func (d *Discord) SendEmbed(ctx context.Context, channelID string, embed *Embed) error {
	if _, err := d.session.ChannelMessageSendEmbed(channelID, toDiscordEmbed(embed), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send embed: %w", mapError(err))
	}
	return nil
}

// SendDM opens (or reuses) the DM channel with a user and sends content
func (d *Discord) SendDM(ctx context.Context, userID, content string) error {
	ch, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to open DM channel: %w", mapError(err))
	}
	if _, err := d.session.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send DM: %w", mapError(err))
	}
	return nil
}

// CanObserve reports whether the guild is in the gateway state. Unavailable
// guilds count: an outage or a guild still loading after READY is not a
// removal.
func (d *Discord) CanObserve(guildID string) bool {
	_, err := d.session.State.Guild(guildID)
	return err == nil
}

// ObservedCount returns the number of available guilds in the gateway state
func (d *Discord) ObservedCount() int {
	d.session.State.RLock()
	defer d.session.State.RUnlock()

	n := 0
	for _, g := range d.session.State.Guilds {
		if !g.Unavailable {
			n++
		}
	}
	return n
}

// mapError wraps Discord permission refusals in ErrForbidden
func mapError(err error) error {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess,
			discordgo.ErrCodeCannotSendMessagesToThisUser:
			return fmt.Errorf("%w: %w", ErrForbidden, err)
		}
	}
	return err
}

func toMember(m *discordgo.Member) *Member {
	display := m.Nick
	if display == "" {
		display = m.User.GlobalName
	}
	if display == "" {
		display = m.User.Username
	}
	roles := make([]string, len(m.Roles))
	copy(roles, m.Roles)
	return &Member{
		UserID:      m.User.ID,
		Username:    m.User.Username,
		DisplayName: display,
		Nick:        m.Nick,
		Bot:         m.User.Bot,
		Roles:       roles,
	}
}

func toDiscordEmbed(e *Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	}
	return out
}
