package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/reconcile"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/storage"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/wom"
)

var (
	adminPermission int64 = discordgo.PermissionAdministrator
	noDM                  = false

	onOffChoices = []*discordgo.ApplicationCommandOptionChoice{
		{Name: "on", Value: "on"},
		{Name: "off", Value: "off"},
	}

	// ownerOnly commands are restricted to the bot owner on top of the
	// administrator default
	ownerOnly = map[string]bool{
		"sync":      true,
		"broadcast": true,
	}
)

type commandHandler func(s *discordgo.Session, i *discordgo.InteractionCreate)

func (b *Bot) handlers() map[string]commandHandler {
	return map[string]commandHandler{
		"help":          b.handleHelp,
		"groupid":       b.handleGroupID,
		"logchannel":    b.handleLogChannel,
		"linkuser":      b.handleLinkUser,
		"unlinkuser":    b.handleUnlinkUser,
		"linkrole":      b.handleLinkRole,
		"unlinkrole":    b.handleUnlinkRole,
		"nickname":      b.handleNickname,
		"reminder":      b.handleReminder,
		"notifyplayers": b.handleNotifyPlayers,
		"notifyme":      b.handleNotifyMe,
		"checkuser":     b.handleCheckUser,
		"info":          b.handleInfo,
		"playerlist":    b.handlePlayerList,
		"sync":          b.handleSync,
		"broadcast":     b.handleBroadcast,
	}
}

// adminCommand fills in the defaults shared by server administration commands
func adminCommand(cmd *discordgo.ApplicationCommand) *discordgo.ApplicationCommand {
	cmd.DefaultMemberPermissions = &adminPermission
	cmd.DMPermission = &noDM
	return cmd
}

// Slash command definitions
func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:         "help",
			Description:  "How to set up the bot",
			DMPermission: &noDM,
		},
		adminCommand(&discordgo.ApplicationCommand{
			Name:        "groupid",
			Description: "Set the WOM Group ID",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "group_id",
					Description: "The number at the end of your group's Wise Old Man URL",
					Required:    true,
					MinValue:    floatPtr(1),
				},
			},
		}),
		adminCommand(&discordgo.ApplicationCommand{
			Name:        "logchannel",
			Description: "Set a channel for the bot to log sync events",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "The channel to send log messages in. Leave blank to disable.",
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
			},
		}),
		adminCommand(&discordgo.ApplicationCommand{
			Name:        "linkuser",
			Description: "Link or update an RSN for a user",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "The member to link",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "rsn",
					Description: "Their RuneScape name",
					Required:    true,
					MaxLength:   32,
				},
			},
		}),
		adminCommand(&discordgo.ApplicationCommand{
			Name:        "unlinkuser",
			Description: "Unlink a user from their RSN",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "The member to unlink",
					Required:    true,
				},
			},
		}),
		adminCommand(&discordgo.ApplicationCommand{
			Name:        "linkrole",
			Description: "Map a WOM Group Role to a Discord Role",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "wom_role",
					Description:  "The role name on Wise Old Man",
					Required:     true,
					Autocomplete: true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "discord_role",
					Description: "The Discord role to assign",
					Required:    true,
				},
			},
		}),
		adminCommand(&discordgo.ApplicationCommand{
			Name:        "unlinkrole",
			Description: "Remove a role mapping",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "wom_role",
					Description:  "The WOM role mapping to remove",
					Required:     true,
					Autocomplete: true,
				},
			},
		}),
		adminCommand(&discordgo.ApplicationCommand{
			Name:        "nickname",
			Description: "Toggle nickname enforcement (forces member nicknames to their RSN)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "state",
					Description: "State of nickname enforcement",
					Required:    true,
					Choices:     onOffChoices,
				},
			},
		}),
		adminCommand(&discordgo.ApplicationCommand{
			Name:        "reminder",
			Description: "Set the inactivity reminder for the sync log channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "interval",
					Description: "How long to wait without rank changes before reminding. 'Off' disables it.",
					Required:    true,
					Choices:     reminderChoices(),
				},
			},
		}),
		adminCommand(&discordgo.ApplicationCommand{
			Name:        "notifyplayers",
			Description: "Toggle DM notifications for role changes for all players",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "state",
					Description: "State of DM notifications",
					Required:    true,
					Choices:     onOffChoices,
				},
			},
		}),
		{
			Name:         "notifyme",
			Description:  "Turn on/off personal DM notifications for role changes",
			DMPermission: &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "state",
					Description: "Your preferred state for DM notifications",
					Required:    true,
					Choices:     onOffChoices,
				},
			},
		},
		adminCommand(&discordgo.ApplicationCommand{
			Name:        "checkuser",
			Description: "Check the RSN linked to a Discord user",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "The user to check",
					Required:    true,
				},
			},
		}),
		adminCommand(&discordgo.ApplicationCommand{
			Name:        "info",
			Description: "View configuration and sync status",
		}),
		adminCommand(&discordgo.ApplicationCommand{
			Name:        "playerlist",
			Description: "Get a list of all linked players for this server",
		}),
		adminCommand(&discordgo.ApplicationCommand{
			Name:        "sync",
			Description: "Force sync (Developer Only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "group_id",
					Description: "Optional: the Group ID to force sync",
					MinValue:    floatPtr(1),
				},
			},
		}),
		adminCommand(&discordgo.ApplicationCommand{
			Name:        "broadcast",
			Description: "Send a message to every configured log channel (Developer Only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message",
					Description: "The message to broadcast",
					Required:    true,
					MaxLength:   2000,
				},
			},
		}),
	}
}

// registerCommands replaces the bot's global slash commands
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands")

	registered, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, "", commandDefinitions())
	if err != nil {
		return err
	}

	b.commands = registered
	slog.Info("Slash commands registered", "count", len(registered))
	return nil
}

// handleGroupID handles the /groupid command
func (b *Bot) handleGroupID(s *discordgo.Session, i *discordgo.InteractionCreate) {
	groupID := options(i)["group_id"].IntValue()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := b.repo.SetGroupID(ctx, i.GuildID, groupID); err != nil {
		slog.Error("Failed to set group ID", "guildID", i.GuildID, "error", err)
		respondWithMessage(s, i, "Failed to set the Group ID. Please try again.")
		return
	}

	slog.Info("Group ID set", "guildID", i.GuildID, "groupID", groupID, "user", interactionUserID(i))
	respondWithMessage(s, i, fmt.Sprintf("✅ Group ID set to **%d**.", groupID))
}

// handleLogChannel handles the /logchannel command
func (b *Bot) handleLogChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if !b.requireGroup(ctx, s, i) {
		return
	}

	channelID := ""
	if opt, ok := options(i)["channel"]; ok {
		channelID = opt.ChannelValue(nil).ID
		if !b.canPostIn(s, channelID) {
			respondWithMessage(s, i, fmt.Sprintf("⚠️ I don't have permission to send messages and embeds in <#%s>. "+
				"Please grant me 'Send Messages' and 'Embed Links' permissions there.", channelID))
			return
		}
	}

	if err := b.repo.SetLogChannel(ctx, i.GuildID, channelID); err != nil {
		slog.Error("Failed to set log channel", "guildID", i.GuildID, "error", err)
		respondWithMessage(s, i, "Failed to set the log channel. Please try again.")
		return
	}

	slog.Info("Log channel set", "guildID", i.GuildID, "channelID", channelID, "user", interactionUserID(i))
	if channelID == "" {
		respondWithMessage(s, i, "✅ Sync event logging has been disabled.")
		return
	}
	respondWithMessage(s, i, fmt.Sprintf("✅ Sync events will now be logged in <#%s>.", channelID))
}

// canPostIn reports whether the bot may send embeds to a channel. Unknown
// permissions are treated as allowed; delivery failures are logged later.
func (b *Bot) canPostIn(s *discordgo.Session, channelID string) bool {
	perms, err := s.State.UserChannelPermissions(s.State.User.ID, channelID)
	if err != nil {
		return true
	}
	need := int64(discordgo.PermissionSendMessages | discordgo.PermissionEmbedLinks)
	return perms&need == need
}

// handleLinkUser handles the /linkuser command
func (b *Bot) handleLinkUser(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := options(i)
	user := opts["user"].UserValue(nil)
	rsn := wom.SanitizeName(opts["rsn"].StringValue())

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if !b.requireGroup(ctx, s, i) {
		return
	}
	if rsn == "" {
		respondWithMessage(s, i, "❌ Please provide a valid RSN.")
		return
	}

	if err := b.repo.UpsertLink(ctx, i.GuildID, user.ID, rsn); err != nil {
		slog.Error("Failed to link user", "guildID", i.GuildID, "userID", user.ID, "error", err)
		respondWithMessage(s, i, "Failed to link the user. Please try again.")
		return
	}

	slog.Info("User linked", "guildID", i.GuildID, "userID", user.ID, "rsn", rsn, "by", interactionUserID(i))
	respondWithMessage(s, i, fmt.Sprintf("✅ Linked <@%s> to **%s**. This RSN will be verified during the next sync.", user.ID, rsn))
}

// handleUnlinkUser handles the /unlinkuser command
func (b *Bot) handleUnlinkUser(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := options(i)["user"].UserValue(nil)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	deleted, err := b.repo.DeleteLink(ctx, i.GuildID, user.ID)
	if err != nil {
		slog.Error("Failed to unlink user", "guildID", i.GuildID, "userID", user.ID, "error", err)
		respondWithMessage(s, i, "Failed to unlink the user. Please try again.")
		return
	}
	if !deleted {
		respondWithMessage(s, i, fmt.Sprintf("🤔 <@%s> was not linked to an RSN in this server.", user.ID))
		return
	}

	slog.Info("User unlinked", "guildID", i.GuildID, "userID", user.ID, "by", interactionUserID(i))
	respondWithMessage(s, i, fmt.Sprintf("✅ <@%s> has been unlinked.", user.ID))
}

// handleLinkRole handles the /linkrole command
func (b *Bot) handleLinkRole(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := options(i)
	name := opts["wom_role"].StringValue()
	role := opts["discord_role"].RoleValue(nil, i.GuildID)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if !b.requireGroup(ctx, s, i) {
		return
	}

	womRole, err := b.repo.PutRoleMapping(ctx, i.GuildID, name, role.ID)
	if errors.Is(err, wom.ErrInvalidRole) {
		respondWithMessage(s, i, fmt.Sprintf("❌ **%s** is not a valid Wise Old Man role. "+
			"Please check the spelling or consult `/help` for a link to the roles list.", name))
		return
	}
	if err != nil {
		slog.Error("Failed to map role", "guildID", i.GuildID, "womRole", name, "error", err)
		respondWithMessage(s, i, "Failed to map the role. Please try again.")
		return
	}

	respondWithMessage(s, i, fmt.Sprintf("✅ Mapped WOM rank **%s** to Discord role <@&%s>.", womRole, role.ID))
}

// handleUnlinkRole handles the /unlinkrole command
func (b *Bot) handleUnlinkRole(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := options(i)["wom_role"].StringValue()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	deleted, err := b.repo.DeleteRoleMapping(ctx, i.GuildID, name)
	if err != nil {
		slog.Error("Failed to remove role mapping", "guildID", i.GuildID, "womRole", name, "error", err)
		respondWithMessage(s, i, "Failed to remove the mapping. Please try again.")
		return
	}
	if !deleted {
		respondWithMessage(s, i, fmt.Sprintf("🤔 No mapping was found for the WOM role **%s**.", name))
		return
	}
	respondWithMessage(s, i, fmt.Sprintf("✅ The mapping for WOM role **%s** has been removed.", strings.ToLower(name)))
}

// handleNickname handles the /nickname command
func (b *Bot) handleNickname(s *discordgo.Session, i *discordgo.InteractionCreate) {
	on := options(i)["state"].StringValue() == "on"

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if !b.settingUpdated(s, i, "nickname enforcement", b.repo.SetNicknameEnforcement(ctx, i.GuildID, on)) {
		return
	}
	respondWithMessage(s, i, fmt.Sprintf("✅ Nickname enforcement has been set to `%s`.", onOff(on)))
}

// handleReminder handles the /reminder command
func (b *Bot) handleReminder(s *discordgo.Session, i *discordgo.InteractionCreate) {
	choice := options(i)["interval"].StringValue()
	days, ok := reminderDays(choice)
	if !ok {
		respondWithMessage(s, i, fmt.Sprintf("❌ Unknown reminder interval `%s`.", choice))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if !b.settingUpdated(s, i, "reminder interval", b.repo.SetReminderInterval(ctx, i.GuildID, days)) {
		return
	}
	if days == 0 {
		respondWithMessage(s, i, "✅ Inactivity reminders have been disabled.")
		return
	}
	respondWithMessage(s, i, fmt.Sprintf("✅ Inactivity reminders will be sent after **%d days** of no sync changes.", days))
}

// handleNotifyPlayers handles the /notifyplayers command
func (b *Bot) handleNotifyPlayers(s *discordgo.Session, i *discordgo.InteractionCreate) {
	on := options(i)["state"].StringValue() == "on"

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if !b.settingUpdated(s, i, "DM notifications", b.repo.SetDMNotifications(ctx, i.GuildID, on)) {
		return
	}
	if on {
		respondWithMessage(s, i, "✅ Players will now be notified via DM when their roles change.")
		return
	}
	respondWithMessage(s, i, "✅ Players will no longer be notified of role changes.")
}

// handleNotifyMe handles the /notifyme command; any linked member may use it
func (b *Bot) handleNotifyMe(s *discordgo.Session, i *discordgo.InteractionCreate) {
	on := options(i)["state"].StringValue() == "on"
	userID := interactionUserID(i)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	err := b.repo.SetLinkDMNotifications(ctx, i.GuildID, userID, on)
	if errors.Is(err, storage.ErrNotFound) {
		respondWithMessage(s, i, "You are not linked to an RSN in this server. An admin must link you with `/linkuser` first.")
		return
	}
	if err != nil {
		slog.Error("Failed to update personal DM preference", "guildID", i.GuildID, "userID", userID, "error", err)
		respondWithMessage(s, i, "Failed to update your preference. Please try again.")
		return
	}
	if on {
		respondWithMessage(s, i, "✅ You will now receive DMs when your roles change in this server.")
		return
	}
	respondWithMessage(s, i, "✅ You will no longer receive DMs about role changes in this server.")
}

// handleCheckUser handles the /checkuser command
func (b *Bot) handleCheckUser(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := options(i)["user"].UserValue(nil)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	link, err := b.repo.GetLink(ctx, i.GuildID, user.ID)
	if errors.Is(err, storage.ErrNotFound) {
		respondWithMessage(s, i, fmt.Sprintf("🤔 <@%s> is not linked to any RSN in this server.", user.ID))
		return
	}
	if err != nil {
		slog.Error("Failed to look up link", "guildID", i.GuildID, "userID", user.ID, "error", err)
		respondWithMessage(s, i, "Failed to look up the user. Please try again.")
		return
	}
	respondWithMessage(s, i, checkUserMessage(link))
}

// handleInfo handles the /info command
func (b *Bot) handleInfo(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cfg, err := b.repo.GetGuildConfig(ctx, i.GuildID)
	if errors.Is(err, storage.ErrNotFound) {
		cfg = &storage.GuildConfig{GuildID: i.GuildID}
	} else if err != nil {
		slog.Error("Failed to load guild config", "guildID", i.GuildID, "error", err)
		respondWithMessage(s, i, "Failed to load the configuration. Please try again.")
		return
	}

	mappings, err := b.repo.ListRoleMappings(ctx, i.GuildID)
	if err != nil {
		slog.Error("Failed to load role mappings", "guildID", i.GuildID, "error", err)
		respondWithMessage(s, i, "Failed to load the configuration. Please try again.")
		return
	}

	respondWithEmbed(s, i, infoEmbed(cfg, mappings), nil)
}

// handlePlayerList handles the /playerlist command
func (b *Bot) handlePlayerList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	embed, components, msg := b.playerListPage(s, i.GuildID, 0)
	if msg != "" {
		respondWithMessage(s, i, msg)
		return
	}
	respondWithEmbed(s, i, embed, components)
}

// handleComponent turns player list pages
func (b *Bot) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	page, ok := parsePageID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}

	embed, components, msg := b.playerListPage(s, i.GuildID, page)
	data := &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	}
	if msg != "" {
		data = &discordgo.InteractionResponseData{Content: msg, Embeds: []*discordgo.MessageEmbed{}, Components: []discordgo.MessageComponent{}}
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: data,
	}); err != nil {
		slog.Warn("Failed to update player list", "guildID", i.GuildID, "error", err)
	}
}

// playerListPage renders one page, or a message when there is nothing to list
func (b *Bot) playerListPage(s *discordgo.Session, guildID string, page int) (*discordgo.MessageEmbed, []discordgo.MessageComponent, string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cfg, err := b.repo.GetGuildConfig(ctx, guildID)
	if err != nil || !cfg.Configured() {
		return nil, nil, "No WOM Group ID configured for this server. Use `/groupid` to set it."
	}
	links, err := b.repo.ListLinks(ctx, guildID)
	if err != nil {
		slog.Error("Failed to list links", "guildID", guildID, "error", err)
		return nil, nil, "Failed to retrieve the player list."
	}
	if len(links) == 0 {
		return nil, nil, "No players have been linked in this server yet. Use `/linkuser` to add one."
	}

	guildName := guildID
	if g, err := s.State.Guild(guildID); err == nil {
		guildName = g.Name
	}
	memberName := func(userID string) string {
		if m, err := s.State.Member(guildID, userID); err == nil && m.User != nil {
			return m.User.Username
		}
		return "Unknown User"
	}

	embed, components := playerListView(guildName, *cfg.GroupID, links, memberName, page)
	return embed, components, ""
}

// handleAutocomplete suggests WOM role names
func (b *Bot) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	current := ""
	for _, opt := range data.Options {
		if opt.Focused {
			current = opt.StringValue()
		}
	}

	var candidates []string
	switch data.Name {
	case "linkrole":
		for _, r := range wom.Roles() {
			candidates = append(candidates, string(r))
		}
	case "unlinkrole":
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		mappings, err := b.repo.ListRoleMappings(ctx, i.GuildID)
		if err != nil {
			slog.Warn("Failed to load mappings for autocomplete", "guildID", i.GuildID, "error", err)
		}
		for _, m := range mappings {
			candidates = append(candidates, m.WOMRole)
		}
	default:
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: autocompleteChoices(candidates, current)},
	}); err != nil {
		slog.Debug("Failed to send autocomplete choices", "error", err)
	}
}

// handleSync handles the owner-only /sync command
func (b *Bot) handleSync(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if b.syncer == nil {
		respondWithMessage(s, i, "Sync is not available yet. Try again in a moment.")
		return
	}
	deferResponse(s, i)

	// The pass itself runs detached from this context
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var (
		summary *reconcile.Summary
		err     error
		groupID int64
	)
	if opt, ok := options(i)["group_id"]; ok {
		groupID = opt.IntValue()
		summary, err = b.syncer.SyncGroup(ctx, groupID)
	} else {
		summary, err = b.syncer.SyncGuild(ctx, i.GuildID)
	}

	editResponse(s, i, syncResultMessage(summary, groupID, err))
}

// handleBroadcast handles the owner-only /broadcast command
func (b *Bot) handleBroadcast(s *discordgo.Session, i *discordgo.InteractionCreate) {
	message := options(i)["message"].StringValue()
	deferResponse(s, i)
	editResponse(s, i, "⏳ Broadcasting message to all servers...")

	res, err := b.broadcaster.Broadcast(context.Background(), message)
	if err != nil {
		slog.Error("Broadcast failed", "error", err)
		editResponse(s, i, "❌ Broadcast failed. Check the logs for details.")
		return
	}
	editResponse(s, i, fmt.Sprintf("✅ Broadcast complete.\nSent to **%d** servers.\nFailed for **%d** servers.", res.Sent, res.Failed))
}

// handleHelp handles the /help command
func (b *Bot) handleHelp(s *discordgo.Session, i *discordgo.InteractionCreate) {
	respondWithEmbed(s, i, helpEmbed(), nil)
}

// requireGroup replies and returns false when the guild has no WOM group yet
func (b *Bot) requireGroup(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	cfg, err := b.repo.GetGuildConfig(ctx, i.GuildID)
	if err == nil && cfg.Configured() {
		return true
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.Error("Failed to load guild config", "guildID", i.GuildID, "error", err)
		respondWithMessage(s, i, "Failed to load the configuration. Please try again.")
		return false
	}
	respondWithMessage(s, i, "❌ Please set your server's Wise Old Man Group ID first using `/groupid`.")
	return false
}

// settingUpdated replies on a failed guild setting update and reports success
func (b *Bot) settingUpdated(s *discordgo.Session, i *discordgo.InteractionCreate, setting string, err error) bool {
	if errors.Is(err, storage.ErrNotFound) {
		respondWithMessage(s, i, "❌ Please set your server's Wise Old Man Group ID first using `/groupid`.")
		return false
	}
	if err != nil {
		slog.Error("Failed to update setting", "guildID", i.GuildID, "setting", setting, "error", err)
		respondWithMessage(s, i, fmt.Sprintf("Failed to update %s. Please try again.", setting))
		return false
	}
	slog.Info("Setting updated", "guildID", i.GuildID, "setting", setting, "user", interactionUserID(i))
	return true
}

// Helper functions

func options(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, opt := range opts {
		m[opt.Name] = opt
	}
	return m
}

func floatPtr(f float64) *float64 {
	return &f
}

func respondWithMessage(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	respond(s, i, &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral})
}

func respondWithEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) {
	respond(s, i, &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
		Flags:      discordgo.MessageFlagsEphemeral,
	})
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		slog.Warn("Failed to respond to interaction", "guildID", i.GuildID, "error", err)
	}
}

func deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}); err != nil {
		slog.Warn("Failed to defer interaction", "guildID", i.GuildID, "error", err)
	}
}

func editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}); err != nil {
		slog.Warn("Failed to edit interaction response", "guildID", i.GuildID, "error", err)
	}
}
