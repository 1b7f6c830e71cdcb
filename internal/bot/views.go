package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/reconcile"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/storage"
)

const (
	colorInfo  = 0x3498db
	colorHelp  = 0x2ecc71
	pageSize   = 10
	pagePrefix = "playerlist:"

	maxChoices = 25
)

var reminderIntervals = []struct {
	name  string
	value string
	days  int
}{
	{"Off", "off", 0},
	{"3 Days", "3d", 3},
	{"5 Days", "5d", 5},
	{"7 Days (Default)", "7d", 7},
	{"14 Days", "14d", 14},
	{"30 Days", "30d", 30},
}

func reminderChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(reminderIntervals))
	for i, r := range reminderIntervals {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{Name: r.name, Value: r.value}
	}
	return choices
}

// reminderDays maps a /reminder choice to its interval in days
func reminderDays(value string) (int, bool) {
	for _, r := range reminderIntervals {
		if r.value == value {
			return r.days, true
		}
	}
	return 0, false
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func checkUserMessage(link *storage.Link) string {
	msg := fmt.Sprintf("✅ <@%s> is linked to the RSN: **%s**", link.DiscordID, link.RSN)
	if link.WOMID == nil {
		msg += " (not yet verified)"
	}
	return msg
}

func infoEmbed(cfg *storage.GuildConfig, mappings []*storage.RoleMapping) *discordgo.MessageEmbed {
	groupID := "None"
	if cfg.GroupID != nil {
		groupID = strconv.FormatInt(*cfg.GroupID, 10)
	}

	lastSync := "Never"
	if cfg.LastSync != nil {
		lastSync = fmt.Sprintf("<t:%d:F>", cfg.LastSync.Unix())
	}

	logChannel := "Not set"
	if cfg.LogChannelID != "" {
		logChannel = fmt.Sprintf("<#%s>", cfg.LogChannelID)
	}

	reminder := "Off"
	if cfg.ReminderIntervalDays > 0 {
		reminder = fmt.Sprintf("%d days", cfg.ReminderIntervalDays)
	}

	mappingText := "No roles mapped yet."
	if len(mappings) > 0 {
		lines := make([]string, len(mappings))
		for i, m := range mappings {
			lines[i] = fmt.Sprintf("• %s: <@&%s>", m.WOMRole, m.DiscordRoleID)
		}
		mappingText = strings.Join(lines, "\n")
	}

	return &discordgo.MessageEmbed{
		Title: "Server Sync Status",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Group ID", Value: groupID, Inline: true},
			{Name: "Last Sync", Value: lastSync, Inline: true},
			{Name: "Log Channel", Value: logChannel, Inline: true},
			{Name: "Nickname Enforcement", Value: onOff(cfg.NicknameEnforcement), Inline: true},
			{Name: "Player DMs", Value: onOff(cfg.DMNotifications), Inline: true},
			{Name: "Reminder", Value: reminder, Inline: true},
			{Name: "Role Mappings", Value: mappingText},
		},
	}
}

func pageCount(n int) int {
	return (n + pageSize - 1) / pageSize
}

// playerListView renders one page of linked players with previous/next buttons
func playerListView(guildName string, groupID int64, links []*storage.Link, memberName func(string) string, page int) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	pages := pageCount(len(links))
	page = max(0, min(page, pages-1))

	start := page * pageSize
	end := min(start+pageSize, len(links))

	var sb strings.Builder
	for _, l := range links[start:end] {
		fmt.Fprintf(&sb, "• %s (%s) - **%s**\n", memberName(l.DiscordID), l.DiscordID, l.RSN)
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Linked Players for %s (Group %d)", guildName, groupID),
		Description: sb.String(),
		Color:       colorInfo,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Page %d of %d", page+1, pages)},
	}

	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Previous",
				Style:    discordgo.SecondaryButton,
				CustomID: pagePrefix + strconv.Itoa(page-1),
				Disabled: page == 0,
			},
			discordgo.Button{
				Label:    "Next",
				Style:    discordgo.SecondaryButton,
				CustomID: pagePrefix + strconv.Itoa(page+1),
				Disabled: page >= pages-1,
			},
		}},
	}
	return embed, components
}

func parsePageID(customID string) (int, bool) {
	rest, ok := strings.CutPrefix(customID, pagePrefix)
	if !ok {
		return 0, false
	}
	page, err := strconv.Atoi(rest)
	if err != nil || page < 0 {
		return 0, false
	}
	return page, true
}

// autocompleteChoices returns up to 25 candidates containing current, with
// prefix matches first
func autocompleteChoices(candidates []string, current string) []*discordgo.ApplicationCommandOptionChoice {
	current = strings.ToLower(strings.TrimSpace(current))

	var prefix, contains []string
	for _, c := range candidates {
		lc := strings.ToLower(c)
		switch {
		case strings.HasPrefix(lc, current):
			prefix = append(prefix, c)
		case strings.Contains(lc, current):
			contains = append(contains, c)
		}
	}

	matches := append(prefix, contains...)
	if len(matches) > maxChoices {
		matches = matches[:maxChoices]
	}
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(matches))
	for i, m := range matches {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{Name: m, Value: m}
	}
	return choices
}

func syncResultMessage(summary *reconcile.Summary, groupID int64, err error) string {
	switch {
	case err == nil:
	case errors.Is(err, reconcile.ErrInProgress):
		return "⏳ A sync is already running for this server. Try again in a moment."
	case errors.Is(err, storage.ErrNotFound) && groupID != 0:
		return fmt.Sprintf("No guild found configured for Group ID **%d**.", groupID)
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, reconcile.ErrNoGroup):
		return "No Group ID set for this server."
	case errors.Is(err, reconcile.ErrAborted):
		return fmt.Sprintf("❌ Sync aborted, nothing was changed: %v", err)
	default:
		return fmt.Sprintf("❌ Sync failed: %v", err)
	}

	name := summary.GuildName
	if name == "" {
		name = summary.GuildID
	}
	header := fmt.Sprintf("Sync finished for **%s**.", name)
	if groupID != 0 {
		header = fmt.Sprintf("Sync finished for Group ID **%d** in guild **%s**.", groupID, name)
	}
	return fmt.Sprintf("%s\nChecked: `%d`\nUpdated: `%d`\nFailed: `%d`", header, summary.Checked, summary.Changed, summary.Failed)
}

func helpEmbed() *discordgo.MessageEmbed {
	commands := strings.Join([]string{
		"`/groupid [id]` - Set your clan ID",
		"`/logchannel #channel` - Set a channel to log role changes",
		"`/linkuser @user [rsn]` - Link/Update a member",
		"`/unlinkuser @user` - Unlink a member",
		"`/linkrole [wom_role] [discord_role]` - Map WOM Group Role to Discord Role",
		"`/unlinkrole [wom_role]` - Remove a role mapping",
		"`/nickname on/off` - Toggle forcing member nicknames to their RSN",
		"`/reminder off/3d/..` - Set inactivity reminder timer",
		"`/notifyplayers on/off` - Toggle role change DMs for all players",
		"`/notifyme on/off` - Toggle personal role change DMs",
		"`/playerlist` - View linked players",
		"`/checkuser @user` - Check a user's linked RSN",
		"`/info` - View configuration and sync status",
	}, "\n")

	return &discordgo.MessageEmbed{
		Title: "Setup Guide",
		Color: colorHelp,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "1. Wise Old Man Setup",
				Value: "Your clan must use the **[WOM Runelite Plugin](https://runelite.net/plugin-hub/show/wom-utils)**. " +
					"After configuring the plugin, open the Clan Chat tab in-game and click \"Sync WOM Group\" " +
					"to ensure ranks are up to date on the website.",
			},
			{
				Name: "2. Find Group ID",
				Value: "Go to your group page on https://wiseoldman.net/. The ID is the number at the end of the URL " +
					"(e.g. `.../groups/1234` means your Group ID is 1234).",
			},
			{
				Name:  "3. Organise Roles",
				Value: "Ensure that this bot's role is above the Discord roles you wish to assign.",
			},
			{Name: "4. Commands", Value: commands},
			{
				Name:  "Role names",
				Value: "[List of WOM Group Roles](https://docs.wiseoldman.net/api/groups/group-type-definitions#object-membership)",
			},
		},
	}
}
