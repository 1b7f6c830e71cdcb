package reconcile

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/platform"
	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/wom"
)

// maxFieldLength is Discord's limit for an embed field value
const maxFieldLength = 1024

const (
	colorOK      = 0x2ecc71
	colorWarning = 0xe67e22
)

// buildReport renders a summary as the log channel embed
func buildReport(s *Summary, at time.Time) *platform.Embed {
	e := &platform.Embed{
		Title: "🔄 Sync Report",
		Description: fmt.Sprintf("Checked **%d** linked members, **%d** changed, **%d** failed.",
			s.Checked, s.Changed, s.Failed),
		Color:     colorOK,
		Footer:    s.GroupName,
		Timestamp: at,
	}
	if s.Failed > 0 {
		e.Color = colorWarning
	}

	add := func(name string, lines []string) {
		if len(lines) == 0 {
			return
		}
		e.Fields = append(e.Fields, platform.EmbedField{
			Name:  fmt.Sprintf("%s (%d)", name, len(lines)),
			Value: joinLimited(lines, maxFieldLength),
		})
	}
	add("Role Updates", s.RoleUpdates)
	add("Name Updates", s.NameUpdates)
	add("Nickname Updates", s.NickUpdates)
	add("Removed Links", s.Removed)
	add("Not Found on WOM", s.NotFound)

	if s.Failed > 0 {
		e.Fields = append(e.Fields, platform.EmbedField{
			Name:  "Failures",
			Value: fmt.Sprintf("%d member(s) could not be updated. Check that my role is above the mapped roles.", s.Failed),
		})
	}
	return e
}

// joinLimited joins lines with newlines, keeping the result within limit and
// ending with a count of the lines left out
func joinLimited(lines []string, limit int) string {
	var b strings.Builder
	for i, line := range lines {
		sep := ""
		if i > 0 {
			sep = "\n"
		}
		reserve := 0
		if rest := len(lines) - i - 1; rest > 0 {
			reserve = len(fmt.Sprintf("\n…and %d more", rest))
		}
		if b.Len()+len(sep)+len(line)+reserve > limit {
			if i == 0 {
				return truncate(line, limit)
			}
			fmt.Fprintf(&b, "\n…and %d more", len(lines)-i)
			return b.String()
		}
		b.WriteString(sep)
		b.WriteString(line)
	}
	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - len("…")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func roleUpdateLine(rsn string, added, removed []string) string {
	var parts []string
	for _, r := range added {
		parts = append(parts, "+"+r)
	}
	for _, r := range removed {
		parts = append(parts, "-"+r)
	}
	return fmt.Sprintf("**%s**: %s", rsn, strings.Join(parts, ", "))
}

// failureMessage is the log channel alert for a failed group fetch
func failureMessage(groupID int64, cause error) string {
	var se *wom.StatusError
	reason := "could not reach Wise Old Man"
	switch {
	case errors.As(cause, &se) && se.StatusCode == http.StatusNotFound:
		reason = "the group was not found, check `/groupid`"
	case errors.As(cause, &se):
		reason = fmt.Sprintf("Wise Old Man returned HTTP %d", se.StatusCode)
	case errors.Is(cause, gobreaker.ErrOpenState), errors.Is(cause, gobreaker.ErrTooManyRequests):
		reason = "Wise Old Man is failing repeatedly, pausing requests"
	case errors.Is(cause, wom.ErrMalformed):
		reason = "Wise Old Man sent an unreadable response"
	}
	return fmt.Sprintf("⚠️ **Sync failed** for WOM group `%d`: %s. No changes were made; I will retry next hour.", groupID, reason)
}

// dmMessage tells a member about their new role
func dmMessage(guildName, rank, roleName string) string {
	if roleName == "" {
		return fmt.Sprintf("Your clan role in **%s** was removed because your Wise Old Man rank no longer maps to a role.", guildName)
	}
	return fmt.Sprintf("Your role in **%s** is now **%s** (WOM rank: %s).", guildName, roleName, rank)
}
