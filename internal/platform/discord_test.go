package platform

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		err           error
		wantForbidden bool
	}{
		{
			name: "http 403",
			err: &discordgo.RESTError{
				Response: &http.Response{StatusCode: http.StatusForbidden},
			},
			wantForbidden: true,
		},
		{
			name: "missing permissions code",
			err: &discordgo.RESTError{
				Response: &http.Response{StatusCode: http.StatusBadRequest},
				Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingPermissions},
			},
			wantForbidden: true,
		},
		{
			name: "closed DMs",
			err: &discordgo.RESTError{
				Response: &http.Response{StatusCode: http.StatusBadRequest},
				Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeCannotSendMessagesToThisUser},
			},
			wantForbidden: true,
		},
		{
			name: "server error",
			err: &discordgo.RESTError{
				Response: &http.Response{StatusCode: http.StatusInternalServerError},
			},
		},
		{
			name: "plain error",
			err:  errors.New("connection reset"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := mapError(tt.err)
			assert.Equal(t, tt.wantForbidden, errors.Is(got, ErrForbidden))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestCanObserve(t *testing.T) {
	t.Parallel()

	state := discordgo.NewState()
	assert.NoError(t, state.GuildAdd(&discordgo.Guild{ID: "available"}))
	assert.NoError(t, state.GuildAdd(&discordgo.Guild{ID: "outage", Unavailable: true}))
	d := NewDiscord(&discordgo.Session{State: state})

	tests := []struct {
		guildID string
		want    bool
	}{
		{guildID: "available", want: true},
		{guildID: "outage", want: true},
		{guildID: "kicked", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.guildID, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, d.CanObserve(tt.guildID))
		})
	}

	assert.Equal(t, 1, d.ObservedCount(), "unavailable guilds are not counted as served")
}

func TestToMember(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		member      *discordgo.Member
		wantDisplay string
	}{
		{
			name:        "nick wins",
			member:      &discordgo.Member{Nick: "Zezima", User: &discordgo.User{ID: "1", Username: "zez", GlobalName: "Zez"}},
			wantDisplay: "Zezima",
		},
		{
			name:        "global name",
			member:      &discordgo.Member{User: &discordgo.User{ID: "1", Username: "zez", GlobalName: "Zez"}},
			wantDisplay: "Zez",
		},
		{
			name:        "username",
			member:      &discordgo.Member{User: &discordgo.User{ID: "1", Username: "zez"}},
			wantDisplay: "zez",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.member.Roles = []string{"r1"}
			m := toMember(tt.member)
			assert.Equal(t, tt.wantDisplay, m.DisplayName)
			assert.Equal(t, "1", m.UserID)
			assert.True(t, m.HasRole("r1"))
			assert.False(t, m.HasRole("r2"))
		})
	}
}

func TestToDiscordEmbed(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := toDiscordEmbed(&Embed{
		Title:     "Sync Report",
		Color:     0x3498db,
		Fields:    []EmbedField{{Name: "Role Updates", Value: "a"}},
		Footer:    "Iron Legion",
		Timestamp: ts,
	})

	assert.Equal(t, "Sync Report", e.Title)
	assert.Len(t, e.Fields, 1)
	assert.Equal(t, "Iron Legion", e.Footer.Text)
	assert.Equal(t, "2024-05-01T12:00:00Z", e.Timestamp)
}
