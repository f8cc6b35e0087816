package handlers

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestInvocationFrom(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "guild-1",
		ChannelID: "text-1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "user-1"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "play",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "url", Type: discordgo.ApplicationCommandOptionString, Value: "http://radio.example.com/"},
				{Name: "private", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
			},
		},
	}}

	inv := invocationFrom(i)

	assert.Equal(t, "play", inv.Name)
	assert.Equal(t, "guild-1", inv.GuildID)
	assert.Equal(t, "text-1", inv.ChannelID)
	assert.Equal(t, "user-1", inv.UserID)
	assert.Equal(t, "http://radio.example.com/", inv.String("url"))
	assert.True(t, inv.Bool("private"))
	assert.False(t, inv.Bool("missing"))
}
