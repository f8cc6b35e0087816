package commands

import (
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/latoulicious/bunradio/internal/log"
)

// Definitions lists every slash command the bot offers.
func Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Begin playback of a shoutcast/icecast stream",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "url",
					Description: "Stream or .pls playlist URL",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "private",
					Description: "Hide the stream URL from song announcements",
				},
			},
		},
		{
			Name:        "leave",
			Description: "Remove the bot from the current call",
		},
		{
			Name:        "refresh",
			Description: "Refresh the stream. Bot will leave and come back",
		},
		{
			Name:        "song",
			Description: "Show the current song information",
		},
		{
			Name:        "debug",
			Description: "Show debug stats & info",
		},
	}
}

// RegisterSlashCommands registers all slash commands globally.
func RegisterSlashCommands(s *discordgo.Session, logger zerolog.Logger) error {
	logger.Info().Msg("registering global slash commands")

	for _, cmd := range Definitions() {
		if _, err := s.ApplicationCommandCreate(s.State.User.ID, "", cmd); err != nil {
			logger.Error().Err(err).Str(log.FieldCommand, cmd.Name).Msg("error creating command")
			return err
		}
		logger.Debug().Str(log.FieldCommand, cmd.Name).Msg("registered command")
	}

	logger.Info().Msg("all slash commands registered")
	return nil
}
