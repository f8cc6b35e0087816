package handlers

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/latoulicious/bunradio/internal/commands"
	"github.com/latoulicious/bunradio/internal/log"
)

const commandTimeout = 30 * time.Second

// ephemeralCommands answer only to the caller.
var ephemeralCommands = map[string]bool{"debug": true}

type CommandHandler interface {
	Handle(ctx context.Context, inv commands.Invocation) commands.Reply
}

// Slash routes application command interactions to the command handler.
type Slash struct {
	ctx      context.Context
	commands CommandHandler
	logger   zerolog.Logger
}

// NewSlash builds the interaction handler. ctx bounds every command.
func NewSlash(ctx context.Context, h CommandHandler, logger zerolog.Logger) *Slash {
	return &Slash{ctx: ctx, commands: h, logger: logger}
}

// SlashCommandHandler handles slash command interactions.
func (sh *Slash) SlashCommandHandler(s *discordgo.Session, i *discordgo.InteractionCreate) {
	// Guild commands only, and never for bots.
	if i.Member == nil || i.Member.User == nil || i.Member.User.Bot {
		return
	}
	if i.Type != discordgo.InteractionApplicationCommand {
		sh.logger.Debug().Int("type", int(i.Type)).Msg("ignoring interaction")
		return
	}

	inv := invocationFrom(i)
	logger := sh.logger.With().
		Str(log.FieldCommand, inv.Name).
		Str(log.FieldGuildID, inv.GuildID).
		Str(log.FieldUserID, inv.UserID).
		Logger()

	// Acknowledge the interaction immediately
	ack := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if ephemeralCommands[inv.Name] {
		ack.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	if err := s.InteractionRespond(i.Interaction, ack); err != nil {
		logger.Error().Err(err).Msg("error acknowledging interaction")
		return
	}

	ctx, cancel := context.WithTimeout(sh.ctx, commandTimeout)
	defer cancel()

	start := time.Now()
	reply := sh.commands.Handle(ctx, inv)
	logger.Info().Dur(log.FieldElapsed, time.Since(start)).Msg("command handled")

	edit := &discordgo.WebhookEdit{Content: &reply.Content}
	if reply.Embed != nil {
		edit.Embeds = &[]*discordgo.MessageEmbed{reply.Embed}
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		logger.Error().Err(err).Msg("error sending interaction response")
	}
}

func invocationFrom(i *discordgo.InteractionCreate) commands.Invocation {
	data := i.ApplicationCommandData()
	inv := commands.Invocation{
		Name:      data.Name,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Options:   make(map[string]any, len(data.Options)),
	}
	if i.Member != nil && i.Member.User != nil {
		inv.UserID = i.Member.User.ID
	}
	for _, opt := range data.Options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionString:
			inv.Options[opt.Name] = opt.StringValue()
		case discordgo.ApplicationCommandOptionBoolean:
			inv.Options[opt.Name] = opt.BoolValue()
		case discordgo.ApplicationCommandOptionInteger:
			inv.Options[opt.Name] = opt.IntValue()
		}
	}
	return inv
}
