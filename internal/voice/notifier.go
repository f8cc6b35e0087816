package voice

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/latoulicious/bunradio/internal/log"
)

var ErrCannotSend = errors.New("missing permission to send messages")

// Notifier posts to text channels the bot is allowed to write in.
type Notifier struct {
	session *discordgo.Session
	logger  zerolog.Logger
}

func NewNotifier(session *discordgo.Session, logger zerolog.Logger) *Notifier {
	return &Notifier{session: session, logger: logger}
}

func (n *Notifier) Notify(channelID, message string) error {
	if err := n.canSend(channelID); err != nil {
		return err
	}
	if _, err := n.session.ChannelMessageSend(channelID, message); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	n.logger.Debug().Str(log.FieldChannelID, channelID).Msg("notice sent")
	return nil
}

func (n *Notifier) NotifyEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	if err := n.canSend(channelID); err != nil {
		return err
	}
	if _, err := n.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		return fmt.Errorf("send embed: %w", err)
	}
	return nil
}

func (n *Notifier) canSend(channelID string) error {
	if n.session.State == nil || n.session.State.User == nil {
		return ErrCannotSend
	}
	perms, err := n.session.State.UserChannelPermissions(n.session.State.User.ID, channelID)
	if err != nil {
		return fmt.Errorf("check permissions: %w", err)
	}
	if perms&discordgo.PermissionSendMessages == 0 {
		return ErrCannotSend
	}
	return nil
}
