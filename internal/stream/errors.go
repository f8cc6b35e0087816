package stream

import (
	"errors"

	"github.com/latoulicious/bunradio/pkg/station"
)

var (
	ErrNoStreamSelected = station.ErrNoStreamSelected
	ErrStreamOffline    = station.ErrStreamOffline
	ErrInvalidURL       = station.ErrInvalidStreamURL

	ErrAlreadyPlaying   = errors.New("already playing in this guild")
	ErrAuthorNotInVoice = errors.New("invoking user is not in a voice channel")
	ErrCleaningUp       = errors.New("session is still cleaning up")
	ErrNoVoiceClient    = errors.New("no voice connection in this guild")
	ErrVoiceUnavailable = errors.New("voice connection unavailable")
	ErrNotRecovering    = errors.New("session is no longer recovering")
)

// UserMessage turns a controller error into the text shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCleaningUp):
		return MsgCleaningUp
	case errors.Is(err, ErrAlreadyPlaying):
		return "😱 I'm already playing music! I can't be in two places at once"
	case errors.Is(err, ErrNoStreamSelected):
		return "🙄 No stream started, what did you expect me to do?"
	case errors.Is(err, ErrStreamOffline):
		return "📋 Error fetching stream. Maybe the stream is down?"
	case errors.Is(err, ErrAuthorNotInVoice):
		return "😢 You are not in a voice channel. What are you doing? Where am I supposed to go? Don't leave me here"
	case errors.Is(err, ErrNoVoiceClient):
		return "🙇 I'm not playing any music! Please stop harassing me"
	case errors.Is(err, ErrInvalidURL):
		return "☠️ The provided link is not a valid URL. Please provide a valid Shoutcast stream link."
	case errors.Is(err, ErrVoiceUnavailable):
		return "🔇 I couldn't connect to your voice channel. Please try again in a moment"
	}
	return "🤷 An unexpected error occurred while processing your command:\n" + err.Error()
}
