package session

// ErrorKind is a divergence the health monitor can detect.
type ErrorKind string

const (
	StaleState      ErrorKind = "STALE_STATE"
	InactiveGuild   ErrorKind = "INACTIVE_GUILD"
	ClientNotInChat ErrorKind = "CLIENT_NOT_IN_CHAT"
	NoActiveStream  ErrorKind = "NO_ACTIVE_STREAM"
	NotPlaying      ErrorKind = "NOT_PLAYING"
	StreamOffline   ErrorKind = "STREAM_OFFLINE"
	InactiveChannel ErrorKind = "INACTIVE_CHANNEL"
)

// ErrorKinds lists every kind in evaluation order.
var ErrorKinds = []ErrorKind{
	StaleState,
	InactiveGuild,
	ClientNotInChat,
	NoActiveStream,
	NotPlaying,
	StreamOffline,
	InactiveChannel,
}
