package log

// Canonical field names for structured logging.
const (
	FieldComponent = "component"
	FieldGuildID   = "guild_id"
	FieldChannelID = "channel_id"
	FieldUserID    = "user_id"
	FieldUpstream  = "upstream"
	FieldURL       = "url"
	FieldPID       = "pid"
	FieldAttempt   = "attempt"
	FieldErrorKind = "error_kind"
	FieldEpisode   = "episode"
	FieldOldState  = "old_state"
	FieldNewState  = "new_state"
	FieldElapsed   = "elapsed"
	FieldCommand   = "command"
)
