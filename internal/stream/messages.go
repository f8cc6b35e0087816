package stream

// Notices posted to a session's text channel.
const (
	MsgCleaningUp      = "🧹 Bot is still cleaning up from last session"
	MsgStreamOffline   = "😰 The stream went offline, I gotta go!"
	MsgStreamBroken    = "😰 Something happened to the stream! I uhhh... gotta go!"
	MsgDisconnected    = "🔌 Stream disconnected. Use `/play` to start a new stream!"
	MsgInactiveChannel = "👋 Nobody's listening anymore, so I'm heading out. Use `/play` to start a new stream!"
	MsgLeaving         = "👋 Seeya Later, Gator!"
	MsgRefreshing      = "♻️ Refreshing stream, the bot may skip or leave and re-enter"
	MsgRestored        = "🔁 I was restarted while playing here. Use `/play` to start the stream again!"
)
