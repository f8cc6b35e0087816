package station

import "errors"

var (
	ErrNoStreamSelected = errors.New("no stream selected")
	ErrStreamOffline    = errors.New("stream offline")
	ErrInvalidStreamURL = errors.New("invalid stream url")
	ErrPlaylistEmpty    = errors.New("playlist has no stream entry")
)
