package session

import (
	"fmt"
	"maps"
	"time"
)

// Field names a single attribute of a Record.
type Field string

const (
	FieldStreamURL          Field = "stream_url"
	FieldIsPrivate          Field = "is_private"
	FieldTextChannel        Field = "text_channel"
	FieldStartTime          Field = "start_time"
	FieldLastActiveUserTime Field = "last_active_user_time"
	FieldCleaningUp         Field = "cleaning_up"
	FieldCurrentSong        Field = "current_song"
	FieldTranscoderPID      Field = "transcoder_pid"
	FieldHealthErrorCounts  Field = "health_error_counts"
)

// Fields lists every Record field.
var Fields = []Field{
	FieldStreamURL,
	FieldIsPrivate,
	FieldTextChannel,
	FieldStartTime,
	FieldLastActiveUserTime,
	FieldCleaningUp,
	FieldCurrentSong,
	FieldTranscoderPID,
	FieldHealthErrorCounts,
}

// Record is the per-guild playback state. Zero values mean absent.
type Record struct {
	GuildID            string            `json:"guild_id"`
	StreamURL          string            `json:"stream_url,omitempty"`
	IsPrivate          bool              `json:"is_private,omitempty"`
	TextChannel        string            `json:"text_channel,omitempty"`
	StartTime          time.Time         `json:"start_time,omitempty"`
	LastActiveUserTime time.Time         `json:"last_active_user_time,omitempty"`
	CleaningUp         bool              `json:"cleaning_up,omitempty"`
	CurrentSong        string            `json:"current_song,omitempty"`
	TranscoderPID      int               `json:"transcoder_pid,omitempty"`
	HealthErrorCounts  map[ErrorKind]int `json:"health_error_counts,omitempty"`
}

// IsEmpty reports whether the record carries any playback intent. The
// cleaning_up flag, error counters and the sticky UX fields (text channel,
// privacy) do not count.
func (r Record) IsEmpty() bool {
	return r.StreamURL == "" &&
		r.StartTime.IsZero() &&
		r.LastActiveUserTime.IsZero() &&
		r.CurrentSong == "" &&
		r.TranscoderPID == 0
}

// ErrorCount never panics on a missing map.
func (r Record) ErrorCount(kind ErrorKind) int {
	return r.HealthErrorCounts[kind]
}

// Field returns the value stored under f.
func (r Record) Field(f Field) (any, error) {
	switch f {
	case FieldStreamURL:
		return r.StreamURL, nil
	case FieldIsPrivate:
		return r.IsPrivate, nil
	case FieldTextChannel:
		return r.TextChannel, nil
	case FieldStartTime:
		return r.StartTime, nil
	case FieldLastActiveUserTime:
		return r.LastActiveUserTime, nil
	case FieldCleaningUp:
		return r.CleaningUp, nil
	case FieldCurrentSong:
		return r.CurrentSong, nil
	case FieldTranscoderPID:
		return r.TranscoderPID, nil
	case FieldHealthErrorCounts:
		return maps.Clone(r.counts()), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownField, f)
}

func (r *Record) setField(f Field, v any) error {
	ok := true
	switch f {
	case FieldStreamURL:
		r.StreamURL, ok = v.(string)
	case FieldIsPrivate:
		r.IsPrivate, ok = v.(bool)
	case FieldTextChannel:
		r.TextChannel, ok = v.(string)
	case FieldStartTime:
		r.StartTime, ok = v.(time.Time)
	case FieldLastActiveUserTime:
		r.LastActiveUserTime, ok = v.(time.Time)
	case FieldCleaningUp:
		r.CleaningUp, ok = v.(bool)
	case FieldCurrentSong:
		r.CurrentSong, ok = v.(string)
	case FieldTranscoderPID:
		r.TranscoderPID, ok = v.(int)
	case FieldHealthErrorCounts:
		var counts map[ErrorKind]int
		counts, ok = v.(map[ErrorKind]int)
		if ok {
			r.HealthErrorCounts = maps.Clone(counts)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	if !ok {
		return fmt.Errorf("%w: %q does not accept %T", ErrFieldType, f, v)
	}
	return nil
}

func (r Record) counts() map[ErrorKind]int {
	if r.HealthErrorCounts == nil {
		return map[ErrorKind]int{}
	}
	return r.HealthErrorCounts
}

func (r Record) clone() Record {
	r.HealthErrorCounts = maps.Clone(r.counts())
	return r
}

// preserve copies the listed fields of r onto a fresh record for the same guild.
func (r Record) preserve(fields []Field) Record {
	out := Record{GuildID: r.GuildID, HealthErrorCounts: map[ErrorKind]int{}}
	for _, f := range fields {
		v, err := r.Field(f)
		if err != nil {
			continue
		}
		_ = out.setField(f, v)
	}
	return out
}
