// Package session holds the per-guild playback records.
package session

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrUnknownField = errors.New("unknown session field")
	ErrFieldType    = errors.New("wrong value type for session field")
)

type entry struct {
	mu     sync.Mutex
	record Record
}

// Store keeps one Record per guild. Records are created lazily on first touch
// and are only ever handed out as copies.
type Store struct {
	entries sync.Map // guild id -> *entry
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) entry(guildID string) *entry {
	if e, ok := s.entries.Load(guildID); ok {
		return e.(*entry)
	}
	e, _ := s.entries.LoadOrStore(guildID, &entry{
		record: Record{GuildID: guildID, HealthErrorCounts: map[ErrorKind]int{}},
	})
	return e.(*entry)
}

// Get returns a copy of the guild's record.
func (s *Store) Get(guildID string) Record {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.clone()
}

// Field returns a single value from the guild's record.
func (s *Store) Field(guildID string, f Field) (any, error) {
	return s.Get(guildID).Field(f)
}

// Set stores v under f and returns it.
func (s *Store) Set(guildID string, f Field, v any) (any, error) {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record.setField(f, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Update applies fn to the record under the guild's lock and returns the result.
func (s *Store) Update(guildID string, fn func(*Record)) Record {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.record)
	e.record.GuildID = guildID
	if e.record.HealthErrorCounts == nil {
		e.record.HealthErrorCounts = map[ErrorKind]int{}
	}
	return e.record.clone()
}

// CompareAndSetCleaningUp flips cleaning_up from !v to v. It returns false if
// the flag already had the value v.
func (s *Store) CompareAndSetCleaningUp(guildID string, v bool) bool {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.record.CleaningUp == v {
		return false
	}
	e.record.CleaningUp = v
	return true
}

// Clear resets the record in one step, keeping only the preserved fields.
func (s *Store) Clear(guildID string, preserve ...Field) {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record = e.record.preserve(preserve)
}

// GuildIDs lists every guild that has a record, sorted.
func (s *Store) GuildIDs() []string {
	var ids []string
	s.entries.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Active lists guilds whose record is not empty.
func (s *Store) Active() []string {
	var ids []string
	for _, id := range s.GuildIDs() {
		if !s.Get(id).IsEmpty() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Snapshot copies every non-empty record.
func (s *Store) Snapshot() []Record {
	var out []Record
	for _, id := range s.GuildIDs() {
		if r := s.Get(id); !r.IsEmpty() {
			out = append(out, r)
		}
	}
	return out
}

// Restore replaces the records of the given guilds.
func (s *Store) Restore(records []Record) {
	for _, r := range records {
		if r.GuildID == "" {
			continue
		}
		rec := r.clone()
		e := s.entry(r.GuildID)
		e.mu.Lock()
		e.record = rec
		e.mu.Unlock()
	}
}
