// Package uuid provides identifier generation for submissions, workflow
// instances and history entries.
package uuid

import (
	"sync"

	"github.com/google/uuid"
)

// IDers generate identifiers.
type IDer interface {
	ID() string
}

// UUID is an ID generator utilizing a UUID.
type UUID struct {
	ordered bool
}

// NewUUID creates a new random (version 4) UUID ID generator.
func NewUUID() *UUID {
	return &UUID{}
}

// NewOrderedUUID creates a new time-ordered (version 7) UUID ID generator.
// IDs created later sort later which keeps index inserts sequential.
func NewOrderedUUID() *UUID {
	return &UUID{ordered: true}
}

// ID generates a new UUID ID.
func (u *UUID) ID() string {
	if u.ordered {
		if id, err := uuid.NewV7(); err == nil {
			return id.String()
		}
	}
	return uuid.NewString()
}

// StaticIDs is an ID generator that cycles through provided IDs.
// It is safe for concurrent use.
type StaticIDs struct {
	mu  sync.Mutex
	ids []string
	i   int
}

// NewStaticIDs creates a new static ID generator.
func NewStaticIDs(ids ...string) *StaticIDs {
	return &StaticIDs{ids: ids}
}

// ID returns the next ID.
// It will continually cycle through the IDs.
func (s *StaticIDs) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.ids[s.i%len(s.ids)]
	s.i++
	return id
}
