package gamedata

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Session is the context shared by every store of one running game. It numbers change records so that records
// from different stores of the same session can be ordered against each other.
type Session struct {
	id  uuid.UUID
	seq atomic.Uint64
}

// NewSession starts a session with a random id and a zero sequence.
func NewSession() *Session {
	return &Session{id: uuid.New()}
}

// ID returns the unique id of the session.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// LastSeq returns the sequence number of the most recent change record.
func (s *Session) LastSeq() uint64 {
	return s.seq.Load()
}

func (s *Session) nextSeq() uint64 {
	return s.seq.Add(1)
}
