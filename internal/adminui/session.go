package adminui

import "sync"

// EditKind distinguishes what the awaited input will be applied to.
type EditKind string

const (
	EditScalar          EditKind = "scalar"
	EditAddAutoReply    EditKind = "add_auto_reply"
	EditAddBlockKeyword EditKind = "add_block_keyword"
)

// EditState is one admin's outstanding "awaiting input" state. Menu renders
// use the stored chat/message so the originating menu can be re-drawn after
// the input is applied or cancelled.
type EditState struct {
	Kind          EditKind
	Key           string // scalar key, or rule kind section
	MenuChatID    int64
	MenuMessageID int64
}

// Sessions is the explicit per-admin edit-session map. At most one state per
// admin: a second edit action overwrites the first. Always cleared on
// completion, cancellation, or superseding input.
type Sessions struct {
	mu      sync.Mutex
	byAdmin map[int64]EditState
}

func NewSessions() *Sessions {
	return &Sessions{byAdmin: make(map[int64]EditState)}
}

func (s *Sessions) Start(adminID int64, st EditState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAdmin[adminID] = st
}

// Take returns and clears the outstanding state, if any. The next text
// message from the admin is consumed exactly once.
func (s *Sessions) Take(adminID int64) (EditState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byAdmin[adminID]
	if ok {
		delete(s.byAdmin, adminID)
	}
	return st, ok
}

func (s *Sessions) Clear(adminID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byAdmin, adminID)
}
