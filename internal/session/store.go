// Package session implements the per-account session store: the bridge's
// view of live calls, the call-id→session-id index, per-session outbound
// text queues, and the "latest session" pointer used for target resolution.
//
// A Store is partitioned by account id at a higher layer — each Store value
// here is a single account's partition, touched only by that account's
// connection monitor dispatch loop, so the locking here is a safety net
// rather than a contention point.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Call describes the call metadata optionally attached to a session on
// track.
type Call struct {
	CallID    string
	From      string
	To        string
	Direction string
}

// Session is the bridge's view of an ongoing call.
type Session struct {
	SessionID  string
	CallID     string
	From       string
	To         string
	Direction  string
	LastSeenAt time.Time
}

// QueuedMessage is an out-of-band text queued for a session before its next
// turn.
type QueuedMessage struct {
	MessageID string
	Text      string
	CreatedAt time.Time
}

// Store holds one account's sessions, call index, and outbound queues.
//
// All exported methods are safe for concurrent use, though in normal
// operation every call originates from a single account's dispatch loop.
type Store struct {
	mu sync.Mutex

	sessions  map[string]*Session
	callIndex map[string]string // call_id -> session_id
	queues    map[string][]QueuedMessage
	order     []string // session ids in track order, most recent last
	latest    string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions:  make(map[string]*Session),
		callIndex: make(map[string]string),
		queues:    make(map[string][]QueuedMessage),
	}
}

// Track upserts a session: creates it if unseen, refreshes LastSeenAt and
// call metadata otherwise, indexes the call id if supplied, and sets this
// session as the latest.
func (s *Store) Track(sessionID string, call *Call) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[sessionID]
	if !exists {
		sess = &Session{SessionID: sessionID}
		s.sessions[sessionID] = sess
	}
	sess.LastSeenAt = time.Now().UTC()
	if call != nil {
		if call.CallID != "" {
			sess.CallID = call.CallID
			s.callIndex[call.CallID] = sessionID
		}
		if call.From != "" {
			sess.From = call.From
		}
		if call.To != "" {
			sess.To = call.To
		}
		if call.Direction != "" {
			sess.Direction = call.Direction
		}
	}

	s.touchOrder(sessionID)
	s.latest = sessionID

	out := *sess
	return &out
}

// touchOrder moves sessionID to the end of the recency-ordered slice,
// inserting it if absent. Must be called with mu held.
func (s *Store) touchOrder(sessionID string) {
	for i, id := range s.order {
		if id == sessionID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.order = append(s.order, sessionID)
}

// Resolve implements the target resolution rules: empty/absent means the
// latest session, a "session:"/"call:" prefix selects by kind, and a bare
// string is tried as a session id and then as a call id. Targets may carry
// a leading "fortivoice:" prefix (stripped case-insensitively before the
// rules apply).
func (s *Store) Resolve(target string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target = stripFortivoicePrefix(target)

	if target == "" {
		if s.latest == "" {
			return "", false
		}
		return s.latest, true
	}

	lower := strings.ToLower(target)
	switch {
	case strings.HasPrefix(lower, "session:"):
		suffix := target[len("session:"):]
		if _, ok := s.sessions[suffix]; ok {
			return suffix, true
		}
		return "", false
	case strings.HasPrefix(lower, "call:"):
		suffix := target[len("call:"):]
		if sid, ok := s.callIndex[suffix]; ok {
			return sid, true
		}
		return "", false
	}

	if _, ok := s.sessions[target]; ok {
		return target, true
	}
	if sid, ok := s.callIndex[target]; ok {
		return sid, true
	}
	return "", false
}

func stripFortivoicePrefix(target string) string {
	const prefix = "fortivoice:"
	if len(target) >= len(prefix) && strings.EqualFold(target[:len(prefix)], prefix) {
		return target[len(prefix):]
	}
	return target
}

// QueueText appends text to sessionID's outbound queue, returning the
// queued message's id.
func (s *Store) QueueText(sessionID, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgID := "queued-" + uuid.NewString()
	s.queues[sessionID] = append(s.queues[sessionID], QueuedMessage{
		MessageID: msgID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
	return msgID, nil
}

// ConsumeQueue atomically drains and returns sessionID's outbound queue. A
// second immediate call returns an empty, non-nil slice.
func (s *Store) ConsumeQueue(sessionID string) []QueuedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[sessionID]
	delete(s.queues, sessionID)
	if q == nil {
		return []QueuedMessage{}
	}
	return q
}

// HasActiveSession reports whether any session is currently tracked.
func (s *Store) HasActiveSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions) > 0
}

// End deletes sessionID along with its queue and every call-index entry
// pointing at it. If sessionID was the latest session, the most recently
// tracked remaining session (if any) becomes the new latest.
func (s *Store) End(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked(sessionID)
}

func (s *Store) endLocked(sessionID string) {
	if _, ok := s.sessions[sessionID]; !ok {
		return
	}
	delete(s.sessions, sessionID)
	delete(s.queues, sessionID)
	for callID, sid := range s.callIndex {
		if sid == sessionID {
			delete(s.callIndex, callID)
		}
	}
	for i, id := range s.order {
		if id == sessionID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if s.latest == sessionID {
		if n := len(s.order); n > 0 {
			s.latest = s.order[n-1]
		} else {
			s.latest = ""
		}
	}
}

// Get returns a copy of the tracked session, if any.
func (s *Store) Get(sessionID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Latest returns the current latest session id, if any.
func (s *Store) Latest() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == "" {
		return "", false
	}
	return s.latest, true
}

// checkInvariants is used by tests to assert the store's two structural
// invariants: no dangling call-index entries, and latest is null or live.
func (s *Store) checkInvariants() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for callID, sid := range s.callIndex {
		if _, ok := s.sessions[sid]; !ok {
			return fmt.Errorf("call_index[%s] points at missing session %s", callID, sid)
		}
	}
	if s.latest != "" {
		if _, ok := s.sessions[s.latest]; !ok {
			return fmt.Errorf("latest session %s is not live", s.latest)
		}
	}
	return nil
}
