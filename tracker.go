package auth

import (
	"context"
	"sync"
)

// FetchTicket marks the start of an asynchronous session lookup.
type FetchTicket struct {
	eventSeq uint64
	fetchID  uint64
}

// TrackedSession is a point-in-time view of the tracker.
type TrackedSession struct {
	Loading bool
	Session *Session
}

// SessionTracker keeps the latest known session ordered by logical event
// order, not by when asynchronous lookups happen to complete. It starts in
// the loading state and leaves it on the first event or resolved lookup.
type SessionTracker struct {
	mu           sync.Mutex
	resolved     bool
	session      *Session
	eventSeq     uint64
	nextFetch    uint64
	appliedFetch uint64
}

var _ Listener = (*SessionTracker)(nil)

func NewSessionTracker() *SessionTracker {
	return &SessionTracker{}
}

// OnAuthEvent implements Listener.
func (t *SessionTracker) OnAuthEvent(_ context.Context, event AuthEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.Seq != 0 && event.Seq <= t.eventSeq {
		return nil
	}
	if event.Seq != 0 {
		t.eventSeq = event.Seq
	}

	t.resolved = true
	if event.Kind == EventSignedOut || !event.HasSession() {
		t.session = nil
		return nil
	}
	t.session = event.Session
	return nil
}

// Begin records the logical position an asynchronous lookup starts from.
func (t *SessionTracker) Begin() FetchTicket {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextFetch++
	return FetchTicket{eventSeq: t.eventSeq, fetchID: t.nextFetch}
}

// Resolve applies the result of a lookup started with Begin. The result is
// dropped when an event or a later-started lookup has already been applied.
func (t *SessionTracker) Resolve(ticket FetchTicket, session *Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ticket.eventSeq != t.eventSeq || ticket.fetchID <= t.appliedFetch {
		return false
	}

	t.appliedFetch = ticket.fetchID
	t.resolved = true
	if session.Valid() {
		t.session = session
	} else {
		t.session = nil
	}
	return true
}

func (t *SessionTracker) Snapshot() TrackedSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TrackedSession{
		Loading: !t.resolved,
		Session: t.session,
	}
}

// GuardInput builds the guard input for a navigation to path.
func (s TrackedSession) GuardInput(path string, hasContext bool) GuardInput {
	in := GuardInput{
		Loading:       s.Loading,
		Session:       s.Session,
		HasContext:    hasContext,
		RequestedPath: path,
	}
	if role, ok := s.Session.Role(); ok {
		in.Role = role
	}
	return in
}

// MirrorToStore returns a listener that keeps store in step with the
// provider: sessions are saved on every event carrying one and cleared on
// sign-out.
func MirrorToStore(store *SessionStore) Listener {
	return ListenerFunc(func(_ context.Context, event AuthEvent) error {
		if event.Kind == EventSignedOut {
			return store.Clear()
		}
		if !event.HasSession() {
			return nil
		}
		return store.Save(event.Session)
	})
}
