package gateway

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestSession(userID uuid.UUID) *Session {
	s := newSession(nil, nil, zerolog.Nop())
	s.setIdentity(userID, "test")
	s.state.Store(int32(stateActive))
	return s
}

func TestRegistryAttachDetach(t *testing.T) {
	t.Parallel()
	r := NewSessionRegistry()
	userID := uuid.New()
	s := newTestSession(userID)

	r.Attach(userID, s)
	if got := r.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1", got)
	}
	if got := r.SessionsForUser(userID); len(got) != 1 || got[0] != s {
		t.Fatalf("SessionsForUser = %v, want [%v]", got, s)
	}

	r.Detach(s)
	if got := r.Count(); got != 0 {
		t.Fatalf("Count() after detach = %d, want 0", got)
	}
	// Detach is safe to call twice.
	r.Detach(s)
}

func TestRegistryMultipleSessionsPerUser(t *testing.T) {
	t.Parallel()
	r := NewSessionRegistry()
	userID := uuid.New()
	a := newTestSession(userID)
	b := newTestSession(userID)

	r.Attach(userID, a)
	r.Attach(userID, b)

	sessions := r.SessionsForUser(userID)
	if len(sessions) != 2 {
		t.Fatalf("SessionsForUser = %d sessions, want 2", len(sessions))
	}

	r.Detach(a)
	if got := r.SessionsForUser(userID); len(got) != 1 || got[0] != b {
		t.Fatalf("SessionsForUser after detaching a = %v, want [%v]", got, b)
	}
}

func TestSessionsForUnionsAcrossUsers(t *testing.T) {
	t.Parallel()
	r := NewSessionRegistry()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	s1, s2, s3 := newTestSession(u1), newTestSession(u2), newTestSession(u3)

	r.Attach(u1, s1)
	r.Attach(u2, s2)
	r.Attach(u3, s3)

	got := r.SessionsFor(map[uuid.UUID]struct{}{u1: {}, u3: {}})
	if len(got) != 2 {
		t.Fatalf("SessionsFor = %d sessions, want 2", len(got))
	}
	for _, s := range got {
		if s == s2 {
			t.Fatalf("SessionsFor returned session for excluded user u2")
		}
	}
}
