package gateway

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestSessionEnqueueDeliversToSendChannel(t *testing.T) {
	t.Parallel()
	s := newSession(nil, nil, zerolog.Nop())
	s.Enqueue([]byte("frame-1"))

	select {
	case got := <-s.send:
		if string(got) != "frame-1" {
			t.Fatalf("got %q, want frame-1", got)
		}
	default:
		t.Fatal("Enqueue did not deliver to send channel")
	}
}

func TestSessionEnqueueAfterCloseIsNoop(t *testing.T) {
	t.Parallel()
	s := newSession(nil, nil, zerolog.Nop())
	s.closeDone()

	s.Enqueue([]byte("should not arrive"))

	select {
	case got := <-s.send:
		t.Fatalf("Enqueue delivered %q after close", got)
	default:
	}
}

func TestSessionStateTransitions(t *testing.T) {
	t.Parallel()
	s := newSession(nil, nil, zerolog.Nop())
	if s.isActive() {
		t.Fatal("new session should start AwaitingAuth, not Active")
	}

	s.setIdentity(uuid.New(), "alice")
	s.state.Store(int32(stateActive))
	if !s.isActive() {
		t.Fatal("session should be Active after identify")
	}

	s.state.Store(int32(stateClosed))
	if s.isActive() {
		t.Fatal("session should not report Active once Closed")
	}
}

func TestSessionCloseDoneIsIdempotent(t *testing.T) {
	t.Parallel()
	s := newSession(nil, nil, zerolog.Nop())
	s.closeDone()
	s.closeDone() // must not panic on double-close
}
