package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestBroadcastAlarmUpdateReachesOnlyAudience(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	registry := NewSessionRegistry()
	b := NewBroadcaster(fs, registry, nil, zerolog.Nop())

	owner := uuid.New()
	outsider := uuid.New()
	ctx := context.Background()
	page, _ := fs.CreatePage(ctx, "watchlist", owner)

	ownerSession := newTestSession(owner)
	outsiderSession := newTestSession(outsider)
	registry.Attach(owner, ownerSession)
	registry.Attach(outsider, outsiderSession)

	b.BroadcastAlarmUpdate(ctx, page.ID, "created", map[string]any{"id": uuid.New()})

	select {
	case <-ownerSession.send:
	default:
		t.Fatal("owner did not receive broadcast")
	}
	select {
	case <-outsiderSession.send:
		t.Fatal("outsider received a broadcast for a page they cannot see")
	default:
	}
}

func TestBroadcastAudienceDiffGrantAndRevoke(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	registry := NewSessionRegistry()
	b := NewBroadcaster(fs, registry, nil, zerolog.Nop())

	owner := uuid.New()
	userA := uuid.New()
	userB := uuid.New()
	ctx := context.Background()
	page, _ := fs.CreatePage(ctx, "watchlist", owner)

	sessionA := newTestSession(userA)
	sessionB := newTestSession(userB)
	registry.Attach(userA, sessionA)
	registry.Attach(userB, sessionB)

	before := map[uuid.UUID]struct{}{owner: {}, userA: {}}
	after := map[uuid.UUID]struct{}{owner: {}, userB: {}}

	b.BroadcastAudienceDiff(ctx, page.ID, before, after)

	select {
	case raw := <-sessionA.send:
		f := decodeFrame(t, raw)
		if f.Type != TypePageAccessRevoked {
			t.Fatalf("userA got %q, want page_access_revoked", f.Type)
		}
	default:
		t.Fatal("userA (removed from audience) received nothing")
	}

	select {
	case raw := <-sessionB.send:
		f := decodeFrame(t, raw)
		if f.Type != TypePageAccessGranted {
			t.Fatalf("userB got %q, want page_access_granted", f.Type)
		}
	default:
		t.Fatal("userB (added to audience) received nothing")
	}
}

func TestBroadcastAudienceDiffNoChangeIsSilent(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	registry := NewSessionRegistry()
	b := NewBroadcaster(fs, registry, nil, zerolog.Nop())

	owner := uuid.New()
	ctx := context.Background()
	page, _ := fs.CreatePage(ctx, "watchlist", owner)
	session := newTestSession(owner)
	registry.Attach(owner, session)

	same := map[uuid.UUID]struct{}{owner: {}}
	b.BroadcastAudienceDiff(ctx, page.ID, same, same)

	select {
	case <-session.send:
		t.Fatal("no audience change should not produce a notification")
	default:
	}
}

func decodeFrame(t *testing.T, raw []byte) Frame {
	t.Helper()
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return f
}
