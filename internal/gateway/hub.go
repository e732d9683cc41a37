package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jmougeot/alarm-server/internal/authzcache"
	"github.com/jmougeot/alarm-server/internal/store"
)

// CredentialVerifier validates the bearer token a session presents on
// identify and resolves it to a user identity. Implemented by the auth
// package against access tokens; kept as an interface here so the gateway
// never imports auth directly.
type CredentialVerifier interface {
	Verify(token string) (userID uuid.UUID, username string, err error)
}

// Hub is the process-wide owner of every live session, plus the components
// that turn inbound frames into Store mutations (the Dispatcher) and Store
// mutations into outbound frames (the Broadcaster). One Hub per process;
// ServeConn is called once per accepted WebSocket upgrade.
type Hub struct {
	store       store.Store
	registry    *SessionRegistry
	dispatcher  *Dispatcher
	broadcaster *Broadcaster
	verifier    CredentialVerifier
	metrics     *metrics

	heartbeatInterval time.Duration
	log               zerolog.Logger
}

// NewHub wires the registry, dispatcher and broadcaster together. publisher
// may be nil for a single-process deployment; reg may be nil to skip metrics
// registration (e.g. in tests). verdicts may be nil, in which case
// share_page/unshare_page never invalidate a cache that was never populated.
func NewHub(st store.Store, verifier CredentialVerifier, publisher Publisher, verdicts *authzcache.Cache, heartbeatInterval time.Duration, reg prometheus.Registerer, logger zerolog.Logger) *Hub {
	registry := NewSessionRegistry()
	broadcaster := NewBroadcaster(st, registry, publisher, logger)
	dispatcher := NewDispatcher(st, broadcaster, verdicts, logger)

	return &Hub{
		store:             st,
		registry:          registry,
		dispatcher:        dispatcher,
		broadcaster:       broadcaster,
		verifier:          verifier,
		metrics:           newMetrics(reg),
		heartbeatInterval: heartbeatInterval,
		log:               logger.With().Str("component", "hub").Logger(),
	}
}

// ServeConn takes ownership of an upgraded WebSocket connection: it sends the
// hello frame, starts the write pump, and runs the read pump on the calling
// goroutine until the connection closes.
func (h *Hub) ServeConn(conn *websocket.Conn) {
	session := newSession(h, conn, h.log)
	session.Enqueue(mustFrame(TypeHello, HelloPayload{
		HeartbeatIntervalMS: int(h.heartbeatInterval / time.Millisecond),
	}))

	go session.writePump()
	session.readPump()
}

// Count reports the number of currently-connected sessions.
func (h *Hub) Count() int {
	return h.registry.Count()
}

// Broadcaster exposes the Hub's Broadcaster so REST handlers whose mutations
// bypass the dispatcher (group membership, page permissions) can still notify
// connected sessions of the resulting audience change.
func (h *Hub) Broadcaster() *Broadcaster {
	return h.broadcaster
}

// RunSubscriber blocks delivering cross-process broadcasts to this process's
// local sessions until ctx is cancelled. Every remote event is re-resolved
// against the local Store's current audience rather than trusting the
// publishing process's — consistent with the rest of the gateway's
// no-cached-permissions rule. Returns nil at once if sub is nil.
func (h *Hub) RunSubscriber(ctx context.Context, sub *RedisPublisher) error {
	if sub == nil {
		return nil
	}
	return sub.Subscribe(ctx, func(pageID uuid.UUID, _ string, frame []byte) {
		audience, err := h.store.UsersWithViewAccess(ctx, pageID)
		if err != nil {
			h.log.Error().Err(err).Str("page_id", pageID.String()).Msg("failed to resolve audience for remote broadcast")
			return
		}
		for _, session := range h.registry.SessionsFor(audience) {
			session.Enqueue(frame)
		}
	})
}

// sendInitialState builds and delivers the one-time snapshot a session
// receives immediately after identification: the caller's visible pages and
// every alarm on those pages. Called before the session is registered, so no
// alarm_update for any of these pages can race ahead of it.
func (h *Hub) sendInitialState(s *Session) error {
	ctx := context.Background()
	userID := s.UserID()

	pages, err := h.store.ListPagesVisibleTo(ctx, userID)
	if err != nil {
		return fmt.Errorf("list visible pages: %w", err)
	}

	pageIDs := make([]uuid.UUID, 0, len(pages))
	pageData := make([]any, 0, len(pages))
	for _, vp := range pages {
		pageIDs = append(pageIDs, vp.Page.ID)
		pageData = append(pageData, map[string]any{
			"id":         vp.Page.ID,
			"name":       vp.Page.Name,
			"owner_id":   vp.Page.OwnerID,
			"created_at": vp.Page.CreatedAt,
			"is_owner":   vp.IsOwner,
			"can_edit":   vp.CanEdit,
		})
	}

	alarms, err := h.store.ListAlarmsInPages(ctx, pageIDs)
	if err != nil {
		return fmt.Errorf("list alarms in pages: %w", err)
	}
	alarmData := make([]any, 0, len(alarms))
	for _, a := range alarms {
		alarmData = append(alarmData, alarmToMap(a))
	}

	frame, err := newFrame(TypeInitialState, InitialStatePayload{
		User: map[string]any{
			"id":       userID,
			"username": s.username,
		},
		Pages:  pageData,
		Alarms: alarmData,
	})
	if err != nil {
		return fmt.Errorf("encode initial state: %w", err)
	}

	s.Enqueue(frame)
	return nil
}
