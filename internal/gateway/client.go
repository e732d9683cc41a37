package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// sessionSendBuffer is the bounded depth of each session's outbound queue.
	// Fixed rather than configurable: specified for concreteness, not as an
	// operational tunable.
	sessionSendBuffer = 64

	maxMessageSize  = 8192
	writeWait       = 10 * time.Second
	identifyTimeout = 30 * time.Second
)

// connState is the three-state ConnectionLifecycle model: AwaitingAuth ->
// Active -> Closed, no further states.
type connState int32

const (
	stateAwaitingAuth connState = iota
	stateActive
	stateClosed
)

// Session is one live duplex connection. It runs readPump and writePump in
// their own goroutines and exposes Enqueue as the non-blocking SessionHandle
// the Broadcaster and SessionRegistry operate on.
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	log  zerolog.Logger

	send chan []byte

	done      chan struct{}
	closeOnce sync.Once

	state atomic.Int32

	mu       sync.RWMutex
	userID   uuid.UUID
	username string
}

func newSession(hub *Hub, conn *websocket.Conn, logger zerolog.Logger) *Session {
	s := &Session{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sessionSendBuffer),
		done: make(chan struct{}),
		log:  logger,
	}
	s.state.Store(int32(stateAwaitingAuth))
	return s
}

// UserID returns the authenticated user id. Only meaningful once Active.
func (s *Session) UserID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) setIdentity(userID uuid.UUID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.username = username
}

func (s *Session) isActive() bool {
	return connState(s.state.Load()) == stateActive
}

// Enqueue sends a pre-encoded frame to the session's write channel. This is
// the non-blocking send the Broadcaster relies on: if the channel is full the
// session is marked degraded and closed rather than blocking the caller, which
// would otherwise let one slow peer stall fan-out to everyone else.
func (s *Session) Enqueue(frame []byte) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.send <- frame:
	case <-s.done:
	default:
		s.log.Warn().Msg("session send buffer full, disconnecting")
		_ = s.tryEnqueueBackpressureError()
		s.closeWithCode(CloseBackpressure, "backpressure, disconnecting")
	}
}

// tryEnqueueBackpressureError makes a best-effort attempt to tell the client
// why it is about to be disconnected. It must not block: the buffer is
// already full, so this is allowed to silently fail.
func (s *Session) tryEnqueueBackpressureError() error {
	frame := mustFrame(TypeError, ErrorPayload{Message: "backpressure, disconnecting"})
	select {
	case s.send <- frame:
	default:
	}
	return nil
}

func (s *Session) closeDone() {
	s.closeOnce.Do(func() { close(s.done) })
}

// closeWithCode sends a close frame, stops the write pump, and tears down the
// transport. It is safe to call from any goroutine and more than once.
func (s *Session) closeWithCode(code int, reason string) {
	s.state.Store(int32(stateClosed))
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	s.closeDone()
	_ = s.conn.Close()
}

// readPump reads frames off the connection and drives the ConnectionLifecycle
// state machine: AwaitingAuth frames are limited to "identify"; once Active,
// every frame is handed to the CommandDispatcher. Exactly one goroutine per
// session runs this loop, which is what gives per-session inbound processing
// its serialization.
func (s *Session) readPump() {
	defer func() {
		s.hub.registry.Detach(s)
		s.hub.metrics.onDisconnect()
		s.closeDone()
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(identifyTimeout))

	identifyTimer := time.AfterFunc(identifyTimeout, func() {
		if connState(s.state.Load()) == stateAwaitingAuth {
			s.closeWithCode(CloseNotAuthenticated, "identify timeout")
		}
	})
	defer identifyTimer.Stop()

	heartbeatInterval := s.hub.heartbeatInterval

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			s.Enqueue(mustFrame(TypeError, ErrorPayload{Message: "malformed message"}))
			continue
		}

		switch connState(s.state.Load()) {
		case stateAwaitingAuth:
			if frame.Type != TypeIdentify {
				s.closeWithCode(CloseNotAuthenticated, "must identify first")
				return
			}
			identifyTimer.Stop()
			if ok := s.handleIdentify(frame.Payload); !ok {
				return
			}
			_ = s.conn.SetReadDeadline(time.Now().Add(heartbeatInterval + heartbeatInterval/2))

		case stateActive:
			if frame.Type == TypeHeartbeat {
				_ = s.conn.SetReadDeadline(time.Now().Add(heartbeatInterval + heartbeatInterval/2))
				s.Enqueue(mustFrame(TypeHeartbeatACK, struct{}{}))
				continue
			}
			s.hub.dispatcher.Dispatch(s, frame)

		case stateClosed:
			return
		}
	}
}

// handleIdentify validates the bearer credential and, on success, transitions
// AwaitingAuth -> Active by sending initial_state and registering the session.
// Returns false if the connection was closed as a result.
func (s *Session) handleIdentify(payload json.RawMessage) bool {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Token == "" {
		s.closeWithCode(CloseAuthFailed, "token required")
		return false
	}

	userID, username, err := s.hub.verifier.Verify(body.Token)
	if err != nil {
		s.closeWithCode(CloseAuthFailed, "authentication failed")
		return false
	}

	s.setIdentity(userID, username)
	s.state.Store(int32(stateActive))

	if err := s.hub.sendInitialState(s); err != nil {
		s.log.Error().Err(err).Msg("failed to build initial state")
		s.closeWithCode(CloseInternalError, "internal error")
		return false
	}

	s.hub.registry.Attach(userID, s)
	s.hub.metrics.onConnect()
	return true
}

// writePump drains the send channel onto the connection. Exactly one goroutine
// per session runs this loop, serializing outbound writes.
func (s *Session) writePump() {
	defer func() { _ = s.conn.Close() }()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Debug().Err(err).Msg("websocket write error")
				return
			}
		case <-s.done:
			for {
				select {
				case msg := <-s.send:
					_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}
