package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/jamesbeebe/320-Team-1/internal/app"
	"github.com/jamesbeebe/320-Team-1/internal/store"
	"github.com/jamesbeebe/320-Team-1/pkg/auth"
	"github.com/jamesbeebe/320-Team-1/pkg/metrics"
)

// ChatStore is the narrow persistence surface the chat core depends on.
type ChatStore interface {
	ChatExists(ctx context.Context, chatID string) (bool, error)
	InsertMessage(ctx context.Context, chatID, userID, content string, ts time.Time) (store.Message, error)
}

// HistoryCache invalidates cached REST history after an insert.
type HistoryCache interface {
	Invalidate(ctx context.Context, chatID string) error
}

// Hub admits websocket connections into chat rooms and runs each
// connection's read loop: decode, persist, then fan out the canonical
// record to every member of the room, sender included. Broadcasting runs
// inline in the sender's goroutine; per-member delivery failures are
// isolated.
type Hub struct {
	log      *slog.Logger
	db       ChatStore
	cache    HistoryCache // may be nil
	tokens   *auth.JWT
	registry *Registry

	sendBuf        int
	persistTimeout time.Duration
	writeTimeout   time.Duration
}

// NewHub sets up the hub with its persistence surface, cache, and verifier.
func NewHub(logger *slog.Logger, db ChatStore, cache HistoryCache, tokens *auth.JWT, cfg app.Config) *Hub {
	return &Hub{
		log:            logger,
		db:             db,
		cache:          cache,
		tokens:         tokens,
		registry:       NewRegistry(),
		sendBuf:        cfg.WSSendBuffer,
		persistTimeout: cfg.PersistTimeout,
		writeTimeout:   cfg.WriteTimeout,
	}
}

// accept upgrades HTTP to websocket (allow all origins; CORS is enforced on
// the REST surface, and the socket is gated by the token check instead)
func accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
}

// chatIDFromPath pulls the chat ID from the final path segment of the
// upgrade request ("/ws/<chatID>").
func chatIDFromPath(p string) string {
	id := strings.Trim(strings.TrimPrefix(p, "/ws"), "/")
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		id = id[i+1:]
	}
	return id
}

// ServeWS handles one chat connection for its entire lifetime.
//
// Admission order: verify the token (plain 401, pre-upgrade), upgrade, then
// check the chat ID and its existence. Identifier/lookup failures close the
// socket with a policy or internal-error code and never touch the registry.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := h.tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := accept(w, r)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	// A panic before the session joins must only cost this connection.
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("ws.panic", "user", userID, "panic", rec)
			_ = conn.Close(websocket.StatusInternalError, "internal error")
		}
	}()

	chatID := chatIDFromPath(r.URL.Path)
	if chatID == "" {
		_ = conn.Close(websocket.StatusPolicyViolation, "chat id required")
		return
	}

	actx, cancel := context.WithTimeout(ctx, h.persistTimeout)
	exists, err := h.db.ChatExists(actx, chatID)
	cancel()
	if err != nil {
		h.log.Error("ws.admission", "chat", chatID, "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	if !exists {
		_ = conn.Close(websocket.StatusPolicyViolation, "chat not found")
		return
	}

	sess := newSession(conn, chatID, userID, h.sendBuf, h.writeTimeout, h.log)
	h.registry.Join(chatID, sess)
	sess.markJoined()
	metrics.ActiveConnections.Inc()
	metrics.ConnectionsTotal.Inc()
	metrics.ActiveRooms.Set(float64(h.registry.Rooms()))
	h.log.Info("ws.join", "chat", chatID, "user", userID, "session", sess.id)

	// Exactly one leave per session, deferred so a panic anywhere in the
	// pipeline still removes the member and settles the gauges.
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("ws.panic", "chat", chatID, "user", userID, "panic", rec)
			sess.close(websocket.StatusInternalError, "internal error")
		}
		h.registry.Leave(chatID, sess)
		sess.close(websocket.StatusNormalClosure, "bye")
		metrics.ActiveConnections.Dec()
		metrics.ActiveRooms.Set(float64(h.registry.Rooms()))
		h.log.Info("ws.leave", "chat", chatID, "user", userID, "session", sess.id)
	}()

	go sess.writeLoop(ctx)

	h.readLoop(ctx, sess)
}

// readLoop pumps inbound frames through the pipeline until the transport
// closes or a persistence failure makes the session fatal.
func (h *Hub) readLoop(ctx context.Context, sess *Session) {
	for {
		data, err := sess.read(ctx)
		if err != nil {
			return
		}
		metrics.MessagesReceived.Inc()

		if err := h.handleFrame(ctx, sess, data); err != nil {
			if errors.Is(err, errBadFrame) {
				// One malformed frame does not cost the connection.
				h.log.Warn("msg.reject", "chat", sess.chatID, "user", sess.userID, "err", err)
				continue
			}
			// Persistence failed: close so the client cannot mistake the
			// message for delivered.
			h.log.Error("msg.persist", "chat", sess.chatID, "user", sess.userID, "err", err)
			sess.close(websocket.StatusInternalError, "message not saved")
			return
		}
	}
}

// handleFrame is the message pipeline: validate, persist under a bounded
// timeout, then broadcast the canonical stored record. The insert must
// succeed before anything is written to any member.
func (h *Hub) handleFrame(ctx context.Context, sess *Session, data []byte) error {
	in, ts, err := parseInbound(data)
	if err != nil {
		return err
	}

	pctx, cancel := context.WithTimeout(ctx, h.persistTimeout)
	defer cancel()

	// Sender identity comes from the admission token, never the frame.
	msg, err := h.db.InsertMessage(pctx, sess.chatID, sess.userID, in.Content, ts)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.broadcast(sess.chatID, payload)

	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, sess.chatID); err != nil {
			h.log.Warn("cache.invalidate", "chat", sess.chatID, "err", err)
		}
	}
	return nil
}

// broadcast fans the payload out to every current member of the chat,
// including the sender. An enqueue failure for one member (closing socket
// or full queue) is logged and skipped.
func (h *Hub) broadcast(chatID string, payload []byte) {
	for _, member := range h.registry.Snapshot(chatID) {
		if err := member.Send(payload); err != nil {
			metrics.BroadcastDrops.Inc()
			h.log.Warn("ws.broadcast.drop", "chat", chatID, "session", member.id, "err", err)
			continue
		}
		metrics.MessagesSent.Inc()
	}
}

// CloseAll tells every live session to go away (server shutdown). Registry
// cleanup happens as each connection's handler unwinds.
func (h *Hub) CloseAll(reason string) {
	for _, s := range h.registry.All() {
		s.close(websocket.StatusGoingAway, reason)
	}
}
