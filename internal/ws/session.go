package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

const (
	stateConnecting int32 = iota
	stateJoined
	stateClosed
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSlowConsumer  = errors.New("outbound queue full")
)

// Session wraps one live websocket connection. Lifecycle is
// Connecting -> Joined -> Closed; Closed is terminal and a session is never
// reused. All socket writes go through the out queue + writeLoop, so only
// one goroutine ever writes to the underlying connection.
type Session struct {
	id     string
	chatID string
	userID string

	ws           *websocket.Conn
	out          chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	state        atomic.Int32
	writeTimeout time.Duration
	log          *slog.Logger
}

func newSession(conn *websocket.Conn, chatID, userID string, buf int, writeTimeout time.Duration, log *slog.Logger) *Session {
	s := &Session{
		id:           uuid.NewString(),
		chatID:       chatID,
		userID:       userID,
		ws:           conn,
		out:          make(chan []byte, buf),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		log:          log,
	}
	s.state.Store(stateConnecting)
	return s
}

func (s *Session) markJoined() { s.state.CompareAndSwap(stateConnecting, stateJoined) }

// Send enqueues one outbound frame without blocking. A full queue means the
// peer is not draining; the frame is dropped for this member only.
func (s *Session) Send(b []byte) error {
	if s.state.Load() == stateClosed {
		return ErrSessionClosed
	}
	select {
	case s.out <- b:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrSlowConsumer
	}
}

// read blocks until the next text/binary frame arrives. Control frames are
// handled by the library; any error means the transport is gone.
func (s *Session) read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := s.ws.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return data, nil
		}
	}
}

// writeLoop drains the outbound queue and sends periodic pings. Each write
// carries its own deadline so one stalled peer cannot wedge the goroutine.
func (s *Session) writeLoop(ctx context.Context) {
	t := time.NewTicker(20 * time.Second)
	defer t.Stop()

	for {
		select {
		case b := <-s.out:
			wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
			err := s.ws.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				s.log.Debug("ws.write", "session", s.id, "err", err)
				return
			}
		case <-t.C:
			wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
			err := s.ws.Ping(wctx)
			cancel()
			if err != nil {
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// close transitions the session to Closed exactly once and sends the given
// close frame. Safe to call from racing paths; later calls are no-ops.
func (s *Session) close(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		s.state.Store(stateClosed)
		close(s.done)
		_ = s.ws.Close(code, reason)
	})
}
