package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/jamesbeebe/320-Team-1/internal/app"
	"github.com/jamesbeebe/320-Team-1/internal/store"
	"github.com/jamesbeebe/320-Team-1/pkg/auth"
)

type insertCall struct {
	ChatID  string
	UserID  string
	Content string
	TS      time.Time
}

// fakeStore satisfies ChatStore without a database.
type fakeStore struct {
	mu          sync.Mutex
	existing    map[string]bool
	existsErr   error
	insertErr   error
	insertPanic bool
	nextID      int64
	inserts     []insertCall
}

func newFakeStore(rooms ...string) *fakeStore {
	f := &fakeStore{existing: map[string]bool{}, nextID: 42}
	for _, r := range rooms {
		f.existing[r] = true
	}
	return f
}

func (f *fakeStore) ChatExists(_ context.Context, chatID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.existing[chatID], nil
}

func (f *fakeStore) InsertMessage(_ context.Context, chatID, userID, content string, ts time.Time) (store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertPanic {
		panic("store blew up")
	}
	if f.insertErr != nil {
		return store.Message{}, f.insertErr
	}
	f.inserts = append(f.inserts, insertCall{ChatID: chatID, UserID: userID, Content: content, TS: ts})
	m := store.Message{
		ID:         f.nextID,
		ChatID:     chatID,
		UserID:     userID,
		Timestamp:  ts,
		Content:    content,
		SenderName: "Alice",
	}
	f.nextID++
	return m, nil
}

func (f *fakeStore) calls() []insertCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]insertCall(nil), f.inserts...)
}

const testSecret = "test-secret"

func newTestHub(t *testing.T, db ChatStore) (*Hub, string) {
	t.Helper()
	cfg := app.Config{
		WSSendBuffer:   16,
		PersistTimeout: 2 * time.Second,
		WriteTimeout:   2 * time.Second,
	}
	hub := NewHub(slog.Default(), db, nil, auth.New(testSecret), cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", hub.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func signToken(t *testing.T, uid string) string {
	t.Helper()
	tok, err := auth.New(testSecret).Sign(uid, time.Hour)
	require.NoError(t, err)
	return tok
}

func dial(t *testing.T, ctx context.Context, base, chatID, uid string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.Dial(ctx, base+"/ws/"+chatID+"?token="+signToken(t, uid), nil)
	require.NoError(t, err)
	return c
}

// waitForSize polls the registry until the room has n members.
func waitForSize(t *testing.T, h *Hub, chatID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := h.registry.Size(chatID); got == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := h.registry.Size(chatID)
	t.Fatalf("room %s never reached %d members (have %d)", chatID, n, got)
}

func TestServeWS_RejectsMissingToken(t *testing.T) {
	_, base := newTestHub(t, newFakeStore("room-1"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := websocket.Dial(ctx, base+"/ws/room-1", nil)
	require.Error(t, err, "handshake must fail without a token")
}

func TestServeWS_RejectsMissingChatID(t *testing.T) {
	hub, base := newTestHub(t, newFakeStore("room-1"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, base+"/ws/?token="+signToken(t, "u1"), nil)
	require.NoError(t, err)
	defer c.CloseNow()

	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	assert.Equal(t, 0, hub.registry.Rooms())
}

func TestServeWS_RejectsUnknownRoom(t *testing.T) {
	hub, base := newTestHub(t, newFakeStore()) // no rooms exist
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c := dial(t, ctx, base, "does-not-exist", "u1")
	defer c.CloseNow()

	_, _, err := c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))

	_, tracked := hub.registry.Size("does-not-exist")
	assert.False(t, tracked, "rejected connection must never enter the registry")
}

func TestServeWS_FailsClosedOnLookupError(t *testing.T) {
	db := newFakeStore("room-1")
	db.existsErr = errors.New("db down")
	_, base := newTestHub(t, db)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c := dial(t, ctx, base, "room-1", "u1")
	defer c.CloseNow()

	_, _, err := c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusInternalError, websocket.CloseStatus(err))
}

func TestServeWS_SelfDelivery(t *testing.T) {
	db := newFakeStore("room-1")
	hub, base := newTestHub(t, db)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dial(t, ctx, base, "room-1", "u1")
	defer c.Close(websocket.StatusNormalClosure, "done")
	waitForSize(t, hub, "room-1", 1)

	frame := `{"user_id":"spoofed","timestamp":"2024-01-01T00:00:00Z","content":"hello"}`
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(frame)))

	_, data, err := c.Read(ctx)
	require.NoError(t, err, "sender must receive its own message back")

	var got store.Message
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, int64(42), got.ID, "broadcast carries the server-assigned ID")
	assert.Equal(t, "room-1", got.ChatID)
	assert.Equal(t, "u1", got.UserID, "sender is the token subject, not the frame field")
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, "Alice", got.SenderName)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got.Timestamp.UTC())

	calls := db.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "room-1", calls[0].ChatID)
	assert.Equal(t, "u1", calls[0].UserID)
	assert.Equal(t, "hello", calls[0].Content)
}

func TestServeWS_FanOutAndRoomIsolation(t *testing.T) {
	db := newFakeStore("room-1", "room-2")
	hub, base := newTestHub(t, db)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := dial(t, ctx, base, "room-1", "ua")
	defer a.CloseNow()
	b := dial(t, ctx, base, "room-1", "ub")
	defer b.CloseNow()
	c := dial(t, ctx, base, "room-2", "uc")
	defer c.CloseNow()
	waitForSize(t, hub, "room-1", 2)
	waitForSize(t, hub, "room-2", 1)

	frame := `{"user_id":"ua","timestamp":"2024-01-01T00:00:00Z","content":"hi room"}`
	require.NoError(t, a.Write(ctx, websocket.MessageText, []byte(frame)))

	// B gets exactly one copy
	_, data, err := b.Read(ctx)
	require.NoError(t, err)
	var got store.Message
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "hi room", got.Content)

	shortCtx, shortCancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer shortCancel()
	_, _, err = b.Read(shortCtx)
	assert.Error(t, err, "no second copy for B")

	// C, in a different room, sees nothing
	cCtx, cCancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cCancel()
	_, _, err = c.Read(cCtx)
	assert.Error(t, err, "other rooms must not receive the message")
}

func TestServeWS_BadFrameIsSkipped(t *testing.T) {
	db := newFakeStore("room-1")
	hub, base := newTestHub(t, db)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dial(t, ctx, base, "room-1", "u1")
	defer c.CloseNow()
	waitForSize(t, hub, "room-1", 1)

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("not json at all")))
	good := `{"user_id":"u1","timestamp":"2024-01-01T00:00:00Z","content":"still here"}`
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(good)))

	_, data, err := c.Read(ctx)
	require.NoError(t, err, "session must survive a malformed frame")
	var got store.Message
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "still here", got.Content)

	require.Len(t, db.calls(), 1, "bad frame is never persisted")
}

func TestServeWS_PersistFailureClosesSession(t *testing.T) {
	db := newFakeStore("room-1")
	db.insertErr = errors.New("insert failed")
	hub, base := newTestHub(t, db)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dial(t, ctx, base, "room-1", "u1")
	defer c.CloseNow()
	waitForSize(t, hub, "room-1", 1)

	frame := `{"user_id":"u1","timestamp":"2024-01-01T00:00:00Z","content":"doomed"}`
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(frame)))

	_, _, err := c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusInternalError, websocket.CloseStatus(err))

	// Cleanup still runs: the room empties out
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, tracked := hub.registry.Size("room-1"); !tracked {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("room was not cleaned up after fatal persist error")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// A panic inside the message pipeline must close only that connection and
// still remove the member from the room; a leaked entry would make every
// later broadcast target a dead session.
func TestServeWS_PanicCleansRegistry(t *testing.T) {
	db := newFakeStore("room-1")
	db.insertPanic = true
	hub, base := newTestHub(t, db)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dial(t, ctx, base, "room-1", "u1")
	defer c.CloseNow()
	waitForSize(t, hub, "room-1", 1)

	frame := `{"user_id":"u1","timestamp":"2024-01-01T00:00:00Z","content":"boom"}`
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(frame)))

	_, _, err := c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusInternalError, websocket.CloseStatus(err))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, tracked := hub.registry.Size("room-1"); !tracked {
			break
		}
		if time.Now().After(deadline) {
			size, _ := hub.registry.Size("room-1")
			t.Fatalf("registry leaked a dead session after a pipeline panic: size=%d", size)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServeWS_DisconnectCleansRegistry(t *testing.T) {
	db := newFakeStore("room-1")
	hub, base := newTestHub(t, db)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dial(t, ctx, base, "room-1", "u1")
	waitForSize(t, hub, "room-1", 1)

	require.NoError(t, c.Close(websocket.StatusNormalClosure, "bye"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, tracked := hub.registry.Size("room-1"); !tracked {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("registry entry leaked after client disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
