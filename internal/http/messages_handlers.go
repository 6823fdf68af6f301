package httpx

import (
	"net/http"
	"time"

	"github.com/jamesbeebe/320-Team-1/internal/store"
)

type MessagesAPI struct {
	DB     *store.Postgres
	Cache  *store.MessageCache // may be nil
	Window time.Duration       // default history window
}

// History returns a chat's messages in a time window, oldest first.
// Requests for the default window (no start/end params) are served through
// the Redis cache; explicit ranges always go to Postgres.
func (a *MessagesAPI) History(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatID")
	if chatID == "" {
		http.Error(w, "chat id required", http.StatusBadRequest)
		return
	}

	now := time.Now()
	start, end := now.Add(-a.Window), now
	defaultWindow := true

	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "bad start", http.StatusBadRequest)
			return
		}
		start, defaultWindow = t, false
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "bad end", http.StatusBadRequest)
			return
		}
		end, defaultWindow = t, false
	}

	if defaultWindow && a.Cache != nil {
		if msgs, ok := a.Cache.GetRecent(r.Context(), chatID); ok {
			writeJSON(w, msgs)
			return
		}
	}

	msgs, err := a.DB.ListMessages(r.Context(), chatID, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}

	if defaultWindow && a.Cache != nil {
		_ = a.Cache.SetRecent(r.Context(), chatID, msgs)
	}
	writeJSON(w, msgs)
}
