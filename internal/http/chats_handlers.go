package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jamesbeebe/320-Team-1/internal/store"
	"github.com/jamesbeebe/320-Team-1/pkg/auth"
)

type ChatsAPI struct{ DB *store.Postgres }

type createChatReq struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	ExpiresAt time.Time `json:"expires_at"`
}

type updateChatReq struct {
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// List returns unexpired chats for a class; ?type= narrows to one chat type.
func (a *ChatsAPI) List(w http.ResponseWriter, r *http.Request) {
	classID := r.PathValue("classID")
	if classID == "" {
		http.Error(w, "class id required", http.StatusBadRequest)
		return
	}

	chats, err := a.DB.ListChatsForClass(r.Context(), classID, r.URL.Query().Get("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if chats == nil {
		chats = []store.Chat{}
	}
	writeJSON(w, chats)
}

// Create makes a new chat for a class and enrolls the caller.
func (a *ChatsAPI) Create(w http.ResponseWriter, r *http.Request) {
	classID := r.PathValue("classID")
	var req createChatReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = "general"
	}
	if req.ExpiresAt.IsZero() || req.ExpiresAt.Before(time.Now()) {
		http.Error(w, "expires_at must be in the future", http.StatusBadRequest)
		return
	}

	uid := auth.UserID(r.Context())
	c, err := a.DB.CreateChat(r.Context(), classID, req.Name, req.Type, req.ExpiresAt, uid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, c)
}

// Update renames a chat or moves its expiry.
func (a *ChatsAPI) Update(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatID")
	var req updateChatReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	c, err := a.DB.UpdateChat(r.Context(), chatID, req.Name, req.ExpiresAt)
	if errors.Is(err, store.ErrChatNotFound) {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, c)
}

// Leave removes the caller's enrollment in a chat.
func (a *ChatsAPI) Leave(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatID")
	uid := auth.UserID(r.Context())
	if err := a.DB.LeaveChat(r.Context(), chatID, uid); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
