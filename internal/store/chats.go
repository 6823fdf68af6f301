package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrChatNotFound = errors.New("chat not found")

// ChatExists reports whether a chat exists and has not expired. This is the
// admission check for the websocket path, so expired rooms reject new
// connections the same way missing ones do. IDs that are not even
// UUID-shaped are not-found rather than a query error, since the value
// comes straight off the URL.
func (p *Postgres) ChatExists(ctx context.Context, chatID string) (bool, error) {
	if uuid.Validate(chatID) != nil {
		return false, nil
	}
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chats WHERE id = $1 AND expires_at >= NOW()
		)
	`, chatID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// ListChatsForClass returns unexpired chats for a class, soonest expiry
// first. An empty typ matches all chat types.
func (p *Postgres) ListChatsForClass(ctx context.Context, classID, typ string) ([]Chat, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, class_id, name, type, expires_at, created_at
		FROM chats
		WHERE class_id = $1
		  AND ($2 = '' OR type = $2)
		  AND expires_at >= NOW()
		ORDER BY expires_at ASC
	`, classID, typ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.ClassID, &c.Name, &c.Type, &c.ExpiresAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateChat inserts a chat and enrolls its creator in one transaction.
func (p *Postgres) CreateChat(ctx context.Context, classID, name, typ string, expiresAt time.Time, userID string) (Chat, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return Chat{}, err
	}
	defer tx.Rollback(ctx)

	var c Chat
	err = tx.QueryRow(ctx, `
		INSERT INTO chats (class_id, name, type, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, class_id, name, type, expires_at, created_at
	`, classID, name, typ, expiresAt).Scan(&c.ID, &c.ClassID, &c.Name, &c.Type, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return Chat{}, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_chats (chat_id, user_id) VALUES ($1, $2)
	`, c.ID, userID); err != nil {
		return Chat{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Chat{}, err
	}
	p.log.Info("chat.created", "id", c.ID, "class", classID, "type", c.Type)
	return c, nil
}

// UpdateChat renames a chat and/or moves its expiry window.
func (p *Postgres) UpdateChat(ctx context.Context, chatID, name string, expiresAt time.Time) (Chat, error) {
	var c Chat
	err := p.pool.QueryRow(ctx, `
		UPDATE chats
		SET name = $2, expires_at = $3
		WHERE id = $1
		RETURNING id, class_id, name, type, expires_at, created_at
	`, chatID, name, expiresAt).Scan(&c.ID, &c.ClassID, &c.Name, &c.Type, &c.ExpiresAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Chat{}, ErrChatNotFound
	}
	if err != nil {
		return Chat{}, err
	}
	return c, nil
}

// LeaveChat drops the caller's enrollment row. Leaving a chat you are not
// enrolled in is a no-op.
func (p *Postgres) LeaveChat(ctx context.Context, chatID, userID string) error {
	_, err := p.pool.Exec(ctx, `
		DELETE FROM user_chats WHERE chat_id = $1 AND user_id = $2
	`, chatID, userID)
	return err
}
