package store

import (
	"context"
	"time"
)

// InsertMessage durably stores one chat message and returns the canonical
// record with the server-assigned ID and the sender's display name. Nothing
// is broadcast until this returns successfully.
func (p *Postgres) InsertMessage(ctx context.Context, chatID, userID, content string, ts time.Time) (Message, error) {
	row := p.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO messages (chat_id, user_id, timestamp, content)
			VALUES ($1, $2, $3, $4)
			RETURNING id, chat_id, user_id, timestamp, content
		)
		SELECT ins.id, ins.chat_id, ins.user_id, ins.timestamp, ins.content,
		       COALESCE(u.name, '')
		FROM ins
		LEFT JOIN users u ON u.id = ins.user_id
	`, chatID, userID, ts, content)

	var m Message
	if err := row.Scan(&m.ID, &m.ChatID, &m.UserID, &m.Timestamp, &m.Content, &m.SenderName); err != nil {
		return Message{}, err
	}
	return m, nil
}

// ListMessages returns a chat's messages inside [start, end], oldest first,
// each joined with the sender's display name.
func (p *Postgres) ListMessages(ctx context.Context, chatID string, start, end time.Time) ([]Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT m.id, m.chat_id, m.user_id, m.timestamp, m.content,
		       COALESCE(u.name, '')
		FROM messages m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.chat_id = $1 AND m.timestamp >= $2 AND m.timestamp <= $3
		ORDER BY m.timestamp ASC
	`, chatID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.UserID, &m.Timestamp, &m.Content, &m.SenderName); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
