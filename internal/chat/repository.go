package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// Repository is the PostgreSQL Store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const conversationColumns = `c.id, c.type, c.name, c.latest_message_id, c.created_at, c.updated_at`

func (r *Repository) FindPrivateChat(ctx context.Context, a, b int) (*Conversation, error) {
	var id int
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE private_key = $1`, privateKey(a, b)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.GetConversation(ctx, id)
}

func (r *Repository) CreateConversation(ctx context.Context, nc NewConversation) (*Conversation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var key sql.NullString
	if nc.Type == TypePrivate {
		if len(nc.Participants) != 2 {
			return nil, fmt.Errorf("%w: private chat needs two participants", ErrInvalidRequest)
		}
		key = sql.NullString{String: privateKey(nc.Participants[0], nc.Participants[1]), Valid: true}
	}

	// A concurrent create for the same pair loses the race on the unique
	// private_key and falls through to reading the winner's row.
	var id int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO conversations (type, name, private_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (private_key) DO NOTHING
		RETURNING id`, string(nc.Type), nc.Name, key).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM conversations WHERE private_key = $1`, key).Scan(&id); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		for _, userID := range nc.Participants {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO participants (conversation_id, user_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, id, userID); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.GetConversation(ctx, id)
}

func (r *Repository) GetConversation(ctx context.Context, id int) (*Conversation, error) {
	c := &Conversation{}
	var latest sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1`, id).
		Scan(&c.ID, &c.Type, &c.Name, &latest, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if latest.Valid {
		c.LatestMessageID = lo.ToPtr(int(latest.Int64))
	}

	if c.Participants, err = r.participants(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repository) AddParticipant(ctx context.Context, conversationID, userID int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO participants (conversation_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, conversationID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) AppendMessage(ctx context.Context, conversationID, senderID int, content string) (*Message, error) {
	msg := &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`, conversationID, senderID, content).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *Repository) SetLatestMessage(ctx context.Context, conversationID, messageID int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET latest_message_id = $2, updated_at = NOW()
		WHERE id = $1`, conversationID, messageID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListMessages(ctx context.Context, conversationID int) ([]Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, u.username, m.content, m.created_at
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.conversation_id = $1
		ORDER BY m.id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *Repository) ListConversationsForUser(ctx context.Context, userID int) ([]Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `,
		       m.sender_id, m.content, m.created_at
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id AND p.user_id = $1
		LEFT JOIN messages m ON m.id = c.latest_message_id
		ORDER BY c.updated_at DESC, c.id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := []Conversation{}
	for rows.Next() {
		var (
			c        Conversation
			latest   sql.NullInt64
			senderID sql.NullInt64
			content  sql.NullString
			sentAt   sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Type, &c.Name, &latest, &c.CreatedAt, &c.UpdatedAt,
			&senderID, &content, &sentAt); err != nil {
			return nil, err
		}
		if latest.Valid {
			c.LatestMessageID = lo.ToPtr(int(latest.Int64))
			if senderID.Valid {
				c.LatestMessage = &Message{
					ID:             int(latest.Int64),
					ConversationID: c.ID,
					SenderID:       int(senderID.Int64),
					Content:        content.String,
					CreatedAt:      sentAt.Time,
				}
			}
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range conversations {
		if conversations[i].Participants, err = r.participants(ctx, conversations[i].ID); err != nil {
			return nil, err
		}
	}
	return conversations, nil
}

func (r *Repository) participants(ctx context.Context, conversationID int) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM participants
		WHERE conversation_id = $1
		ORDER BY joined_at, user_id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ Store = (*Repository)(nil)
