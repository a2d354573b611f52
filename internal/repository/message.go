package repository

import (
	"context"
	"time"

	"github.com/khdrvss/co-found-sub000/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

const messageColumns = `id, sender_id, receiver_id, message, created_at, delivered, delivered_at, "read", read_at`

func scanMessage(row pgx.Row) (*model.Message, error) {
	m := &model.Message{}
	err := row.Scan(
		&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &m.CreatedAt,
		&m.Delivered, &m.DeliveredAt, &m.Read, &m.ReadAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Insert persists a new message in the initial (sent) state. created_at
// is server-assigned so per-pair ordering is decided here, not by clients.
func (r *MessageRepository) Insert(ctx context.Context, senderID, receiverID, body string) (*model.Message, error) {
	return scanMessage(r.pool.QueryRow(ctx, `
		INSERT INTO messages (sender_id, receiver_id, message)
		VALUES ($1, $2, $3)
		RETURNING `+messageColumns,
		senderID, receiverID, body))
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	return scanMessage(r.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = $1
	`, id))
}

// MarkDelivered transitions a message to delivered. Only the message's
// receiver matches the WHERE clause, and re-application is a no-op:
// delivered_at never moves once set. Returns the row and whether this
// call performed the transition.
func (r *MessageRepository) MarkDelivered(ctx context.Context, id int64, receiverID string) (*model.Message, bool, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx, `
		UPDATE messages
		SET delivered = TRUE, delivered_at = NOW()
		WHERE id = $1 AND receiver_id = $2 AND delivered = FALSE
		RETURNING `+messageColumns,
		id, receiverID))
	if err == nil {
		return m, true, nil
	}
	if err != pgx.ErrNoRows {
		return nil, false, err
	}

	// Already delivered, not ours, or no such message.
	m, err = r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return m, false, nil
}

// MarkReadUpTo bulk-transitions every unread message from partnerID to
// readerID created at or before upTo. Read implies delivered, so the same
// statement backfills the delivered flag for rows whose ack was lost.
// Returns the number of rows transitioned.
func (r *MessageRepository) MarkReadUpTo(ctx context.Context, readerID, partnerID string, upTo time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages
		SET "read" = TRUE, read_at = $3,
		    delivered = TRUE, delivered_at = COALESCE(delivered_at, $3)
		WHERE sender_id = $2 AND receiver_id = $1
		  AND created_at <= $3 AND "read" = FALSE
	`, readerID, partnerID, upTo)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListBetween returns the full history between two users, oldest first.
// Ties on created_at are broken by id so ordering is deterministic.
func (r *MessageRepository) ListBetween(ctx context.Context, userID, partnerID string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userID, partnerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest N selected descending, reverse for chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, nil
}

// Conversations computes one row per partner for userID: the most recent
// message exchanged with that partner (ties broken by id), the partner's
// directory fields, and how many of their messages are still unread.
// Ranked by recency. A user with no messages gets an empty list.
func (r *MessageRepository) Conversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		WITH last AS (
			SELECT DISTINCT ON (partner_id) *
			FROM (
				SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS partner_id,
				       `+messageColumns+`
				FROM messages
				WHERE sender_id = $1 OR receiver_id = $1
			) m
			ORDER BY partner_id, created_at DESC, id DESC
		),
		unread AS (
			SELECT sender_id AS partner_id, COUNT(*) AS unread_count
			FROM messages
			WHERE receiver_id = $1 AND "read" = FALSE
			GROUP BY sender_id
		)
		SELECT l.partner_id, u.username, u.display_name, u.avatar_url,
		       l.id, l.sender_id, l.receiver_id, l.message, l.created_at,
		       l.delivered, l.delivered_at, l."read", l.read_at,
		       COALESCE(un.unread_count, 0)
		FROM last l
		JOIN users u ON u.id = l.partner_id
		LEFT JOIN unread un ON un.partner_id = l.partner_id
		ORDER BY l.created_at DESC, l.id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convos := make([]model.Conversation, 0)
	for rows.Next() {
		var c model.Conversation
		var username string
		var avatarURL *string
		err := rows.Scan(
			&c.PartnerID, &username, &c.PartnerName, &avatarURL,
			&c.LastMessage.ID, &c.LastMessage.SenderID, &c.LastMessage.ReceiverID,
			&c.LastMessage.Body, &c.LastMessage.CreatedAt,
			&c.LastMessage.Delivered, &c.LastMessage.DeliveredAt,
			&c.LastMessage.Read, &c.LastMessage.ReadAt,
			&c.UnreadCount,
		)
		if err != nil {
			return nil, err
		}
		if c.PartnerName == "" {
			c.PartnerName = username
		}
		if avatarURL != nil {
			c.PartnerAvatar = *avatarURL
		}
		c.LastMessageAt = c.LastMessage.CreatedAt
		c.LastSenderID = c.LastMessage.SenderID
		convos = append(convos, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return convos, nil
}

func (r *MessageRepository) CountTotal(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
