package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Odillon241/Chronodil-sub001/internal/chat"
	"github.com/Odillon241/Chronodil-sub001/internal/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	avatar     TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversation_members (
	conversation_id TEXT NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
	user_id         TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	joined_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (conversation_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_conversation_members_user ON conversation_members (user_id);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
	sender_id       TEXT NOT NULL REFERENCES users (id),
	content         TEXT NOT NULL,
	attachments     JSONB,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at);
`

type PersistenceEngine struct {
	pool *pgxpool.Pool
}

func Connect(ctx context.Context, databaseURL string) (*PersistenceEngine, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return NewPersistenceEngine(pool), nil
}

func NewPersistenceEngine(pool *pgxpool.Pool) *PersistenceEngine {
	return &PersistenceEngine{pool}
}

func (e *PersistenceEngine) Setup(ctx context.Context) error {
	_, err := e.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("create postgres schema: %w", err)
	}

	return nil
}

func (e *PersistenceEngine) Close(ctx context.Context) error {
	e.pool.Close()

	return nil
}

func (e *PersistenceEngine) FindUser(ctx context.Context, userId string) (chat.User, error) {
	return findUser(ctx, e.pool, userId)
}

func (e *PersistenceEngine) IsMember(ctx context.Context, userId string, conversationId string) (bool, error) {
	var isMember bool

	err := e.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversation_members WHERE conversation_id = $1 AND user_id = $2)`,
		conversationId, userId,
	).Scan(&isMember)
	if err != nil {
		return false, fmt.Errorf("check conversation membership: %w", err)
	}

	return isMember, nil
}

func (e *PersistenceEngine) CreateMessage(ctx context.Context, request persistence.CreateMessageRequest) (chat.Message, error) {
	var message chat.Message

	err := pgx.BeginTxFunc(ctx, e.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		sender, err := findUser(ctx, tx, request.SenderId)
		if err != nil {
			return err
		}

		var attachments []byte
		if len(request.Attachments) > 0 {
			attachments = request.Attachments
		}

		message = chat.Message{
			Id:             ulid.Make().String(),
			ConversationId: request.ConversationId,
			SenderId:       request.SenderId,
			SenderName:     sender.Name,
			SenderAvatar:   sender.Avatar,
			Content:        request.Content,
			Attachments:    attachments,
			CreatedAt:      request.CreatedAt,
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO messages (id, conversation_id, sender_id, content, attachments, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			message.Id, message.ConversationId, message.SenderId, message.Content, attachments, message.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE conversations SET updated_at = $2 WHERE id = $1`,
			request.ConversationId, request.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}

		return nil
	})
	if err != nil {
		return chat.Message{}, err
	}

	return message, nil
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func findUser(ctx context.Context, db queryer, userId string) (chat.User, error) {
	var user chat.User

	err := db.QueryRow(ctx,
		`SELECT id, name, COALESCE(avatar, '') FROM users WHERE id = $1`,
		userId,
	).Scan(&user.Id, &user.Name, &user.Avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.User{}, persistence.ErrNotFound
	}
	if err != nil {
		return chat.User{}, fmt.Errorf("find user: %w", err)
	}

	return user, nil
}
