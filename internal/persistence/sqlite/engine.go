package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Odillon241/Chronodil-sub001/internal/chat"
	"github.com/Odillon241/Chronodil-sub001/internal/persistence"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	driver "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type User struct {
	ID        string    `gorm:"primarykey;size:36"`
	Name      string    `gorm:"size:255;not null"`
	Avatar    string    `gorm:"size:1024"`
	CreatedAt time.Time
}

func (User) TableName() string {
	return "users"
}

type Conversation struct {
	ID        string `gorm:"primarykey;size:36"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Conversation) TableName() string {
	return "conversations"
}

type ConversationMember struct {
	ConversationID string `gorm:"primaryKey;size:36"`
	UserID         string `gorm:"primaryKey;size:36;index"`
	JoinedAt       time.Time
}

func (ConversationMember) TableName() string {
	return "conversation_members"
}

type Message struct {
	ID             string    `gorm:"primarykey;size:26"`
	ConversationID string    `gorm:"size:36;not null;index:idx_messages_conversation,priority:1"`
	SenderID       string    `gorm:"size:36;not null"`
	Content        string    `gorm:"type:text;not null"`
	Attachments    string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"index:idx_messages_conversation,priority:2"`
}

func (Message) TableName() string {
	return "messages"
}

type PersistenceEngine struct {
	db *gorm.DB
}

func Open(path string) (*PersistenceEngine, error) {
	db, err := gorm.Open(driver.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sqlite handle: %w", err)
	}

	// sqlite allows a single writer, and ":memory:" databases are per connection.
	sqlDB.SetMaxOpenConns(1)

	return NewPersistenceEngine(db), nil
}

func NewPersistenceEngine(db *gorm.DB) *PersistenceEngine {
	return &PersistenceEngine{db}
}

func (e *PersistenceEngine) Setup(ctx context.Context) error {
	err := e.db.WithContext(ctx).AutoMigrate(&User{}, &Conversation{}, &ConversationMember{}, &Message{})
	if err != nil {
		return fmt.Errorf("migrate sqlite schema: %w", err)
	}

	return nil
}

func (e *PersistenceEngine) Close(ctx context.Context) error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

func (e *PersistenceEngine) FindUser(ctx context.Context, userId string) (chat.User, error) {
	var user User

	err := e.db.WithContext(ctx).First(&user, "id = ?", userId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chat.User{}, persistence.ErrNotFound
	}
	if err != nil {
		return chat.User{}, fmt.Errorf("find user: %w", err)
	}

	return toChatUser(user), nil
}

func (e *PersistenceEngine) IsMember(ctx context.Context, userId string, conversationId string) (bool, error) {
	var count int64

	err := e.db.WithContext(ctx).
		Model(&ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count conversation members: %w", err)
	}

	return count > 0, nil
}

func (e *PersistenceEngine) CreateMessage(ctx context.Context, request persistence.CreateMessageRequest) (chat.Message, error) {
	var message Message
	var sender User

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&sender, "id = ?", request.SenderId).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return persistence.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("find sender: %w", err)
		}

		message = Message{
			ID:             ulid.Make().String(),
			ConversationID: request.ConversationId,
			SenderID:       request.SenderId,
			Content:        request.Content,
			Attachments:    string(request.Attachments),
			CreatedAt:      request.CreatedAt,
		}

		if err := tx.Create(&message).Error; err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		err = tx.Model(&Conversation{}).
			Where("id = ?", request.ConversationId).
			Update("updated_at", request.CreatedAt).Error
		if err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}

		return nil
	})
	if err != nil {
		return chat.Message{}, err
	}

	return toChatMessage(message, toChatUser(sender)), nil
}

// UpsertUser creates the user or refreshes its profile.
func (e *PersistenceEngine) UpsertUser(ctx context.Context, user chat.User) error {
	err := e.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "avatar"}),
	}).Create(&User{
		ID:     user.Id,
		Name:   user.Name,
		Avatar: user.Avatar,
	}).Error
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	return nil
}

// AddMembers creates the conversation when missing and adds the given users to it.
func (e *PersistenceEngine) AddMembers(ctx context.Context, conversationId string, userIds ...string) error {
	now := time.Now().UTC()

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Conversation{ID: conversationId, CreatedAt: now, UpdatedAt: now}).Error
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}

		if len(userIds) == 0 {
			return nil
		}

		members := lo.Map(lo.Uniq(userIds), func(userId string, _ int) ConversationMember {
			return ConversationMember{
				ConversationID: conversationId,
				UserID:         userId,
				JoinedAt:       now,
			}
		})

		err = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error
		if err != nil {
			return fmt.Errorf("add conversation members: %w", err)
		}

		return nil
	})
}

// RemoveMember deletes a user's membership of a conversation.
func (e *PersistenceEngine) RemoveMember(ctx context.Context, conversationId string, userId string) error {
	err := e.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		Delete(&ConversationMember{}).Error
	if err != nil {
		return fmt.Errorf("remove conversation member: %w", err)
	}

	return nil
}

func toChatUser(user User) chat.User {
	return chat.User{
		Id:     user.ID,
		Name:   user.Name,
		Avatar: user.Avatar,
	}
}

func toChatMessage(m Message, sender chat.User) chat.Message {
	message := chat.Message{
		Id:             m.ID,
		ConversationId: m.ConversationID,
		SenderId:       m.SenderID,
		SenderName:     sender.Name,
		SenderAvatar:   sender.Avatar,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}

	if m.Attachments != "" {
		message.Attachments = []byte(m.Attachments)
	}

	return message
}
