package chat

import (
	"encoding/json"
	"time"
)

// Message is a persisted chat message as returned by the persistence layer.
type Message struct {
	Id             string          `json:"id"`
	ConversationId string          `json:"conversationId"`
	SenderId       string          `json:"senderId"`
	SenderName     string          `json:"senderName"`
	SenderAvatar   string          `json:"senderAvatar"`
	Content        string          `json:"content"`
	Attachments    json.RawMessage `json:"attachments,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type User struct {
	Id     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}
