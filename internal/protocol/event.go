package protocol

import (
	"encoding/json"
	"time"

	"github.com/Odillon241/Chronodil-sub001/internal/chat"
)

type EventType string

// Inbound, client to server.
const (
	EventAuthenticate      EventType = "AUTHENTICATE"
	EventJoinConversation  EventType = "JOIN_CONVERSATION"
	EventLeaveConversation EventType = "LEAVE_CONVERSATION"
	EventSendMessage       EventType = "SEND_MESSAGE"
	EventTypingStart       EventType = "TYPING_START"
	EventTypingStop        EventType = "TYPING_STOP"
	EventPing              EventType = "PING"
)

// Outbound, server to client.
const (
	EventAuthenticated      EventType = "AUTHENTICATED"
	EventAuthError          EventType = "AUTH_ERROR"
	EventJoinedConversation EventType = "JOINED_CONVERSATION"
	EventLeftConversation   EventType = "LEFT_CONVERSATION"
	EventMessageSent        EventType = "MESSAGE_SENT"
	EventNewMessage         EventType = "NEW_MESSAGE"
	EventMessageError       EventType = "MESSAGE_ERROR"
	EventUserTyping         EventType = "USER_TYPING"
	EventUserStoppedTyping  EventType = "USER_STOPPED_TYPING"
	EventUserJoined         EventType = "USER_JOINED"
	EventUserLeft           EventType = "USER_LEFT"
	EventError              EventType = "ERROR"
	EventPong               EventType = "PONG"
)

// Header is embedded in every event so its fields are flattened next to the
// type specific ones.
type Header struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func NewHeader(eventType EventType) Header {
	return Header{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// Frame is an encoded outbound event, ready to be written to a connection.
type Frame = json.RawMessage

// Encode serializes an outbound event into a Frame.
func Encode(event any) (Frame, error) {
	return json.Marshal(event)
}

type AuthenticateRequest struct {
	Token string `json:"token"`
}

type ConversationRequest struct {
	ConversationId string `json:"conversationId" validate:"required,max=128,conversationid"`
}

type SendMessageRequest struct {
	ConversationId string          `json:"conversationId" validate:"required,max=128,conversationid"`
	Content        string          `json:"content"`
	Attachments    json.RawMessage `json:"attachments,omitempty"`
}

type AuthenticatedEvent struct {
	Header
	UserId   string `json:"userId"`
	UserName string `json:"userName"`
}

type AuthErrorEvent struct {
	Header
	Error string `json:"error"`
}

type ConversationEvent struct {
	Header
	ConversationId string `json:"conversationId"`
}

type MessageSentEvent struct {
	Header
	MessageId string `json:"messageId"`
}

type NewMessageEvent struct {
	Header
	chat.Message
}

type ErrorEvent struct {
	Header
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// PresenceEvent covers typing indicators and join/leave announcements.
type PresenceEvent struct {
	Header
	ConversationId string `json:"conversationId"`
	UserId         string `json:"userId"`
	UserName       string `json:"userName,omitempty"`
}

type PongEvent struct {
	Header
}

func NewAuthenticatedEvent(userId string, userName string) AuthenticatedEvent {
	return AuthenticatedEvent{NewHeader(EventAuthenticated), userId, userName}
}

func NewAuthErrorEvent(message string) AuthErrorEvent {
	return AuthErrorEvent{NewHeader(EventAuthError), message}
}

func NewConversationEvent(eventType EventType, conversationId string) ConversationEvent {
	return ConversationEvent{NewHeader(eventType), conversationId}
}

func NewMessageSentEvent(messageId string) MessageSentEvent {
	return MessageSentEvent{NewHeader(EventMessageSent), messageId}
}

func NewNewMessageEvent(message chat.Message) NewMessageEvent {
	return NewMessageEvent{NewHeader(EventNewMessage), message}
}

func NewErrorEvent(eventType EventType, message string, code string) ErrorEvent {
	return ErrorEvent{NewHeader(eventType), message, code}
}

func NewPresenceEvent(eventType EventType, conversationId string, userId string, userName string) PresenceEvent {
	return PresenceEvent{NewHeader(eventType), conversationId, userId, userName}
}

func NewPongEvent() PongEvent {
	return PongEvent{NewHeader(EventPong)}
}
