package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Odillon241/Chronodil-sub001/internal/chat"
	"github.com/Odillon241/Chronodil-sub001/internal/persistence"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type User struct {
	Id     string `bson:"_id"`
	Name   string `bson:"name"`
	Avatar string `bson:"avatar,omitempty"`
}

type Conversation struct {
	Id        string    `bson:"_id"`
	MemberIds []string  `bson:"memberIds"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type Message struct {
	Id             bson.ObjectID `bson:"_id"`
	CreateTime     time.Time     `bson:"createTime"`
	ConversationId string        `bson:"conversationId"`
	SenderId       string        `bson:"senderId"`
	Content        string        `bson:"content"`
	Attachments    string        `bson:"attachments,omitempty"`
}

type PersistenceEngine struct {
	client        *mongo.Client
	users         *mongo.Collection
	conversations *mongo.Collection
	messages      *mongo.Collection
}

func Connect(uri string, databaseName string) (*PersistenceEngine, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	return NewPersistenceEngine(client, databaseName), nil
}

func NewPersistenceEngine(client *mongo.Client, databaseName string) *PersistenceEngine {
	database := client.Database(databaseName)

	return &PersistenceEngine{
		client,
		database.Collection("users"),
		database.Collection("conversations"),
		database.Collection("messages"),
	}
}

func (e *PersistenceEngine) Setup(ctx context.Context) error {
	memberIndexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "memberIds", Value: 1}},
	}

	_, err := e.conversations.Indexes().CreateOne(ctx, memberIndexModel)
	if err != nil {
		return fmt.Errorf("create conversation indexes: %w", err)
	}

	conversationIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "conversationId", Value: 1},
			{Key: "_id", Value: -1},
		},
	}

	_, err = e.messages.Indexes().CreateOne(ctx, conversationIndexModel)
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}

	return nil
}

func (e *PersistenceEngine) Close(ctx context.Context) error {
	return e.client.Disconnect(ctx)
}

func (e *PersistenceEngine) FindUser(ctx context.Context, userId string) (chat.User, error) {
	var user User

	err := e.users.FindOne(ctx, bson.M{"_id": userId}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return chat.User{}, persistence.ErrNotFound
	}
	if err != nil {
		return chat.User{}, fmt.Errorf("find user: %w", err)
	}

	return chat.User{
		Id:     user.Id,
		Name:   user.Name,
		Avatar: user.Avatar,
	}, nil
}

func (e *PersistenceEngine) IsMember(ctx context.Context, userId string, conversationId string) (bool, error) {
	filter := bson.M{
		"_id":       conversationId,
		"memberIds": userId,
	}

	count, err := e.conversations.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count conversation members: %w", err)
	}

	return count > 0, nil
}

// CreateMessage bumps the conversation's updatedAt and inserts the message.
// The two writes are not wrapped in a transaction since standalone mongod
// deployments do not support them, so the insert goes last: an error always
// means the message was not stored.
func (e *PersistenceEngine) CreateMessage(ctx context.Context, request persistence.CreateMessageRequest) (chat.Message, error) {
	sender, err := e.FindUser(ctx, request.SenderId)
	if err != nil {
		return chat.Message{}, err
	}

	message := Message{
		Id:             bson.NewObjectID(),
		CreateTime:     request.CreatedAt,
		ConversationId: request.ConversationId,
		SenderId:       request.SenderId,
		Content:        request.Content,
		Attachments:    string(request.Attachments),
	}

	err = writeMessage(ctx,
		func(ctx context.Context) error {
			_, err := e.conversations.UpdateOne(ctx,
				bson.M{"_id": request.ConversationId},
				bson.M{"$set": bson.M{"updatedAt": request.CreatedAt}},
			)
			return err
		},
		func(ctx context.Context) error {
			_, err := e.messages.InsertOne(ctx, message)
			return err
		},
	)
	if err != nil {
		return chat.Message{}, err
	}

	return toChatMessage(message, sender), nil
}

func writeMessage(ctx context.Context, touchConversation func(context.Context) error, insertMessage func(context.Context) error) error {
	err := touchConversation(ctx)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	err = insertMessage(ctx)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}

func toChatMessage(m Message, sender chat.User) chat.Message {
	message := chat.Message{
		Id:             m.Id.Hex(),
		ConversationId: m.ConversationId,
		SenderId:       m.SenderId,
		SenderName:     sender.Name,
		SenderAvatar:   sender.Avatar,
		Content:        m.Content,
		CreatedAt:      m.CreateTime,
	}

	if m.Attachments != "" {
		message.Attachments = []byte(m.Attachments)
	}

	return message
}
