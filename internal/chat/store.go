package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lintsai/ai-customer-service/internal/models"
)

// ErrConversationNotFound reports a reference to an absent conversation.
var ErrConversationNotFound = errors.New("chat: conversation not found")

// ConversationStore is the persistence contract for conversation documents.
// AppendMessage must apply the message push and the metadata update as one
// atomic operation so concurrent appends never lose an update.
type ConversationStore interface {
	Insert(ctx context.Context, conversation *models.Conversation) error
	Get(ctx context.Context, conversationID string) (*models.Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, message models.Message) (*models.Conversation, error)
	Archive(ctx context.Context, conversationID string, at time.Time) error
	ListActive(ctx context.Context, userID string) ([]models.ConversationSummary, error)
}

// MongoStore persists conversations in a MongoDB collection, one document
// per conversation keyed by conversation_id.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(collection *mongo.Collection) *MongoStore {
	return &MongoStore{collection: collection}
}

func (s *MongoStore) Insert(ctx context.Context, conversation *models.Conversation) error {
	if _, err := s.collection.InsertOne(ctx, conversation); err != nil {
		return fmt.Errorf("chat: insert conversation: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := s.collection.FindOne(ctx, bson.M{"conversation_id": conversationID}).Decode(&conversation)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chat: fetch conversation: %w", err)
	}
	return &conversation, nil
}

// AppendMessage pushes the message, bumps metadata.total_messages and the
// updated_at timestamp, and stamps the role-specific last-message time, all
// in a single FindOneAndUpdate keyed by conversation_id. It returns the
// conversation as it looks after the append.
func (s *MongoStore) AppendMessage(ctx context.Context, conversationID string, message models.Message) (*models.Conversation, error) {
	set := bson.M{"updated_at": message.Timestamp}
	switch message.Role {
	case models.RoleUser:
		set["metadata.last_user_message_time"] = message.Timestamp
	case models.RoleAssistant:
		set["metadata.last_assistant_message_time"] = message.Timestamp
	}

	update := bson.M{
		"$push": bson.M{"messages": message},
		"$set":  set,
		"$inc":  bson.M{"metadata.total_messages": 1},
	}

	var updated models.Conversation
	err := s.collection.FindOneAndUpdate(
		ctx,
		bson.M{"conversation_id": conversationID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chat: append message: %w", err)
	}
	return &updated, nil
}

func (s *MongoStore) Archive(ctx context.Context, conversationID string, at time.Time) error {
	err := s.collection.FindOneAndUpdate(
		ctx,
		bson.M{"conversation_id": conversationID},
		bson.M{"$set": bson.M{
			"status":      models.StatusArchived,
			"archived_at": at,
			"updated_at":  at,
		}},
	).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrConversationNotFound
	}
	if err != nil {
		return fmt.Errorf("chat: archive conversation: %w", err)
	}
	return nil
}

func (s *MongoStore) ListActive(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	filter := bson.M{"user_id": userID, "status": models.StatusActive}
	projection := bson.M{
		"conversation_id":         1,
		"created_at":              1,
		"updated_at":              1,
		"metadata.total_messages": 1,
	}

	cursor, err := s.collection.Find(ctx, filter, options.Find().SetProjection(projection))
	if err != nil {
		return nil, fmt.Errorf("chat: list active conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID        string    `bson:"conversation_id"`
		CreatedAt time.Time `bson:"created_at"`
		UpdatedAt time.Time `bson:"updated_at"`
		Metadata  struct {
			TotalMessages int `bson:"total_messages"`
		} `bson:"metadata"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("chat: decode active conversations: %w", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, models.ConversationSummary{
			ID:            doc.ID,
			CreatedAt:     doc.CreatedAt,
			UpdatedAt:     doc.UpdatedAt,
			TotalMessages: doc.Metadata.TotalMessages,
		})
	}

	return summaries, nil
}
