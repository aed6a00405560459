package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationCollection mongo collection name
const ConversationCollection = "conversations"

// ConversationRepository definition conversation persistence
type ConversationRepository interface {
	FindByParticipant(ctx context.Context, userID string) ([]domain.Conversation, error)
	FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error)
	Create(ctx context.Context, conv *domain.Conversation) error
	AppendMessage(ctx context.Context, conversationID string, msg domain.Message) error
	MarkSeen(ctx context.Context, conversationID, readerID string, messageIDs []string) error
	MarkDeleted(ctx context.Context, conversationID, messageID string) error
	UpdateFlags(ctx context.Context, conversationID string, favourite, archived *bool) error
}

type conversationRepository struct {
	coll *mongo.Collection
}

// NewMongoConversationRepository create mongo conversation repository
func NewMongoConversationRepository(db *mongo.Database) ConversationRepository {
	return &conversationRepository{
		coll: db.Collection(ConversationCollection),
	}
}

// FindByParticipant 使用者參與的所有聊天, updated_at 由新到舊
func (r *conversationRepository) FindByParticipant(ctx context.Context, userID string) ([]domain.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find conversations of %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	var docs []conversationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}

	convs := make([]domain.Conversation, 0, len(docs))
	for _, d := range docs {
		convs = append(convs, d.toDomain())
	}
	return convs, nil
}

// FindByID find conversation by id
func (r *conversationRepository) FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var doc conversationDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errprocess.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	conv := doc.toDomain()
	return &conv, nil
}

// Create insert conversation
func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	_, err := r.coll.InsertOne(ctx, newConversationDocument(*conv))
	return err
}

// AppendMessage $push 訊息並更新 updated_at
func (r *conversationRepository) AppendMessage(ctx context.Context, conversationID string, msg domain.Message) error {
	update := bson.M{
		"$push": bson.M{"messages": newMessageDocument(msg)},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	return r.updateOne(ctx, conversationID, update)
}

// MarkSeen 將 reader 以外的人送出的訊息設為 seen, messageIDs 為空代表全部
func (r *conversationRepository) MarkSeen(ctx context.Context, conversationID, readerID string, messageIDs []string) error {
	filter := bson.M{"m.sender_id": bson.M{"$ne": readerID}}
	if len(messageIDs) > 0 {
		filter["m.message_id"] = bson.M{"$in": messageIDs}
	}

	opts := options.Update().SetArrayFilters(options.ArrayFilters{Filters: []interface{}{filter}})
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{"messages.$[m].seen": true}},
		opts,
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errprocess.ErrConversationNotFound
	}
	return nil
}

// MarkDeleted tombstone, 訊息保留在原位置
func (r *conversationRepository) MarkDeleted(ctx context.Context, conversationID, messageID string) error {
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"m.message_id": messageID}},
	})
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": conversationID, "messages.message_id": messageID},
		bson.M{"$set": bson.M{"messages.$[m].is_deleted": true}},
		opts,
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errprocess.ErrMessageNotFound
	}
	return nil
}

// UpdateFlags 只更新非 nil 的 flag
func (r *conversationRepository) UpdateFlags(ctx context.Context, conversationID string, favourite, archived *bool) error {
	set := bson.M{}
	if favourite != nil {
		set["is_favourite"] = *favourite
	}
	if archived != nil {
		set["is_archived"] = *archived
	}
	if len(set) == 0 {
		return nil
	}
	return r.updateOne(ctx, conversationID, bson.M{"$set": set})
}

func (r *conversationRepository) updateOne(ctx context.Context, conversationID string, update bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": conversationID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errprocess.ErrConversationNotFound
	}
	return nil
}
