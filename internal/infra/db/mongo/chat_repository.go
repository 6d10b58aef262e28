package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "garagesale/internal/domain/chat"
	domainitem "garagesale/internal/domain/item"
	domainuser "garagesale/internal/domain/user"
)

// ChatRepository persists one document per conversation with the message log
// embedded. Appends go through a single $push so concurrent sends to the same
// chat cannot lose writes.
type ChatRepository struct {
	col *mongo.Collection
}

func NewChatRepository(db *mongo.Database) *ChatRepository {
	return &ChatRepository{col: db.Collection("chats")}
}

// EnsureIndexes creates the unique pair-key index that backs idempotent chat
// creation, plus the inbox listing index.
func (r *ChatRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "participants", Value: 1}, {Key: "last_message_at", Value: -1}},
		},
	})
	return err
}

func (r *ChatRepository) GetOrCreate(ctx context.Context, itemID domainitem.ID, participants [2]domainuser.ID, now time.Time) (*domainchat.Chat, bool, error) {
	pair := domainchat.SortParticipants(participants[0], participants[1])
	key := domainchat.PairKey(itemID, pair[0], pair[1])
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	doc := chatDocument{
		ID:            uuid.NewString(),
		PairKey:       key,
		ItemID:        string(itemID),
		Participants:  []string{string(pair[0]), string(pair[1])},
		Messages:      []messageDocument{},
		LastMessageAt: now.UnixMilli(),
		CreatedAt:     now.UnixMilli(),
	}
	filter := bson.M{"pair_key": key}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$setOnInsert": doc}, options.Update().SetUpsert(true))
	if err != nil {
		// A concurrent creator may win the unique-index race; fall through to
		// the read in that case.
		if !mongo.IsDuplicateKeyError(err) {
			return nil, false, err
		}
		res = &mongo.UpdateResult{}
	}
	var stored chatDocument
	if err := r.col.FindOne(ctx, filter).Decode(&stored); err != nil {
		return nil, false, err
	}
	return stored.toAggregate(), res.UpsertedCount > 0, nil
}

func (r *ChatRepository) ByID(ctx context.Context, id domainchat.ID) (*domainchat.Chat, error) {
	var doc chatDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ChatRepository) ListForUser(ctx context.Context, userID domainuser.ID) ([]*domainchat.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}})
	cursor, err := r.col.Find(ctx, bson.M{"participants": string(userID)}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []chatDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	result := make([]*domainchat.Chat, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.toAggregate())
	}
	return result, nil
}

func (r *ChatRepository) AppendMessage(ctx context.Context, chatID domainchat.ID, msg domainchat.Message) error {
	update := bson.M{
		"$push": bson.M{"messages": newMessageDocument(msg)},
		"$set":  bson.M{"last_message_at": msg.SentAt.UnixMilli()},
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": string(chatID)}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrNotFound
	}
	return nil
}

func (r *ChatRepository) MarkViewed(ctx context.Context, chatID domainchat.ID, viewer domainuser.ID) error {
	update := bson.M{
		"$addToSet": bson.M{"messages.$[msg].read_by": string(viewer)},
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"msg.read_by": bson.M{"$ne": string(viewer)}}},
	})
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": string(chatID)}, update, opts)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrNotFound
	}
	return nil
}

type chatDocument struct {
	ID            string            `bson:"_id"`
	PairKey       string            `bson:"pair_key"`
	ItemID        string            `bson:"item_id"`
	Participants  []string          `bson:"participants"`
	Messages      []messageDocument `bson:"messages"`
	LastMessageAt int64             `bson:"last_message_at"`
	CreatedAt     int64             `bson:"created_at"`
}

type messageDocument struct {
	ID       string   `bson:"id"`
	SenderID string   `bson:"sender_id"`
	Content  string   `bson:"content"`
	SentAt   int64    `bson:"sent_at"`
	ReadBy   []string `bson:"read_by"`
}

func newMessageDocument(m domainchat.Message) messageDocument {
	readBy := make([]string, 0, len(m.ReadBy))
	for _, id := range m.ReadBy {
		readBy = append(readBy, string(id))
	}
	return messageDocument{
		ID:       string(m.ID),
		SenderID: string(m.Sender),
		Content:  m.Content,
		SentAt:   m.SentAt.UnixMilli(),
		ReadBy:   readBy,
	}
}

func (d chatDocument) toAggregate() *domainchat.Chat {
	agg := &domainchat.Chat{
		ID:            domainchat.ID(d.ID),
		ItemID:        domainitem.ID(d.ItemID),
		Messages:      make([]domainchat.Message, 0, len(d.Messages)),
		LastMessageAt: timestampToTime(d.LastMessageAt),
		CreatedAt:     timestampToTime(d.CreatedAt),
	}
	for i, p := range d.Participants {
		if i > 1 {
			break
		}
		agg.Participants[i] = domainuser.ID(p)
	}
	for _, msg := range d.Messages {
		readBy := make([]domainuser.ID, 0, len(msg.ReadBy))
		for _, id := range msg.ReadBy {
			readBy = append(readBy, domainuser.ID(id))
		}
		agg.Messages = append(agg.Messages, domainchat.Message{
			ID:      domainchat.MessageID(msg.ID),
			Sender:  domainuser.ID(msg.SenderID),
			Content: msg.Content,
			SentAt:  timestampToTime(msg.SentAt),
			ReadBy:  readBy,
		})
	}
	return agg
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
