package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
)

type MongoNotificationStore struct {
	coll *mongo.Collection
}

func NewMongoNotificationStore(db *mongo.Database) *MongoNotificationStore {
	return &MongoNotificationStore{coll: db.Collection("notifications")}
}

// EnsureIndexes creates the recipient lookup index and the TTL index that
// expires documents models.NotificationTTL after creation.
func (s *MongoNotificationStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(models.NotificationTTL / time.Second)),
		},
	})
	return err
}

func (s *MongoNotificationStore) Insert(ctx context.Context, n *models.Notification) error {
	_, err := s.coll.InsertOne(ctx, n)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (s *MongoNotificationStore) ListByRecipient(ctx context.Context, recipient string, unreadOnly bool, p Page) ([]models.Notification, int64, error) {
	p = p.Normalize()
	filter := bson.M{"recipient": recipient}
	if unreadOnly {
		filter["read"] = false
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(p.Offset())).
		SetLimit(int64(p.Limit))
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	out := make([]models.Notification, 0, p.Limit)
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *MongoNotificationStore) MarkRead(ctx context.Context, recipient, id string, at time.Time) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "recipient": recipient},
		bson.M{"$set": bson.M{"read": true, "read_at": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoNotificationStore) MarkAllRead(ctx context.Context, recipient string, at time.Time) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"recipient": recipient, "read": false},
		bson.M{"$set": bson.M{"read": true, "read_at": at}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *MongoNotificationStore) CountUnread(ctx context.Context, recipient string) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{"recipient": recipient, "read": false})
}
