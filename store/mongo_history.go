package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"blogcms/models"
)

type MongoHistoryStore struct {
	coll *mongo.Collection
}

func NewMongoHistoryStore(db *mongo.Database) *MongoHistoryStore {
	return &MongoHistoryStore{coll: db.Collection("post_history")}
}

func (s *MongoHistoryStore) Append(ctx context.Context, entry *models.PostHistory) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	_, err := s.coll.InsertOne(ctx, entry)
	return err
}

func (s *MongoHistoryStore) FindByPost(ctx context.Context, postID primitive.ObjectID) ([]models.PostHistory, error) {
	// _id breaks ties between entries written within the same millisecond.
	opts := options.Find().SetSort(bson.D{{Key: "changedAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.coll.Find(ctx, bson.M{"postId": postID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []models.PostHistory
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *MongoHistoryStore) DeleteByPost(ctx context.Context, postID primitive.ObjectID) error {
	_, err := s.coll.DeleteMany(ctx, bson.M{"postId": postID})
	return err
}
