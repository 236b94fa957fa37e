package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "dialog_contexts"

// ConnectMongo opens a client and verifies it with a ping. The client is
// shared by the ledger and the dialog storage.
func ConnectMongo(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}
	return client, nil
}

type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *slog.Logger
}

func NewMongoStorage(client *mongo.Client, database string, log *slog.Logger) *MongoStorage {
	return &MongoStorage{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
		log:        log,
	}
}

func (m *MongoStorage) GetUserContext(userId int64) (*DialogContext, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	var dialogCtx DialogContext
	err := m.collection.FindOne(ctx, bson.M{"user_id": userId}).Decode(&dialogCtx)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding context: %w", err)
	}
	return &dialogCtx, nil
}

func (m *MongoStorage) UpdateUserContext(userId int64, message Message) error {
	existing, err := m.GetUserContext(userId)
	if err != nil {
		return err
	}
	if existing == nil {
		existing = &DialogContext{UserId: userId}
	}
	appendMessage(existing, message)

	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	_, err = m.collection.ReplaceOne(ctx, bson.M{"user_id": userId}, existing, opts)
	if err != nil {
		return fmt.Errorf("saving context: %w", err)
	}
	return nil
}

func (m *MongoStorage) SetTopic(userId int64, topic string) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"topic":      topic,
			"updated_at": time.Now(),
		},
		"$setOnInsert": bson.M{
			"user_id":  userId,
			"messages": []Message{},
			"tokens":   0,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := m.collection.UpdateOne(ctx, bson.M{"user_id": userId}, update, opts)
	return err
}

func (m *MongoStorage) ClearUserContext(userId int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	_, err := m.collection.DeleteOne(ctx, bson.M{"user_id": userId})
	return err
}

// Close is a no-op, the client is disconnected by its owner.
func (m *MongoStorage) Close() error {
	return nil
}
