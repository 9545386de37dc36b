// Package mongo implements the store interface for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bookmebot/fundwatch/lib/store"
)

// Database and collection holding one document per funding round, keyed by chatId.
const (
	database   = "fundwatch"
	collection = "rounds"
)

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c *mgo.Client
}

// New returns a Mongo client connection to the specified MongoDB database uri.
func New(uri string) (*Mongo, error) {
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	err = c.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	return &Mongo{c: c}, nil
}

// CloseMongo will close a database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

// SaveRound upserts the round's configuration under its key.
func (m *Mongo) SaveRound(r store.Round) error {
	col := m.c.Database(database).Collection(collection)

	_, err := col.UpdateOne(context.Background(),
		bson.M{"chatId": r.Key},
		bson.D{
			{
				Key: "$set", Value: bson.D{
					{Key: "chatId", Value: r.Key},
					{Key: "walletAddress", Value: r.Wallet},
					{Key: "memberCount", Value: r.Members},
					{Key: "amountPerWallet", Value: r.Amount},
				},
			},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("could not save round in db: %w", err)
	}

	return nil
}

// RemoveRound deletes a round's configuration from the database.
func (m *Mongo) RemoveRound(key string) error {
	col := m.c.Database(database).Collection(collection)

	res, err := col.DeleteOne(context.Background(), bson.M{"chatId": key})
	if err == nil && res.DeletedCount != 1 {
		err = store.ErrRoundNotFound
	}

	return err
}

// GetRounds returns all persisted round configurations, used to seed the in-memory table at startup.
func (m *Mongo) GetRounds() ([]store.Round, error) {
	docs, err := m.c.Database(database).Collection(collection).Find(context.TODO(), bson.M{})
	if err != nil {
		return nil, fmt.Errorf("error getting mongo DB rounds: %w", err)
	}

	rounds := []store.Round{}

	for docs.Next(context.Background()) {
		var r store.Round
		if err = bson.Unmarshal(docs.Current, &r); err == nil {
			rounds = append(rounds, r)
		}
	}

	if err = docs.Err(); err != nil && !errors.Is(err, mgo.ErrNoDocuments) {
		return rounds, fmt.Errorf("error reading mongo DB rounds: %w", err)
	}

	return rounds, nil
}
