package lockstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a MongoDB-backed Store for production deployments where
// multiple server instances share one set of named lockfiles.
type MongoStore struct {
	client *mongo.Client
	locks  *mongo.Collection
}

// NewMongoStore connects to MongoDB and prepares the locks collection.
// Lockfiles are stored in the "locks" collection of the given database,
// with a unique index on the name.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	locks := client.Database(database).Collection("locks")
	_, err = locks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{client: client, locks: locks}, nil
}

// Get retrieves a lockfile by name.
func (s *MongoStore) Get(ctx context.Context, name string) (*Record, error) {
	var rec Record
	err := s.locks.FindOne(ctx, bson.M{"name": name}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Put stores a lockfile under a name.
func (s *MongoStore) Put(ctx context.Context, name string, lockfile []byte) (*Record, error) {
	previous, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	rec, err := newRecord(name, lockfile, previous)
	if err != nil {
		return nil, err
	}
	_, err = s.locks.ReplaceOne(ctx, bson.M{"name": name}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a stored lockfile.
func (s *MongoStore) Delete(ctx context.Context, name string) error {
	_, err := s.locks.DeleteOne(ctx, bson.M{"name": name})
	return err
}

// List returns the stored names in sorted order.
func (s *MongoStore) List(ctx context.Context) ([]string, error) {
	cursor, err := s.locks.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"name": 1}).SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var names []string
	for cursor.Next(ctx) {
		var doc struct {
			Name string `bson:"name"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		names = append(names, doc.Name)
	}
	return names, cursor.Err()
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ensure MongoStore implements Store.
var _ Store = (*MongoStore)(nil)
