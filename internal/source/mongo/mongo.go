// Package mongo is the MongoDB Source, built on the official v2 driver.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"mongrel/internal/document"
	"mongrel/internal/source"
)

func init() {
	source.Register("mongo", New)
}

// batchSize is the cursor batch size requested from the server.
const batchSize = 1000

// Source reads collections from one MongoDB database.
type Source struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to cfg.URI and selects cfg.Database.
func New(ctx context.Context, cfg source.Config) (source.Source, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo: missing uri")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongo: missing database")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return &Source{client: client, db: client.Database(cfg.Database)}, nil
}

func (s *Source) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func (s *Source) Count(ctx context.Context, collection string) (int64, error) {
	n, err := s.db.Collection(collection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("mongo: count %s: %w", collection, err)
	}
	return n, nil
}

// Iterate walks the collection in natural order. Each raw document is
// decoded into an ordered bson.D and converted to a document.Object.
func (s *Source) Iterate(ctx context.Context, collection string, fn func(*document.Object) error) error {
	cur, err := s.db.Collection(collection).Find(ctx, bson.D{}, options.Find().SetBatchSize(batchSize))
	if err != nil {
		return fmt.Errorf("mongo: find %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var raw bson.D
		if err := cur.Decode(&raw); err != nil {
			return fmt.Errorf("mongo: decode %s: %w", collection, err)
		}
		doc, err := fromD(raw)
		if err != nil {
			return fmt.Errorf("mongo: %s: %w", collection, err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("mongo: cursor %s: %w", collection, err)
	}
	return nil
}
