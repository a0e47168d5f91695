package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/websift/dedup-engine/pkg/config"
	apperrors "github.com/websift/dedup-engine/pkg/errors"
	"github.com/websift/dedup-engine/pkg/resilience"
)

// mongoDocument is the BSON shape of one stored crawl record.
type mongoDocument struct {
	ID          string    `bson:"_id"`
	URL         string    `bson:"url"`
	TextContent string    `bson:"text_content"`
	HTMLContent string    `bson:"html_content"`
	Timestamp   time.Time `bson:"timestamp"`
}

func (m mongoDocument) toDocument() Document {
	return Document{
		ID:          m.ID,
		URL:         m.URL,
		TextContent: m.TextContent,
		HTMLContent: m.HTMLContent,
		Timestamp:   m.Timestamp,
	}
}

// MongoStore implements Store on a MongoDB collection.
type MongoStore struct {
	client    *mongo.Client
	documents *mongo.Collection
	cfg       config.StoreConfig
}

// NewMongoStore connects to MongoDB (with backoff) and ensures the URL index
// exists.
func NewMongoStore(ctx context.Context, cfg config.StoreConfig) (*MongoStore, error) {
	var client *mongo.Client
	err := resilience.Retry(ctx, "mongo-connect", resilience.DefaultRetryPolicy(), func() error {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		c, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return err
		}
		if err := c.Ping(connectCtx, nil); err != nil {
			_ = c.Disconnect(connectCtx)
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrStoreUnavailable, "connecting to mongo: %v", err)
	}

	s := &MongoStore{
		client:    client,
		documents: client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection),
		cfg:       cfg,
	}
	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, apperrors.Newf(apperrors.ErrStoreUnavailable, "creating indexes: %v", err)
	}
	return s, nil
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	idxCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := s.documents.Indexes().CreateOne(idxCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "url", Value: 1}},
	})
	return err
}

func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := resilience.WithTimeout(ctx, s.cfg.OpTimeout, "mongo-count", func(ctx context.Context) error {
		var err error
		count, err = s.documents.CountDocuments(ctx, bson.M{})
		return err
	})
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrStoreUnavailable, "counting documents: %v", err)
	}
	return count, nil
}

func (s *MongoStore) ScanAll(ctx context.Context, fields []string) (Iterator, error) {
	projection := bson.M{}
	if fields != nil {
		for _, f := range fields {
			switch f {
			case FieldURL, FieldTextContent, FieldHTMLContent, FieldTimestamp:
				projection[f] = 1
			default:
				return nil, apperrors.Newf(apperrors.ErrInvalidConfiguration, "unknown scan field %q", f)
			}
		}
	}
	opts := options.Find().SetBatchSize(int32(s.cfg.ScanPage))
	if len(projection) > 0 {
		opts.SetProjection(projection)
	}
	cursor, err := s.documents.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrStoreUnavailable, "opening scan cursor: %v", err)
	}
	return &mongoIterator{cursor: cursor}, nil
}

func (s *MongoStore) LookupExact(ctx context.Context, field, value string) (*Document, error) {
	if err := validField(field); err != nil {
		return nil, err
	}
	var raw mongoDocument
	err := resilience.WithTimeout(ctx, s.cfg.OpTimeout, "mongo-lookup", func(ctx context.Context) error {
		return s.documents.FindOne(ctx, bson.M{field: value}).Decode(&raw)
	})
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrStoreOperationFailed, "looking up %s=%q: %v", field, value, err)
	}
	doc := raw.toDocument()
	return &doc, nil
}

func (s *MongoStore) BulkDelete(ctx context.Context, ids []string) (BulkDeleteResult, error) {
	if len(ids) == 0 {
		return BulkDeleteResult{}, nil
	}
	var deleted int64
	err := resilience.WithTimeout(ctx, s.cfg.OpTimeout, "mongo-bulk-delete", func(ctx context.Context) error {
		res, err := s.documents.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	if err != nil {
		return BulkDeleteResult{FailedIDs: ids},
			apperrors.Newf(apperrors.ErrStoreOperationFailed, "bulk delete of %d ids: %v", len(ids), err)
	}
	return BulkDeleteResult{Succeeded: int(deleted)}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	disconnectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.client.Disconnect(disconnectCtx)
}

// Ping reports store reachability, used by health checks.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

type mongoIterator struct {
	cursor *mongo.Cursor
	doc    Document
	err    error
}

func (it *mongoIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if !it.cursor.Next(ctx) {
		it.err = it.cursor.Err()
		return false
	}
	var raw mongoDocument
	if err := it.cursor.Decode(&raw); err != nil {
		it.err = err
		return false
	}
	it.doc = raw.toDocument()
	return true
}

func (it *mongoIterator) Document() Document { return it.doc }

func (it *mongoIterator) Err() error {
	if it.err != nil {
		return apperrors.Newf(apperrors.ErrStoreUnavailable, "scanning documents: %v", it.err)
	}
	return nil
}

func (it *mongoIterator) Close(ctx context.Context) error {
	return it.cursor.Close(ctx)
}

var _ Store = (*MongoStore)(nil)
