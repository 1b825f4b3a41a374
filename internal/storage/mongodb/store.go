// Package mongodb implements storage interfaces using MongoDB
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zimbra-api/upload-api/internal/storage"
	"github.com/zimbra-api/upload-api/pkg/message"
)

// Default names used when the configuration leaves them empty
const (
	DefaultDatabase   = "zimbra_upload"
	DefaultCollection = "attachments"
)

// Store implements storage.AttachmentStore using MongoDB
type Store struct {
	client      *mongo.Client
	db          *mongo.Database
	attachments *mongo.Collection
	now         func() time.Time
}

// Config holds MongoDB connection settings
type Config struct {
	URI        string
	Database   string
	Collection string
}

// NewStore connects to MongoDB and prepares the attachment collection
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil || cfg.URI == "" {
		return nil, fmt.Errorf("MongoDB URI is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = DefaultDatabase
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	db := client.Database(database)
	s := &Store{
		client:      client,
		db:          db,
		attachments: db.Collection(collection),
		now:         time.Now,
	}

	if err := s.createIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.attachments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "request_id", Value: 1}, {Key: "uploaded_at", Value: 1}, {Key: "position", Value: 1}}},
		{Keys: bson.D{{Key: "uploaded_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("creating attachment indexes: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// AttachmentStore implementation

func (s *Store) Save(ctx context.Context, requestID string, attachments []message.Attachment) error {
	records := storage.NewRecords(requestID, attachments, s.now())
	if len(records) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": r.AttachmentID}).
			SetReplacement(r).
			SetUpsert(true))
	}

	_, err := s.attachments.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("saving attachments: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, attachmentID string) (*storage.Record, error) {
	var record storage.Record
	err := s.attachments.FindOne(ctx, bson.M{"_id": attachmentID}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) ListByRequest(ctx context.Context, requestID string) ([]*storage.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: 1}, {Key: "position", Value: 1}})

	cursor, err := s.attachments.Find(ctx, bson.M{"request_id": requestID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []*storage.Record{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

var _ storage.AttachmentStore = (*Store)(nil)
