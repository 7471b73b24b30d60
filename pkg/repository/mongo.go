package repository

import (
	"context"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/errs"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository stores the audit trail of platform and tenant mutations.
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoRepository(cfg *config.MongoDBConfig) (*MongoRepository, error) {
	if cfg.URI == "" {
		return &MongoRepository{}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	return &MongoRepository{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// NewMongoRepositoryFromCollection wraps an existing collection.
func NewMongoRepositoryFromCollection(coll *mongo.Collection) *MongoRepository {
	return &MongoRepository{collection: coll}
}

func (m *MongoRepository) coll() (*mongo.Collection, error) {
	if m == nil || m.collection == nil {
		return nil, errs.NotConfigured("audit store")
	}
	return m.collection, nil
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	if m.client == nil {
		return errs.NotConfigured("audit store")
	}
	return m.client.Ping(ctx, nil)
}

func (m *MongoRepository) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

// AuditLog is one recorded mutation.
type AuditLog struct {
	ID        string    `bson:"_id,omitempty" json:"id,omitempty"`
	Service   string    `bson:"service" json:"service"`
	Action    string    `bson:"action" json:"action"`
	ActorID   string    `bson:"actor_id" json:"actor_id"`
	EntityID  string    `bson:"entity_id" json:"entity_id"`
	Data      bson.M    `bson:"data,omitempty" json:"data,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

func (m *MongoRepository) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	coll, err := m.coll()
	if err != nil {
		return err
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	_, err = coll.InsertOne(ctx, log)
	return err
}

// GetAuditLogs returns the newest entries for one entity.
func (m *MongoRepository) GetAuditLogs(ctx context.Context, entityID string, limit int64) ([]*AuditLog, error) {
	return m.findAuditLogs(ctx, bson.M{"entity_id": entityID}, limit)
}

// RecentAuditLogs returns the newest entries across all entities.
func (m *MongoRepository) RecentAuditLogs(ctx context.Context, limit int64) ([]*AuditLog, error) {
	return m.findAuditLogs(ctx, bson.M{}, limit)
}

func (m *MongoRepository) findAuditLogs(ctx context.Context, filter bson.M, limit int64) ([]*AuditLog, error) {
	coll, err := m.coll()
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []*AuditLog
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
