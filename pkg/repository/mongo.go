package repository

import (
	"context"
	"time"

	"github.com/example/medistore/pkg/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const auditService = "storefront"

const DefaultHistoryLimit = 20

// MongoAuditor appends an audit document for every order placed and every
// reminder created or deleted.
type MongoAuditor struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoAuditor(cfg *config.MongoDBConfig) (*MongoAuditor, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}

	return &MongoAuditor{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

func (m *MongoAuditor) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoAuditor) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

type AuditLog struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Service   string             `bson:"service" json:"service"`
	Action    string             `bson:"action" json:"action"`
	EntityID  string             `bson:"entity_id" json:"entityId"`
	Data      bson.M             `bson:"data" json:"data,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}

func (m *MongoAuditor) Record(ctx context.Context, action, entityID string, data map[string]interface{}) error {
	_, err := m.collection.InsertOne(ctx, &AuditLog{
		Service:   auditService,
		Action:    action,
		EntityID:  entityID,
		Data:      bson.M(data),
		CreatedAt: time.Now(),
	})
	return err
}

// History returns the newest audit entries for one order or reminder.
func (m *MongoAuditor) History(ctx context.Context, entityID string, limit int64) ([]*AuditLog, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	filter := bson.M{"entity_id": entityID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)

	cursor, err := m.collection.Find(ctx, filter, opts)
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
