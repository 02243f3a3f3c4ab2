package repository

import (
	"context"
	"time"

	"github.com/example/giftshop/pkg/config"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoRepository struct {
	client   *mongo.Client
	database *mongo.Database
	config   *config.MongoDBConfig
}

func NewMongoRepository(cfg *config.MongoDBConfig) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}

	return &MongoRepository{
		client:   client,
		database: client.Database(cfg.Database),
		config:   cfg,
	}, nil
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// AuditLog represents an audit log entry
type AuditLog struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Service   string    `bson:"service" json:"service"`
	Action    string    `bson:"action" json:"action"`
	EntityID  string    `bson:"entity_id" json:"entity_id"`
	Actor     string    `bson:"actor" json:"actor"`
	Data      bson.M    `bson:"data" json:"data,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

func (m *MongoRepository) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	collection := m.database.Collection(m.config.Collection)
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	log.CreatedAt = time.Now()
	_, err := collection.InsertOne(ctx, log)
	return err
}

type AuditQuery struct {
	EntityID string
	Actor    string
	Limit    int64
}

func (q AuditQuery) filter() bson.M {
	filter := bson.M{}
	if q.EntityID != "" {
		filter["entity_id"] = q.EntityID
	}
	if q.Actor != "" {
		filter["actor"] = q.Actor
	}
	return filter
}

func (m *MongoRepository) GetAuditLogs(ctx context.Context, q AuditQuery) ([]*AuditLog, error) {
	collection := m.database.Collection(m.config.Collection)

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cursor, err := collection.Find(ctx, q.filter(), opts)
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

// Auditor records admin actions.
type Auditor interface {
	CreateAuditLog(ctx context.Context, log *AuditLog) error
	GetAuditLogs(ctx context.Context, q AuditQuery) ([]*AuditLog, error)
}

// NoopAuditor drops entries; used when mongodb is disabled.
type NoopAuditor struct{}

func (NoopAuditor) CreateAuditLog(context.Context, *AuditLog) error { return nil }

func (NoopAuditor) GetAuditLogs(context.Context, AuditQuery) ([]*AuditLog, error) { return nil, nil }
