package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/moulinette/internal/domain/models"
	"github.com/mamadbah2/moulinette/internal/repository"
)

const (
	sessionsCollection = "sessions"
	datasetsCollection = "datasets"
)

// sessionDocument keeps the queryable fields native and the full session as JSON,
// so decimal quantities survive the round trip unchanged.
type sessionDocument struct {
	ID        string    `bson:"_id"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
	Payload   []byte    `bson:"payload"`
}

type datasetDocument struct {
	ID        string    `bson:"_id"`
	SessionID string    `bson:"session_id"`
	Name      string    `bson:"name"`
	Payload   []byte    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoDBRepository implements repository.SessionStore for MongoDB.
type MongoDBRepository struct {
	client *mongo.Client
	dbName string
	logger *zap.Logger
}

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	repo := &MongoDBRepository{client: client, dbName: dbName, logger: logger}

	_, err = repo.datasets().Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "session_id", Value: 1}}})
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset index: %w", err)
	}

	return repo, nil
}

func (r *MongoDBRepository) sessions() *mongo.Collection {
	return r.client.Database(r.dbName).Collection(sessionsCollection)
}

func (r *MongoDBRepository) datasets() *mongo.Collection {
	return r.client.Database(r.dbName).Collection(datasetsCollection)
}

// SaveSession upserts a session.
func (r *MongoDBRepository) SaveSession(ctx context.Context, session models.Session) error {
	doc, err := newSessionDocument(session)
	if err != nil {
		return err
	}

	_, err = r.sessions().ReplaceOne(ctx, bson.M{"_id": session.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return nil
}

// GetSession loads a session by id.
func (r *MongoDBRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var doc sessionDocument
	err := r.sessions().FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return decodeSession(doc)
}

// ListSessions returns all sessions, newest first.
func (r *MongoDBRepository) ListSessions(ctx context.Context) ([]models.Session, error) {
	cursor, err := r.sessions().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var out []models.Session
	for cursor.Next(ctx) {
		var doc sessionDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode session: %w", err)
		}
		session, err := decodeSession(doc)
		if err != nil {
			r.logger.Warn("skip undecodable session", zap.String("session_id", doc.ID), zap.Error(err))
			continue
		}
		out = append(out, *session)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

// DeleteSession removes a session and its datasets.
func (r *MongoDBRepository) DeleteSession(ctx context.Context, id string) error {
	res, err := r.sessions().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	if _, err := r.datasets().DeleteMany(ctx, bson.M{"session_id": id}); err != nil {
		return fmt.Errorf("failed to delete datasets of session %s: %w", id, err)
	}
	return nil
}

// SaveDataset upserts one named dataset of a session.
func (r *MongoDBRepository) SaveDataset(ctx context.Context, sessionID, name string, payload []byte) error {
	doc := datasetDocument{
		ID:        datasetID(sessionID, name),
		SessionID: sessionID,
		Name:      name,
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := r.datasets().ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save dataset %s for session %s: %w", name, sessionID, err)
	}
	return nil
}

// LoadDataset returns one named dataset of a session.
func (r *MongoDBRepository) LoadDataset(ctx context.Context, sessionID, name string) ([]byte, error) {
	var doc datasetDocument
	err := r.datasets().FindOne(ctx, bson.M{"_id": datasetID(sessionID, name)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s for session %s: %w", name, sessionID, err)
	}
	return doc.Payload, nil
}

// Ping checks connectivity.
func (r *MongoDBRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func datasetID(sessionID, name string) string {
	return sessionID + "/" + name
}

func newSessionDocument(session models.Session) (sessionDocument, error) {
	payload, err := json.Marshal(session)
	if err != nil {
		return sessionDocument{}, fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	return sessionDocument{
		ID:        session.ID,
		Status:    string(session.Status),
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
		Payload:   payload,
	}, nil
}

func decodeSession(doc sessionDocument) (*models.Session, error) {
	var session models.Session
	if err := json.Unmarshal(doc.Payload, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", doc.ID, err)
	}
	return &session, nil
}
