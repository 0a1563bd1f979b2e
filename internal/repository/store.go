package repository

import (
	"context"
	"errors"

	"github.com/mamadbah2/moulinette/internal/domain/models"
)

// ErrNotFound is returned when a session or dataset does not exist.
var ErrNotFound = errors.New("not found")

// Dataset names persisted per session.
const (
	DatasetOriginal    = "original"
	DatasetDeclared    = "declared"
	DatasetDistributed = "distributed"
)

// SessionStore persists session metadata and named datasets keyed by session.
// Datasets are opaque serialized payloads.
type SessionStore interface {
	SaveSession(ctx context.Context, session models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]models.Session, error)
	DeleteSession(ctx context.Context, id string) error

	SaveDataset(ctx context.Context, sessionID, name string, payload []byte) error
	LoadDataset(ctx context.Context, sessionID, name string) ([]byte, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
