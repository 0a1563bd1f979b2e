package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/moulinette/internal/domain/models"
	"github.com/mamadbah2/moulinette/internal/repository"
)

var _ repository.SessionStore = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "moulinette.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestStoreSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, store.Ping(ctx))

	now := time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC)
	session := models.Session{
		ID:               "ab12cd34",
		OriginalFilename: "export.csv",
		Status:           models.SessionUploaded,
		HeaderLines:      []string{"E;BKE022508SES00000003", "L;BKE022508SES00000003;BKE022508INV00000006"},
		TotalQuantity:    decimal.RequireFromString("12.5"),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, store.SaveSession(ctx, session))

	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.HeaderLines, got.HeaderLines)
	assert.True(t, got.TotalQuantity.Equal(session.TotalQuantity))

	session.Status = models.SessionCompleted
	session.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.SaveSession(ctx, session))
	got, err = store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, got.Status)

	_, err = store.GetSession(ctx, "missing")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.SaveSession(ctx, models.Session{ID: id, CreatedAt: at, UpdatedAt: at}))
	}

	list, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].ID)
	assert.Equal(t, "first", list[2].ID)
}

func TestStoreDatasetsFollowSession(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, store.SaveSession(ctx, models.Session{ID: "s1"}))

	_, err := store.LoadDataset(ctx, "s1", repository.DatasetDeclared)
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	require.NoError(t, store.SaveDataset(ctx, "s1", repository.DatasetDeclared, []byte(`[1]`)))
	require.NoError(t, store.SaveDataset(ctx, "s1", repository.DatasetDeclared, []byte(`[2]`)))

	got, err := store.LoadDataset(ctx, "s1", repository.DatasetDeclared)
	require.NoError(t, err)
	assert.Equal(t, `[2]`, string(got))

	require.NoError(t, store.DeleteSession(ctx, "s1"))
	_, err = store.LoadDataset(ctx, "s1", repository.DatasetDeclared)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
	assert.True(t, errors.Is(store.DeleteSession(ctx, "s1"), repository.ErrNotFound))
}
