package sessions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mamadbah2/moulinette/internal/domain/models"
	"github.com/mamadbah2/moulinette/internal/repository"
	"github.com/mamadbah2/moulinette/internal/repository/memory"
	apperrors "github.com/mamadbah2/moulinette/pkg/errors"
)

const sampleExport = `E;BKE02;Inventaire annuel;1;BKE02;20240401
L;BKE022404SES00000001;BKE022404INV00000001;1;BKE02;;;
S;BKE022404SES00000001;BKE022404INV00000001;1000;BKE02;50;0;1;ARTA;EMP01;A;UN;0;ZONE1;LOT010124
S;BKE022404SES00000001;BKE022404INV00000001;2000;BKE02;30;0;1;ARTA;EMP01;A;UN;0;ZONE1;LOT010224
S;BKE022404SES00000001;BKE022404INV00000001;3000;BKE02;20;0;1;ARTA;EMP01;A;UN;0;ZONE1;LOT010324
S;BKE022404SES00000001;BKE022404INV00000001;4000;BKE02;10;0;1;ARTB;EMP02;A;UN;0;ZONE1;LOT150324
`

const sampleCounts = `Code Article;Numéro Inventaire;Numéro Lot;Quantité Réelle
ARTA;BKE022404INV00000001;LOT010124;50
ARTA;BKE022404INV00000001;LOT010224;30
ARTA;BKE022404INV00000001;LOT010324;0
ARTB;BKE022404INV00000001;LOT150324;0
ARTB;BKE022404INV00000001;NEWLOT;7
ARTC;BKE022404INV00000001;LOT1;abc
`

type recorder struct {
	sessions []string
	entries  []models.LedgerEntry
	err      error
}

func (r *recorder) RecordRun(_ context.Context, session models.Session, summary models.RunSummary) error {
	r.sessions = append(r.sessions, session.ID)
	if r.err == nil {
		r.entries = append(r.entries, models.LedgerEntry{SessionID: session.ID, Strategy: summary.Strategy, TotalDiscrepancy: summary.TotalDiscrepancy})
	}
	return r.err
}

func (r *recorder) History(_ context.Context, sessionID string) ([]models.LedgerEntry, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []models.LedgerEntry
	for _, e := range r.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *recorder) NotifyRun(_ context.Context, session models.Session, _ models.RunSummary) error {
	r.sessions = append(r.sessions, session.ID)
	return r.err
}

func newTestService(t *testing.T, opts Options) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	opts.DataDir = t.TempDir()
	svc, err := NewService(store, nil, opts, nil)
	require.NoError(t, err)

	ids := []string{"sess0001", "sess0002", "sess0003"}
	svc.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	return svc, store
}

func TestUploadGeneratesTemplate(t *testing.T) {
	svc, store := newTestService(t, Options{})
	ctx := context.Background()

	session, issues, err := svc.Upload(ctx, "/tmp/inventaire_avril.csv", strings.NewReader(sampleExport))
	require.NoError(t, err)
	assert.Empty(t, issues)

	assert.Equal(t, "sess0001", session.ID)
	assert.Equal(t, "inventaire_avril.csv", session.OriginalFilename)
	assert.Equal(t, models.SessionTemplateGenerated, session.Status)
	assert.Len(t, session.HeaderLines, 2)
	assert.Equal(t, 2, session.NbArticles)
	assert.Equal(t, 4, session.NbLots)
	assert.Equal(t, "110", session.TotalQuantity.String())

	template, err := os.ReadFile(session.TemplateFilePath)
	require.NoError(t, err)
	assert.Contains(t, string(template), "LOT010124")
	assert.Equal(t, "inventaire_avril_template_sess0001.csv", filepath.Base(session.TemplateFilePath))

	_, err = store.LoadDataset(ctx, session.ID, repository.DatasetOriginal)
	assert.NoError(t, err)
}

func TestUploadUnreadableExportMarksSessionErrored(t *testing.T) {
	svc, store := newTestService(t, Options{})
	ctx := context.Background()

	_, _, err := svc.Upload(ctx, "empty.csv", strings.NewReader("E;only;a;header\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnreadableInput))

	stored, err := store.GetSession(ctx, "sess0001")
	require.NoError(t, err)
	assert.Equal(t, models.SessionError, stored.Status)
	assert.NotEmpty(t, stored.LastError)
}

func TestProcessAndRedistribute(t *testing.T) {
	rec := &recorder{}
	core, logs := observer.New(zapcore.InfoLevel)
	svc, store := newTestService(t, Options{Ledger: rec})
	svc.logger = zap.New(core)
	ctx := context.Background()

	session, _, err := svc.Upload(ctx, "inventaire.csv", strings.NewReader(sampleExport))
	require.NoError(t, err)

	summary, err := svc.Process(ctx, session.ID, strings.NewReader(sampleCounts), models.StrategyFIFO)
	require.NoError(t, err)

	// ARTA: -20, ARTB: -10 on the counted lot and +7 as LOTECART.
	assert.Equal(t, "-23", summary.TotalDiscrepancy.String())
	assert.Equal(t, 3, summary.AdjustedItems)
	assert.Equal(t, 1, summary.LotecartLines)
	require.NotEmpty(t, summary.Issues)
	assert.Equal(t, models.StageCounts, summary.Issues[0].Stage)

	stored, err := svc.Session(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, stored.Status)
	assert.Equal(t, models.StrategyFIFO, stored.StrategyUsed)
	assert.Equal(t, "inventaire_corrige_sess0001.csv", filepath.Base(stored.FinalFilePath))

	fifo, err := os.ReadFile(stored.FinalFilePath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(fifo)), "\n")
	require.Len(t, lines, 7)
	assert.True(t, strings.HasPrefix(lines[0], "E;"))
	assert.Contains(t, lines[2], ";30;50;1;ARTA;")
	assert.Contains(t, lines[6], ";LOTECART")

	declaredBefore, err := store.LoadDataset(ctx, session.ID, repository.DatasetDeclared)
	require.NoError(t, err)

	_, err = svc.Run(ctx, session.ID, models.StrategyLIFO)
	require.NoError(t, err)

	declaredAfter, err := store.LoadDataset(ctx, session.ID, repository.DatasetDeclared)
	require.NoError(t, err)
	assert.Equal(t, declaredBefore, declaredAfter)

	lifo, err := os.ReadFile(stored.FinalFilePath)
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(string(lifo)), "\n")
	assert.Contains(t, lines[2], ";50;50;1;ARTA;")
	assert.Contains(t, lines[4], ";0;0;2;ARTA;")

	dist, err := svc.LastDistribution(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyLIFO, dist.Strategy)
	assert.Len(t, dist.Lotecart, 1)

	assert.Equal(t, []string{session.ID, session.ID}, rec.sessions)
	assert.Equal(t, 2, logs.FilterMessage("run completed").Len())

	entries, err := os.ReadDir(filepath.Dir(stored.FinalFilePath))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestProcessRejectsUnreadableCounts(t *testing.T) {
	svc, store := newTestService(t, Options{})
	ctx := context.Background()

	session, _, err := svc.Upload(ctx, "inventaire.csv", strings.NewReader(sampleExport))
	require.NoError(t, err)

	_, err = svc.Process(ctx, session.ID, strings.NewReader("nothing;useful\n1;2\n"), models.StrategyFIFO)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnreadableInput))

	_, err = store.LoadDataset(ctx, session.ID, repository.DatasetDeclared)
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	stored, err := svc.Session(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionTemplateGenerated, stored.Status)
	assert.Empty(t, stored.FinalFilePath)
}

func TestProcessRejectsUnknownStrategy(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	session, _, err := svc.Upload(ctx, "inventaire.csv", strings.NewReader(sampleExport))
	require.NoError(t, err)

	_, err = svc.Process(ctx, session.ID, strings.NewReader(sampleCounts), models.Strategy("RANDOM"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidStrategy))
}

func TestRunWithoutDeclaredCounts(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	session, _, err := svc.Upload(ctx, "inventaire.csv", strings.NewReader(sampleExport))
	require.NoError(t, err)

	_, err = svc.Run(ctx, session.ID, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMissingSessionData))

	var missing *apperrors.MissingDataError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, repository.DatasetDeclared, missing.Dataset)

	stored, err := svc.Session(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionError, stored.Status)

	_, err = svc.ArtifactPath(ctx, session.ID, ArtifactFinal)
	assert.True(t, errors.Is(err, apperrors.ErrMissingSessionData))
}

func TestRunUnknownSession(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	_, err := svc.Run(context.Background(), "nope", models.StrategyFIFO)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestObserverFailuresDoNotFailRun(t *testing.T) {
	rec := &recorder{err: errors.New("sheet offline")}
	svc, _ := newTestService(t, Options{Ledger: rec, Notifier: rec})
	ctx := context.Background()

	session, _, err := svc.Upload(ctx, "inventaire.csv", strings.NewReader(sampleExport))
	require.NoError(t, err)

	_, err = svc.Process(ctx, session.ID, strings.NewReader(sampleCounts), "")
	require.NoError(t, err)
	assert.Len(t, rec.sessions, 2)
}

func TestArtifactPath(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	session, _, err := svc.Upload(ctx, "inventaire.csv", strings.NewReader(sampleExport))
	require.NoError(t, err)

	path, err := svc.ArtifactPath(ctx, session.ID, ArtifactTemplate)
	require.NoError(t, err)
	assert.Equal(t, session.TemplateFilePath, path)

	_, err = svc.ArtifactPath(ctx, session.ID, "secrets")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestDeleteAndPurge(t *testing.T) {
	svc, store := newTestService(t, Options{})
	ctx := context.Background()

	base := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	old, _, err := svc.Upload(ctx, "old.csv", strings.NewReader(sampleExport))
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(70 * time.Hour) }
	recent, _, err := svc.Upload(ctx, "recent.csv", strings.NewReader(sampleExport))
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(73 * time.Hour) }
	purged, err := svc.PurgeExpired(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = store.GetSession(ctx, old.ID)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
	_, err = os.Stat(old.TemplateFilePath)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(old.OriginalFilePath)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, svc.Delete(ctx, recent.ID))
	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.True(t, errors.Is(svc.Delete(ctx, recent.ID), repository.ErrNotFound))
}

func TestRunHistory(t *testing.T) {
	rec := &recorder{}
	svc, _ := newTestService(t, Options{Ledger: rec})
	ctx := context.Background()

	session, _, err := svc.Upload(ctx, "inventaire.csv", strings.NewReader(sampleExport))
	require.NoError(t, err)
	_, err = svc.Process(ctx, session.ID, strings.NewReader(sampleCounts), models.StrategyFIFO)
	require.NoError(t, err)
	_, err = svc.Run(ctx, session.ID, models.StrategyLIFO)
	require.NoError(t, err)

	entries, err := svc.RunHistory(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.StrategyFIFO, entries[0].Strategy)
	assert.Equal(t, models.StrategyLIFO, entries[1].Strategy)

	_, err = svc.RunHistory(ctx, "nope")
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	rec.err = errors.New("sheet offline")
	_, err = svc.RunHistory(ctx, session.ID)
	assert.ErrorContains(t, err, "sheet offline")
}

func TestRunHistoryWithoutLedger(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	session, _, err := svc.Upload(ctx, "inventaire.csv", strings.NewReader(sampleExport))
	require.NoError(t, err)

	_, err = svc.RunHistory(ctx, session.ID)
	assert.True(t, errors.Is(err, apperrors.ErrLedgerUnavailable))
}
