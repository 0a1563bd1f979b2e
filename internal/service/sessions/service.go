// Package sessions drives an inventory through its lifecycle: upload of the
// theoretical export, counting template, declared counts, and the corrected
// export written back for the ERP.
package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/moulinette/internal/domain/lots"
	"github.com/mamadbah2/moulinette/internal/domain/models"
	"github.com/mamadbah2/moulinette/internal/repository"
	"github.com/mamadbah2/moulinette/internal/sagex3"
	"github.com/mamadbah2/moulinette/internal/service/reconciliation"
	apperrors "github.com/mamadbah2/moulinette/pkg/errors"
)

// Artifact kinds that can be downloaded.
const (
	ArtifactTemplate = "template"
	ArtifactFinal    = "final"
)

const (
	uploadsDir   = "uploads"
	templatesDir = "templates"
	completedDir = "completed"
	finalDir     = "final"
)

// RunLedger records finished runs somewhere outside the session store and
// reads them back.
type RunLedger interface {
	RecordRun(ctx context.Context, session models.Session, summary models.RunSummary) error
	History(ctx context.Context, sessionID string) ([]models.LedgerEntry, error)
}

// Notifier tells operators that a run finished.
type Notifier interface {
	NotifyRun(ctx context.Context, session models.Session, summary models.RunSummary) error
}

// Options configures a Service.
type Options struct {
	DataDir         string
	Encoding        string
	DefaultStrategy models.Strategy
	Classifier      *lots.Classifier
	Ledger          RunLedger
	Notifier        Notifier
}

// Service orchestrates sessions on top of a SessionStore.
type Service struct {
	store    repository.SessionStore
	engine   *reconciliation.Engine
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
	ledger   RunLedger
	notifier Notifier
}

// Distribution is what a run persists under DatasetDistributed.
type Distribution struct {
	Strategy    models.Strategy                `json:"strategy"`
	Adjustments []models.DistributedAdjustment `json:"adjustments"`
	Lotecart    []models.LotecartAdjustment    `json:"lotecart"`
	Summary     models.RunSummary              `json:"summary"`
}

// NewService wires a new sessions service and prepares its data directories.
func NewService(store repository.SessionStore, engine *reconciliation.Engine, opts Options, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = reconciliation.NewEngine(logger.Named("engine"))
	}
	if opts.DataDir == "" {
		return nil, errors.New("data directory must not be empty")
	}
	if opts.DefaultStrategy == "" {
		opts.DefaultStrategy = models.StrategyFIFO
	}
	if opts.Classifier == nil {
		opts.Classifier = lots.NewClassifier(nil)
	}

	for _, dir := range []string{uploadsDir, templatesDir, completedDir, finalDir} {
		if err := os.MkdirAll(filepath.Join(opts.DataDir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	return &Service{
		store:    store,
		engine:   engine,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.NewString()[:8] },
		ledger:   opts.Ledger,
		notifier: opts.Notifier,
	}, nil
}

// Upload stores a theoretical export, captures its headers and records, and
// generates the counting template. Rows that could not be used are returned.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*models.Session, []models.RowIssue, error) {
	now := s.now().UTC()
	session := models.Session{
		ID:               s.newID(),
		OriginalFilename: filepath.Base(filename),
		Status:           models.SessionUploaded,
		InventoryDate:    now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	log := s.logger.With(zap.String("session_id", session.ID))

	session.OriginalFilePath = filepath.Join(s.opts.DataDir, uploadsDir, session.ID+"_"+session.OriginalFilename)
	if err := writeFile(session.OriginalFilePath, r); err != nil {
		return nil, nil, fmt.Errorf("store upload: %w", err)
	}
	if err := s.store.SaveSession(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("save session: %w", err)
	}

	f, err := os.Open(session.OriginalFilePath)
	if err != nil {
		return nil, nil, s.fail(ctx, &session, fmt.Errorf("reopen upload: %w", err))
	}
	export, err := sagex3.ReadInventory(f, sagex3.ReadOptions{Encoding: s.opts.Encoding, Classifier: s.opts.Classifier})
	_ = f.Close()
	if err != nil {
		return nil, nil, s.fail(ctx, &session, err)
	}
	for _, issue := range export.Issues {
		log.Debug("skip row", zap.Int("line", issue.Line), zap.String("reason", issue.Reason))
	}

	payload, err := json.Marshal(export.Records)
	if err != nil {
		return nil, nil, s.fail(ctx, &session, fmt.Errorf("encode original dataset: %w", err))
	}
	if err := s.store.SaveDataset(ctx, session.ID, repository.DatasetOriginal, payload); err != nil {
		return nil, nil, s.fail(ctx, &session, fmt.Errorf("save original dataset: %w", err))
	}

	session.HeaderLines = export.Headers
	session.NbArticles, session.NbLots, session.TotalQuantity = exportStats(export.Records)

	session.TemplateFilePath = filepath.Join(s.opts.DataDir, templatesDir, fmt.Sprintf("%s_template_%s.csv", baseName(session.OriginalFilename), session.ID))
	err = writeAtomic(session.TemplateFilePath, func(w io.Writer) error {
		return sagex3.WriteTemplate(w, export.Records)
	})
	if err != nil {
		return nil, nil, s.fail(ctx, &session, fmt.Errorf("write template: %w", err))
	}

	session.Status = models.SessionTemplateGenerated
	session.UpdatedAt = s.now().UTC()
	if err := s.store.SaveSession(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("save session: %w", err)
	}

	log.Info("export uploaded",
		zap.String("filename", session.OriginalFilename),
		zap.Int("records", len(export.Records)),
		zap.Int("headers", len(export.Headers)),
		zap.Int("skipped", len(export.Issues)))

	return &session, export.Issues, nil
}

// Process stores the declared counts of a session and runs the pipeline.
// Counts that cannot be parsed leave the session untouched.
func (s *Service) Process(ctx context.Context, id string, counts io.Reader, strategy models.Strategy) (*models.RunSummary, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(counts)
	if err != nil {
		return nil, apperrors.NewUnreadableInputError("declared counts", err)
	}
	declared, issues, err := sagex3.ReadCounts(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if _, err := models.ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(declared)
	if err != nil {
		return nil, fmt.Errorf("encode declared dataset: %w", err)
	}
	if err := s.store.SaveDataset(ctx, id, repository.DatasetDeclared, payload); err != nil {
		return nil, fmt.Errorf("save declared dataset: %w", err)
	}

	session.CompletedFilePath = filepath.Join(s.opts.DataDir, completedDir, fmt.Sprintf("%s_counts.csv", id))
	if err := writeAtomic(session.CompletedFilePath, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return nil, fmt.Errorf("store declared counts: %w", err)
	}
	session.UpdatedAt = s.now().UTC()
	if err := s.store.SaveSession(ctx, *session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	summary, err := s.Run(ctx, id, strategy)
	if err != nil {
		return nil, err
	}
	summary.Issues = append(issues, summary.Issues...)
	return summary, nil
}

// Run recomputes the corrected export of a session from its stored datasets.
// Stored inputs are never modified, so it can be repeated with another strategy.
func (s *Service) Run(ctx context.Context, id string, strategy models.Strategy) (*models.RunSummary, error) {
	if strategy == "" {
		strategy = s.opts.DefaultStrategy
	}
	strategy, err := models.ParseStrategy(string(strategy))
	if err != nil {
		return nil, err
	}

	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("session_id", id), zap.String("strategy", string(strategy)))

	var originals []models.OriginalRecord
	if err := s.loadDataset(ctx, id, repository.DatasetOriginal, &originals); err != nil {
		return nil, s.fail(ctx, session, err)
	}
	var declared []models.DeclaredCount
	if err := s.loadDataset(ctx, id, repository.DatasetDeclared, &declared); err != nil {
		return nil, s.fail(ctx, session, err)
	}

	in := reconciliation.Input{Headers: session.HeaderLines, Originals: originals, Declared: declared}
	res, err := s.engine.Reconcile(in, strategy)
	if err != nil {
		return nil, s.fail(ctx, session, err)
	}

	finalPath := filepath.Join(s.opts.DataDir, finalDir, fmt.Sprintf("%s_corrige_%s.csv", baseName(session.OriginalFilename), id))
	var summary models.RunSummary
	err = writeAtomic(finalPath, func(w io.Writer) error {
		var werr error
		summary, werr = s.engine.Write(w, in, res)
		return werr
	})
	if err != nil {
		return nil, s.fail(ctx, session, fmt.Errorf("write corrected export: %w", err))
	}

	payload, err := json.Marshal(Distribution{
		Strategy:    strategy,
		Adjustments: res.Adjustments,
		Lotecart:    res.Lotecart,
		Summary:     summary,
	})
	if err != nil {
		return nil, s.fail(ctx, session, fmt.Errorf("encode distributed dataset: %w", err))
	}
	if err := s.store.SaveDataset(ctx, id, repository.DatasetDistributed, payload); err != nil {
		return nil, s.fail(ctx, session, fmt.Errorf("save distributed dataset: %w", err))
	}

	session.FinalFilePath = finalPath
	session.Status = models.SessionCompleted
	session.StrategyUsed = strategy
	session.TotalDiscrepancy = summary.TotalDiscrepancy
	session.AdjustedItems = summary.AdjustedItems
	session.LotecartLines = summary.LotecartLines
	session.LastError = ""
	session.UpdatedAt = s.now().UTC()
	if err := s.store.SaveSession(ctx, *session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	log.Info("run completed",
		zap.String("total_discrepancy", summary.TotalDiscrepancy.String()),
		zap.Int("adjusted_items", summary.AdjustedItems),
		zap.Int("lotecart_lines", summary.LotecartLines),
		zap.Int("issues", len(summary.Issues)))

	s.announce(ctx, *session, summary)
	return &summary, nil
}

// LastDistribution returns the adjustments persisted by the last run of a session.
func (s *Service) LastDistribution(ctx context.Context, id string) (*Distribution, error) {
	if _, err := s.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	var out Distribution
	if err := s.loadDataset(ctx, id, repository.DatasetDistributed, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunHistory returns every run of a session recorded in the ledger.
func (s *Service) RunHistory(ctx context.Context, id string) ([]models.LedgerEntry, error) {
	if _, err := s.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	if s.ledger == nil {
		return nil, apperrors.ErrLedgerUnavailable
	}
	entries, err := s.ledger.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("run history of session %s: %w", id, err)
	}
	return entries, nil
}

// Session returns the metadata of one session.
func (s *Service) Session(ctx context.Context, id string) (*models.Session, error) {
	return s.store.GetSession(ctx, id)
}

// List returns every session, newest first.
func (s *Service) List(ctx context.Context) ([]models.Session, error) {
	return s.store.ListSessions(ctx)
}

// Delete removes a session, its datasets and its files.
func (s *Service) Delete(ctx context.Context, id string) error {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return err
	}

	for _, path := range []string{session.OriginalFilePath, session.TemplateFilePath, session.CompletedFilePath, session.FinalFilePath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove session file", zap.String("session_id", id), zap.String("path", path), zap.Error(err))
		}
	}

	if err := s.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// PurgeExpired deletes sessions not updated within ttl and returns how many went.
func (s *Service) PurgeExpired(ctx context.Context, ttl time.Duration) (int, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	cutoff := s.now().UTC().Add(-ttl)
	purged := 0
	for _, session := range sessions {
		if !session.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.Delete(ctx, session.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return purged, fmt.Errorf("purge session %s: %w", session.ID, err)
		}
		purged++
	}
	return purged, nil
}

// ArtifactPath returns the file of the given kind for a session.
func (s *Service) ArtifactPath(ctx context.Context, id, kind string) (string, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return "", err
	}

	var path string
	switch kind {
	case ArtifactTemplate:
		path = session.TemplateFilePath
	case ArtifactFinal:
		path = session.FinalFilePath
	default:
		return "", fmt.Errorf("%w: artifact kind %q", repository.ErrNotFound, kind)
	}

	if path == "" {
		return "", apperrors.NewMissingDataError(id, kind)
	}
	if _, err := os.Stat(path); err != nil {
		return "", apperrors.NewMissingDataError(id, kind)
	}
	return path, nil
}

// Ping reports store health.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) loadDataset(ctx context.Context, id, name string, v any) error {
	payload, err := s.store.LoadDataset(ctx, id, name)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewMissingDataError(id, name)
	}
	if err != nil {
		return fmt.Errorf("load %s dataset: %w", name, err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode %s dataset: %w", name, err)
	}
	return nil
}

// fail marks the session as errored and returns cause unchanged.
func (s *Service) fail(ctx context.Context, session *models.Session, cause error) error {
	session.Status = models.SessionError
	session.LastError = cause.Error()
	session.UpdatedAt = s.now().UTC()
	if err := s.store.SaveSession(ctx, *session); err != nil {
		s.logger.Error("failed to mark session as errored", zap.String("session_id", session.ID), zap.Error(err))
	}
	s.logger.Warn("session failed", zap.String("session_id", session.ID), zap.Error(cause))
	return cause
}

func (s *Service) announce(ctx context.Context, session models.Session, summary models.RunSummary) {
	if s.ledger != nil {
		if err := s.ledger.RecordRun(ctx, session, summary); err != nil {
			s.logger.Error("failed to record run", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyRun(ctx, session, summary); err != nil {
			s.logger.Error("failed to notify run", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
}

func exportStats(records []models.OriginalRecord) (articles, lotCount int, total decimal.Decimal) {
	seenArticles := make(map[string]struct{})
	seenLots := make(map[models.Key]struct{})
	total = decimal.Zero
	for _, rec := range records {
		seenArticles[rec.Article] = struct{}{}
		if rec.Lot != "" {
			seenLots[rec.Key()] = struct{}{}
		}
		total = total.Add(rec.Theoretical)
	}
	return len(seenArticles), len(seenLots), total
}

func baseName(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	if base == "" {
		return "inventaire"
	}
	return base
}

func writeFile(path string, r io.Reader) error {
	return writeAtomic(path, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
}

// writeAtomic writes through a temp file in the target directory and renames
// it into place. Nothing is left behind when fill fails.
func writeAtomic(path string, fill func(w io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = fill(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
