// Package ingest_service проводит один источник через весь конвейер:
// отпечаток → проверка дубликата → разбор → нормализация → запись.
package ingest_service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/repository"
	"guu-schedule-bot/internal/service/fingerprint"
	"guu-schedule-bot/internal/service/normalizer"
	"guu-schedule-bot/internal/service/parser"
	"guu-schedule-bot/internal/service/reconcile"
	pkgerrors "guu-schedule-bot/pkg/errors"
)

// Writer: запись результатов батча (реализуется reconcile.Reconciler).
type Writer interface {
	Reconcile(ctx context.Context, b *models.IngestionBatch, entries []models.ScheduleEntry) (int, error)
	Record(ctx context.Context, b *models.IngestionBatch) error
}

type WebsiteFetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]models.Document, error)
}

type SheetFetcher interface {
	Fetch(ctx context.Context, shareURL string) (models.Document, error)
}

type Service struct {
	hasher      *fingerprint.Hasher
	batches     repository.BatchRepository
	writer      Writer
	website     WebsiteFetcher
	sheet       SheetFetcher
	scheduleURL string
	inflight    *reconcile.KeyLocker
	log         *zap.Logger
	now         func() time.Time
}

type Options struct {
	Hasher      *fingerprint.Hasher
	Batches     repository.BatchRepository
	Writer      Writer
	Website     WebsiteFetcher
	Sheet       SheetFetcher
	ScheduleURL string
	Logger      *zap.Logger
}

func NewService(opts Options) *Service {
	hasher := opts.Hasher
	if hasher == nil {
		hasher = fingerprint.NewHasher(fingerprint.DefaultMaxSize)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		hasher:      hasher,
		batches:     opts.Batches,
		writer:      opts.Writer,
		website:     opts.Website,
		sheet:       opts.Sheet,
		scheduleURL: opts.ScheduleURL,
		inflight:    reconcile.NewKeyLocker(),
		log:         log.Named("ingest"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func newBatchID() string {
	return uuid.NewString()
}

// Ingest обрабатывает один батч. При ошибке возвращается и результат со статусом
// failed, и сама ошибка; батч в любом случае попадает в журнал.
func (s *Service) Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestionResult, error) {
	b := &models.IngestionBatch{
		ID:         newBatchID(),
		Provenance: req.Provenance,
		SourceName: req.SourceName,
		StartedAt:  s.now(),
	}
	res := &models.IngestionResult{BatchID: b.ID, SourceName: req.SourceName}
	log := s.log.With(
		zap.String("batch_id", b.ID),
		zap.String("provenance", string(req.Provenance)),
		zap.String("source", req.SourceName),
	)
	log.Info("📦 Батч получен", zap.String("state", string(models.StateReceived)), zap.Int("bytes", len(req.Content)))

	fp, err := s.hasher.Sum(req.Content)
	if err != nil {
		return s.fail(ctx, log, b, res, err)
	}
	b.Fingerprint = fp
	res.Fingerprint = fp
	log = log.With(zap.String("fingerprint", fp.String()))
	log.Debug("Отпечаток посчитан", zap.String("state", string(models.StateFingerprinted)))

	unlock, ok := s.inflight.TryLock("fingerprint:" + fp.String())
	if !ok {
		return s.fail(ctx, log, b, res, fmt.Errorf("identical content in flight: %w", pkgerrors.ErrReconciliationBusy))
	}
	defer unlock()

	existing, err := s.batches.FindSucceeded(ctx, fp)
	if err != nil {
		return s.fail(ctx, log, b, res, fmt.Errorf("lookup fingerprint: %w", err))
	}
	if existing != nil {
		log.Info("♻️ Файл уже импортирован", zap.String("state", string(models.StateDuplicate)), zap.String("original_batch_id", existing.ID))
		return s.duplicate(ctx, log, b, res)
	}

	log.Debug("Разбор", zap.String("state", string(models.StateParsing)))
	rows, err := parser.Parse(req.Content, req.FormatHint)
	if err != nil {
		return s.fail(ctx, log, b, res, err)
	}

	log.Debug("Нормализация", zap.String("state", string(models.StateNormalizing)), zap.Int("rows", len(rows)))
	norm := normalizer.Normalize(rows, models.BatchContext{BatchID: b.ID, Fingerprint: fp})
	b.RowsParsed = len(rows)
	b.RowsRejected = len(norm.Rejected)
	res.RowsParsed = len(rows)
	res.RowsAccepted = len(norm.Entries)
	res.RowsRejected = len(norm.Rejected)
	res.Rejected = norm.Rejected
	if len(norm.Entries) == 0 {
		return s.fail(ctx, log, b, res, fmt.Errorf("%d rows parsed: %w", len(rows), pkgerrors.ErrNoValidRows))
	}

	log.Debug("Запись", zap.String("state", string(models.StateReconciling)), zap.Int("entries", len(norm.Entries)))
	written, err := s.writer.Reconcile(ctx, b, norm.Entries)
	if errors.Is(err, repository.ErrDuplicateFingerprint) {
		log.Info("♻️ Такой же файл импортирован параллельно", zap.String("state", string(models.StateDuplicate)))
		return s.duplicate(ctx, log, b, res)
	}
	if err != nil {
		return s.fail(ctx, log, b, res, err)
	}

	res.Status = models.StatusCompleted
	res.EntriesWritten = written
	log.Info("✅ Батч импортирован",
		zap.String("state", string(models.StateCompleted)),
		zap.Int("rows_parsed", res.RowsParsed),
		zap.Int("rows_rejected", res.RowsRejected),
		zap.Int("entries_written", written),
	)
	return res, nil
}

func (s *Service) duplicate(ctx context.Context, log *zap.Logger, b *models.IngestionBatch, res *models.IngestionResult) (*models.IngestionResult, error) {
	b.Outcome = models.OutcomeSkippedDuplicate
	b.EntriesWritten = 0
	b.FinishedAt = s.now()
	if err := s.writer.Record(context.WithoutCancel(ctx), b); err != nil {
		log.Error("Не удалось записать батч в журнал", zap.Error(err))
	}
	res.Status = models.StatusDuplicate
	res.EntriesWritten = 0
	return res, nil
}

func (s *Service) fail(ctx context.Context, log *zap.Logger, b *models.IngestionBatch, res *models.IngestionResult, cause error) (*models.IngestionResult, error) {
	b.Outcome = models.OutcomeFailed
	b.FailureReason = cause.Error()
	b.EntriesWritten = 0
	b.FinishedAt = s.now()
	if err := s.writer.Record(context.WithoutCancel(ctx), b); err != nil {
		log.Error("Не удалось записать батч в журнал", zap.Error(err))
	}

	res.Status = models.StatusFailed
	res.EntriesWritten = 0
	res.Error = cause.Error()
	log.Warn("❌ Батч не импортирован",
		zap.String("state", string(models.StateFailed)),
		zap.String("advice", string(pkgerrors.AdviceFor(cause))),
		zap.Error(cause),
	)
	return res, cause
}
