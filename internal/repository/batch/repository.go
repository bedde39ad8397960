package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/repository"
)

const succeededFingerprintIndex = "ingestion_batches_succeeded_fingerprint_uq"

type batchRepository struct {
	db *sqlx.DB
}

func NewBatchRepository(db *sqlx.DB) repository.BatchRepository {
	return &batchRepository{db: db}
}

type batchRow struct {
	ID             string    `db:"id"`
	Provenance     string    `db:"provenance"`
	SourceName     string    `db:"source_name"`
	Fingerprint    string    `db:"fingerprint"`
	Outcome        string    `db:"outcome"`
	FailureReason  string    `db:"failure_reason"`
	RowsParsed     int       `db:"rows_parsed"`
	RowsRejected   int       `db:"rows_rejected"`
	EntriesWritten int       `db:"entries_written"`
	StartedAt      time.Time `db:"started_at"`
	FinishedAt     time.Time `db:"finished_at"`
}

func toRow(b *models.IngestionBatch) batchRow {
	row := batchRow{
		ID:             b.ID,
		Provenance:     string(b.Provenance),
		SourceName:     b.SourceName,
		Outcome:        string(b.Outcome),
		FailureReason:  b.FailureReason,
		RowsParsed:     b.RowsParsed,
		RowsRejected:   b.RowsRejected,
		EntriesWritten: b.EntriesWritten,
		StartedAt:      b.StartedAt,
		FinishedAt:     b.FinishedAt,
	}
	if !b.Fingerprint.IsZero() {
		row.Fingerprint = b.Fingerprint.String()
	}
	return row
}

func (r batchRow) toModel() (models.IngestionBatch, error) {
	fp, err := models.ParseFingerprint(r.Fingerprint)
	if err != nil {
		return models.IngestionBatch{}, err
	}
	return models.IngestionBatch{
		ID:             r.ID,
		Provenance:     models.Provenance(r.Provenance),
		SourceName:     r.SourceName,
		Fingerprint:    fp,
		Outcome:        models.Outcome(r.Outcome),
		FailureReason:  r.FailureReason,
		RowsParsed:     r.RowsParsed,
		RowsRejected:   r.RowsRejected,
		EntriesWritten: r.EntriesWritten,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}, nil
}

const insertQuery = `
	INSERT INTO ingestion_batches
	(id, provenance, source_name, fingerprint, outcome, failure_reason,
	 rows_parsed, rows_rejected, entries_written, started_at, finished_at)
	VALUES (:id, :provenance, :source_name, :fingerprint, :outcome, :failure_reason,
	 :rows_parsed, :rows_rejected, :entries_written, :started_at, :finished_at)
`

// Insert пишет батч через db или открытую транзакцию.
// Повторный успешный отпечаток превращается в repository.ErrDuplicateFingerprint.
func Insert(ctx context.Context, e sqlx.ExtContext, b *models.IngestionBatch) error {
	if _, err := sqlx.NamedExecContext(ctx, e, insertQuery, toRow(b)); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == succeededFingerprintIndex {
			return repository.ErrDuplicateFingerprint
		}
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (r *batchRepository) Create(ctx context.Context, b *models.IngestionBatch) error {
	return Insert(ctx, r.db, b)
}

const selectColumns = `
	SELECT id, provenance, source_name, fingerprint, outcome, failure_reason,
	       rows_parsed, rows_rejected, entries_written, started_at, finished_at
	FROM ingestion_batches
`

func (r *batchRepository) FindSucceeded(ctx context.Context, fp models.Fingerprint) (*models.IngestionBatch, error) {
	return r.getOne(ctx, selectColumns+` WHERE fingerprint = $1 AND outcome = $2`, fp.String(), models.OutcomeSucceeded)
}

func (r *batchRepository) GetByID(ctx context.Context, id string) (*models.IngestionBatch, error) {
	return r.getOne(ctx, selectColumns+` WHERE id = $1`, id)
}

func (r *batchRepository) getOne(ctx context.Context, query string, args ...any) (*models.IngestionBatch, error) {
	var row batchRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	b, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *batchRepository) ListRecent(ctx context.Context, limit int) ([]models.IngestionBatch, error) {
	var rows []batchRow
	if err := r.db.SelectContext(ctx, &rows, selectColumns+` ORDER BY started_at DESC LIMIT $1`, limit); err != nil {
		return nil, err
	}

	batches := make([]models.IngestionBatch, 0, len(rows))
	for _, row := range rows {
		b, err := row.toModel()
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}
