package schedule

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/repository"
	"guu-schedule-bot/internal/repository/batch"
	pkgerrors "guu-schedule-bot/pkg/errors"
)

// insertChunk держит число параметров INSERT ниже лимита PostgreSQL (65535).
const insertChunk = 1000

type scheduleRepository struct {
	db *sqlx.DB

	// beforeCommit вызывается перед фиксацией транзакции; нужен тестам
	beforeCommit func()
}

func NewScheduleRepository(db *sqlx.DB) repository.ScheduleRepository {
	return &scheduleRepository{db: db}
}

type entryRow struct {
	GroupCode   string       `db:"group_code"`
	DayKey      string       `db:"day_key"`
	Weekday     int          `db:"weekday"`
	LessonDate  sql.NullTime `db:"lesson_date"`
	StartTime   models.Clock `db:"start_time"`
	EndTime     models.Clock `db:"end_time"`
	Subject     string       `db:"subject"`
	Room        string       `db:"room"`
	Instructor  string       `db:"instructor"`
	BatchID     string       `db:"batch_id"`
	Fingerprint string       `db:"fingerprint"`
}

func toRow(e models.ScheduleEntry) entryRow {
	row := entryRow{
		GroupCode:   e.Group,
		DayKey:      e.Day.Key(),
		Weekday:     int(e.Day.Weekday),
		StartTime:   e.Start,
		EndTime:     e.End,
		Subject:     e.Subject,
		Room:        e.Room,
		Instructor:  e.Instructor,
		BatchID:     e.BatchID,
		Fingerprint: e.Fingerprint.String(),
	}
	if e.Day.IsDate() {
		row.LessonDate = sql.NullTime{Time: e.Day.Date, Valid: true}
	}
	return row
}

func (r entryRow) toModel() (models.ScheduleEntry, error) {
	day, err := models.ParseDayKey(r.DayKey)
	if err != nil {
		return models.ScheduleEntry{}, err
	}
	fp, err := models.ParseFingerprint(r.Fingerprint)
	if err != nil {
		return models.ScheduleEntry{}, err
	}
	return models.ScheduleEntry{
		Group:       r.GroupCode,
		Day:         day,
		Start:       r.StartTime,
		End:         r.EndTime,
		Subject:     r.Subject,
		Room:        r.Room,
		Instructor:  r.Instructor,
		BatchID:     r.BatchID,
		Fingerprint: fp,
	}, nil
}

const insertEntriesQuery = `
	INSERT INTO schedule_entries
	(group_code, day_key, weekday, lesson_date, start_time, end_time,
	 subject, room, instructor, batch_id, fingerprint)
	VALUES (:group_code, :day_key, :weekday, :lesson_date, :start_time, :end_time,
	 :subject, :room, :instructor, :batch_id, :fingerprint)
`

func (r *scheduleRepository) ReplaceScopes(
	ctx context.Context,
	b *models.IngestionBatch,
	scopes []models.Scope,
	entries []models.ScheduleEntry,
) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Блокировки на время транзакции: другой процесс с пересекающейся областью получит отказ
	groups := make([]string, len(scopes))
	days := make([]string, len(scopes))
	for i, sc := range scopes {
		var locked bool
		// ключ из двух int4: группа и день
		if err := tx.GetContext(ctx, &locked, `SELECT pg_try_advisory_xact_lock(hashtext($1), hashtext($2))`, sc.Group, sc.Day.Key()); err != nil {
			return 0, fmt.Errorf("lock scope %s: %w", sc.Key(), err)
		}
		if !locked {
			return 0, fmt.Errorf("scope %s: %w", sc.Key(), pkgerrors.ErrReconciliationBusy)
		}
		groups[i] = sc.Group
		days[i] = sc.Day.Key()
	}

	if err := batch.Insert(ctx, tx, b); err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM schedule_entries
		WHERE (group_code, day_key) IN (
			SELECT * FROM unnest($1::text[], $2::text[])
		)`, pq.Array(groups), pq.Array(days))
	if err != nil {
		return 0, fmt.Errorf("delete scopes: %w", err)
	}

	written := 0
	for start := 0; start < len(entries); start += insertChunk {
		end := min(start+insertChunk, len(entries))
		rows := make([]entryRow, 0, end-start)
		for _, e := range entries[start:end] {
			rows = append(rows, toRow(e))
		}
		res, err := tx.NamedExecContext(ctx, insertEntriesQuery, rows)
		if err != nil {
			return 0, fmt.Errorf("insert entries: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		written += int(n)
	}

	if r.beforeCommit != nil {
		r.beforeCommit()
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

func (r *scheduleRepository) EntriesFor(ctx context.Context, group string, day models.Day) ([]models.ScheduleEntry, error) {
	query := `
		SELECT group_code, day_key, weekday, lesson_date, start_time, end_time,
		       subject, room, instructor, batch_id, fingerprint
		FROM schedule_entries
		WHERE group_code = $1 AND day_key = $2
		ORDER BY start_time ASC
	`

	var rows []entryRow
	if err := r.db.SelectContext(ctx, &rows, query, group, day.Key()); err != nil {
		return nil, err
	}

	entries := make([]models.ScheduleEntry, 0, len(rows))
	for _, row := range rows {
		e, err := row.toModel()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
