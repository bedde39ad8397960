//go:build integration

package schedule

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/repository"
	"guu-schedule-bot/internal/repository/batch"
	"guu-schedule-bot/internal/repository/group"
	database "guu-schedule-bot/pkg"
	pkgerrors "guu-schedule-bot/pkg/errors"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatal(err)
	}
	if err := database.RunMigrations(db.DB, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`TRUNCATE schedule_entries, ingestion_batches`); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newBatch(fp byte) *models.IngestionBatch {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.IngestionBatch{
		ID:          uuid.NewString(),
		Provenance:  models.ProvenanceFileUpload,
		SourceName:  "schedule.xlsx",
		Fingerprint: models.Fingerprint{fp},
		Outcome:     models.OutcomeSucceeded,
		StartedAt:   now,
		FinishedAt:  now,
	}
}

func entry(b *models.IngestionBatch, group string, day models.Day, start models.Clock, subject string) models.ScheduleEntry {
	return models.ScheduleEntry{
		Group:       group,
		Day:         day,
		Start:       start,
		End:         start + 90,
		Subject:     subject,
		BatchID:     b.ID,
		Fingerprint: b.Fingerprint,
	}
}

func TestReplaceScopes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewScheduleRepository(db)
	mon := models.WeekdayDay(time.Monday)
	tue := models.WeekdayDay(time.Tuesday)

	b1 := newBatch(1)
	first := []models.ScheduleEntry{
		entry(b1, "иу1-21", mon, models.NewClock(10, 45), "physics"),
		entry(b1, "иу1-21", mon, models.NewClock(9, 0), "math"),
		entry(b1, "иу1-21", tue, models.NewClock(9, 0), "history"),
	}
	n, err := repo.ReplaceScopes(ctx, b1, models.ScopesOf(first), first)
	if err != nil || n != 3 {
		t.Fatalf("ReplaceScopes = %d, %v", n, err)
	}

	got, err := repo.EntriesFor(ctx, "иу1-21", mon)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Subject != "math" || got[1].Subject != "physics" {
		t.Fatalf("monday entries = %+v", got)
	}
	if got[0].Fingerprint != b1.Fingerprint || got[0].BatchID != b1.ID {
		t.Errorf("provenance not stored: %+v", got[0])
	}

	// второй батч заменяет только понедельник
	b2 := newBatch(2)
	second := []models.ScheduleEntry{entry(b2, "иу1-21", mon, models.NewClock(12, 0), "chemistry")}
	if _, err := repo.ReplaceScopes(ctx, b2, models.ScopesOf(second), second); err != nil {
		t.Fatal(err)
	}

	got, _ = repo.EntriesFor(ctx, "иу1-21", mon)
	if len(got) != 1 || got[0].Subject != "chemistry" {
		t.Errorf("monday after replace = %+v", got)
	}
	got, _ = repo.EntriesFor(ctx, "иу1-21", tue)
	if len(got) != 1 || got[0].Subject != "history" {
		t.Errorf("tuesday must stay untouched, got %+v", got)
	}

	groups, err := group.NewGroupRepository(db).ListGroups(ctx)
	if err != nil || len(groups) != 1 || groups[0].Entries != 2 {
		t.Errorf("ListGroups = %+v, %v", groups, err)
	}
}

func TestReplaceScopesDuplicateFingerprint(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewScheduleRepository(db)
	day := models.DateDay(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))

	b1 := newBatch(7)
	entries := []models.ScheduleEntry{entry(b1, "иу1-21", day, models.NewClock(9, 0), "math")}
	if _, err := repo.ReplaceScopes(ctx, b1, models.ScopesOf(entries), entries); err != nil {
		t.Fatal(err)
	}

	b2 := newBatch(7)
	again := []models.ScheduleEntry{entry(b2, "иу1-21", day, models.NewClock(9, 0), "other")}
	_, err := repo.ReplaceScopes(ctx, b2, models.ScopesOf(again), again)
	if !errors.Is(err, repository.ErrDuplicateFingerprint) {
		t.Fatalf("err = %v, want ErrDuplicateFingerprint", err)
	}

	got, _ := repo.EntriesFor(ctx, "иу1-21", day)
	if len(got) != 1 || got[0].Subject != "math" {
		t.Errorf("rolled back transaction changed entries: %+v", got)
	}
}

func TestBatchJournal(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	batches := batch.NewBatchRepository(db)

	ok := newBatch(3)
	if err := batches.Create(ctx, ok); err != nil {
		t.Fatal(err)
	}
	failed := newBatch(0)
	failed.Fingerprint = models.Fingerprint{}
	failed.Outcome = models.OutcomeFailed
	failed.FailureReason = "source unavailable"
	failed.StartedAt = ok.StartedAt.Add(time.Second)
	if err := batches.Create(ctx, failed); err != nil {
		t.Fatal(err)
	}

	found, err := batches.FindSucceeded(ctx, ok.Fingerprint)
	if err != nil || found == nil || found.ID != ok.ID {
		t.Fatalf("FindSucceeded = %+v, %v", found, err)
	}
	missing, err := batches.FindSucceeded(ctx, models.Fingerprint{9})
	if err != nil || missing != nil {
		t.Errorf("FindSucceeded(unknown) = %+v, %v", missing, err)
	}

	recent, err := batches.ListRecent(ctx, 10)
	if err != nil || len(recent) != 2 || recent[0].ID != failed.ID {
		t.Fatalf("ListRecent = %+v, %v", recent, err)
	}
	if !recent[0].Fingerprint.IsZero() || recent[0].FailureReason != "source unavailable" {
		t.Errorf("failed batch = %+v", recent[0])
	}

	dup := newBatch(3)
	if err := batches.Create(ctx, dup); !errors.Is(err, repository.ErrDuplicateFingerprint) {
		t.Errorf("second succeeded batch err = %v", err)
	}
}

func subjects(entries []models.ScheduleEntry) string {
	var out string
	for _, e := range entries {
		out += e.Subject + ";"
	}
	return out
}

func TestReplaceScopesConcurrentRead(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	reader := NewScheduleRepository(db)
	mon := models.WeekdayDay(time.Monday)

	b1 := newBatch(11)
	old := []models.ScheduleEntry{
		entry(b1, "иу1-21", mon, models.NewClock(9, 0), "old-1"),
		entry(b1, "иу1-21", mon, models.NewClock(10, 45), "old-2"),
	}
	if _, err := reader.ReplaceScopes(ctx, b1, models.ScopesOf(old), old); err != nil {
		t.Fatal(err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	writer := &scheduleRepository{db: db, beforeCommit: func() {
		close(entered)
		<-release
	}}

	b2 := newBatch(12)
	fresh := []models.ScheduleEntry{
		entry(b2, "иу1-21", mon, models.NewClock(9, 0), "new-1"),
		entry(b2, "иу1-21", mon, models.NewClock(12, 0), "new-2"),
		entry(b2, "иу1-21", mon, models.NewClock(14, 0), "new-3"),
	}
	done := make(chan error, 1)
	go func() {
		_, err := writer.ReplaceScopes(ctx, b2, models.ScopesOf(fresh), fresh)
		done <- err
	}()
	<-entered

	// транзакция удалила и вставила строки, но не зафиксирована
	got, err := reader.EntriesFor(ctx, "иу1-21", mon)
	if err != nil {
		t.Fatal(err)
	}
	if s := subjects(got); s != "old-1;old-2;" {
		t.Errorf("read during replace = %s, want the full pre-batch set", s)
	}

	// пересекающаяся область занята, соседняя свободна
	b3 := newBatch(13)
	overlap := []models.ScheduleEntry{entry(b3, "иу1-21", mon, models.NewClock(16, 0), "x")}
	if _, err := reader.ReplaceScopes(ctx, b3, models.ScopesOf(overlap), overlap); !errors.Is(err, pkgerrors.ErrReconciliationBusy) {
		t.Errorf("overlapping replace err = %v, want ErrReconciliationBusy", err)
	}
	b4 := newBatch(14)
	other := []models.ScheduleEntry{entry(b4, "иу1-22", mon, models.NewClock(9, 0), "other")}
	if _, err := reader.ReplaceScopes(ctx, b4, models.ScopesOf(other), other); err != nil {
		t.Errorf("disjoint replace failed: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	got, _ = reader.EntriesFor(ctx, "иу1-21", mon)
	if s := subjects(got); s != "new-1;new-2;new-3;" {
		t.Errorf("read after commit = %s, want the full post-batch set", s)
	}
}
