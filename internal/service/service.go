package service

import (
	"context"
	"time"

	"guu-schedule-bot/internal/models"
)

// ScheduleService: чтение расписания для бота и HTTP API.
type ScheduleService interface {
	EntriesFor(ctx context.Context, group string, day models.Day) ([]models.ScheduleEntry, error)
	Day(ctx context.Context, group string, date time.Time) ([]models.ScheduleEntry, error)
	Week(ctx context.Context, group string, date time.Time) ([]models.DaySchedule, error)
	Groups(ctx context.Context) ([]models.Group, error)
	HasGroup(ctx context.Context, group string) (bool, error)
}

// IngestService: ручной импорт для администраторов.
type IngestService interface {
	ImportUpload(ctx context.Context, name string, content []byte) (*models.IngestionResult, error)
	ImportSheet(ctx context.Context, shareURL string) (*models.IngestionResult, error)
	RecentBatches(ctx context.Context, limit int) ([]models.IngestionBatch, error)
}

// SyncService: синхронизация с сайтом университета.
type SyncService interface {
	ForceSync(ctx context.Context) (*models.SyncReport, error)
	LastScheduledRun() (models.SyncRun, bool)
	LastForcedRun() (models.SyncRun, bool)
	NextRun() time.Time
	Running() bool
}
