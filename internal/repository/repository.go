package repository

import (
	"context"
	"errors"

	"guu-schedule-bot/internal/models"
)

// ErrDuplicateFingerprint: успешный батч с таким отпечатком уже записан.
var ErrDuplicateFingerprint = errors.New("succeeded batch with this fingerprint already exists")

type ScheduleRepository interface {
	// ReplaceScopes в одной транзакции записывает батч в журнал, удаляет занятия
	// в областях scopes и вставляет entries. Возвращает число вставленных занятий.
	ReplaceScopes(ctx context.Context, batch *models.IngestionBatch, scopes []models.Scope, entries []models.ScheduleEntry) (int, error)
	// EntriesFor возвращает занятия группы в день, по времени начала.
	EntriesFor(ctx context.Context, group string, day models.Day) ([]models.ScheduleEntry, error)
}

type GroupRepository interface {
	ListGroups(ctx context.Context) ([]models.Group, error)
}

type BatchRepository interface {
	Create(ctx context.Context, batch *models.IngestionBatch) error
	// FindSucceeded возвращает nil, nil, если успешного батча с отпечатком нет.
	FindSucceeded(ctx context.Context, fp models.Fingerprint) (*models.IngestionBatch, error)
	GetByID(ctx context.Context, id string) (*models.IngestionBatch, error)
	ListRecent(ctx context.Context, limit int) ([]models.IngestionBatch, error)
}
