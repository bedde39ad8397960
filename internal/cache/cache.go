// Package cache кэширует ответы на запросы расписания по дням.
package cache

import (
	"context"

	"guu-schedule-bot/internal/models"
)

// Generation: поколение кэша группы. Растёт при каждом изменении её занятий.
type Generation int64

// NoGeneration: поколение не удалось прочитать, записывать в кэш нельзя.
const NoGeneration Generation = -1

// Cache: кэш занятий группы по дням. Ошибки кэша не должны ломать запрос,
// поэтому методы их не возвращают.
type Cache interface {
	// GetDay возвращает поколение группы и при промахе: его нужно передать в SetDay.
	GetDay(ctx context.Context, group string, day models.Day) ([]models.ScheduleEntry, Generation, bool)
	// SetDay записывает день, только если поколение группы всё ещё gen.
	SetDay(ctx context.Context, group string, day models.Day, gen Generation, entries []models.ScheduleEntry)
	// ScopesChanged сбрасывает кэш групп, затронутых батчем.
	ScopesChanged(ctx context.Context, scopes []models.Scope)
}

// Nop: кэш, который ничего не хранит.
type Nop struct{}

func (Nop) GetDay(context.Context, string, models.Day) ([]models.ScheduleEntry, Generation, bool) {
	return nil, NoGeneration, false
}

func (Nop) SetDay(context.Context, string, models.Day, Generation, []models.ScheduleEntry) {}

func (Nop) ScopesChanged(context.Context, []models.Scope) {}

// groupsOf возвращает различные группы областей.
func groupsOf(scopes []models.Scope) []string {
	seen := make(map[string]struct{}, len(scopes))
	var groups []string
	for _, sc := range scopes {
		if _, ok := seen[sc.Group]; ok {
			continue
		}
		seen[sc.Group] = struct{}{}
		groups = append(groups, sc.Group)
	}
	return groups
}
