// Package reconcile: единственный писатель занятий и журнала батчей.
// Заменяет занятия целиком по областям (группа, день) в одной транзакции.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/repository"
	pkgerrors "guu-schedule-bot/pkg/errors"
)

// Listener получает области, изменённые успешно зафиксированным батчем.
type Listener interface {
	ScopesChanged(ctx context.Context, scopes []models.Scope)
}

type Reconciler struct {
	schedule repository.ScheduleRepository
	batches  repository.BatchRepository
	locks    *KeyLocker
	log      *zap.Logger

	mu        sync.RWMutex
	listeners []Listener
}

func NewReconciler(schedule repository.ScheduleRepository, batches repository.BatchRepository, log *zap.Logger) *Reconciler {
	return &Reconciler{
		schedule: schedule,
		batches:  batches,
		locks:    NewKeyLocker(),
		log:      log.Named("reconcile"),
	}
}

func (r *Reconciler) AddListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Reconcile заменяет занятия в областях батча и записывает батч как успешный.
// Если хотя бы одна область занята другим батчем, возвращает ErrReconciliationBusy
// и ничего не меняет.
func (r *Reconciler) Reconcile(ctx context.Context, b *models.IngestionBatch, entries []models.ScheduleEntry) (int, error) {
	entries = dedupeSlots(entries)
	scopes := models.ScopesOf(entries)

	keys := make([]string, len(scopes))
	for i, sc := range scopes {
		keys[i] = "scope:" + sc.Key()
	}
	unlock, ok := r.locks.TryLock(keys...)
	if !ok {
		return 0, fmt.Errorf("batch %s: %w", b.ID, pkgerrors.ErrReconciliationBusy)
	}
	defer unlock()

	b.Outcome = models.OutcomeSucceeded
	b.EntriesWritten = len(entries)
	b.FinishedAt = time.Now().UTC()

	written, err := r.schedule.ReplaceScopes(ctx, b, scopes, entries)
	if err != nil {
		return 0, err
	}
	b.EntriesWritten = written

	r.log.Info("✅ Расписание обновлено",
		zap.String("batch_id", b.ID),
		zap.Int("scope_count", len(scopes)),
		zap.Int("entries", written),
	)
	r.notify(ctx, scopes)
	return written, nil
}

// Record дописывает в журнал батч без изменения занятий (дубликат или ошибка).
func (r *Reconciler) Record(ctx context.Context, b *models.IngestionBatch) error {
	if b.FinishedAt.IsZero() {
		b.FinishedAt = time.Now().UTC()
	}
	if err := r.batches.Create(ctx, b); err != nil {
		return fmt.Errorf("record batch %s: %w", b.ID, err)
	}
	return nil
}

func (r *Reconciler) notify(ctx context.Context, scopes []models.Scope) {
	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()

	for _, l := range listeners {
		l.ScopesChanged(ctx, scopes)
	}
}

// dedupeSlots оставляет по одному занятию на (группа, день, начало): побеждает последнее.
func dedupeSlots(entries []models.ScheduleEntry) []models.ScheduleEntry {
	pos := make(map[string]int, len(entries))
	out := make([]models.ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		if i, ok := pos[e.SlotKey()]; ok {
			out[i] = e
			continue
		}
		pos[e.SlotKey()] = len(out)
		out = append(out, e)
	}
	return out
}
