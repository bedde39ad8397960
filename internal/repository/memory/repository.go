// Package memory хранит расписание в памяти процесса. Используется для
// storage.driver=memory и в тестах; реализует те же интерфейсы, что и Postgres.
package memory

import (
	"context"
	"sort"
	"sync"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/repository"
)

type Store struct {
	mu      sync.RWMutex
	entries map[string][]models.ScheduleEntry // ключ: Scope.Key()
	batches []models.IngestionBatch

	// hook вызывается внутри ReplaceScopes под блокировкой записи; нужен тестам
	hook func()
}

var (
	_ repository.ScheduleRepository = (*Store)(nil)
	_ repository.GroupRepository    = (*Store)(nil)
	_ repository.BatchRepository    = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{entries: make(map[string][]models.ScheduleEntry)}
}

// SetReplaceHook задаёт функцию, вызываемую посреди замены областей.
func (s *Store) SetReplaceHook(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

func (s *Store) ReplaceScopes(_ context.Context, b *models.IngestionBatch, scopes []models.Scope, entries []models.ScheduleEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Outcome == models.OutcomeSucceeded && s.hasSucceeded(b.Fingerprint) {
		return 0, repository.ErrDuplicateFingerprint
	}

	for _, sc := range scopes {
		delete(s.entries, sc.Key())
	}
	if s.hook != nil {
		s.hook()
	}
	for _, e := range entries {
		key := e.Scope().Key()
		s.entries[key] = append(s.entries[key], e)
	}
	s.batches = append(s.batches, *b)
	return len(entries), nil
}

func (s *Store) EntriesFor(_ context.Context, group string, day models.Day) ([]models.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.entries[models.Scope{Group: group, Day: day}.Key()]
	out := make([]models.ScheduleEntry, len(stored))
	copy(out, stored)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (s *Store) ListGroups(_ context.Context) ([]models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, entries := range s.entries {
		for _, e := range entries {
			counts[e.Group]++
		}
	}
	groups := make([]models.Group, 0, len(counts))
	for code, n := range counts {
		groups = append(groups, models.Group{Code: code, Entries: n})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Code < groups[j].Code })
	return groups, nil
}

func (s *Store) Create(_ context.Context, b *models.IngestionBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Outcome == models.OutcomeSucceeded && s.hasSucceeded(b.Fingerprint) {
		return repository.ErrDuplicateFingerprint
	}
	s.batches = append(s.batches, *b)
	return nil
}

func (s *Store) FindSucceeded(_ context.Context, fp models.Fingerprint) (*models.IngestionBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.batches {
		if s.batches[i].Outcome == models.OutcomeSucceeded && s.batches[i].Fingerprint == fp {
			b := s.batches[i]
			return &b, nil
		}
	}
	return nil, nil
}

func (s *Store) GetByID(_ context.Context, id string) (*models.IngestionBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.batches {
		if s.batches[i].ID == id {
			b := s.batches[i]
			return &b, nil
		}
	}
	return nil, nil
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]models.IngestionBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.IngestionBatch, 0, min(limit, len(s.batches)))
	for i := len(s.batches) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.batches[i])
	}
	return out, nil
}

// Snapshot возвращает все занятия, упорядоченные по группе, дню и времени.
func (s *Store) Snapshot() []models.ScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.ScheduleEntry
	for _, entries := range s.entries {
		all = append(all, entries...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Group != all[j].Group {
			return all[i].Group < all[j].Group
		}
		if all[i].Day.Key() != all[j].Day.Key() {
			return all[i].Day.Key() < all[j].Day.Key()
		}
		return all[i].Start < all[j].Start
	})
	return all
}

func (s *Store) hasSucceeded(fp models.Fingerprint) bool {
	for _, b := range s.batches {
		if b.Outcome == models.OutcomeSucceeded && b.Fingerprint == fp {
			return true
		}
	}
	return false
}
