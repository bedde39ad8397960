package schedule_service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"guu-schedule-bot/internal/cache"
	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/repository"
)

// Дни недели, которые показывает Week: понедельник–суббота.
const weekLength = 6

type Service struct {
	schedule repository.ScheduleRepository
	groups   repository.GroupRepository
	cache    cache.Cache
	log      *zap.Logger
}

func NewService(schedule repository.ScheduleRepository, groups repository.GroupRepository, c cache.Cache, log *zap.Logger) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	return &Service{
		schedule: schedule,
		groups:   groups,
		cache:    c,
		log:      log.Named("schedule"),
	}
}

// EntriesFor возвращает занятия группы в день, упорядоченные по началу.
func (s *Service) EntriesFor(ctx context.Context, group string, day models.Day) ([]models.ScheduleEntry, error) {
	group = models.NormalizeGroup(group)
	entries, gen, ok := s.cache.GetDay(ctx, group, day)
	if ok {
		return entries, nil
	}

	entries, err := s.schedule.EntriesFor(ctx, group, day)
	if err != nil {
		return nil, err
	}
	// поколение из GetDay: если батч закоммитился после промаха, запись не попадёт в кэш
	s.cache.SetDay(ctx, group, day, gen, entries)
	return entries, nil
}

// Day возвращает занятия на дату: сначала занятия с явной датой,
// если их нет: еженедельные занятия этого дня недели.
func (s *Service) Day(ctx context.Context, group string, date time.Time) ([]models.ScheduleEntry, error) {
	dated, err := s.EntriesFor(ctx, group, models.DateDay(date))
	if err != nil {
		return nil, err
	}
	if len(dated) > 0 {
		return dated, nil
	}
	return s.EntriesFor(ctx, group, models.WeekdayDay(date.Weekday()))
}

// Week возвращает расписание с понедельника по субботу недели, в которую попадает date.
func (s *Service) Week(ctx context.Context, group string, date time.Time) ([]models.DaySchedule, error) {
	monday := WeekStart(date)
	week := make([]models.DaySchedule, 0, weekLength)
	for i := 0; i < weekLength; i++ {
		d := monday.AddDate(0, 0, i)
		entries, err := s.Day(ctx, group, d)
		if err != nil {
			return nil, err
		}
		week = append(week, models.DaySchedule{Date: d, Entries: entries})
	}
	return week, nil
}

func (s *Service) Groups(ctx context.Context) ([]models.Group, error) {
	return s.groups.ListGroups(ctx)
}

// HasGroup сообщает, есть ли у группы сохранённые занятия.
func (s *Service) HasGroup(ctx context.Context, group string) (bool, error) {
	group = models.NormalizeGroup(group)
	groups, err := s.groups.ListGroups(ctx)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if g.Code == group {
			return true, nil
		}
	}
	return false, nil
}

// WeekStart возвращает понедельник недели date (полночь в том же часовом поясе).
func WeekStart(date time.Time) time.Time {
	offset := (int(date.Weekday()) + 6) % 7
	d := date.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}
