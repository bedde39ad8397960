package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/models/config"
)

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedis(config.RedisConfig{Addr: mr.Addr(), TTL: time.Minute}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRedisGetSetDay(t *testing.T) {
	ctx := context.Background()
	c := newTestRedis(t)
	day := models.WeekdayDay(time.Monday)
	entries := []models.ScheduleEntry{{Group: "иу1-21", Day: day, Start: models.NewClock(9, 0), End: models.NewClock(10, 30), Subject: "math"}}

	_, gen, ok := c.GetDay(ctx, "иу1-21", day)
	if ok || gen != 0 {
		t.Fatalf("first GetDay = gen %d, hit %v", gen, ok)
	}
	c.SetDay(ctx, "иу1-21", day, gen, entries)

	got, _, ok := c.GetDay(ctx, "иу1-21", day)
	if !ok || len(got) != 1 || got[0] != entries[0] {
		t.Fatalf("GetDay = %+v, %v", got, ok)
	}

	c.ScopesChanged(ctx, []models.Scope{{Group: "иу1-21", Day: day}})
	if _, gen, ok := c.GetDay(ctx, "иу1-21", day); ok || gen != 1 {
		t.Errorf("after invalidation gen = %d, hit = %v", gen, ok)
	}
}

func TestRedisSetDayAfterCommitIsDropped(t *testing.T) {
	ctx := context.Background()
	c := newTestRedis(t)
	day := models.WeekdayDay(time.Monday)

	// читатель промахнулся и прочитал базу до коммита
	_, gen, ok := c.GetDay(ctx, "иу1-21", day)
	if ok {
		t.Fatal("unexpected hit")
	}
	c.ScopesChanged(ctx, []models.Scope{{Group: "иу1-21", Day: day}})
	c.SetDay(ctx, "иу1-21", day, gen, []models.ScheduleEntry{{Group: "иу1-21", Day: day, Subject: "OLD"}})

	if got, _, ok := c.GetDay(ctx, "иу1-21", day); ok {
		t.Errorf("pre-commit rows served from cache: %+v", got)
	}
}

func TestRedisSetDayWithoutGeneration(t *testing.T) {
	ctx := context.Background()
	c := newTestRedis(t)
	day := models.WeekdayDay(time.Monday)

	c.SetDay(ctx, "иу1-21", day, NoGeneration, []models.ScheduleEntry{{Subject: "x"}})
	if _, _, ok := c.GetDay(ctx, "иу1-21", day); ok {
		t.Error("entry stored without a generation")
	}
}
