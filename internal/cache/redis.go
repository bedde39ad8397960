package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/models/config"
)

const (
	keyPrefix  = "schedule:"
	defaultTTL = 15 * time.Minute
)

// Redis хранит дни в ключах вида schedule:day:<группа>:<поколение>:<день>.
// Сброс кэша группы увеличивает её поколение, старые ключи истекают по TTL.
type Redis struct {
	rdb *goredis.Client
	ttl time.Duration
	log *zap.Logger
}

// NewRedis подключается к Redis и проверяет соединение.
func NewRedis(cfg config.RedisConfig, log *zap.Logger) (*Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	log.Info("Redis подключен", zap.String("addr", cfg.Addr))

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl, log: log.Named("cache")}, nil
}

func generationKey(group string) string {
	return keyPrefix + "gen:" + group
}

func dayKey(group string, gen Generation, day models.Day) string {
	return fmt.Sprintf("%sday:%s:%d:%s", keyPrefix, group, gen, day.Key())
}

// getter: клиент или транзакция под WATCH.
type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func readGeneration(ctx context.Context, c getter, group string) (Generation, error) {
	gen, err := c.Get(ctx, generationKey(group)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return NoGeneration, err
	}
	return Generation(gen), nil
}

func (r *Redis) GetDay(ctx context.Context, group string, day models.Day) ([]models.ScheduleEntry, Generation, bool) {
	gen, err := readGeneration(ctx, r.rdb, group)
	if err != nil {
		r.log.Warn("Ошибка чтения кэша", zap.Error(err))
		return nil, NoGeneration, false
	}
	data, err := r.rdb.Get(ctx, dayKey(group, gen, day)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			r.log.Warn("Ошибка чтения кэша", zap.Error(err))
		}
		return nil, gen, false
	}
	var entries []models.ScheduleEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		r.log.Warn("Повреждённая запись кэша", zap.String("group", group), zap.Error(err))
		return nil, gen, false
	}
	return entries, gen, true
}

// SetDay пишет под WATCH ключа поколения: если батч успел сменить поколение
// после чтения из базы, запись отбрасывается.
func (r *Redis) SetDay(ctx context.Context, group string, day models.Day, gen Generation, entries []models.ScheduleEntry) {
	if gen == NoGeneration {
		return
	}
	if entries == nil {
		entries = []models.ScheduleEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		r.log.Warn("Ошибка записи кэша", zap.Error(err))
		return
	}

	err = r.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		cur, err := readGeneration(ctx, tx, group)
		if err != nil {
			return err
		}
		if cur != gen {
			r.log.Debug("Поколение сменилось, день не кэшируем", zap.String("group", group))
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, dayKey(group, gen, day), data, r.ttl)
			return nil
		})
		return err
	}, generationKey(group))
	switch {
	case errors.Is(err, goredis.TxFailedErr):
		r.log.Debug("Поколение сменилось во время записи", zap.String("group", group))
	case err != nil:
		r.log.Warn("Ошибка записи кэша", zap.Error(err))
	}
}

func (r *Redis) ScopesChanged(ctx context.Context, scopes []models.Scope) {
	groups := groupsOf(scopes)
	if len(groups) == 0 {
		return
	}
	_, err := r.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for _, g := range groups {
			p.Incr(ctx, generationKey(g))
		}
		return nil
	})
	if err != nil {
		r.log.Error("Не удалось сбросить кэш", zap.Strings("groups", groups), zap.Error(err))
		return
	}
	r.log.Debug("Кэш сброшен", zap.Strings("groups", groups))
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
