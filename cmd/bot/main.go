package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"guu-schedule-bot/internal/bot"
	"guu-schedule-bot/internal/cache"
	"guu-schedule-bot/internal/models/config"
	"guu-schedule-bot/internal/repository"
	"guu-schedule-bot/internal/repository/batch"
	"guu-schedule-bot/internal/repository/group"
	"guu-schedule-bot/internal/repository/memory"
	"guu-schedule-bot/internal/repository/schedule"
	"guu-schedule-bot/internal/service"
	"guu-schedule-bot/internal/service/fetcher"
	"guu-schedule-bot/internal/service/fingerprint"
	ingest_service "guu-schedule-bot/internal/service/ingest"
	"guu-schedule-bot/internal/service/reconcile"
	schedule_service "guu-schedule-bot/internal/service/schedule"
	sync_service "guu-schedule-bot/internal/service/sync"
	"guu-schedule-bot/internal/web"
	database "guu-schedule-bot/pkg"
	"guu-schedule-bot/pkg/logger"
)

func main() {
	// Загружаем конфигурацию до fx: без неё не собрать даже логгер
	cfg, err := config.Load(os.Getenv("SCHEDULE_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	app := fx.New(
		fx.Supply(cfg),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(
			newLogger,
			newLocation,
			newStorage,
			newCache,
			newReconciler,
			newIngestService,
			newScheduleService,
			newScheduler,
			func(s *ingest_service.Service) service.IngestService { return s },
			func(s *sync_service.Scheduler) service.SyncService { return s },
		),
		fx.Invoke(
			startScheduler,
			startBot,
			startHTTP,
		),
	)
	app.Run()
}

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, err
	}
	l.Info("🚀 Запуск", zap.String("environment", cfg.Environment), zap.String("storage", cfg.Storage.Driver))
	lc.Append(fx.StopHook(func() {
		_ = l.Sync()
	}))
	return l, nil
}

func newLocation(cfg *config.Config) (*time.Location, error) {
	loc, err := cfg.Sync.Location()
	if err != nil {
		return nil, fmt.Errorf("sync timezone: %w", err)
	}
	return loc, nil
}

type storage struct {
	fx.Out

	Schedule repository.ScheduleRepository
	Groups   repository.GroupRepository
	Batches  repository.BatchRepository
}

func newStorage(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (storage, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn("⚠️ Хранилище в памяти: данные пропадут после перезапуска")
		store := memory.NewStore()
		return storage{Schedule: store, Groups: store, Batches: store}, nil
	}

	db, err := database.NewPostgres(cfg.Database, log)
	if err != nil {
		return storage{}, err
	}
	if err := database.RunMigrations(db.DB, log); err != nil {
		db.Close()
		return storage{}, err
	}
	lc.Append(fx.StopHook(db.Close))

	return storage{
		Schedule: schedule.NewScheduleRepository(db),
		Groups:   group.NewGroupRepository(db),
		Batches:  batch.NewBatchRepository(db),
	}, nil
}

func newCache(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (cache.Cache, error) {
	if !cfg.Redis.Enabled {
		return cache.Nop{}, nil
	}
	r, err := cache.NewRedis(cfg.Redis, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(r.Close))
	return r, nil
}

func newReconciler(
	scheduleRepo repository.ScheduleRepository,
	batches repository.BatchRepository,
	c cache.Cache,
	log *zap.Logger,
) *reconcile.Reconciler {
	r := reconcile.NewReconciler(scheduleRepo, batches, log)
	r.AddListener(c)
	return r
}

func newIngestService(
	cfg *config.Config,
	batches repository.BatchRepository,
	reconciler *reconcile.Reconciler,
	log *zap.Logger,
) *ingest_service.Service {
	return ingest_service.NewService(ingest_service.Options{
		Hasher:      fingerprint.NewHasher(cfg.Source.MaxFileSize),
		Batches:     batches,
		Writer:      reconciler,
		Website:     fetcher.NewWebsite(cfg.Source, log),
		Sheet:       fetcher.NewSheet(cfg.Source, log),
		ScheduleURL: cfg.Source.ScheduleURL,
		Logger:      log,
	})
}

func newScheduleService(
	scheduleRepo repository.ScheduleRepository,
	groups repository.GroupRepository,
	c cache.Cache,
	log *zap.Logger,
) service.ScheduleService {
	return schedule_service.NewService(scheduleRepo, groups, c, log)
}

func newScheduler(cfg *config.Config, ingest *ingest_service.Service, log *zap.Logger) (*sync_service.Scheduler, error) {
	return sync_service.NewScheduler(ingest, cfg.Sync, log)
}

func startScheduler(lc fx.Lifecycle, cfg *config.Config, s *sync_service.Scheduler, log *zap.Logger) {
	if !cfg.Sync.Enabled {
		log.Info("Плановая синхронизация выключена")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: s.Stop,
	})
}

func startBot(
	lc fx.Lifecycle,
	cfg *config.Config,
	loc *time.Location,
	scheduleService service.ScheduleService,
	ingestService service.IngestService,
	syncService service.SyncService,
	log *zap.Logger,
) error {
	if !cfg.Bot.Enabled {
		log.Info("Telegram-бот выключен")
		return nil
	}
	telegramBot, err := bot.NewBot(cfg.Bot, cfg.Source, loc, scheduleService, ingestService, syncService, log)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return telegramBot.Start()
		},
		OnStop: func(context.Context) error {
			telegramBot.Stop()
			return nil
		},
	})
	return nil
}

func startHTTP(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	loc *time.Location,
	scheduleService service.ScheduleService,
	ingestService service.IngestService,
	syncService service.SyncService,
	log *zap.Logger,
) {
	if !cfg.HTTP.Enabled {
		return
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := web.NewHandler(scheduleService, ingestService, syncService, loc, cfg.Source.MaxFileSize, log)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler.Router(cfg.HTTP.AdminToken),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("🌐 HTTP-сервер запущен", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("❌ Ошибка HTTP-сервера", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
}
