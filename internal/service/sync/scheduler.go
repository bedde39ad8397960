// Package sync_service раз в сутки забирает расписание с сайта университета
// и позволяет запустить ту же синхронизацию вручную.
package sync_service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/models/config"
	pkgerrors "guu-schedule-bot/pkg/errors"
)

const runTimeout = 15 * time.Minute

// Syncer: синхронизация с сайтом (реализуется ingest_service.Service).
type Syncer interface {
	SyncWebsite(ctx context.Context, provenance models.Provenance) *models.SyncReport
}

type Scheduler struct {
	syncer Syncer
	spec   string
	cron   *cron.Cron
	log    *zap.Logger

	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool

	mu            sync.RWMutex
	lastScheduled *models.SyncRun
	lastForced    *models.SyncRun
}

func NewScheduler(syncer Syncer, cfg config.SyncConfig, log *zap.Logger) (*Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("sync timezone: %w", err)
	}
	spec, err := dailySpec(cfg.Time)
	if err != nil {
		return nil, err
	}

	log = log.Named("sync")
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		syncer: syncer,
		spec:   spec,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	cl := cronLogger{log: log.Sugar()}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.entryID, err = s.cron.AddFunc(spec, s.runScheduled)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

// dailySpec превращает "HH:MM" в cron-выражение "M H * * *".
func dailySpec(hhmm string) (string, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(hhmm), ":")
	hour, errH := strconv.Atoi(h)
	minute, errM := strconv.Atoi(m)
	if !ok || errH != nil || errM != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid sync time %q, want HH:MM", hhmm)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("⏰ Планировщик синхронизации запущен", zap.String("spec", s.spec), zap.Time("next_run", s.NextRun()))
}

// Stop останавливает таймер и ждёт завершения текущего запуска, но не дольше ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// ForceSync запускает синхронизацию немедленно, независимо от таймера.
// Если синхронизация уже идёт, сразу возвращает ErrReconciliationBusy.
func (s *Scheduler) ForceSync(ctx context.Context) (*models.SyncReport, error) {
	info, err := s.run(ctx, models.ProvenanceForcedSync)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.lastForced = info
	s.mu.Unlock()
	return info.Report, nil
}

// runScheduled: задача cron. Неудачный запуск не повторяется до следующего дня.
func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(s.ctx, runTimeout)
	defer cancel()

	info, err := s.run(ctx, models.ProvenanceScheduledSync)
	if err != nil {
		now := time.Now()
		info = &models.SyncRun{StartedAt: now, FinishedAt: now, Outcome: models.OutcomeFailed, Error: err.Error()}
		s.log.Warn("Плановая синхронизация пропущена", zap.Error(err))
	}
	s.mu.Lock()
	s.lastScheduled = info
	s.mu.Unlock()
}

func (s *Scheduler) run(ctx context.Context, provenance models.Provenance) (*models.SyncRun, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("website sync already running: %w", pkgerrors.ErrReconciliationBusy)
	}
	defer s.running.Store(false)

	s.log.Info("🔄 Синхронизация с сайтом", zap.String("provenance", string(provenance)))
	info := &models.SyncRun{StartedAt: time.Now()}
	report := s.syncer.SyncWebsite(ctx, provenance)
	info.FinishedAt = time.Now()
	info.Report = report
	info.Outcome = models.OutcomeSucceeded
	if report.Failed() {
		info.Outcome = models.OutcomeFailed
		info.Error = report.Error
		if info.Error == "" {
			info.Error = "some files were not imported"
		}
	}

	s.log.Info("Синхронизация завершена",
		zap.String("provenance", string(provenance)),
		zap.String("outcome", string(info.Outcome)),
		zap.Int("files", len(report.Results)),
		zap.Duration("took", info.FinishedAt.Sub(info.StartedAt)),
	)
	return info, nil
}

func (s *Scheduler) LastScheduledRun() (models.SyncRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastScheduled == nil {
		return models.SyncRun{}, false
	}
	return *s.lastScheduled, true
}

func (s *Scheduler) LastForcedRun() (models.SyncRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastForced == nil {
		return models.SyncRun{}, false
	}
	return *s.lastForced, true
}

// NextRun: время следующего планового запуска; нулевое, пока планировщик не запущен.
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Running сообщает, идёт ли сейчас синхронизация.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// cronLogger направляет сообщения cron в zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
