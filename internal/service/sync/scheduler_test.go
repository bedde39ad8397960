package sync_service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/models/config"
	pkgerrors "guu-schedule-bot/pkg/errors"
)

type fakeSyncer struct {
	calls   chan models.Provenance
	block   chan struct{}
	failing bool
}

func (f *fakeSyncer) SyncWebsite(_ context.Context, p models.Provenance) *models.SyncReport {
	if f.calls != nil {
		f.calls <- p
	}
	if f.block != nil {
		<-f.block
	}
	report := &models.SyncReport{Provenance: p, Results: []*models.IngestionResult{{Status: models.StatusCompleted}}}
	if f.failing {
		report.Error = "source unavailable"
	}
	return report
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{Enabled: true, Time: "05:30", Timezone: "Europe/Moscow"}
}

func TestDailySpec(t *testing.T) {
	for in, want := range map[string]string{"05:00": "0 5 * * *", "23:59": "59 23 * * *", "7:05": "5 7 * * *"} {
		if got, err := dailySpec(in); err != nil || got != want {
			t.Errorf("dailySpec(%q) = %q, %v", in, got, err)
		}
	}
	for _, bad := range []string{"", "24:00", "12:60", "noon", "12"} {
		if _, err := dailySpec(bad); err == nil {
			t.Errorf("dailySpec(%q) accepted", bad)
		}
	}
}

func TestNewSchedulerRejectsBadConfig(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Timezone = "Mars/Olympus"
	if _, err := NewScheduler(&fakeSyncer{}, cfg, zap.NewNop()); err == nil {
		t.Error("expected timezone error")
	}
}

func TestForceSync(t *testing.T) {
	s, err := NewScheduler(&fakeSyncer{}, testSyncConfig(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := s.LastForcedRun(); ok {
		t.Fatal("forced run reported before any run")
	}
	report, err := s.ForceSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Provenance != models.ProvenanceForcedSync {
		t.Errorf("provenance = %s", report.Provenance)
	}
	info, ok := s.LastForcedRun()
	if !ok || info.Outcome != models.OutcomeSucceeded || info.FinishedAt.Before(info.StartedAt) {
		t.Errorf("last forced run = %+v", info)
	}
	if _, ok := s.LastScheduledRun(); ok {
		t.Error("forced run must not count as scheduled")
	}
}

func TestForceSyncWhileRunning(t *testing.T) {
	syncer := &fakeSyncer{calls: make(chan models.Provenance, 1), block: make(chan struct{})}
	s, err := NewScheduler(syncer, testSyncConfig(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	go s.runScheduled()
	if p := <-syncer.calls; p != models.ProvenanceScheduledSync {
		t.Fatalf("provenance = %s", p)
	}
	if !s.Running() {
		t.Error("Running() = false during a run")
	}

	if _, err := s.ForceSync(context.Background()); !errors.Is(err, pkgerrors.ErrReconciliationBusy) {
		t.Errorf("expected ErrReconciliationBusy, got %v", err)
	}
	close(syncer.block)

	deadline := time.After(2 * time.Second)
	for {
		if info, ok := s.LastScheduledRun(); ok {
			if info.Outcome != models.OutcomeSucceeded {
				t.Errorf("scheduled run = %+v", info)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("scheduled run not recorded")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestScheduledRunFailureRecorded(t *testing.T) {
	s, err := NewScheduler(&fakeSyncer{failing: true}, testSyncConfig(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	s.runScheduled()

	info, ok := s.LastScheduledRun()
	if !ok || info.Outcome != models.OutcomeFailed || info.Error != "source unavailable" {
		t.Errorf("last scheduled run = %+v", info)
	}
}

func TestNextRun(t *testing.T) {
	s, err := NewScheduler(&fakeSyncer{}, testSyncConfig(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop(context.Background())

	next := s.NextRun()
	if next.IsZero() || !next.After(time.Now()) {
		t.Fatalf("NextRun() = %v", next)
	}
	loc, _ := time.LoadLocation("Europe/Moscow")
	local := next.In(loc)
	if local.Hour() != 5 || local.Minute() != 30 {
		t.Errorf("next run at %v, want 05:30 Moscow time", local)
	}
}

func TestStop(t *testing.T) {
	s, err := NewScheduler(&fakeSyncer{}, testSyncConfig(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop() = %v", err)
	}
}
