package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/models/config"
	pkgerrors "guu-schedule-bot/pkg/errors"
)

const (
	adminID = 100
	userID  = 200
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	fileURL string
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) {
	return f.fileURL, nil
}

func (f *fakeAPI) AnswerCallbackQuery(tgbotapi.CallbackConfig) (tgbotapi.APIResponse, error) {
	return tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAPI) texts() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var parts []string
	for _, m := range f.sent {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "\n---\n")
}

type fakeSchedule struct {
	entries map[string][]models.ScheduleEntry
}

func (f *fakeSchedule) EntriesFor(_ context.Context, group string, day models.Day) ([]models.ScheduleEntry, error) {
	var out []models.ScheduleEntry
	for _, e := range f.entries[models.NormalizeGroup(group)] {
		if e.Day.Weekday == day.Weekday {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSchedule) Day(ctx context.Context, group string, date time.Time) ([]models.ScheduleEntry, error) {
	return f.EntriesFor(ctx, group, models.WeekdayDay(date.Weekday()))
}

func (f *fakeSchedule) Week(ctx context.Context, group string, date time.Time) ([]models.DaySchedule, error) {
	var week []models.DaySchedule
	for i := 0; i < 6; i++ {
		d := date.AddDate(0, 0, i)
		entries, _ := f.Day(ctx, group, d)
		week = append(week, models.DaySchedule{Date: d, Entries: entries})
	}
	return week, nil
}

func (f *fakeSchedule) Groups(context.Context) ([]models.Group, error) {
	var groups []models.Group
	for code, entries := range f.entries {
		groups = append(groups, models.Group{Code: code, Entries: len(entries)})
	}
	return groups, nil
}

func (f *fakeSchedule) HasGroup(_ context.Context, group string) (bool, error) {
	_, ok := f.entries[models.NormalizeGroup(group)]
	return ok, nil
}

type fakeIngest struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	sheets   []string
}

func (f *fakeIngest) ImportUpload(_ context.Context, name string, content []byte) (*models.IngestionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploaded == nil {
		f.uploaded = make(map[string][]byte)
	}
	f.uploaded[name] = content
	return &models.IngestionResult{BatchID: "b1", Status: models.StatusCompleted, SourceName: name, RowsParsed: 2, RowsAccepted: 2, EntriesWritten: 2}, nil
}

func (f *fakeIngest) ImportSheet(_ context.Context, shareURL string) (*models.IngestionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sheets = append(f.sheets, shareURL)
	if !strings.Contains(shareURL, "docs.google.com") {
		return nil, pkgerrors.ErrInvalidShareURL
	}
	return &models.IngestionResult{BatchID: "b2", Status: models.StatusDuplicate, SourceName: shareURL}, nil
}

func (f *fakeIngest) RecentBatches(context.Context, int) ([]models.IngestionBatch, error) {
	return []models.IngestionBatch{{
		ID:             "b1",
		Provenance:     models.ProvenanceFileUpload,
		SourceName:     "schedule.xlsx",
		Outcome:        models.OutcomeSucceeded,
		EntriesWritten: 12,
		StartedAt:      time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC),
	}}, nil
}

type fakeSync struct {
	forced int
	err    error
}

func (f *fakeSync) ForceSync(context.Context) (*models.SyncReport, error) {
	f.forced++
	if f.err != nil {
		return nil, f.err
	}
	return &models.SyncReport{
		Provenance: models.ProvenanceForcedSync,
		Results:    []*models.IngestionResult{{BatchID: "b3", Status: models.StatusCompleted, SourceName: "a.xlsx", EntriesWritten: 5}},
	}, nil
}

func (f *fakeSync) LastScheduledRun() (models.SyncRun, bool) { return models.SyncRun{}, false }

func (f *fakeSync) LastForcedRun() (models.SyncRun, bool) {
	start := time.Date(2025, 9, 1, 6, 0, 0, 0, time.UTC)
	return models.SyncRun{StartedAt: start, FinishedAt: start.Add(3 * time.Second), Outcome: models.OutcomeSucceeded}, true
}

func (f *fakeSync) NextRun() time.Time { return time.Time{} }
func (f *fakeSync) Running() bool      { return false }

func newTestBot(t *testing.T) (*Bot, *fakeAPI, *fakeIngest, *fakeSync) {
	t.Helper()
	api := &fakeAPI{}
	schedule := &fakeSchedule{entries: map[string][]models.ScheduleEntry{
		"иу1-21": {{
			Group:      "иу1-21",
			Day:        models.WeekdayDay(time.Monday),
			Start:      models.NewClock(9, 0),
			End:        models.NewClock(10, 30),
			Subject:    "Матанализ <лекция>",
			Instructor: "Иванов И.И.",
			Room:       "А-101",
		}},
	}}
	ingest := &fakeIngest{}
	syncer := &fakeSync{}
	b := newBot(api, []int64{adminID}, config.SourceConfig{MaxFileSize: 1024, Timeout: 5 * time.Second},
		time.UTC, schedule, ingest, syncer, zap.NewNop())
	// понедельник
	b.now = func() time.Time { return time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC) }
	return b, api, ingest, syncer
}

func textMessage(from int, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: from},
		Chat: &tgbotapi.Chat{ID: int64(from)},
		Text: text,
	}
}

func commandMessage(from int, text string) *tgbotapi.Message {
	msg := textMessage(from, text)
	cmd := strings.SplitN(text, " ", 2)[0]
	msg.Entities = &[]tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	return msg
}

func TestSelectGroupAndShowToday(t *testing.T) {
	b, api, _, _ := newTestBot(t)

	b.handleMessage(commandMessage(userID, "/today"))
	if !strings.Contains(api.last(t).Text, "/group") {
		t.Fatalf("expected group prompt, got %q", api.last(t).Text)
	}

	b.handleMessage(commandMessage(userID, "/group ИУ1–21"))
	if got := b.snapshot(userID).Group; got != "иу1-21" {
		t.Fatalf("group = %q", got)
	}

	msg := api.last(t)
	if msg.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("parse mode = %q", msg.ParseMode)
	}
	for _, want := range []string{"ИУ1-21", "Понедельник", "09:00-10:30", "Матанализ &lt;лекция&gt;", "А-101"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("day message missing %q:\n%s", want, msg.Text)
		}
	}
}

func TestUnknownGroupRejected(t *testing.T) {
	b, api, _, _ := newTestBot(t)

	b.handleMessage(commandMessage(userID, "/group XX-99"))
	if b.snapshot(userID).Group != "" {
		t.Error("unknown group must not be selected")
	}
	if !strings.Contains(api.last(t).Text, "не найдена") {
		t.Errorf("unexpected reply %q", api.last(t).Text)
	}
}

func TestGroupSelectionViaKeyboardInput(t *testing.T) {
	b, api, _, _ := newTestBot(t)

	b.handleMessage(textMessage(userID, btnSelectGroup))
	if b.snapshot(userID).State != StateSelectingGroup {
		t.Fatal("expected selecting group state")
	}
	b.handleMessage(textMessage(userID, "иу1-21"))
	if b.snapshot(userID).Group != "иу1-21" {
		t.Fatal("group not selected from text input")
	}

	b.handleMessage(textMessage(userID, btnTomorrow))
	if !strings.Contains(api.last(t).Text, "Занятий нет") {
		t.Errorf("tuesday should be empty, got %q", api.last(t).Text)
	}
}

func TestCallbackSelectsGroup(t *testing.T) {
	b, _, _, _ := newTestBot(t)

	b.handleCallback(&tgbotapi.CallbackQuery{
		ID:      "q1",
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}},
		Data:    groupCallbackPrefix + "иу1-21",
	})
	if b.snapshot(userID).Group != "иу1-21" {
		t.Error("callback did not select group")
	}
}

func TestWeekShowsSixDays(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	b.setGroup(userID, "иу1-21")

	b.handleMessage(textMessage(userID, btnWeek))
	text := api.last(t).Text
	for _, day := range []string{"Понедельник", "Вторник", "Среда", "Четверг", "Пятница", "Суббота"} {
		if !strings.Contains(text, day) {
			t.Errorf("week missing %s", day)
		}
	}
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	b, api, _, syncer := newTestBot(t)

	b.handleMessage(commandMessage(userID, "/admin_sync"))
	if syncer.forced != 0 {
		t.Error("non-admin triggered sync")
	}
	if !strings.Contains(api.last(t).Text, "только администраторам") {
		t.Errorf("unexpected reply %q", api.last(t).Text)
	}

	b.handleMessage(commandMessage(adminID, "/admin_sync"))
	if syncer.forced != 1 {
		t.Fatalf("forced = %d", syncer.forced)
	}
	if !strings.Contains(api.last(t).Text, "Синхронизация завершена") {
		t.Errorf("unexpected report %q", api.last(t).Text)
	}
}

func TestAdminSyncBusy(t *testing.T) {
	b, api, _, syncer := newTestBot(t)
	syncer.err = pkgerrors.ErrReconciliationBusy

	b.handleMessage(commandMessage(adminID, "/admin_sync"))
	if !strings.Contains(api.last(t).Text, "повторите через минуту") {
		t.Errorf("unexpected reply %q", api.last(t).Text)
	}
}

func TestAdminImportSheetFlow(t *testing.T) {
	b, api, ingest, _ := newTestBot(t)

	b.handleMessage(commandMessage(adminID, "/admin_import_sheet"))
	if b.snapshot(adminID).State != StateAwaitingSheetURL {
		t.Fatal("expected awaiting sheet url state")
	}

	b.handleMessage(textMessage(adminID, "https://example.com/not-a-sheet"))
	if b.snapshot(adminID).State != StateDefault {
		t.Error("state not reset after input")
	}
	if len(ingest.sheets) != 1 {
		t.Fatalf("sheets = %v", ingest.sheets)
	}
	if !strings.Contains(api.last(t).Text, "Проверьте ссылку") {
		t.Errorf("unexpected reply %q", api.last(t).Text)
	}

	b.handleMessage(commandMessage(adminID, "/admin_import_sheet https://docs.google.com/spreadsheets/d/abc/edit"))
	if !strings.Contains(api.last(t).Text, "уже был импортирован") {
		t.Errorf("unexpected reply %q", api.last(t).Text)
	}
}

func TestCancelResetsAwaitingInput(t *testing.T) {
	b, _, ingest, _ := newTestBot(t)

	b.handleMessage(commandMessage(adminID, "/admin_import_sheet"))
	b.handleMessage(textMessage(adminID, btnCancel))
	if b.snapshot(adminID).State != StateDefault {
		t.Error("cancel did not reset state")
	}
	if len(ingest.sheets) != 0 {
		t.Error("cancel button must not be imported as url")
	}
}

func TestAdminDocumentUpload(t *testing.T) {
	b, api, ingest, _ := newTestBot(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("группа;день;время;предмет\nИУ1-21;пн;09:00-10:30;Матанализ\n"))
	}))
	defer srv.Close()
	api.fileURL = srv.URL + "/file"

	msg := textMessage(adminID, "")
	msg.Document = &tgbotapi.Document{FileID: "f1", FileName: "schedule.csv", FileSize: 64}
	b.handleMessage(msg)

	if _, ok := ingest.uploaded["schedule.csv"]; !ok {
		t.Fatalf("file not imported: %s", api.texts())
	}
	if !strings.Contains(api.last(t).Text, "Импортировано") {
		t.Errorf("unexpected reply %q", api.last(t).Text)
	}
}

func TestDocumentRejectedForNonAdminAndOversize(t *testing.T) {
	b, api, ingest, _ := newTestBot(t)

	msg := textMessage(userID, "")
	msg.Document = &tgbotapi.Document{FileID: "f1", FileName: "schedule.xlsx", FileSize: 10}
	b.handleMessage(msg)
	if !strings.Contains(api.last(t).Text, "только администраторы") {
		t.Errorf("unexpected reply %q", api.last(t).Text)
	}

	msg = textMessage(adminID, "")
	msg.Document = &tgbotapi.Document{FileID: "f2", FileName: "big.xlsx", FileSize: 4096}
	b.handleMessage(msg)
	if !strings.Contains(api.last(t).Text, "слишком большой") {
		t.Errorf("unexpected reply %q", api.last(t).Text)
	}
	if len(ingest.uploaded) != 0 {
		t.Error("rejected documents must not be imported")
	}
}

func TestAdminStatus(t *testing.T) {
	b, api, _, _ := newTestBot(t)

	b.handleMessage(commandMessage(adminID, "/admin_status"))
	text := api.last(t).Text
	for _, want := range []string{"Плановая: ещё не запускалась", "Ручная: ✅ 01.09.2025 06:00", "schedule.xlsx", "занятий: 12"} {
		if !strings.Contains(text, want) {
			t.Errorf("status missing %q:\n%s", want, text)
		}
	}
}

func TestSplitMessage(t *testing.T) {
	line := strings.Repeat("x", 99) + "\n"
	text := strings.Repeat(line, 100)

	parts := splitMessage(text)
	if len(parts) < 3 {
		t.Fatalf("got %d parts", len(parts))
	}
	if strings.Join(parts, "") != text {
		t.Error("parts do not add up to the original text")
	}
	for i, p := range parts {
		if len(p) > maxMessageLength {
			t.Errorf("part %d has length %d", i, len(p))
		}
	}

	if got := splitMessage("short"); len(got) != 1 || got[0] != "short" {
		t.Errorf("splitMessage(short) = %v", got)
	}
}

func TestCreateGroupsKeyboard(t *testing.T) {
	groups := []models.Group{{Code: "a-1"}, {Code: "a-2"}, {Code: "a-3"}, {Code: "a-4"}}
	kb := createGroupsKeyboard(groups)
	if len(kb.InlineKeyboard) != 2 || len(kb.InlineKeyboard[0]) != groupsPerRow || len(kb.InlineKeyboard[1]) != 1 {
		t.Fatalf("unexpected layout %+v", kb.InlineKeyboard)
	}
	btn := kb.InlineKeyboard[1][0]
	if btn.Text != "A-4" || btn.CallbackData == nil || *btn.CallbackData != "group:a-4" {
		t.Errorf("unexpected button %+v", btn)
	}
}
