package web

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/service"
	"guu-schedule-bot/internal/service/normalizer"
	pkgerrors "guu-schedule-bot/pkg/errors"
)

const (
	dateLayout    = "2006-01-02"
	recentBatches = 20
)

type Handler struct {
	scheduleService service.ScheduleService
	ingestService   service.IngestService
	syncService     service.SyncService

	loc           *time.Location
	maxUploadSize int64
	log           *zap.Logger
	now           func() time.Time
}

func NewHandler(
	scheduleService service.ScheduleService,
	ingestService service.IngestService,
	syncService service.SyncService,
	loc *time.Location,
	maxUploadSize int64,
	log *zap.Logger,
) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		scheduleService: scheduleService,
		ingestService:   ingestService,
		syncService:     syncService,
		loc:             loc,
		maxUploadSize:   maxUploadSize,
		log:             log.Named("http"),
		now:             time.Now,
	}
}

// Router собирает gin-движок со всеми маршрутами.
func (h *Handler) Router(adminToken string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(h.log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/groups", h.Groups)
		api.GET("/schedule/:group", h.Schedule)

		admin := api.Group("/admin")
		admin.Use(adminOnly(adminToken))
		{
			admin.GET("/sync/status", h.SyncStatus)
			admin.POST("/sync", h.ForceSync)
			admin.POST("/upload", h.Upload)
			admin.POST("/sheet", h.ImportSheet)
		}
	}
	return r
}

// Groups возвращает известные группы.
// GET /api/groups
func (h *Handler) Groups(c *gin.Context) {
	groups, err := h.scheduleService.Groups(c.Request.Context())
	if err != nil {
		h.log.Error("Ошибка получения групп", zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal error")
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	ok(c, groups)
}

type scheduleResponse struct {
	Group   string                 `json:"group"`
	Day     string                 `json:"day"`
	Entries []models.ScheduleEntry `json:"entries"`
}

type weekResponse struct {
	Group string               `json:"group"`
	Days  []models.DaySchedule `json:"days"`
}

// Schedule возвращает занятия группы.
// GET /api/schedule/:group?date=2025-09-01 | ?weekday=monday | ?date=...&view=week
// Без параметров отдаётся сегодняшний день.
func (h *Handler) Schedule(c *gin.Context) {
	ctx := c.Request.Context()
	group := models.NormalizeGroup(c.Param("group"))
	if group == "" {
		fail(c, http.StatusBadRequest, "group is required")
		return
	}

	if raw := c.Query("weekday"); raw != "" {
		day, found := normalizer.ParseDay(raw)
		if !found || day.IsDate() {
			fail(c, http.StatusBadRequest, "invalid weekday")
			return
		}
		entries, err := h.scheduleService.EntriesFor(ctx, group, day)
		if err != nil {
			h.internalError(c, err)
			return
		}
		ok(c, scheduleResponse{Group: group, Day: day.Key(), Entries: nonNil(entries)})
		return
	}

	date := h.now().In(h.loc)
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, h.loc)
		if err != nil {
			fail(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	if c.Query("view") == "week" {
		week, err := h.scheduleService.Week(ctx, group, date)
		if err != nil {
			h.internalError(c, err)
			return
		}
		ok(c, weekResponse{Group: group, Days: week})
		return
	}

	entries, err := h.scheduleService.Day(ctx, group, date)
	if err != nil {
		h.internalError(c, err)
		return
	}
	ok(c, scheduleResponse{Group: group, Day: models.DateDay(date).Key(), Entries: nonNil(entries)})
}

type syncStatus struct {
	Running       bool                    `json:"running"`
	NextRun       *time.Time              `json:"next_run,omitempty"`
	LastScheduled *models.SyncRun         `json:"last_scheduled,omitempty"`
	LastForced    *models.SyncRun         `json:"last_forced,omitempty"`
	Batches       []models.IngestionBatch `json:"batches"`
}

// SyncStatus: последние запуски синхронизации и журнал импорта.
// GET /api/admin/sync/status
func (h *Handler) SyncStatus(c *gin.Context) {
	status := syncStatus{Running: h.syncService.Running()}
	if next := h.syncService.NextRun(); !next.IsZero() {
		status.NextRun = &next
	}
	if run, found := h.syncService.LastScheduledRun(); found {
		status.LastScheduled = &run
	}
	if run, found := h.syncService.LastForcedRun(); found {
		status.LastForced = &run
	}

	batches, err := h.ingestService.RecentBatches(c.Request.Context(), recentBatches)
	if err != nil {
		h.internalError(c, err)
		return
	}
	status.Batches = batches
	if status.Batches == nil {
		status.Batches = []models.IngestionBatch{}
	}
	ok(c, status)
}

// ForceSync запускает синхронизацию с сайтом и ждёт её завершения.
// POST /api/admin/sync
func (h *Handler) ForceSync(c *gin.Context) {
	report, err := h.syncService.ForceSync(c.Request.Context())
	if err != nil {
		pipelineError(c, err, nil)
		return
	}
	if report.Failed() {
		c.JSON(http.StatusBadGateway, Response{Data: report, Error: report.Error})
		return
	}
	ok(c, report)
}

// Upload импортирует загруженный файл (.xlsx или .csv).
// POST /api/admin/upload, multipart-поле file
func (h *Handler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	if h.maxUploadSize > 0 && fh.Size > h.maxUploadSize {
		pipelineError(c, pkgerrors.ErrSizeExceeded, nil)
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.internalError(c, err)
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		h.internalError(c, err)
		return
	}

	res, err := h.ingestService.ImportUpload(c.Request.Context(), fh.Filename, content)
	h.respondResult(c, res, err)
}

type sheetRequest struct {
	URL string `json:"url" binding:"required"`
}

// ImportSheet импортирует Google-таблицу по ссылке.
// POST /api/admin/sheet {"url": "..."}
func (h *Handler) ImportSheet(c *gin.Context) {
	var req sheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "body must be {\"url\": \"...\"}")
		return
	}

	res, err := h.ingestService.ImportSheet(c.Request.Context(), strings.TrimSpace(req.URL))
	h.respondResult(c, res, err)
}

func (h *Handler) respondResult(c *gin.Context, res *models.IngestionResult, err error) {
	if err != nil {
		pipelineError(c, err, res)
		return
	}
	ok(c, res)
}

func (h *Handler) internalError(c *gin.Context, err error) {
	if errors.Is(err, c.Request.Context().Err()) {
		fail(c, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	h.log.Error("Ошибка обработки запроса", zap.String("path", c.FullPath()), zap.Error(err))
	fail(c, http.StatusInternalServerError, "internal error")
}

func nonNil(entries []models.ScheduleEntry) []models.ScheduleEntry {
	if entries == nil {
		return []models.ScheduleEntry{}
	}
	return entries
}
