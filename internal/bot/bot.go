package bot

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"

	"guu-schedule-bot/internal/models/config"
	"guu-schedule-bot/internal/service"
)

// telegramAPI: часть BotAPI, которой пользуются обработчики.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
	AnswerCallbackQuery(config tgbotapi.CallbackConfig) (tgbotapi.APIResponse, error)
}

type Bot struct {
	api    telegramAPI
	client *tgbotapi.BotAPI

	ScheduleService service.ScheduleService
	IngestService   service.IngestService
	SyncService     service.SyncService

	admins      map[int64]bool
	maxFileSize int64
	httpClient  *http.Client
	loc         *time.Location
	log         *zap.Logger
	now         func() time.Time

	userSessions map[int64]*UserSession // chatID -> session
	mu           sync.RWMutex
}

func NewBot(
	cfg config.BotConfig,
	source config.SourceConfig,
	loc *time.Location,
	scheduleService service.ScheduleService,
	ingestService service.IngestService,
	syncService service.SyncService,
	log *zap.Logger,
) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is not configured")
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	api.Debug = cfg.Debug

	log = log.Named("bot")
	log.Info("🤖 Бот инициализирован", zap.String("username", api.Self.UserName), zap.Bool("debug", cfg.Debug))
	log.Info("👑 Администраторы", zap.Int64s("admin_ids", cfg.AdminIDs))

	b := newBot(api, cfg.AdminIDs, source, loc, scheduleService, ingestService, syncService, log)
	b.client = api
	return b, nil
}

func newBot(
	api telegramAPI,
	adminIDs []int64,
	source config.SourceConfig,
	loc *time.Location,
	scheduleService service.ScheduleService,
	ingestService service.IngestService,
	syncService service.SyncService,
	log *zap.Logger,
) *Bot {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	if loc == nil {
		loc = time.Local
	}
	return &Bot{
		api:             api,
		ScheduleService: scheduleService,
		IngestService:   ingestService,
		SyncService:     syncService,
		admins:          admins,
		maxFileSize:     source.MaxFileSize,
		httpClient:      &http.Client{Timeout: source.Timeout},
		loc:             loc,
		log:             log,
		now:             time.Now,
		userSessions:    make(map[int64]*UserSession),
	}
}

// Start запускает получение обновлений в отдельной горутине.
func (b *Bot) Start() error {
	b.log.Info("Авторизован", zap.String("username", b.client.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := b.client.GetUpdatesChan(u)
	if err != nil {
		return err
	}

	go func() {
		for update := range updates {
			b.handleUpdate(update)
		}
	}()
	return nil
}

// Stop прекращает получение обновлений.
func (b *Bot) Stop() {
	b.client.StopReceivingUpdates()
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		go b.handleCallback(update.CallbackQuery)
	case update.Message != nil:
		go b.handleMessage(update.Message)
	}
}

func (b *Bot) isAdmin(userID int) bool {
	return b.admins[int64(userID)]
}

func (b *Bot) today() time.Time {
	return b.now().In(b.loc)
}
