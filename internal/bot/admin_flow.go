package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"

	pkgerrors "guu-schedule-bot/pkg/errors"
)

const (
	importTimeout = 10 * time.Minute
	recentBatches = 10
)

func (b *Bot) handleAdminCommand(chatID int64, command, args string) {
	switch command {
	case "admin_sync":
		b.handleForceSync(chatID)
	case "admin_import_sheet":
		if args == "" {
			b.setState(chatID, StateAwaitingSheetURL)
			msg := tgbotapi.NewMessage(chatID, "🔗 Отправьте ссылку на Google-таблицу (доступ «для всех, у кого есть ссылка»)")
			msg.ReplyMarkup = createCancelKeyboard()
			b.api.Send(msg)
			return
		}
		b.handleSheetURLInput(chatID, args)
	case "admin_status":
		b.showStatus(chatID)
	case "admin_help":
		b.sendHelp(chatID, true)
	}
}

func (b *Bot) handleForceSync(chatID int64) {
	b.sendMessage(chatID, "🔄 Синхронизация с сайтом запущена…")

	ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
	defer cancel()

	report, err := b.SyncService.ForceSync(ctx)
	if err != nil {
		b.log.Warn("Ручная синхронизация не запущена", zap.Error(err))
		b.sendHTML(chatID, "❌ "+errText(err)+"\n"+adviceText(err))
		return
	}
	for _, part := range splitMessage(formatSyncReport(report)) {
		b.sendHTML(chatID, part)
	}
}

func (b *Bot) handleSheetURLInput(chatID int64, text string) {
	b.resetState(chatID)
	msg := tgbotapi.NewMessage(chatID, "📥 Импортируем таблицу…")
	msg.ReplyMarkup = createMainKeyboard()
	b.api.Send(msg)

	ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
	defer cancel()

	res, err := b.IngestService.ImportSheet(ctx, strings.TrimSpace(text))
	b.sendHTML(chatID, formatResult(res, err))
}

func (b *Bot) handleDocument(chatID int64, doc *tgbotapi.Document) {
	if b.maxFileSize > 0 && int64(doc.FileSize) > b.maxFileSize {
		b.sendError(chatID, fmt.Sprintf("❌ Файл слишком большой: %d байт, максимум %d", doc.FileSize, b.maxFileSize))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
	defer cancel()

	content, err := b.downloadDocument(ctx, doc.FileID)
	if err != nil {
		b.log.Error("Не удалось скачать файл", zap.String("file", doc.FileName), zap.Error(err))
		b.sendError(chatID, "❌ Не удалось скачать файл: "+err.Error())
		return
	}

	b.sendMessage(chatID, "📥 Файл получен, импортируем…")
	res, err := b.IngestService.ImportUpload(ctx, doc.FileName, content)
	b.sendHTML(chatID, formatResult(res, err))
}

func (b *Bot) downloadDocument(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram file api: %s", resp.Status)
	}

	limit := b.maxFileSize
	if limit <= 0 {
		return io.ReadAll(resp.Body)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > limit {
		return nil, pkgerrors.ErrSizeExceeded
	}
	return content, nil
}

func (b *Bot) showStatus(chatID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("📊 <b>Состояние синхронизации</b>\n\n")
	scheduled, ok := b.SyncService.LastScheduledRun()
	sb.WriteString(formatSyncRun("Плановая", scheduled, ok, b.loc))
	forced, ok := b.SyncService.LastForcedRun()
	sb.WriteString(formatSyncRun("Ручная", forced, ok, b.loc))
	if next := b.SyncService.NextRun(); !next.IsZero() {
		sb.WriteString("Следующая: " + next.In(b.loc).Format("02.01.2006 15:04") + "\n")
	}
	if b.SyncService.Running() {
		sb.WriteString("⏳ Синхронизация выполняется сейчас\n")
	}

	sb.WriteString("\n<b>Последние импорты</b>\n")
	batches, err := b.IngestService.RecentBatches(ctx, recentBatches)
	if err != nil {
		b.log.Error("Ошибка чтения журнала импорта", zap.Error(err))
		sb.WriteString("❌ Ошибка чтения журнала\n")
	} else {
		sb.WriteString(formatBatches(batches, b.loc))
	}
	b.sendHTML(chatID, sb.String())
}

func adviceText(err error) string {
	switch pkgerrors.AdviceFor(err) {
	case pkgerrors.AdviceRetry:
		return "Источник недоступен, попробуйте позже."
	case pkgerrors.AdviceWait:
		return "Сейчас идёт другой импорт, повторите через минуту."
	case pkgerrors.AdviceFixAndResubmit:
		if errors.Is(err, pkgerrors.ErrInvalidShareURL) {
			return "Проверьте ссылку: нужна ссылка вида https://docs.google.com/spreadsheets/d/…"
		}
		return "Исправьте файл и отправьте снова."
	}
	return ""
}
