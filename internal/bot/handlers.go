package bot

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"
)

const (
	btnToday       = "📅 Сегодня"
	btnTomorrow    = "➡️ Завтра"
	btnWeek        = "🗓 Неделя"
	btnNextWeek    = "⏭ След. неделя"
	btnSelectGroup = "👥 Выбрать группу"
	btnCancel      = "❌ Отмена"

	groupCallbackPrefix = "group:"
	requestTimeout      = 30 * time.Second
)

// Обработка сообщения здесь
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	var username string
	if message.From != nil {
		username = message.From.UserName
	}
	b.log.Debug("Сообщение", zap.String("from", username), zap.String("text", message.Text))

	chatID := message.Chat.ID
	admin := message.From != nil && b.isAdmin(message.From.ID)

	if message.Document != nil {
		if !admin {
			b.sendError(chatID, "❌ Загружать расписание могут только администраторы")
			return
		}
		b.handleDocument(chatID, message.Document)
		return
	}

	// Команды и кнопки отменяют незавершённый ввод
	session := b.snapshot(chatID)
	if session.State != StateDefault && !message.IsCommand() && !isMenuButton(message.Text) {
		switch session.State {
		case StateSelectingGroup:
			b.handleGroupInput(chatID, message.Text)
			return
		case StateAwaitingSheetURL:
			b.handleSheetURLInput(chatID, message.Text)
			return
		}
	}
	b.resetState(chatID)

	if message.IsCommand() {
		args := strings.TrimSpace(message.CommandArguments())
		switch message.Command() {
		case "start":
			b.handleStartCommand(chatID)
		case "help":
			b.sendHelp(chatID, admin)
		case "group":
			if args != "" {
				b.handleGroupInput(chatID, args)
				return
			}
			b.showGroupSelection(chatID)
		case "today":
			b.showDay(chatID, b.today())
		case "tomorrow":
			b.showDay(chatID, b.today().AddDate(0, 0, 1))
		case "week":
			b.showWeek(chatID, b.today())
		case "admin_sync", "admin_import_sheet", "admin_status", "admin_help":
			if !admin {
				b.sendError(chatID, "❌ Эта команда доступна только администраторам")
				return
			}
			b.handleAdminCommand(chatID, message.Command(), args)
		default:
			b.sendMessage(chatID, "Неизвестная команда. Список команд: /help")
		}
		return
	}

	switch message.Text {
	case btnToday:
		b.showDay(chatID, b.today())
	case btnTomorrow:
		b.showDay(chatID, b.today().AddDate(0, 0, 1))
	case btnWeek:
		b.showWeek(chatID, b.today())
	case btnNextWeek:
		b.showWeek(chatID, b.today().AddDate(0, 0, 7))
	case btnSelectGroup:
		b.showGroupSelection(chatID)
	case btnCancel:
		b.cancelOperation(chatID)
	default:
		b.handleStartCommand(chatID)
	}
}

func isMenuButton(text string) bool {
	switch text {
	case btnToday, btnTomorrow, btnWeek, btnNextWeek, btnSelectGroup, btnCancel:
		return true
	}
	return false
}

func (b *Bot) handleStartCommand(chatID int64) {
	session := b.snapshot(chatID)
	text := "🎓 Бот расписания занятий ГУУ.\n\n"
	if session.Group == "" {
		text += "Сначала выберите группу: /group или кнопка «" + btnSelectGroup + "»."
	} else {
		text += "Ваша группа: " + displayGroup(session.Group) + ". Выберите, что показать:"
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createMainKeyboard()
	b.api.Send(msg)
}

func (b *Bot) sendHelp(chatID int64, admin bool) {
	text := helpText
	if admin {
		text += "\n" + adminHelpText
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createMainKeyboard()
	b.api.Send(msg)
}

func (b *Bot) showGroupSelection(chatID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	groups, err := b.ScheduleService.Groups(ctx)
	if err != nil {
		b.log.Error("Ошибка получения групп", zap.Error(err))
		b.sendError(chatID, "❌ Ошибка при получении списка групп")
		return
	}
	if len(groups) == 0 {
		b.sendMessage(chatID, "📭 Расписание ещё не загружено. Попробуйте позже.")
		return
	}

	b.setState(chatID, StateSelectingGroup)
	msg := tgbotapi.NewMessage(chatID, "👥 Выберите группу или отправьте её код, например ИУ1-21:")
	if len(groups) <= maxGroupButtons {
		msg.ReplyMarkup = createGroupsKeyboard(groups)
	}
	b.api.Send(msg)
}

func (b *Bot) handleGroupInput(chatID int64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	ok, err := b.ScheduleService.HasGroup(ctx, text)
	if err != nil {
		b.log.Error("Ошибка проверки группы", zap.Error(err))
		b.sendError(chatID, "❌ Ошибка при проверке группы")
		return
	}
	if !ok {
		b.sendError(chatID, "❌ Группа «"+strings.TrimSpace(text)+"» не найдена. Проверьте код или выберите из списка: /group")
		return
	}
	b.selectGroup(chatID, text)
}

func (b *Bot) selectGroup(chatID int64, group string) {
	b.setGroup(chatID, normalizeGroup(group))
	msg := tgbotapi.NewMessage(chatID, "✅ Группа "+displayGroup(normalizeGroup(group))+" выбрана")
	msg.ReplyMarkup = createMainKeyboard()
	b.api.Send(msg)
	b.showDay(chatID, b.today())
}

func (b *Bot) handleCallback(query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		return
	}
	chatID := query.Message.Chat.ID

	if _, err := b.api.AnswerCallbackQuery(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.log.Warn("Не удалось ответить на callback", zap.Error(err))
	}

	if group, ok := strings.CutPrefix(query.Data, groupCallbackPrefix); ok {
		b.selectGroup(chatID, group)
	}
}

func (b *Bot) showDay(chatID int64, date time.Time) {
	group, ok := b.requireGroup(chatID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	entries, err := b.ScheduleService.Day(ctx, group, date)
	if err != nil {
		b.log.Error("Ошибка получения расписания", zap.String("group", group), zap.Error(err))
		b.sendError(chatID, "❌ Ошибка при получении расписания")
		return
	}
	b.sendHTML(chatID, formatDay(group, date, entries))
}

func (b *Bot) showWeek(chatID int64, date time.Time) {
	group, ok := b.requireGroup(chatID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	week, err := b.ScheduleService.Week(ctx, group, date)
	if err != nil {
		b.log.Error("Ошибка получения расписания", zap.String("group", group), zap.Error(err))
		b.sendError(chatID, "❌ Ошибка при получении расписания")
		return
	}
	for _, part := range splitMessage(formatWeek(group, week)) {
		b.sendHTML(chatID, part)
	}
}

func (b *Bot) requireGroup(chatID int64) (string, bool) {
	session := b.snapshot(chatID)
	if session.Group == "" {
		b.sendMessage(chatID, "Сначала выберите группу: /group")
		return "", false
	}
	return session.Group, true
}

func (b *Bot) cancelOperation(chatID int64) {
	b.resetState(chatID)
	msg := tgbotapi.NewMessage(chatID, "❌ Операция отменена")
	msg.ReplyMarkup = createMainKeyboard()
	b.api.Send(msg)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	b.api.Send(msg)
}

func (b *Bot) sendHTML(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("Не удалось отправить сообщение", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) sendError(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	b.api.Send(msg)
}

const helpText = `📖 Команды:
/group - выбрать группу (или /group ИУ1-21)
/today - расписание на сегодня
/tomorrow - расписание на завтра
/week - расписание на неделю`

const adminHelpText = `🛠 Администратору:
/admin_sync - синхронизировать с сайтом сейчас
/admin_import_sheet <ссылка> - импорт из Google-таблицы
/admin_status - состояние синхронизации и последние импорты
Отправьте файл .xlsx или .csv, чтобы загрузить расписание.`
