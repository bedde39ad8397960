package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"guu-schedule-bot/internal/models"
)

// Больше групп в одной inline-клавиатуре Telegram показывает плохо.
const (
	maxGroupButtons = 90
	groupsPerRow    = 3
)

func createMainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnToday),
			tgbotapi.NewKeyboardButton(btnTomorrow),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnWeek),
			tgbotapi.NewKeyboardButton(btnNextWeek),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSelectGroup),
		),
	)
}

func createGroupsKeyboard(groups []models.Group) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton

	for _, group := range groups {
		btn := tgbotapi.NewInlineKeyboardButtonData(displayGroup(group.Code), groupCallbackPrefix+group.Code)
		row = append(row, btn)
		if len(row) == groupsPerRow {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func createCancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancel),
		),
	)
}
