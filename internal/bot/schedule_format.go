package bot

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"guu-schedule-bot/internal/models"
)

// Лимит Telegram на длину сообщения: 4096 символов.
const maxMessageLength = 4000

func normalizeGroup(s string) string {
	return models.NormalizeGroup(s)
}

func displayGroup(code string) string {
	return strings.ToUpper(code)
}

// Вспомогательная функция для дня недели на русском
func getRussianDayOfWeek(day time.Weekday) string {
	days := []string{
		"Воскресенье",
		"Понедельник",
		"Вторник",
		"Среда",
		"Четверг",
		"Пятница",
		"Суббота",
	}
	if int(day) < len(days) {
		return days[day]
	}
	return ""
}

func formatDay(group string, date time.Time, entries []models.ScheduleEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 <b>%s</b>, %s %s\n\n",
		html.EscapeString(displayGroup(group)),
		getRussianDayOfWeek(date.Weekday()),
		date.Format("02.01.2006"))
	writeEntries(&sb, entries)
	return sb.String()
}

func formatWeek(group string, week []models.DaySchedule) string {
	var sb strings.Builder
	if len(week) > 0 {
		fmt.Fprintf(&sb, "🗓 <b>%s</b>, неделя с %s\n",
			html.EscapeString(displayGroup(group)),
			week[0].Date.Format("02.01.2006"))
	}
	for _, day := range week {
		fmt.Fprintf(&sb, "\n<b>%s, %s</b>\n", getRussianDayOfWeek(day.Date.Weekday()), day.Date.Format("02.01"))
		writeEntries(&sb, day.Entries)
	}
	return sb.String()
}

func writeEntries(sb *strings.Builder, entries []models.ScheduleEntry) {
	if len(entries) == 0 {
		sb.WriteString("📭 Занятий нет\n")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(sb, "🕐 %s-%s <b>%s</b>\n", e.Start, e.End, html.EscapeString(e.Subject))
		var details []string
		if e.Instructor != "" {
			details = append(details, "👤 "+html.EscapeString(e.Instructor))
		}
		if e.Room != "" {
			details = append(details, "🚪 "+html.EscapeString(e.Room))
		}
		if len(details) > 0 {
			sb.WriteString("      " + strings.Join(details, "  ") + "\n")
		}
	}
}

// splitMessage режет длинный текст по строкам на части не длиннее maxMessageLength.
func splitMessage(text string) []string {
	if len(text) <= maxMessageLength {
		return []string{text}
	}
	var (
		parts []string
		cur   strings.Builder
	)
	for _, line := range strings.SplitAfter(text, "\n") {
		if cur.Len()+len(line) > maxMessageLength && cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

func formatResult(res *models.IngestionResult, err error) string {
	if res == nil {
		text := "❌ Импорт не выполнен: " + html.EscapeString(errText(err))
		if advice := adviceText(err); advice != "" {
			text += "\n" + advice
		}
		return text
	}

	var sb strings.Builder
	source := res.SourceName
	if source == "" {
		source = res.BatchID
	}
	switch res.Status {
	case models.StatusCompleted:
		fmt.Fprintf(&sb, "✅ <b>Импортировано</b>: %s\n", html.EscapeString(source))
		fmt.Fprintf(&sb, "Строк разобрано: %d, принято: %d, отклонено: %d\n", res.RowsParsed, res.RowsAccepted, res.RowsRejected)
		fmt.Fprintf(&sb, "Записано занятий: %d\n", res.EntriesWritten)
	case models.StatusDuplicate:
		fmt.Fprintf(&sb, "♻️ <b>Файл уже был импортирован</b>: %s\n", html.EscapeString(source))
	default:
		fmt.Fprintf(&sb, "❌ <b>Ошибка импорта</b>: %s\n%s\n", html.EscapeString(source), html.EscapeString(errText(err)))
		if advice := adviceText(err); advice != "" {
			sb.WriteString(advice + "\n")
		}
	}

	const maxRejected = 10
	for i, r := range res.Rejected {
		if i == maxRejected {
			fmt.Fprintf(&sb, "… и ещё %d\n", len(res.Rejected)-maxRejected)
			break
		}
		fmt.Fprintf(&sb, "  ⚠️ %s, строка %d: %s", html.EscapeString(r.Source), r.Index, r.Reason)
		if r.Detail != "" {
			fmt.Fprintf(&sb, " (%s)", html.EscapeString(r.Detail))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatSyncReport(report *models.SyncReport) string {
	var sb strings.Builder
	if report.Failed() {
		sb.WriteString("⚠️ <b>Синхронизация завершилась с ошибками</b>\n")
	} else {
		sb.WriteString("✅ <b>Синхронизация завершена</b>\n")
	}
	if report.Error != "" {
		sb.WriteString(html.EscapeString(report.Error) + "\n")
	}
	for _, res := range report.Results {
		sb.WriteString("\n" + formatResult(res, resultErr(res)))
	}
	return sb.String()
}

func formatSyncRun(title string, run models.SyncRun, ok bool, loc *time.Location) string {
	if !ok {
		return title + ": ещё не запускалась\n"
	}
	status := "✅"
	if run.Outcome == models.OutcomeFailed {
		status = "❌"
	}
	line := fmt.Sprintf("%s: %s %s (%s)", title, status,
		run.StartedAt.In(loc).Format("02.01.2006 15:04"),
		run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	if run.Error != "" {
		line += "\n   " + html.EscapeString(run.Error)
	}
	return line + "\n"
}

func formatBatches(batches []models.IngestionBatch, loc *time.Location) string {
	if len(batches) == 0 {
		return "Импортов ещё не было\n"
	}
	var sb strings.Builder
	for _, b := range batches {
		icon := "✅"
		switch b.Outcome {
		case models.OutcomeSkippedDuplicate:
			icon = "♻️"
		case models.OutcomeFailed:
			icon = "❌"
		}
		fmt.Fprintf(&sb, "%s %s %s %s", icon, b.StartedAt.In(loc).Format("02.01 15:04"), b.Provenance, html.EscapeString(shorten(b.SourceName, 60)))
		if b.Outcome == models.OutcomeSucceeded {
			fmt.Fprintf(&sb, ", занятий: %d", b.EntriesWritten)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n+1:])
}

func errText(err error) string {
	if err == nil {
		return "неизвестная ошибка"
	}
	return err.Error()
}

func resultErr(res *models.IngestionResult) error {
	if res == nil || res.Error == "" {
		return nil
	}
	return errors.New(res.Error)
}
