// Package normalizer проверяет сырые строки и превращает их в занятия.
// Ошибка в строке не прерывает батч: строка попадает в список отклонённых.
package normalizer

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"guu-schedule-bot/internal/models"
)

func Normalize(rows []models.RawRow, bc models.BatchContext) models.NormalizeResult {
	var res models.NormalizeResult
	for _, row := range rows {
		entry, reason, detail := normalizeRow(row)
		if reason != "" {
			res.Rejected = append(res.Rejected, models.RejectedRow{
				Source: row.Source,
				Index:  row.Index,
				Reason: reason,
				Detail: detail,
			})
			continue
		}
		entry.BatchID = bc.BatchID
		entry.Fingerprint = bc.Fingerprint
		res.Entries = append(res.Entries, entry)
	}
	return res
}

func normalizeRow(row models.RawRow) (models.ScheduleEntry, models.RejectReason, string) {
	group := models.NormalizeGroup(row.Group)
	if group == "" {
		return models.ScheduleEntry{}, models.ReasonMissingGroup, ""
	}

	day, ok := ParseDay(row.Day)
	if !ok {
		return models.ScheduleEntry{}, models.ReasonInvalidDay, row.Day
	}

	start, end, err := ParseTimeRange(row.Time)
	if err != nil {
		reason := models.ReasonInvalidTimeRange
		if errors.Is(err, errInverted) {
			reason = models.ReasonInvertedTimeRange
		}
		return models.ScheduleEntry{}, reason, row.Time
	}

	subject := collapse(row.Subject)
	if subject == "" {
		return models.ScheduleEntry{}, models.ReasonMissingSubject, ""
	}

	return models.ScheduleEntry{
		Group:      group,
		Day:        day,
		Start:      start,
		End:        end,
		Subject:    subject,
		Room:       collapse(row.Room),
		Instructor: collapse(row.Instructor),
	}, "", ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday,

	"понедельник": time.Monday, "пн": time.Monday, "пнд": time.Monday,
	"вторник": time.Tuesday, "вт": time.Tuesday, "втр": time.Tuesday,
	"среда": time.Wednesday, "ср": time.Wednesday, "срд": time.Wednesday,
	"четверг": time.Thursday, "чт": time.Thursday, "чтв": time.Thursday,
	"пятница": time.Friday, "пт": time.Friday, "птн": time.Friday,
	"суббота": time.Saturday, "сб": time.Saturday, "сбт": time.Saturday,
	"воскресенье": time.Sunday, "вс": time.Sunday, "вск": time.Sunday,
}

// День, месяц и год через ".", "-" или "/". Двузначный год считаем от 2000.
var dateCellRe = regexp.MustCompile(`^(\d{1,2})[./-](\d{1,2})[./-](\d{2,4})$`)

// Диапазон серийных номеров дат Excel, которые считаем датой (1927–2173 гг.).
const (
	minSerial = 10000
	maxSerial = 100000
)

var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDay разбирает ячейку дня: день недели (англ./рус., полностью или сокращённо)
// или дату в одном из поддерживаемых форматов, включая серийный номер Excel.
func ParseDay(s string) (models.Day, bool) {
	s = strings.ToLower(collapse(s))
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return models.Day{}, false
	}
	if w, ok := weekdays[s]; ok {
		return models.WeekdayDay(w), true
	}
	if d, ok := parseDate(s); ok {
		return d, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return models.DateDay(t), true
	}
	// Дата с временем из выгрузок: "2025-09-01 00:00:00"
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return models.DateDay(t), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= minSerial && f < maxSerial {
		return models.DateDay(excelEpoch.AddDate(0, 0, int(f))), true
	}
	return models.Day{}, false
}

func parseDate(s string) (models.Day, bool) {
	m := dateCellRe.FindStringSubmatch(s)
	if m == nil {
		return models.Day{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		year += 2000
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date нормализует 31.02 в 03.03: такую дату отклоняем
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return models.Day{}, false
	}
	return models.DateDay(t), true
}

var timeRangeRe = regexp.MustCompile(`^(\d{1,2})\s*[:.]\s*(\d{2})\s*[-‐‑‒–—]\s*(\d{1,2})\s*[:.]\s*(\d{2})$`)

var errInverted = errors.New("start is not before end")

// ParseTimeRange разбирает "HH:MM-HH:MM". Разделитель часов и минут: ":" или ".",
// между временами: дефис или тире.
func ParseTimeRange(s string) (models.Clock, models.Clock, error) {
	m := timeRangeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, fmt.Errorf("malformed time range %q", s)
	}
	start, err := clock(m[1], m[2])
	if err != nil {
		return 0, 0, err
	}
	end, err := clock(m[3], m[4])
	if err != nil {
		return 0, 0, err
	}
	if start >= end {
		return 0, 0, errInverted
	}
	return start, end, nil
}

func clock(h, m string) (models.Clock, error) {
	hour, _ := strconv.Atoi(h)
	minute, _ := strconv.Atoi(m)
	if hour > 23 || minute > 59 {
		return 0, fmt.Errorf("time %s:%s out of range", h, m)
	}
	return models.NewClock(hour, minute), nil
}
