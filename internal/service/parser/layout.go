package parser

import (
	"regexp"
	"strings"

	"guu-schedule-bot/internal/models"
)

type column int

const (
	colDay column = iota
	colTime
	colSubject
	colInstructor
	colRoom
	colGroup
	colStart
	colEnd
	columnCount
)

// layout: номер колонки таблицы для каждого поля, -1 если колонки нет.
type layout [columnCount]int

// positional: раскладка без заголовка: A день, B время, C предмет,
// D преподаватель, E аудитория, F группа.
var positional = layout{0, 1, 2, 3, 4, 5, -1, -1}

var headerAliases = map[string]column{
	"group":         colGroup,
	"group_code":    colGroup,
	"группа":        colGroup,
	"day":           colDay,
	"date":          colDay,
	"weekday":       colDay,
	"день":          colDay,
	"дата":          colDay,
	"день недели":   colDay,
	"time":          colTime,
	"время":         colTime,
	"start_time":    colStart,
	"start":         colStart,
	"начало":        colStart,
	"end_time":      colEnd,
	"end":           colEnd,
	"конец":         colEnd,
	"subject":       colSubject,
	"предмет":       colSubject,
	"дисциплина":    colSubject,
	"teacher":       colInstructor,
	"instructor":    colInstructor,
	"преподаватель": colInstructor,
	"room":          colRoom,
	"аудитория":     colRoom,
}

// headerLayout распознаёт строку заголовка по названиям колонок.
// Заголовок должен называть день и время (одной колонкой или парой начало/конец).
func headerLayout(record []string) (layout, bool) {
	l := layout{-1, -1, -1, -1, -1, -1, -1, -1}
	for i, cell := range record {
		key := strings.ToLower(strings.Join(strings.Fields(cell), " "))
		if c, ok := headerAliases[key]; ok && l[c] < 0 {
			l[c] = i
		}
	}
	hasTime := l[colTime] >= 0 || (l[colStart] >= 0 && l[colEnd] >= 0)
	if l[colDay] < 0 || !hasTime {
		return layout{}, false
	}
	return l, true
}

func (l layout) cell(record []string, c column) string {
	i := l[c]
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (l layout) timeRange(record []string) string {
	if l[colTime] >= 0 {
		return l.cell(record, colTime)
	}
	start, end := l.cell(record, colStart), l.cell(record, colEnd)
	if start == "" && end == "" {
		return ""
	}
	return start + "-" + end
}

var (
	clockLike   = regexp.MustCompile(`\d{1,2}\s*[:.]\s*\d{2}`)
	dateLike    = regexp.MustCompile(`^\d{1,4}[./-]\d{1,2}[./-]\d{1,4}$`)
	serialLike  = regexp.MustCompile(`^\d{1,6}(\.\d+)?$`)
	dayPrefixes = []string{
		"mon", "tue", "wed", "thu", "fri", "sat", "sun",
		"пн", "вт", "ср", "чт", "пт", "сб", "вс",
		"пон", "вто", "сре", "чет", "пят", "суб", "вос",
	}
)

func looksLikeDay(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return false
	}
	if dateLike.MatchString(s) || serialLike.MatchString(s) {
		return true
	}
	for _, p := range dayPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func looksLikeTime(s string) bool {
	return clockLike.MatchString(s)
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// extractRows проходит по строкам одного листа. Пустые строки и строки,
// где ни день, ни время не похожи на дату или время, пропускаются.
// Пустая ячейка дня наследует день предыдущей строки (объединённые ячейки).
func extractRows(source string, records [][]string) []models.RawRow {
	l := positional
	var (
		rows    []models.RawRow
		lastDay string
	)
	for i, record := range records {
		if blank(record) {
			continue
		}
		if hl, ok := headerLayout(record); ok {
			l = hl
			lastDay = ""
			continue
		}

		day, tr := l.cell(record, colDay), l.timeRange(record)
		if day == "" && lastDay != "" && looksLikeTime(tr) {
			day = lastDay
		}
		if !looksLikeDay(day) && !looksLikeTime(tr) {
			continue
		}
		lastDay = day

		rows = append(rows, models.RawRow{
			Source:     source,
			Index:      i + 1,
			Group:      l.cell(record, colGroup),
			Day:        day,
			Time:       tr,
			Subject:    l.cell(record, colSubject),
			Room:       l.cell(record, colRoom),
			Instructor: l.cell(record, colInstructor),
		})
	}
	return rows
}
