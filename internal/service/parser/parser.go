// Package parser превращает байты таблицы расписания в сырые строки.
// Поддерживаются книги xlsx и текст с разделителями (запятая, точка с запятой, табуляция).
package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"guu-schedule-bot/internal/models"
	pkgerrors "guu-schedule-bot/pkg/errors"
)

// Parse разбирает content. Подсказка hint определяет, какой формат пробовать первым;
// без подсказки сначала книга, затем текст с разделителями.
func Parse(content []byte, hint models.Format) ([]models.RawRow, error) {
	order := []models.Format{models.FormatWorkbook, models.FormatDelimited}
	if hint == models.FormatDelimited {
		order = []models.Format{models.FormatDelimited, models.FormatWorkbook}
	}

	var errs []string
	for _, format := range order {
		var (
			rows []models.RawRow
			err  error
		)
		switch format {
		case models.FormatWorkbook:
			rows, err = parseWorkbook(content)
		case models.FormatDelimited:
			rows, err = parseDelimited(content)
		}
		if err == nil {
			return rows, nil
		}
		errs = append(errs, fmt.Sprintf("%s: %v", format, err))
	}
	return nil, fmt.Errorf("%w: %s", pkgerrors.ErrUnreadableFormat, strings.Join(errs, "; "))
}

// HintFromName угадывает формат по расширению имени файла.
func HintFromName(name string) models.Format {
	ext := strings.ToLower(filepath.Ext(name))
	if i := strings.IndexAny(ext, "?#"); i >= 0 {
		ext = ext[:i]
	}
	switch ext {
	case ".xlsx", ".xlsm":
		return models.FormatWorkbook
	case ".csv", ".tsv", ".txt":
		return models.FormatDelimited
	default:
		return models.FormatUnknown
	}
}
