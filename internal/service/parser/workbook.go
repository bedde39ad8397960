package parser

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"guu-schedule-bot/internal/models"
)

var zipSignature = []byte("PK\x03\x04")

func parseWorkbook(content []byte) ([]models.RawRow, error) {
	if !bytes.HasPrefix(content, zipSignature) {
		return nil, errors.New("not a zip container")
	}

	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	var rows []models.RawRow
	for _, sheet := range sheets {
		records, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		rows = append(rows, extractRows(sheet, records)...)
	}
	return rows, nil
}
