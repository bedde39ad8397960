package errors

import (
	"errors"
	"fmt"
)

// Ошибки уровня батча. Ошибки отдельных строк сюда не попадают:
// они собираются как models.RejectedRow.
var (
	ErrSourceUnavailable  = errors.New("source unavailable")
	ErrLinkNotFound       = errors.New("no spreadsheet link found on schedule page")
	ErrInvalidShareURL    = errors.New("invalid spreadsheet share url")
	ErrUnreadableFormat   = errors.New("unreadable format")
	ErrNoValidRows        = fmt.Errorf("%w: no valid schedule rows", ErrUnreadableFormat)
	ErrReconciliationBusy = errors.New("reconciliation busy: overlapping ingestion in progress")
	ErrSizeExceeded       = errors.New("input size exceeded")
)

// Advice подсказывает вызывающей стороне, что делать с ошибкой.
type Advice string

const (
	AdviceRetry          Advice = "retry"
	AdviceFixAndResubmit Advice = "fix-and-resubmit"
	AdviceWait           Advice = "wait"
	AdviceUnknown        Advice = "unknown"
)

// AdviceFor классифицирует ошибку пайплайна.
func AdviceFor(err error) Advice {
	switch {
	case err == nil:
		return AdviceUnknown
	case errors.Is(err, ErrReconciliationBusy):
		return AdviceWait
	case errors.Is(err, ErrSourceUnavailable):
		return AdviceRetry
	case errors.Is(err, ErrUnreadableFormat),
		errors.Is(err, ErrInvalidShareURL),
		errors.Is(err, ErrSizeExceeded),
		errors.Is(err, ErrLinkNotFound):
		return AdviceFixAndResubmit
	default:
		return AdviceUnknown
	}
}
