// Package fetcher скачивает исходные таблицы: файлы со страницы расписания
// и опубликованную Google-таблицу. Хранилища не касается.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"guu-schedule-bot/internal/models/config"
	pkgerrors "guu-schedule-bot/pkg/errors"
)

const (
	defaultUserAgent = "guu-schedule-bot/1.0"
	retryDelay       = 500 * time.Millisecond
)

// downloader: HTTP GET с таймаутом, ограничением размера и одной повторной попыткой.
type downloader struct {
	client    *http.Client
	userAgent string
	maxSize   int64
	log       *zap.Logger
}

func newDownloader(cfg config.SourceConfig, log *zap.Logger) *downloader {
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &downloader{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: ua,
		maxSize:   cfg.MaxFileSize,
		log:       log,
	}
}

// transientError: ошибка, после которой имеет смысл повторить запрос.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (d *downloader) get(ctx context.Context, url string) ([]byte, error) {
	body, err := d.getOnce(ctx, url)
	var te *transientError
	if errors.As(err, &te) {
		d.log.Warn("⚠️ Повторяем запрос", zap.String("url", url), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", pkgerrors.ErrSourceUnavailable, ctx.Err())
		case <-time.After(retryDelay):
		}
		body, err = d.getOnce(ctx, url)
	}
	if err != nil {
		if errors.Is(err, pkgerrors.ErrSizeExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", pkgerrors.ErrSourceUnavailable, url, err)
	}
	return body, nil
}

func (d *downloader) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &transientError{err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if retryableStatus(resp.StatusCode) {
			return nil, &transientError{err}
		}
		return nil, err
	}

	if resp.ContentLength > d.maxSize {
		return nil, fmt.Errorf("%s: %d bytes: %w", url, resp.ContentLength, pkgerrors.ErrSizeExceeded)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, &transientError{err}
	}
	if int64(len(body)) > d.maxSize {
		return nil, fmt.Errorf("%s: more than %d bytes: %w", url, d.maxSize, pkgerrors.ErrSizeExceeded)
	}
	return body, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
