package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/models/config"
	pkgerrors "guu-schedule-bot/pkg/errors"
)

const sheetHost = "docs.google.com"

var (
	sheetPathRe = regexp.MustCompile(`^/spreadsheets/d/([a-zA-Z0-9_-]+)`)
	gidRe       = regexp.MustCompile(`(?:^|[&#?])gid=(\d+)`)
)

// Sheet скачивает опубликованную Google-таблицу как CSV.
type Sheet struct {
	exportBase string
	dl         *downloader
	log        *zap.Logger
}

func NewSheet(cfg config.SourceConfig, log *zap.Logger) *Sheet {
	return &Sheet{
		exportBase: strings.TrimRight(cfg.SheetExportBase, "/"),
		dl:         newDownloader(cfg, log),
		log:        log.Named("sheet"),
	}
}

func (s *Sheet) Fetch(ctx context.Context, shareURL string) (models.Document, error) {
	id, gid, err := ParseShareURL(shareURL)
	if err != nil {
		return models.Document{}, err
	}

	exportURL := fmt.Sprintf("%s/spreadsheets/d/%s/export?format=csv", s.exportBase, id)
	if gid != "" {
		exportURL += "&gid=" + gid
	}
	s.log.Info("📥 Скачиваем таблицу", zap.String("sheet_id", id), zap.String("gid", gid))

	body, err := s.dl.get(ctx, exportURL)
	if err != nil {
		return models.Document{}, err
	}

	name := "sheet-" + id + ".csv"
	return models.Document{Name: name, URL: exportURL, Content: body}, nil
}

// ParseShareURL извлекает идентификатор таблицы и номер листа (gid, может быть пустым).
func ParseShareURL(shareURL string) (id, gid string, err error) {
	u, err := url.Parse(strings.TrimSpace(shareURL))
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || !strings.EqualFold(u.Host, sheetHost) {
		return "", "", fmt.Errorf("%w: %q", pkgerrors.ErrInvalidShareURL, shareURL)
	}
	m := sheetPathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return "", "", fmt.Errorf("%w: %q", pkgerrors.ErrInvalidShareURL, shareURL)
	}
	id = m[1]
	for _, part := range []string{u.Fragment, u.RawQuery} {
		if g := gidRe.FindStringSubmatch(part); g != nil {
			gid = g[1]
			break
		}
	}
	return id, gid, nil
}
