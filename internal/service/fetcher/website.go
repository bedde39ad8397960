package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/models/config"
	pkgerrors "guu-schedule-bot/pkg/errors"
)

const downloadConcurrency = 4

// Website находит ссылки на таблицы на странице расписания и скачивает их.
type Website struct {
	cfg config.SourceConfig
	dl  *downloader
	log *zap.Logger
}

func NewWebsite(cfg config.SourceConfig, log *zap.Logger) *Website {
	return &Website{
		cfg: cfg,
		dl:  newDownloader(cfg, log),
		log: log.Named("website"),
	}
}

// Fetch возвращает по документу на каждую найденную ссылку на .xlsx/.xls.
func (w *Website) Fetch(ctx context.Context, pageURL string) ([]models.Document, error) {
	links, err := w.discover(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("%s: %w", pageURL, pkgerrors.ErrLinkNotFound)
	}
	w.log.Info("🔗 Найдены ссылки на расписание", zap.Int("count", len(links)), zap.Strings("links", links))

	docs := make([]models.Document, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency)
	for i, link := range links {
		i, link := i, link
		g.Go(func() error {
			body, err := w.dl.get(gctx, link)
			if err != nil {
				return err
			}
			docs[i] = models.Document{Name: documentName(link), URL: link, Content: body}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// discover посещает страницу (не более двух попыток) и собирает ссылки на таблицы
// в порядке появления, без повторов.
func (w *Website) discover(ctx context.Context, pageURL string) ([]string, error) {
	var (
		mu    sync.Mutex
		links []string
		seen  = make(map[string]struct{})
	)

	ua := w.cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	c := colly.NewCollector(
		colly.UserAgent(ua),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(int(w.cfg.MaxFileSize)),
	)
	c.SetRequestTimeout(w.cfg.Timeout)

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" || !isSpreadsheetLink(link) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})

	var status int
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		w.log.Debug("Посещаем страницу", zap.String("url", r.URL.String()))
	})
	c.OnError(func(r *colly.Response, err error) {
		status = r.StatusCode
		w.log.Warn("Ошибка при запросе страницы", zap.String("url", r.Request.URL.String()), zap.Int("status", status), zap.Error(err))
	})

	err := c.Visit(pageURL)
	if err != nil && (status == 0 || retryableStatus(status)) && ctx.Err() == nil {
		status = 0
		err = c.Visit(pageURL)
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(err, colly.ErrMissingURL) || errors.Is(err, colly.ErrNoURLFiltersMatch) {
			return nil, fmt.Errorf("%w: bad schedule url %q", pkgerrors.ErrSourceUnavailable, pageURL)
		}
		return nil, fmt.Errorf("%w: %s: %v", pkgerrors.ErrSourceUnavailable, pageURL, err)
	}
	return links, nil
}

func isSpreadsheetLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	return ext == ".xlsx" || ext == ".xls"
}

func documentName(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	name := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name
}
