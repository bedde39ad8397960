package ingest_service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/service/parser"
)

// ImportUpload импортирует файл, загруженный администратором. Имя файла: только подсказка формата.
func (s *Service) ImportUpload(ctx context.Context, name string, content []byte) (*models.IngestionResult, error) {
	return s.Ingest(ctx, models.IngestRequest{
		Content:    content,
		Provenance: models.ProvenanceFileUpload,
		SourceName: name,
		FormatHint: parser.HintFromName(name),
	})
}

// ImportSheet скачивает опубликованную таблицу и импортирует её.
func (s *Service) ImportSheet(ctx context.Context, shareURL string) (*models.IngestionResult, error) {
	doc, err := s.sheet.Fetch(ctx, shareURL)
	if err != nil {
		return s.fetchFailed(ctx, models.ProvenanceSheetImport, shareURL, err)
	}
	return s.Ingest(ctx, models.IngestRequest{
		Content:    doc.Content,
		Provenance: models.ProvenanceSheetImport,
		SourceName: shareURL,
		FormatHint: models.FormatDelimited,
	})
}

// SyncWebsite скачивает все таблицы со страницы расписания; каждая: отдельный батч.
func (s *Service) SyncWebsite(ctx context.Context, provenance models.Provenance) *models.SyncReport {
	report := &models.SyncReport{Provenance: provenance, StartedAt: s.now()}
	defer func() { report.FinishedAt = s.now() }()

	docs, err := s.website.Fetch(ctx, s.scheduleURL)
	if err != nil {
		report.Error = err.Error()
		res, _ := s.fetchFailed(ctx, provenance, s.scheduleURL, err)
		report.Results = append(report.Results, res)
		return report
	}

	for _, doc := range docs {
		res, err := s.Ingest(ctx, models.IngestRequest{
			Content:    doc.Content,
			Provenance: provenance,
			SourceName: doc.URL,
			FormatHint: parser.HintFromName(doc.Name),
		})
		report.Results = append(report.Results, res)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			report.Error = err.Error()
			break
		}
	}
	return report
}

// fetchFailed записывает батч, до которого не дошли байты источника.
func (s *Service) fetchFailed(ctx context.Context, provenance models.Provenance, source string, cause error) (*models.IngestionResult, error) {
	b := &models.IngestionBatch{
		ID:         newBatchID(),
		Provenance: provenance,
		SourceName: source,
		StartedAt:  s.now(),
	}
	log := s.log.With(
		zap.String("batch_id", b.ID),
		zap.String("provenance", string(provenance)),
		zap.String("source", source),
	)
	return s.fail(ctx, log, b, &models.IngestionResult{BatchID: b.ID, SourceName: source}, cause)
}

// RecentBatches возвращает последние записи журнала импорта, новые первыми.
func (s *Service) RecentBatches(ctx context.Context, limit int) ([]models.IngestionBatch, error) {
	return s.batches.ListRecent(ctx, limit)
}
