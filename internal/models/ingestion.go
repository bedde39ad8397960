package models

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Fingerprint: SHA-256 содержимого источника.
type Fingerprint [32]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

func (f Fingerprint) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

func (f *Fingerprint) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseFingerprint(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	if s == "" {
		return f, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(f) {
		return f, fmt.Errorf("invalid fingerprint %q", s)
	}
	copy(f[:], b)
	return f, nil
}

// Provenance: откуда пришёл батч.
type Provenance string

const (
	ProvenanceScheduledSync Provenance = "scheduled-sync"
	ProvenanceForcedSync    Provenance = "forced-sync"
	ProvenanceFileUpload    Provenance = "file-upload"
	ProvenanceSheetImport   Provenance = "sheet-import"
)

// Outcome: итог батча в журнале.
type Outcome string

const (
	OutcomeSucceeded        Outcome = "succeeded"
	OutcomeSkippedDuplicate Outcome = "skipped-duplicate"
	OutcomeFailed           Outcome = "failed"
)

// BatchState: состояние батча внутри оркестратора.
type BatchState string

const (
	StateReceived      BatchState = "received"
	StateFingerprinted BatchState = "fingerprinted"
	StateDuplicate     BatchState = "duplicate"
	StateParsing       BatchState = "parsing"
	StateNormalizing   BatchState = "normalizing"
	StateReconciling   BatchState = "reconciling"
	StateCompleted     BatchState = "completed"
	StateFailed        BatchState = "failed"
)

func (s BatchState) Terminal() bool {
	return s == StateDuplicate || s == StateCompleted || s == StateFailed
}

// Format: подсказка формата для парсера.
type Format int

const (
	FormatUnknown Format = iota
	FormatWorkbook
	FormatDelimited
)

func (f Format) String() string {
	switch f {
	case FormatWorkbook:
		return "workbook"
	case FormatDelimited:
		return "delimited"
	default:
		return "unknown"
	}
}

// RawRow: строка таблицы до валидации. Никогда не сохраняется.
type RawRow struct {
	Source     string
	Index      int
	Group      string
	Day        string
	Time       string
	Subject    string
	Room       string
	Instructor string
}

// RejectReason: почему строка не прошла нормализацию.
type RejectReason string

const (
	ReasonMissingGroup      RejectReason = "MissingGroup"
	ReasonInvalidDay        RejectReason = "InvalidDay"
	ReasonInvalidTimeRange  RejectReason = "InvalidTimeRange"
	ReasonInvertedTimeRange RejectReason = "InvertedTimeRange"
	ReasonMissingSubject    RejectReason = "MissingSubject"
)

type RejectedRow struct {
	Source string       `json:"source"`
	Index  int          `json:"index"`
	Reason RejectReason `json:"reason"`
	Detail string       `json:"detail,omitempty"`
}

// BatchContext: то, что нормализатор проставляет в каждое занятие.
type BatchContext struct {
	BatchID     string
	Fingerprint Fingerprint
}

type NormalizeResult struct {
	Entries  []ScheduleEntry
	Rejected []RejectedRow
}

// IngestionBatch: запись журнала импорта. Только добавляется.
type IngestionBatch struct {
	ID             string      `json:"id" db:"id"`
	Provenance     Provenance  `json:"provenance" db:"provenance"`
	SourceName     string      `json:"source_name" db:"source_name"`
	Fingerprint    Fingerprint `json:"fingerprint" db:"-"`
	Outcome        Outcome     `json:"outcome" db:"outcome"`
	FailureReason  string      `json:"failure_reason,omitempty" db:"failure_reason"`
	RowsParsed     int         `json:"rows_parsed" db:"rows_parsed"`
	RowsRejected   int         `json:"rows_rejected" db:"rows_rejected"`
	EntriesWritten int         `json:"entries_written" db:"entries_written"`
	StartedAt      time.Time   `json:"started_at" db:"started_at"`
	FinishedAt     time.Time   `json:"finished_at" db:"finished_at"`
}

// Document: байты, полученные из внешнего источника.
type Document struct {
	Name    string
	URL     string
	Content []byte
}

type IngestRequest struct {
	Content    []byte
	Provenance Provenance
	SourceName string
	FormatHint Format
}

// IngestStatus: итог вызова Ingest для вызывающей стороны.
type IngestStatus string

const (
	StatusCompleted IngestStatus = "completed"
	StatusDuplicate IngestStatus = "duplicate"
	StatusFailed    IngestStatus = "failed"
)

type IngestionResult struct {
	BatchID        string        `json:"batch_id"`
	Status         IngestStatus  `json:"status"`
	Fingerprint    Fingerprint   `json:"fingerprint"`
	SourceName     string        `json:"source_name,omitempty"`
	RowsParsed     int           `json:"rows_parsed"`
	RowsAccepted   int           `json:"rows_accepted"`
	RowsRejected   int           `json:"rows_rejected"`
	EntriesWritten int           `json:"entries_written"`
	Rejected       []RejectedRow `json:"rejected,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// SyncReport: итог одной синхронизации с сайтом: по батчу на файл.
type SyncReport struct {
	Provenance Provenance         `json:"provenance"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Results    []*IngestionResult `json:"results"`
	Error      string             `json:"error,omitempty"`
}

// Failed: true, если синхронизация упала целиком или хотя бы один файл не импортирован.
func (r *SyncReport) Failed() bool {
	if r.Error != "" {
		return true
	}
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			return true
		}
	}
	return false
}

// SyncRun: сведения об одном запуске синхронизации.
type SyncRun struct {
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Outcome    Outcome     `json:"outcome"`
	Error      string      `json:"error,omitempty"`
	Report     *SyncReport `json:"report,omitempty"`
}
