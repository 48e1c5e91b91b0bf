// Package service scores proposal tables, requests the written analysis and keeps the
// resulting records up to date.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/analysis/repository"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
	"github.com/FACorreiaa/proposal-risk-analyzer/pkg/observability"
	"github.com/FACorreiaa/proposal-risk-analyzer/pkg/storage"
)

var (
	// ErrNotRefreshable is returned when refreshing a record that did not come from a spreadsheet
	ErrNotRefreshable = errors.New("analysis is not backed by a spreadsheet")
	// ErrSheetsUnavailable is returned when no sheets session is configured
	ErrSheetsUnavailable = errors.New("google sheets is not configured")
	// ErrEmptyTable is returned when there is nothing to analyse
	ErrEmptyTable = errors.New("financial table has no data")
)

// NarrativeGenerator writes the analysis text for a prompt
type NarrativeGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SheetFetcher reads a worksheet as a normalized table
type SheetFetcher interface {
	Fetch(ctx context.Context, spreadsheetID, worksheet string) (*metrics.Table, error)
}

// Source describes where an analysed table came from
type Source struct {
	Kind      repository.SourceKind
	Ref       string // file name or spreadsheet ID
	Worksheet string

	// Content is the raw upload, archived when file storage is configured
	Content     []byte
	ContentType string
}

// Preview is the scoring outcome of a table without narrative or persistence
type Preview struct {
	Detected   metrics.DetectedMetrics `json:"detected_metrics"`
	Assessment metrics.Assessment      `json:"assessment"`
	Band       metrics.Band            `json:"risk_band"`
	Headers    []string                `json:"headers"`
	Rows       int                     `json:"rows"`
}

// RefreshSummary reports the outcome of a bulk refresh
type RefreshSummary struct {
	Refreshed int
	Failed    int
}

// AnalysisService orchestrates scoring, narrative generation and persistence
type AnalysisService struct {
	repo          repository.AnalysisRepository
	generator     NarrativeGenerator
	detector      *metrics.Detector
	sheets        SheetFetcher    // Optional: nil if Google Sheets is not configured
	files         storage.Storage // Optional: nil disables upload archiving
	metrics       *observability.Metrics
	maxPromptRows int
	logger        *slog.Logger
	now           func() time.Time
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(repo repository.AnalysisRepository, generator NarrativeGenerator, logger *slog.Logger) *AnalysisService {
	return &AnalysisService{
		repo:          repo,
		generator:     generator,
		detector:      metrics.NewDetector(metrics.DefaultDictionary()),
		metrics:       observability.NewNopMetrics(),
		maxPromptRows: DefaultMaxPromptRows,
		logger:        logger,
		now:           time.Now,
	}
}

// WithSheets enables spreadsheet-backed analyses and refreshes
func (s *AnalysisService) WithSheets(fetcher SheetFetcher) *AnalysisService {
	s.sheets = fetcher
	return s
}

// WithStorage enables archiving of uploaded source files
func (s *AnalysisService) WithStorage(files storage.Storage) *AnalysisService {
	s.files = files
	return s
}

// WithMetrics records to the given collectors instead of a private registry
func (s *AnalysisService) WithMetrics(m *observability.Metrics) *AnalysisService {
	if m != nil {
		s.metrics = m
	}
	return s
}

// WithMaxPromptRows bounds the table rows included in the prompt
func (s *AnalysisService) WithMaxPromptRows(n int) *AnalysisService {
	if n > 0 {
		s.maxPromptRows = n
	}
	return s
}

// WithDictionary replaces the keyword dictionary used for detection
func (s *AnalysisService) WithDictionary(dict metrics.Dictionary) *AnalysisService {
	s.detector = metrics.NewDetector(dict)
	return s
}

// Preview detects and scores a table without side effects.
func (s *AnalysisService) Preview(table *metrics.Table) *Preview {
	detected := s.detector.Detect(table)
	assessment := metrics.Assess(table, detected)
	return &Preview{
		Detected:   detected,
		Assessment: assessment,
		Band:       metrics.BandFor(assessment),
		Headers:    table.Headers(),
		Rows:       table.NumRows(),
	}
}

// Analyze scores a table, generates the written analysis and persists the record.
// A failed generation is stored as failure text rather than aborting the analysis.
func (s *AnalysisService) Analyze(ctx context.Context, info CompanyInfo, table *metrics.Table, src Source) (_ *repository.Analysis, err error) {
	ctx, span := observability.StartSpan(ctx, "analysis.Analyze",
		trace.WithAttributes(attribute.String("source.kind", string(src.Kind))))
	defer func() { observability.EndSpan(span, err) }()

	info.Normalize()
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if table.NumRows() == 0 || table.NumColumns() == 0 {
		return nil, ErrEmptyTable
	}

	detected := s.detector.Detect(table)
	assessment := metrics.Assess(table, detected)
	band := metrics.BandFor(assessment)

	s.logger.Info("table assessed",
		slog.String("source", string(src.Kind)),
		slog.String("ref", src.Ref),
		slog.Any("tags", detected.Tags()),
		slog.Bool("assessed", assessment.Assessed),
		slog.Float64("score", assessment.Score),
	)

	prompt := BuildPrompt(info, table, detected, assessment, s.maxPromptRows)
	narrative := s.generateNarrative(ctx, prompt)

	record := s.newRecord(info, table, detected, assessment, band, src)
	record.Narrative = narrative

	var archived *storage.FileInfo
	if s.files != nil && len(src.Content) > 0 {
		fileInfo, err := s.files.Upload(ctx, record.ID, src.Ref, src.ContentType, bytes.NewReader(src.Content))
		if err != nil {
			s.logger.Warn("failed to archive source file",
				slog.String("analysis_id", record.ID.String()),
				slog.Any("error", err),
			)
		} else {
			archived = fileInfo
			fileID := fileInfo.ID.String()
			record.SourceFileID = &fileID
		}
	}

	_, persistSpan := observability.StartSpan(ctx, "analysis.persist")
	err = s.repo.Create(ctx, record)
	observability.EndSpan(persistSpan, err)
	if err != nil {
		if archived != nil {
			s.discardArchive(ctx, record.ID, archived.ID)
		}
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}

	s.metrics.AnalysesCreated.WithLabelValues(string(src.Kind), string(band)).Inc()
	if assessment.Assessed {
		s.metrics.RiskScore.Observe(assessment.Score)
	}

	s.logger.Info("analysis saved",
		slog.String("analysis_id", record.ID.String()),
		slog.String("band", string(band)),
	)
	return record, nil
}

// discardArchive removes an uploaded file whose analysis was never saved.
func (s *AnalysisService) discardArchive(ctx context.Context, analysisID, fileID uuid.UUID) {
	// cleanup outlives the request
	ctx = context.WithoutCancel(ctx)
	if err := s.files.Delete(ctx, analysisID, fileID); err != nil {
		s.logger.Warn("failed to remove archived source file",
			slog.String("analysis_id", analysisID.String()),
			slog.String("file_id", fileID.String()),
			slog.Any("error", err),
		)
	}
}

// AnalyzeSheet fetches a worksheet and analyses it.
func (s *AnalysisService) AnalyzeSheet(ctx context.Context, info CompanyInfo, spreadsheetID, worksheet string) (*repository.Analysis, error) {
	if s.sheets == nil {
		return nil, ErrSheetsUnavailable
	}
	info.Normalize()
	if err := info.Validate(); err != nil {
		return nil, err
	}

	table, err := s.sheets.Fetch(ctx, spreadsheetID, worksheet)
	if err != nil {
		return nil, err
	}
	return s.Analyze(ctx, info, table, Source{
		Kind:      repository.SourceSheets,
		Ref:       spreadsheetID,
		Worksheet: worksheet,
	})
}

// Get retrieves an analysis by ID
func (s *AnalysisService) Get(ctx context.Context, id uuid.UUID) (*repository.Analysis, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves every analysis, newest first
func (s *AnalysisService) List(ctx context.Context) ([]*repository.Analysis, error) {
	return s.repo.List(ctx)
}

// FindByCompany returns analyses whose "name - title" fuzzily contains query, best match first.
func (s *AnalysisService) FindByCompany(ctx context.Context, query string) ([]*repository.Analysis, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return all, nil
	}

	targets := make([]string, len(all))
	for i, a := range all {
		targets[i] = a.Name + " - " + a.ProposalTitle
	}

	ranks := fuzzy.RankFindNormalizedFold(query, targets)
	sort.Stable(ranks)

	found := make([]*repository.Analysis, 0, len(ranks))
	for _, r := range ranks {
		found = append(found, all[r.OriginalIndex])
	}
	return found, nil
}

// Refresh re-reads the spreadsheet behind an analysis and updates its score and series.
// The narrative is left untouched.
func (s *AnalysisService) Refresh(ctx context.Context, id uuid.UUID) (_ *repository.Analysis, err error) {
	ctx, span := observability.StartSpan(ctx, "analysis.Refresh",
		trace.WithAttributes(attribute.String("analysis.id", id.String())))
	defer func() {
		observability.EndSpan(span, err)
		result := "ok"
		if err != nil {
			result = "error"
		}
		s.metrics.Refreshes.WithLabelValues(result).Inc()
	}()

	if s.sheets == nil {
		return nil, ErrSheetsUnavailable
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.SourceKind != repository.SourceSheets {
		return nil, ErrNotRefreshable
	}

	table, err := s.sheets.Fetch(ctx, current.SourceRef, current.SourceWorksheet)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh analysis %s: %w", id, err)
	}

	detected := s.detector.Detect(table)
	assessment := metrics.Assess(table, detected)
	start, end := periodBounds(table)

	updated, err := s.repo.UpdateScore(ctx, id, repository.ScoreUpdate{
		FinancialMetrics: metrics.ExtractSeries(table, detected),
		DetectedMetrics:  detected,
		RiskPercentage:   riskPercentage(assessment),
		RiskBand:         metrics.BandFor(assessment),
		PeriodStart:      start,
		PeriodEnd:        end,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("analysis refreshed",
		slog.String("analysis_id", id.String()),
		slog.String("band", string(updated.RiskBand)),
	)
	return updated, nil
}

// RefreshAll refreshes every spreadsheet-backed analysis, continuing past failures.
func (s *AnalysisService) RefreshAll(ctx context.Context) (RefreshSummary, error) {
	var summary RefreshSummary
	if s.sheets == nil {
		return summary, ErrSheetsUnavailable
	}

	records, err := s.repo.ListBySource(ctx, repository.SourceSheets)
	if err != nil {
		return summary, fmt.Errorf("failed to list sheet analyses: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if _, err := s.Refresh(ctx, rec.ID); err != nil {
			s.logger.Warn("failed to refresh analysis",
				slog.String("analysis_id", rec.ID.String()),
				slog.Any("error", err),
			)
			summary.Failed++
			continue
		}
		summary.Refreshed++
	}
	return summary, nil
}

func (s *AnalysisService) generateNarrative(ctx context.Context, prompt string) string {
	ctx, span := observability.StartSpan(ctx, "analysis.narrative")
	started := s.now()
	text, err := s.generator.Generate(ctx, prompt)
	s.metrics.NarrativeDuration.Observe(s.now().Sub(started).Seconds())
	observability.EndSpan(span, err)

	if err != nil {
		s.metrics.NarrativeFailures.Inc()
		s.logger.Error("failed to generate analysis", slog.Any("error", err))
		return fmt.Sprintf("Analysis generation failed. Error: %v", err)
	}
	return text
}

func (s *AnalysisService) newRecord(info CompanyInfo, table *metrics.Table, detected metrics.DetectedMetrics, assessment metrics.Assessment, band metrics.Band, src Source) *repository.Analysis {
	start, end := periodBounds(table)
	now := s.now().UTC()

	return &repository.Analysis{
		ID:                 uuid.New(),
		BlockchainAddress:  info.BlockchainAddress,
		Name:               info.Name,
		LoanAmount:         info.LoanAmount,
		ProposalTitle:      info.ProposalTitle,
		CompanyType:        info.CompanyType,
		CompanyDescription: info.Description,
		FinancialMetrics:   metrics.ExtractSeries(table, detected),
		DetectedMetrics:    detected,
		RiskPercentage:     riskPercentage(assessment),
		RiskBand:           band,
		PeriodStart:        start,
		PeriodEnd:          end,
		SourceKind:         src.Kind,
		SourceRef:          src.Ref,
		SourceWorksheet:    src.Worksheet,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// periodBounds returns the second and last headers, the columns a wide table spans.
func periodBounds(table *metrics.Table) (string, string) {
	headers := table.Headers()
	if len(headers) < 2 {
		return "", ""
	}
	return headers[1], headers[len(headers)-1]
}

func riskPercentage(a metrics.Assessment) *float64 {
	if !a.Assessed {
		return nil
	}
	score := a.Score
	return &score
}
