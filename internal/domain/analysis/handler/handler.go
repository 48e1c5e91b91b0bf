// Package handler exposes the analysis service over HTTP.
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/analysis/repository"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/analysis/service"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/ingest/parser"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/report"
	"github.com/FACorreiaa/proposal-risk-analyzer/pkg/observability"
	"github.com/FACorreiaa/proposal-risk-analyzer/pkg/storage"
)

const (
	defaultMaxUploadBytes = 10 << 20
	maxJSONBodyBytes      = 1 << 20
	multipartMemory       = 8 << 20
)

// AnalysisHandler serves the analysis and proposal endpoints
type AnalysisHandler struct {
	svc            *service.AnalysisService
	files          storage.Storage // Optional: nil disables the source download
	metrics        *observability.Metrics
	limiter        *rate.Limiter // Optional: nil disables rate limiting
	maxUploadBytes int64
	parseOpts      parser.Options
	logger         *slog.Logger
	now            func() time.Time
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(svc *service.AnalysisService, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		svc:            svc,
		metrics:        observability.NewNopMetrics(),
		maxUploadBytes: defaultMaxUploadBytes,
		parseOpts:      parser.DefaultOptions(),
		logger:         logger,
		now:            time.Now,
	}
}

// WithStorage enables downloading archived source files
func (h *AnalysisHandler) WithStorage(files storage.Storage) *AnalysisHandler {
	h.files = files
	return h
}

// WithMetrics records request counts and latency
func (h *AnalysisHandler) WithMetrics(m *observability.Metrics) *AnalysisHandler {
	if m != nil {
		h.metrics = m
	}
	return h
}

// WithRateLimit caps the request rate across all clients
func (h *AnalysisHandler) WithRateLimit(perSecond, burst int) *AnalysisHandler {
	if perSecond > 0 {
		if burst < 1 {
			burst = perSecond
		}
		h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return h
}

// WithMaxUploadBytes sets the largest accepted upload
func (h *AnalysisHandler) WithMaxUploadBytes(n int64) *AnalysisHandler {
	if n > 0 {
		h.maxUploadBytes = n
	}
	return h
}

// Routes builds the router for every endpoint.
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, h.instrument, h.rateLimit)

	r.Get("/healthz", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/analyses/preview", h.Preview)
		r.Post("/analyses", h.Analyze)
		r.Post("/analyses/sheets", h.AnalyzeSheet)

		r.Get("/proposals", h.ListProposals)
		r.Get("/proposals/{id}", h.GetProposal)
		r.Post("/proposals/{id}/refresh", h.Refresh)
		r.Get("/proposals/{id}/report.txt", h.TextReport)
		r.Get("/proposals/{id}/report.html", h.HTMLReport)
		r.Get("/proposals/{id}/export.csv", h.ExportCSV)
		r.Get("/proposals/{id}/metrics.csv", h.MetricsCSV)
		r.Get("/proposals/{id}/source", h.Source)
	})
	return r
}

// Health reports liveness
func (h *AnalysisHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Preview scores an uploaded table without generating or saving anything
func (h *AnalysisHandler) Preview(w http.ResponseWriter, r *http.Request) {
	upload, err := h.readUpload(w, r)
	if err != nil {
		h.fail(w, "failed to read upload", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"preview": h.svc.Preview(upload.table),
	})
}

// Analyze scores an uploaded table, generates the written analysis and saves it
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	upload, err := h.readUpload(w, r)
	if err != nil {
		h.fail(w, "failed to read upload", err)
		return
	}

	info, err := companyFromForm(r)
	if err != nil {
		h.fail(w, "invalid company information", err)
		return
	}

	rec, err := h.svc.Analyze(r.Context(), info, upload.table, service.Source{
		Kind:        repository.SourceUpload,
		Ref:         upload.filename,
		Content:     upload.content,
		ContentType: upload.contentType,
	})
	if err != nil {
		h.fail(w, "failed to analyze upload", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":   "success",
		"proposal": newProposalView(rec),
	})
}

type sheetsRequest struct {
	service.CompanyInfo
	SpreadsheetID string `json:"spreadsheet_id"`
	Worksheet     string `json:"worksheet"`
}

// AnalyzeSheet analyses a worksheet of a Google spreadsheet
func (h *AnalysisHandler) AnalyzeSheet(w http.ResponseWriter, r *http.Request) {
	var req sheetsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	req.SpreadsheetID = strings.TrimSpace(req.SpreadsheetID)
	if req.SpreadsheetID == "" {
		writeError(w, http.StatusBadRequest, "spreadsheet_id is required")
		return
	}

	rec, err := h.svc.AnalyzeSheet(r.Context(), req.CompanyInfo, req.SpreadsheetID, strings.TrimSpace(req.Worksheet))
	if err != nil {
		h.fail(w, "failed to analyze spreadsheet", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":   "success",
		"proposal": newProposalView(rec),
	})
}

// ListProposals returns every analysis, or those matching ?company=
func (h *AnalysisHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	var (
		recs []*repository.Analysis
		err  error
	)
	if company := strings.TrimSpace(r.URL.Query().Get("company")); company != "" {
		recs, err = h.svc.FindByCompany(r.Context(), company)
	} else {
		recs, err = h.svc.List(r.Context())
	}
	if err != nil {
		h.fail(w, "failed to fetch proposals", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"proposals": newProposalViews(recs),
	})
}

// GetProposal returns one analysis
func (h *AnalysisHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"proposal": newProposalView(rec),
	})
}

// Refresh recomputes a spreadsheet-backed analysis from the current sheet contents
func (h *AnalysisHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	rec, err := h.svc.Refresh(r.Context(), id)
	if err != nil {
		h.fail(w, "failed to refresh proposal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"proposal": newProposalView(rec),
	})
}

// TextReport downloads the plain text report
func (h *AnalysisHandler) TextReport(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	body := report.Text(rec, h.now())
	h.attachment(w, "text/plain; charset=utf-8", reportName(rec, "txt", h.now()), []byte(body))
}

// HTMLReport renders the styled report inline
func (h *AnalysisHandler) HTMLReport(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.HTML(&buf, rec, h.now()); err != nil {
		h.fail(w, "failed to render report", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// ExportCSV downloads the analysis as a CSV row
func (h *AnalysisHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.WriteRecordCSV(&buf, rec); err != nil {
		h.fail(w, "failed to export proposal", err)
		return
	}
	h.attachment(w, "text/csv; charset=utf-8", reportName(rec, "csv", h.now()), buf.Bytes())
}

// MetricsCSV downloads the stored series, one column per metric
func (h *AnalysisHandler) MetricsCSV(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.WriteMetricsCSV(&buf, rec); err != nil {
		h.fail(w, "failed to export metrics", err)
		return
	}
	h.attachment(w, "text/csv; charset=utf-8", fmt.Sprintf("financial_metrics_%s.csv", rec.ID), buf.Bytes())
}

// Source downloads the archived upload an analysis was built from
func (h *AnalysisHandler) Source(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.files == nil || rec.SourceFileID == nil {
		writeError(w, http.StatusNotFound, "no source file archived for this proposal")
		return
	}
	fileID, err := uuid.Parse(*rec.SourceFileID)
	if err != nil {
		h.fail(w, "invalid source file reference", err)
		return
	}

	body, info, err := h.files.Download(r.Context(), rec.ID, fileID)
	if err != nil {
		h.fail(w, "failed to download source file", err)
		return
	}
	defer body.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("failed to stream source file",
			slog.String("analysis_id", rec.ID.String()),
			slog.Any("error", err),
		)
	}
}

type uploadedFile struct {
	filename    string
	contentType string
	content     []byte
	table       *metrics.Table
}

// readUpload reads the multipart "file" field and parses it into a table.
func (h *AnalysisHandler) readUpload(w http.ResponseWriter, r *http.Request) (*uploadedFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, fmt.Errorf("%w: no file uploaded", parser.ErrEmptyFile)
		}
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}

	table, err := parser.Parse(header.Filename, bytes.NewReader(content), h.parseOpts)
	if err != nil {
		return nil, err
	}

	return &uploadedFile{
		filename:    header.Filename,
		contentType: header.Header.Get("Content-Type"),
		content:     content,
		table:       table,
	}, nil
}

func companyFromForm(r *http.Request) (service.CompanyInfo, error) {
	info := service.CompanyInfo{
		BlockchainAddress: r.FormValue("blockchain_address"),
		Name:              r.FormValue("name"),
		ProposalTitle:     r.FormValue("proposal_title"),
		CompanyType:       r.FormValue("company_type"),
		Description:       r.FormValue("company_description"),
	}
	if raw := strings.TrimSpace(r.FormValue("loan_amount")); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return info, fmt.Errorf("%w: loan_amount is not a number", service.ErrInvalidCompanyInfo)
		}
		info.LoanAmount = amount
	}
	return info, nil
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposal id")
		return uuid.Nil, false
	}
	return id, true
}

// lookup loads the analysis named by the {id} URL parameter, writing the error response
// when it cannot.
func (h *AnalysisHandler) lookup(w http.ResponseWriter, r *http.Request) (*repository.Analysis, bool) {
	id, ok := parseID(w, r)
	if !ok {
		return nil, false
	}
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Proposal not found")
			return nil, false
		}
		h.fail(w, "failed to fetch proposal", err)
		return nil, false
	}
	return rec, true
}

// fail logs server-side failures and writes the error envelope.
func (h *AnalysisHandler) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	} else {
		h.logger.Debug(msg, slog.Int("status", status), slog.Any("error", err))
	}
	writeError(w, status, fmt.Sprintf("%s: %v", msg, err))
}

func (h *AnalysisHandler) attachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// reportName builds "financial_report_<name>_<yyyymmdd>.<ext>".
func reportName(rec *repository.Analysis, ext string, now time.Time) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, rec.Name)
	if name == "" {
		name = "company"
	}
	stamp := rec.CreatedAt
	if stamp.IsZero() {
		stamp = now
	}
	return fmt.Sprintf("financial_report_%s_%s.%s", name, stamp.Format("20060102"), ext)
}
