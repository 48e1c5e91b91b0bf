package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/analysis/repository"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/analysis/service"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/fixtures"
	"github.com/FACorreiaa/proposal-risk-analyzer/pkg/observability"
	"github.com/FACorreiaa/proposal-risk-analyzer/pkg/storage"
)

// navUpload is a dashboard export: a title line above the header row
const navUpload = "Fund report,,,\nCategory,01/2024,02/2024,03/2024\nNAV,100,110,90\n"

type memoryRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*repository.Analysis
	order   []uuid.UUID
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[uuid.UUID]*repository.Analysis)}
}

func (r *memoryRepo) Create(_ context.Context, a *repository.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.records[a.ID] = &cp
	r.order = append(r.order, a.ID)
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memoryRepo) List(_ context.Context) ([]*repository.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*repository.Analysis, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		cp := *r.records[r.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memoryRepo) ListBySource(ctx context.Context, kind repository.SourceKind) ([]*repository.Analysis, error) {
	all, _ := r.List(ctx)
	var out []*repository.Analysis
	for _, a := range all {
		if a.SourceKind == kind {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateScore(_ context.Context, id uuid.UUID, u repository.ScoreUpdate) (*repository.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a.FinancialMetrics = u.FinancialMetrics
	a.DetectedMetrics = u.DetectedMetrics
	a.RiskPercentage = u.RiskPercentage
	a.RiskBand = u.RiskBand
	a.PeriodStart = u.PeriodStart
	a.PeriodEnd = u.PeriodEnd
	cp := *a
	return &cp, nil
}

type staticGenerator struct{ text string }

func (g staticGenerator) Generate(context.Context, string) (string, error) {
	return g.text, nil
}

type staticSheets struct{ table *metrics.Table }

func (s staticSheets) Fetch(context.Context, string, string) (*metrics.Table, error) {
	return s.table, nil
}

type testEnv struct {
	repo    *memoryRepo
	svc     *service.AnalysisService
	handler *AnalysisHandler
	router  http.Handler
}

func newTestEnv(t *testing.T, configure func(*service.AnalysisService, *AnalysisHandler)) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMemoryRepo()
	svc := service.NewAnalysisService(repo, staticGenerator{text: "## Summary\nSteady NAV."}, logger)
	h := NewAnalysisHandler(svc, logger)
	h.now = func() time.Time { return time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC) }
	if configure != nil {
		configure(svc, h)
	}
	return &testEnv{repo: repo, svc: svc, handler: h, router: h.Routes()}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seed(t *testing.T, a *repository.Analysis) *repository.Analysis {
	t.Helper()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	require.NoError(t, e.repo.Create(context.Background(), a))
	return a
}

func multipartRequest(t *testing.T, url, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func companyFields() map[string]string {
	return map[string]string{
		"blockchain_address":  "0xabcdef0123456789abcdef0123456789abcdef01",
		"name":                "Acme Lending",
		"loan_amount":         "12.5",
		"proposal_title":      "Warehouse line",
		"company_type":        "Finance",
		"company_description": "Receivables financing",
	}
}

func ptr(f float64) *float64 { return &f }

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("scores the upload", func(t *testing.T) {
		rec := env.do(multipartRequest(t, "/api/analyses/preview", "fund.csv", navUpload, nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decode(t, rec)
		assert.Equal(t, "success", body["status"])
		preview := body["preview"].(map[string]any)
		assert.Equal(t, "low", preview["risk_band"])
		assert.Equal(t, float64(1), preview["rows"])
		labels := preview["detected_metrics"].(map[string]any)["labels"].(map[string]any)
		assert.Equal(t, []any{"NAV"}, labels["nav"])
	})

	tests := []struct {
		name     string
		filename string
		content  string
		want     int
	}{
		{"unsupported extension", "fund.pdf", navUpload, http.StatusBadRequest},
		{"empty file", "fund.csv", "", http.StatusBadRequest},
		{"no file field", "", "", http.StatusBadRequest},
		{"corrupt workbook", "fund.xlsx", "PK\x03\x04 not really a zip", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(multipartRequest(t, "/api/analyses/preview", tt.filename, tt.content, nil))
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "error", decode(t, rec)["status"])
		})
	}

	t.Run("overflowing cell is dropped", func(t *testing.T) {
		upload := "Fund report,,,\nCategory,01/2024,02/2024,03/2024\nNAV,1e400,100,110\n"
		rec := env.do(multipartRequest(t, "/api/analyses/preview", "fund.csv", upload, nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		preview := decode(t, rec)["preview"].(map[string]any)
		assert.Equal(t, "low", preview["risk_band"])
		assessment := preview["assessment"].(map[string]any)
		assert.InDelta(t, 100*5.0/105.0, assessment["score"], 1e-9)
	})

	assert.Empty(t, env.repo.order, "preview never persists")
}

func TestWriteJSON_UnencodableValue(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"score": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "error", decode(t, rec)["status"])
}

func TestAnalyze(t *testing.T) {
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	env := newTestEnv(t, func(svc *service.AnalysisService, h *AnalysisHandler) {
		svc.WithStorage(files)
		h.WithStorage(files)
	})

	rec := env.do(multipartRequest(t, "/api/analyses", "fund.csv", navUpload, companyFields()))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	proposal := decode(t, rec)["proposal"].(map[string]any)
	assert.Equal(t, "Acme Lending", proposal["name"])
	assert.Equal(t, "Warehouse line", proposal["proposal_title"])
	assert.Equal(t, 12.5, proposal["loan_amount"])
	assert.Equal(t, "## Summary\nSteady NAV.", proposal["gemini_analysis"])
	assert.Equal(t, "low", proposal["risk_band"])
	assert.Equal(t, "upload", proposal["source_kind"])

	series := proposal["financial_metrics"].(map[string]any)
	assert.Equal(t, []any{100.0, 110.0, 90.0}, series["nav"])
	assert.Equal(t, []any{}, series["cash_flow"])
	assert.Len(t, series, 3)

	require.Len(t, env.repo.order, 1)
	stored := env.repo.records[env.repo.order[0]]
	require.NotNil(t, stored.SourceFileID)

	t.Run("source file can be downloaded", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/proposals/"+stored.ID.String()+"/source", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, navUpload, rec.Body.String())
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "fund.csv")
	})

	t.Run("rejects invalid company fields", func(t *testing.T) {
		fields := companyFields()
		fields["name"] = " "
		rec := env.do(multipartRequest(t, "/api/analyses", "fund.csv", navUpload, fields))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode(t, rec)["message"], "name (required)")
	})

	t.Run("rejects malformed loan amount", func(t *testing.T) {
		fields := companyFields()
		fields["loan_amount"] = "lots"
		rec := env.do(multipartRequest(t, "/api/analyses", "fund.csv", navUpload, fields))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	assert.Len(t, env.repo.order, 1)
}

func TestAnalyzeSheet(t *testing.T) {
	body := `{"name":"Acme Lending","proposal_title":"Warehouse line","loan_amount":3,"spreadsheet_id":"sheet-1"}`

	t.Run("sheets not configured", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(httptest.NewRequest(http.MethodPost, "/api/analyses/sheets", strings.NewReader(body)))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("analyses the worksheet", func(t *testing.T) {
		table := fixtures.NewTestDataGeneratorWithSeed(3).FundTable(4)
		env := newTestEnv(t, func(svc *service.AnalysisService, _ *AnalysisHandler) {
			svc.WithSheets(staticSheets{table: table})
		})

		rec := env.do(httptest.NewRequest(http.MethodPost, "/api/analyses/sheets", strings.NewReader(body)))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		proposal := decode(t, rec)["proposal"].(map[string]any)
		assert.Equal(t, "sheets", proposal["source_kind"])
		assert.Equal(t, 3.0, proposal["loan_amount"])

		stored := env.repo.records[env.repo.order[0]]
		assert.Equal(t, "sheet-1", stored.SourceRef)
	})

	t.Run("spreadsheet id is required", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(httptest.NewRequest(http.MethodPost, "/api/analyses/sheets", strings.NewReader(`{"name":"x","proposal_title":"y"}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(httptest.NewRequest(http.MethodPost, "/api/analyses/sheets", strings.NewReader(`{`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListProposals(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, &repository.Analysis{Name: "Acme Lending", ProposalTitle: "Warehouse line", RiskPercentage: ptr(12)})
	env.seed(t, &repository.Analysis{Name: "Bridge Capital", ProposalTitle: "Bridge loan"})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/proposals", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Len(t, body["proposals"], 2)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/proposals?company=acme", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	proposals := decode(t, rec)["proposals"].([]any)
	require.Len(t, proposals, 1)
	assert.Equal(t, "Acme Lending", proposals[0].(map[string]any)["name"])
}

func TestGetProposal(t *testing.T) {
	env := newTestEnv(t, nil)
	bare := env.seed(t, &repository.Analysis{})

	t.Run("fills defaults", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/proposals/"+bare.ID.String(), nil))
		require.Equal(t, http.StatusOK, rec.Code)

		proposal := decode(t, rec)["proposal"].(map[string]any)
		assert.Equal(t, bare.ID.String(), proposal["_id"])
		assert.Equal(t, "Untitled Proposal", proposal["proposal_title"])
		assert.Equal(t, "No description available", proposal["company_description"])
		assert.Equal(t, "No analysis available", proposal["gemini_analysis"])
		assert.Equal(t, 0.0, proposal["risk_percentage"])
		assert.Equal(t, false, proposal["risk_assessed"])
		assert.Equal(t, "unassessed", proposal["risk_band"])
		assert.Equal(t, 0.0, proposal["loan_amount"])
		assert.NotContains(t, proposal, "financial_metrics")
		assert.NotContains(t, proposal, "timestamp")
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/proposals/"+uuid.NewString(), nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Proposal not found", decode(t, rec)["message"])
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/proposals/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRefresh_UploadIsConflict(t *testing.T) {
	env := newTestEnv(t, func(svc *service.AnalysisService, _ *AnalysisHandler) {
		svc.WithSheets(staticSheets{})
	})
	up := env.seed(t, &repository.Analysis{Name: "Acme", SourceKind: repository.SourceUpload})

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/proposals/"+up.ID.String()+"/refresh", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReports(t *testing.T) {
	env := newTestEnv(t, nil)
	stored := env.seed(t, &repository.Analysis{
		Name:             "Acme Lending",
		LoanAmount:       decimal.RequireFromString("12.5"),
		ProposalTitle:    "Warehouse line",
		Narrative:        "## Summary\nSteady.",
		FinancialMetrics: map[metrics.Tag][]float64{metrics.TagNAV: {100, 110}},
		RiskPercentage:   ptr(20),
		RiskBand:         metrics.BandLow,
		PeriodStart:      "01/2024",
		PeriodEnd:        "02/2024",
		CreatedAt:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	base := "/api/proposals/" + stored.ID.String()

	tests := []struct {
		path        string
		contentType string
		disposition string
		contains    string
	}{
		{"/report.txt", "text/plain", "financial_report_Acme_Lending_20240301.txt", "Risk Score: 20.0%"},
		{"/report.html", "text/html", "", "<h2>Summary</h2>"},
		{"/export.csv", "text/csv", "financial_report_Acme_Lending_20240301.csv", "Acme Lending,12.5,Warehouse line"},
		{"/metrics.csv", "text/csv", "financial_metrics_" + stored.ID.String() + ".csv", "nav\n100\n110\n"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodGet, base+tt.path, nil))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), tt.contentType))
			if tt.disposition != "" {
				assert.Contains(t, rec.Header().Get("Content-Disposition"), tt.disposition)
			}
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}

	t.Run("no archived source", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, base+"/source", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing proposal", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/proposals/"+uuid.NewString()+"/report.html", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(_ *service.AnalysisService, h *AnalysisHandler) {
		h.WithRateLimit(1, 1)
	})

	first := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	second := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestInstrument(t *testing.T) {
	m := observability.NewNopMetrics()
	env := newTestEnv(t, func(_ *service.AnalysisService, h *AnalysisHandler) {
		h.WithMetrics(m)
	})

	env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	env.do(httptest.NewRequest(http.MethodGet, "/api/proposals/"+uuid.NewString(), nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/healthz", "200")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTPRequests))
}
