// Package repository provides database operations for proposal analyses.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
)

// ErrNotFound is returned when no analysis has the requested ID
var ErrNotFound = errors.New("analysis not found")

// SourceKind tells where the analysed table came from
type SourceKind string

const (
	SourceUpload SourceKind = "upload"
	SourceSheets SourceKind = "sheets"
)

// Analysis is one persisted proposal analysis
type Analysis struct {
	ID                 uuid.UUID
	BlockchainAddress  string
	Name               string
	LoanAmount         decimal.Decimal
	ProposalTitle      string
	CompanyType        string
	CompanyDescription string
	Narrative          string

	// FinancialMetrics holds the raw representative series per tag, used for charts
	FinancialMetrics map[metrics.Tag][]float64
	DetectedMetrics  metrics.DetectedMetrics
	// RiskPercentage is nil when no metric could be assessed
	RiskPercentage *float64
	RiskBand       metrics.Band
	PeriodStart    string
	PeriodEnd      string

	SourceKind      SourceKind
	SourceRef       string
	SourceWorksheet string
	SourceFileID    *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScoreUpdate carries the recomputed figures of a refreshed analysis
type ScoreUpdate struct {
	FinancialMetrics map[metrics.Tag][]float64
	DetectedMetrics  metrics.DetectedMetrics
	RiskPercentage   *float64
	RiskBand         metrics.Band
	PeriodStart      string
	PeriodEnd        string
}

// AnalysisRepository defines the persistence operations for analyses
type AnalysisRepository interface {
	Create(ctx context.Context, a *Analysis) error
	GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error)
	List(ctx context.Context) ([]*Analysis, error)
	ListBySource(ctx context.Context, kind SourceKind) ([]*Analysis, error)
	UpdateScore(ctx context.Context, id uuid.UUID, update ScoreUpdate) (*Analysis, error)
}

// DBTX is the subset of pgxpool.Pool used by the repository. pgxmock pools satisfy it too.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
