package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
)

const analysisColumns = `id, blockchain_address, name, loan_amount, proposal_title, company_type,
		company_description, narrative, financial_metrics, detected_metrics, risk_percentage,
		risk_band, period_start, period_end, source_kind, source_ref, source_worksheet,
		source_file_id, created_at, updated_at`

// PostgresAnalysisRepository implements AnalysisRepository using PostgreSQL
type PostgresAnalysisRepository struct {
	db DBTX
}

// NewPostgresAnalysisRepository creates a new PostgreSQL analysis repository
func NewPostgresAnalysisRepository(db DBTX) *PostgresAnalysisRepository {
	return &PostgresAnalysisRepository{db: db}
}

// Create inserts a new analysis and fills its timestamps
func (r *PostgresAnalysisRepository) Create(ctx context.Context, a *Analysis) error {
	query := `
		INSERT INTO analyses (
			id, blockchain_address, name, loan_amount, proposal_title, company_type,
			company_description, narrative, financial_metrics, detected_metrics, risk_percentage,
			risk_band, period_start, period_end, source_kind, source_ref, source_worksheet, source_file_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at, updated_at`

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	financial, detected, err := encodeMetrics(a.FinancialMetrics, a.DetectedMetrics)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(ctx, query,
		a.ID,
		a.BlockchainAddress,
		a.Name,
		a.LoanAmount,
		a.ProposalTitle,
		a.CompanyType,
		a.CompanyDescription,
		a.Narrative,
		financial,
		detected,
		a.RiskPercentage,
		string(a.RiskBand),
		a.PeriodStart,
		a.PeriodEnd,
		string(a.SourceKind),
		a.SourceRef,
		a.SourceWorksheet,
		a.SourceFileID,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create analysis: %w", err)
	}
	return nil
}

// GetByID retrieves an analysis by ID
func (r *PostgresAnalysisRepository) GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses WHERE id = $1`

	a, err := scanAnalysis(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return a, nil
}

// List returns every analysis, newest first
func (r *PostgresAnalysisRepository) List(ctx context.Context) ([]*Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses ORDER BY created_at DESC`
	return r.list(ctx, query)
}

// ListBySource returns the analyses built from one kind of source, newest first
func (r *PostgresAnalysisRepository) ListBySource(ctx context.Context, kind SourceKind) ([]*Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses WHERE source_kind = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, string(kind))
}

func (r *PostgresAnalysisRepository) list(ctx context.Context, query string, args ...any) ([]*Analysis, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var analyses []*Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}
	return analyses, nil
}

// UpdateScore replaces the computed figures of an analysis; the narrative is left untouched
func (r *PostgresAnalysisRepository) UpdateScore(ctx context.Context, id uuid.UUID, update ScoreUpdate) (*Analysis, error) {
	query := `
		UPDATE analyses
		SET financial_metrics = $2, detected_metrics = $3, risk_percentage = $4, risk_band = $5,
			period_start = $6, period_end = $7, updated_at = now()
		WHERE id = $1
		RETURNING ` + analysisColumns

	financial, detected, err := encodeMetrics(update.FinancialMetrics, update.DetectedMetrics)
	if err != nil {
		return nil, err
	}

	a, err := scanAnalysis(r.db.QueryRow(ctx, query,
		id,
		financial,
		detected,
		update.RiskPercentage,
		string(update.RiskBand),
		update.PeriodStart,
		update.PeriodEnd,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update analysis score: %w", err)
	}
	return a, nil
}

func encodeMetrics(financial map[metrics.Tag][]float64, detected metrics.DetectedMetrics) ([]byte, []byte, error) {
	if financial == nil {
		financial = map[metrics.Tag][]float64{}
	}
	fm, err := json.Marshal(financial)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode financial metrics: %w", err)
	}
	if detected.Labels == nil {
		detected.Labels = map[metrics.Tag][]string{}
	}
	dm, err := json.Marshal(detected)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode detected metrics: %w", err)
	}
	return fm, dm, nil
}

func scanAnalysis(row pgx.Row) (*Analysis, error) {
	var (
		a                   Analysis
		financial, detected []byte
		band, kind          string
	)
	err := row.Scan(
		&a.ID,
		&a.BlockchainAddress,
		&a.Name,
		&a.LoanAmount,
		&a.ProposalTitle,
		&a.CompanyType,
		&a.CompanyDescription,
		&a.Narrative,
		&financial,
		&detected,
		&a.RiskPercentage,
		&band,
		&a.PeriodStart,
		&a.PeriodEnd,
		&kind,
		&a.SourceRef,
		&a.SourceWorksheet,
		&a.SourceFileID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.RiskBand = metrics.Band(band)
	a.SourceKind = SourceKind(kind)
	if len(financial) > 0 {
		if err := json.Unmarshal(financial, &a.FinancialMetrics); err != nil {
			return nil, fmt.Errorf("failed to decode financial metrics: %w", err)
		}
	}
	if len(detected) > 0 {
		if err := json.Unmarshal(detected, &a.DetectedMetrics); err != nil {
			return nil, fmt.Errorf("failed to decode detected metrics: %w", err)
		}
	}
	return &a, nil
}
