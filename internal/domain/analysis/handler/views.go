package handler

import (
	"time"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/analysis/repository"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
)

const (
	defaultTitle       = "Untitled Proposal"
	defaultDescription = "No description available"
	defaultNarrative   = "No analysis available"
)

// dashboardSeries are the series the proposal listing exposes
var dashboardSeries = []metrics.Tag{metrics.TagNAV, metrics.TagProfitLoss, metrics.TagCashFlow}

// proposalView is the JSON shape of a stored analysis
type proposalView struct {
	ID                 string                    `json:"_id"`
	BlockchainAddress  string                    `json:"blockchain_address"`
	Name               string                    `json:"name"`
	ProposalTitle      string                    `json:"proposal_title"`
	CompanyType        string                    `json:"company_type"`
	CompanyDescription string                    `json:"company_description"`
	RiskPercentage     float64                   `json:"risk_percentage"`
	RiskAssessed       bool                      `json:"risk_assessed"`
	RiskBand           metrics.Band              `json:"risk_band"`
	LoanAmount         float64                   `json:"loan_amount"`
	Narrative          string                    `json:"gemini_analysis"`
	FinancialMetrics   map[metrics.Tag][]float64 `json:"financial_metrics,omitempty"`
	PeriodStart        string                    `json:"period_start,omitempty"`
	PeriodEnd          string                    `json:"period_end,omitempty"`
	Source             repository.SourceKind     `json:"source_kind"`
	Timestamp          string                    `json:"timestamp,omitempty"`
}

func newProposalView(rec *repository.Analysis) proposalView {
	v := proposalView{
		ID:                 rec.ID.String(),
		BlockchainAddress:  rec.BlockchainAddress,
		Name:               rec.Name,
		ProposalTitle:      orDefault(rec.ProposalTitle, defaultTitle),
		CompanyType:        rec.CompanyType,
		CompanyDescription: orDefault(rec.CompanyDescription, defaultDescription),
		RiskBand:           rec.RiskBand,
		LoanAmount:         rec.LoanAmount.InexactFloat64(),
		Narrative:          orDefault(rec.Narrative, defaultNarrative),
		PeriodStart:        rec.PeriodStart,
		PeriodEnd:          rec.PeriodEnd,
		Source:             rec.SourceKind,
	}
	if rec.RiskPercentage != nil {
		v.RiskPercentage = *rec.RiskPercentage
		v.RiskAssessed = true
	}
	if v.RiskBand == "" {
		v.RiskBand = metrics.BandUnassessed
		if rec.RiskPercentage != nil {
			v.RiskBand = metrics.BandForScore(*rec.RiskPercentage)
		}
	}

	if rec.FinancialMetrics != nil {
		v.FinancialMetrics = make(map[metrics.Tag][]float64, len(dashboardSeries))
		for _, tag := range dashboardSeries {
			values := rec.FinancialMetrics[tag]
			if values == nil {
				values = []float64{}
			}
			v.FinancialMetrics[tag] = values
		}
	}

	if !rec.CreatedAt.IsZero() {
		v.Timestamp = rec.CreatedAt.UTC().Format(time.RFC3339)
	}
	return v
}

func newProposalViews(recs []*repository.Analysis) []proposalView {
	views := make([]proposalView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, newProposalView(rec))
	}
	return views
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
