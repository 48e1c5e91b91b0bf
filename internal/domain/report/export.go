package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/analysis/repository"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
)

// recordRow is the CSV shape of one analysis
type recordRow struct {
	BlockchainAddress  string `csv:"blockchain_address"`
	Name               string `csv:"name"`
	LoanAmount         string `csv:"loan_amount"`
	ProposalTitle      string `csv:"proposal_title"`
	CompanyType        string `csv:"company_type"`
	CompanyDescription string `csv:"company_description"`
	Narrative          string `csv:"gemini_analysis"`
	RiskPercentage     string `csv:"risk_percentage"`
	RiskBand           string `csv:"risk_band"`
	PeriodStart        string `csv:"period_start"`
	PeriodEnd          string `csv:"period_end"`
}

// WriteRecordCSV writes the analysis as a single CSV row with a header.
// The ID, series and timestamps are left out.
func WriteRecordCSV(w io.Writer, rec *repository.Analysis) error {
	risk := ""
	if rec.RiskPercentage != nil {
		risk = strconv.FormatFloat(*rec.RiskPercentage, 'f', 1, 64)
	}

	rows := []*recordRow{{
		BlockchainAddress:  rec.BlockchainAddress,
		Name:               rec.Name,
		LoanAmount:         rec.LoanAmount.String(),
		ProposalTitle:      rec.ProposalTitle,
		CompanyType:        rec.CompanyType,
		CompanyDescription: rec.CompanyDescription,
		Narrative:          rec.Narrative,
		RiskPercentage:     risk,
		RiskBand:           string(Band(rec)),
		PeriodStart:        rec.PeriodStart,
		PeriodEnd:          rec.PeriodEnd,
	}}

	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("failed to write analysis csv: %w", err)
	}
	return nil
}

// WriteMetricsCSV writes one column per stored series. Shorter series are padded with
// empty cells.
func WriteMetricsCSV(w io.Writer, rec *repository.Analysis) error {
	tags := make([]metrics.Tag, 0, len(rec.FinancialMetrics))
	longest := 0
	for tag, values := range rec.FinancialMetrics {
		tags = append(tags, tag)
		longest = max(longest, len(values))
	}
	priority := rec.DetectedMetrics.Priority
	if len(priority) == 0 {
		priority = metrics.DefaultDictionary().Priority
	}
	metrics.SortTags(tags, priority)

	cw := gocsv.DefaultCSVWriter(w)
	header := make([]string, len(tags))
	for i, tag := range tags {
		header[i] = string(tag)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write metrics csv: %w", err)
	}

	for row := 0; row < longest; row++ {
		record := make([]string, len(tags))
		for i, tag := range tags {
			if values := rec.FinancialMetrics[tag]; row < len(values) {
				record[i] = strconv.FormatFloat(values[row], 'f', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write metrics csv: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write metrics csv: %w", err)
	}
	return nil
}
