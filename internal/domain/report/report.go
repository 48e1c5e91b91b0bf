// Package report renders stored analyses as text, HTML and CSV.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/analysis/repository"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
)

const (
	notAvailable    = "N/A"
	notAssessed     = "Not assessed"
	timestampLayout = "2006-01-02 15:04:05"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var htmlTemplate = template.Must(template.ParseFS(templateFS, "templates/report.html.tmpl"))

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
)

// bandColors match the dashboard: red above 70, amber above 30, green otherwise
var bandColors = map[metrics.Band]template.CSS{
	metrics.BandHigh:       "#EF4444",
	metrics.BandMedium:     "#F59E0B",
	metrics.BandLow:        "#10B981",
	metrics.BandUnassessed: "#6B7280",
}

// Period returns "<start> to <end>", or N/A when the table had a single column.
func Period(rec *repository.Analysis) string {
	if rec.PeriodStart == "" && rec.PeriodEnd == "" {
		return notAvailable
	}
	return fmt.Sprintf("%s to %s", rec.PeriodStart, rec.PeriodEnd)
}

// RiskScore formats the stored score, or "Not assessed".
func RiskScore(rec *repository.Analysis) string {
	if rec.RiskPercentage == nil {
		return notAssessed
	}
	return metrics.FormatScore(*rec.RiskPercentage)
}

// Band returns the stored band, recomputing it for records saved without one.
func Band(rec *repository.Analysis) metrics.Band {
	if rec.RiskBand != "" {
		return rec.RiskBand
	}
	if rec.RiskPercentage == nil {
		return metrics.BandUnassessed
	}
	return metrics.BandForScore(*rec.RiskPercentage)
}

// Text renders the plain text report.
func Text(rec *repository.Analysis, generatedAt time.Time) string {
	var b strings.Builder
	b.WriteString("FINANCIAL ANALYSIS REPORT\n")
	fmt.Fprintf(&b, "Generated on: %s\n", generatedAt.Format(timestampLayout))
	fmt.Fprintf(&b, "Blockchain Address: %s\n", orNA(rec.BlockchainAddress))
	fmt.Fprintf(&b, "Name: %s\n", orNA(rec.Name))
	fmt.Fprintf(&b, "Loan Amount: %s ETH\n", rec.LoanAmount.String())
	fmt.Fprintf(&b, "Proposal Title: %s\n", orNA(rec.ProposalTitle))
	fmt.Fprintf(&b, "Company Type: %s\n", orNA(rec.CompanyType))
	fmt.Fprintf(&b, "Period analyzed: %s\n", Period(rec))
	fmt.Fprintf(&b, "Risk Score: %s\n", RiskScore(rec))
	b.WriteString("\n")
	b.WriteString(rec.Narrative)
	b.WriteString("\n\n--- End of Report ---\n")
	return b.String()
}

type htmlView struct {
	Company           string
	GeneratedOn       string
	BlockchainAddress string
	Name              string
	LoanAmount        string
	ProposalTitle     string
	CompanyType       string
	Period            string
	RiskScore         string
	RiskColor         template.CSS
	Band              metrics.Band
	Narrative         template.HTML
	Charts            []Chart
}

// HTML renders the styled report with the narrative converted from markdown and one
// bar chart per stored series.
func HTML(w io.Writer, rec *repository.Analysis, generatedAt time.Time) error {
	var narrative bytes.Buffer
	if err := markdown.Convert([]byte(rec.Narrative), &narrative); err != nil {
		return fmt.Errorf("failed to render narrative: %w", err)
	}

	company := rec.Name
	if company == "" {
		company = "Company"
	}
	band := Band(rec)

	// goldmark drops raw HTML from the narrative unless WithUnsafe is set
	view := htmlView{
		Company:           company,
		GeneratedOn:       generatedAt.Format(timestampLayout),
		BlockchainAddress: orNA(rec.BlockchainAddress),
		Name:              orNA(rec.Name),
		LoanAmount:        rec.LoanAmount.String(),
		ProposalTitle:     orNA(rec.ProposalTitle),
		CompanyType:       orNA(rec.CompanyType),
		Period:            Period(rec),
		RiskScore:         RiskScore(rec),
		RiskColor:         bandColors[band],
		Band:              band,
		Narrative:         template.HTML(narrative.String()),
		Charts:            Charts(rec),
	}

	if err := htmlTemplate.Execute(w, view); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}
