package service

import (
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
)

const notAvailable = "N/A"

// DefaultMaxPromptRows bounds the table rows sent to the model
const DefaultMaxPromptRows = 100

var focusLines = map[metrics.Tag]string{
	metrics.TagAsset:      "Detailed analysis of asset valuation trends and significant changes",
	metrics.TagNAV:        "Analysis of Net Asset Value (NAV) performance and growth patterns",
	metrics.TagProfitLoss: "Profit and Loss analysis with focus on key profitability drivers",
	metrics.TagCashFlow:   "Cash flow analysis with emphasis on liquidity and operational efficiency",
	metrics.TagIncome:     "Income trend analysis and revenue stream evaluation",
	metrics.TagExpenses:   "Expense breakdown and cost management assessment",
}

var focusOrder = []metrics.Tag{
	metrics.TagAsset,
	metrics.TagNAV,
	metrics.TagProfitLoss,
	metrics.TagCashFlow,
	metrics.TagIncome,
	metrics.TagExpenses,
}

// BuildPrompt assembles the narrative request for one proposal.
func BuildPrompt(info CompanyInfo, table *metrics.Table, detected metrics.DetectedMetrics, assessment metrics.Assessment, maxRows int) string {
	var b strings.Builder

	b.WriteString("Analyze this financial data for a loan proposal:\n\n")
	writeCompanyInfo(&b, info)

	b.WriteString("\nFinancial Data:\n")
	b.WriteString(renderTable(table, maxRows))

	var focus []string
	for _, tag := range focusOrder {
		if _, ok := detected.Labels[tag]; ok {
			focus = append(focus, "- "+focusLines[tag])
		}
	}
	if len(focus) > 0 {
		b.WriteString("\nFocus areas:\n")
		b.WriteString(strings.Join(focus, "\n"))
		b.WriteString("\n")
	}

	risk := "could not be assessed"
	if assessment.Assessed {
		risk = "current risk score: " + metrics.FormatScore(assessment.Score)
	}

	b.WriteString("\nPlease provide a concise financial analysis including:\n\n")
	b.WriteString("1. Executive summary of overall financial health and performance\n")
	b.WriteString("2. Key financial metrics and trends\n")
	fmt.Fprintf(&b, "3. Risk assessment (%s)\n", risk)
	b.WriteString("4. Brief recommendations based on the financial data\n")
	b.WriteString("5. Assessment of the loan request based on the financial data\n\n")
	b.WriteString("Format your analysis in clear sections with headers. Use professional financial analysis language.\n")
	b.WriteString("Focus on identifying patterns, anomalies, and significant changes in the data.\n")

	return b.String()
}

func writeCompanyInfo(b *strings.Builder, info CompanyInfo) {
	fmt.Fprintf(b, "Blockchain Address: %s\n", orNA(info.BlockchainAddress))
	fmt.Fprintf(b, "Name: %s\n", orNA(info.Name))
	fmt.Fprintf(b, "Loan Amount: %s ETH\n", info.LoanAmount.String())
	fmt.Fprintf(b, "Proposal Title: %s\n", orNA(info.ProposalTitle))
	fmt.Fprintf(b, "Company Type: %s\n", orNA(info.CompanyType))
	fmt.Fprintf(b, "Company Description: %s\n", orNA(info.Description))
}

// renderTable writes the header and at most maxRows rows as CSV.
func renderTable(table *metrics.Table, maxRows int) string {
	if table == nil || table.NumColumns() == 0 {
		return "(no data)\n"
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxPromptRows
	}

	var b strings.Builder
	w := gocsv.DefaultCSVWriter(&b)
	_ = w.Write(table.Headers())

	rows := table.Rows()
	shown := rows
	if len(rows) > maxRows {
		shown = rows[:maxRows]
	}
	for _, row := range shown {
		_ = w.Write(row)
	}
	w.Flush()

	if hidden := len(rows) - len(shown); hidden > 0 {
		fmt.Fprintf(&b, "... %d more rows not shown\n", hidden)
	}
	return b.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}
