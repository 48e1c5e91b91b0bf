// Package fixtures generates realistic proposal data for tests.
package fixtures

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
)

// TestDataGenerator generates proposal test data using gofakeit.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGenerator creates a new test data generator with a random seed.
func NewTestDataGenerator() *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(0)}
}

// NewTestDataGeneratorWithSeed creates a generator with a specific seed for reproducibility.
func NewTestDataGeneratorWithSeed(seed int64) *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(seed)}
}

// Company is a generated borrower.
type Company struct {
	BlockchainAddress string
	Name              string
	LoanAmount        decimal.Decimal
	ProposalTitle     string
	CompanyType       string
	Description       string
}

var companyTypes = []string{
	"Technology", "Finance", "Healthcare", "Real Estate", "Energy", "Logistics",
}

// Company generates a borrower with every field filled.
func (g *TestDataGenerator) Company() Company {
	name := g.faker.Company()
	return Company{
		BlockchainAddress: g.Address(),
		Name:              name,
		LoanAmount:        decimal.NewFromFloat(g.faker.Float64Range(0.5, 500)).Round(2),
		ProposalTitle:     fmt.Sprintf("%s %s facility", name, g.faker.BuzzWord()),
		CompanyType:       companyTypes[g.faker.Number(0, len(companyTypes)-1)],
		Description:       g.faker.Sentence(12),
	}
}

// Address generates a 0x-prefixed 20-byte hex address.
func (g *TestDataGenerator) Address() string {
	const hexDigits = "0123456789abcdef"
	var b strings.Builder
	b.WriteString("0x")
	for i := 0; i < 40; i++ {
		b.WriteByte(hexDigits[g.faker.Number(0, 15)])
	}
	return b.String()
}

// MonthHeaders returns n consecutive month labels ending at the current month, formatted MM/YYYY.
func (g *TestDataGenerator) MonthHeaders(n int) []string {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month()-time.Month(n-1), 1, 0, 0, 0, 0, time.UTC)
	headers := make([]string, n)
	for i := range headers {
		headers[i] = start.AddDate(0, i, 0).Format("01/2006")
	}
	return headers
}

// Series generates n values around base with the given relative spread.
func (g *TestDataGenerator) Series(n int, base, spread float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = base * (1 + g.faker.Float64Range(-spread, spread))
	}
	return values
}

// CategoryRow is one labelled row of a wide financial table.
type CategoryRow struct {
	Label  string
	Values []float64
}

// WideTable builds a table with a Category column followed by one column per month.
func (g *TestDataGenerator) WideTable(months int, rows ...CategoryRow) *metrics.Table {
	headers := append([]string{"Category"}, g.MonthHeaders(months)...)
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = append([]string{r.Label}, formatValues(r.Values)...)
	}
	return metrics.NewTableFromRows(headers, cells)
}

// FundTable builds a wide table with NAV, profit/loss and cash flow rows.
func (g *TestDataGenerator) FundTable(months int) *metrics.Table {
	return g.WideTable(months,
		CategoryRow{Label: "NAV", Values: g.Series(months, 1_000_000, 0.05)},
		CategoryRow{Label: "Profit / Loss", Values: g.Series(months, 25_000, 0.4)},
		CategoryRow{Label: "Net Cash Flow", Values: g.Series(months, 40_000, 0.3)},
		CategoryRow{Label: "Notes", Values: nil},
	)
}

func formatValues(values []float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromFloat(v).StringFixed(2)
	}
	return out
}
