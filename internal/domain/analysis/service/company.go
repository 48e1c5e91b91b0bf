package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrInvalidCompanyInfo is returned when the submitted company fields fail validation
var ErrInvalidCompanyInfo = errors.New("invalid company information")

// CompanyInfo is the borrower data submitted alongside a financial table
type CompanyInfo struct {
	BlockchainAddress string          `json:"blockchain_address" validate:"max=128"`
	Name              string          `json:"name" validate:"required,max=200"`
	LoanAmount        decimal.Decimal `json:"loan_amount"`
	ProposalTitle     string          `json:"proposal_title" validate:"required,max=300"`
	CompanyType       string          `json:"company_type" validate:"max=100"`
	Description       string          `json:"company_description" validate:"max=5000"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize trims surrounding whitespace from every text field.
func (c *CompanyInfo) Normalize() {
	c.BlockchainAddress = strings.TrimSpace(c.BlockchainAddress)
	c.Name = strings.TrimSpace(c.Name)
	c.ProposalTitle = strings.TrimSpace(c.ProposalTitle)
	c.CompanyType = strings.TrimSpace(c.CompanyType)
	c.Description = strings.TrimSpace(c.Description)
}

// Validate checks the required fields. Errors wrap ErrInvalidCompanyInfo.
func (c CompanyInfo) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", jsonFieldName(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidCompanyInfo, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidCompanyInfo, err)
	}
	if c.LoanAmount.IsNegative() {
		return fmt.Errorf("%w: loan_amount must not be negative", ErrInvalidCompanyInfo)
	}
	return nil
}

func jsonFieldName(field string) string {
	switch field {
	case "BlockchainAddress":
		return "blockchain_address"
	case "Name":
		return "name"
	case "ProposalTitle":
		return "proposal_title"
	case "CompanyType":
		return "company_type"
	case "Description":
		return "company_description"
	default:
		return strings.ToLower(field)
	}
}
