package domain

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	paymentErrors "github.com/avika/achexport/internal/payment/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	maxPayerNameLength      = 120
	maxPracticeNameLength   = 120
	maxInvoiceNumberLength  = 64
	maxConsentVersionLength = 32
)

// PaymentAuthorization records a payer's debit consent. It always references
// exactly one BankAccount created in the same transaction.
type PaymentAuthorization struct {
	ID              string
	CustomerID      string
	PayerName       string
	PracticeName    string
	InvoiceNumber   string
	AmountCents     int64
	ConsentVersion  string
	ConsentSnapshot string
	ConsentCheckbox bool
	ConsentedAt     time.Time
	ConsentIP       string
	BankAccountID   string
}

// AuthorizationInput is an already-extracted payer submission.
type AuthorizationInput struct {
	PayerName       string      `json:"payer_name"`
	PracticeName    string      `json:"practice_name"`
	InvoiceNumber   string      `json:"invoice_number"`
	Amount          string      `json:"amount"`
	ConsentVersion  string      `json:"consent_version"`
	ConsentSnapshot string      `json:"consent_snapshot"`
	ConsentCheckbox bool        `json:"consent_checkbox"`
	ConsentIP       string      `json:"-"`
	Bank            BankDetails `json:"bank"`
}

// Validate checks the consent and payment fields (bank fields are validated by
// BankDetails) and returns the parsed amount in cents.
func (in AuthorizationInput) Validate() (int64, error) {
	errs := &paymentErrors.ValidationErrors{}

	payerName := strings.TrimSpace(in.PayerName)
	if payerName == "" {
		errs.Add(paymentErrors.NewValidationError("payer_name", "is required"))
	} else if len(payerName) > maxPayerNameLength {
		errs.Add(paymentErrors.NewValidationError("payer_name", fmt.Sprintf("must be at most %d characters", maxPayerNameLength)))
	}
	if len(strings.TrimSpace(in.PracticeName)) > maxPracticeNameLength {
		errs.Add(paymentErrors.NewValidationError("practice_name", fmt.Sprintf("must be at most %d characters", maxPracticeNameLength)))
	}
	invoice := strings.TrimSpace(in.InvoiceNumber)
	if invoice == "" {
		errs.Add(paymentErrors.NewValidationError("invoice_number", "is required"))
	} else if len(invoice) > maxInvoiceNumberLength {
		errs.Add(paymentErrors.NewValidationError("invoice_number", fmt.Sprintf("must be at most %d characters", maxInvoiceNumberLength)))
	}
	version := strings.TrimSpace(in.ConsentVersion)
	if version == "" {
		errs.Add(paymentErrors.NewValidationError("consent_version", "is required"))
	} else if len(version) > maxConsentVersionLength {
		errs.Add(paymentErrors.NewValidationError("consent_version", fmt.Sprintf("must be at most %d characters", maxConsentVersionLength)))
	}
	if strings.TrimSpace(in.ConsentSnapshot) == "" {
		errs.Add(paymentErrors.NewValidationError("consent_snapshot", "is required"))
	}
	if !in.ConsentCheckbox {
		errs.Add(paymentErrors.NewValidationError("consent_checkbox", "consent must be given"))
	}
	if in.ConsentIP != "" && net.ParseIP(in.ConsentIP) == nil {
		errs.Add(paymentErrors.NewValidationError("consent_ip", "is not a valid IP address"))
	}

	amountCents, err := ParseAmountCents(in.Amount)
	if err != nil {
		errs.Add(err)
	}

	if err := errs.Err(); err != nil {
		return 0, err
	}
	return amountCents, nil
}

// NewPaymentAuthorization builds the authorization row for an account that is
// being created alongside it.
func NewPaymentAuthorization(in AuthorizationInput, amountCents int64, account *BankAccount, consentedAt time.Time) *PaymentAuthorization {
	return &PaymentAuthorization{
		ID:              uuid.NewString(),
		CustomerID:      account.CustomerID,
		PayerName:       strings.TrimSpace(in.PayerName),
		PracticeName:    strings.TrimSpace(in.PracticeName),
		InvoiceNumber:   strings.TrimSpace(in.InvoiceNumber),
		AmountCents:     amountCents,
		ConsentVersion:  strings.TrimSpace(in.ConsentVersion),
		ConsentSnapshot: in.ConsentSnapshot,
		ConsentCheckbox: in.ConsentCheckbox,
		ConsentedAt:     consentedAt.UTC(),
		ConsentIP:       in.ConsentIP,
		BankAccountID:   account.ID,
	}
}

// Plain decimal notation only; exponent forms never reach the decimal parser.
var (
	hundred       = decimal.NewFromInt(100)
	amountPattern = regexp.MustCompile(`^-?\d{1,20}(\.\d{1,20})?$`)
)

// ParseAmountCents converts a currency string such as "$1,234.56" into integer
// cents, rounding half away from zero. Amounts <= 0 are rejected.
func ParseAmountCents(amount string) (int64, error) {
	cleaned := strings.TrimSpace(amount)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, paymentErrors.NewValidationError("amount", "is required")
	}
	if !amountPattern.MatchString(cleaned) {
		return 0, paymentErrors.NewValidationError("amount", "is not a valid currency amount")
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, paymentErrors.NewValidationError("amount", "is not a valid currency amount")
	}
	cents := value.Mul(hundred).Round(0)
	if !cents.IsPositive() {
		return 0, paymentErrors.NewValidationError("amount", "must be greater than zero")
	}
	if !cents.BigInt().IsInt64() {
		return 0, paymentErrors.NewValidationError("amount", "is too large")
	}
	return cents.IntPart(), nil
}
