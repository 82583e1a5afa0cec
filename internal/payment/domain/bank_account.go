package domain

import (
	"fmt"
	"strings"
	"time"

	paymentErrors "github.com/avika/achexport/internal/payment/errors"
	"github.com/google/uuid"
)

type AccountType string

const (
	AccountTypeChecking AccountType = "checking"
	AccountTypeSavings  AccountType = "savings"

	routingNumberLength    = 9
	minAccountNumberLength = 4
	maxAccountNumberLength = 17
	maxCustomerIDLength    = 120
)

// Encrypter seals a single field value, returning (ciphertext, nonce).
type Encrypter interface {
	Encrypt(plaintext string) (string, string, error)
}

// Decrypter opens a value sealed by an Encrypter.
type Decrypter interface {
	Decrypt(ciphertext, nonce string) (string, error)
}

// BankAccount holds only encrypted routing/account numbers; last4 is the one
// cleartext fragment kept for display. Records are immutable and never deleted.
type BankAccount struct {
	ID            string
	CustomerID    string // free text display name, not a user reference
	RoutingCipher string
	RoutingNonce  string
	AccountCipher string
	AccountNonce  string
	AccountType   AccountType
	Last4         string
	CreatedAt     time.Time
}

// TransactionCode is the debit transaction code for the account type.
func (a *BankAccount) TransactionCode() string {
	if a.AccountType == AccountTypeSavings {
		return "37"
	}
	return "27"
}

// BankDetails is the raw, still-plaintext bank input of a payer submission.
type BankDetails struct {
	CustomerID    string `json:"customer_id"`
	RoutingNumber string `json:"routing_number"`
	AccountNumber string `json:"account_number"`
	AccountType   string `json:"account_type"`
}

func (d *BankDetails) normalize() {
	d.CustomerID = strings.TrimSpace(d.CustomerID)
	d.RoutingNumber = strings.TrimSpace(d.RoutingNumber)
	d.AccountNumber = strings.TrimSpace(d.AccountNumber)
	d.AccountType = strings.ToLower(strings.TrimSpace(d.AccountType))
}

// Validate checks every bank field and collects all failures.
func (d BankDetails) Validate() error {
	d.normalize()
	errs := &paymentErrors.ValidationErrors{}

	if d.CustomerID == "" {
		errs.Add(paymentErrors.NewValidationError("customer_id", "is required"))
	} else if len(d.CustomerID) > maxCustomerIDLength {
		errs.Add(paymentErrors.NewValidationError("customer_id", fmt.Sprintf("must be at most %d characters", maxCustomerIDLength)))
	}
	if len(d.RoutingNumber) != routingNumberLength || !isDigits(d.RoutingNumber) {
		errs.Add(paymentErrors.NewValidationError("routing_number", "must be exactly 9 digits"))
	}
	if l := len(d.AccountNumber); l < minAccountNumberLength || l > maxAccountNumberLength || !isDigits(d.AccountNumber) {
		errs.Add(paymentErrors.NewValidationError("account_number", "must be 4 to 17 digits"))
	}
	switch AccountType(d.AccountType) {
	case AccountTypeChecking, AccountTypeSavings:
	default:
		errs.Add(paymentErrors.NewValidationError("account_type", "must be 'checking' or 'savings'"))
	}

	return errs.Err()
}

// NewBankAccount validates the details before anything is encrypted, then
// seals routing and account numbers independently, each under its own nonce.
func NewBankAccount(details BankDetails, encrypter Encrypter, now time.Time) (*BankAccount, error) {
	if err := details.Validate(); err != nil {
		return nil, err
	}
	details.normalize()

	routingCipher, routingNonce, err := encrypter.Encrypt(details.RoutingNumber)
	if err != nil {
		return nil, fmt.Errorf("could not encrypt routing number: %w", err)
	}
	accountCipher, accountNonce, err := encrypter.Encrypt(details.AccountNumber)
	if err != nil {
		return nil, fmt.Errorf("could not encrypt account number: %w", err)
	}

	return &BankAccount{
		ID:            uuid.NewString(),
		CustomerID:    details.CustomerID,
		RoutingCipher: routingCipher,
		RoutingNonce:  routingNonce,
		AccountCipher: accountCipher,
		AccountNonce:  accountNonce,
		AccountType:   AccountType(details.AccountType),
		Last4:         details.AccountNumber[len(details.AccountNumber)-4:],
		CreatedAt:     now.UTC(),
	}, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
