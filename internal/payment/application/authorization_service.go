package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avika/achexport/internal/payment/domain"
	paymentErrors "github.com/avika/achexport/internal/payment/errors"
	"go.uber.org/zap"
)

type AuthorizationServiceInterface interface {
	CreateAuthorization(ctx context.Context, input domain.AuthorizationInput) (*AuthorizationResult, error)
}

type AuthorizationResult struct {
	AuthorizationID string `json:"authorization_id"`
	BankAccountID   string `json:"bank_account_id"`
}

type AuthorizationService struct {
	repo      domain.AuthorizationRepository
	encrypter domain.Encrypter
	logger    *zap.Logger
	now       func() time.Time
}

func NewAuthorizationService(repo domain.AuthorizationRepository, encrypter domain.Encrypter, logger *zap.Logger) *AuthorizationService {
	return &AuthorizationService{repo: repo, encrypter: encrypter, logger: logger, now: time.Now}
}

// CreateAuthorization validates the whole submission, then persists the bank
// account and its authorization in one transaction. No encryption or write
// happens unless every field is valid.
func (s *AuthorizationService) CreateAuthorization(ctx context.Context, input domain.AuthorizationInput) (*AuthorizationResult, error) {
	errs := &paymentErrors.ValidationErrors{}
	collect(errs, input.Bank.Validate())
	amountCents, err := input.Validate()
	collect(errs, err)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	account, err := domain.NewBankAccount(input.Bank, s.encrypter, now)
	if err != nil {
		return nil, err
	}
	authorization := domain.NewPaymentAuthorization(input, amountCents, account, now)

	if err := s.repo.CreateWithBankAccount(ctx, account, authorization); err != nil {
		return nil, fmt.Errorf("could not save payment authorization: %w", err)
	}

	s.logger.Info("Payment authorization recorded",
		zap.String("authorization_id", authorization.ID),
		zap.String("bank_account_id", account.ID),
		zap.Int64("amount_cents", authorization.AmountCents),
		zap.String("consent_version", authorization.ConsentVersion),
	)

	return &AuthorizationResult{AuthorizationID: authorization.ID, BankAccountID: account.ID}, nil
}

func collect(errs *paymentErrors.ValidationErrors, err error) {
	if err == nil {
		return
	}
	var many *paymentErrors.ValidationErrors
	if errors.As(err, &many) {
		for _, e := range many.Errors {
			errs.Add(e)
		}
		return
	}
	errs.Add(err)
}
