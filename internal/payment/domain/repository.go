package domain

import (
	"context"
	"time"
)

type AuthorizationRepository interface {
	// CreateWithBankAccount inserts both rows in one transaction; on any
	// failure neither row is visible.
	CreateWithBankAccount(ctx context.Context, account *BankAccount, authorization *PaymentAuthorization) error
	// FindConsentedBetween returns authorizations with start <= consented_at < end,
	// ordered by consented_at then id.
	FindConsentedBetween(ctx context.Context, start, end time.Time) ([]PaymentAuthorization, error)
	FindBankAccountsByIDs(ctx context.Context, ids []string) (map[string]BankAccount, error)
}

type LinkRepository interface {
	Create(ctx context.Context, link *OneTimeLink) error
	// FindByTokenHash returns errors.ErrLinkNotFound for unknown hashes.
	FindByTokenHash(ctx context.Context, tokenHash string) (*OneTimeLink, error)
	// MarkUsed sets used_at only if it is still null and the link has not
	// expired at usedAt. It reports whether this call won the transition.
	MarkUsed(ctx context.Context, tokenHash string, usedAt time.Time) (bool, error)
}
