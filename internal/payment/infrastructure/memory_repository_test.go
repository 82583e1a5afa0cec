package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avika/achexport/internal/payment/domain"
	paymentErrors "github.com/avika/achexport/internal/payment/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureRecords(id string, consentedAt time.Time) (*domain.BankAccount, *domain.PaymentAuthorization) {
	account := &domain.BankAccount{
		ID:            "acct-" + id,
		CustomerID:    "Jane Doe",
		RoutingCipher: "rc-" + id,
		RoutingNonce:  "rn-" + id,
		AccountCipher: "ac-" + id,
		AccountNonce:  "an-" + id,
		AccountType:   domain.AccountTypeChecking,
		Last4:         "6789",
		CreatedAt:     consentedAt,
	}
	authorization := &domain.PaymentAuthorization{
		ID:              "auth-" + id,
		CustomerID:      "Jane Doe",
		PayerName:       "Jane Doe",
		InvoiceNumber:   "INV-" + id,
		AmountCents:     12345,
		ConsentVersion:  "v1",
		ConsentSnapshot: "I authorize a debit.",
		ConsentCheckbox: true,
		ConsentedAt:     consentedAt,
		BankAccountID:   account.ID,
	}
	return account, authorization
}

func TestMemoryAuthorizationRepository_FailedInsertLeavesNothing(t *testing.T) {
	repo := NewMemoryAuthorizationRepository()
	repo.FailAuthorizationInsert = errors.New("insert failed")

	account, authorization := fixtureRecords("1", time.Now().UTC())
	err := repo.CreateWithBankAccount(context.Background(), account, authorization)
	assert.Error(t, err)

	accounts, authorizations := repo.Counts()
	assert.Zero(t, accounts)
	assert.Zero(t, authorizations)
}

func TestMemoryAuthorizationRepository_RejectsMismatchedAccount(t *testing.T) {
	repo := NewMemoryAuthorizationRepository()
	account, authorization := fixtureRecords("1", time.Now().UTC())
	authorization.BankAccountID = "someone-else"

	assert.Error(t, repo.CreateWithBankAccount(context.Background(), account, authorization))
}

func TestMemoryAuthorizationRepository_FindConsentedBetweenIsHalfOpenAndOrdered(t *testing.T) {
	repo := NewMemoryAuthorizationRepository()
	ctx := context.Background()
	start := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	for _, rec := range []struct {
		id string
		at time.Time
	}{
		{"b", start.Add(2 * time.Hour)},
		{"a", start.Add(2 * time.Hour)},
		{"c", start},
		{"before", start.Add(-time.Nanosecond)},
		{"after", end},
	} {
		account, authorization := fixtureRecords(rec.id, rec.at)
		require.NoError(t, repo.CreateWithBankAccount(ctx, account, authorization))
	}

	found, err := repo.FindConsentedBetween(ctx, start, end)
	require.NoError(t, err)

	var ids []string
	for _, a := range found {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"auth-c", "auth-a", "auth-b"}, ids)
}

func TestMemoryLinkRepository_MarkUsedHasSingleWinner(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, &domain.OneTimeLink{
		ID:        "link-1",
		TokenHash: domain.HashToken("token"),
		FilePath:  "/tmp/x.csv",
		ExpiresAt: now.Add(time.Minute),
		CreatedBy: "ops",
		CreatedAt: now,
	}))

	var (
		wg   sync.WaitGroup
		wins int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.MarkUsed(ctx, domain.HashToken("token"), now)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)

	link, err := repo.FindByTokenHash(ctx, domain.HashToken("token"))
	require.NoError(t, err)
	assert.True(t, link.IsUsed())
}

func TestMemoryLinkRepository_MarkUsedRefusesExpired(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, &domain.OneTimeLink{ID: "l", TokenHash: "h", ExpiresAt: now, CreatedAt: now}))

	ok, err := repo.MarkUsed(ctx, "h", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLinkRepository_FindUnknown(t *testing.T) {
	_, err := NewMemoryLinkRepository().FindByTokenHash(context.Background(), fmt.Sprintf("%064d", 0))
	assert.ErrorIs(t, err, paymentErrors.ErrLinkNotFound)
}
