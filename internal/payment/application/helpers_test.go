package application

import (
	"context"
	"testing"
	"time"

	"github.com/avika/achexport/internal/fieldcipher"
	"github.com/avika/achexport/internal/payment/domain"
	"github.com/avika/achexport/internal/payment/infrastructure"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	batchDay  = time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	buildTime = time.Date(2024, time.March, 6, 9, 15, 0, 0, time.UTC)
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testCipher(t *testing.T) *fieldcipher.Cipher {
	t.Helper()
	key := make([]byte, fieldcipher.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	c, err := fieldcipher.New(key, fieldcipher.AlgorithmAESGCM)
	require.NoError(t, err)
	return c
}

func validInput() domain.AuthorizationInput {
	return domain.AuthorizationInput{
		PayerName:       "Jane Doe",
		PracticeName:    "Smile Dental",
		InvoiceNumber:   "INV-42",
		Amount:          "$123.45",
		ConsentVersion:  "2024-01",
		ConsentSnapshot: "I authorize Smile Dental to debit my account.",
		ConsentCheckbox: true,
		ConsentIP:       "203.0.113.7",
		Bank: domain.BankDetails{
			CustomerID:    "Jane Doe",
			RoutingNumber: "021000021",
			AccountNumber: "000123456789",
			AccountType:   "checking",
		},
	}
}

type batchFixture struct {
	repo       *infrastructure.MemoryAuthorizationRepository
	store      *infrastructure.FileStore
	cipher     *fieldcipher.Cipher
	authorizer *AuthorizationService
	builder    *BatchBuilder
}

func newBatchFixture(t *testing.T) *batchFixture {
	t.Helper()
	repo := infrastructure.NewMemoryAuthorizationRepository()
	store, err := infrastructure.NewFileStore(t.TempDir())
	require.NoError(t, err)
	c := testCipher(t)

	builder := NewBatchBuilder(repo, c, store, "ORIG123", "CCD", zap.NewNop())
	builder.now = fixedClock(buildTime)

	return &batchFixture{
		repo:       repo,
		store:      store,
		cipher:     c,
		authorizer: NewAuthorizationService(repo, c, zap.NewNop()),
		builder:    builder,
	}
}

// seed records an authorization consented at the given instant.
func (f *batchFixture) seed(t *testing.T, at time.Time, mutate func(in *domain.AuthorizationInput)) *AuthorizationResult {
	t.Helper()
	in := validInput()
	if mutate != nil {
		mutate(&in)
	}
	f.authorizer.now = fixedClock(at)
	result, err := f.authorizer.CreateAuthorization(context.Background(), in)
	require.NoError(t, err)
	return result
}
