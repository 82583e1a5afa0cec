package infrastructure

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avika/achexport/internal/payment/domain"
	paymentErrors "github.com/avika/achexport/internal/payment/errors"
)

// MemoryAuthorizationRepository keeps authorizations in process memory. It
// mirrors the Postgres semantics closely enough for service tests.
type MemoryAuthorizationRepository struct {
	mu             sync.RWMutex
	accounts       map[string]domain.BankAccount
	authorizations map[string]domain.PaymentAuthorization

	// FailAuthorizationInsert makes the second insert of CreateWithBankAccount fail.
	FailAuthorizationInsert error
	// AccountLookups counts FindBankAccountsByIDs calls.
	AccountLookups int
}

func NewMemoryAuthorizationRepository() *MemoryAuthorizationRepository {
	return &MemoryAuthorizationRepository{
		accounts:       make(map[string]domain.BankAccount),
		authorizations: make(map[string]domain.PaymentAuthorization),
	}
}

func (m *MemoryAuthorizationRepository) CreateWithBankAccount(_ context.Context, account *domain.BankAccount, authorization *domain.PaymentAuthorization) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if authorization.BankAccountID != account.ID {
		return fmt.Errorf("authorization %s does not reference bank account %s", authorization.ID, account.ID)
	}
	if _, exists := m.accounts[account.ID]; exists {
		return fmt.Errorf("bank account %s already exists", account.ID)
	}
	if m.FailAuthorizationInsert != nil {
		return m.FailAuthorizationInsert
	}
	if _, exists := m.authorizations[authorization.ID]; exists {
		return fmt.Errorf("payment authorization %s already exists", authorization.ID)
	}

	m.accounts[account.ID] = *account
	m.authorizations[authorization.ID] = *authorization
	return nil
}

func (m *MemoryAuthorizationRepository) FindConsentedBetween(_ context.Context, start, end time.Time) ([]domain.PaymentAuthorization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []domain.PaymentAuthorization
	for _, a := range m.authorizations {
		if !a.ConsentedAt.Before(start) && a.ConsentedAt.Before(end) {
			found = append(found, a)
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].ConsentedAt.Equal(found[j].ConsentedAt) {
			return found[i].ID < found[j].ID
		}
		return found[i].ConsentedAt.Before(found[j].ConsentedAt)
	})
	return found, nil
}

func (m *MemoryAuthorizationRepository) FindBankAccountsByIDs(_ context.Context, ids []string) (map[string]domain.BankAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AccountLookups++
	accounts := make(map[string]domain.BankAccount, len(ids))
	for _, id := range ids {
		if a, ok := m.accounts[id]; ok {
			accounts[id] = a
		}
	}
	return accounts, nil
}

// PutBankAccount overwrites a stored account, for tests that corrupt records.
func (m *MemoryAuthorizationRepository) PutBankAccount(account domain.BankAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
}

func (m *MemoryAuthorizationRepository) Counts() (accounts, authorizations int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts), len(m.authorizations)
}

// MemoryLinkRepository is the in-memory LinkRepository. MarkUsed is a
// compare-and-set under the mutex.
type MemoryLinkRepository struct {
	mu    sync.Mutex
	links map[string]domain.OneTimeLink
}

func NewMemoryLinkRepository() *MemoryLinkRepository {
	return &MemoryLinkRepository{links: make(map[string]domain.OneTimeLink)}
}

func (m *MemoryLinkRepository) Create(_ context.Context, link *domain.OneTimeLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.links[link.TokenHash]; exists {
		return fmt.Errorf("one-time link with this token already exists")
	}
	m.links[link.TokenHash] = *link
	return nil
}

func (m *MemoryLinkRepository) FindByTokenHash(_ context.Context, tokenHash string) (*domain.OneTimeLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[tokenHash]
	if !ok {
		return nil, paymentErrors.ErrLinkNotFound
	}
	if link.UsedAt != nil {
		usedAt := *link.UsedAt
		link.UsedAt = &usedAt
	}
	return &link, nil
}

func (m *MemoryLinkRepository) MarkUsed(_ context.Context, tokenHash string, usedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[tokenHash]
	if !ok || link.UsedAt != nil || !usedAt.Before(link.ExpiresAt) {
		return false, nil
	}
	link.UsedAt = &usedAt
	m.links[tokenHash] = link
	return true, nil
}
