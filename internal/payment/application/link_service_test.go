package application

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/avika/achexport/internal/payment/domain"
	paymentErrors "github.com/avika/achexport/internal/payment/errors"
	"github.com/avika/achexport/internal/payment/infrastructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var issueTime = time.Date(2024, time.March, 6, 10, 0, 0, 0, time.UTC)

type linkFixture struct {
	repo    *infrastructure.MemoryLinkRepository
	store   *infrastructure.FileStore
	service *LinkService
	path    string
}

func newLinkFixture(t *testing.T) *linkFixture {
	t.Helper()
	store, err := infrastructure.NewFileStore(t.TempDir())
	require.NoError(t, err)
	path, err := store.Publish(batchDay, 1, [][]string{{"1", "A"}, {"5", "225"}})
	require.NoError(t, err)

	repo := infrastructure.NewMemoryLinkRepository()
	service := NewLinkService(repo, store, 15, zap.NewNop())
	service.now = fixedClock(issueTime)

	return &linkFixture{repo: repo, store: store, service: service, path: path}
}

func intPtr(i int) *int { return &i }

func readDownload(t *testing.T, d *Download) []byte {
	t.Helper()
	defer d.File.Close()
	content, err := io.ReadAll(d.File)
	require.NoError(t, err)
	return content
}

func TestIssueAndRedeemLink(t *testing.T) {
	f := newLinkFixture(t)
	ctx := context.Background()

	issued, err := f.service.IssueLink(ctx, f.path, "ops@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, issueTime.Add(15*time.Minute), issued.ExpiresAt)
	assert.GreaterOrEqual(t, len(issued.Token), 43)

	stored, err := f.repo.FindByTokenHash(ctx, domain.HashToken(issued.Token))
	require.NoError(t, err)
	assert.NotEqual(t, issued.Token, stored.TokenHash)
	assert.Equal(t, f.path, stored.FilePath)
	assert.Equal(t, "ops@example.com", stored.CreatedBy)

	f.service.now = fixedClock(issueTime.Add(14 * time.Minute))
	download, err := f.service.RedeemLink(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05-run-001.csv", download.Name)
	content := readDownload(t, download)
	assert.Equal(t, "1,A\r\n5,225\r\n", string(content))
	assert.Equal(t, int64(len(content)), download.Size)

	_, err = f.service.RedeemLink(ctx, issued.Token)
	assert.ErrorIs(t, err, paymentErrors.ErrLinkAlreadyUsed)

	stored, err = f.repo.FindByTokenHash(ctx, domain.HashToken(issued.Token))
	require.NoError(t, err)
	assert.True(t, stored.IsUsed())
}

func TestRedeemLink_ZeroTTLIsAlreadyExpired(t *testing.T) {
	f := newLinkFixture(t)

	issued, err := f.service.IssueLink(context.Background(), f.path, "ops", intPtr(0))
	require.NoError(t, err)

	_, err = f.service.RedeemLink(context.Background(), issued.Token)
	assert.ErrorIs(t, err, paymentErrors.ErrLinkExpired)
}

func TestRedeemLink_ExpiresAtTheDeadline(t *testing.T) {
	f := newLinkFixture(t)

	issued, err := f.service.IssueLink(context.Background(), f.path, "ops", intPtr(5))
	require.NoError(t, err)

	f.service.now = fixedClock(issueTime.Add(5 * time.Minute))
	_, err = f.service.RedeemLink(context.Background(), issued.Token)
	assert.ErrorIs(t, err, paymentErrors.ErrLinkExpired)
}

func TestRedeemLink_UnknownToken(t *testing.T) {
	f := newLinkFixture(t)

	_, err := f.service.RedeemLink(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, paymentErrors.ErrLinkNotFound)

	_, err = f.service.RedeemLink(context.Background(), "  ")
	assert.ErrorIs(t, err, paymentErrors.ErrLinkNotFound)
}

func TestRedeemLink_MissingFileDoesNotConsumeToken(t *testing.T) {
	f := newLinkFixture(t)
	ctx := context.Background()

	issued, err := f.service.IssueLink(ctx, f.path, "ops", nil)
	require.NoError(t, err)

	original, err := os.ReadFile(f.path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(f.path))

	_, err = f.service.RedeemLink(ctx, issued.Token)
	assert.ErrorIs(t, err, paymentErrors.ErrFileMissing)

	require.NoError(t, os.WriteFile(f.path, original, 0o600))
	download, err := f.service.RedeemLink(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, original, readDownload(t, download))
}

func TestRedeemLink_ConcurrentRedemptionsHaveOneWinner(t *testing.T) {
	f := newLinkFixture(t)
	ctx := context.Background()

	issued, err := f.service.IssueLink(ctx, f.path, "ops", nil)
	require.NoError(t, err)

	const attempts = 50
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		successes   int
		alreadyUsed int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			download, err := f.service.RedeemLink(ctx, issued.Token)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
				download.File.Close()
			case errors.Is(err, paymentErrors.ErrLinkAlreadyUsed):
				alreadyUsed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, alreadyUsed)
}

func TestIssueLink_Validation(t *testing.T) {
	f := newLinkFixture(t)
	outside := filepath.Join(t.TempDir(), "elsewhere.csv")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	tests := []struct {
		name      string
		path      string
		createdBy string
		ttl       *int
	}{
		{name: "path outside export root", path: outside, createdBy: "ops"},
		{name: "empty path", path: "", createdBy: "ops"},
		{name: "missing actor", path: f.path, createdBy: " "},
		{name: "malformed e-mail actor", path: f.path, createdBy: "ops@"},
		{name: "negative ttl", path: f.path, createdBy: "ops", ttl: intPtr(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.IssueLink(context.Background(), tt.path, tt.createdBy, tt.ttl)
			assert.True(t, paymentErrors.IsValidationError(err), "got %v", err)
		})
	}
}

func TestIssueLink_MissingFile(t *testing.T) {
	f := newLinkFixture(t)

	_, err := f.service.IssueLink(context.Background(), filepath.Join(f.store.Root(), "2024-03-05", "run-999.csv"), "ops", nil)
	assert.ErrorIs(t, err, paymentErrors.ErrFileMissing)

	_, err = f.service.IssueLink(context.Background(), filepath.Dir(f.path), "ops", nil)
	assert.ErrorIs(t, err, paymentErrors.ErrFileMissing)
}

func TestIssueLink_TokensAreUnique(t *testing.T) {
	f := newLinkFixture(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		issued, err := f.service.IssueLink(context.Background(), f.path, "ops", nil)
		require.NoError(t, err)
		assert.False(t, seen[issued.Token])
		seen[issued.Token] = true
	}
}

func TestIssueLink_RandomSourceFailure(t *testing.T) {
	f := newLinkFixture(t)
	f.service.random = bytes.NewReader(make([]byte, 8))

	_, err := f.service.IssueLink(context.Background(), f.path, "ops", nil)
	require.Error(t, err)
	assert.False(t, paymentErrors.IsValidationError(err))
}
