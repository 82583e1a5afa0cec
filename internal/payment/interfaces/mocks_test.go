package interfaces

import (
	"context"
	"time"

	"github.com/avika/achexport/internal/payment/application"
	"github.com/avika/achexport/internal/payment/domain"
)

type mockAuthorizationService struct {
	input  domain.AuthorizationInput
	result *application.AuthorizationResult
	err    error
}

func (m *mockAuthorizationService) CreateAuthorization(_ context.Context, input domain.AuthorizationInput) (*application.AuthorizationResult, error) {
	m.input = input
	return m.result, m.err
}

type mockBatchBuilder struct {
	date    time.Time
	options application.BatchOptions
	path    string
	err     error
}

func (m *mockBatchBuilder) Build(_ context.Context, date time.Time, options application.BatchOptions) (string, error) {
	m.date = date
	m.options = options
	return m.path, m.err
}

type mockLinkService struct {
	issuePath  string
	issueActor string
	issueTTL   *int
	issued     *application.IssuedLink
	issueErr   error

	redeemToken string
	download    *application.Download
	redeemErr   error
}

func (m *mockLinkService) IssueLink(_ context.Context, filePath, createdBy string, ttlMinutes *int) (*application.IssuedLink, error) {
	m.issuePath = filePath
	m.issueActor = createdBy
	m.issueTTL = ttlMinutes
	return m.issued, m.issueErr
}

func (m *mockLinkService) RedeemLink(_ context.Context, token string) (*application.Download, error) {
	m.redeemToken = token
	return m.download, m.redeemErr
}
