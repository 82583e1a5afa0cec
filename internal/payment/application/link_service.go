package application

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avika/achexport/internal/payment/domain"
	paymentErrors "github.com/avika/achexport/internal/payment/errors"
	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const tokenBytes = 32

// FileResolver maps a requested path to an absolute path inside the export
// root, or returns a ValidationError.
type FileResolver interface {
	Resolve(path string) (string, error)
}

type LinkServiceInterface interface {
	IssueLink(ctx context.Context, filePath, createdBy string, ttlMinutes *int) (*IssuedLink, error)
	RedeemLink(ctx context.Context, token string) (*Download, error)
}

type IssuedLink struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Download is an open batch file handed out by a successful redemption. The
// caller must close File.
type Download struct {
	File *os.File
	Name string
	Size int64
}

type LinkService struct {
	repo       domain.LinkRepository
	files      FileResolver
	defaultTTL int
	logger     *zap.Logger
	now        func() time.Time
	random     io.Reader
}

func NewLinkService(repo domain.LinkRepository, files FileResolver, defaultTTLMinutes int, logger *zap.Logger) *LinkService {
	return &LinkService{
		repo:       repo,
		files:      files,
		defaultTTL: defaultTTLMinutes,
		logger:     logger,
		now:        time.Now,
		random:     rand.Reader,
	}
}

// IssueLink creates a single-use token for an existing batch file. A nil ttl
// uses the configured default; a ttl of zero yields a link that is already
// expired.
func (s *LinkService) IssueLink(ctx context.Context, filePath, createdBy string, ttlMinutes *int) (*IssuedLink, error) {
	ttl := s.defaultTTL
	if ttlMinutes != nil {
		ttl = *ttlMinutes
	}

	errs := &paymentErrors.ValidationErrors{}
	resolved, err := s.files.Resolve(filePath)
	if err != nil {
		collect(errs, err)
	}
	createdBy = strings.TrimSpace(createdBy)
	if createdBy == "" {
		errs.Add(paymentErrors.NewValidationError("created_by", "is required"))
	} else if strings.Contains(createdBy, "@") {
		if err := checkmail.ValidateFormat(createdBy); err != nil {
			errs.Add(paymentErrors.NewValidationError("created_by", "is not a valid e-mail address"))
		}
	}
	if ttl < 0 {
		errs.Add(paymentErrors.NewValidationError("ttl_minutes", "must not be negative"))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return nil, paymentErrors.ErrFileMissing
	}

	raw := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.random, raw); err != nil {
		return nil, fmt.Errorf("could not generate link token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := s.now().UTC()
	link := &domain.OneTimeLink{
		ID:        uuid.NewString(),
		TokenHash: domain.HashToken(token),
		FilePath:  resolved,
		ExpiresAt: now.Add(time.Duration(ttl) * time.Minute),
		CreatedBy: createdBy,
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("could not save download link: %w", err)
	}

	s.logger.Info("Download link issued",
		zap.String("link_id", link.ID),
		zap.String("path", link.FilePath),
		zap.String("created_by", link.CreatedBy),
		zap.Time("expires_at", link.ExpiresAt),
	)
	return &IssuedLink{Token: token, ExpiresAt: link.ExpiresAt}, nil
}

// RedeemLink consumes the token and opens its file. Of any number of
// concurrent calls for one token at most one succeeds. A missing file does not
// consume the token.
func (s *LinkService) RedeemLink(ctx context.Context, token string) (*Download, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, paymentErrors.ErrLinkNotFound
	}
	tokenHash := domain.HashToken(token)

	link, err := s.repo.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if link.IsUsed() {
		return nil, paymentErrors.ErrLinkAlreadyUsed
	}
	if link.IsExpired(now) {
		return nil, paymentErrors.ErrLinkExpired
	}

	file, err := os.Open(link.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, paymentErrors.ErrFileMissing
		}
		return nil, fmt.Errorf("could not open batch file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("could not stat batch file: %w", err)
	}

	won, err := s.repo.MarkUsed(ctx, tokenHash, now)
	if err != nil {
		file.Close()
		return nil, err
	}
	if !won {
		file.Close()
		return nil, s.lostRedemption(ctx, tokenHash)
	}

	s.logger.Info("Download link redeemed",
		zap.String("link_id", link.ID),
		zap.String("path", link.FilePath),
	)
	return &Download{
		File: file,
		Name: filepath.Base(filepath.Dir(link.FilePath)) + "-" + filepath.Base(link.FilePath),
		Size: info.Size(),
	}, nil
}

// lostRedemption reports why the conditional update did not apply.
func (s *LinkService) lostRedemption(ctx context.Context, tokenHash string) error {
	link, err := s.repo.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return err
	}
	if link.IsUsed() {
		return paymentErrors.ErrLinkAlreadyUsed
	}
	return paymentErrors.ErrLinkExpired
}
