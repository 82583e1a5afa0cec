package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avika/achexport/internal/payment/domain"
	paymentErrors "github.com/avika/achexport/internal/payment/errors"
)

type LinkRepository struct {
	db *sql.DB
}

func NewLinkRepository(db *sql.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

func (r *LinkRepository) Create(ctx context.Context, link *domain.OneTimeLink) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO one_time_links (id, token_hash, file_path, expires_at, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		link.ID, link.TokenHash, link.FilePath, link.ExpiresAt.UTC(), link.CreatedBy, link.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("could not create one-time link: %w", err)
	}
	return nil
}

func (r *LinkRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*domain.OneTimeLink, error) {
	var (
		link   domain.OneTimeLink
		usedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, token_hash, file_path, expires_at, used_at, created_by, created_at
         FROM one_time_links
         WHERE token_hash = $1`,
		tokenHash,
	).Scan(&link.ID, &link.TokenHash, &link.FilePath, &link.ExpiresAt, &usedAt, &link.CreatedBy, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, paymentErrors.ErrLinkNotFound
		}
		return nil, fmt.Errorf("could not find one-time link: %w", err)
	}

	link.ExpiresAt = link.ExpiresAt.UTC()
	link.CreatedAt = link.CreatedAt.UTC()
	if usedAt.Valid {
		t := usedAt.Time.UTC()
		link.UsedAt = &t
	}
	return &link, nil
}

// MarkUsed is a single conditional UPDATE; the row lock taken by Postgres
// guarantees one winner among concurrent redeemers.
func (r *LinkRepository) MarkUsed(ctx context.Context, tokenHash string, usedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE one_time_links
         SET used_at = $2
         WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2`,
		tokenHash, usedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("could not mark one-time link used: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not read affected rows: %w", err)
	}
	return affected == 1, nil
}
