package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avika/achexport/internal/payment/domain"
	"go.uber.org/zap"
)

type AuthorizationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewAuthorizationRepository(db *sql.DB, logger *zap.Logger) *AuthorizationRepository {
	return &AuthorizationRepository{db: db, logger: logger}
}

func (r *AuthorizationRepository) CreateWithBankAccount(ctx context.Context, account *domain.BankAccount, authorization *domain.PaymentAuthorization) error {
	if authorization.BankAccountID != account.ID {
		return fmt.Errorf("authorization %s does not reference bank account %s", authorization.ID, account.ID)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bank_accounts
        (id, customer_id, routing_cipher, routing_nonce, account_cipher, account_nonce, account_type, last4, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		account.ID, account.CustomerID, account.RoutingCipher, account.RoutingNonce,
		account.AccountCipher, account.AccountNonce, string(account.AccountType), account.Last4, account.CreatedAt,
	)
	if err != nil {
		r.safeRollback(tx)
		return fmt.Errorf("could not insert bank account: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payment_authorizations
        (id, customer_id, payer_name, practice_name, invoice_number, amount_cents, consent_version,
         consent_snapshot, consent_checkbox, consented_at, consent_ip, bank_account_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		authorization.ID, authorization.CustomerID, authorization.PayerName, nullableString(authorization.PracticeName),
		authorization.InvoiceNumber, authorization.AmountCents, authorization.ConsentVersion,
		authorization.ConsentSnapshot, authorization.ConsentCheckbox, authorization.ConsentedAt,
		nullableString(authorization.ConsentIP), authorization.BankAccountID,
	)
	if err != nil {
		r.safeRollback(tx)
		return fmt.Errorf("could not insert payment authorization: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit authorization: %w", err)
	}
	return nil
}

func (r *AuthorizationRepository) FindConsentedBetween(ctx context.Context, start, end time.Time) ([]domain.PaymentAuthorization, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, customer_id, payer_name, practice_name, invoice_number, amount_cents, consent_version,
                consent_snapshot, consent_checkbox, consented_at, consent_ip, bank_account_id
         FROM payment_authorizations
         WHERE consented_at >= $1 AND consented_at < $2
         ORDER BY consented_at ASC, id ASC`,
		start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("could not query payment authorizations: %w", err)
	}
	defer rows.Close()

	var authorizations []domain.PaymentAuthorization
	for rows.Next() {
		var (
			a            domain.PaymentAuthorization
			practiceName sql.NullString
			consentIP    sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.PayerName, &practiceName, &a.InvoiceNumber, &a.AmountCents,
			&a.ConsentVersion, &a.ConsentSnapshot, &a.ConsentCheckbox, &a.ConsentedAt, &consentIP, &a.BankAccountID); err != nil {
			return nil, fmt.Errorf("could not scan payment authorization: %w", err)
		}
		a.PracticeName = practiceName.String
		a.ConsentIP = consentIP.String
		a.ConsentedAt = a.ConsentedAt.UTC()
		authorizations = append(authorizations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return authorizations, nil
}

func (r *AuthorizationRepository) FindBankAccountsByIDs(ctx context.Context, ids []string) (map[string]domain.BankAccount, error) {
	accounts := make(map[string]domain.BankAccount, len(ids))
	if len(ids) == 0 {
		return accounts, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, customer_id, routing_cipher, routing_nonce, account_cipher, account_nonce, account_type, last4, created_at
         FROM bank_accounts
         WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("could not query bank accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a           domain.BankAccount
			accountType string
		)
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.RoutingCipher, &a.RoutingNonce, &a.AccountCipher,
			&a.AccountNonce, &accountType, &a.Last4, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("could not scan bank account: %w", err)
		}
		a.AccountType = domain.AccountType(accountType)
		a.CreatedAt = a.CreatedAt.UTC()
		accounts[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *AuthorizationRepository) safeRollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		r.logger.Error("Error during transaction rollback", zap.Error(err))
	}
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
