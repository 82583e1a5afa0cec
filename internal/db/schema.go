package database

// Statements are applied one at a time, in order.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS bank_accounts (
		id             TEXT PRIMARY KEY,
		customer_id    TEXT NOT NULL,
		routing_cipher TEXT NOT NULL,
		routing_nonce  TEXT NOT NULL,
		account_cipher TEXT NOT NULL,
		account_nonce  TEXT NOT NULL,
		account_type   VARCHAR(10) NOT NULL CHECK (account_type IN ('checking', 'savings')),
		last4          CHAR(4) NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (routing_nonce <> account_nonce)
	)`,
	`CREATE TABLE IF NOT EXISTS payment_authorizations (
		id               TEXT PRIMARY KEY,
		customer_id      TEXT NOT NULL,
		payer_name       VARCHAR(120) NOT NULL,
		practice_name    VARCHAR(120),
		invoice_number   VARCHAR(64) NOT NULL,
		amount_cents     BIGINT NOT NULL CHECK (amount_cents > 0),
		consent_version  VARCHAR(32) NOT NULL,
		consent_snapshot TEXT NOT NULL,
		consent_checkbox BOOLEAN NOT NULL CHECK (consent_checkbox),
		consented_at     TIMESTAMPTZ NOT NULL,
		consent_ip       VARCHAR(64),
		bank_account_id  TEXT NOT NULL UNIQUE REFERENCES bank_accounts (id)
	)`,
	`CREATE INDEX IF NOT EXISTS payment_authorizations_consented_at_idx
		ON payment_authorizations (consented_at, id)`,
	`CREATE TABLE IF NOT EXISTS one_time_links (
		id         TEXT PRIMARY KEY,
		token_hash CHAR(64) NOT NULL UNIQUE,
		file_path  TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		used_at    TIMESTAMPTZ,
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}
