package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// OneTimeLink grants a single, time-bounded download of a batch file. Only the
// SHA-256 of the token is stored. UsedAt moves from nil to set exactly once and
// the row is kept afterwards as an audit record.
type OneTimeLink struct {
	ID        string
	TokenHash string
	FilePath  string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedBy string
	CreatedAt time.Time
}

// IsExpired treats the expiry instant itself as expired, so a zero TTL link is
// never redeemable.
func (l *OneTimeLink) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

func (l *OneTimeLink) IsUsed() bool {
	return l.UsedAt != nil
}

// HashToken returns the lookup key stored for a raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
