package apikey

import (
	"strings"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/auth"
)

var ErrKeyNotFound = apperr.New(apperr.NotFound, "api key not found")

// Key is a persisted API key. Only the bcrypt hash of the secret is stored.
type Key struct {
	ID          string
	UserID      string
	Name        string
	Prefix      string
	Hash        string
	Permissions auth.PermissionSet
	ExpiresAt   time.Time
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Usable reports whether the key can authenticate at now.
func (k Key) Usable(now time.Time) bool {
	return k.Active && now.Before(k.ExpiresAt)
}

// Expired reports whether the key's lifetime has ended at now.
func (k Key) Expired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// ParseExpiry maps the accepted lifetimes 1H, 1D, 1M and 1Y to durations.
// A month is 30 days and a year 365.
func ParseExpiry(v string) (time.Duration, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "1H":
		return time.Hour, nil
	case "1D":
		return 24 * time.Hour, nil
	case "1M":
		return 30 * 24 * time.Hour, nil
	case "1Y":
		return 365 * 24 * time.Hour, nil
	default:
		return 0, apperr.Newf(apperr.InvalidOperation, "invalid expiry %q: use 1H, 1D, 1M or 1Y", v)
	}
}
