package identity

import (
	"time"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

// ErrUserNotFound is returned when no user matches a lookup.
var ErrUserNotFound = apperr.New(apperr.NotFound, "user not found")

// User is a principal that signed in through the identity provider.
type User struct {
	ID           string
	Email        string
	Name         string
	Picture      string
	GoogleID     string
	TokenVersion int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is what the identity provider asserts about a person.
type Profile struct {
	GoogleID string
	Email    string
	Name     string
	Picture  string
}
