package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const (
	DepositPrefix  = "dep_"
	TransferPrefix = "xfer_"
)

// NewReference returns prefix followed by 128 random bits in hex. Uniqueness is
// still enforced by the store.
func NewReference(prefix string) string {
	id := uuid.New()
	return prefix + hex.EncodeToString(id[:])
}

// NewWalletNumber builds a human-readable wallet number from the creation time
// in milliseconds and three random digits.
func NewWalletNumber(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900))
	if err != nil {
		return "", fmt.Errorf("wallet number entropy: %w", err)
	}
	return fmt.Sprintf("%d%d", now.UnixMilli(), 100+n.Int64()), nil
}
