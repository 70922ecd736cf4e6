package wallet

import "time"

// Balance is the read view of a wallet's available funds.
type Balance struct {
	WalletNumber string    `json:"wallet_number"`
	Balance      int64     `json:"balance"`
	Display      string    `json:"balance_display"`
	Currency     string    `json:"currency"`
	AsOf         time.Time `json:"as_of"`
}

// Entry is one row of transaction history as returned to the owner.
type Entry struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Amount      int64      `json:"amount"`
	Status      string     `json:"status"`
	Reference   string     `json:"reference"`
	Description string     `json:"description,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
