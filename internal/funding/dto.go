package funding

import (
	"encoding/json"
	"time"
)

// DepositRequest is the body of POST /wallet/deposit. Amount is in minor units.
type DepositRequest struct {
	Amount int64 `json:"amount"`
}

// DepositStatusResponse reports a deposit's local state.
type DepositStatusResponse struct {
	Reference string     `json:"reference"`
	Status    string     `json:"status"`
	Amount    int64      `json:"amount"`
	PaidAt    *time.Time `json:"paid_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// DepositVerifyResponse adds the gateway's view to the local state.
type DepositVerifyResponse struct {
	DepositStatusResponse
	GatewayStatus string          `json:"gateway_status"`
	GatewayData   json.RawMessage `json:"gateway_data"`
}

// WebhookResponse acknowledges a decided webhook event.
type WebhookResponse struct {
	Status bool `json:"status"`
}
