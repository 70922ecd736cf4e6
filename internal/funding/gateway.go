package funding

import (
	"context"
	"encoding/json"
	"time"
)

// Gateway is the outbound half of the payment gateway bridge.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (Authorization, error)
	Verify(ctx context.Context, reference string) (Verification, error)
}

// InitializeRequest asks the gateway to start a hosted checkout.
type InitializeRequest struct {
	Reference   string
	Email       string
	Amount      int64
	Currency    string
	CallbackURL string
}

// Authorization is where the payer must be sent to complete the deposit.
type Authorization struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// Gateway-side transaction states.
const (
	GatewaySuccess   = "success"
	GatewayFailed    = "failed"
	GatewayAbandoned = "abandoned"
	GatewayPending   = "pending"
)

// Verification is the gateway's view of a transaction.
type Verification struct {
	Reference string
	Status    string
	Amount    int64
	PaidAt    time.Time
	Raw       json.RawMessage
}

// StaticGateway approves every checkout with a synthetic URL. It backs
// local development when no Paystack key is configured.
type StaticGateway struct {
	// VerifyStatus is reported by Verify; empty means pending.
	VerifyStatus string
}

func (StaticGateway) Initialize(_ context.Context, req InitializeRequest) (Authorization, error) {
	return Authorization{
		AuthorizationURL: "https://checkout.invalid/" + req.Reference,
		AccessCode:       "static",
		Reference:        req.Reference,
	}, nil
}

func (g StaticGateway) Verify(_ context.Context, reference string) (Verification, error) {
	status := g.VerifyStatus
	if status == "" {
		status = GatewayPending
	}
	return Verification{Reference: reference, Status: status, Raw: json.RawMessage(`{}`)}, nil
}
