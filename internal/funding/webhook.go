package funding

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

const (
	signatureHeader    = "x-paystack-signature"
	eventChargeSuccess = "charge.success"
)

// Sign returns the hex HMAC-SHA512 of body under secret, as Paystack sends it.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the presented signature with the expected one in
// constant time. An empty secret or signature never verifies.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	presented, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(presented, mac.Sum(nil))
}

// Event is the subset of a gateway webhook the ledger needs.
type Event struct {
	Type      string
	Reference string
	Amount    int64
	PaidAt    time.Time
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		PaidAt    string `json:"paid_at"`
	} `json:"data"`
}

// ParseEvent decodes an authenticated webhook body.
func ParseEvent(body []byte) (Event, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, apperr.Wrap(apperr.InvalidOperation, "malformed webhook payload", err)
	}
	ev := Event{Type: p.Event, Reference: p.Data.Reference, Amount: p.Data.Amount}
	if p.Data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, p.Data.PaidAt); err == nil {
			ev.PaidAt = t.UTC()
		}
	}
	return ev, nil
}
