package funding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

// PaystackClient talks to the Paystack transaction API.
type PaystackClient struct {
	BaseURL string
	Secret  string
	Client  *http.Client
}

func NewPaystackClient(baseURL, secret string, timeout time.Duration) *PaystackClient {
	return &PaystackClient{
		BaseURL: baseURL,
		Secret:  secret,
		Client:  &http.Client{Timeout: timeout},
	}
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *PaystackClient) do(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "encode gateway request", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, body)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "build gateway request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.Secret)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.GatewayUnavailable, "payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperr.Wrap(apperr.GatewayUnavailable, "read gateway response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Newf(apperr.GatewayUnavailable, "payment gateway returned %d", resp.StatusCode)
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperr.Wrap(apperr.GatewayUnavailable, "decode gateway response", err)
	}
	if !env.Status {
		return nil, apperr.Newf(apperr.GatewayUnavailable, "payment gateway declined: %s", env.Message)
	}
	return env.Data, nil
}

// Initialize calls POST /transaction/initialize.
func (p *PaystackClient) Initialize(ctx context.Context, in InitializeRequest) (Authorization, error) {
	payload := map[string]any{
		"amount":    in.Amount,
		"email":     in.Email,
		"reference": in.Reference,
		"currency":  in.Currency,
	}
	if in.CallbackURL != "" {
		payload["callback_url"] = in.CallbackURL
	}
	data, err := p.do(ctx, http.MethodPost, "/transaction/initialize", payload)
	if err != nil {
		return Authorization{}, err
	}
	var out struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return Authorization{}, apperr.Wrap(apperr.GatewayUnavailable, "decode initialize data", err)
	}
	if out.AuthorizationURL == "" {
		return Authorization{}, apperr.New(apperr.GatewayUnavailable, "payment gateway returned no authorization url")
	}
	return Authorization{AuthorizationURL: out.AuthorizationURL, AccessCode: out.AccessCode, Reference: out.Reference}, nil
}

// Verify calls GET /transaction/verify/:reference.
func (p *PaystackClient) Verify(ctx context.Context, reference string) (Verification, error) {
	data, err := p.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return Verification{}, err
	}
	var out struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		PaidAt    string `json:"paid_at"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return Verification{}, apperr.Wrap(apperr.GatewayUnavailable, "decode verify data", err)
	}
	v := Verification{Reference: out.Reference, Status: out.Status, Amount: out.Amount, Raw: data}
	if out.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, out.PaidAt); err == nil {
			v.PaidAt = t.UTC()
		}
	}
	if v.Reference == "" {
		v.Reference = reference
	}
	return v, nil
}
