package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/funding"
	"github.com/congo-pay/wallet_ledger/internal/identity"
	"github.com/congo-pay/wallet_ledger/internal/logging"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
	"github.com/congo-pay/wallet_ledger/internal/middleware"
	"github.com/congo-pay/wallet_ledger/internal/notification"
)

const webhookSecret = "whsec_test"

type fakeGoogle struct{}

func (fakeGoogle) AuthCodeURL(state string) string {
	return "https://accounts.example/o/oauth2/auth?state=" + url.QueryEscape(state)
}

func (fakeGoogle) Exchange(_ context.Context, code string) (identity.Profile, error) {
	return identity.Profile{GoogleID: "g-" + code, Email: code + "@example.com", Name: code}, nil
}

func testConfig() config.Config {
	return config.Config{
		AppName:               "WalletLedger",
		Env:                   "test",
		JWTSecret:             "jwt-secret",
		AccessTokenTTL:        time.Hour,
		APIKeyPrefix:          "sk_test",
		APIKeyHashCost:        bcrypt.MinCost,
		MaxActiveAPIKeys:      5,
		AuthFailuresPerMinute: 10,
		PaystackWebhookSecret: webhookSecret,
		IdempotencyTTL:        time.Hour,
		LockTimeout:           time.Second,
		Currency:              "NGN",
	}
}

func newTestApp(t *testing.T) (*fiber.App, *notification.Recorder) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	reg := prometheus.NewRegistry()
	notes := &notification.Recorder{}
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logging.Discard())})
	_, err := Setup(app, Deps{
		Cfg:      testConfig(),
		Cache:    cache,
		Logger:   logging.Discard(),
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Gateway:  funding.StaticGateway{},
		Google:   fakeGoogle{},
		Notifier: notes,
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app, notes
}

func call(t *testing.T, app *fiber.App, method, path string, body any, headers map[string]string) (int, map[string]any, *httptestResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out, &httptestResponse{header: resp.Header.Get, body: string(raw)}
}

type httptestResponse struct {
	header func(string) string
	body   string
}

type session struct {
	token        string
	walletNumber string
}

func (s session) bearer() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.token}
}

func signIn(t *testing.T, app *fiber.App, code string) session {
	t.Helper()
	status, out, _ := call(t, app, "GET", "/auth/google", nil, nil)
	if status != 200 {
		t.Fatalf("google login: %d %v", status, out)
	}
	consent, err := url.Parse(out["google_auth_url"].(string))
	if err != nil {
		t.Fatalf("parse consent url: %v", err)
	}
	state := consent.Query().Get("state")

	status, out, _ = call(t, app, "GET", "/auth/google/callback?state="+url.QueryEscape(state)+"&code="+code, nil, nil)
	if status != 200 {
		t.Fatalf("google callback: %d %v", status, out)
	}
	if out["new_user"] != true {
		t.Fatalf("expected a new user, got %v", out)
	}
	return session{token: out["access_token"].(string), walletNumber: out["wallet_number"].(string)}
}

func balanceOf(t *testing.T, app *fiber.App, headers map[string]string) float64 {
	t.Helper()
	status, out, _ := call(t, app, "GET", "/wallet/balance", nil, headers)
	if status != 200 {
		t.Fatalf("balance: %d %v", status, out)
	}
	return out["balance"].(float64)
}

func deliver(t *testing.T, app *fiber.App, reference string, amount int64) int {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"event": "charge.success",
		"data":  map[string]any{"reference": reference, "amount": amount, "paid_at": "2026-01-02T10:00:00Z"},
	})
	req := httptest.NewRequest("POST", "/wallet/paystack/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-paystack-signature", funding.Sign(webhookSecret, body))
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestDepositWebhookAndTransferFlow(t *testing.T) {
	app, notes := newTestApp(t)
	ada := signIn(t, app, "ada")
	bob := signIn(t, app, "bob")

	status, out, _ := call(t, app, "POST", "/wallet/deposit", map[string]any{"amount": 5000}, ada.bearer())
	if status != 201 {
		t.Fatalf("deposit: %d %v", status, out)
	}
	reference := out["reference"].(string)
	if !strings.HasPrefix(reference, "dep_") {
		t.Fatalf("unexpected reference %q", reference)
	}

	for i := 0; i < 3; i++ {
		if code := deliver(t, app, reference, 5000); code != 200 {
			t.Fatalf("webhook delivery %d: status %d", i, code)
		}
	}
	if got := balanceOf(t, app, ada.bearer()); got != 5000 {
		t.Fatalf("expected single credit of 5000, got %v", got)
	}

	status, out, _ = call(t, app, "GET", "/wallet/deposit/"+reference+"/status", nil, bob.bearer())
	if status != 404 {
		t.Fatalf("foreign deposit must be invisible, got %d %v", status, out)
	}

	headers := ada.bearer()
	headers["Idempotency-Key"] = "transfer-1"
	transfer := map[string]any{"recipient_wallet_number": bob.walletNumber, "amount": 2000}
	status, out, _ = call(t, app, "POST", "/wallet/transfer", transfer, headers)
	if status != 200 {
		t.Fatalf("transfer: %d %v", status, out)
	}
	status, _, replayed := call(t, app, "POST", "/wallet/transfer", transfer, headers)
	if status != 200 || replayed.header("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replayed response, got %d %q", status, replayed.header("Idempotent-Replayed"))
	}

	if got := balanceOf(t, app, ada.bearer()); got != 3000 {
		t.Fatalf("expected sender balance 3000, got %v", got)
	}
	if got := balanceOf(t, app, bob.bearer()); got != 2000 {
		t.Fatalf("expected recipient balance 2000, got %v", got)
	}

	received := 0
	for _, m := range notes.Messages() {
		if m.Kind == notification.KindTransferReceived {
			received++
		}
	}
	if received != 1 {
		t.Fatalf("expected one transfer notification, got %d", received)
	}

	status, out, _ = call(t, app, "POST", "/wallet/transfer", map[string]any{"recipient_wallet_number": bob.walletNumber, "amount": 999999}, ada.bearer())
	if status != 400 || out["error"] != "insufficient_funds" {
		t.Fatalf("expected insufficient funds, got %d %v", status, out)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	app, _ := newTestApp(t)
	req := httptest.NewRequest("POST", "/payments/paystack/webhook", strings.NewReader(`{"event":"charge.success"}`))
	req.Header.Set("x-paystack-signature", "deadbeef")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAPIKeyScopes(t *testing.T) {
	app, _ := newTestApp(t)
	ada := signIn(t, app, "ada")
	bob := signIn(t, app, "bob")

	status, out, _ := call(t, app, "POST", "/keys/create", map[string]any{
		"name": "reporting", "permissions": []string{"read"}, "expiry": "1D",
	}, ada.bearer())
	if status != 201 {
		t.Fatalf("create key: %d %v", status, out)
	}
	key := map[string]string{"X-API-Key": out["api_key"].(string)}

	if got := balanceOf(t, app, key); got != 0 {
		t.Fatalf("expected empty balance, got %v", got)
	}
	status, out, _ = call(t, app, "POST", "/wallet/transfer", map[string]any{"recipient_wallet_number": bob.walletNumber, "amount": 1}, key)
	if status != 403 {
		t.Fatalf("read-only key must not transfer, got %d %v", status, out)
	}
	status, _, _ = call(t, app, "GET", "/keys", nil, key)
	if status != 403 {
		t.Fatalf("keys must not manage keys, got %d", status)
	}

	status, out, _ = call(t, app, "POST", "/keys/create", map[string]any{
		"name": "bad", "permissions": []string{"admin"}, "expiry": "1D",
	}, ada.bearer())
	if status != 400 {
		t.Fatalf("unknown permission must be rejected, got %d %v", status, out)
	}

	status, _, _ = call(t, app, "GET", "/wallet/balance", nil, map[string]string{"X-API-Key": "sk_test_nonsense-key"})
	if status != 401 {
		t.Fatalf("unknown key must be 401, got %d", status)
	}
}

func TestLogoutRevokesTokens(t *testing.T) {
	app, _ := newTestApp(t)
	ada := signIn(t, app, "ada")

	status, out, _ := call(t, app, "GET", "/me", nil, ada.bearer())
	if status != 200 {
		t.Fatalf("me: %d %v", status, out)
	}
	status, _, _ = call(t, app, "POST", "/auth/logout", nil, ada.bearer())
	if status != 200 {
		t.Fatalf("logout: %d", status)
	}
	status, out, _ = call(t, app, "GET", "/me", nil, ada.bearer())
	if status != 401 {
		t.Fatalf("expected revoked token, got %d %v", status, out)
	}
	status, _, _ = call(t, app, "GET", "/wallet", nil, nil)
	if status != 401 {
		t.Fatalf("expected 401 without credentials, got %d", status)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app, _ := newTestApp(t)

	status, out, _ := call(t, app, "GET", "/healthz", nil, nil)
	if status != 200 {
		t.Fatalf("healthz: %d %v", status, out)
	}

	signIn(t, app, "ada")
	status, _, resp := call(t, app, "GET", "/metrics", nil, nil)
	if status != 200 {
		t.Fatalf("metrics: %d", status)
	}
	if !strings.Contains(resp.body, "wallet_ledger_http_request_duration_seconds") {
		t.Fatalf("expected http histogram in metrics output")
	}
}

func TestSetupRequiresStoresOutsideDev(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	if _, err := Setup(fiber.New(), Deps{Cfg: cfg, Logger: logging.Discard()}); err == nil {
		t.Fatalf("expected setup to refuse in-memory stores in production")
	}
}

func TestUnknownPathsAreNotFound(t *testing.T) {
	app, _ := newTestApp(t)
	for _, path := range []string{"/nope", "/wallet/unknown", "/keys/a/b"} {
		status, out, _ := call(t, app, "GET", path, nil, nil)
		if status != 404 {
			t.Fatalf("%s: expected 404, got %d %v", path, status, out)
		}
	}
	status, _, _ := call(t, app, "GET", "/wallet/balance", nil, nil)
	if status != 401 {
		t.Fatalf("known protected path without credentials: expected 401, got %d", status)
	}
}
