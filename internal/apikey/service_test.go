package apikey

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/auth"
	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/logging"
)

func newTestService() *Service {
	cfg := config.Config{APIKeyPrefix: "sk_test", APIKeyHashCost: bcrypt.MinCost, MaxActiveAPIKeys: 5}
	return NewService(NewMemoryRepository(), cfg, logging.Discard())
}

func TestCreateAndResolve(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	issued, err := svc.Create(ctx, "user-1", "reporting", []string{"read", "deposit"}, "1D")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(issued.APIKey, "sk_test_") {
		t.Fatalf("unexpected key format %s", issued.APIKey)
	}

	p, err := svc.Resolve(ctx, issued.APIKey)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.UserID != "user-1" || p.Method != auth.MethodAPIKey || p.KeyID != issued.ID {
		t.Fatalf("unexpected principal %+v", p)
	}
	if !p.Permissions.Has(auth.PermRead) || p.Permissions.Has(auth.PermTransfer) {
		t.Fatalf("expected exactly the granted permissions, got %v", p.Permissions.Strings())
	}
	if err := p.Permissions.Require(auth.PermTransfer); apperr.DetailOf(err) != "missing permission: transfer" {
		t.Fatalf("expected transfer to be forbidden, got %v", err)
	}
}

func TestResolveRejectsBadKeys(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	issued, err := svc.Create(ctx, "user-1", "k", []string{"read"}, "1H")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Same index prefix, different secret.
	tampered := issued.APIKey[:len(issued.APIKey)-1] + "x"
	if strings.HasSuffix(issued.APIKey, "x") {
		tampered = issued.APIKey[:len(issued.APIKey)-1] + "y"
	}
	for _, key := range []string{"", "garbage", "sk_live_" + issued.APIKey[len("sk_test_"):], "sk_test_short", tampered} {
		if _, err := svc.Resolve(ctx, key); !apperr.Is(err, apperr.Unauthenticated) {
			t.Fatalf("expected unauthenticated for %q, got %v", key, err)
		}
	}
}

func TestResolveExpiredAndRevoked(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	base := time.Now().UTC()
	svc.now = func() time.Time { return base }

	expiring, err := svc.Create(ctx, "user-1", "short", []string{"read"}, "1H")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	revoked, err := svc.Create(ctx, "user-1", "revoked", []string{"read"}, "1Y")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Revoke(ctx, "user-1", revoked.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Resolve(ctx, revoked.APIKey); !apperr.Is(err, apperr.Forbidden) {
		t.Fatalf("expected forbidden for revoked key, got %v", err)
	}

	svc.now = func() time.Time { return base.Add(time.Hour) }
	if _, err := svc.Resolve(ctx, expiring.APIKey); !apperr.Is(err, apperr.Forbidden) {
		t.Fatalf("expected forbidden for expired key, got %v", err)
	}
}

func TestActiveKeyCeiling(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	var first Issued
	for i := 0; i < 5; i++ {
		issued, err := svc.Create(ctx, "user-1", "k", []string{"read"}, "1D")
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if i == 0 {
			first = issued
		}
	}
	if _, err := svc.Create(ctx, "user-1", "k", []string{"read"}, "1D"); !apperr.Is(err, apperr.InvalidOperation) {
		t.Fatalf("expected ceiling to reject sixth key, got %v", err)
	}
	if _, err := svc.Create(ctx, "user-2", "k", []string{"read"}, "1D"); err != nil {
		t.Fatalf("other users are unaffected: %v", err)
	}
	if err := svc.Revoke(ctx, "user-1", first.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Create(ctx, "user-1", "k", []string{"read"}, "1D"); err != nil {
		t.Fatalf("expected room after revoke: %v", err)
	}
}

func TestConcurrentCreateHonoursCeiling(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Create(ctx, "user-1", "k", []string{"read"}, "1D"); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != 5 {
		t.Fatalf("expected exactly 5 keys, got %d", ok)
	}
}

func TestRollover(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	base := time.Now().UTC()
	svc.now = func() time.Time { return base }

	old, err := svc.Create(ctx, "user-1", "billing", []string{"deposit", "transfer"}, "1H")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Rollover(ctx, "user-1", old.ID, "1D"); !apperr.Is(err, apperr.InvalidOperation) {
		t.Fatalf("expected unexpired key to be refused, got %v", err)
	}

	svc.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, err := svc.Rollover(ctx, "user-2", old.ID, "1D"); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected other user's key to be not found, got %v", err)
	}

	fresh, err := svc.Rollover(ctx, "user-1", old.ID, "1M")
	if err != nil {
		t.Fatalf("rollover: %v", err)
	}
	p, err := svc.Resolve(ctx, fresh.APIKey)
	if err != nil {
		t.Fatalf("resolve rolled key: %v", err)
	}
	if p.Permissions != auth.NewPermissionSet(auth.PermDeposit, auth.PermTransfer) {
		t.Fatalf("permissions not preserved: %v", p.Permissions.Strings())
	}

	keys, err := svc.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected two keys, got %d", len(keys))
	}
	for _, k := range keys {
		if k.Name != "billing" {
			t.Fatalf("name not preserved: %s", k.Name)
		}
		if k.ID == old.ID && k.Active {
			t.Fatalf("old key should be deactivated")
		}
	}

	if _, err := svc.Rollover(ctx, "user-1", old.ID, "1D"); !apperr.Is(err, apperr.InvalidOperation) {
		t.Fatalf("expected second rollover of the same key to be refused, got %v", err)
	}
}

func TestParseExpiry(t *testing.T) {
	cases := map[string]time.Duration{
		"1H": time.Hour,
		"1d": 24 * time.Hour,
		"1M": 30 * 24 * time.Hour,
		"1Y": 365 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, err := ParseExpiry(in)
		if err != nil || got != want {
			t.Fatalf("ParseExpiry(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseExpiry("2W"); !apperr.Is(err, apperr.InvalidOperation) {
		t.Fatalf("expected invalid expiry, got %v", err)
	}
}

func TestHandlerCreateAndRevoke(t *testing.T) {
	svc := newTestService()
	h := NewHandler(svc)
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		return c.Status(apperr.HTTPStatus(apperr.KindOf(err))).SendString(apperr.DetailOf(err))
	}})
	app.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(auth.WithPrincipal(c.UserContext(), auth.Principal{UserID: "user-1", Permissions: auth.AllPermissions, Method: auth.MethodJWT}))
		return c.Next()
	})
	app.Post("/keys/create", h.Create)
	app.Get("/keys", h.List)
	app.Delete("/keys/:id", h.Revoke)

	req := httptest.NewRequest("POST", "/keys/create", strings.NewReader(`{"name":"ci","permissions":["read"],"expiry":"1D"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	keys, _ := svc.List(context.Background(), "user-1")
	if len(keys) != 1 {
		t.Fatalf("expected one key, got %d", len(keys))
	}

	resp, err = app.Test(httptest.NewRequest("DELETE", "/keys/"+keys[0].ID, nil))
	if err != nil {
		t.Fatalf("revoke request: %v", err)
	}
	if resp.StatusCode != 204 {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest("DELETE", "/keys/unknown", nil))
	if err != nil {
		t.Fatalf("revoke request: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404 for unknown key, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("POST", "/keys/create", strings.NewReader(`{"name":"ci","permissions":["admin"],"expiry":"1D"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 for unknown permission, got %d", resp.StatusCode)
	}
}
