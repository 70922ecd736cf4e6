package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/identity"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/logging"
)

func newTestAuth(t *testing.T) (*Service, identity.User) {
	t.Helper()
	repo := identity.NewMemoryRepository(ledger.NewInMemory(time.Second))
	ids := identity.NewService(repo, logging.Discard())
	user, _, err := ids.SignIn(context.Background(), identity.Profile{GoogleID: "g-1", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	return NewService(NewTokenManager("secret", time.Hour, "wallet-ledger"), repo, logging.Discard()), user
}

func TestAuthenticateBearer(t *testing.T) {
	svc, user := newTestAuth(t)
	token, err := svc.Login(user)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token.TokenType != "bearer" {
		t.Fatalf("expected bearer token type, got %s", token.TokenType)
	}
	p, err := svc.Authenticate(context.Background(), token.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.UserID != user.ID || p.Method != MethodJWT || p.Permissions != AllPermissions {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestLogoutRevokesTokens(t *testing.T) {
	svc, user := newTestAuth(t)
	ctx := context.Background()
	token, err := svc.Login(user)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := svc.Logout(ctx, user.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Authenticate(ctx, token.AccessToken); !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("expected revoked token to fail, got %v", err)
	}
}

func TestAuthenticateUnknownUser(t *testing.T) {
	svc, _ := newTestAuth(t)
	signed, _, err := svc.tokens.Issue("no-such-user", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), signed); !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestStateStoresConsumeOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	ctx := context.Background()
	for name, store := range map[string]StateStore{
		"redis":  NewRedisStateStore(cache),
		"memory": NewMemoryStateStore(),
	} {
		state, err := newState()
		if err != nil {
			t.Fatalf("%s: new state: %v", name, err)
		}
		if err := store.Save(ctx, state, time.Minute); err != nil {
			t.Fatalf("%s: save: %v", name, err)
		}
		ok, err := store.Consume(ctx, state)
		if err != nil || !ok {
			t.Fatalf("%s: first consume ok=%v err=%v", name, ok, err)
		}
		ok, err = store.Consume(ctx, state)
		if err != nil || ok {
			t.Fatalf("%s: second consume should fail, ok=%v err=%v", name, ok, err)
		}
	}
}
