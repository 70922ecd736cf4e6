package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/logging"
)

func newTestService() (*Service, *ledger.MemoryStore) {
	store := ledger.NewInMemory(time.Second)
	return NewService(NewMemoryRepository(store), logging.Discard()), store
}

func TestSignInProvisionsUserAndWallet(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	user, created, err := svc.SignIn(ctx, Profile{GoogleID: "g-1", Email: "Ada@Example.com", Name: "Ada"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if !created {
		t.Fatalf("expected first sign-in to create the user")
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("expected normalised email, got %s", user.Email)
	}

	w, err := store.WalletByOwner(ctx, user.ID)
	if err != nil {
		t.Fatalf("wallet for new user: %v", err)
	}
	if w.Balance != 0 || len(w.Number) < 14 {
		t.Fatalf("unexpected wallet %+v", w)
	}

	again, created, err := svc.SignIn(ctx, Profile{GoogleID: "g-1", Email: "ada@example.com", Name: "Ada"})
	if err != nil {
		t.Fatalf("second sign in: %v", err)
	}
	if created || again.ID != user.ID {
		t.Fatalf("expected existing user on second sign-in")
	}
}

func TestSignInLinksExistingEmail(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, _, err := svc.SignIn(ctx, Profile{GoogleID: "g-1", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	linked, created, err := svc.SignIn(ctx, Profile{GoogleID: "g-2", Email: "ada@example.com", Name: "Ada L"})
	if err != nil {
		t.Fatalf("sign in by email: %v", err)
	}
	if created || linked.ID != first.ID || linked.GoogleID != "g-2" || linked.Name != "Ada L" {
		t.Fatalf("expected profile refresh on the existing user, got %+v", linked)
	}
}

func TestSignInRejectsIncompleteProfile(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.SignIn(context.Background(), Profile{Email: "ada@example.com"})
	if !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestGoogleProviderExchange(t *testing.T) {
	verified := true
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "at-1", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub": "g-42", "email": "grace@example.com", "email_verified": verified, "name": "Grace",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	provider := newGoogleProvider(&oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback",
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
	}, srv.URL+"/userinfo")

	profile, err := provider.Exchange(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if profile.GoogleID != "g-42" || profile.Email != "grace@example.com" {
		t.Fatalf("unexpected profile %+v", profile)
	}

	verified = false
	if _, err := provider.Exchange(context.Background(), "code-2"); !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("expected unverified email to be rejected, got %v", err)
	}

	if _, err := provider.Exchange(context.Background(), ""); !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("expected missing code to be rejected, got %v", err)
	}
}
