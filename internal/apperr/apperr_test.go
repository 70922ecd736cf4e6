package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	base := New(InsufficientFunds, "insufficient funds")
	wrapped := fmt.Errorf("transfer: %w", base)

	if KindOf(wrapped) != InsufficientFunds {
		t.Fatalf("expected insufficient_funds, got %s", KindOf(wrapped))
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("expected errors.Is to match sentinel")
	}
	if DetailOf(wrapped) != "insufficient funds" {
		t.Fatalf("unexpected detail %q", DetailOf(wrapped))
	}
}

func TestIsMatchesKindOnlyTargets(t *testing.T) {
	err := Newf(NotFound, "recipient wallet %s", "123")
	if !errors.Is(err, &Error{Kind: NotFound}) {
		t.Fatalf("expected kind-only target to match")
	}
	if errors.Is(err, New(NotFound, "sender wallet")) {
		t.Fatalf("different detail must not match")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != Internal {
		t.Fatalf("expected internal for plain errors")
	}
	if Is(nil, Internal) {
		t.Fatalf("nil error carries no kind")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		InvalidAmount:      http.StatusBadRequest,
		NotFound:           http.StatusNotFound,
		Unauthenticated:    http.StatusUnauthorized,
		Forbidden:          http.StatusForbidden,
		GatewayUnavailable: http.StatusBadGateway,
		Transient:          http.StatusServiceUnavailable,
		Internal:           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Fatalf("%s: expected %d got %d", kind, want, got)
		}
	}
}
