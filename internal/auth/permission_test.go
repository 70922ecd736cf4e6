package auth

import (
	"testing"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

func TestParsePermissions(t *testing.T) {
	set, err := ParsePermissions([]string{"read", " Deposit "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !set.Has(PermRead) || !set.Has(PermDeposit) || set.Has(PermTransfer) {
		t.Fatalf("unexpected set %v", set.Strings())
	}
	if got := set.Strings(); len(got) != 2 || got[0] != "deposit" || got[1] != "read" {
		t.Fatalf("expected declaration order, got %v", got)
	}

	if _, err := ParsePermissions(nil); !apperr.Is(err, apperr.InvalidOperation) {
		t.Fatalf("expected empty list to be rejected, got %v", err)
	}
	if _, err := ParsePermissions([]string{"read", "admin"}); !apperr.Is(err, apperr.InvalidOperation) {
		t.Fatalf("expected unknown permission to be rejected, got %v", err)
	}
}

func TestRequire(t *testing.T) {
	set := NewPermissionSet(PermRead)
	if err := set.Require(PermRead); err != nil {
		t.Fatalf("read should be granted: %v", err)
	}
	err := set.Require(PermTransfer)
	if !apperr.Is(err, apperr.Forbidden) || apperr.DetailOf(err) != "missing permission: transfer" {
		t.Fatalf("expected forbidden naming transfer, got %v", err)
	}
	for _, p := range []Permission{PermDeposit, PermTransfer, PermRead} {
		if !AllPermissions.Has(p) {
			t.Fatalf("AllPermissions missing %s", p)
		}
	}
}
