package ledger

import (
	"strings"
	"testing"
	"time"
)

func TestReferencesAreUniqueAndPrefixed(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 5_000; i++ {
		for _, prefix := range []string{DepositPrefix, TransferPrefix} {
			ref := NewReference(prefix)
			if !strings.HasPrefix(ref, prefix) {
				t.Fatalf("reference %q missing prefix %q", ref, prefix)
			}
			if _, dup := seen[ref]; dup {
				t.Fatalf("duplicate reference %q", ref)
			}
			seen[ref] = struct{}{}
		}
	}
}

func TestNewWalletNumber(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	number, err := NewWalletNumber(now)
	if err != nil {
		t.Fatalf("wallet number: %v", err)
	}
	if !strings.HasPrefix(number, "1700000000123") {
		t.Fatalf("expected millisecond prefix, got %s", number)
	}
	if len(number) != len("1700000000123")+3 {
		t.Fatalf("expected three trailing digits, got %s", number)
	}
}
