package auth

import (
	"strings"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

// Permission gates which ledger operations a credential may invoke.
type Permission string

const (
	PermDeposit  Permission = "deposit"
	PermTransfer Permission = "transfer"
	PermRead     Permission = "read"
)

var ordered = []Permission{PermDeposit, PermTransfer, PermRead}

func (p Permission) bit() PermissionSet {
	switch p {
	case PermDeposit:
		return 1 << 0
	case PermTransfer:
		return 1 << 1
	case PermRead:
		return 1 << 2
	default:
		return 0
	}
}

// PermissionSet is a set over the fixed permission enumeration.
type PermissionSet uint8

// AllPermissions is granted to bearer-token principals.
const AllPermissions = PermissionSet(1<<0 | 1<<1 | 1<<2)

// NewPermissionSet builds a set from known permissions; unknown values are ignored.
func NewPermissionSet(perms ...Permission) PermissionSet {
	var s PermissionSet
	for _, p := range perms {
		s |= p.bit()
	}
	return s
}

// ParsePermissions converts boundary input into a set, rejecting unknown
// values and empty lists.
func ParsePermissions(values []string) (PermissionSet, error) {
	if len(values) == 0 {
		return 0, apperr.New(apperr.InvalidOperation, "at least one permission is required")
	}
	var s PermissionSet
	for _, v := range values {
		p := Permission(strings.ToLower(strings.TrimSpace(v)))
		if p.bit() == 0 {
			return 0, apperr.Newf(apperr.InvalidOperation, "unknown permission %q", v)
		}
		s |= p.bit()
	}
	return s, nil
}

// Has reports membership.
func (s PermissionSet) Has(p Permission) bool {
	b := p.bit()
	return b != 0 && s&b == b
}

// Require returns Forbidden naming p when p is not in the set.
func (s PermissionSet) Require(p Permission) error {
	if s.Has(p) {
		return nil
	}
	return apperr.Newf(apperr.Forbidden, "missing permission: %s", p)
}

// Strings lists members in declaration order.
func (s PermissionSet) Strings() []string {
	out := make([]string, 0, len(ordered))
	for _, p := range ordered {
		if s.Has(p) {
			out = append(out, string(p))
		}
	}
	return out
}
