package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/auth"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
)

const apiKeyHeader = "X-API-Key"

// BearerVerifier resolves an access token to a principal.
type BearerVerifier interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

// KeyResolver resolves an API key to a principal.
type KeyResolver interface {
	Resolve(ctx context.Context, key string) (auth.Principal, error)
}

// Authenticate attaches the request principal. A bearer token wins over an
// API key when both are sent. Repeated API key failures from one client are
// throttled by limiter.
func Authenticate(bearer BearerVerifier, keys KeyResolver, limiter *FailureLimiter, m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		var (
			p   auth.Principal
			err error
		)
		authz := c.Get(fiber.HeaderAuthorization)
		apiKey := strings.TrimSpace(c.Get(apiKeyHeader))
		switch {
		case len(authz) > 7 && strings.EqualFold(authz[:7], "bearer "):
			p, err = bearer.Authenticate(ctx, authz[7:])
			if err != nil {
				m.AuthFailure(string(auth.MethodJWT), string(apperr.KindOf(err)))
				return err
			}
		case apiKey != "":
			if limiter.Exceeded(ctx, c.IP()) {
				m.AuthFailure(string(auth.MethodAPIKey), "rate_limited")
				return fiber.NewError(http.StatusTooManyRequests, "too many failed api key attempts, try again later")
			}
			p, err = keys.Resolve(ctx, apiKey)
			if err != nil {
				kind := apperr.KindOf(err)
				if kind == apperr.Unauthenticated || kind == apperr.Forbidden {
					limiter.Record(ctx, c.IP())
				}
				m.AuthFailure(string(auth.MethodAPIKey), string(kind))
				return err
			}
		default:
			m.AuthFailure("none", string(apperr.Unauthenticated))
			return apperr.New(apperr.Unauthenticated, "missing bearer token or api key")
		}

		c.SetUserContext(auth.WithPrincipal(ctx, p))
		c.Locals("user_id", p.UserID)
		return c.Next()
	}
}

// RequirePermission rejects principals lacking perm.
func RequirePermission(perm auth.Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := auth.Current(c)
		if err != nil {
			return err
		}
		if err := p.Permissions.Require(perm); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequireBearer admits only principals that signed in with a bearer token.
func RequireBearer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := auth.Current(c)
		if err != nil {
			return err
		}
		if p.Method != auth.MethodJWT {
			return apperr.New(apperr.Forbidden, "bearer token required")
		}
		return c.Next()
	}
}
