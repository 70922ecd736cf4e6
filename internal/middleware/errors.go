package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

// StatusOf maps a handler error onto the HTTP status the client will see.
func StatusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return apperr.HTTPStatus(apperr.KindOf(err))
}

// ErrorHandler renders every error as {"error": kind, "detail": text}.
// Internal failures never leak their cause.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := StatusOf(err)

		var (
			fe   *fiber.Error
			body fiber.Map
		)
		if errors.As(err, &fe) {
			body = fiber.Map{"error": strings.ToLower(strings.ReplaceAll(http.StatusText(fe.Code), " ", "_")), "detail": fe.Message}
		} else {
			kind := apperr.KindOf(err)
			detail := apperr.DetailOf(err)
			if kind == apperr.Internal {
				detail = "internal error"
			}
			body = fiber.Map{"error": string(kind), "detail": detail}
		}

		if status >= http.StatusInternalServerError {
			requestID, _ := c.Locals(requestIDHeader).(string)
			logger.Error("request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Int("status", status),
				slog.String("request_id", requestID),
				slog.Any("error", err),
			)
		}
		return c.Status(status).JSON(body)
	}
}
