package payments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/money"
	"github.com/congo-pay/wallet_ledger/internal/notification"
)

// Service runs wallet-to-wallet transfers through the ledger engine.
type Service struct {
	engine   *ledger.Engine
	notifier notification.Notifier
	currency string
	logger   *slog.Logger
}

// NewService constructs a payment service. A nil notifier disables delivery.
func NewService(engine *ledger.Engine, notifier notification.Notifier, currency string, logger *slog.Logger) *Service {
	return &Service{engine: engine, notifier: notifier, currency: currency, logger: logger}
}

// Transfer moves amount from senderID's wallet to the wallet numbered
// recipientNumber and notifies both parties.
func (s *Service) Transfer(ctx context.Context, senderID, recipientNumber string, amount int64) (ledger.TransferResult, error) {
	res, err := s.engine.Transfer(ctx, ledger.TransferRequest{
		SenderID:        senderID,
		RecipientNumber: recipientNumber,
		Amount:          amount,
	})
	if err != nil {
		return ledger.TransferResult{}, err
	}

	display := money.Format(amount, s.currency)
	s.notify(ctx, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: res.Credit.UserID,
		Body:        fmt.Sprintf("You received %s", display),
		Reference:   res.Credit.Reference,
	})
	s.notify(ctx, notification.Message{
		Kind:        notification.KindTransferSent,
		Destination: res.Debit.UserID,
		Body:        fmt.Sprintf("You sent %s to %s", display, recipientNumber),
		Reference:   res.Debit.Reference,
	})
	return res, nil
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil && s.logger != nil {
		s.logger.Warn("notification failed",
			slog.String("kind", msg.Kind),
			slog.String("reference", msg.Reference),
			slog.Any("error", err))
	}
}
