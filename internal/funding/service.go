package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/identity"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
	"github.com/congo-pay/wallet_ledger/internal/money"
	"github.com/congo-pay/wallet_ledger/internal/notification"
)

// Webhook decisions recorded in metrics and logs.
const (
	EventIgnored = "ignored"
	EventApplied = "applied"
)

// Service runs the deposit lifecycle: open a pending deposit, hand the payer
// to the gateway, and settle it when the gateway confirms.
type Service struct {
	engine      *ledger.Engine
	users       identity.Repository
	gateway     Gateway
	notifier    notification.Notifier
	currency    string
	callbackURL string
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewService builds a funding service. A nil gateway falls back to StaticGateway.
func NewService(engine *ledger.Engine, users identity.Repository, gateway Gateway, notifier notification.Notifier, cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("ledger engine is required")
	}
	if users == nil {
		return nil, fmt.Errorf("identity repository is required")
	}
	if gateway == nil {
		gateway = StaticGateway{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "NGN"
	}
	return &Service{
		engine:      engine,
		users:       users,
		gateway:     gateway,
		notifier:    notifier,
		currency:    currency,
		callbackURL: cfg.PaystackCallbackURL,
		logger:      logger,
		metrics:     m,
	}, nil
}

// Deposit is the result of a successful initiation.
type Deposit struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
}

// InitiateDeposit opens a pending deposit and obtains the gateway checkout
// URL. If the gateway refuses, the pending row is removed again.
func (s *Service) InitiateDeposit(ctx context.Context, userID string, amount int64) (Deposit, error) {
	if amount <= 0 {
		return Deposit{}, ledger.ErrInvalidAmount
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return Deposit{}, apperr.New(apperr.Unauthenticated, "unknown user")
		}
		return Deposit{}, err
	}

	tx, err := s.engine.OpenDeposit(ctx, userID, amount)
	if err != nil {
		return Deposit{}, err
	}

	checkout, err := s.gateway.Initialize(ctx, InitializeRequest{
		Reference:   tx.Reference,
		Email:       user.Email,
		Amount:      amount,
		Currency:    s.currency,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		// The caller's context may be the reason the gateway failed.
		if abortErr := s.engine.AbortDeposit(context.WithoutCancel(ctx), tx.Reference); abortErr != nil {
			s.logger.Error("failed to remove pending deposit", slog.String("reference", tx.Reference), slog.Any("error", abortErr))
		}
		s.logger.Warn("deposit initialization failed", slog.String("reference", tx.Reference), slog.Any("error", err))
		if apperr.Is(err, apperr.GatewayUnavailable) {
			return Deposit{}, err
		}
		return Deposit{}, apperr.Wrap(apperr.GatewayUnavailable, "payment initiation failed", err)
	}

	if _, err := s.engine.AttachAuthorization(ctx, tx.Reference, checkout.AuthorizationURL); err != nil {
		// The payer never sees this checkout URL, so the deposit cannot be paid.
		if abortErr := s.engine.AbortDeposit(context.WithoutCancel(ctx), tx.Reference); abortErr != nil {
			s.metrics.IntegrityAlarm()
			s.logger.Error("pending deposit left without authorization url",
				slog.String("reference", tx.Reference),
				slog.Any("attach_error", err),
				slog.Any("error", abortErr))
		}
		return Deposit{}, err
	}
	s.logger.Info("deposit initiated", slog.String("reference", tx.Reference), slog.String("user_id", userID), slog.Int64("amount", amount))
	return Deposit{Reference: tx.Reference, AuthorizationURL: checkout.AuthorizationURL}, nil
}

// ownedDeposit returns the caller's deposit or NotFound, never another
// user's transaction.
func (s *Service) ownedDeposit(ctx context.Context, userID, reference string) (ledger.Transaction, error) {
	tx, err := s.engine.Store().TransactionByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			return ledger.Transaction{}, apperr.New(apperr.NotFound, "deposit not found")
		}
		return ledger.Transaction{}, err
	}
	if tx.UserID != userID || tx.Type != ledger.TypeDeposit {
		return ledger.Transaction{}, apperr.New(apperr.NotFound, "deposit not found")
	}
	return tx, nil
}

// DepositStatus reports the local state of a deposit. It never credits.
func (s *Service) DepositStatus(ctx context.Context, userID, reference string) (ledger.Transaction, error) {
	return s.ownedDeposit(ctx, userID, reference)
}

// VerifyDeposit reports the local state alongside the gateway's view. It
// never credits; settlement happens only through ConfirmDeposit.
func (s *Service) VerifyDeposit(ctx context.Context, userID, reference string) (ledger.Transaction, Verification, error) {
	tx, err := s.ownedDeposit(ctx, userID, reference)
	if err != nil {
		return ledger.Transaction{}, Verification{}, err
	}
	v, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return ledger.Transaction{}, Verification{}, err
	}
	return tx, v, nil
}

// HandleEvent applies an authenticated gateway event. Only successful
// charges for deposit references reach the ledger; everything else is
// acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, ev Event) (string, error) {
	if ev.Type != eventChargeSuccess || !strings.HasPrefix(ev.Reference, ledger.DepositPrefix) {
		s.metrics.WebhookEvent(EventIgnored)
		s.logger.Info("webhook event ignored", slog.String("event", ev.Type), slog.String("reference", ev.Reference))
		return EventIgnored, nil
	}
	settlement, err := s.confirm(ctx, ev)
	if err != nil {
		s.metrics.WebhookEvent(string(apperr.KindOf(err)))
		return "", err
	}
	s.metrics.WebhookEvent(string(settlement.Outcome))
	return string(settlement.Outcome), nil
}

func (s *Service) confirm(ctx context.Context, ev Event) (ledger.Settlement, error) {
	settlement, err := s.engine.ConfirmDeposit(ctx, ledger.Confirmation{
		Reference:   ev.Reference,
		Amount:      ev.Amount,
		ConfirmedAt: ev.PaidAt,
	})
	if err != nil {
		return ledger.Settlement{}, err
	}
	if settlement.Outcome == ledger.OutcomeCredited {
		s.notify(ctx, settlement.Transaction)
	}
	return settlement, nil
}

func (s *Service) notify(ctx context.Context, tx ledger.Transaction) {
	if s.notifier == nil {
		return
	}
	msg := notification.Message{
		Kind:        notification.KindDepositCredited,
		Destination: tx.UserID,
		Reference:   tx.Reference,
		Body:        fmt.Sprintf("Your deposit of %s was credited", money.Format(tx.Amount, s.currency)),
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("deposit notification failed", slog.String("reference", tx.Reference), slog.Any("error", err))
	}
}

// Reconcile settles or fails one stale pending deposit using the gateway's
// verify endpoint. It returns what was done. Abandoned checkouts stay PENDING:
// the payer can still complete them and the success webhook must credit.
func (s *Service) Reconcile(ctx context.Context, tx ledger.Transaction) (string, error) {
	v, err := s.gateway.Verify(ctx, tx.Reference)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(v.Status) {
	case GatewaySuccess:
		settlement, err := s.confirm(ctx, Event{Reference: tx.Reference, Amount: v.Amount, PaidAt: v.PaidAt})
		if err != nil {
			return "", err
		}
		return string(settlement.Outcome), nil
	case GatewayFailed:
		failed, err := s.engine.FailDeposit(ctx, tx.Reference, "Payment failed at gateway")
		if err != nil {
			return "", err
		}
		if failed {
			return "failed", nil
		}
		return string(ledger.OutcomeDuplicate), nil
	default:
		return "pending", nil
	}
}
