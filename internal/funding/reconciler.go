package funding

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
)

const reconcileBatch = 100

// Reconciler periodically asks the gateway about deposits that stayed
// PENDING past a grace period, for when a webhook never arrived. Each pass
// resumes after the last deposit the previous pass checked.
type Reconciler struct {
	svc     *Service
	every   time.Duration
	after   time.Duration
	batch   int
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	sched   gocron.Scheduler

	mu     sync.Mutex
	cursor ledger.PendingCursor
}

func NewReconciler(svc *Service, every, after time.Duration, logger *slog.Logger, m *metrics.Metrics) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{svc: svc, every: every, after: after, batch: reconcileBatch, logger: logger, metrics: m, now: time.Now}
}

// Summary counts what one pass did.
type Summary struct {
	Checked  int
	Credited int
	Failed   int
	Pending  int
	Errors   int
}

// RunOnce reconciles the next batch of stale pending deposits. A short batch
// means the end was reached and the next pass starts from the oldest again.
func (r *Reconciler) RunOnce(ctx context.Context) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sum Summary
	stale, err := r.svc.engine.Store().ListPendingDeposits(ctx, r.now().Add(-r.after), r.cursor, r.batch)
	if err != nil {
		r.metrics.ReconcileRun("error")
		return sum, err
	}
	if len(stale) < r.batch {
		r.cursor = ledger.PendingCursor{}
	}
	for _, tx := range stale {
		if ctx.Err() != nil {
			break
		}
		if len(stale) == r.batch {
			r.cursor = ledger.CursorAfter(tx)
		}
		sum.Checked++
		result, err := r.svc.Reconcile(ctx, tx)
		if err != nil {
			sum.Errors++
			r.logger.Warn("reconcile deposit failed", slog.String("reference", tx.Reference), slog.Any("error", err))
			continue
		}
		switch result {
		case string(ledger.OutcomeCredited):
			sum.Credited++
		case "failed":
			sum.Failed++
		case "pending":
			sum.Pending++
		}
	}
	outcome := "ok"
	if sum.Errors > 0 {
		outcome = "partial"
	}
	r.metrics.ReconcileRun(outcome)
	if sum.Checked > 0 {
		r.logger.Info("pending deposits reconciled",
			slog.Int("checked", sum.Checked),
			slog.Int("credited", sum.Credited),
			slog.Int("failed", sum.Failed),
			slog.Int("pending", sum.Pending),
			slog.Int("errors", sum.Errors))
	}
	return sum, nil
}

// Start schedules RunOnce every interval. Runs never overlap.
func (r *Reconciler) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(r.every),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.every)
			defer cancel()
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("reconcile run failed", slog.Any("error", err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("pending-deposit-reconciler"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return err
	}
	sched.Start()
	r.sched = sched
	r.logger.Info("deposit reconciler started", slog.Duration("every", r.every), slog.Duration("after", r.after))
	return nil
}

// Stop waits for a running pass to finish and stops the schedule.
func (r *Reconciler) Stop() error {
	if r.sched == nil {
		return nil
	}
	return r.sched.Shutdown()
}
