// Package reconciler drives pending verified-measurement orders to a final
// state by polling the provider on an interval.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rooflens/internal/clock"
	"github.com/smallbiznis/rooflens/internal/config"
	"github.com/smallbiznis/rooflens/internal/measurement"
	obsmetrics "github.com/smallbiznis/rooflens/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/rooflens/internal/order/domain"
	"github.com/smallbiznis/rooflens/internal/providers/eagleview"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultBatchSize = 100

// Messages written onto orders the reconciler closes out.
const (
	msgOrderTimedOut  = "Order was not completed by the provider within the allowed window."
	msgProviderFailed = "Provider reported the order as failed."
)

var ErrInvalidConfig = errors.New("reconciler: missing dependency")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	Clock     clock.Clock
	Repo      orderdomain.Repository
	EagleView eagleview.API
}

type Reconciler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       config.Config
	clock     clock.Clock
	repo      orderdomain.Repository
	eagleview eagleview.API
}

func New(p Params) (*Reconciler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Repo == nil || p.EagleView == nil {
		return nil, ErrInvalidConfig
	}
	return &Reconciler{
		db:        p.DB,
		log:       p.Log.Named("reconciler"),
		cfg:       p.Config,
		clock:     p.Clock,
		repo:      p.Repo,
		eagleview: p.EagleView,
	}, nil
}

// RunForever runs one pass immediately, then on every interval tick until
// ctx is cancelled.
func (r *Reconciler) RunForever(ctx context.Context) {
	interval := r.cfg.ReconcileInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.RunOnce(ctx); err != nil {
			r.log.Warn("reconcile pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce reconciles one batch of pending orders. Each order is handled in
// its own transaction so one bad order never poisons the rest of the pass.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	m := obsmetrics.Reconciler()
	m.IncRun()
	start := r.clock.Now()
	defer func() { m.ObserveRun(r.clock.Now().Sub(start)) }()

	pending, err := r.repo.FindPending(ctx, defaultBatchSize)
	if err != nil {
		m.IncRunError()
		return fmt.Errorf("list pending orders: %w", err)
	}
	m.SetPending(len(pending))
	if len(pending) == 0 {
		return nil
	}

	var errs error
	for _, ord := range pending {
		outcome, err := r.checkOrder(ctx, ord.ID)
		m.IncOrder(outcome)
		if err != nil {
			r.log.Warn("order reconcile failed",
				zap.String("order_id", ord.ID.String()),
				zap.Error(err),
			)
			errs = errors.Join(errs, err)
		}
	}
	if errs != nil {
		m.IncRunError()
	}
	return errs
}

// ForceCheck reconciles a single order immediately, outside the interval
// loop, and returns its fresh state.
func (r *Reconciler) ForceCheck(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	outcome, err := r.checkOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	obsmetrics.Reconciler().IncOrder(outcome)
	return r.repo.GetByID(ctx, id)
}

// checkOrder advances one order inside its own transaction. The row is
// re-read under lock first; anything no longer PENDING is a no-op, which
// makes concurrent checks of the same order idempotent.
func (r *Reconciler) checkOrder(ctx context.Context, id snowflake.ID) (string, error) {
	outcome := obsmetrics.OutcomeError
	var checkErr error

	err := r.db.Transaction(func(tx *gorm.DB) error {
		ord, err := r.repo.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if ord.Status != measurement.StatusPending {
			outcome = obsmetrics.OutcomeSkipped
			return nil
		}

		now := r.clock.Now()

		// Timeout is decided before spending a poll on the provider, so an
		// expired order fails even when the provider is unreachable.
		if now.Sub(ord.CreatedAt) > r.cfg.OrderTimeout {
			outcome = obsmetrics.OutcomeTimeout
			return r.fail(ctx, tx, ord, msgOrderTimedOut, now)
		}

		if ord.ExternalOrderID == nil {
			outcome = obsmetrics.OutcomeFailed
			return r.fail(ctx, tx, ord, msgProviderFailed, now)
		}
		externalID := *ord.ExternalOrderID

		state, err := r.eagleview.PollStatus(ctx, externalID)
		if err != nil {
			return err
		}

		switch state {
		case eagleview.StateFailed:
			outcome = obsmetrics.OutcomeFailed
			return r.fail(ctx, tx, ord, msgProviderFailed, now)

		case eagleview.StateCompleted:
			raw, err := r.eagleview.FetchReport(ctx, externalID)
			if err != nil {
				// The report exists but could not be fetched; stay PENDING
				// and retry next pass. The touch still commits so the
				// attempt is visible.
				outcome = obsmetrics.OutcomeError
				checkErr = err
				return r.touch(ctx, tx, ord, now)
			}
			m, err := eagleview.NormalizeReport(raw, ord.Address, externalID)
			if err != nil {
				outcome = obsmetrics.OutcomeError
				checkErr = err
				return r.touch(ctx, tx, ord, now)
			}
			outcome = obsmetrics.OutcomeVerified
			return r.verify(ctx, tx, ord, m, raw, now)

		default:
			outcome = obsmetrics.OutcomePending
			return r.touch(ctx, tx, ord, now)
		}
	})

	if err == nil {
		err = checkErr
	}
	return outcome, err
}

func (r *Reconciler) verify(ctx context.Context, tx *gorm.DB, ord *orderdomain.Order, m measurement.Measurement, raw []byte, now time.Time) error {
	if !orderdomain.CanTransition(ord.Status, measurement.StatusVerified) {
		return fmt.Errorf("order %s: illegal transition %s -> %s", ord.ID, ord.Status, measurement.StatusVerified)
	}
	ord.Status = measurement.StatusVerified
	ord.TotalAreaSqft = m.TotalAreaSqft
	ord.PredominantPitch = m.PredominantPitch
	ord.ConfidenceScore = m.ConfidenceScore
	ord.RawReportPayload = datatypes.JSON(raw)
	ord.Message = nil
	ord.LastCheckedAt = &now
	ord.UpdatedAt = now
	if err := r.repo.Update(ctx, tx, ord); err != nil {
		return err
	}

	r.log.Info("order verified",
		zap.String("order_id", ord.ID.String()),
		zap.Float64("total_area_sqft", ord.TotalAreaSqft),
		zap.String("predominant_pitch", ord.PredominantPitch),
	)
	return nil
}

func (r *Reconciler) fail(ctx context.Context, tx *gorm.DB, ord *orderdomain.Order, msg string, now time.Time) error {
	if !orderdomain.CanTransition(ord.Status, measurement.StatusFailed) {
		return fmt.Errorf("order %s: illegal transition %s -> %s", ord.ID, ord.Status, measurement.StatusFailed)
	}
	ord.Status = measurement.StatusFailed
	ord.Message = &msg
	ord.LastCheckedAt = &now
	ord.UpdatedAt = now
	if err := r.repo.Update(ctx, tx, ord); err != nil {
		return err
	}

	r.log.Warn("order failed",
		zap.String("order_id", ord.ID.String()),
		zap.String("reason", msg),
	)
	return nil
}

func (r *Reconciler) touch(ctx context.Context, tx *gorm.DB, ord *orderdomain.Order, now time.Time) error {
	ord.LastCheckedAt = &now
	ord.UpdatedAt = now
	return r.repo.Update(ctx, tx, ord)
}
