package worker

import (
	"context"
	"sync"
	"time"

	alertdomain "github.com/profitlens/profitlens/internal/alert/domain"
	"github.com/profitlens/profitlens/internal/clock"
	"github.com/profitlens/profitlens/internal/config"
	eventdomain "github.com/profitlens/profitlens/internal/event/domain"
	"github.com/profitlens/profitlens/internal/observability/metrics"
	orgdomain "github.com/profitlens/profitlens/internal/organization/domain"
	pricingdomain "github.com/profitlens/profitlens/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// stuckAge is how long an event may sit in a non-terminal status before the
// redrive loop picks it up.
const stuckAge = 5 * time.Minute

// syncEvery is how often the pricing catalog is re-pulled.
const syncEvery = 24 * time.Hour

type WorkerParam struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Clock   clock.Clock
	Events  eventdomain.Service
	Orgs    orgdomain.Service
	Alerts  alertdomain.Service
	Pricing pricingdomain.Service
	Metrics *metrics.Metrics
}

// Worker runs the periodic loops: redriving stuck events, sweeping margin
// alerts per organization, and refreshing the pricing catalog.
type Worker struct {
	log      *zap.Logger
	clock    clock.Clock
	events   eventdomain.Service
	orgs     orgdomain.Service
	alerts   alertdomain.Service
	pricing  pricingdomain.Service
	metrics  *metrics.Metrics
	interval time.Duration
	batch    int

	lastSync time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(p WorkerParam) *Worker {
	interval := time.Duration(p.Config.WorkerInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		log:      p.Log.Named("worker"),
		clock:    p.Clock,
		events:   p.Events,
		orgs:     p.Orgs,
		alerts:   p.Alerts,
		pricing:  p.Pricing,
		metrics:  p.Metrics,
		interval: interval,
		batch:    p.Config.WorkerBatchSize,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one pass of every loop. Exported so tests and operators can
// trigger a pass directly.
func (w *Worker) Sweep(ctx context.Context) {
	w.redrive(ctx)
	w.checkOrganizations(ctx)

	if w.clock.Now().Sub(w.lastSync) >= syncEvery {
		w.syncPricing(ctx)
	}
}

func (w *Worker) redrive(ctx context.Context) {
	cutoff := w.clock.Now().Add(-stuckAge)
	stuck, err := w.events.ListStuck(ctx, cutoff, w.batch)
	if err != nil {
		w.log.Error("redrive listing failed", zap.Error(err))
		return
	}
	for _, event := range stuck {
		w.metrics.WorkerRedrives.Inc()
		if err := w.events.ProcessEvent(ctx, event.ID); err != nil {
			// Transient failures stay queued for the next pass; fatal ones have
			// already parked the event.
			w.log.Warn("redrive failed",
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
		}
	}
	if len(stuck) > 0 {
		w.log.Info("redrive pass complete", zap.Int("picked_up", len(stuck)))
	}
}

func (w *Worker) checkOrganizations(ctx context.Context) {
	orgs, err := w.orgs.List(ctx)
	if err != nil {
		w.log.Error("organization listing failed", zap.Error(err))
		return
	}
	for _, org := range orgs {
		if err := w.alerts.CheckOrganization(ctx, org.ID); err != nil {
			w.log.Warn("alert sweep failed",
				zap.String("org_id", org.ID.String()),
				zap.Error(err),
			)
		}
	}
}

func (w *Worker) syncPricing(ctx context.Context) {
	report, err := w.pricing.Sync(ctx)
	if err != nil {
		w.log.Error("pricing sync failed", zap.Error(err))
		return
	}
	w.lastSync = w.clock.Now()
	w.log.Info("pricing sync pass complete",
		zap.Int("created", report.Created),
		zap.Int("drifted", report.Drifted),
		zap.Int("deactivated", report.Deactivated),
	)
}

var Module = fx.Module("worker",
	fx.Provide(New),
	fx.Invoke(Start),
)

func Start(lc fx.Lifecycle, w *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			w.cancel = cancel
			w.wg.Add(1)
			go w.run(ctx)
			return nil
		},
		OnStop: func(_ context.Context) error {
			if w.cancel != nil {
				w.cancel()
			}
			w.wg.Wait()
			return nil
		},
	})
}
