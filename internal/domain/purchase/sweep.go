package purchase

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jobdesk/jobdesk-api/internal/pkg/checkout"
)

const (
	sweepLockKey = "billing:sweep:leader"
	sweepLockTTL = 2 * time.Minute
	sweepBatch   = 100
)

// SweepWorker is the repair pass for purchases whose completion notification
// never arrived. It asks the provider for the session's real outcome and
// re-drives the same completion path the reconciler uses, so a purchase is
// still completed and minted at most once.
type SweepWorker struct {
	svc       *Service
	sessions  Sessions
	rdb       *redis.Client
	interval  time.Duration
	threshold time.Duration
	stopCh    chan struct{}
}

// NewSweepWorker creates a reconciliation sweep worker
func NewSweepWorker(svc *Service, sessions Sessions, rdb *redis.Client, interval, threshold time.Duration) *SweepWorker {
	if interval == 0 {
		interval = 10 * time.Minute
	}
	if threshold == 0 {
		threshold = 30 * time.Minute
	}
	return &SweepWorker{
		svc:       svc,
		sessions:  sessions,
		rdb:       rdb,
		interval:  interval,
		threshold: threshold,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background worker
func (w *SweepWorker) Start() {
	log.Info().
		Dur("interval", w.interval).
		Dur("threshold", w.threshold).
		Msg("Starting reconciliation sweep worker...")
	go w.loop()
}

// Stop gracefully stops the background worker
func (w *SweepWorker) Stop() {
	log.Info().Msg("Stopping reconciliation sweep worker...")
	close(w.stopCh)
}

func (w *SweepWorker) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			if _, _, err := w.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("Reconciliation sweep pass failed")
			}
			cancel()
		case <-w.stopCh:
			return
		}
	}
}

// RunOnce executes a single sweep pass and reports how many purchases were
// completed and failed. The pass itself is idempotent; the Redis leader lock
// only keeps multiple instances from doing the same work.
func (w *SweepWorker) RunOnce(ctx context.Context) (completed, failed int, err error) {
	if !w.acquireLock(ctx) {
		log.Debug().Msg("Sweep leader lock held elsewhere, skipping pass")
		return 0, 0, nil
	}
	defer w.releaseLock(ctx)

	pendings, err := w.svc.StuckPending(ctx, w.threshold, sweepBatch)
	if err != nil {
		return 0, 0, err
	}
	if len(pendings) == 0 {
		log.Debug().Msg("No stuck pending purchases")
		return 0, 0, nil
	}

	log.Info().Int("count", len(pendings)).Msg("Sweeping stuck pending purchases")

	for i := range pendings {
		p := &pendings[i]

		session, err := w.sessions.GetSession(ctx, p.SessionID)
		if err != nil {
			log.Error().Err(err).
				Str("purchase_id", p.ID.String()).
				Str("session_id", p.SessionID).
				Msg("Failed to fetch session state from provider")
			continue
		}

		switch session.Status {
		case checkout.StatusPaid:
			if err := w.svc.Complete(ctx, p.ID, session.PaymentRef); err != nil {
				if errors.Is(err, ErrInvalidTransition) {
					continue
				}
				log.Error().Err(err).
					Str("purchase_id", p.ID.String()).
					Msg("Sweep failed to complete purchase")
				continue
			}
			completed++
		case checkout.StatusFailed, checkout.StatusExpired:
			if err := w.svc.Fail(ctx, p.ID, "checkout session "+string(session.Status)); err != nil {
				if errors.Is(err, ErrInvalidTransition) {
					continue
				}
				log.Error().Err(err).
					Str("purchase_id", p.ID.String()).
					Msg("Sweep failed to fail purchase")
				continue
			}
			failed++
		default:
			// Still pending on the provider side, leave it alone.
		}
	}

	log.Info().
		Int("completed", completed).
		Int("failed", failed).
		Msg("Reconciliation sweep pass finished")

	return completed, failed, nil
}

func (w *SweepWorker) acquireLock(ctx context.Context) bool {
	if w.rdb == nil {
		return true
	}
	ok, err := w.rdb.SetNX(ctx, sweepLockKey, "1", sweepLockTTL).Result()
	if err != nil {
		log.Warn().Err(err).Msg("Sweep leader lock unavailable, running anyway")
		return true
	}
	return ok
}

func (w *SweepWorker) releaseLock(ctx context.Context) {
	if w.rdb == nil {
		return
	}
	if err := w.rdb.Del(ctx, sweepLockKey).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to release sweep leader lock")
	}
}
