package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uvan1603/workqueue/lock"
	"github.com/uvan1603/workqueue/queue"
)

// metricsReporter periodically logs queue.Repository.Metrics, but only from
// whichever process instance currently holds metricsLockID — otherwise every
// instance in a horizontally scaled deployment would emit the same snapshot.
// This is the lock registry's canonical use case: short critical sections
// guarded across cooperating processes, not the work-item queue itself
// (pullOutstanding is already safe for any number of concurrent pullers).
type metricsReporter struct {
	locks  *lock.Repository
	queue  *queue.Repository[Payload]
	owner  string
	ttl    time.Duration
	every  time.Duration
	logger *zap.Logger
}

func (r *metricsReporter) run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.every)
	defer ticker.Stop()

	log := r.logger.With(zap.String("owner", r.owner))
	held := false

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl/2)

			if held {
				ok, err := r.locks.RefreshExpiry(ctx, metricsLockID, r.owner, r.ttl)
				if err != nil {
					log.Error("refreshExpiry", zap.Error(err))
				}
				held = ok
			} else {
				ok, err := r.locks.Lock(ctx, metricsLockID, r.owner, r.ttl)
				if err != nil {
					log.Error("lock", zap.Error(err))
				}
				held = ok
			}

			if held {
				r.reportMetrics(ctx, log)
			}

			cancel()
		}
	}
}

func (r *metricsReporter) reportMetrics(ctx context.Context, log *zap.Logger) {
	metrics, err := r.queue.Metrics(ctx)
	if err != nil {
		log.Error("metrics", zap.Error(err))
		return
	}
	log.Info("queue metrics", zap.Any("metrics", metrics))
}
