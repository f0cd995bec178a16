package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uvan1603/workqueue/clock"
	"github.com/uvan1603/workqueue/queue"
)

// runSeeder stands in for a real producer: it periodically calls PushNew so
// the demo worker pool has something to pull. A real deployment would remove
// this and call workQueue.PushNew from its own request/event handling code.
func runSeeder(stop <-chan struct{}, q *queue.Repository[Payload], clk clock.Clock, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			now := clk.Now()
			item, err := q.PushNewDefault(ctx, seedDemoPayload(), now)
			cancel()
			if err != nil {
				logger.Error("seeding demo item", zap.Error(err))
				continue
			}
			logger.Info("seeded demo item", zap.String("work_item_id", item.ID.Hex()))
		}
	}
}
