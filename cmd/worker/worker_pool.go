package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uvan1603/workqueue/clock"
	"github.com/uvan1603/workqueue/internal/config"
	"github.com/uvan1603/workqueue/queue"
	"github.com/uvan1603/workqueue/workitem"
)

// maxAttempts bounds how many times an item is attempted: the attempt that
// fails with maxAttempts-1 earlier failures already recorded marks it
// PermanentlyFailed instead of Failed. This is application policy layered on top of the
// core state machine, not a core concern (spec §1 "Application-level policies
// about what to do with pulled items" are out of scope for the core).
const maxAttempts = 3

// workerPool is the generalized form of the teacher's JobWorker: a fixed
// number of goroutines pulling work, except pulling now goes through
// queue.Repository.PullOutstanding instead of an in-memory channel (spec §5:
// the datastore is the only shared mutable resource).
type workerPool struct {
	cfg    config.Config
	queue  *queue.Repository[Payload]
	logger *zap.Logger
	wg     sync.WaitGroup
}

func newWorkerPool(cfg config.Config, q *queue.Repository[Payload], logger *zap.Logger) *workerPool {
	return &workerPool{cfg: cfg, queue: q, logger: logger}
}

func (p *workerPool) Start(stop <-chan struct{}) {
	for i := 0; i < p.cfg.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run(i, stop)
	}
}

func (p *workerPool) Wait() {
	p.wg.Wait()
}

func (p *workerPool) run(id int, stop <-chan struct{}) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	log := p.logger.With(zap.Int("worker_id", id))
	log.Info("worker started")

	for {
		select {
		case <-stop:
			log.Info("worker stopped")
			return
		case <-ticker.C:
			p.pullAndProcess(log)
		}
	}
}

func (p *workerPool) pullAndProcess(log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.OperationTimeout)
	defer cancel()

	now := clock.New().Now()
	failedBefore := now.Add(-p.cfg.FailedRetryAfter)
	availableBefore := now

	item, ok, err := p.queue.PullOutstanding(ctx, failedBefore, availableBefore)
	if err != nil {
		log.Error("pullOutstanding", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	log = log.With(zap.String("work_item_id", item.ID.Hex()))
	log.Info("pulled item", zap.Int("failure_count", item.FailureCount))

	if fail, _ := item.Item.Data["fail"].(bool); fail {
		p.handleFailure(ctx, item, log)
		return
	}

	if ok, err := p.queue.Complete(ctx, item.ID, workitem.Succeeded); err != nil {
		log.Error("complete", zap.Error(err))
	} else if !ok {
		log.Warn("complete precondition failed, item no longer in progress")
	} else {
		log.Info("item succeeded")
	}
}

func (p *workerPool) handleFailure(ctx context.Context, item workitem.WorkItem[Payload], log *zap.Logger) {
	if item.FailureCount+1 >= maxAttempts {
		if _, err := p.queue.MarkAs(ctx, item.ID, workitem.PermanentlyFailed, nil); err != nil {
			log.Error("markAs permanently failed", zap.Error(err))
		} else {
			log.Warn("item permanently failed", zap.Int("attempts", item.FailureCount+1))
		}
		return
	}
	if _, err := p.queue.MarkAs(ctx, item.ID, workitem.Failed, nil); err != nil {
		log.Error("markAs failed", zap.Error(err))
		return
	}
	log.Warn("item failed, eligible for retry", zap.Int("failure_count", item.FailureCount+1))
}
