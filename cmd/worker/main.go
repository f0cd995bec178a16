// Command worker demonstrates wiring the queue and lock repositories
// together: a pool of worker goroutines pulling and processing work items,
// and a single elected instance periodically reporting queue metrics,
// guarded by the lock registry. This replaces the teacher's HTTP handler
// layer, which the spec's Non-goals put out of scope ("wiring to any
// web/service framework").
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uvan1603/workqueue/clock"
	"github.com/uvan1603/workqueue/internal/config"
	"github.com/uvan1603/workqueue/lock"
	"github.com/uvan1603/workqueue/mongodoc"
	"github.com/uvan1603/workqueue/queue"
	"github.com/uvan1603/workqueue/workitem"
)

const metricsLockID = "workqueue.metrics-reporter"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx := context.Background()

	client, err := mongodoc.Connect(ctx, cfg.MongoURI, cfg.ConnectTimeout)
	if err != nil {
		logger.Fatal("connecting to mongo", zap.Error(err))
	}
	defer func() {
		if err := mongodoc.Disconnect(context.Background(), client, cfg.ConnectTimeout); err != nil {
			logger.Error("disconnecting from mongo", zap.Error(err))
		}
	}()

	sysClock := clock.New()

	workItemsColl := mongodoc.Collection(client, cfg.MongoDatabase, cfg.WorkItemsColl)
	workQueue := queue.New[Payload](workItemsColl, sysClock, workitem.DefaultFieldNames(), cfg.InProgressRetryAfter, "workqueue")
	if err := workQueue.EnsureIndexes(ctx); err != nil {
		logger.Fatal("creating work item indexes", zap.Error(err))
	}

	locksColl := mongodoc.Collection(client, cfg.MongoDatabase, cfg.LocksColl)
	locks := lock.New(locksColl, sysClock)

	owner := uuid.NewString()
	logger.Info("starting worker", zap.String("owner", owner), zap.Int("num_workers", cfg.NumWorkers))

	stop := make(chan struct{})

	pool := newWorkerPool(cfg, workQueue, logger)
	pool.Start(stop)

	reporter := &metricsReporter{
		locks:  locks,
		queue:  workQueue,
		owner:  owner,
		ttl:    cfg.PollerLockTTL,
		every:  cfg.PollInterval * 5,
		logger: logger,
	}
	go reporter.run(stop)
	go runSeeder(stop, workQueue, sysClock, cfg.PollInterval*2, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")
	close(stop)
	pool.Wait()
	_ = locks.ReleaseLock(context.Background(), metricsLockID, owner)
	logger.Info("worker stopped")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

// seedDemoPayload is used only to give the demo something to pull; a real
// caller's producer would call workQueue.PushNew from its own code path.
func seedDemoPayload() Payload {
	if rand.Intn(5) == 0 {
		return Payload{Kind: "demo", Data: map[string]interface{}{"fail": true}}
	}
	return Payload{Kind: "demo", Data: map[string]interface{}{"fail": false}}
}
