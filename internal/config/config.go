// Package config loads the environment-driven configuration consumed by
// cmd/worker (spec §6.3: "<inProgressRetryAfterProperty>, read once at
// repository construction", plus the ambient Mongo/poll-loop settings).
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read once at process startup. Nothing in package queue or
// package lock reads the environment directly; they take plain
// time.Duration/collection values from their constructors (spec §9 "no global
// state").
type Config struct {
	MongoURI          string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase     string        `env:"MONGO_DATABASE" envDefault:"workqueue"`
	WorkItemsColl     string        `env:"WORK_ITEMS_COLLECTION" envDefault:"work_items"`
	LocksColl         string        `env:"LOCKS_COLLECTION" envDefault:"locks"`
	ConnectTimeout    time.Duration `env:"MONGO_CONNECT_TIMEOUT" envDefault:"10s"`
	OperationTimeout  time.Duration `env:"MONGO_OPERATION_TIMEOUT" envDefault:"5s"`

	// InProgressRetryAfter is the process-wide stuck-in-progress cutoff of
	// spec §5/§6.3.
	InProgressRetryAfter time.Duration `env:"IN_PROGRESS_RETRY_AFTER_MS" envDefault:"60000ms"`

	// FailedRetryAfter controls how long a Failed item waits before
	// pullOutstanding's bucket 2 will reconsider it.
	FailedRetryAfter time.Duration `env:"FAILED_RETRY_AFTER_MS" envDefault:"30000ms"`

	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	NumWorkers   int           `env:"NUM_WORKERS" envDefault:"2"`

	PollerLockTTL time.Duration `env:"POLLER_LOCK_TTL" envDefault:"5s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses Config from the environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
