package lock_test

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/uvan1603/workqueue/clock"
	"github.com/uvan1603/workqueue/lock"
)

func newRepo(mt *mtest.T) (*lock.Repository, *clock.Fixed) {
	fixed := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return lock.New(mt.Coll, fixed), fixed
}

func lockDoc(id, owner string, created, expiry time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "owner", Value: owner},
		{Key: "timeCreated", Value: created},
		{Key: "expiryTime", Value: expiry},
	}
}

func TestLockAcquiresWhenNoRecordExists(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("acquire", func(mt *mtest.T) {
		repo, fixed := newRepo(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "value", Value: lockDoc("leader", "worker-1", fixed.Now(), fixed.Now().Add(time.Minute))},
		))

		ok, err := repo.Lock(context.Background(), "leader", "worker-1", time.Minute)
		if err != nil {
			t.Fatalf("Lock: %v", err)
		}
		if !ok {
			t.Fatal("expected acquisition to succeed")
		}
	})
}

func TestLockLosesRaceOnDuplicateKey(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("duplicate key", func(mt *mtest.T) {
		repo, _ := newRepo(mt)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    11000,
			Message: "E11000 duplicate key error collection: test.locks index: _id_ dup key",
			Name:    "DuplicateKey",
		}))

		ok, err := repo.Lock(context.Background(), "leader", "worker-2", time.Minute)
		if err != nil {
			t.Fatalf("Lock: expected the duplicate key race to be swallowed, got error: %v", err)
		}
		if ok {
			t.Fatal("expected Lock to report false on a lost race")
		}
	})
}

func TestRefreshExpirySucceedsForOwner(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("refresh", func(mt *mtest.T) {
		repo, _ := newRepo(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: int32(1)}, bson.E{Key: "nModified", Value: int32(1)}))

		ok, err := repo.RefreshExpiry(context.Background(), "leader", "worker-1", time.Minute)
		if err != nil {
			t.Fatalf("RefreshExpiry: %v", err)
		}
		if !ok {
			t.Fatal("expected RefreshExpiry to report true when a record matched")
		}
	})
}

func TestRefreshExpiryFailsWhenNoMatch(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("no match", func(mt *mtest.T) {
		repo, _ := newRepo(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: int32(0)}, bson.E{Key: "nModified", Value: int32(0)}))

		ok, err := repo.RefreshExpiry(context.Background(), "leader", "someone-else", time.Minute)
		if err != nil {
			t.Fatalf("RefreshExpiry: %v", err)
		}
		if ok {
			t.Fatal("expected RefreshExpiry to report false when owner does not match")
		}
	})
}

func TestReleaseLockIsIdempotent(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("release", func(mt *mtest.T) {
		repo, _ := newRepo(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: int32(0)}))

		if err := repo.ReleaseLock(context.Background(), "leader", "worker-1"); err != nil {
			t.Fatalf("ReleaseLock: %v", err)
		}
	})
}

func TestIsLockedReflectsCount(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("locked", func(mt *mtest.T) {
		repo, _ := newRepo(mt)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}))

		ok, err := repo.IsLocked(context.Background(), "leader", "worker-1")
		if err != nil {
			t.Fatalf("IsLocked: %v", err)
		}
		if !ok {
			t.Fatal("expected IsLocked to report true")
		}
	})
}

func TestIsLockedFalseWhenCountIsZero(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("not locked", func(mt *mtest.T) {
		repo, _ := newRepo(mt)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		ok, err := repo.IsLocked(context.Background(), "leader", "worker-1")
		if err != nil {
			t.Fatalf("IsLocked: %v", err)
		}
		if ok {
			t.Fatal("expected IsLocked to report false when no record matched")
		}
	})
}

func TestFindReturnsRecord(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("find", func(mt *mtest.T) {
		repo, fixed := newRepo(mt)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, ns, mtest.FirstBatch,
			lockDoc("leader", "worker-1", fixed.Now(), fixed.Now().Add(time.Minute)),
		))

		l, found, err := repo.Find(context.Background(), "leader")
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if !found {
			t.Fatal("expected a record to be found")
		}
		if l.Owner != "worker-1" {
			t.Errorf("Owner = %q, want worker-1", l.Owner)
		}
	})
}

func TestFindReportsNotFound(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("not found", func(mt *mtest.T) {
		repo, _ := newRepo(mt)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, found, err := repo.Find(context.Background(), "leader")
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if found {
			t.Fatal("expected no record to be found")
		}
	})
}
