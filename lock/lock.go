// Package lock implements the named distributed lock registry of spec §4.3:
// advisory mutual exclusion with a TTL and owner identity, built on the same
// single-document conditional-update trick as package queue. The lock is
// advisory, not a fencing token (spec §4.3 Failure Semantics); callers that
// need fencing must compose an external monotonic token themselves.
package lock

import (
	"context"
	"errors"
	"time"

	perrors "github.com/pkg/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/uvan1603/workqueue/clock"
)

// Lock is a persisted lock record, decoded for callers that want to inspect
// the held state directly (e.g. Repository.Find, used by tests).
type Lock struct {
	ID          string
	Owner       string
	TimeCreated time.Time
	ExpiryTime  time.Time
}

// document is the bson-tagged struct shape of §6.2's Lock document. Field names are fixed
// here (unlike workitem.FieldNames) because the lock document shape has no
// legacy-schema requirement in the spec.
type document struct {
	ID          string    `bson:"_id"`
	Owner       string    `bson:"owner"`
	TimeCreated time.Time `bson:"timeCreated"`
	ExpiryTime  time.Time `bson:"expiryTime"`
}

// Repository is the lock registry over a single Mongo collection.
type Repository struct {
	collection *mongo.Collection
	clock      clock.Clock
}

// New constructs a Repository over collection.
func New(collection *mongo.Collection, clk clock.Clock) *Repository {
	return &Repository{collection: collection, clock: clk}
}

// EnsureIndexes creates no index: the acquisition protocol needs a unique
// index on the lock id (spec §4.3), and Mongo already enforces uniqueness on
// _id implicitly. This call is a documented no-op kept for symmetry with queue.Repository.EnsureIndexes and to make the
// requirement explicit at startup.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	return nil
}

// Lock attempts conditional acquisition: it sets {id, owner, timeCreated,
// expiryTime} iff no non-expired record for lockID exists. Returns true on
// acquisition. A DuplicateKey collision from a losing concurrent acquirer is
// caught and translated to false, never an error (spec §4.3, §7).
func (r *Repository) Lock(ctx context.Context, lockID, owner string, ttl time.Duration) (bool, error) {
	now := r.clock.Now()
	expiry := now.Add(ttl)

	// Matches "no record with this id" (via upsert, below) or "record is
	// expired" (regardless of owner — an expired record owned by the caller
	// is a subset of this and needs no separate clause).
	filter := bson.M{
		"_id":        lockID,
		"expiryTime": bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{
		"_id":         lockID,
		"owner":       owner,
		"timeCreated": now,
		"expiryTime":  expiry,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	_, err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Raw()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Upsert with returnDocument=After should never surface
		// ErrNoDocuments, but treat it as a non-acquisition rather than panic.
		return false, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	return false, perrors.Wrap(err, "lock: acquire")
}

// RefreshExpiry extends an already-held lock. The match is on {id, owner}
// only, with no expiry check: an owner whose heartbeat stuttered may still
// extend a lock that technically expired, as long as no other owner has since
// taken it over (spec §9, a deliberate generosity). Returns whether any
// record was modified; does not create a new lock if none exists.
func (r *Repository) RefreshExpiry(ctx context.Context, lockID, owner string, ttl time.Duration) (bool, error) {
	now := r.clock.Now()
	filter := bson.M{"_id": lockID, "owner": owner}
	update := bson.M{"$set": bson.M{"expiryTime": now.Add(ttl)}}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, perrors.Wrap(err, "lock: refreshExpiry")
	}
	return res.ModifiedCount > 0, nil
}

// ReleaseLock deletes any record matching {id, owner}. Idempotent: calling it
// twice, or on a lock owned by someone else, is a safe no-op.
func (r *Repository) ReleaseLock(ctx context.Context, lockID, owner string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID, "owner": owner})
	if err != nil {
		return perrors.Wrap(err, "lock: release")
	}
	return nil
}

// IsLocked reports whether a record exists matching {id, owner} with
// expiryTime strictly after now.
func (r *Repository) IsLocked(ctx context.Context, lockID, owner string) (bool, error) {
	now := r.clock.Now()
	filter := bson.M{"_id": lockID, "owner": owner, "expiryTime": bson.M{"$gt": now}}
	n, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return false, perrors.Wrap(err, "lock: isLocked")
	}
	return n > 0, nil
}

// Find returns the current lock record for lockID, if any, regardless of
// owner or expiry. Used by tests and diagnostics.
func (r *Repository) Find(ctx context.Context, lockID string) (Lock, bool, error) {
	var doc document
	err := r.collection.FindOne(ctx, bson.M{"_id": lockID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Lock{}, false, nil
		}
		return Lock{}, false, perrors.Wrap(err, "lock: find")
	}
	return Lock{
		ID:          doc.ID,
		Owner:       doc.Owner,
		TimeCreated: doc.TimeCreated,
		ExpiryTime:  doc.ExpiryTime,
	}, true, nil
}
