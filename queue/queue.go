// Package queue implements the persistent work-item queue described in
// spec §4.2: a multi-producer/multi-consumer queue with retry and timeout
// semantics built entirely on a Mongo collection's atomic conditional
// find-and-update. No in-memory state is kept between calls (spec §9 "no
// global state"); every Repository instance owns only its collection handle,
// field-name record, and clock.
package queue

import (
	"context"
	"errors"
	"time"

	perrors "github.com/pkg/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/uvan1603/workqueue/clock"
	"github.com/uvan1603/workqueue/workitem"
)

// Repository is the work-item queue over a single Mongo collection. T is the
// caller's opaque payload type.
type Repository[T any] struct {
	collection *mongo.Collection
	clock      clock.Clock
	fields     workitem.FieldNames

	// inProgressRetryAfter is the process-wide duration after which a stuck
	// InProgress item becomes re-pullable (spec §5, §6.3).
	inProgressRetryAfter time.Duration

	// metricsPrefix namespaces the keys returned by Metrics.
	metricsPrefix string
}

// New constructs a Repository over collection. inProgressRetryAfter is
// resolved once at construction time, per spec §6.3 ("read once at repository
// construction").
func New[T any](collection *mongo.Collection, clk clock.Clock, fields workitem.FieldNames, inProgressRetryAfter time.Duration, metricsPrefix string) *Repository[T] {
	return &Repository[T]{
		collection:           collection,
		clock:                clk,
		fields:                fields,
		inProgressRetryAfter: inProgressRetryAfter,
		metricsPrefix:        metricsPrefix,
	}
}

// EnsureIndexes creates the indexes required for pullOutstanding to perform
// well (spec §4.2 "Indexes"). Ascending, background, idempotent: safe to call
// on every startup.
func (r *Repository[T]) EnsureIndexes(ctx context.Context) error {
	background := options.Index().SetBackground(true)
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: r.fields.Status, Value: 1}, {Key: r.fields.UpdatedAt, Value: 1}}, Options: background},
		{Keys: bson.D{{Key: r.fields.Status, Value: 1}, {Key: r.fields.AvailableAt, Value: 1}}, Options: background},
		{Keys: bson.D{{Key: r.fields.Status, Value: 1}}, Options: background},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	if err != nil {
		return perrors.Wrap(err, "queue: creating indexes")
	}
	return nil
}

// PushNew creates a single item with a freshly minted id.
func (r *Repository[T]) PushNew(ctx context.Context, item T, receivedAt, availableAt time.Time, initialState workitem.InitialStateFunc[T]) (workitem.WorkItem[T], error) {
	if initialState == nil {
		initialState = workitem.AlwaysToDo[T]
	}
	w := workitem.WorkItem[T]{
		ID:          primitive.NewObjectID(),
		ReceivedAt:  receivedAt,
		UpdatedAt:   r.clock.Now(),
		AvailableAt: availableAt,
		Status:      initialState(item),
		Item:        item,
	}
	doc, err := toInsertDoc(w, r.fields)
	if err != nil {
		return workitem.WorkItem[T]{}, err
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return workitem.WorkItem[T]{}, perrors.Wrap(err, "queue: pushNew insert")
	}
	return w, nil
}

// PushNewDefault is the convenience overload: initial status is always ToDo
// and availableAt defaults to receivedAt.
func (r *Repository[T]) PushNewDefault(ctx context.Context, item T, receivedAt time.Time) (workitem.WorkItem[T], error) {
	return r.PushNew(ctx, item, receivedAt, receivedAt, workitem.AlwaysToDo[T])
}

// PushNewBatch creates several items sharing an identical receivedAt,
// availableAt, and initialState function. Returns PartialInsertError if the
// datastore acknowledges fewer inserts than items supplied.
func (r *Repository[T]) PushNewBatch(ctx context.Context, items []T, receivedAt, availableAt time.Time, initialState workitem.InitialStateFunc[T]) ([]workitem.WorkItem[T], error) {
	if initialState == nil {
		initialState = workitem.AlwaysToDo[T]
	}
	if len(items) == 0 {
		return nil, nil
	}

	now := r.clock.Now()
	works := make([]workitem.WorkItem[T], len(items))
	docs := make([]interface{}, len(items))
	for i, item := range items {
		w := workitem.WorkItem[T]{
			ID:          primitive.NewObjectID(),
			ReceivedAt:  receivedAt,
			UpdatedAt:   now,
			AvailableAt: availableAt,
			Status:      initialState(item),
			Item:        item,
		}
		doc, err := toInsertDoc(w, r.fields)
		if err != nil {
			return nil, err
		}
		works[i] = w
		docs[i] = doc
	}

	res, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) && res != nil {
			// Unordered insert: some documents landed despite the error.
			// Surface the partial-insert domain error rather than the raw
			// bulk write exception.
			return nil, &PartialInsertError{Expected: len(items), Actual: len(res.InsertedIDs)}
		}
		return nil, perrors.Wrap(err, "queue: pushNewBatch insert")
	}
	if len(res.InsertedIDs) != len(items) {
		return nil, &PartialInsertError{Expected: len(items), Actual: len(res.InsertedIDs)}
	}
	return works, nil
}

// pullBucket runs a single conditional findOneAndUpdate and returns
// (item, true, nil) on a match, (zero, false, nil) when nothing matched, or
// (zero, false, err) on a datastore error.
func (r *Repository[T]) pullBucket(ctx context.Context, filter bson.M, now time.Time) (workitem.WorkItem[T], bool, error) {
	inProgressWire, err := workitem.EncodeStatus(workitem.InProgress)
	if err != nil {
		return workitem.WorkItem[T]{}, false, err
	}
	update := bson.M{"$set": bson.M{
		r.fields.Status:    inProgressWire,
		r.fields.UpdatedAt: now,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	res := r.collection.FindOneAndUpdate(ctx, filter, update, opts)
	raw, err := res.Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return workitem.WorkItem[T]{}, false, nil
		}
		return workitem.WorkItem[T]{}, false, perrors.Wrap(err, "queue: pullOutstanding")
	}
	w, err := fromRaw[T](raw, r.fields)
	if err != nil {
		return workitem.WorkItem[T]{}, false, err
	}
	return w, true, nil
}

// PullOutstanding atomically selects and claims the next processable item
// following the strict three-bucket priority of spec §4.2: fresh ToDo/Deferred
// work, then Failed retries past their cutoff, then stuck InProgress items
// rescued from a crashed worker.
func (r *Repository[T]) PullOutstanding(ctx context.Context, failedBefore, availableBefore time.Time) (workitem.WorkItem[T], bool, error) {
	now := r.clock.Now()

	todoWire, err := workitem.EncodeStatus(workitem.ToDo)
	if err != nil {
		return workitem.WorkItem[T]{}, false, err
	}
	deferredWire, err := workitem.EncodeStatus(workitem.Deferred)
	if err != nil {
		return workitem.WorkItem[T]{}, false, err
	}
	failedWire, err := workitem.EncodeStatus(workitem.Failed)
	if err != nil {
		return workitem.WorkItem[T]{}, false, err
	}
	inProgressWire, err := workitem.EncodeStatus(workitem.InProgress)
	if err != nil {
		return workitem.WorkItem[T]{}, false, err
	}

	// Bucket 1: ToDo and Deferred candidates ready for pickup.
	bucket1 := bson.M{
		r.fields.Status:      bson.M{"$in": []string{todoWire, deferredWire}},
		r.fields.AvailableAt: bson.M{"$lt": availableBefore},
	}
	if w, ok, err := r.pullBucket(ctx, bucket1, now); err != nil || ok {
		return w, ok, err
	}

	// Bucket 2: Failed candidates past their retry cutoff. availableAt may be
	// absent on legacy records (spec §9); the disjunction preserves that.
	bucket2 := bson.M{
		r.fields.Status:    failedWire,
		r.fields.UpdatedAt: bson.M{"$lt": failedBefore},
		"$or": []bson.M{
			{r.fields.AvailableAt: bson.M{"$lt": availableBefore}},
			{r.fields.AvailableAt: bson.M{"$exists": false}},
		},
	}
	if w, ok, err := r.pullBucket(ctx, bucket2, now); err != nil || ok {
		return w, ok, err
	}

	// Bucket 3: InProgress items stuck longer than inProgressRetryAfter,
	// rescued as a safety net against crashed workers. failureCount is not
	// incremented on rescue.
	stuckCutoff := now.Add(-r.inProgressRetryAfter)
	bucket3 := bson.M{
		r.fields.Status:    inProgressWire,
		r.fields.UpdatedAt: bson.M{"$lt": stuckCutoff},
	}
	return r.pullBucket(ctx, bucket3, now)
}

// MarkAs is an unconditional status transition. If newStatus is Failed,
// failureCount is atomically incremented. Returns whether a record matched.
func (r *Repository[T]) MarkAs(ctx context.Context, id primitive.ObjectID, newStatus workitem.ProcessingStatus, availableAt *time.Time) (bool, error) {
	wire, err := workitem.EncodeStatus(newStatus)
	if err != nil {
		return false, err
	}
	set := bson.M{
		r.fields.Status:    wire,
		r.fields.UpdatedAt: r.clock.Now(),
	}
	if availableAt != nil {
		set[r.fields.AvailableAt] = *availableAt
	}
	update := bson.M{"$set": set}
	if newStatus == workitem.Failed {
		update["$inc"] = bson.M{r.fields.FailureCount: 1}
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{r.fields.ID: id}, update)
	if err != nil {
		return false, perrors.Wrap(err, "queue: markAs")
	}
	return res.MatchedCount > 0, nil
}

// Complete performs the conditional transition of spec §4.2: it only
// succeeds if the current status is InProgress, enforcing that only the
// worker holding the item may terminate it.
func (r *Repository[T]) Complete(ctx context.Context, id primitive.ObjectID, result workitem.ProcessingStatus) (bool, error) {
	if !workitem.IsResult(result) {
		return false, &ErrInvalidResultStatus{Status: string(result)}
	}
	inProgressWire, err := workitem.EncodeStatus(workitem.InProgress)
	if err != nil {
		return false, err
	}
	resultWire, err := workitem.EncodeStatus(result)
	if err != nil {
		return false, err
	}
	filter := bson.M{r.fields.ID: id, r.fields.Status: inProgressWire}
	update := bson.M{"$set": bson.M{
		r.fields.Status:    resultWire,
		r.fields.UpdatedAt: r.clock.Now(),
	}}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, perrors.Wrap(err, "queue: complete")
	}
	return res.ModifiedCount > 0, nil
}

// Cancel attempts a transition to Cancelled, permitted only from a
// cancellable status (spec §3.2). Absence and precondition mismatch are
// returned as a typed CancelOutcome, never an error (spec §7).
func (r *Repository[T]) Cancel(ctx context.Context, id primitive.ObjectID) (workitem.CancelOutcome, error) {
	cancellableWire := make([]string, 0, len(workitem.AllStatuses))
	for _, s := range workitem.AllStatuses {
		if workitem.IsCancellable(s) {
			w, err := workitem.EncodeStatus(s)
			if err != nil {
				return workitem.CancelOutcome{}, err
			}
			cancellableWire = append(cancellableWire, w)
		}
	}
	cancelledWire, err := workitem.EncodeStatus(workitem.Cancelled)
	if err != nil {
		return workitem.CancelOutcome{}, err
	}

	filter := bson.M{r.fields.ID: id, r.fields.Status: bson.M{"$in": cancellableWire}}
	update := bson.M{"$set": bson.M{
		r.fields.Status:    cancelledWire,
		r.fields.UpdatedAt: r.clock.Now(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	res := r.collection.FindOneAndUpdate(ctx, filter, update, opts)
	raw, err := res.Raw()
	if err == nil {
		before, ferr := fromRaw[T](raw, r.fields)
		if ferr != nil {
			return workitem.CancelOutcome{}, ferr
		}
		return workitem.CancelOutcome{Kind: workitem.CancelUpdated, Previous: before.Status}, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return workitem.CancelOutcome{}, perrors.Wrap(err, "queue: cancel")
	}

	// Not cancellable in its current state, or does not exist at all.
	existing, found, err := r.FindByID(ctx, id)
	if err != nil {
		return workitem.CancelOutcome{}, err
	}
	if !found {
		return workitem.CancelOutcome{Kind: workitem.CancelNotFound}, nil
	}
	return workitem.CancelOutcome{Kind: workitem.CancelNotUpdated, Current: existing.Status}, nil
}

// FindByID is a straightforward lookup by id.
func (r *Repository[T]) FindByID(ctx context.Context, id primitive.ObjectID) (workitem.WorkItem[T], bool, error) {
	res := r.collection.FindOne(ctx, bson.M{r.fields.ID: id})
	raw, err := res.Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return workitem.WorkItem[T]{}, false, nil
		}
		return workitem.WorkItem[T]{}, false, perrors.Wrap(err, "queue: findById")
	}
	w, err := fromRaw[T](raw, r.fields)
	if err != nil {
		return workitem.WorkItem[T]{}, false, err
	}
	return w, true, nil
}

// Count returns the number of items currently in status.
func (r *Repository[T]) Count(ctx context.Context, status workitem.ProcessingStatus) (int64, error) {
	wire, err := workitem.EncodeStatus(status)
	if err != nil {
		return 0, err
	}
	n, err := r.collection.CountDocuments(ctx, bson.M{r.fields.Status: wire})
	if err != nil {
		return 0, perrors.Wrap(err, "queue: count")
	}
	return n, nil
}

// Metrics returns one entry per ProcessingStatus, keyed "<prefix>.<status>",
// for external telemetry to export.
func (r *Repository[T]) Metrics(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(workitem.AllStatuses))
	for _, s := range workitem.AllStatuses {
		n, err := r.Count(ctx, s)
		if err != nil {
			return nil, err
		}
		wire, err := workitem.EncodeStatus(s)
		if err != nil {
			return nil, err
		}
		out[r.metricsPrefix+"."+wire] = n
	}
	return out, nil
}
