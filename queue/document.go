package queue

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/uvan1603/workqueue/workitem"
)

// toInsertDoc renders a WorkItem into the bson.M shape written on pushNew.
// Field names are resolved through fields rather than hard-coded, per the
// field-name injection design note (spec §9).
func toInsertDoc[T any](w workitem.WorkItem[T], fields workitem.FieldNames) (bson.M, error) {
	wire, err := workitem.EncodeStatus(w.Status)
	if err != nil {
		return nil, err
	}
	doc := bson.M{
		fields.ReceivedAt:   w.ReceivedAt,
		fields.UpdatedAt:    w.UpdatedAt,
		fields.AvailableAt:  w.AvailableAt,
		fields.Status:       wire,
		fields.FailureCount: w.FailureCount,
		fields.Item:         w.Item,
	}
	if !w.ID.IsZero() {
		doc[fields.ID] = w.ID
	}
	return doc, nil
}

// fromRaw decodes a persisted document (as returned by FindOneAndUpdate.Raw or
// a cursor) back into a WorkItem, resolving field names through fields.
func fromRaw[T any](raw bson.Raw, fields workitem.FieldNames) (workitem.WorkItem[T], error) {
	var w workitem.WorkItem[T]

	idVal, err := raw.LookupErr(fields.ID)
	if err != nil {
		return w, fmt.Errorf("queue: document missing id field %q: %w", fields.ID, err)
	}
	oid, ok := idVal.ObjectIDOK()
	if !ok {
		return w, fmt.Errorf("queue: id field %q is not an ObjectID", fields.ID)
	}
	w.ID = oid

	if t, err := lookupTime(raw, fields.ReceivedAt); err == nil {
		w.ReceivedAt = t
	} else {
		return w, err
	}
	if t, err := lookupTime(raw, fields.UpdatedAt); err == nil {
		w.UpdatedAt = t
	} else {
		return w, err
	}
	// availableAt may be absent on legacy records (spec §9); default to the
	// zero time rather than erroring.
	if av, err := raw.LookupErr(fields.AvailableAt); err == nil {
		t, ok := av.TimeOK()
		if !ok {
			return w, fmt.Errorf("queue: field %q is not a date", fields.AvailableAt)
		}
		w.AvailableAt = t
	}

	statusVal, err := raw.LookupErr(fields.Status)
	if err != nil {
		return w, fmt.Errorf("queue: document missing status field %q: %w", fields.Status, err)
	}
	statusWire, ok := statusVal.StringValueOK()
	if !ok {
		return w, fmt.Errorf("queue: status field %q is not a string", fields.Status)
	}
	status, err := workitem.DecodeStatus(statusWire)
	if err != nil {
		return w, err
	}
	w.Status = status

	if fc, err := raw.LookupErr(fields.FailureCount); err == nil {
		n, ok := fc.AsInt64OK()
		if !ok {
			return w, fmt.Errorf("queue: field %q is not numeric", fields.FailureCount)
		}
		w.FailureCount = int(n)
	}

	itemVal, err := raw.LookupErr(fields.Item)
	if err != nil {
		return w, fmt.Errorf("queue: document missing item field %q: %w", fields.Item, err)
	}
	if err := itemVal.Unmarshal(&w.Item); err != nil {
		return w, fmt.Errorf("queue: decoding item payload: %w", err)
	}

	return w, nil
}

func lookupTime(raw bson.Raw, key string) (time.Time, error) {
	val, err := raw.LookupErr(key)
	if err != nil {
		return time.Time{}, fmt.Errorf("queue: document missing field %q: %w", key, err)
	}
	t, ok := val.TimeOK()
	if !ok {
		return time.Time{}, fmt.Errorf("queue: field %q is not a date", key)
	}
	return t, nil
}
