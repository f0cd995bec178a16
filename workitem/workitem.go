package workitem

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WorkItem is a persistent record wrapping a caller-supplied payload T. See
// spec §3.1: id is assigned on creation, receivedAt is immutable, updatedAt is
// monotonically non-decreasing, and failureCount only increases on
// transitions to Failed.
type WorkItem[T any] struct {
	ID           primitive.ObjectID
	ReceivedAt   time.Time
	UpdatedAt    time.Time
	AvailableAt  time.Time
	Status       ProcessingStatus
	FailureCount int
	Item         T
}

// FieldNames is the caller-supplied mapping from WorkItem fields to BSON
// document keys, allowing the collection schema to evolve independently of
// this package (spec §9 "field-name injection"). Every document read/write in
// package queue goes through one of these names rather than a hard-coded
// string.
type FieldNames struct {
	ID           string
	ReceivedAt   string
	UpdatedAt    string
	AvailableAt  string
	Status       string
	FailureCount string
	Item         string
}

// DefaultFieldNames is the field-name mapping used when a caller has no
// existing collection schema to preserve.
func DefaultFieldNames() FieldNames {
	return FieldNames{
		ID:           "_id",
		ReceivedAt:   "receivedAt",
		UpdatedAt:    "updatedAt",
		AvailableAt:  "availableAt",
		Status:       "status",
		FailureCount: "failureCount",
		Item:         "item",
	}
}

// InitialStateFunc computes the starting ProcessingStatus for a pushed item.
// The zero-value convenience is AlwaysToDo.
type InitialStateFunc[T any] func(item T) ProcessingStatus

// AlwaysToDo is the default InitialStateFunc: every pushed item starts ToDo.
func AlwaysToDo[T any](T) ProcessingStatus { return ToDo }

// CancelOutcomeKind classifies the result of Repository.Cancel.
type CancelOutcomeKind int

const (
	// CancelUpdated means the item transitioned to Cancelled.
	CancelUpdated CancelOutcomeKind = iota
	// CancelNotUpdated means the item exists but was not in a cancellable state.
	CancelNotUpdated
	// CancelNotFound means no item with the given id exists.
	CancelNotFound
)

// CancelOutcome is the typed result of Repository.Cancel (spec §4.2's
// StatusUpdateResult): absence and precondition mismatch are ordinary,
// representable outcomes, never errors (spec §7).
type CancelOutcome struct {
	Kind     CancelOutcomeKind
	Previous ProcessingStatus // valid when Kind == CancelUpdated
	Current  ProcessingStatus // valid when Kind == CancelNotUpdated
}

func (o CancelOutcome) String() string {
	switch o.Kind {
	case CancelUpdated:
		return "Updated(" + string(o.Previous) + "->" + string(Cancelled) + ")"
	case CancelNotUpdated:
		return "NotUpdated(" + string(o.Current) + ")"
	default:
		return "NotFound"
	}
}
