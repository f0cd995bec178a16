package workitem

import "fmt"

// ProcessingStatus is the closed enumeration of states a WorkItem can occupy.
// It is encoded on the wire as a short string (see statusWire below); the
// mapping is part of the external data contract and must not change.
type ProcessingStatus string

const (
	ToDo              ProcessingStatus = "ToDo"
	InProgress        ProcessingStatus = "InProgress"
	Succeeded         ProcessingStatus = "Succeeded"
	Failed            ProcessingStatus = "Failed"
	PermanentlyFailed ProcessingStatus = "PermanentlyFailed"
	Ignored           ProcessingStatus = "Ignored"
	Duplicate         ProcessingStatus = "Duplicate"
	Deferred          ProcessingStatus = "Deferred"
	Cancelled         ProcessingStatus = "Cancelled"
)

// statusWire is the external string encoding used in persisted documents.
// This mapping is a wire contract: do not rename these values.
var statusWire = map[ProcessingStatus]string{
	ToDo:              "todo",
	InProgress:        "in-progress",
	Succeeded:         "succeeded",
	Failed:            "failed",
	PermanentlyFailed: "permanently-failed",
	Ignored:           "ignored",
	Duplicate:         "duplicate",
	Deferred:          "deferred",
	Cancelled:         "cancelled",
}

var wireStatus = func() map[string]ProcessingStatus {
	m := make(map[string]ProcessingStatus, len(statusWire))
	for k, v := range statusWire {
		m[v] = k
	}
	return m
}()

// EncodeStatus returns the wire string for a status.
func EncodeStatus(s ProcessingStatus) (string, error) {
	w, ok := statusWire[s]
	if !ok {
		return "", fmt.Errorf("workitem: unknown status %q", s)
	}
	return w, nil
}

// DecodeStatus parses the wire string back into a ProcessingStatus. An
// unrecognized string indicates schema drift, not an expected empty result,
// and is returned as an error rather than a zero value.
func DecodeStatus(w string) (ProcessingStatus, error) {
	s, ok := wireStatus[w]
	if !ok {
		return "", fmt.Errorf("workitem: unrecognized status wire value %q", w)
	}
	return s, nil
}

// resultStatuses are the terminal statuses that may be passed to complete.
var resultStatuses = map[ProcessingStatus]bool{
	Succeeded:         true,
	PermanentlyFailed: true,
	Ignored:           true,
	Duplicate:         true,
	Cancelled:         true,
}

// IsResult reports whether s is a valid ResultStatus argument to complete.
func IsResult(s ProcessingStatus) bool {
	return resultStatuses[s]
}

// cancellableStatuses is the set of statuses from which a transition to
// Cancelled is permitted.
var cancellableStatuses = map[ProcessingStatus]bool{
	ToDo:       true,
	Failed:     true,
	InProgress: true,
	Deferred:   true,
}

// IsCancellable reports whether an item in status s may be cancelled.
func IsCancellable(s ProcessingStatus) bool {
	return cancellableStatuses[s]
}

// AllStatuses lists every value in the enumeration, in a stable order. Used
// by Repository.Metrics to report one entry per status even when the count
// is zero.
var AllStatuses = []ProcessingStatus{
	ToDo, InProgress, Succeeded, Failed, PermanentlyFailed, Ignored, Duplicate,
	Deferred, Cancelled,
}
