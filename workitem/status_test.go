package workitem

import "testing"

func TestEncodeDecodeStatusRoundTrip(t *testing.T) {
	for _, s := range AllStatuses {
		wire, err := EncodeStatus(s)
		if err != nil {
			t.Fatalf("EncodeStatus(%v): %v", s, err)
		}
		got, err := DecodeStatus(wire)
		if err != nil {
			t.Fatalf("DecodeStatus(%q): %v", wire, err)
		}
		if got != s {
			t.Fatalf("round trip mismatch: %v -> %q -> %v", s, wire, got)
		}
	}
}

func TestWireEncodingIsStable(t *testing.T) {
	// This mapping is part of the external data contract (spec §6.2) and
	// must never change once data has been written with it.
	cases := map[ProcessingStatus]string{
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
	for status, want := range cases {
		got, err := EncodeStatus(status)
		if err != nil {
			t.Fatalf("EncodeStatus(%v): %v", status, err)
		}
		if got != want {
			t.Errorf("EncodeStatus(%v) = %q, want %q", status, got, want)
		}
	}
}

func TestDecodeStatusRejectsUnknown(t *testing.T) {
	if _, err := DecodeStatus("not-a-real-status"); err == nil {
		t.Fatal("expected an error for an unrecognized wire value")
	}
}

func TestIsResult(t *testing.T) {
	result := map[ProcessingStatus]bool{
		Succeeded:         true,
		PermanentlyFailed: true,
		Ignored:           true,
		Duplicate:         true,
		Cancelled:         true,
		ToDo:              false,
		InProgress:        false,
		Failed:            false,
		Deferred:          false,
	}
	for status, want := range result {
		if got := IsResult(status); got != want {
			t.Errorf("IsResult(%v) = %v, want %v", status, got, want)
		}
	}
}

func TestIsCancellable(t *testing.T) {
	cancellable := map[ProcessingStatus]bool{
		ToDo:              true,
		Failed:            true,
		InProgress:        true,
		Deferred:          true,
		Succeeded:         false,
		PermanentlyFailed: false,
		Ignored:           false,
		Duplicate:         false,
		Cancelled:         false,
	}
	for status, want := range cancellable {
		if got := IsCancellable(status); got != want {
			t.Errorf("IsCancellable(%v) = %v, want %v", status, got, want)
		}
	}
}
