package metrics

import (
	"testing"
	"time"
)

func TestRecordResponseAccumulatesAndTracksMaxMin(t *testing.T) {
	s := NewMonitoringService()
	s.RecordResponse("Arith", 10, 5*time.Millisecond)
	s.RecordResponse("Arith", 20, 1*time.Millisecond)
	s.RecordResponse("Arith", 30, 9*time.Millisecond)

	snap := s.Snapshot("Arith")
	if snap.Responses != 3 {
		t.Fatalf("got Responses=%d", snap.Responses)
	}
	if snap.Bytes != 60 {
		t.Fatalf("got Bytes=%d", snap.Bytes)
	}
	if snap.MaxDurationNanos != uint64(9*time.Millisecond) {
		t.Fatalf("got Max=%d", snap.MaxDurationNanos)
	}
	if snap.MinDurationNanos != uint64(1*time.Millisecond) {
		t.Fatalf("got Min=%d", snap.MinDurationNanos)
	}
}

func TestRecordRequestCountsIndependentlyOfOutcome(t *testing.T) {
	s := NewMonitoringService()
	s.RecordRequest("Arith")
	s.RecordRequest("Arith")
	s.RecordError("Arith", false)

	snap := s.Snapshot("Arith")
	if snap.Requests != 2 {
		t.Fatalf("got Requests=%d", snap.Requests)
	}
}

func TestRecordErrorTracksTimeoutSubset(t *testing.T) {
	s := NewMonitoringService()
	s.RecordError("Arith", false)
	s.RecordError("Arith", true)
	s.RecordError("Arith", true)

	snap := s.Snapshot("Arith")
	if snap.Errors != 3 {
		t.Fatalf("got Errors=%d", snap.Errors)
	}
	if snap.TimeoutErrors != 2 {
		t.Fatalf("got TimeoutErrors=%d", snap.TimeoutErrors)
	}
}

func TestUnknownServiceReturnsZeroSnapshot(t *testing.T) {
	s := NewMonitoringService()
	snap := s.Snapshot("NeverSeen")
	if snap.Responses != 0 || snap.Errors != 0 || snap.MinDurationNanos != 0 {
		t.Fatalf("got %+v, want zero-initialized snapshot", snap)
	}
}

func TestGlobalSnapshotAggregatesAcrossServices(t *testing.T) {
	s := NewMonitoringService()
	s.RecordResponse("A", 1, time.Millisecond)
	s.RecordResponse("B", 1, time.Millisecond)

	global := s.GlobalSnapshot()
	if global.Responses != 2 {
		t.Fatalf("got global Responses=%d", global.Responses)
	}
}

func TestResetZeroesCountersAndUnsetsMin(t *testing.T) {
	s := NewMonitoringService()
	s.RecordResponse("A", 5, time.Millisecond)
	s.Reset()

	snap := s.Snapshot("A")
	if snap.Responses != 0 || snap.Bytes != 0 || snap.MinDurationNanos != 0 {
		t.Fatalf("got %+v after reset", snap)
	}

	global := s.GlobalSnapshot()
	if global.Responses != 0 {
		t.Fatalf("got global Responses=%d after reset", global.Responses)
	}
}
