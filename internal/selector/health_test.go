package selector

import (
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream failure")

func TestHealthTrackerLatencyEWMA(t *testing.T) {
	tr := NewHealthTracker()
	for i := 0; i < 3; i++ {
		tr.Observe("ep", 100*time.Millisecond, nil)
	}
	snap := tr.Snapshot()["ep"]
	if snap.Latency != 100*time.Millisecond {
		t.Fatalf("steady latency = %v, want 100ms", snap.Latency)
	}

	// One slow call moves the average by alpha, not all the way.
	tr.Observe("ep", 500*time.Millisecond, nil)
	snap = tr.Snapshot()["ep"]
	if snap.Latency < 219*time.Millisecond || snap.Latency > 221*time.Millisecond {
		t.Errorf("latency after slow call = %v, want ~220ms", snap.Latency)
	}
	if snap.Samples != 4 {
		t.Errorf("samples = %d, want 4", snap.Samples)
	}
}

func TestHealthTrackerZeroLatencyExcluded(t *testing.T) {
	tr := NewHealthTracker()
	tr.Observe("ep", 0, errUpstream)
	tr.Observe("ep", 0, errUpstream)
	if got := tr.Snapshot()["ep"].Latency; got != 0 {
		t.Fatalf("latency from zero-latency failures = %v, want 0", got)
	}

	tr.Observe("ep", 100*time.Millisecond, nil)
	if got := tr.Snapshot()["ep"].Latency; got != 100*time.Millisecond {
		t.Errorf("latency = %v, want 100ms from the first real sample", got)
	}
}

func TestHealthTrackerDownAfterConsecutiveFailures(t *testing.T) {
	tr := NewHealthTracker()
	tr.Observe("ep", 0, errUpstream)
	tr.Observe("ep", 0, errUpstream)
	if !tr.Snapshot()["ep"].Available {
		t.Fatalf("endpoint marked down after two failures, want three")
	}

	tr.Observe("ep", 0, errUpstream)
	if tr.Snapshot()["ep"].Available {
		t.Fatalf("endpoint still available after three consecutive failures")
	}

	tr.Observe("ep", 120*time.Millisecond, nil)
	if !tr.Snapshot()["ep"].Available {
		t.Errorf("success did not clear the failure streak")
	}
}

func TestHealthTrackerSuccessResetsStreak(t *testing.T) {
	tr := NewHealthTracker()
	tr.Observe("ep", 0, errUpstream)
	tr.Observe("ep", 0, errUpstream)
	tr.Observe("ep", 90*time.Millisecond, nil)
	tr.Observe("ep", 0, errUpstream)
	tr.Observe("ep", 0, errUpstream)
	if !tr.Snapshot()["ep"].Available {
		t.Errorf("non-consecutive failures should not mark the endpoint down")
	}
}

func TestHealthTrackerErrorRateEWMA(t *testing.T) {
	tr := NewHealthTracker()
	tr.Observe("ep", 100*time.Millisecond, nil)
	if got := tr.Snapshot()["ep"].ErrorRate; got != 0 {
		t.Fatalf("error rate after success = %v, want 0", got)
	}

	tr.Observe("ep", 0, errUpstream)
	got := tr.Snapshot()["ep"].ErrorRate
	if got < 0.29 || got > 0.31 {
		t.Errorf("error rate after one failure = %v, want ~0.3", got)
	}

	// First observation seeds the average directly.
	tr2 := NewHealthTracker()
	tr2.Observe("ep", 0, errUpstream)
	if got := tr2.Snapshot()["ep"].ErrorRate; got != 1.0 {
		t.Errorf("error rate after initial failure = %v, want 1.0", got)
	}
}

func TestHealthTrackerSnapshotIsolation(t *testing.T) {
	tr := NewHealthTracker()
	tr.Observe("ep", 100*time.Millisecond, nil)

	snap := tr.Snapshot()
	tr.Observe("ep", 0, errUpstream)
	if snap["ep"].Samples != 1 {
		t.Errorf("snapshot mutated by later observations: %+v", snap["ep"])
	}

	delete(snap, "ep")
	if _, ok := tr.Snapshot()["ep"]; !ok {
		t.Errorf("deleting from a snapshot reached the tracker")
	}
}

func TestHealthTrackerUnknownEndpoint(t *testing.T) {
	tr := NewHealthTracker()
	if got := len(tr.Snapshot()); got != 0 {
		t.Fatalf("fresh tracker snapshot has %d entries, want 0", got)
	}
}
