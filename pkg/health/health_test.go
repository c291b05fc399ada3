package health

import (
	"testing"
	"time"
)

func TestRecordSuccessEWMA(t *testing.T) {
	var h NodeHealth
	h.RecordSuccess(100 * time.Millisecond)
	if h.AverageRTT != 100*time.Millisecond {
		t.Fatalf("first sample: AverageRTT = %v, want 100ms", h.AverageRTT)
	}
	h.RecordSuccess(200 * time.Millisecond)
	want := (100*time.Millisecond + 200*time.Millisecond) / 2
	if h.AverageRTT != want {
		t.Fatalf("second sample EWMA: AverageRTT = %v, want %v", h.AverageRTT, want)
	}
	if h.Status != StatusHealthy {
		t.Fatalf("Status = %v, want Healthy", h.Status)
	}
	if h.ConsecutiveFailures != 0 {
		t.Fatalf("ConsecutiveFailures = %d, want 0", h.ConsecutiveFailures)
	}
}

func TestRecordFailureThreshold(t *testing.T) {
	var h NodeHealth
	const max = 3
	for i := 0; i < max-1; i++ {
		if wentOffline := h.RecordFailure(max); wentOffline {
			t.Fatalf("RecordFailure #%d should not yet cross to Unhealthy", i+1)
		}
	}
	if h.Status != StatusUnknown {
		t.Fatalf("Status = %v before reaching max failures, want Unknown", h.Status)
	}
	if wentOffline := h.RecordFailure(max); !wentOffline {
		t.Fatal("RecordFailure at the threshold should cross to Unhealthy")
	}
	if h.Status != StatusUnhealthy {
		t.Fatalf("Status = %v, want Unhealthy", h.Status)
	}
	if h.ConsecutiveFailures < max {
		t.Fatalf("ConsecutiveFailures = %d, want >= %d", h.ConsecutiveFailures, max)
	}
	// Subsequent failures should not re-report the transition.
	if wentOffline := h.RecordFailure(max); wentOffline {
		t.Fatal("RecordFailure while already Unhealthy must not re-report the transition")
	}
}

func TestRecordSuccessRecoveryTransition(t *testing.T) {
	var h NodeHealth
	h.RecordFailure(1) // immediately Unhealthy
	if h.Status != StatusUnhealthy {
		t.Fatalf("Status = %v, want Unhealthy", h.Status)
	}
	if recovered := h.RecordSuccess(50 * time.Millisecond); !recovered {
		t.Fatal("RecordSuccess after Unhealthy should report a recovery transition")
	}
	if h.Status != StatusHealthy {
		t.Fatalf("Status = %v, want Healthy", h.Status)
	}
	if recovered := h.RecordSuccess(50 * time.Millisecond); recovered {
		t.Fatal("RecordSuccess while already Healthy must not re-report recovery")
	}
}

func TestTrackerPerPeerIsolation(t *testing.T) {
	tr := NewTracker(Config{MaxFailures: 2})
	tr.RecordFailure("peer-a")
	tr.RecordFailure("peer-a")
	ha, _ := tr.Get("peer-a")
	if ha.Status != StatusUnhealthy {
		t.Fatalf("peer-a Status = %v, want Unhealthy", ha.Status)
	}
	if _, ok := tr.Get("peer-b"); ok {
		t.Fatal("peer-b should have no health record yet")
	}
	tr.RecordSuccess("peer-b", 10*time.Millisecond)
	hb, ok := tr.Get("peer-b")
	if !ok || hb.Status != StatusHealthy {
		t.Fatalf("peer-b health = %+v, ok=%v, want Healthy", hb, ok)
	}
}

func TestTrackerForget(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	tr.RecordSuccess("peer-a", time.Millisecond)
	tr.Forget("peer-a")
	if _, ok := tr.Get("peer-a"); ok {
		t.Fatal("Forget should remove the health record entirely")
	}
}
