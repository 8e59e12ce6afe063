package rotator

import (
	"testing"
	"time"
)

func TestNextRoundRobins(t *testing.T) {
	r, err := New([]string{"tok-a", "tok-b", "tok-c"})
	if err != nil {
		t.Fatal(err)
	}
	var seen []string
	for i := 0; i < 6; i++ {
		tok, err := r.Next()
		if err != nil {
			t.Fatal(err)
		}
		seen = append(seen, tok)
	}
	want := []string{"tok-a", "tok-b", "tok-c", "tok-a", "tok-b", "tok-c"}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("at %d: got %s want %s (full: %v)", i, seen[i], want[i], seen)
		}
	}
}

func TestReportFailureTripsCircuitAfterThreshold(t *testing.T) {
	r, _ := New([]string{"tok-a", "tok-b"})
	for i := 0; i < MaxConsecutiveFailures; i++ {
		r.ReportFailure("tok-a")
	}
	for i := 0; i < 4; i++ {
		tok, err := r.Next()
		if err != nil {
			t.Fatal(err)
		}
		if tok == "tok-a" {
			t.Fatalf("tok-a should be circuit-broken, got handed out at iteration %d", i)
		}
	}
}

func TestReportSuccessResetsFailureCount(t *testing.T) {
	r, _ := New([]string{"tok-a", "tok-b"})
	for i := 0; i < MaxConsecutiveFailures-1; i++ {
		r.ReportFailure("tok-a")
	}
	r.ReportSuccess("tok-a")
	stats := r.Stats()
	for _, s := range stats {
		if s.Token == "tok-a" && s.ConsecutiveFailures != 0 {
			t.Fatalf("expected consecutive failures reset, got %d", s.ConsecutiveFailures)
		}
	}
}

func TestForcedRecoveryResetsCursorToZero(t *testing.T) {
	r, _ := New([]string{"tok-a", "tok-b", "tok-c"})

	// Advance the cursor so it isn't sitting at 0, then break every
	// credential so Next() is forced to recover the whole pool.
	_, _ = r.Next()
	_, _ = r.Next()

	for _, tok := range []string{"tok-a", "tok-b", "tok-c"} {
		for i := 0; i < MaxConsecutiveFailures; i++ {
			r.ReportFailure(tok)
		}
	}

	tok, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if tok != "tok-a" {
		t.Fatalf("forced recovery must restart from index 0, got %s", tok)
	}

	for _, s := range r.Stats() {
		if !s.Healthy {
			t.Fatalf("expected every credential healthy after forced recovery, got %+v", s)
		}
	}
}

func TestUnhealthyCredentialRecoversAfterInterval(t *testing.T) {
	r, _ := New([]string{"tok-a", "tok-b"})
	for i := 0; i < MaxConsecutiveFailures; i++ {
		r.ReportFailure("tok-a")
	}
	c := r.find("tok-a")
	c.lastFailure = time.Now().Add(-RecoveryInterval - time.Second)

	if r.HealthyCount() != 2 {
		t.Fatalf("expected tok-a to lazily recover once its interval elapsed")
	}
}

func TestReportOnUnknownTokenIsNoOp(t *testing.T) {
	r, _ := New([]string{"tok-a"})
	r.ReportFailure("not-in-pool")
	r.ReportSuccess("not-in-pool")
	if r.HealthyCount() != 1 {
		t.Fatal("unknown token reports must not affect pool state")
	}
}

func TestNewRejectsEmptyPool(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for empty credential pool")
	}
}
