package lockout

import (
	"testing"
	"time"
)

func testGuard() *Guard {
	return New(Config{MaxAttempts: 4, BanDuration: 15 * time.Second})
}

func TestGuardBansAfterMaxFailures(t *testing.T) {
	g := testGuard()
	now := time.Unix(1_700_000_000, 0)

	for want := 3; want >= 1; want-- {
		d := g.Record(Failure, now)
		if d.State != Open || d.AttemptsLeft != want {
			t.Fatalf("Record = %+v, want open with %d left", d, want)
		}
	}

	d := g.Record(Failure, now)
	if d.State != Banned || d.BanRemaining != 15*time.Second {
		t.Fatalf("fourth failure = %+v, want banned 15s", d)
	}
	if !g.BanUntil().Equal(now.Add(15 * time.Second)) {
		t.Fatalf("BanUntil = %v", g.BanUntil())
	}
}

func TestGuardBannedCheckReportsRemaining(t *testing.T) {
	g := testGuard()
	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < 4; i++ {
		g.Record(Failure, now)
	}

	d := g.Check(now.Add(10 * time.Second))
	if d.State != Banned || d.BanRemaining != 5*time.Second {
		t.Fatalf("Check = %+v, want banned 5s", d)
	}
}

func TestGuardIgnoresFailuresWhileBanned(t *testing.T) {
	g := testGuard()
	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < 4; i++ {
		g.Record(Failure, now)
	}

	g.Record(Failure, now.Add(time.Second))
	if !g.BanUntil().Equal(now.Add(15 * time.Second)) {
		t.Fatal("failures during a ban must not extend it")
	}
}

func TestGuardBanExpiresLazily(t *testing.T) {
	g := testGuard()
	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < 4; i++ {
		g.Record(Failure, now)
	}

	if g.AttemptsLeft() != 0 {
		t.Fatalf("AttemptsLeft = %d before expiry query", g.AttemptsLeft())
	}

	d := g.Check(now.Add(15 * time.Second))
	if d.State != Open || d.AttemptsLeft != 4 {
		t.Fatalf("Check at deadline = %+v, want open with 4", d)
	}
	if !g.BanUntil().IsZero() {
		t.Fatal("expected ban cleared")
	}
}

func TestGuardSuccessResets(t *testing.T) {
	g := testGuard()
	now := time.Unix(1_700_000_000, 0)
	g.Record(Failure, now)
	g.Record(Failure, now)

	d := g.Record(Success, now)
	if d.State != Open || d.AttemptsLeft != 4 {
		t.Fatalf("Record(Success) = %+v", d)
	}
}

func TestGuardNeutralOutcomeKeepsCount(t *testing.T) {
	g := testGuard()
	now := time.Unix(1_700_000_000, 0)
	g.Record(Failure, now)

	d := g.Record(Neutral, now)
	if d.AttemptsLeft != 3 {
		t.Fatalf("Neutral changed count: %+v", d)
	}
}
