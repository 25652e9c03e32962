// Package lockout implements the consecutive-failure ban for one login session.
//
// The guard has two states. Open allows credential checks while attempts
// remain. Banned rejects every check until the ban deadline passes, then
// clears itself on the next query. There is no background sweep.
package lockout

import "time"

// State is the guard state.
type State int

const (
	Open State = iota
	Banned
)

func (s State) String() string {
	if s == Banned {
		return "banned"
	}
	return "open"
}

// Outcome is what a credential check produced, from the guard's point of view.
type Outcome int

const (
	// Success resets the guard.
	Success Outcome = iota
	// Failure consumes one attempt.
	Failure
	// Neutral leaves the guard unchanged (unknown user, unrecognized IP).
	Neutral
)

// Config holds guard limits.
type Config struct {
	MaxAttempts int
	BanDuration time.Duration
}

// Decision is the guard's view after a query or a recorded outcome.
type Decision struct {
	State        State
	AttemptsLeft int
	BanRemaining time.Duration
}

// Guard is not safe for concurrent use; the owning session serializes calls.
type Guard struct {
	cfg       Config
	remaining int
	banUntil  time.Time
}

// New returns an Open guard with cfg.MaxAttempts attempts.
func New(cfg Config) *Guard {
	return &Guard{cfg: cfg, remaining: cfg.MaxAttempts}
}

// Check reports whether a credential check may run at now, lifting an
// expired ban first.
func (g *Guard) Check(now time.Time) Decision {
	if !g.banUntil.IsZero() {
		if now.Before(g.banUntil) {
			return Decision{State: Banned, BanRemaining: g.banUntil.Sub(now)}
		}
		g.Reset()
	}
	return Decision{State: Open, AttemptsLeft: g.remaining}
}

// Record applies outcome at now. Callers must Check first; recording while
// banned is ignored.
func (g *Guard) Record(outcome Outcome, now time.Time) Decision {
	if d := g.Check(now); d.State == Banned {
		return d
	}

	switch outcome {
	case Success:
		g.Reset()
	case Failure:
		g.remaining--
		if g.remaining <= 0 {
			g.remaining = 0
			g.banUntil = now.Add(g.cfg.BanDuration)
			return Decision{State: Banned, BanRemaining: g.cfg.BanDuration}
		}
	}
	return Decision{State: Open, AttemptsLeft: g.remaining}
}

// Reset restores the full attempt budget and lifts any ban.
func (g *Guard) Reset() {
	g.remaining = g.cfg.MaxAttempts
	g.banUntil = time.Time{}
}

// AttemptsLeft returns the attempts left without lifting an expired ban.
func (g *Guard) AttemptsLeft() int { return g.remaining }

// BanUntil returns the ban deadline, zero when none was set.
func (g *Guard) BanUntil() time.Time { return g.banUntil }
