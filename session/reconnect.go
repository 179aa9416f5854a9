package session

import "time"

// ReconnectPolicy bounds automatic reopening after a channel closes.
// Attempt n (0-based) waits Base*Factor^n, capped at Cap; a Cap of zero or
// less means the default 30s cap. After MaxAttempts consecutive attempts
// without a successful sign-in the session gives up.
type ReconnectPolicy struct {
	Base        time.Duration
	Factor      float64
	Cap         time.Duration
	MaxAttempts int
}

// DefaultReconnectPolicy waits 0.5s, 1s, 2s ... up to 30s, eight times.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Base:        500 * time.Millisecond,
		Factor:      2,
		Cap:         defaultReconnectCap,
		MaxAttempts: 8,
	}
}

const defaultReconnectCap = 30 * time.Second

// Delay returns the wait before the given attempt, never negative and never
// above the cap.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	limit := p.Cap
	if limit <= 0 {
		limit = defaultReconnectCap
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(max(p.Base, 0))
	for i := 0; i < attempt && d < float64(limit); i++ {
		d *= factor
	}
	if d >= float64(limit) {
		return limit
	}
	return time.Duration(d)
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. It matches time.AfterFunc so tests can
// substitute a manual scheduler.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
