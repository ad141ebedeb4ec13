package notify

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// Backoff decides how long to wait before the next attempt. done reports that no
// further attempt should be made.
type Backoff interface {
	Delay(attempt uint) (wait time.Duration, done bool)
}

type noRetry struct{}

func NoRetry() Backoff {
	return noRetry{}
}

func (noRetry) Delay(uint) (time.Duration, bool) {
	return 0, true
}

type Jitter func(int64) int64

// Exponential waits a random duration in [0, min(Base*2^attempt, Cap)) ("full jitter").
type Exponential struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts uint
	// Jitter defaults to rand.Int63n.
	Jitter Jitter
}

func (e *Exponential) Delay(attempt uint) (time.Duration, bool) {
	if attempt >= e.MaxAttempts {
		return 0, true
	}

	ceiling := int64(e.Cap)
	if attempt < 63 {
		if delay, err := checkedMul(int64(1)<<attempt, int64(e.Base)); err == nil {
			ceiling = min(delay, int64(e.Cap))
		}
	}
	if ceiling <= 0 {
		return 0, false
	}
	return time.Duration(e.jitter()(ceiling)), false
}

func (e *Exponential) jitter() Jitter {
	if e.Jitter == nil {
		return rand.Int63n
	}
	return e.Jitter
}

var ErrOverflow = errors.New("overflow")

func checkedMul(l int64, r int64) (int64, error) {
	if l == 0 || r == 0 {
		return 0, nil
	}
	if l > math.MaxInt64/r {
		return 0, ErrOverflow
	}
	return l * r, nil
}
