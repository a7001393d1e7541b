package simulation

import (
	"context"
	"time"
)

// StepFunc advances the simulation by one fixed timestep. Returning false stops
// the loop, which is how engine termination propagates out of the tick path.
type StepFunc func(step time.Duration) bool

// Loop drives a fixed timestep simulation at the configured frequency using a
// ticker plus accumulator, so physics catches up in whole steps after a stall
// instead of integrating a variable dt.
type Loop struct {
	step     time.Duration
	stepFunc StepFunc
	ticker   *time.Ticker
	quit     chan struct{}
	done     chan struct{}
}

// NewLoop configures a loop targeting the provided steps per second.
func NewLoop(targetHz float64, step StepFunc) *Loop {
	if targetHz <= 0 {
		targetHz = 60
	}
	if step == nil {
		step = func(time.Duration) bool { return true }
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Loop{
		step:     interval,
		stepFunc: step,
	}
}

// Start begins ticking until the context is cancelled, Stop is invoked, or the
// step function requests termination.
func (l *Loop) Start(ctx context.Context) {
	if l == nil || l.stepFunc == nil {
		return
	}

	l.ticker = time.NewTicker(l.step)
	l.quit = make(chan struct{})
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		defer l.ticker.Stop()
		last := time.Now()
		accumulator := time.Duration(0)
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.quit:
				return
			case now := <-l.ticker.C:
				//1.- Accumulate elapsed wall time and run fixed steps while catching up.
				accumulator += now.Sub(last)
				last = now
				for accumulator >= l.step {
					if !l.stepFunc(l.step) {
						//2.- The tick path reported termination; stop draining the backlog.
						return
					}
					accumulator -= l.step
				}
			}
		}
	}()
}

// Done exposes a channel closed once the loop goroutine exits.
func (l *Loop) Done() <-chan struct{} {
	if l == nil {
		return nil
	}
	return l.done
}

// Stop halts the ticker and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	if l.quit != nil {
		select {
		case <-l.quit:
		default:
			close(l.quit)
		}
	}
	if l.ticker != nil {
		l.ticker.Stop()
	}
	if l.done != nil {
		<-l.done
		l.done = nil
	}
}

// StepDuration exposes the configured timestep for testing.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}
