package resilience

import "context"

// Guard applies a limiter and then a breaker to every call. Either may be nil.
type Guard struct {
	Limiter *Limiter
	Breaker *Breaker
}

// NewGuard builds a Guard allowing rps calls per second (burst of the same
// size, at least 1) through a breaker named name.
func NewGuard(name string, rps float64, opts BreakerOpts) *Guard {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	opts.Name = name
	return &Guard{
		Limiter: NewLimiter(LimiterOpts{Rate: rps, Burst: burst}),
		Breaker: NewBreaker(opts),
	}
}

// Do waits for the limiter, then runs f through the breaker.
func (g *Guard) Do(ctx context.Context, f func(context.Context) error) error {
	if g == nil {
		return f(ctx)
	}
	if g.Limiter != nil {
		if err := g.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if g.Breaker != nil {
		return g.Breaker.Call(ctx, f)
	}
	return f(ctx)
}
