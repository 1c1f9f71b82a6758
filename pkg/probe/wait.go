package probe

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// Timeout bounds the whole wait. Zero polls until the dependency answers.
	Timeout        time.Duration
	Interval       time.Duration
	AttemptTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 2 * time.Second
	}
	return o
}

// Wait polls checker at a fixed interval until it succeeds or the timeout
// elapses. Each attempt logs one line. Refused connections are "not ready
// yet"; only the bound turns them into a *TimeoutError.
func Wait(ctx context.Context, spec DependencySpec, checker Checker, opts Options) error {
	opts = opts.withDefaults()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	} else {
		log.Warn().Str("dependency", spec.Name).Msg("no wait timeout configured; polling until ready")
	}

	t := time.NewTicker(opts.Interval)
	defer t.Stop()

	startedAt := time.Now()
	var lastErr error
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, opts.AttemptTimeout)
		err := checker.Check(attemptCtx)
		cancel()

		if err == nil {
			log.Info().
				Str("dependency", spec.Name).
				Int("attempt", attempt).
				Dur("waited", time.Since(startedAt)).
				Msgf("%s is ready", spec)
			return nil
		}
		lastErr = err
		log.Info().
			Str("dependency", spec.Name).
			Int("attempt", attempt).
			Str("error", err.Error()).
			Msgf("waiting for %s", spec)

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && opts.Timeout > 0 {
				return &TimeoutError{
					Dependency: spec.Name,
					Attempts:   attempt,
					Waited:     time.Since(startedAt),
					LastErr:    lastErr,
				}
			}
			return errors.Wrapf(ctx.Err(), "wait for %s", spec.Name)
		case <-t.C:
		}
	}
}

// Prober builds the checker for each spec and waits on it.
type Prober struct {
	Opts Options
}

func NewProber(opts Options) *Prober {
	return &Prober{Opts: opts}
}

func (p *Prober) Probe(ctx context.Context, spec DependencySpec) error {
	checker, err := NewChecker(spec)
	if err != nil {
		return err
	}
	return Wait(ctx, spec, checker, p.Opts)
}
