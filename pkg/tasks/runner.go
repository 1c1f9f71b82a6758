package tasks

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Runner executes startup tasks strictly in order. A task only starts after
// the previous one has exited.
type Runner struct {
	Executor Executor
	// DryRun evaluates preconditions and logs the plan without executing.
	DryRun bool
}

func NewRunner(e Executor) *Runner {
	return &Runner{Executor: e}
}

func (r *Runner) Run(ctx context.Context, tasks []StartupTask) error {
	if r.Executor == nil && !r.DryRun {
		return errors.New("runner has no executor")
	}

	ran, skipped, tolerated := 0, 0, 0
	for _, task := range tasks {
		l := log.With().Str("task", task.Name).Logger()

		if ok, reason := task.shouldRun(); !ok {
			l.Info().Str("reason", reason).Msgf("skipping %s", task.Name)
			skipped++
			continue
		}
		if r.DryRun {
			l.Info().Bool("best_effort", task.BestEffort).Msgf("would run: %s", task)
			continue
		}

		l.Info().Interface("env", SanitizeEnv(task.Env)).Msgf("running: %s", task)
		startedAt := time.Now()
		err := r.Executor.Execute(ctx, task)
		elapsed := time.Since(startedAt)
		ran++

		if err == nil {
			l.Info().Dur("elapsed", elapsed).Msgf("%s finished", task.Name)
			continue
		}
		if task.BestEffort {
			l.Warn().Err(err).Dur("elapsed", elapsed).Msgf("%s failed; continuing (best effort)", task.Name)
			tolerated++
			continue
		}

		te := &TaskError{Task: task.Name, Err: err}
		var ce *CommandError
		if errors.As(err, &ce) {
			te.Tail = ce.Tail
		}
		l.Error().Err(err).Dur("elapsed", elapsed).Msgf("%s failed; aborting startup", task.Name)
		return te
	}

	log.Info().Int("ran", ran).Int("skipped", skipped).Int("tolerated_failures", tolerated).Msg("startup tasks complete")
	return nil
}
