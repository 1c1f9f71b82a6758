package startup

import (
	"context"
	"time"

	"github.com/go-go-golems/bootgate/pkg/config"
	"github.com/go-go-golems/bootgate/pkg/launch"
	"github.com/go-go-golems/bootgate/pkg/plan"
	"github.com/go-go-golems/bootgate/pkg/probe"
	"github.com/go-go-golems/bootgate/pkg/tasks"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Gater interface {
	Wait(ctx context.Context, specs []probe.DependencySpec) error
}

type TaskRunner interface {
	Run(ctx context.Context, ts []tasks.StartupTask) error
}

type Launcher interface {
	Launch(spec launch.LaunchSpec) error
}

type Options struct {
	// StartupDelay is slept before the first probe.
	StartupDelay time.Duration
	// DryRun skips probing and launching. The task runner is expected to be
	// in dry-run mode as well.
	DryRun bool
}

// Orchestrator runs the three startup stages in order and stops at the first
// failing one.
type Orchestrator struct {
	Gate     Gater
	Tasks    TaskRunner
	Launcher Launcher
	Opts     Options
}

// Run only returns on failure, in dry-run mode, or after a forwarded child
// exits.
func (o *Orchestrator) Run(ctx context.Context, p plan.Plan) error {
	if o.Gate == nil || o.Tasks == nil || o.Launcher == nil {
		return errors.New("orchestrator is missing a stage")
	}

	if o.Opts.StartupDelay > 0 {
		log.Info().Dur("delay", o.Opts.StartupDelay).Msg("delaying startup")
		select {
		case <-time.After(o.Opts.StartupDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if o.Opts.DryRun {
		for _, spec := range p.Dependencies {
			if spec.Required {
				log.Info().Str("dependency", spec.Name).Msgf("would wait for %s", spec)
			} else {
				log.Info().Str("dependency", spec.Name).Msgf("would skip %s: not required", spec.Name)
			}
		}
	} else {
		log.Info().Msg("waiting for dependencies")
		if err := o.Gate.Wait(ctx, p.Dependencies); err != nil {
			return err
		}
	}

	log.Info().Int("tasks", len(p.Tasks)).Msg("running startup tasks")
	if err := o.Tasks.Run(ctx, p.Tasks); err != nil {
		return err
	}

	if o.Opts.DryRun {
		log.Info().Strs("argv", p.Launch.Argv).Msg("would launch application")
		return nil
	}
	return o.Launcher.Launch(p.Launch)
}

const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitConfiguration     = 2
	ExitDependencyTimeout = 3
	ExitTaskFailure       = 4
	ExitLaunchFailure     = 5
)

// ExitCode maps an error returned by Run (or by configuration loading) to the
// process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var status *launch.ExitStatus
	if errors.As(err, &status) {
		return status.Code
	}
	var launchErr *launch.LaunchError
	if errors.As(err, &launchErr) {
		return ExitLaunchFailure
	}
	var taskErr *tasks.TaskError
	if errors.As(err, &taskErr) {
		return ExitTaskFailure
	}
	var timeoutErr *probe.TimeoutError
	if errors.As(err, &timeoutErr) {
		return ExitDependencyTimeout
	}
	var probeCfgErr *probe.ConfigError
	if errors.As(err, &probeCfgErr) {
		return ExitConfiguration
	}
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return ExitConfiguration
	}
	return ExitFailure
}
