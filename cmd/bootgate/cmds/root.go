package cmds

import (
	"context"
	"fmt"
	"io"

	"github.com/go-go-golems/bootgate/pkg/config"
	"github.com/go-go-golems/bootgate/pkg/gate"
	"github.com/go-go-golems/bootgate/pkg/launch"
	"github.com/go-go-golems/bootgate/pkg/plan"
	"github.com/go-go-golems/bootgate/pkg/probe"
	"github.com/go-go-golems/bootgate/pkg/startup"
	"github.com/go-go-golems/bootgate/pkg/tasks"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bootgate [flags] [--] command [args...]",
		Short: "bootgate waits for dependencies, runs startup tasks and hands off to the application",
		Long: "bootgate is a container entrypoint. It waits for PostgreSQL and Redis, runs the\n" +
			"Django startup tasks (migrate, collectstatic, createsuperuser, ...) and then\n" +
			"replaces itself with the given command.",
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.InitLoggerFromCobra(cmd)
		},
		RunE: run,
	}
	// everything after the first positional argument belongs to the application
	rootCmd.Flags().SetInterspersed(false)
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &config.Error{Key: "flags", Err: err}
	})
	config.AddFlags(rootCmd.Flags())
	return rootCmd
}

func run(cmd *cobra.Command, args []string) error {
	v := config.NewViper()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if len(args) == 0 && !cfg.DryRun {
		return &config.Error{Key: "command", Err: errors.New("no application command given")}
	}

	p, err := plan.Build(cfg, args)
	if err != nil {
		return err
	}
	log.Debug().
		Bool("use_sqlite", cfg.UseSQLite).
		Bool("debug", cfg.Debug).
		Dur("wait_timeout", cfg.Wait.Timeout).
		Str("launch_mode", cfg.LaunchMode).
		Int("dependencies", len(p.Dependencies)).
		Int("tasks", len(p.Tasks)).
		Msg("startup plan built")

	prober := probe.NewProber(probe.Options{
		Timeout:        cfg.Wait.Timeout,
		Interval:       cfg.Wait.Interval,
		AttemptTimeout: cfg.Wait.AttemptTimeout,
	})
	o := &startup.Orchestrator{
		Gate: gate.New(prober),
		Tasks: &tasks.Runner{
			Executor: &tasks.CommandExecutor{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()},
			DryRun:   cfg.DryRun,
		},
		Launcher: launch.New(launch.Mode(cfg.LaunchMode)),
		Opts: startup.Options{
			StartupDelay: cfg.StartupDelay,
			DryRun:       cfg.DryRun,
		},
	}
	return o.Run(cmd.Context(), p)
}

// Execute runs the root command and returns the process exit code. Errors are
// printed once to stderr; a forwarded application's own exit is not an error
// worth printing.
func Execute(version string, args []string, stderr io.Writer) int {
	rootCmd := NewRootCmd(version)
	if err := logging.AddLoggingLayerToRootCommand(rootCmd, "bootgate"); err != nil {
		_, _ = fmt.Fprintf(stderr, "bootgate: %v\n", err)
		return startup.ExitFailure
	}
	rootCmd.SetArgs(args)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(context.Background())
	var status *launch.ExitStatus
	if err != nil && !errors.As(err, &status) {
		_, _ = fmt.Fprintf(stderr, "bootgate: %v\n", err)
	}
	return startup.ExitCode(err)
}
