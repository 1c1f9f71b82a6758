package plan

import (
	"sort"

	"github.com/go-go-golems/bootgate/pkg/config"
	"github.com/go-go-golems/bootgate/pkg/launch"
	"github.com/go-go-golems/bootgate/pkg/probe"
	"github.com/go-go-golems/bootgate/pkg/tasks"
	"github.com/pkg/errors"
)

const (
	DependencyDatabase = "postgres"
	DependencyCache    = "redis"
)

// Plan is everything one invocation will do, in order.
type Plan struct {
	Dependencies []probe.DependencySpec
	Tasks        []tasks.StartupTask
	Launch       launch.LaunchSpec
}

func Build(cfg config.Config, argv []string) (Plan, error) {
	deps, err := Dependencies(cfg)
	if err != nil {
		return Plan{}, err
	}
	ts, err := Tasks(cfg)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Dependencies: deps,
		Tasks:        ts,
		Launch:       Launch(argv),
	}, nil
}

// Dependencies lists the database, then the cache, then plan-file
// dependencies in file order.
func Dependencies(cfg config.Config) ([]probe.DependencySpec, error) {
	out := []probe.DependencySpec{
		{
			Name: DependencyDatabase,
			Kind: probe.KindDatabase,
			Host: cfg.Database.Host,
			Port: cfg.Database.Port,
			Credentials: probe.Credentials{
				User:     cfg.Database.User,
				Password: cfg.Database.Password,
			},
			Database: cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
			Required: !cfg.UseSQLite,
		},
		{
			Name:        DependencyCache,
			Kind:        probe.KindCache,
			Host:        cfg.Cache.Host,
			Port:        cfg.Cache.Port,
			Credentials: probe.Credentials{Password: cfg.Cache.Password},
			DB:          cfg.Cache.DB,
			Required:    cfg.Cache.Required,
		},
	}
	if cfg.Plan == nil {
		return out, nil
	}

	seen := map[string]bool{DependencyDatabase: true, DependencyCache: true}
	for _, d := range cfg.Plan.Dependencies {
		if seen[d.Name] {
			return nil, &config.Error{Key: cfg.PlanPath, Err: errors.Errorf("dependency name collision: %s", d.Name)}
		}
		seen[d.Name] = true
		out = append(out, probe.DependencySpec{
			Name:        d.Name,
			Kind:        probe.Kind(d.Kind),
			Host:        d.Host,
			Port:        d.Port,
			Credentials: probe.Credentials{User: d.User, Password: d.Password},
			Database:    d.Database,
			URL:         d.URL,
			Required:    d.IsRequired(),
		})
	}
	return out, nil
}

// Tasks returns the built-in Django tasks followed by the plan-file tasks
// ordered by priority. Ties keep file order.
func Tasks(cfg config.Config) ([]tasks.StartupTask, error) {
	manage := func(args ...string) []string {
		return append(append([]string{}, cfg.ManageCommand...), args...)
	}

	out := []tasks.StartupTask{
		{
			Name:    "migrate",
			Command: manage("migrate", "--noinput"),
		},
		{
			Name:         "collectstatic",
			Command:      manage("collectstatic", "--noinput"),
			BestEffort:   true,
			Precondition: tasks.Enabled("COLLECT_STATIC", cfg.CollectStatic),
		},
		{
			// fails harmlessly when the account already exists
			Name:       "createsuperuser",
			Command:    manage("createsuperuser", "--noinput", "--email", cfg.Superuser.Email),
			BestEffort: true,
			Env: map[string]string{
				"DJANGO_SUPERUSER_EMAIL":    cfg.Superuser.Email,
				"DJANGO_SUPERUSER_PASSWORD": cfg.Superuser.Password,
			},
			Precondition: superuserConfigured(cfg.Superuser),
		},
		{
			Name:         "populate_locations",
			Command:      manage("populate_locations"),
			BestEffort:   true,
			Precondition: tasks.Enabled("DEBUG", cfg.Debug),
		},
		{
			Name:    "loaddata",
			Command: manage("loaddata", cfg.Fixtures.Path),
			Precondition: tasks.All(
				tasks.Enabled("LOAD_FIXTURES", cfg.Fixtures.Enabled),
				tasks.FileExists(cfg.Fixtures.Path),
			),
		},
	}
	if cfg.Plan == nil || len(cfg.Plan.Tasks) == 0 {
		return out, nil
	}

	seen := map[string]bool{}
	for _, t := range out {
		seen[t.Name] = true
	}
	extra := append([]config.Task{}, cfg.Plan.Tasks...)
	sort.SliceStable(extra, func(i, j int) bool {
		return extra[i].Priority < extra[j].Priority
	})
	for _, t := range extra {
		if seen[t.Name] {
			return nil, &config.Error{Key: cfg.PlanPath, Err: errors.Errorf("task name collision: %s", t.Name)}
		}
		seen[t.Name] = true

		var pre []tasks.Precondition
		if t.OnlyInDebug {
			pre = append(pre, tasks.Enabled("DEBUG", cfg.Debug))
		}
		if t.OnlyIfFile != "" {
			pre = append(pre, tasks.FileExists(t.OnlyIfFile))
		}
		st := tasks.StartupTask{
			Name:       t.Name,
			Command:    append([]string{}, t.Command...),
			Dir:        t.Dir,
			Env:        t.Env,
			BestEffort: t.BestEffort,
		}
		if len(pre) > 0 {
			st.Precondition = tasks.All(pre...)
		}
		out = append(out, st)
	}
	return out, nil
}

// Launch passes the trailing command through untouched, with the
// orchestrator's environment.
func Launch(argv []string) launch.LaunchSpec {
	return launch.LaunchSpec{Argv: append([]string{}, argv...)}
}

func superuserConfigured(s config.Superuser) tasks.Precondition {
	return func() (bool, string) {
		if s.Enabled() {
			return true, ""
		}
		return false, "DJANGO_SUPERUSER_EMAIL and DJANGO_SUPERUSER_PASSWORD are not both set"
	}
}
