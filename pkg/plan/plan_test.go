package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/bootgate/pkg/config"
	"github.com/go-go-golems/bootgate/pkg/probe"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func baseConfig() config.Config {
	return config.Config{
		UseSQLite: true,
		Database: config.Database{
			Host: "db", Port: 5432, Name: "app", User: "app", Password: "pw", SSLMode: "disable",
		},
		Cache:         config.Cache{Host: "redis", Port: 6379, Required: true},
		CollectStatic: true,
		ManageCommand: []string{"python", "manage.py"},
		Fixtures:      config.Fixtures{Path: "fixtures/initial_data.json"},
		Plan:          &config.File{},
	}
}

func names(p Plan) []string {
	var out []string
	for _, t := range p.Tasks {
		out = append(out, t.Name)
	}
	return out
}

func TestDependencies_SQLiteSkipsDatabase(t *testing.T) {
	cfg := baseConfig()
	deps, err := Dependencies(cfg)
	require.NoError(t, err)
	require.Len(t, deps, 2)
	require.Equal(t, DependencyDatabase, deps[0].Name)
	require.False(t, deps[0].Required)
	require.Equal(t, DependencyCache, deps[1].Name)
	require.True(t, deps[1].Required)

	cfg.UseSQLite = false
	deps, err = Dependencies(cfg)
	require.NoError(t, err)
	require.True(t, deps[0].Required)
	require.Equal(t, probe.Credentials{User: "app", Password: "pw"}, deps[0].Credentials)
}

func TestDependencies_PlanFileAppended(t *testing.T) {
	cfg := baseConfig()
	optional := false
	cfg.Plan.Dependencies = []config.Dependency{
		{Name: "search", Kind: "tcp", Host: "opensearch", Port: 9200},
		{Name: "api", Kind: "http", URL: "http://api/healthz", Required: &optional},
	}
	deps, err := Dependencies(cfg)
	require.NoError(t, err)
	require.Len(t, deps, 4)
	require.Equal(t, probe.KindTCP, deps[2].Kind)
	require.True(t, deps[2].Required)
	require.Equal(t, "http://api/healthz", deps[3].URL)
	require.False(t, deps[3].Required)
}

func TestDependencies_NameCollision(t *testing.T) {
	cfg := baseConfig()
	cfg.Plan.Dependencies = []config.Dependency{{Name: "redis", Kind: "tcp", Host: "x", Port: 1}}
	_, err := Dependencies(cfg)
	var ce *config.Error
	require.True(t, errors.As(err, &ce), "got %v", err)
}

func TestTasks_BuiltinOrder(t *testing.T) {
	p, err := Build(baseConfig(), []string{"gunicorn"})
	require.NoError(t, err)
	require.Equal(t, []string{"migrate", "collectstatic", "createsuperuser", "populate_locations", "loaddata"}, names(p))
	require.Equal(t, []string{"python", "manage.py", "migrate", "--noinput"}, p.Tasks[0].Command)
	require.Equal(t, []string{"gunicorn"}, p.Launch.Argv)
	require.False(t, p.Tasks[0].BestEffort)
	require.True(t, p.Tasks[1].BestEffort)
	require.False(t, p.Tasks[4].BestEffort)
}

func TestTasks_Preconditions(t *testing.T) {
	cfg := baseConfig()
	ts, err := Tasks(cfg)
	require.NoError(t, err)

	run := map[string]bool{}
	for _, task := range ts {
		ok := true
		if task.Precondition != nil {
			ok, _ = task.Precondition()
		}
		run[task.Name] = ok
	}
	require.Equal(t, map[string]bool{
		"migrate":            true,
		"collectstatic":      true,
		"createsuperuser":    false,
		"populate_locations": false,
		"loaddata":           false,
	}, run)
}

func TestTasks_SuperuserAndFixtures(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "initial_data.json")
	require.NoError(t, os.WriteFile(fixture, []byte("[]"), 0o644))

	cfg := baseConfig()
	cfg.Superuser = config.Superuser{Email: "admin@example.com", Password: "s3cret"}
	cfg.Fixtures = config.Fixtures{Enabled: true, Path: fixture}
	cfg.Debug = true

	ts, err := Tasks(cfg)
	require.NoError(t, err)
	for _, task := range ts {
		if task.Precondition == nil {
			continue
		}
		ok, reason := task.Precondition()
		require.True(t, ok, "%s skipped: %s", task.Name, reason)
	}
	require.Equal(t, []string{"python", "manage.py", "createsuperuser", "--noinput", "--email", "admin@example.com"}, ts[2].Command)
	require.Equal(t, "s3cret", ts[2].Env["DJANGO_SUPERUSER_PASSWORD"])
	require.Equal(t, []string{"python", "manage.py", "loaddata", fixture}, ts[4].Command)
}

func TestTasks_PlanFileSortedByPriority(t *testing.T) {
	cfg := baseConfig()
	cfg.Plan.Tasks = []config.Task{
		{Name: "late", Command: []string{"late"}, Priority: 20},
		{Name: "early-a", Command: []string{"a"}, Priority: 5},
		{Name: "early-b", Command: []string{"b"}, Priority: 5},
		{Name: "debug-only", Command: []string{"d"}, OnlyInDebug: true},
	}
	p, err := Build(cfg, nil)
	require.NoError(t, err)
	require.Equal(t, []string{
		"migrate", "collectstatic", "createsuperuser", "populate_locations", "loaddata",
		"debug-only", "early-a", "early-b", "late",
	}, names(p))

	ok, _ := p.Tasks[5].Precondition()
	require.False(t, ok)
	require.Nil(t, p.Tasks[6].Precondition)
}

func TestTasks_NameCollision(t *testing.T) {
	cfg := baseConfig()
	cfg.Plan.Tasks = []config.Task{{Name: "migrate", Command: []string{"x"}}}
	_, err := Tasks(cfg)
	var ce *config.Error
	require.True(t, errors.As(err, &ce), "got %v", err)
}
