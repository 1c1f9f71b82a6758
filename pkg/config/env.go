package config

import (
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	KeyUseSQLite          = "use_sqlite"
	KeyDBHost             = "db_host"
	KeyDBPort             = "db_port"
	KeyDBName             = "db_name"
	KeyDBUser             = "db_user"
	KeyDBPassword         = "db_password"
	KeyDBSSLMode          = "db_sslmode"
	KeyRedisHost          = "redis_host"
	KeyRedisPort          = "redis_port"
	KeyRedisPassword      = "redis_password"
	KeyRedisDB            = "redis_db"
	KeyRedisRequired      = "redis_required"
	KeyBrokerURL          = "celery_broker_url"
	KeyDebug              = "debug"
	KeySuperuserEmail     = "django_superuser_email"
	KeySuperuserPassword  = "django_superuser_password"
	KeyLoadFixtures       = "load_fixtures"
	KeyFixturePath        = "fixture_path"
	KeyCollectStatic      = "collect_static"
	KeyManageCommand      = "manage_command"
	KeyWaitTimeout        = "wait_timeout"
	KeyWaitInterval       = "wait_interval"
	KeyWaitAttemptTimeout = "wait_attempt_timeout"
	KeyStartupDelay       = "startup_delay"
	KeyLaunchMode         = "launch_mode"
	KeyPlanPath           = "bootgate_config"
	KeyDryRun             = "bootgate_dry_run"
)

const (
	LaunchModeExec    = "exec"
	LaunchModeForward = "forward"
)

type Config struct {
	// UseSQLite selects Django's embedded storage; the database is then not probed.
	UseSQLite     bool
	Database      Database
	Cache         Cache
	Debug         bool
	Superuser     Superuser
	Fixtures      Fixtures
	CollectStatic bool
	ManageCommand []string
	Wait          Wait
	StartupDelay  time.Duration
	LaunchMode    string
	PlanPath      string
	DryRun        bool
	Plan          *File
}

type Database struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

type Cache struct {
	Host     string
	Port     int
	Password string
	DB       int
	Required bool
}

type Superuser struct {
	Email    string
	Password string
}

func (s Superuser) Enabled() bool {
	return s.Email != "" && s.Password != ""
}

type Fixtures struct {
	Enabled bool
	Path    string
}

type Wait struct {
	// Timeout of zero polls forever.
	Timeout        time.Duration
	Interval       time.Duration
	AttemptTimeout time.Duration
}

// NewViper returns a viper instance reading the process environment with the
// deployment defaults.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault(KeyUseSQLite, "true")
	v.SetDefault(KeyDBHost, "localhost")
	v.SetDefault(KeyDBPort, "5432")
	v.SetDefault(KeyDBName, "kurutracker")
	v.SetDefault(KeyDBUser, "kurutracker_user")
	v.SetDefault(KeyDBPassword, "changeme123")
	v.SetDefault(KeyDBSSLMode, "disable")
	v.SetDefault(KeyBrokerURL, "redis://localhost:6379/0")
	v.SetDefault(KeyRedisRequired, "true")
	v.SetDefault(KeyDebug, "false")
	v.SetDefault(KeyLoadFixtures, "false")
	v.SetDefault(KeyFixturePath, "fixtures/initial_data.json")
	v.SetDefault(KeyCollectStatic, "true")
	v.SetDefault(KeyManageCommand, "python manage.py")
	v.SetDefault(KeyWaitTimeout, "60s")
	v.SetDefault(KeyWaitInterval, "1s")
	v.SetDefault(KeyWaitAttemptTimeout, "2s")
	v.SetDefault(KeyStartupDelay, "0")
	v.SetDefault(KeyLaunchMode, LaunchModeExec)
	v.SetDefault(KeyPlanPath, DefaultConfigFilename)
	v.SetDefault(KeyDryRun, "false")
	return v
}

// AddFlags registers the flags that override environment variables.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to the plan file (env BOOTGATE_CONFIG, default "+DefaultConfigFilename+")")
	fs.Bool("dry-run", false, "Log the startup plan without probing, running tasks or launching")
	fs.String("wait-timeout", "", "Total time to wait for each dependency; 0 waits forever (env WAIT_TIMEOUT)")
	fs.String("wait-interval", "", "Delay between readiness attempts (env WAIT_INTERVAL)")
	fs.String("launch-mode", "", "exec replaces the process, forward spawns and relays signals (env LAUNCH_MODE)")
}

func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	bindings := map[string]string{
		KeyPlanPath:     "config",
		KeyDryRun:       "dry-run",
		KeyWaitTimeout:  "wait-timeout",
		KeyWaitInterval: "wait-interval",
		KeyLaunchMode:   "launch-mode",
	}
	for key, name := range bindings {
		f := fs.Lookup(name)
		if f == nil {
			return errors.Errorf("flag --%s not registered", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "bind --%s", name)
		}
	}
	return nil
}

// Load builds the configuration once. It also reads the optional plan file.
func Load(v *viper.Viper) (Config, error) {
	p := &parser{v: v}

	cfg := Config{
		UseSQLite: p.bool(KeyUseSQLite),
		Debug:     p.bool(KeyDebug),
		Superuser: Superuser{
			Email:    p.str(KeySuperuserEmail),
			Password: v.GetString(KeySuperuserPassword),
		},
		Fixtures: Fixtures{
			Enabled: p.bool(KeyLoadFixtures),
			Path:    p.str(KeyFixturePath),
		},
		CollectStatic: p.bool(KeyCollectStatic),
		ManageCommand: strings.Fields(v.GetString(KeyManageCommand)),
		Wait: Wait{
			Timeout:        p.duration(KeyWaitTimeout),
			Interval:       p.duration(KeyWaitInterval),
			AttemptTimeout: p.duration(KeyWaitAttemptTimeout),
		},
		StartupDelay: p.duration(KeyStartupDelay),
		LaunchMode:   strings.ToLower(p.str(KeyLaunchMode)),
		PlanPath:     p.str(KeyPlanPath),
		DryRun:       p.bool(KeyDryRun),
	}
	// settings of a dependency that is never probed are not parsed
	if !cfg.UseSQLite {
		cfg.Database = p.database()
	}
	cfg.Cache = Cache{Required: p.bool(KeyRedisRequired)}
	if cfg.Cache.Required {
		cfg.Cache = p.cache()
	}

	if p.err != nil {
		return Config{}, p.err
	}
	if len(cfg.ManageCommand) == 0 {
		return Config{}, &Error{Key: envName(KeyManageCommand), Err: errors.New("empty command")}
	}
	if cfg.Wait.Interval <= 0 {
		return Config{}, &Error{Key: envName(KeyWaitInterval), Err: errors.New("must be > 0")}
	}
	switch cfg.LaunchMode {
	case LaunchModeExec, LaunchModeForward:
	default:
		return Config{}, &Error{Key: envName(KeyLaunchMode), Err: errors.Errorf("unknown mode %q", cfg.LaunchMode)}
	}

	plan, err := LoadOptional(cfg.PlanPath)
	if err != nil {
		return Config{}, err
	}
	cfg.Plan = plan
	return cfg, nil
}

type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = &Error{Key: envName(key), Err: err}
	}
}

func (p *parser) str(key string) string {
	return strings.TrimSpace(p.v.GetString(key))
}

func (p *parser) bool(key string) bool {
	raw := strings.ToLower(p.str(key))
	switch raw {
	case "true", "1", "yes", "on", "y", "t":
		return true
	case "false", "0", "no", "off", "n", "f", "":
		return false
	}
	p.fail(key, errors.Errorf("not a boolean: %q", raw))
	return false
}

func (p *parser) int(key string) int {
	raw := p.str(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, errors.Errorf("not an integer: %q", raw))
		return 0
	}
	return n
}

func (p *parser) duration(key string) time.Duration {
	d, err := ParseDuration(p.str(key))
	if err != nil {
		p.fail(key, err)
	}
	return d
}

func (p *parser) database() Database {
	return Database{
		Host:     p.str(KeyDBHost),
		Port:     p.int(KeyDBPort),
		Name:     p.str(KeyDBName),
		User:     p.str(KeyDBUser),
		Password: p.v.GetString(KeyDBPassword),
		SSLMode:  p.str(KeyDBSSLMode),
	}
}

// cache prefers REDIS_* variables and falls back to the Celery broker URL.
// Only called when the cache is required.
func (p *parser) cache() Cache {
	c := Cache{Required: true}

	broker := p.str(KeyBrokerURL)
	if broker != "" {
		u, err := neturl.Parse(broker)
		if err != nil || u.Host == "" {
			p.fail(KeyBrokerURL, errors.Errorf("malformed broker url %q", redactURL(broker)))
			return c
		}
		c.Host = u.Hostname()
		if port := u.Port(); port != "" {
			n, err := strconv.Atoi(port)
			if err != nil {
				p.fail(KeyBrokerURL, errors.Errorf("malformed broker port %q", port))
				return c
			}
			c.Port = n
		} else {
			c.Port = 6379
		}
		if u.User != nil {
			if pw, ok := u.User.Password(); ok {
				c.Password = pw
			}
		}
		if db := strings.TrimPrefix(u.Path, "/"); db != "" {
			n, err := strconv.Atoi(db)
			if err != nil {
				p.fail(KeyBrokerURL, errors.Errorf("malformed broker db %q", db))
				return c
			}
			c.DB = n
		}
	}

	if host := p.str(KeyRedisHost); host != "" {
		c.Host = host
	}
	if p.str(KeyRedisPort) != "" {
		c.Port = p.int(KeyRedisPort)
	}
	if pw := p.v.GetString(KeyRedisPassword); pw != "" {
		c.Password = pw
	}
	if p.str(KeyRedisDB) != "" {
		c.DB = p.int(KeyRedisDB)
	}
	return c
}

// ParseDuration accepts Go durations and bare integers, which are seconds.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 {
			return 0, errors.Errorf("negative duration %q", raw)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Errorf("not a duration: %q", raw)
	}
	if d < 0 {
		return 0, errors.Errorf("negative duration %q", raw)
	}
	return d, nil
}

func envName(key string) string {
	return strings.ToUpper(key)
}

func redactURL(raw string) string {
	u, err := neturl.Parse(raw)
	if err != nil || u.User == nil {
		if i := strings.LastIndex(raw, "@"); i >= 0 {
			return "***" + raw[i:]
		}
		return raw
	}
	return u.Redacted()
}
