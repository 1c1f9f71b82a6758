package probe

import (
	"context"
	"net"
	"net/http"
	neturl "net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Checker performs a single readiness attempt. A nil error means ready.
type Checker interface {
	Check(ctx context.Context) error
}

type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// NewChecker validates spec and returns the checker for its kind.
func NewChecker(spec DependencySpec) (Checker, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Kind {
	case KindDatabase:
		return newPostgresChecker(spec)
	case KindCache:
		return &redisChecker{spec: spec}, nil
	case KindTCP:
		return &tcpChecker{address: spec.Address()}, nil
	case KindHTTP:
		return &httpChecker{url: spec.URL}, nil
	}
	return nil, &ConfigError{Dependency: spec.Name, Reason: "unsupported kind " + string(spec.Kind)}
}

type postgresChecker struct {
	name string
	cfg  *pgx.ConnConfig

	authWarned atomic.Bool
}

func newPostgresChecker(spec DependencySpec) (*postgresChecker, error) {
	u := &neturl.URL{
		Scheme: "postgres",
		Host:   spec.Address(),
		Path:   "/" + spec.Database,
	}
	if spec.Credentials.User != "" {
		u.User = neturl.UserPassword(spec.Credentials.User, spec.Credentials.Password)
	}
	q := neturl.Values{}
	if spec.SSLMode != "" {
		q.Set("sslmode", spec.SSLMode)
	}
	q.Set("application_name", "bootgate")
	u.RawQuery = q.Encode()

	cfg, err := pgx.ParseConfig(u.String())
	if err != nil {
		return nil, &ConfigError{Dependency: spec.Name, Reason: "unparsable connection settings: " + err.Error()}
	}
	return &postgresChecker{name: spec.Name, cfg: cfg}, nil
}

// Check treats a completed handshake as ready; the trivial query is informational.
func (c *postgresChecker) Check(ctx context.Context) error {
	conn, err := pgx.ConnectConfig(ctx, c.cfg.Copy())
	if err != nil {
		c.observe(err)
		return errors.Wrap(err, "postgres connect")
	}
	defer func() { _ = conn.Close(context.Background()) }()

	var one int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		log.Debug().Str("dependency", c.name).Err(err).Msg("handshake ok, probe query failed")
	}
	return nil
}

// observe warns once when the server answers but rejects the credentials.
// Polling goes on: the role may still be provisioned by an init script.
func (c *postgresChecker) observe(err error) {
	if !isAuthFailure(err) || c.authWarned.Swap(true) {
		return
	}
	log.Warn().
		Str("dependency", c.name).
		Str("user", c.cfg.User).
		Err(err).
		Msg("postgres is up but rejected the credentials; check DB_USER and DB_PASSWORD")
}

// isAuthFailure matches SQLSTATE class 28 (invalid authorization).
func isAuthFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "28")
}

type redisChecker struct {
	spec DependencySpec
}

func (c *redisChecker) Check(ctx context.Context) error {
	opts := &redis.Options{
		Addr:            c.spec.Address(),
		Username:        c.spec.Credentials.User,
		Password:        c.spec.Credentials.Password,
		DB:              c.spec.DB,
		MaxRetries:      -1,
		PoolSize:        1,
		DisableIdentity: true,
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) > 0 {
		d := time.Until(deadline)
		opts.DialTimeout = d
		opts.ReadTimeout = d
		opts.WriteTimeout = d
	}
	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()

	reply, err := client.Ping(ctx).Result()
	if err != nil {
		return errors.Wrap(err, "redis ping")
	}
	if reply != "PONG" {
		return errors.Errorf("redis ping: unexpected reply %q", reply)
	}
	return nil
}

type tcpChecker struct {
	address string
}

func (c *tcpChecker) Check(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

type httpChecker struct {
	url string
}

func (c *httpChecker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 500 {
		return nil
	}
	return errors.Errorf("http status %d", resp.StatusCode)
}
