package probe

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-go-golems/bootgate/pkg/probe/probetest"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

var fastOpts = Options{Timeout: 300 * time.Millisecond, Interval: 20 * time.Millisecond, AttemptTimeout: 200 * time.Millisecond}

func TestNewChecker_RejectsMalformedAddresses(t *testing.T) {
	cases := []struct {
		name string
		spec DependencySpec
	}{
		{"missing host", DependencySpec{Name: "db", Kind: KindDatabase, Port: 5432}},
		{"port zero", DependencySpec{Name: "db", Kind: KindDatabase, Host: "db"}},
		{"port too large", DependencySpec{Name: "cache", Kind: KindCache, Host: "redis", Port: 70000}},
		{"host with slash", DependencySpec{Name: "cache", Kind: KindCache, Host: "redis/0", Port: 6379}},
		{"unknown kind", DependencySpec{Name: "mq", Kind: "amqp", Host: "mq", Port: 5672}},
		{"bad url", DependencySpec{Name: "api", Kind: KindHTTP, URL: "not a url"}},
		{"missing name", DependencySpec{Kind: KindTCP, Host: "x", Port: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewChecker(tc.spec)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestWait_ReadyAfterRetries(t *testing.T) {
	calls := 0
	checker := CheckerFunc(func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	err := Wait(context.Background(), DependencySpec{Name: "db", Kind: KindTCP, Host: "x", Port: 1}, checker,
		Options{Timeout: 2 * time.Second, Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWait_TimesOut(t *testing.T) {
	calls := 0
	checker := CheckerFunc(func(ctx context.Context) error {
		calls++
		return errors.New("connection refused")
	})

	start := time.Now()
	err := Wait(context.Background(), DependencySpec{Name: "db", Kind: KindTCP, Host: "x", Port: 1}, checker, fastOpts)

	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout), "got %v", err)
	require.Equal(t, "db", timeout.Dependency)
	require.Equal(t, calls, timeout.Attempts)
	require.GreaterOrEqual(t, calls, 2)
	require.GreaterOrEqual(t, time.Since(start), fastOpts.Timeout)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestWait_UnboundedPollsUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	calls := 0
	checker := CheckerFunc(func(ctx context.Context) error {
		calls++
		return errors.New("connection refused")
	})

	err := Wait(ctx, DependencySpec{Name: "db", Kind: KindTCP, Host: "x", Port: 1}, checker,
		Options{Interval: 10 * time.Millisecond})
	require.Error(t, err)

	var timeout *TimeoutError
	require.False(t, errors.As(err, &timeout))
	require.Greater(t, calls, 3)
}

func TestProber_RedisReady(t *testing.T) {
	srv := probetest.NewRedisServer(t)

	p := NewProber(fastOpts)
	err := p.Probe(context.Background(), DependencySpec{Name: "redis", Kind: KindCache, Host: srv.Host, Port: srv.Port, Required: true})
	require.NoError(t, err)
	require.GreaterOrEqual(t, srv.Pings(), int64(1))
}

func TestProber_RedisRequiresExactPong(t *testing.T) {
	srv := probetest.NewRedisServerReplying(t, "LOADING")

	p := NewProber(fastOpts)
	err := p.Probe(context.Background(), DependencySpec{Name: "redis", Kind: KindCache, Host: srv.Host, Port: srv.Port, Required: true})

	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout), "got %v", err)
	require.GreaterOrEqual(t, srv.Pings(), int64(1))
}

func TestProber_DatabaseUnreachableTimesOut(t *testing.T) {
	port := probetest.ClosedPort(t)

	p := NewProber(fastOpts)
	err := p.Probe(context.Background(), DependencySpec{
		Name:        "postgres",
		Kind:        KindDatabase,
		Host:        "127.0.0.1",
		Port:        port,
		Credentials: Credentials{User: "app", Password: "secret"},
		Database:    "app",
		SSLMode:     "disable",
		Required:    true,
	})

	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout), "got %v", err)
	require.NotContains(t, err.Error(), "secret")
}

func TestIsAuthFailure(t *testing.T) {
	require.True(t, isAuthFailure(errors.Wrap(&pgconn.PgError{Code: "28P01"}, "postgres connect")))
	require.True(t, isAuthFailure(&pgconn.PgError{Code: "28000"}))
	require.False(t, isAuthFailure(&pgconn.PgError{Code: "57P03"}))
	require.False(t, isAuthFailure(errors.New("connection refused")))
}

func TestPostgresChecker_WarnsOnceOnRejectedCredentials(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	c, err := newPostgresChecker(DependencySpec{
		Name: "postgres", Kind: KindDatabase, Host: "db", Port: 5432,
		Credentials: Credentials{User: "app", Password: "wrong"}, Database: "app",
	})
	require.NoError(t, err)

	rejected := errors.Wrap(&pgconn.PgError{Severity: "FATAL", Code: "28P01", Message: "password authentication failed"}, "postgres connect")
	c.observe(errors.New("connection refused"))
	require.Zero(t, buf.Len())
	c.observe(rejected)
	c.observe(rejected)

	require.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("rejected the credentials")))
	require.Contains(t, buf.String(), `"level":"warn"`)
	require.NotContains(t, buf.String(), "wrong")
}

func TestProber_TCPReady(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, NewProber(fastOpts).Probe(context.Background(), DependencySpec{Name: "search", Kind: KindTCP, Host: "127.0.0.1", Port: port}))
}

func TestProber_HTTPStatusRules(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	spec := DependencySpec{Name: "api", Kind: KindHTTP, URL: srv.URL + "/health"}
	require.NoError(t, NewProber(fastOpts).Probe(context.Background(), spec))

	status.Store(http.StatusServiceUnavailable)
	err := NewProber(fastOpts).Probe(context.Background(), spec)
	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout), "got %v", err)
}

func TestDependencySpec_StringHidesPassword(t *testing.T) {
	spec := DependencySpec{
		Name:        "postgres",
		Kind:        KindDatabase,
		Host:        "db",
		Port:        5432,
		Credentials: Credentials{User: "app", Password: "hunter2"},
	}
	require.Equal(t, "postgres (database app@db:5432)", spec.String())
	require.NotContains(t, spec.String(), "hunter2")
}
