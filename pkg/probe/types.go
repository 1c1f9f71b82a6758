package probe

import (
	"fmt"
	"net"
	neturl "net/url"
	"strconv"
	"strings"
)

type Kind string

const (
	KindDatabase Kind = "database"
	KindCache    Kind = "cache"
	KindTCP      Kind = "tcp"
	KindHTTP     Kind = "http"
)

type Credentials struct {
	User     string
	Password string
}

// DependencySpec describes one external dependency gating startup.
type DependencySpec struct {
	Name        string
	Kind        Kind
	Host        string
	Port        int
	Credentials Credentials
	Database    string // postgres database name
	SSLMode     string
	DB          int    // redis logical database
	URL         string // http checks only
	Required    bool
}

func (s DependencySpec) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s DependencySpec) String() string {
	if s.Kind == KindHTTP {
		return fmt.Sprintf("%s (%s %s)", s.Name, s.Kind, redactURL(s.URL))
	}
	if s.Credentials.User != "" {
		return fmt.Sprintf("%s (%s %s@%s)", s.Name, s.Kind, s.Credentials.User, s.Address())
	}
	return fmt.Sprintf("%s (%s %s)", s.Name, s.Kind, s.Address())
}

// Validate rejects malformed addresses. It never touches the network.
func (s DependencySpec) Validate() error {
	if s.Name == "" {
		return &ConfigError{Dependency: "<unnamed>", Reason: "missing name"}
	}
	switch s.Kind {
	case KindDatabase, KindCache, KindTCP:
		if strings.TrimSpace(s.Host) == "" {
			return &ConfigError{Dependency: s.Name, Reason: "missing host"}
		}
		if strings.ContainsAny(s.Host, " /") {
			return &ConfigError{Dependency: s.Name, Reason: fmt.Sprintf("malformed host %q", s.Host)}
		}
		if s.Port <= 0 || s.Port > 65535 {
			return &ConfigError{Dependency: s.Name, Reason: fmt.Sprintf("port %d out of range", s.Port)}
		}
	case KindHTTP:
		u, err := neturl.Parse(s.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return &ConfigError{Dependency: s.Name, Reason: fmt.Sprintf("malformed url %q", redactURL(s.URL))}
		}
	default:
		return &ConfigError{Dependency: s.Name, Reason: fmt.Sprintf("unsupported kind %q", s.Kind)}
	}
	return nil
}

func redactURL(raw string) string {
	u, err := neturl.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
