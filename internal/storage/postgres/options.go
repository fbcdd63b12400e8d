package postgres

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// SSLMode represents PostgreSQL SSL connection modes.
type SSLMode string

const (
	SSLModeDisable SSLMode = "disable"
	SSLModeAllow   SSLMode = "allow"
	SSLModePrefer  SSLMode = "prefer"
	SSLModeRequire SSLMode = "require"
)

// Option is a functional option for configuring a Store.
type Option func(*options)

type options struct {
	host                      string
	port                      int
	user                      string
	password                  string
	database                  string
	sslMode                   SSLMode
	poolMaxConnections        *int32
	poolMinConnections        *int32
	poolMaxConnectionLifetime *time.Duration
}

func newOptions() *options {
	return &options{
		host:    "localhost",
		port:    5432,
		sslMode: SSLModePrefer,
	}
}

func WithHost(host string) Option {
	return func(o *options) { o.host = host }
}

func WithPort(port int) Option {
	return func(o *options) { o.port = port }
}

func WithUser(user string) Option {
	return func(o *options) { o.user = user }
}

func WithPassword(password string) Option {
	return func(o *options) { o.password = password }
}

func WithDatabase(database string) Option {
	return func(o *options) { o.database = database }
}

func WithSSLMode(mode SSLMode) Option {
	return func(o *options) { o.sslMode = mode }
}

func WithPoolMaxConnections(n int32) Option {
	return func(o *options) { o.poolMaxConnections = &n }
}

func WithPoolMinConnections(n int32) Option {
	return func(o *options) { o.poolMinConnections = &n }
}

func WithPoolMaxConnectionLifetime(d time.Duration) Option {
	return func(o *options) { o.poolMaxConnectionLifetime = &d }
}

func (o *options) validate() error {
	if o.host == "" {
		return errors.New("host cannot be empty")
	}
	if o.port <= 0 || o.port > 65535 {
		return fmt.Errorf("invalid port: %d", o.port)
	}
	if o.user == "" {
		return errors.New("user cannot be empty")
	}
	if o.database == "" {
		return errors.New("database cannot be empty")
	}
	return nil
}

func (o *options) connectionString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(o.host, strconv.Itoa(o.port)),
		Path:   "/" + o.database,
	}
	if o.password != "" {
		u.User = url.UserPassword(o.user, o.password)
	} else {
		u.User = url.User(o.user)
	}
	q := u.Query()
	q.Set("sslmode", string(o.sslMode))
	u.RawQuery = q.Encode()
	return u.String()
}
