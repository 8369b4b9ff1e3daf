package duco

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/bardlex/ducominer/internal/config"
	"github.com/bardlex/ducominer/pkg/errors"
	"github.com/bardlex/ducominer/pkg/log"
)

// DialerConfig holds the connection limits applied to every session
type DialerConfig struct {
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int
	// MaxDifficulty of zero accepts any positive difficulty.
	MaxDifficulty uint64
}

// DialerConfigFrom extracts the dialer settings from the global config
func DialerConfigFrom(cfg *config.Config) DialerConfig {
	return DialerConfig{
		DialTimeout:    cfg.DialTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxMessageSize: cfg.MaxMessageSize,
	}
}

func (c DialerConfig) withDefaults() DialerConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	return c
}

// Dialer opens sessions to a DUCO pool
type Dialer struct {
	cfg      DialerConfig
	resolver *net.Resolver
	logger   *log.Logger
}

// NewDialer creates a new dialer
func NewDialer(cfg DialerConfig, logger *log.Logger) *Dialer {
	return &Dialer{
		cfg:      cfg.withDefaults(),
		resolver: net.DefaultResolver,
		logger:   logger.WithComponent("duco"),
	}
}

// Connect resolves the pool host, dials it and reads the greeting line. On
// any failure the socket is closed and a network error is returned; no
// half-open session escapes.
func (d *Dialer) Connect(ctx context.Context, params config.ConnectionParams) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.cfg.DialTimeout)
	defer cancel()

	addrs, err := d.resolver.LookupHost(dialCtx, params.Host)
	if err != nil {
		return nil, d.connectError(ctx, err, "resolve", "failed to resolve pool host", params)
	}

	conn, err := d.dialAny(dialCtx, addrs, params.Port)
	if err != nil {
		return nil, d.connectError(ctx, err, "dial", "failed to connect to pool", params)
	}

	session := newSession(conn, d.logger, d.cfg)
	session.logger.LogConnection("connected", session.RemoteAddr())

	greeting, err := session.readLine(ctx)
	if err != nil {
		_ = session.Close()
		return nil, d.connectError(ctx, err, "greeting", "failed to read pool greeting", params)
	}
	session.greeting = greeting
	session.logger.Info("pool greeting", "version", greeting)

	return session, nil
}

// dialAny tries each resolved address in order and returns the first
// connection that succeeds.
func (d *Dialer) dialAny(ctx context.Context, addrs []string, port int) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: d.cfg.DialTimeout}

	var lastErr error
	for _, addr := range addrs {
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = &net.AddrError{Err: "no addresses", Addr: ""}
	}
	return nil, lastErr
}

// connectError returns ctx's error when the caller gave up. Anything else,
// including a dial or lookup that ran past DialTimeout, is a retryable
// network error.
func (d *Dialer) connectError(ctx context.Context, err error, operation, message string, params config.ConnectionParams) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	se := errors.Wrap(err, errors.ErrorTypeNetwork, operation, message).
		WithContext("host", params.Host).
		WithContext("port", params.Port)
	se.Retryable = true
	return se
}

// Disconnect closes s. A nil or already closed session is a no-op.
func Disconnect(s *Session) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		s.logger.WithError(err).Warn("failed to close session")
	}
}
