package duco

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/bardlex/ducominer/internal/pow"
	"github.com/bardlex/ducominer/internal/validation"
	"github.com/bardlex/ducominer/pkg/errors"
	"github.com/bardlex/ducominer/pkg/log"
)

// Session represents an open connection to a DUCO pool
type Session struct {
	conn      net.Conn
	scanner   *bufio.Scanner
	logger    *log.Logger
	validator *validation.JobValidator

	greeting string

	// Connection management
	readTimeout  time.Duration
	writeTimeout time.Duration

	// Synchronization
	mu     sync.Mutex
	closed bool
}

func newSession(conn net.Conn, logger *log.Logger, cfg DialerConfig) *Session {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, cfg.MaxMessageSize), cfg.MaxMessageSize)

	return &Session{
		conn:         conn,
		scanner:      scanner,
		logger:       logger.WithFields("remote_addr", conn.RemoteAddr().String()),
		validator:    validation.NewJobValidator(cfg.MaxDifficulty),
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
}

// RequestJob sends a JOB request and returns the validated job
func (s *Session) RequestJob(ctx context.Context, req JobRequest) (*pow.Job, error) {
	if err := s.writeLine(ctx, MarshalJobRequest(req)); err != nil {
		return nil, err
	}

	line, err := s.readLine(ctx)
	if err != nil {
		return nil, err
	}

	job, err := ParseJob(line)
	if err != nil {
		return nil, err
	}

	if err := s.validator.ValidateJob(job); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "request_job", "pool sent an invalid job")
	}

	return job, nil
}

// SubmitResult sends a share and classifies the pool's response
func (s *Session) SubmitResult(ctx context.Context, share Share) (*SubmissionResult, error) {
	if err := s.writeLine(ctx, MarshalShare(share)); err != nil {
		return nil, err
	}

	line, err := s.readLine(ctx)
	if err != nil {
		return nil, err
	}

	res := ParseSubmissionResult(line)
	if res.Status == StatusUnknown {
		s.logger.Warn("unknown submission response", "response", res.RawMessage)
	}
	return res, nil
}

// Greeting returns the line the pool sent on connect
func (s *Session) Greeting() string {
	return s.greeting
}

// RemoteAddr returns the pool address
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// Close closes the session. It is safe to call more than once and from a
// goroutine other than the one doing I/O; in-flight reads and writes fail.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.LogConnection("disconnected", s.conn.RemoteAddr().String())

	if err := s.conn.Close(); err != nil && !stderrors.Is(err, net.ErrClosed) {
		return errors.Wrap(err, errors.ErrorTypeNetwork, "close", "failed to close connection")
	}
	return nil
}

// interruptOnDone pushes the connection deadline to now when ctx is done,
// unblocking any pending read or write.
func (s *Session) interruptOnDone(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(time.Now())
	})
}

func (s *Session) writeLine(ctx context.Context, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeNetwork, "send", "failed to set write deadline")
	}

	stop := s.interruptOnDone(ctx)
	defer stop()

	if _, err := io.WriteString(s.conn, line); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return classifyIOError(err, "send", "failed to write message")
	}

	s.logger.LogProtocolMessage("sent", trimLine(line))
	return nil
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeNetwork, "receive", "failed to set read deadline")
	}

	stop := s.interruptOnDone(ctx)
	defer stop()

	if !s.scanner.Scan() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		err := s.scanner.Err()
		if err == nil {
			err = io.EOF
		}
		if stderrors.Is(err, bufio.ErrTooLong) {
			return "", errors.Wrap(err, errors.ErrorTypeProtocol, "receive", "message exceeds maximum size")
		}
		return "", classifyIOError(err, "receive", "failed to read message")
	}

	line := s.scanner.Text()
	s.logger.LogProtocolMessage("received", line)
	return line, nil
}

func classifyIOError(err error, operation, message string) *errors.ServiceError {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrap(err, errors.ErrorTypeTimeout, operation, message)
	}
	return errors.Wrap(err, errors.ErrorTypeNetwork, operation, message)
}
