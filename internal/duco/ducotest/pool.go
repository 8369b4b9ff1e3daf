// Package ducotest provides an in-process DUCO pool for tests.
package ducotest

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bardlex/ducominer/internal/config"
)

// Conn is the pool's side of one client connection
type Conn struct {
	net.Conn
	r *bufio.Reader
}

// ReadLine reads one line and strips the terminator
func (c *Conn) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// WriteLine writes s followed by a newline
func (c *Conn) WriteLine(s string) error {
	_, err := c.Write([]byte(s + "\n"))
	return err
}

// Handler serves one accepted connection; the connection is closed when it
// returns.
type Handler func(c *Conn)

// Pool is a TCP listener on 127.0.0.1 speaking whatever Handler scripts
type Pool struct {
	ln       net.Listener
	greeting string
	handler  Handler

	accepted atomic.Int32
	wg       sync.WaitGroup
	mu       sync.Mutex
	conns    []net.Conn
	closed   bool
}

// NewPool starts a pool that sends greeting (when non-empty) to every
// client before handing the connection to handler. It is closed on test
// cleanup.
func NewPool(t testing.TB, greeting string, handler Handler) *Pool {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	p := &Pool{ln: ln, greeting: greeting, handler: handler}
	p.wg.Add(1)
	go p.serve()
	t.Cleanup(p.Close)
	return p
}

func (p *Pool) serve() {
	defer p.wg.Done()
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = conn.Close()
			return
		}
		p.conns = append(p.conns, conn)
		p.mu.Unlock()

		p.accepted.Add(1)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer func() { _ = conn.Close() }()

			c := &Conn{Conn: conn, r: bufio.NewReader(conn)}
			if p.greeting != "" {
				if err := c.WriteLine(p.greeting); err != nil {
					return
				}
			}
			if p.handler != nil {
				p.handler(c)
			}
		}()
	}
}

// Addr returns the listener address
func (p *Pool) Addr() *net.TCPAddr {
	return p.ln.Addr().(*net.TCPAddr)
}

// Params returns connection parameters pointing at the pool
func (p *Pool) Params(username string) config.ConnectionParams {
	return config.ConnectionParams{
		Host:     "127.0.0.1",
		Port:     p.Addr().Port,
		Username: username,
	}
}

// Accepted returns how many connections the pool has accepted
func (p *Pool) Accepted() int {
	return int(p.accepted.Load())
}

// Close stops accepting, drops open connections and waits for handlers
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	conns := p.conns
	p.mu.Unlock()

	_ = p.ln.Close()
	for _, c := range conns {
		_ = c.Close()
	}
	p.wg.Wait()
}

// Job is one scripted job and the verdict the pool answers with
type Job struct {
	Line    string
	Verdict string
}

// ServeJobs answers each JOB request with next(), reads the share and
// replies with the job's verdict. Shares are sent to the shares channel
// when it is non-nil. It stops when the client hangs up.
func ServeJobs(next func() Job, shares chan<- string) Handler {
	return func(c *Conn) {
		for {
			if _, err := c.ReadLine(); err != nil {
				return
			}
			job := next()
			if err := c.WriteLine(job.Line); err != nil {
				return
			}
			share, err := c.ReadLine()
			if err != nil {
				return
			}
			if shares != nil {
				select {
				case shares <- share:
				default:
				}
			}
			if err := c.WriteLine(job.Verdict); err != nil {
				return
			}
		}
	}
}
