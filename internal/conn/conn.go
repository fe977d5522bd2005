package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/DoyleJ11/oshiri-client/pkg/types"
	"go.uber.org/zap"
)

var (
	ErrClosed       = errors.New("connection manager closed")
	ErrNotConnected = errors.New("not connected")
	ErrBackpressure = errors.New("send buffer full")
	ErrGaveUp       = errors.New("gave up reconnecting")
)

const writeTimeout = 3 * time.Second

// Conn is one open game socket carrying text frames.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type CloseReason int

const (
	// CloseLost is an unexpected drop; a reconnect follows.
	CloseLost CloseReason = iota
	// CloseFatal means every reconnect attempt failed.
	CloseFatal
	// CloseVoluntary follows Close or cancellation of Run's context.
	CloseVoluntary
)

func (r CloseReason) String() string {
	switch r {
	case CloseLost:
		return "lost"
	case CloseFatal:
		return "fatal"
	case CloseVoluntary:
		return "voluntary"
	}
	return fmt.Sprintf("CloseReason(%d)", int(r))
}

// Listener is called from the manager's read goroutine, one call at a time.
type Listener interface {
	OnOpen(reconnect bool)
	OnMessage(raw []byte)
	OnClose(reason CloseReason, err error)
}

// Policy bounds reconnection: up to Attempts dials, Interval apart. A dial
// still pending after DialTimeout counts as a failed attempt.
type Policy struct {
	Attempts    int
	Interval    time.Duration
	DialTimeout time.Duration
}

const defaultDialTimeout = 5 * time.Second

func DefaultPolicy() Policy {
	return Policy{Attempts: 5, Interval: time.Second, DialTimeout: defaultDialTimeout}
}

type Options struct {
	URL string
	// Token is read before every dial and sent as ?token=.
	Token  func(ctx context.Context) string
	Dialer Dialer
	Policy Policy
	Logger *zap.Logger
}

// Manager keeps one logical connection to the game server alive.
type Manager struct {
	opts     Options
	listener Listener
	logger   *zap.Logger

	mu     sync.Mutex
	out    chan []byte
	closed bool
	cancel context.CancelFunc
}

func NewManager(opts Options, l Listener) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Policy.DialTimeout <= 0 {
		opts.Policy.DialTimeout = defaultDialTimeout
	}
	if opts.Token == nil {
		opts.Token = func(context.Context) string { return "" }
	}
	return &Manager{opts: opts, listener: l, logger: logger.Named("conn")}
}

// Run dials and serves until Close, ctx cancellation, or the reconnect
// policy is exhausted. The last case returns an error wrapping ErrGaveUp.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.listener.OnClose(CloseVoluntary, nil)
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()
	defer cancel()

	failures := 0
	opened := false
	for {
		target, err := m.target(ctx)
		if err != nil {
			return err
		}

		dialCtx, dialCancel := context.WithTimeout(ctx, m.opts.Policy.DialTimeout)
		c, err := m.opts.Dialer.Dial(dialCtx, target)
		dialCancel()
		if err == nil {
			failures = 0
			m.logger.Info("connected", zap.Bool("reconnect", opened))
			m.listener.OnOpen(opened)
			opened = true

			err = m.serve(ctx, c)
			if ctx.Err() != nil {
				m.listener.OnClose(CloseVoluntary, nil)
				return nil
			}
			m.logger.Warn("connection lost", zap.Error(err))
			m.listener.OnClose(CloseLost, err)
		} else {
			if ctx.Err() != nil {
				m.listener.OnClose(CloseVoluntary, nil)
				return nil
			}
			m.logger.Warn("dial failed", zap.Int("attempt", failures), zap.Error(err))
		}

		if failures >= m.opts.Policy.Attempts {
			m.logger.Error("giving up", zap.Int("attempts", failures), zap.Error(err))
			m.listener.OnClose(CloseFatal, err)
			return fmt.Errorf("%w after %d attempts: %v", ErrGaveUp, failures, err)
		}
		failures++

		t := time.NewTimer(m.opts.Policy.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			m.listener.OnClose(CloseVoluntary, nil)
			return nil
		case <-t.C:
		}
	}
}

// Send queues one envelope on the live connection. Nothing is queued while
// the connection is down and nothing is retried.
func (m *Manager) Send(env types.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	m.mu.Lock()
	out, closed := m.out, m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if out == nil {
		return ErrNotConnected
	}
	select {
	case out <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close ends the connection without any reconnect.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Manager) target(ctx context.Context) (string, error) {
	u, err := url.Parse(m.opts.URL)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	if tok := m.opts.Token(ctx); tok != "" {
		q := u.Query()
		q.Set("token", tok)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (m *Manager) setOutbox(out chan []byte) {
	m.mu.Lock()
	m.out = out
	m.mu.Unlock()
}

// serve pumps one connection until it fails or ctx ends.
func (m *Manager) serve(ctx context.Context, c Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan []byte, 64)
	m.setOutbox(out)
	defer m.setOutbox(nil)

	var wg sync.WaitGroup
	werr := make(chan error, 1)

	// Writer goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-connCtx.Done():
				return
			case b := <-out:
				wctx, wcancel := context.WithTimeout(connCtx, writeTimeout)
				err := c.Write(wctx, b)
				wcancel()
				if err != nil {
					werr <- err
					cancel()
					return
				}
			}
		}
	}()

	// Closing unblocks a Read that ignores its context.
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-connCtx.Done()
		_ = c.Close("bye")
	}()

	var err error
	for {
		var data []byte
		data, err = c.Read(connCtx)
		if err != nil {
			break
		}
		m.listener.OnMessage(data)
	}
	cancel()
	wg.Wait()

	select {
	case e := <-werr:
		err = e
	default:
	}
	return err
}
