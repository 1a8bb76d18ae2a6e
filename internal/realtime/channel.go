package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/guideworks/livesync/internal/docstore"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribed
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

const (
	DefaultBaseRetryDelay = 2 * time.Second
	DefaultMaxRetryDelay  = 30 * time.Second
)

type Conn interface {
	ReadJSON(ctx context.Context, v any) error
	WriteJSON(ctx context.Context, v any) error
	Close() error
}

type DialFunc func(ctx context.Context) (Conn, error)

type ChannelOptions struct {
	Table          docstore.Table
	Locale         string
	Dial           DialFunc
	OnNotification func(docstore.Notification)
	OnReady        func(bool)
	Logger         Logger
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
}

// ChannelManager owns one realtime subscription for a (table, locale) pair.
// It reconnects forever with capped exponential backoff and resets the
// retry counter only once the server confirms the subscription, so a flaky
// backend is not hammered by premature fast retries.
type ChannelManager struct {
	table      docstore.Table
	locale     string
	dial       DialFunc
	onNotify   func(docstore.Notification)
	onReady    func(bool)
	logger     Logger
	baseDelay  time.Duration
	maxDelay   time.Duration
	ctx        context.Context
	cancelCtx  context.CancelFunc
	generation int

	// scheduleRetry is replaceable in tests to observe backoff delays
	// without sleeping.
	scheduleRetry func(delay time.Duration, fn func()) func()

	mu          sync.Mutex
	state       State
	retryCount  int
	active      bool
	conn        Conn
	cancelRetry func()
}

func NewChannelManager(opts ChannelOptions) (*ChannelManager, error) {
	if opts.Dial == nil {
		return nil, errors.New("dial func is required")
	}
	if opts.Table == "" {
		return nil, errors.New("table is required")
	}
	baseDelay := opts.BaseRetryDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseRetryDelay
	}
	maxDelay := opts.MaxRetryDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxRetryDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &ChannelManager{
		table:     opts.Table,
		locale:    opts.Locale,
		dial:      opts.Dial,
		onNotify:  opts.OnNotification,
		onReady:   opts.OnReady,
		logger:    opts.Logger,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		ctx:       ctx,
		cancelCtx: cancel,
		state:     StateIdle,
	}
	m.scheduleRetry = func(delay time.Duration, fn func()) func() {
		timer := time.AfterFunc(delay, fn)
		return func() { timer.Stop() }
	}
	return m, nil
}

func (m *ChannelManager) Start() {
	m.mu.Lock()
	if m.active || m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.active = true
	m.state = StateConnecting
	gen := m.generation
	m.mu.Unlock()
	go m.connect(gen)
}

func (m *ChannelManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ChannelManager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateSubscribed
}

// Close tears the channel down: pending retry timers are cleared, the
// socket is released and late callbacks are dropped.
func (m *ChannelManager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.active = false
	m.state = StateClosed
	m.generation++
	if m.cancelRetry != nil {
		m.cancelRetry()
		m.cancelRetry = nil
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	m.cancelCtx()
	if conn != nil {
		_ = conn.Close()
	}
}

func (m *ChannelManager) connect(gen int) {
	conn, err := m.dial(m.ctx)
	if err != nil {
		m.handleError(gen, nil, fmt.Errorf("dial: %w", err))
		return
	}

	m.mu.Lock()
	if !m.active || gen != m.generation {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.mu.Unlock()

	req := SubscribeRequest{Table: m.table, Locale: m.locale}
	if err := conn.WriteJSON(m.ctx, req); err != nil {
		m.handleError(gen, conn, fmt.Errorf("subscribe write: %w", err))
		return
	}

	var ack Frame
	if err := conn.ReadJSON(m.ctx, &ack); err != nil {
		m.handleError(gen, conn, fmt.Errorf("subscribe ack: %w", err))
		return
	}
	if ack.Type != FrameSubscribed {
		m.handleError(gen, conn, fmt.Errorf("unexpected ack frame %q", ack.Type))
		return
	}

	m.mu.Lock()
	if !m.active || gen != m.generation {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.state = StateSubscribed
	m.retryCount = 0
	m.mu.Unlock()
	m.signalReady(true)

	for {
		var frame Frame
		if err := conn.ReadJSON(m.ctx, &frame); err != nil {
			m.handleError(gen, conn, fmt.Errorf("read: %w", err))
			return
		}
		m.dispatch(gen, frame)
	}
}

func (m *ChannelManager) dispatch(gen int, frame Frame) {
	m.mu.Lock()
	inactive := !m.active || gen != m.generation
	m.mu.Unlock()
	if inactive {
		return
	}
	switch frame.Type {
	case FrameNotification:
		if frame.Notification == nil {
			return
		}
		n := *frame.Notification
		// The server filters by locale already; filter again in case a
		// stray notification slips through.
		if m.locale != "" && n.Locale != m.locale {
			return
		}
		if m.onNotify != nil {
			m.onNotify(n)
		}
	case FrameError:
		m.logf("channel %s/%s server error: %s", m.table, m.locale, frame.Message)
	}
}

func (m *ChannelManager) handleError(gen int, conn Conn, err error) {
	m.mu.Lock()
	if !m.active || gen != m.generation {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	m.state = StateError
	if m.conn == conn {
		m.conn = nil
	}
	delay := backoffDelay(m.baseDelay, m.maxDelay, m.retryCount)
	m.retryCount++
	retryGen := m.generation
	m.cancelRetry = m.scheduleRetry(delay, func() {
		m.mu.Lock()
		if !m.active || retryGen != m.generation {
			m.mu.Unlock()
			return
		}
		m.cancelRetry = nil
		m.state = StateConnecting
		m.mu.Unlock()
		go m.connect(retryGen)
	})
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.logf("channel %s/%s error, retrying in %s: %v", m.table, m.locale, delay, err)
	m.signalReady(false)
}

func (m *ChannelManager) signalReady(ready bool) {
	m.mu.Lock()
	inactive := !m.active
	m.mu.Unlock()
	if inactive || m.onReady == nil {
		return
	}
	m.onReady(ready)
}

func (m *ChannelManager) logf(format string, args ...any) {
	if m.logger == nil {
		return
	}
	m.logger.Printf(format, args...)
}

func backoffDelay(base, max time.Duration, retry int) time.Duration {
	delay := base
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// WebsocketDial returns a DialFunc connecting to the hub endpoint.
func WebsocketDial(url string, opts *websocket.DialOptions) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		conn, _, err := websocket.Dial(ctx, url, opts)
		if err != nil {
			return nil, err
		}
		return &wsConn{conn: conn}, nil
	}
}

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) ReadJSON(ctx context.Context, v any) error {
	return wsjson.Read(ctx, w.conn, v)
}

func (w *wsConn) WriteJSON(ctx context.Context, v any) error {
	return wsjson.Write(ctx, w.conn, v)
}

func (w *wsConn) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "")
}
