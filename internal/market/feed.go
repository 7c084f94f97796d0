package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"danoo/internal/logger"
	"danoo/internal/metrics"
)

var (
	ErrEmptyWarmup      = errors.New("warmup returned no closed candles")
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
)

type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// StatusEvent reports a connection state change. Err is set when the
// change was caused by a failure.
type StatusEvent struct {
	Stream string
	State  ConnState
	Err    error
	At     time.Time
}

type FeedConfig struct {
	Symbol            string
	Interval          string
	Capacity          int
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ReconnectDelay    time.Duration
	EventBuffer       int
	StatusBuffer      int
}

func (c FeedConfig) withDefaults() FeedConfig {
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	c.Interval = strings.TrimSpace(c.Interval)
	if c.Capacity <= 0 {
		c.Capacity = 500
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 3 * c.HeartbeatInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
	if c.StatusBuffer <= 0 {
		c.StatusBuffer = 16
	}
	return c
}

type FeedDeps struct {
	History HistorySource
	Dialer  StreamDialer
	Decode  MessageDecoder
	Sink    CandleSink
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Feed keeps the most recent closed candles of one symbol/interval stream.
// A single run goroutine owns the connection, both timers and every
// buffer mutation; readers only ever see copies.
type Feed struct {
	cfg    FeedConfig
	deps   FeedDeps
	stream string

	mu      sync.RWMutex
	buffer  []Candle
	current *Candle
	state   ConnState

	events chan CandleEvent
	status chan StatusEvent
	inbox  chan frame

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastAck atomic.Int64

	// run goroutine only
	conn           StreamConn
	connQuit       chan struct{}
	gen            uint64
	reconnectTimer *time.Timer
	heartbeatTimer *time.Timer
	connectedOnce  bool
}

type frame struct {
	gen  uint64
	data []byte
	err  error
}

func NewFeed(cfg FeedConfig, deps FeedDeps) (*Feed, error) {
	cfg = cfg.withDefaults()
	if cfg.Symbol == "" || cfg.Interval == "" {
		return nil, fmt.Errorf("feed requires symbol and interval")
	}
	if deps.History == nil || deps.Dialer == nil || deps.Decode == nil {
		return nil, fmt.Errorf("feed %s@%s requires history, dialer and decoder", cfg.Symbol, cfg.Interval)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Feed{
		cfg:    cfg,
		deps:   deps,
		stream: StreamName(cfg.Symbol, cfg.Interval),
		events: make(chan CandleEvent, cfg.EventBuffer),
		status: make(chan StatusEvent, cfg.StatusBuffer),
		inbox:  make(chan frame, 64),
	}, nil
}

// Candles delivers one event per newly closed candle. It has a single
// intended reader and is never closed.
func (f *Feed) Candles() <-chan CandleEvent {
	return f.events
}

// Status delivers connection state changes. Events are dropped when the
// reader falls behind.
func (f *Feed) Status() <-chan StatusEvent {
	return f.status
}

func (f *Feed) Stream() string {
	return f.stream
}

// Warmup loads up to Capacity closed candles. It must succeed before the
// buffer can be traded on.
func (f *Feed) Warmup(ctx context.Context) error {
	history, err := f.deps.History.FetchHistory(ctx, f.cfg.Symbol, f.cfg.Interval, f.cfg.Capacity)
	if err != nil {
		return fmt.Errorf("warmup %s: %w", f.stream, err)
	}
	candles := DropUnclosed(Normalize(history), f.deps.Now())
	if len(candles) == 0 {
		return fmt.Errorf("warmup %s: %w", f.stream, ErrEmptyWarmup)
	}
	if over := len(candles) - f.cfg.Capacity; over > 0 {
		candles = candles[over:]
	}
	f.mu.Lock()
	f.buffer = append([]Candle(nil), candles...)
	f.current = nil
	f.mu.Unlock()
	if f.deps.Sink != nil {
		if err := f.deps.Sink.Put(ctx, f.cfg.Symbol, f.cfg.Interval, candles); err != nil {
			logger.Warnf("[feed] %s persist warmup failed: %v", f.stream, err)
		}
	}
	logger.Infof("[feed] %s warmed up with %d candles", f.stream, len(candles))
	return nil
}

// Start launches the stream. Calling it on a running feed is a no-op.
func (f *Feed) Start(ctx context.Context) error {
	f.lifeMu.Lock()
	defer f.lifeMu.Unlock()
	if f.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	f.cancel = cancel
	f.done = done
	go f.run(runCtx, done)
	return nil
}

// Stop closes the connection, cancels both timers and waits for the run
// goroutine to exit. It is idempotent.
func (f *Feed) Stop() {
	f.lifeMu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.lifeMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (f *Feed) Buffer() []Candle {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Candle, len(f.buffer))
	copy(out, f.buffer)
	return out
}

// LastPrice prefers the in-progress candle over the last closed one.
// It returns 0 before any data arrived.
func (f *Feed) LastPrice() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current != nil {
		return f.current.Close
	}
	if n := len(f.buffer); n > 0 {
		return f.buffer[n-1].Close
	}
	return 0
}

func (f *Feed) State() ConnState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

func (f *Feed) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer f.teardown()

	f.connect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-timerC(f.reconnectTimer):
			f.reconnectTimer = nil
			f.connect(ctx)
		case <-timerC(f.heartbeatTimer):
			f.heartbeatTimer = nil
			f.heartbeat(ctx)
		case fr := <-f.inbox:
			if f.conn == nil || fr.gen != f.gen {
				continue
			}
			if fr.err != nil {
				f.connectionLost(fr.err)
				continue
			}
			f.handleMessage(ctx, fr.data)
		}
	}
}

func (f *Feed) connect(ctx context.Context) {
	f.setState(StateConnecting, nil)
	conn, err := f.deps.Dialer.Dial(ctx, f.cfg.Symbol, f.cfg.Interval, f.ack)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warnf("[feed] %s dial failed: %v", f.stream, err)
		f.scheduleReconnect(fmt.Errorf("dial %s: %w", f.stream, err))
		return
	}
	f.gen++
	f.conn = conn
	f.connQuit = make(chan struct{})
	f.ack()
	go f.read(conn, f.gen, f.connQuit)
	f.armHeartbeat()

	reconnected := f.connectedOnce
	f.connectedOnce = true
	f.setState(StateConnected, nil)
	logger.Infof("[feed] %s connected", f.stream)
	if reconnected {
		f.backfill(ctx)
	}
}

func (f *Feed) read(conn StreamConn, gen uint64, quit <-chan struct{}) {
	for {
		data, err := conn.ReadMessage()
		select {
		case f.inbox <- frame{gen: gen, data: data, err: err}:
		case <-quit:
			return
		}
		if err != nil {
			return
		}
	}
}

func (f *Feed) connectionLost(err error) {
	logger.Warnf("[feed] %s connection lost: %v", f.stream, err)
	f.dropConn()
	f.scheduleReconnect(err)
}

func (f *Feed) scheduleReconnect(cause error) {
	f.setState(StateReconnecting, cause)
	if f.reconnectTimer != nil {
		return
	}
	f.deps.Metrics.Reconnect(f.stream)
	f.reconnectTimer = time.NewTimer(f.cfg.ReconnectDelay)
}

func (f *Feed) dropConn() {
	stopTimer(&f.heartbeatTimer)
	if f.conn == nil {
		return
	}
	close(f.connQuit)
	if err := f.conn.Close(); err != nil {
		logger.Debugf("[feed] %s close: %v", f.stream, err)
	}
	f.conn = nil
	f.connQuit = nil
}

func (f *Feed) teardown() {
	stopTimer(&f.reconnectTimer)
	f.dropConn()
	f.setState(StateDisconnected, nil)
	logger.Infof("[feed] %s stopped", f.stream)
}

func (f *Feed) ack() {
	f.lastAck.Store(f.deps.Now().UnixNano())
}

func (f *Feed) armHeartbeat() {
	stopTimer(&f.heartbeatTimer)
	f.heartbeatTimer = time.NewTimer(f.cfg.HeartbeatInterval)
}

// heartbeat force-closes a connection whose last ack is older than the
// timeout, otherwise pings and re-arms the heartbeat.
func (f *Feed) heartbeat(ctx context.Context) {
	if f.conn == nil || ctx.Err() != nil {
		return
	}
	now := f.deps.Now()
	last := time.Unix(0, f.lastAck.Load())
	if now.Sub(last) > f.cfg.HeartbeatTimeout {
		f.deps.Metrics.HeartbeatTimeout(f.stream)
		f.connectionLost(fmt.Errorf("%w: no ack for %s", ErrHeartbeatTimeout, now.Sub(last).Round(time.Millisecond)))
		return
	}
	if err := f.conn.Ping(now.Add(f.cfg.HeartbeatInterval)); err != nil {
		f.connectionLost(fmt.Errorf("ping: %w", err))
		return
	}
	f.armHeartbeat()
}

// handleMessage appends closed candles and refreshes the in-progress view
// for everything else. Any inbound frame counts as liveness.
func (f *Feed) handleMessage(ctx context.Context, raw []byte) {
	f.ack()
	msg, ok, err := f.deps.Decode(raw)
	if err != nil {
		logger.Debugf("[feed] %s undecodable frame: %v", f.stream, err)
		return
	}
	if !ok {
		return
	}
	if !strings.EqualFold(msg.Symbol, f.cfg.Symbol) || msg.Interval != f.cfg.Interval {
		return
	}
	if !msg.Closed {
		f.mu.Lock()
		c := msg.Candle
		f.current = &c
		f.mu.Unlock()
		return
	}
	if f.appendClosed(msg.Candle) {
		f.publish(ctx, msg.Candle)
	}
}

// appendClosed rejects candles at or before the newest buffered open time.
func (f *Feed) appendClosed(c Candle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil && f.current.OpenTime <= c.OpenTime {
		f.current = nil
	}
	if n := len(f.buffer); n > 0 && c.OpenTime <= f.buffer[n-1].OpenTime {
		return false
	}
	f.buffer = append(f.buffer, c)
	if over := len(f.buffer) - f.cfg.Capacity; over > 0 {
		f.buffer = append(f.buffer[:0:0], f.buffer[over:]...)
	}
	return true
}

func (f *Feed) publish(ctx context.Context, c Candle) {
	f.deps.Metrics.ClosedCandle(f.stream)
	if f.deps.Sink != nil {
		if err := f.deps.Sink.Put(ctx, f.cfg.Symbol, f.cfg.Interval, []Candle{c}); err != nil {
			logger.Warnf("[feed] %s persist candle %d failed: %v", f.stream, c.OpenTime, err)
		}
	}
	select {
	case f.events <- CandleEvent{Symbol: f.cfg.Symbol, Interval: f.cfg.Interval, Candle: c}:
	case <-ctx.Done():
	}
}

// backfill fetches the candles that closed while the stream was down.
func (f *Feed) backfill(ctx context.Context) {
	f.mu.RLock()
	n := len(f.buffer)
	var last int64
	if n > 0 {
		last = f.buffer[n-1].OpenTime
	}
	f.mu.RUnlock()
	if n == 0 {
		return
	}
	limit := f.cfg.Capacity
	if d, ok := ParseIntervalDuration(f.cfg.Interval); ok {
		gap := int(f.deps.Now().UnixMilli()-last)/int(d.Milliseconds()) + 2
		if gap < limit {
			limit = gap
		}
	}
	history, err := f.deps.History.FetchHistory(ctx, f.cfg.Symbol, f.cfg.Interval, limit)
	if err != nil {
		logger.Warnf("[feed] %s backfill failed: %v", f.stream, err)
		return
	}
	added := 0
	for _, c := range DropUnclosed(Normalize(history), f.deps.Now()) {
		if c.OpenTime <= last {
			continue
		}
		if f.appendClosed(c) {
			f.publish(ctx, c)
			added++
		}
	}
	if added > 0 {
		logger.Infof("[feed] %s backfilled %d candles", f.stream, added)
	}
}

func (f *Feed) setState(s ConnState, cause error) {
	f.mu.Lock()
	prev := f.state
	f.state = s
	f.mu.Unlock()
	f.deps.Metrics.SetFeedState(f.stream, int(s))
	if prev == s && cause == nil {
		return
	}
	ev := StatusEvent{Stream: f.stream, State: s, Err: cause, At: f.deps.Now()}
	select {
	case f.status <- ev:
	default:
		f.deps.Metrics.StatusDropped()
	}
}

// timersPending reports which timers are armed. Only meaningful while the
// run goroutine is not running.
func (f *Feed) timersPending() (reconnect, heartbeat bool) {
	return f.reconnectTimer != nil, f.heartbeatTimer != nil
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTimer(t **time.Timer) {
	if *t == nil {
		return
	}
	(*t).Stop()
	*t = nil
}
