// Package channel maintains the single authenticated real-time connection to the
// messaging gateway. It relays inbound events onto a bounded queue, reconnects on
// transport drops, and sends replies only while connected.
package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flowbot/pkg/metrics"
	"github.com/dukex/flowbot/pkg/models"
)

type Config struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	InboundBuffer     int
	StateBuffer       int
}

func DefaultConfig() Config {
	return Config{
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		HandshakeTimeout:  10 * time.Second,
		InboundBuffer:     256,
		StateBuffer:       64,
	}
}

type Option func(*Channel)

// WithSender routes Send through sender instead of the transport connection.
func WithSender(sender Sender) Option {
	return func(c *Channel) {
		c.sender = sender
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) {
		c.metrics = m
	}
}

type Channel struct {
	cfg     Config
	dialer  Dialer
	sender  Sender
	logger  *slog.Logger
	metrics *metrics.Metrics

	inbound chan models.InboundEvent
	states  chan StateChange

	// connectMu serializes Connect calls.
	connectMu sync.Mutex

	mu         sync.Mutex
	state      State
	conn       Conn
	credential string
	session    uint64
	cancel     context.CancelFunc
	done       chan struct{}
	closed     bool
}

func New(cfg Config, dialer Dialer, logger *slog.Logger, opts ...Option) *Channel {
	defaults := DefaultConfig()

	if cfg.ReconnectAttempts < 0 {
		cfg.ReconnectAttempts = 0
	}

	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaults.ReconnectDelay
	}

	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}

	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = defaults.InboundBuffer
	}

	if cfg.StateBuffer <= 0 {
		cfg.StateBuffer = defaults.StateBuffer
	}

	c := &Channel{
		cfg:     cfg,
		dialer:  dialer,
		logger:  logger.With("module", "channel"),
		inbound: make(chan models.InboundEvent, cfg.InboundBuffer),
		states:  make(chan StateChange, cfg.StateBuffer),
		state:   StateDisconnected,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.metrics.ChannelState(string(StateDisconnected), stateNames())

	return c
}

// Inbound is the queue of received events, in arrival order. It is closed by Close.
func (c *Channel) Inbound() <-chan models.InboundEvent {
	return c.inbound
}

// StateChanges delivers every transition. When the consumer falls behind the oldest
// pending change is dropped. It is closed by Close.
func (c *Channel) StateChanges() <-chan StateChange {
	return c.states
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Connect starts connecting with credential and returns without waiting for the
// handshake. Connecting again with the same credential is a no-op; a different
// credential tears the current connection down first.
func (c *Channel) Connect(ctx context.Context, credential string) error {
	if credential == "" {
		return ErrNoCredential
	}

	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return ErrClosed
	}

	if c.state != StateDisconnected && c.credential == credential {
		c.mu.Unlock()

		return nil
	}

	needsTeardown := c.state != StateDisconnected
	c.mu.Unlock()

	if needsTeardown {
		c.Disconnect(ctx, "credential changed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.session++
	c.credential = credential
	c.cancel = cancel
	c.done = make(chan struct{})
	c.transitionLocked(StateConnecting, "credential present")

	go c.run(runCtx, c.session, credential, c.done)

	return nil
}

// IsCurrent reports whether an event stamped with epoch was received by the live
// connection. Events received before a disconnect or a credential change are not
// current. Epoch zero marks an event that did not come through the channel.
func (c *Channel) IsCurrent(epoch uint64) bool {
	if epoch == 0 {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.session == epoch
}

// Disconnect tears down the transport and waits for it to stop. Events still queued
// are discarded.
func (c *Channel) Disconnect(ctx context.Context, reason string) {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel, c.done, c.conn = nil, nil, nil
	c.credential = ""
	c.session++
	c.transitionLocked(StateDisconnected, reason)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if conn != nil {
		_ = conn.Close()
	}

	if done != nil {
		<-done
	}

	dropped := c.drainInbound()
	if dropped > 0 {
		c.logger.InfoContext(ctx, "Discarded queued inbound events", "count", dropped)
	}
}

// Close disconnects and closes the inbound and state queues. The channel cannot be reused.
func (c *Channel) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return
	}

	c.closed = true
	c.mu.Unlock()

	c.Disconnect(ctx, "closed")

	c.mu.Lock()
	close(c.inbound)
	close(c.states)
	c.mu.Unlock()
}

// Send transmits msg to chatID. It fails with ErrNotConnected unless the channel is
// Connected; it never queues or retries.
func (c *Channel) Send(ctx context.Context, chatID string, msg models.OutboundMessage) error {
	c.mu.Lock()
	state, conn := c.state, c.conn
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		return &TransmitError{ChatID: chatID, Err: ErrNotConnected}
	}

	var err error
	if c.sender != nil {
		err = c.sender.SendMessage(ctx, chatID, msg)
	} else {
		err = conn.SendMessage(ctx, chatID, msg)
	}

	if err != nil {
		return &TransmitError{ChatID: chatID, Err: err}
	}

	return nil
}

func (c *Channel) run(ctx context.Context, session uint64, credential string, done chan struct{}) {
	defer close(done)

	var (
		attempts int
		reason   string
	)

	for {
		if reason != "" {
			if attempts >= c.cfg.ReconnectAttempts {
				c.logger.WarnContext(ctx, "Reconnect attempts exhausted", "attempts", attempts, "reason", reason)
				c.giveUp(ctx, session, "reconnect attempts exhausted")

				return
			}

			attempts++

			if !c.transition(session, StateReconnecting, reason) {
				return
			}

			c.metrics.ReconnectAttempt()

			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.ReconnectDelay):
			}
		}

		conn, err := c.dial(ctx, credential, attempts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			c.logger.WarnContext(ctx, "Connect failed", "error", err)
			reason = err.Error()

			continue
		}

		if !c.attach(session, conn) {
			_ = conn.Close()

			return
		}

		c.logger.InfoContext(ctx, "Connected", "url", c.cfg.URL)

		attempts = 0
		err = c.readLoop(ctx, session, conn)

		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		reason = "transport dropped: " + err.Error()
		c.logger.WarnContext(ctx, "Transport dropped", "error", err)
		c.detach(session, conn, reason)
	}
}

func (c *Channel) dial(ctx context.Context, credential string, attempt int) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(ctx, c.cfg.URL, credential)
	if err != nil {
		return nil, &ConnectError{URL: c.cfg.URL, Attempt: attempt + 1, Err: err}
	}

	return conn, nil
}

func (c *Channel) readLoop(ctx context.Context, session uint64, conn Conn) error {
	for {
		evt, err := conn.ReadEvent(ctx)
		if err != nil {
			return err
		}

		evt.Epoch = session

		select {
		case c.inbound <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Channel) attach(session uint64, conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != session {
		return false
	}

	c.conn = conn
	c.transitionLocked(StateConnected, "handshake succeeded")

	return true
}

func (c *Channel) detach(session uint64, conn Conn, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != session || c.conn != conn {
		return
	}

	c.conn = nil
	c.transitionLocked(StateReconnecting, reason)
}

func (c *Channel) giveUp(ctx context.Context, session uint64, reason string) {
	c.mu.Lock()

	if c.session != session {
		c.mu.Unlock()

		return
	}

	cancel := c.cancel
	c.cancel, c.done, c.conn = nil, nil, nil
	c.credential = ""
	c.session++
	c.transitionLocked(StateDisconnected, reason)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.drainInbound()
	c.logger.InfoContext(ctx, "Channel disconnected", "reason", reason)
}

// transition moves to state unless session has been superseded.
func (c *Channel) transition(session uint64, to State, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != session {
		return false
	}

	c.transitionLocked(to, reason)

	return true
}

func (c *Channel) transitionLocked(to State, reason string) {
	if c.state == to {
		return
	}

	change := StateChange{From: c.state, To: to, Reason: reason, At: time.Now()}
	c.state = to

	c.metrics.ChannelState(string(to), stateNames())

	for {
		select {
		case c.states <- change:
			return
		default:
		}

		select {
		case <-c.states:
		default:
		}
	}
}

func (c *Channel) drainInbound() int {
	dropped := 0

	for {
		select {
		case _, ok := <-c.inbound:
			if !ok {
				return dropped
			}

			dropped++
		default:
			return dropped
		}
	}
}

func stateNames() []string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = string(s)
	}

	return names
}
