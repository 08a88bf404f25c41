// Package session implements the engine session: it follows the credential, drives
// the event channel, and keeps the rule index loaded while connected.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/flowbot/pkg/channel"
	"github.com/dukex/flowbot/pkg/credentials"
	"github.com/dukex/flowbot/pkg/dispatcher"
	"github.com/dukex/flowbot/pkg/eventbus"
	"github.com/dukex/flowbot/pkg/metrics"
	"github.com/dukex/flowbot/pkg/models"
	"github.com/dukex/flowbot/pkg/rules"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	ErrSuperseded     = errors.New("rule load superseded by a newer session")
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotStarted     = errors.New("session not started")
)

type Config struct {
	SettleDelay     time.Duration
	FetchTimeout    time.Duration
	RetryDelay      time.Duration
	RefreshSchedule string
	BufferSize      int
	SortRules       bool
}

func DefaultConfig() Config {
	return Config{
		SettleDelay:     time.Second,
		FetchTimeout:    10 * time.Second,
		RetryDelay:      5 * time.Second,
		RefreshSchedule: "@every 5m",
		BufferSize:      200,
	}
}

// Fetcher loads the user's flows and templates.
type Fetcher interface {
	FetchFlows(ctx context.Context) ([]models.Flow, error)
	FetchTemplates(ctx context.Context) ([]models.Template, error)
}

// Channel is the part of the event channel the session drives.
type Channel interface {
	Connect(ctx context.Context, credential string) error
	Disconnect(ctx context.Context, reason string)
	StateChanges() <-chan channel.StateChange
	State() channel.State
	IsCurrent(epoch uint64) bool
}

type Option func(*EngineSession)

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(s *EngineSession) {
		s.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *EngineSession) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *EngineSession) {
		s.tracer = tracer
	}
}

// Status is a point-in-time view of the session.
type Status struct {
	State             channel.State `json:"state"`
	CredentialPresent bool          `json:"credentialPresent"`
	Generation        uint64        `json:"generation"`
	Flows             int           `json:"flows"`
	Templates         int           `json:"templates"`
	BuiltAt           time.Time     `json:"builtAt,omitzero"`
	LastReload        time.Time     `json:"lastReload,omitzero"`
	LastError         string        `json:"lastError,omitempty"`
	Messages          int           `json:"messages"`
}

// EngineSession owns the credential lifecycle, the channel connection and the
// rule snapshot the dispatcher reads.
type EngineSession struct {
	cfg         Config
	credentials credentials.Store
	channel     Channel
	fetcher     Fetcher
	store       *rules.Store
	buffer      *MessageBuffer
	logger      *slog.Logger

	publisher eventbus.EventPublisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	generation atomic.Uint64

	mu         sync.Mutex
	credential string
	lastReload time.Time
	lastErr    error
	refreshID  cron.EntryID
	scheduled  bool
	cron       *cron.Cron
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func New(
	cfg Config,
	creds credentials.Store,
	ch Channel,
	fetcher Fetcher,
	store *rules.Store,
	logger *slog.Logger,
	opts ...Option,
) *EngineSession {
	defaults := DefaultConfig()

	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaults.FetchTimeout
	}

	if cfg.RefreshSchedule == "" {
		cfg.RefreshSchedule = defaults.RefreshSchedule
	}

	s := &EngineSession{
		cfg:         cfg,
		credentials: creds,
		channel:     ch,
		fetcher:     fetcher,
		store:       store,
		buffer:      NewMessageBuffer(cfg.BufferSize),
		logger:      logger.With("module", "session"),
		publisher:   eventbus.Nop{},
		tracer:      noop.NewTracerProvider().Tracer("session"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start connects if a credential is stored and begins following credential and
// channel changes. It returns once watching has started.
func (s *EngineSession) Start(ctx context.Context) error {
	if _, err := cron.ParseStandard(s.cfg.RefreshSchedule); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", s.cfg.RefreshSchedule, err)
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()

		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))
	s.mu.Unlock()

	changes, err := s.credentials.Watch(ctx)
	if err != nil {
		cancel()

		return fmt.Errorf("failed to watch credential: %w", err)
	}

	s.wg.Add(2)

	go s.followStates(ctx)
	go s.followCredential(ctx, changes)

	s.cron.Start()

	credential, ok, err := s.credentials.Get(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read credential", "error", err)
	}

	if ok {
		s.connect(ctx, credential)
	} else {
		s.logger.InfoContext(ctx, "No credential stored, waiting for login")
	}

	s.logger.InfoContext(ctx, "Engine session started")

	return nil
}

// Stop disconnects the channel and waits for background work to finish.
// The rule snapshot is left as it was.
func (s *EngineSession) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, scheduler := s.cancel, s.cron
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return ErrNotStarted
	}

	cancel()
	s.generation.Add(1)
	s.channel.Disconnect(ctx, "session stopped")

	<-scheduler.Stop().Done()
	s.wg.Wait()

	s.logger.InfoContext(ctx, "Engine session stopped")

	return nil
}

// Reload fetches flows and templates now and publishes a new snapshot. A channel that
// gave up reconnecting is reconnected instead; rules then load once it is connected.
func (s *EngineSession) Reload(ctx context.Context) error {
	s.mu.Lock()
	credential := s.credential
	s.mu.Unlock()

	if credential != "" && s.channel.State() == channel.StateDisconnected {
		s.logger.InfoContext(ctx, "Reconnecting on manual reload")

		return s.channel.Connect(ctx, credential)
	}

	return s.reload(ctx, s.generation.Load())
}

// Messages returns the session's buffered messages, optionally for one chat.
func (s *EngineSession) Messages(chatID string) []models.MessageRecord {
	return s.buffer.List(chatID)
}

func (s *EngineSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.store.Load()

	status := Status{
		State:             s.channel.State(),
		CredentialPresent: s.credential != "",
		Generation:        s.generation.Load(),
		Flows:             len(idx.Rules),
		Templates:         len(idx.Templates),
		BuiltAt:           idx.BuiltAt,
		LastReload:        s.lastReload,
		Messages:          s.buffer.Len(),
	}

	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}

	return status
}

// Observe records a dispatched event and its reply in the message buffer. Results
// for events of a closed connection are dropped so they never reach the next user.
func (s *EngineSession) Observe(_ context.Context, result dispatcher.Result) {
	evt := result.Event

	s.mu.Lock()
	defer s.mu.Unlock()

	if result.Outcome == dispatcher.OutcomeStale || !s.channel.IsCurrent(evt.Epoch) {
		return
	}

	s.buffer.Add(models.MessageRecord{
		ChatID:    evt.ChatID,
		Direction: evt.Direction,
		Type:      evt.Type,
		Text:      evt.Text(),
		Timestamp: timestampOf(evt),
	})

	if result.Outcome != dispatcher.OutcomeReplied || result.Reply == nil {
		return
	}

	record := models.MessageRecord{
		ChatID:    evt.ChatID,
		Direction: models.DirectionOutgoing,
		Type:      result.Reply.Type,
		Text:      result.Reply.Body.Text,
		Timestamp: time.Now().UTC(),
	}

	if result.Match.Flow != nil {
		record.FlowID = result.Match.Flow.ID
	}

	if result.Match.Template != nil {
		record.TemplateID = result.Match.Template.ID
	}

	s.buffer.Add(record)
}

func timestampOf(evt models.InboundEvent) time.Time {
	if evt.Timestamp.IsZero() {
		return time.Now().UTC()
	}

	return evt.Timestamp
}
