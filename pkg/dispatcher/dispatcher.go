// Package dispatcher answers inbound chat messages: it matches their text against
// the current rule snapshot and sends the reply of the first matching flow or template.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowbot/pkg/eventbus"
	"github.com/dukex/flowbot/pkg/events"
	"github.com/dukex/flowbot/pkg/flow"
	"github.com/dukex/flowbot/pkg/metrics"
	"github.com/dukex/flowbot/pkg/models"
	"github.com/dukex/flowbot/pkg/otelhelper"
	"github.com/dukex/flowbot/pkg/rules"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Outcome is what happened to one inbound event.
type Outcome string

const (
	OutcomeIgnoredOutgoing Outcome = "ignored_outgoing"
	OutcomeStale           Outcome = "stale"
	OutcomeIgnoredEmpty    Outcome = "ignored_empty"
	OutcomeNoMatch         Outcome = "no_match"
	OutcomeNoContent       Outcome = "no_content"
	OutcomeReplied         Outcome = "replied"
	OutcomeSendFailed      Outcome = "send_failed"
	OutcomePanicked        Outcome = "panicked"
)

// Sender transmits a reply. The event channel implements it.
type Sender interface {
	Send(ctx context.Context, chatID string, msg models.OutboundMessage) error
}

// Snapshots yields the current rule index.
type Snapshots interface {
	Load() *rules.Index
}

// Result describes how an event was handled.
type Result struct {
	Event   models.InboundEvent
	Outcome Outcome
	Match   rules.Match
	Reply   *models.OutboundMessage
	Err     error
}

// Observer is told about every handled event.
type Observer func(ctx context.Context, result Result)

type Option func(*Dispatcher)

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(d *Dispatcher) {
		d.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = tracer
	}
}

func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) {
		d.observers = append(d.observers, observer)
	}
}

// WithEpochCheck drops events whose connection is no longer current, such as
// events still queued when the user logged out.
func WithEpochCheck(current func(epoch uint64) bool) Option {
	return func(d *Dispatcher) {
		d.current = current
	}
}

// WithWorkers sets how many chats are served in parallel and the queue depth of each worker.
func WithWorkers(workers, queueSize int) Option {
	return func(d *Dispatcher) {
		if workers > 0 {
			d.workers = workers
		}

		if queueSize > 0 {
			d.queueSize = queueSize
		}
	}
}

type Dispatcher struct {
	snapshots Snapshots
	matcher   *rules.Matcher
	sender    Sender
	logger    *slog.Logger

	publisher eventbus.EventPublisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	observers []Observer
	current   func(epoch uint64) bool

	workers   int
	queueSize int
}

func New(snapshots Snapshots, matcher *rules.Matcher, sender Sender, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		snapshots: snapshots,
		matcher:   matcher,
		sender:    sender,
		logger:    logger.With("module", "dispatcher"),
		publisher: eventbus.Nop{},
		tracer:    noop.NewTracerProvider().Tracer("dispatcher"),
		workers:   4,
		queueSize: 64,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Handle processes one event to completion. It never panics and never returns an
// error; failures are logged and reported in the Result.
func (d *Dispatcher) Handle(ctx context.Context, evt models.InboundEvent) (result Result) {
	result = Result{Event: evt}

	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatcher.handle",
		attribute.String(otelhelper.ChatIDKey, evt.ChatID),
		attribute.String(otelhelper.EventIDKey, evt.ID),
	)

	defer func() {
		if r := recover(); r != nil {
			result.Outcome = OutcomePanicked
			result.Err = fmt.Errorf("dispatch panicked: %v", r)
			d.logger.ErrorContext(ctx, "Recovered from panic while dispatching", "chat_id", evt.ChatID, "panic", r)
		}

		otelhelper.SetError(span, result.Err)
		span.SetAttributes(attribute.String(otelhelper.MatchKindKey, string(result.Match.Kind)))
		span.End()

		d.metrics.InboundHandled(string(result.Outcome))

		for _, observe := range d.observers {
			observe(ctx, result)
		}
	}()

	d.handle(ctx, evt, &result)

	return result
}

func (d *Dispatcher) handle(ctx context.Context, evt models.InboundEvent, result *Result) {
	result.Match = rules.Match{Kind: rules.MatchNone}

	if d.current != nil && !d.current(evt.Epoch) {
		result.Outcome = OutcomeStale

		d.logger.DebugContext(ctx, "Dropping event of a closed connection", "chat_id", evt.ChatID)

		return
	}

	if !evt.IsIncoming() {
		result.Outcome = OutcomeIgnoredOutgoing

		return
	}

	text := evt.Text()

	d.publish(ctx, evt.ChatID, events.InboundReceived{
		BaseEvent:   events.NewBaseEvent(events.InboundReceivedEvent, evt.ChatID),
		Direction:   evt.Direction,
		MessageType: evt.Type,
		Text:        text,
	})

	if text == "" {
		result.Outcome = OutcomeIgnoredEmpty

		return
	}

	match := d.matcher.Match(d.snapshots.Load(), text)
	result.Match = match

	reply, ok := ReplyFor(match)
	if !ok {
		result.Outcome = OutcomeNoMatch
		if match.Kind != rules.MatchNone {
			result.Outcome = OutcomeNoContent
		}

		d.logger.DebugContext(ctx, "No reply for inbound message", "chat_id", evt.ChatID, "outcome", result.Outcome)

		return
	}

	result.Reply = &reply

	started := time.Now()
	err := d.sender.Send(ctx, evt.ChatID, reply)
	elapsed := time.Since(started)

	flowID, templateID := matchIDs(match)

	if err != nil {
		result.Outcome = OutcomeSendFailed
		result.Err = err

		d.logger.WarnContext(ctx, "Failed to send automated reply",
			"chat_id", evt.ChatID, "flow_id", flowID, "template_id", templateID, "error", err)
		d.metrics.ReplyRecorded(string(match.Kind), "failed", elapsed.Seconds())
		d.publish(ctx, evt.ChatID, events.ReplyFailed{
			BaseEvent:  events.NewBaseEvent(events.ReplyFailedEvent, evt.ChatID),
			FlowID:     flowID,
			TemplateID: templateID,
			Error:      err.Error(),
		})

		return
	}

	result.Outcome = OutcomeReplied

	d.logger.InfoContext(ctx, "Sent automated reply",
		"chat_id", evt.ChatID, "flow_id", flowID, "template_id", templateID, "duration", elapsed)
	d.metrics.ReplyRecorded(string(match.Kind), "ok", elapsed.Seconds())
	d.publish(ctx, evt.ChatID, events.ReplySent{
		BaseEvent:   events.NewBaseEvent(events.ReplySentEvent, evt.ChatID),
		FlowID:      flowID,
		TemplateID:  templateID,
		MessageType: reply.Type,
		Duration:    elapsed,
	})
}

// ReplyFor resolves the message a match sends: the start node's content for a flow,
// the body for a template.
func ReplyFor(match rules.Match) (models.OutboundMessage, bool) {
	switch match.Kind {
	case rules.MatchFlow:
		start, ok := flow.StartNode(match.Flow.Nodes)
		if !ok {
			return models.OutboundMessage{}, false
		}

		return flow.ResolveContent(start)
	case rules.MatchTemplate:
		if match.Template.Content.Body == "" {
			return models.OutboundMessage{}, false
		}

		return models.NewTextMessage(match.Template.Content.Body), true
	default:
		return models.OutboundMessage{}, false
	}
}

func matchIDs(match rules.Match) (flowID, templateID string) {
	if match.Flow != nil {
		flowID = match.Flow.ID
	}

	if match.Template != nil {
		templateID = match.Template.ID
	}

	return flowID, templateID
}

func (d *Dispatcher) publish(ctx context.Context, key string, event eventbus.Event) {
	if err := d.publisher.Publish(ctx, key, event); err != nil {
		d.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
