package session

import (
	"context"
	"time"

	"github.com/dukex/flowbot/pkg/backend"
	"github.com/dukex/flowbot/pkg/channel"
	"github.com/dukex/flowbot/pkg/credentials"
	"github.com/dukex/flowbot/pkg/eventbus"
	"github.com/dukex/flowbot/pkg/events"
	"github.com/dukex/flowbot/pkg/models"
	"github.com/dukex/flowbot/pkg/otelhelper"
	"github.com/dukex/flowbot/pkg/rules"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

func (s *EngineSession) followCredential(ctx context.Context, changes <-chan credentials.Change) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}

			if !change.Present {
				s.logout(ctx)

				continue
			}

			s.connect(ctx, change.Credential)
		}
	}
}

// connect opens the channel with credential. A credential different from the
// current one belongs to another user, so everything of the previous one is dropped.
func (s *EngineSession) connect(ctx context.Context, credential string) {
	s.mu.Lock()
	previous := s.credential
	s.credential = credential
	changed := previous != "" && previous != credential

	if changed {
		s.resetLocked()
	}
	s.mu.Unlock()

	if changed {
		s.logger.InfoContext(ctx, "Credential changed, cleared previous session data")
	}

	if err := s.channel.Connect(ctx, credential); err != nil {
		s.logger.ErrorContext(ctx, "Failed to start connecting", "error", err)
	}

	if changed {
		s.clearMessages()
	}
}

// logout handles credential removal: the transport is torn down and every piece of
// session data is cleared since the next user may differ.
func (s *EngineSession) logout(ctx context.Context) {
	s.mu.Lock()
	s.credential = ""
	s.resetLocked()
	s.mu.Unlock()

	s.channel.Disconnect(ctx, "credential removed")
	s.clearMessages()

	s.logger.InfoContext(ctx, "Credential removed, session cleared")
}

// clearMessages empties the buffer once the old connection is gone. Observe holds
// the same lock, so anything it recorded before the teardown is removed here and
// anything after it is rejected as stale.
func (s *EngineSession) clearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer.Clear()
}

func (s *EngineSession) resetLocked() {
	s.generation.Add(1)
	s.store.Clear()
	s.buffer.Clear()
	s.lastErr = nil
	s.lastReload = time.Time{}
	s.metrics.RulesCleared()
}

func (s *EngineSession) followStates(ctx context.Context) {
	defer s.wg.Done()

	states := s.channel.StateChanges()

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-states:
			if !ok {
				return
			}

			s.onStateChange(ctx, change)
		}
	}
}

func (s *EngineSession) onStateChange(ctx context.Context, change channel.StateChange) {
	s.logger.InfoContext(ctx, "Channel state changed",
		"from", change.From, "to", change.To, "reason", change.Reason)

	s.publish(ctx, events.SessionStateChanged{
		BaseEvent: events.NewBaseEvent(events.SessionStateChangedEvent, ""),
		From:      change.From.String(),
		To:        change.To.String(),
		Reason:    change.Reason,
	})

	switch change.To {
	case channel.StateConnected:
		gen := s.generation.Add(1)

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()

			s.loadRules(ctx, gen)
		}()

		s.scheduleRefresh(ctx)
	case channel.StateDisconnected:
		// Rules survive a drop so a quick reconnect resumes matching at once.
		s.clearMessages()
		s.unscheduleRefresh()
	case channel.StateReconnecting:
		s.unscheduleRefresh()
	case channel.StateConnecting:
	}
}

// loadRules runs after a connect: it waits for the settle delay, then fetches once,
// retrying a single time on transient failures. Results of a superseded
// generation are dropped.
func (s *EngineSession) loadRules(ctx context.Context, gen uint64) {
	if !s.sleep(ctx, s.cfg.SettleDelay) || s.generation.Load() != gen {
		return
	}

	err := s.reload(ctx, gen)
	if err != nil && backend.IsTransient(err) {
		s.logger.WarnContext(ctx, "Rule fetch failed, retrying once", "error", err, "retry_in", s.cfg.RetryDelay)

		if !s.sleep(ctx, s.cfg.RetryDelay) || s.generation.Load() != gen {
			return
		}

		err = s.reload(ctx, gen)
	}

	if err != nil {
		s.logger.WarnContext(ctx, "Keeping previous rules after failed fetch", "error", err)
	}
}

func (s *EngineSession) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// reload fetches flows and templates concurrently and publishes a new snapshot
// unless the session moved past gen meanwhile.
func (s *EngineSession) reload(ctx context.Context, gen uint64) error {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "session.reload",
		attribute.Int64(otelhelper.GenerationKey, int64(gen)))
	defer span.End()

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	var (
		flows     []models.Flow
		templates []models.Template
	)

	g, gctx := errgroup.WithContext(fetchCtx)

	g.Go(func() error {
		var err error

		flows, err = s.fetcher.FetchFlows(gctx)

		return err
	})

	g.Go(func() error {
		var err error

		templates, err = s.fetcher.FetchTemplates(gctx)

		return err
	})

	if err := g.Wait(); err != nil {
		otelhelper.SetError(span, err)
		s.metrics.RulesReloaded("failed", 0, 0)

		s.mu.Lock()
		if s.generation.Load() == gen {
			s.lastErr = err
		}
		s.mu.Unlock()

		return err
	}

	idx := rules.Build(flows, templates, rules.WithSortByID(s.cfg.SortRules))

	s.mu.Lock()
	if s.generation.Load() != gen {
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "Discarding rules of a superseded session", "generation", gen)

		return ErrSuperseded
	}

	s.store.Publish(idx)
	s.lastReload = idx.BuiltAt
	s.lastErr = nil
	s.mu.Unlock()

	s.metrics.RulesReloaded("ok", len(idx.Rules), len(idx.Templates))
	s.logger.InfoContext(ctx, "Rules reloaded",
		"flows", len(idx.Rules), "templates", len(idx.Templates), "generation", gen)
	s.publish(ctx, events.RulesReloaded{
		BaseEvent:  events.NewBaseEvent(events.RulesReloadedEvent, ""),
		Flows:      len(idx.Rules),
		Templates:  len(idx.Templates),
		Generation: gen,
	})

	return nil
}

func (s *EngineSession) scheduleRefresh(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduled || s.cron == nil {
		return
	}

	id, err := s.cron.AddFunc(s.cfg.RefreshSchedule, func() {
		if err := s.reload(ctx, s.generation.Load()); err != nil {
			s.logger.WarnContext(ctx, "Scheduled rule refresh failed", "error", err)
		}
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to schedule rule refresh", "error", err)

		return
	}

	s.refreshID = id
	s.scheduled = true
}

func (s *EngineSession) unscheduleRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scheduled {
		return
	}

	s.cron.Remove(s.refreshID)
	s.scheduled = false
}

func (s *EngineSession) publish(ctx context.Context, event eventbus.Event) {
	if err := s.publisher.Publish(ctx, "session", event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
