package metrics_test

import (
	"testing"

	"github.com/dukex/flowbot/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.New()

	m.InboundHandled("replied")
	m.InboundHandled("replied")
	m.InboundHandled("no_match")
	m.RulesReloaded("ok", 3, 2)
	m.ChannelState("connected", []string{"disconnected", "connected"})

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	count, err := testutil.GatherAndCount(m.Registry(), "flowbot_inbound_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(m.Registry(), "flowbot_active_rules")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.InboundHandled("replied")
		m.ReplyRecorded("flow", "ok", 0.1)
		m.RulesReloaded("ok", 1, 1)
		m.RulesCleared()
		m.ChannelState("connected", []string{"connected"})
		m.ReconnectAttempt()
	})
}
