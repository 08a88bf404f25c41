package flow_test

import (
	"errors"
	"testing"

	"github.com/dukex/flowbot/pkg/flow"
	"github.com/dukex/flowbot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNode(t *testing.T, id string, nodeType models.NodeType) models.FlowNode {
	t.Helper()

	node, err := flow.NewNode(id, nodeType, models.Position{})
	require.NoError(t, err)

	return node
}

func buttonNode(id string, buttons ...string) models.FlowNode {
	cfg := models.ButtonConfig{Content: "Choose"}
	for _, b := range buttons {
		cfg.Buttons = append(cfg.Buttons, models.Button{ID: b, Title: b})
	}

	return models.FlowNode{ID: id, Type: models.NodeTypeButton, Config: cfg}
}

func TestValidateConnection(t *testing.T) {
	t.Parallel()

	start := mustNode(t, "start-1", models.NodeTypeStart)
	text1 := mustNode(t, "text-1", models.NodeTypeText)
	text2 := mustNode(t, "text-2", models.NodeTypeText)
	api := mustNode(t, "api-1", models.NodeTypeAPIRequest)
	stop := mustNode(t, "stop-1", models.NodeTypeDisableChat)
	buttons := buttonNode("btn-1", "yes", "no")

	nodes := []models.FlowNode{start, text1, text2, api, stop, buttons}

	tests := []struct {
		name    string
		edge    models.FlowEdge
		edges   []models.FlowEdge
		wantErr error
	}{
		{
			name: "start to text",
			edge: models.FlowEdge{ID: "e1", Source: "start-1", Target: "text-1"},
		},
		{
			name:    "missing source node",
			edge:    models.FlowEdge{ID: "e1", Source: "ghost", Target: "text-1"},
			wantErr: flow.ErrSourceNodeMissing,
		},
		{
			name:    "missing target node",
			edge:    models.FlowEdge{ID: "e1", Source: "start-1", Target: "ghost"},
			wantErr: flow.ErrTargetNodeMissing,
		},
		{
			name:    "self loop",
			edge:    models.FlowEdge{ID: "e1", Source: "text-1", Target: "text-1"},
			wantErr: flow.ErrSelfLoop,
		},
		{
			name:    "target port already has an incoming edge",
			edge:    models.FlowEdge{ID: "e2", Source: "text-2", Target: "text-1"},
			edges:   []models.FlowEdge{{ID: "e1", Source: "start-1", Target: "text-1"}},
			wantErr: flow.ErrTargetPortOccupied,
		},
		{
			name:  "second button port to a distinct target",
			edge:  models.FlowEdge{ID: "e2", Source: "btn-1", SourcePort: "no", Target: "text-2"},
			edges: []models.FlowEdge{{ID: "e1", Source: "btn-1", SourcePort: "yes", Target: "text-1"}},
		},
		{
			name:    "same button port twice",
			edge:    models.FlowEdge{ID: "e2", Source: "btn-1", SourcePort: "yes", Target: "text-2"},
			edges:   []models.FlowEdge{{ID: "e1", Source: "btn-1", SourcePort: "yes", Target: "text-1"}},
			wantErr: flow.ErrSourcePortOccupied,
		},
		{
			name:    "button node needs an explicit port",
			edge:    models.FlowEdge{ID: "e1", Source: "btn-1", Target: "text-1"},
			wantErr: flow.ErrUnknownSourcePort,
		},
		{
			name:    "nothing connects into start",
			edge:    models.FlowEdge{ID: "e1", Source: "text-1", Target: "start-1"},
			wantErr: flow.ErrUnknownTargetPort,
		},
		{
			name:    "disable chat is terminal",
			edge:    models.FlowEdge{ID: "e1", Source: "stop-1", Target: "text-1"},
			wantErr: flow.ErrUnknownSourcePort,
		},
		{
			name:  "api request error branch",
			edge:  models.FlowEdge{ID: "e2", Source: "api-1", SourcePort: flow.PortError, Target: "text-2"},
			edges: []models.FlowEdge{{ID: "e1", Source: "api-1", SourcePort: flow.PortSuccess, Target: "text-1"}},
		},
		{
			name:  "cycles are legal",
			edge:  models.FlowEdge{ID: "e2", Source: "text-2", Target: "text-1"},
			edges: []models.FlowEdge{{ID: "e1", Source: "text-1", Target: "text-2"}},
		},
		{
			name:  "explicit handles equal the implicit ones",
			edge:  models.FlowEdge{ID: "e1", Source: "start-1", SourcePort: flow.PortOut, Target: "text-1", TargetPort: flow.PortIn},
			edges: []models.FlowEdge{{ID: "e0", Source: "text-2", Target: "api-1"}},
		},
		{
			name:  "replacing an edge keeps its own port",
			edge:  models.FlowEdge{ID: "e1", Source: "start-1", Target: "text-2"},
			edges: []models.FlowEdge{{ID: "e1", Source: "start-1", Target: "text-1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := flow.ValidateConnection(tt.edge, nodes, tt.edges)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.True(t, flow.CanConnect(tt.edge, nodes, tt.edges))

				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.True(t, flow.IsValidationError(err))
			assert.False(t, flow.CanConnect(tt.edge, nodes, tt.edges))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg, err := flow.DefaultConfig(models.NodeTypeStart)
	require.NoError(t, err)
	assert.Equal(t, models.StartConfig{Label: "Start", Content: "Welcome!"}, cfg)

	for _, nodeType := range models.NodeTypes {
		cfg, err := flow.DefaultConfig(nodeType)
		require.NoError(t, err, nodeType)
		assert.Equal(t, nodeType, cfg.NodeType())
	}

	_, err = flow.DefaultConfig("carousel")
	assert.ErrorIs(t, err, models.ErrUnknownNodeType)
}

func TestStartNode_FirstStartInNodeOrder(t *testing.T) {
	t.Parallel()

	nodes := []models.FlowNode{
		{ID: "text-1", Type: models.NodeTypeText, Config: models.TextConfig{Content: "x"}},
		{ID: "entry", Type: models.NodeTypeStart, Config: models.StartConfig{Content: "first"}},
		{ID: "start-1", Type: models.NodeTypeStart, Config: models.StartConfig{Content: "second"}},
	}

	start, ok := flow.StartNode(nodes)
	require.True(t, ok)
	assert.Equal(t, "entry", start.ID)

	_, ok = flow.StartNode(nodes[:1])
	assert.False(t, ok)
}

func TestUnreachable(t *testing.T) {
	t.Parallel()

	f := models.Flow{
		Nodes: []models.FlowNode{
			mustNode(t, "start-1", models.NodeTypeStart),
			mustNode(t, "text-1", models.NodeTypeText),
			mustNode(t, "text-2", models.NodeTypeText),
			mustNode(t, "text-3", models.NodeTypeText),
		},
		Edges: []models.FlowEdge{
			{ID: "e1", Source: "start-1", Target: "text-1"},
			{ID: "e2", Source: "text-2", Target: "text-3"},
		},
	}

	assert.Equal(t, []string{"text-2", "text-3"}, flow.Unreachable(f))
	assert.True(t, flow.Reachable(f)["text-1"])
}

func TestResolveContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		node     models.FlowNode
		wantOK   bool
		wantType models.MessageType
		wantText string
	}{
		{
			name:     "start",
			node:     models.FlowNode{Type: models.NodeTypeStart, Config: models.StartConfig{Content: "Welcome!"}},
			wantOK:   true,
			wantType: models.MessageTypeText,
			wantText: "Welcome!",
		},
		{
			name:   "blank start",
			node:   models.FlowNode{Type: models.NodeTypeStart, Config: models.StartConfig{Content: "  "}},
			wantOK: false,
		},
		{
			name:     "text",
			node:     models.FlowNode{Type: models.NodeTypeText, Config: models.TextConfig{Content: "hi"}},
			wantOK:   true,
			wantType: models.MessageTypeText,
			wantText: "hi",
		},
		{
			name: "image",
			node: models.FlowNode{Type: models.NodeTypeImage, Config: models.MediaConfig{
				Kind: models.NodeTypeImage, URL: "https://cdn.example.com/a.png",
			}},
			wantOK:   true,
			wantType: models.MessageTypeImage,
		},
		{
			name:   "media without url",
			node:   models.FlowNode{Type: models.NodeTypeAudio, Config: models.MediaConfig{Kind: models.NodeTypeAudio}},
			wantOK: false,
		},
		{
			name:     "buttons",
			node:     buttonNode("b", "yes"),
			wantOK:   true,
			wantType: models.MessageTypeInteractive,
			wantText: "Choose",
		},
		{
			name:   "assign agent sends nothing",
			node:   models.FlowNode{Type: models.NodeTypeAssignAgent, Config: models.AssignAgentConfig{}},
			wantOK: false,
		},
		{
			name:   "api request sends nothing",
			node:   models.FlowNode{Type: models.NodeTypeAPIRequest, Config: models.APIRequestConfig{}},
			wantOK: false,
		},
		{
			name:   "missing config",
			node:   models.FlowNode{Type: models.NodeTypeText},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, ok := flow.ResolveContent(tt.node)
			assert.Equal(t, tt.wantOK, ok)

			if tt.wantOK {
				assert.Equal(t, tt.wantType, msg.Type)
				assert.Equal(t, tt.wantText, msg.Body.Text)
			}
		})
	}
}

func TestValidateFlow(t *testing.T) {
	t.Parallel()

	valid := models.Flow{
		ID: "f1",
		Nodes: []models.FlowNode{
			mustNode(t, "start-1", models.NodeTypeStart),
			mustNode(t, "text-1", models.NodeTypeText),
			mustNode(t, "text-2", models.NodeTypeText),
		},
		Edges: []models.FlowEdge{{ID: "e1", Source: "start-1", Target: "text-1"}},
	}

	t.Run("valid with unreachable node", func(t *testing.T) {
		t.Parallel()

		report, err := flow.ValidateFlow(valid)
		require.NoError(t, err)
		assert.Equal(t, []string{"text-2"}, report.Unreachable)
	})

	t.Run("no start node", func(t *testing.T) {
		t.Parallel()

		f := valid.Clone()
		f.Nodes = f.Nodes[1:]
		f.Edges = nil

		_, err := flow.ValidateFlow(f)
		assert.ErrorIs(t, err, flow.ErrNoStartNode)
	})

	t.Run("two start nodes", func(t *testing.T) {
		t.Parallel()

		f := valid.Clone()
		f.Nodes = append(f.Nodes, mustNode(t, "start-2", models.NodeTypeStart))

		_, err := flow.ValidateFlow(f)
		assert.ErrorIs(t, err, flow.ErrMultipleStartNodes)
	})

	t.Run("fan-in edge rejected and ignored for reachability", func(t *testing.T) {
		t.Parallel()

		f := valid.Clone()
		f.Edges = append(f.Edges, models.FlowEdge{ID: "e2", Source: "text-2", Target: "text-1"})

		report, err := flow.ValidateFlow(f)
		assert.ErrorIs(t, err, flow.ErrTargetPortOccupied)
		assert.Equal(t, []string{"text-2"}, report.Unreachable)
	})

	t.Run("api request config fails schema", func(t *testing.T) {
		t.Parallel()

		f := valid.Clone()
		f.Nodes = append(f.Nodes, models.FlowNode{
			ID:     "api-1",
			Type:   models.NodeTypeAPIRequest,
			Config: models.APIRequestConfig{Method: "FETCH", URL: "ftp://example.com"},
		})

		_, err := flow.ValidateFlow(f)
		require.ErrorIs(t, err, flow.ErrInvalidNodeConfig)
		assert.Contains(t, err.Error(), "api-1")
	})

	t.Run("config of the wrong variant", func(t *testing.T) {
		t.Parallel()

		f := valid.Clone()
		f.Nodes[1].Config = models.StartConfig{Content: "oops"}

		_, err := flow.ValidateFlow(f)
		assert.ErrorIs(t, err, flow.ErrInvalidNodeConfig)
	})
}
