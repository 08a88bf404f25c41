package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/flowbot/pkg/backend"
	"github.com/dukex/flowbot/pkg/credentials"
	"github.com/dukex/flowbot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flowsPayload = `{
	"success": true,
	"data": [
		{
			"id": "f1",
			"name": "Greeting",
			"isActive": true,
			"triggerType": "keyword",
			"keywords": ["hi", "hello"],
			"nodes": [
				{"id": "start-1", "type": "start", "position": {"x": 0, "y": 0}, "data": {"label": "Start", "content": "Welcome!"}}
			],
			"edges": []
		},
		{"id": "broken", "isActive": true, "triggerType": "keyword", "nodes": [{"id": "n", "type": "carousel", "data": {}}]},
		{"id": "no-keywords", "isActive": true, "triggerType": "keyword"},
		{"id": "draft", "isActive": false}
	]
}`

func newClient(t *testing.T, handler http.HandlerFunc, credential string) *backend.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return backend.NewClient(server.URL+"/api/", credentials.NewMemory(credential), slog.New(slog.DiscardHandler),
		backend.WithPaths(backend.Paths{Flows: "/flows", Templates: "/templates", Send: "/send"}))
}

func TestFetchFlows(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/flows", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(flowsPayload))
	}, "token")

	flows, err := client.FetchFlows(context.Background())
	require.NoError(t, err)
	require.Len(t, flows, 2)

	assert.Equal(t, "f1", flows[0].ID)
	assert.Equal(t, models.TriggerTypeKeyword, flows[0].TriggerType)
	assert.Equal(t, []string{"hi", "hello"}, flows[0].Keywords)
	require.Len(t, flows[0].Nodes, 1)
	assert.Equal(t, models.StartConfig{Label: "Start", Content: "Welcome!"}, flows[0].Nodes[0].Config)

	assert.Equal(t, "draft", flows[1].ID)
	assert.False(t, flows[1].IsActive)
}

func TestFetchFlows_KeepsFlowsWithUsableTrigger(t *testing.T) {
	t.Parallel()

	const payload = `{
		"success": true,
		"data": [
			{
				"id": "blank-kw",
				"isActive": true,
				"triggerType": "keyword",
				"keywords": ["hi", ""],
				"nodes": [{"id": "start-1", "type": "start", "data": {"label": "Start", "content": "Welcome!"}}]
			},
			{
				"id": "half-edge",
				"isActive": true,
				"triggerType": "exact",
				"exactMatch": "menu",
				"nodes": [{"id": "start-1", "type": "start", "data": {"label": "Start", "content": "Our menu"}}],
				"edges": [{"id": "e1", "source": "start-1", "sourceHandle": "output", "target": ""}]
			},
			{"id": "no-exact", "isActive": true, "triggerType": "exact"}
		]
	}`

	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(payload))
	}, "token")

	flows, err := client.FetchFlows(context.Background())
	require.NoError(t, err)
	require.Len(t, flows, 2)

	assert.Equal(t, "blank-kw", flows[0].ID)
	assert.Equal(t, []string{"hi", ""}, flows[0].Keywords)
	assert.Equal(t, "half-edge", flows[1].ID)
	require.Len(t, flows[1].Edges, 1)
	assert.Empty(t, flows[1].Edges[0].Target)
}

func TestFetchTemplates(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"t1","title":"Status","type":"TEXT","content":{"body":"order status"}}]}`))
	}, "token")

	templates, err := client.FetchTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, models.TemplateTypeText, templates[0].Type)
	assert.Equal(t, "order status", templates[0].Content.Body)
}

func TestFetch_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		body          string
		credential    string
		wantTransient bool
		wantErr       error
	}{
		{name: "server error", status: http.StatusBadGateway, body: `{}`, credential: "token", wantTransient: true, wantErr: backend.ErrUnsuccessful},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, credential: "token", wantTransient: true},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"success":false,"msg":"bad token"}`, credential: "token", wantErr: backend.ErrUnsuccessful},
		{name: "success false", status: http.StatusOK, body: `{"success":false,"msg":"nope"}`, credential: "token", wantErr: backend.ErrUnsuccessful},
		{name: "malformed body", status: http.StatusOK, body: `not json`, credential: "token"},
		{name: "no credential", status: http.StatusOK, body: `{"success":true}`, wantErr: backend.ErrNoCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, tt.credential)

			_, err := client.FetchTemplates(context.Background())
			require.Error(t, err)

			var fetchErr *backend.FetchError
			require.True(t, errors.As(err, &fetchErr))
			assert.Equal(t, "FetchTemplates", fetchErr.Op)
			assert.Equal(t, tt.wantTransient, backend.IsTransient(err))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestFetch_NetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := backend.NewClient(url, credentials.NewMemory("token"), slog.New(slog.DiscardHandler))

	_, err := client.FetchFlows(context.Background())
	require.Error(t, err)
	assert.True(t, backend.IsTransient(err))
}

func TestSendMessage(t *testing.T) {
	t.Parallel()

	var got map[string]string

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/send", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"success":true}`))
	}, "token")

	err := client.SendMessage(context.Background(), "chat-1", models.NewTextMessage("Welcome!"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"chatId": "chat-1", "message": "Welcome!", "type": "text"}, got)
}

func TestSendMessage_Rejected(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"msg":"chat closed"}`))
	}, "token")

	err := client.SendMessage(context.Background(), "chat-1", models.NewTextMessage("hi"))
	require.ErrorIs(t, err, backend.ErrUnsuccessful)
	assert.Contains(t, err.Error(), "chat closed")
}
