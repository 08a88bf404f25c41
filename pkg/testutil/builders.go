// Package testutil provides test data builders for flows, templates and chat events.
package testutil

import (
	"fmt"

	"github.com/dukex/flowbot/pkg/models"
	"github.com/google/uuid"
)

// CreateTestFlow creates an active keyword flow with a single start node. Overrides
// are applied in order.
func CreateTestFlow(overrides ...func(*models.Flow)) models.Flow {
	f := models.Flow{
		ID:       uuid.New().String(),
		Name:     "Test Flow",
		IsActive: true,
		TriggerRule: models.TriggerRule{
			TriggerType: models.TriggerTypeKeyword,
			Keywords:    []string{"hello"},
		},
		Nodes: []models.FlowNode{
			{ID: "start-1", Type: models.NodeTypeStart, Config: models.StartConfig{Content: "Hello!"}},
		},
	}

	for _, override := range overrides {
		override(&f)
	}

	return f
}

// WithID sets the flow id.
func WithID(id string) func(*models.Flow) {
	return func(f *models.Flow) {
		f.ID = id
	}
}

// WithKeywords makes the flow a keyword flow triggered by any of keywords.
func WithKeywords(keywords ...string) func(*models.Flow) {
	return func(f *models.Flow) {
		f.TriggerRule = models.TriggerRule{TriggerType: models.TriggerTypeKeyword, Keywords: keywords}
	}
}

// WithExactMatch makes the flow an exact-match flow.
func WithExactMatch(exact string) func(*models.Flow) {
	return func(f *models.Flow) {
		f.TriggerRule = models.TriggerRule{TriggerType: models.TriggerTypeExact, ExactMatch: exact}
	}
}

// WithInactive marks the flow inactive.
func WithInactive() func(*models.Flow) {
	return func(f *models.Flow) {
		f.IsActive = false
	}
}

// WithStartContent sets the content of the flow's start node.
func WithStartContent(content string) func(*models.Flow) {
	return func(f *models.Flow) {
		for i, n := range f.Nodes {
			if n.Type == models.NodeTypeStart {
				f.Nodes[i].Config = models.StartConfig{Content: content}
			}
		}
	}
}

// WithTextNode appends a text node linked from source.
func WithTextNode(id, content, source string) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Nodes = append(f.Nodes, models.FlowNode{
			ID:     id,
			Type:   models.NodeTypeText,
			Config: models.TextConfig{Content: content},
		})
		f.Edges = append(f.Edges, models.FlowEdge{
			ID:     fmt.Sprintf("e-%s-%s", source, id),
			Source: source,
			Target: id,
		})
	}
}

// CreateTestTemplate creates a TEXT template with body.
func CreateTestTemplate(id, body string, overrides ...func(*models.Template)) models.Template {
	t := models.Template{
		ID:      id,
		Title:   "Test Template",
		Type:    models.TemplateTypeText,
		Content: models.TemplateContent{Body: body},
	}

	for _, override := range overrides {
		override(&t)
	}

	return t
}

// WithTemplateType sets the template type.
func WithTemplateType(templateType models.TemplateType) func(*models.Template) {
	return func(t *models.Template) {
		t.Type = templateType
	}
}

// IncomingText creates an incoming text event for chatID.
func IncomingText(chatID, text string) models.InboundEvent {
	return models.InboundEvent{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		Direction: models.DirectionIncoming,
		Type:      models.MessageTypeText,
		Body:      models.EventBody{Text: models.StringPtr(text)},
	}
}
