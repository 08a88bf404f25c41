// Package web provides the HTTP admin API of the flow engine.
package web

import (
	"time"

	"github.com/dukex/flowbot/pkg/dispatcher"
	"github.com/dukex/flowbot/pkg/flow"
	"github.com/dukex/flowbot/pkg/models"
	"github.com/dukex/flowbot/pkg/rules"
)

// ValidateConnectionRequest is a candidate edge checked against the current graph.
type ValidateConnectionRequest struct {
	Edge  models.FlowEdge   `json:"edge"  validate:"required"`
	Nodes []models.FlowNode `json:"nodes" validate:"required"`
	Edges []models.FlowEdge `json:"edges"`
}

// ValidateConnectionResponse tells whether the edge may be added.
type ValidateConnectionResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidateFlowResponse is returned for a structurally valid flow.
type ValidateFlowResponse struct {
	Valid       bool     `json:"valid"`
	Unreachable []string `json:"unreachable,omitempty"`
}

// MatchRequest is an inbound text to dry-run against the published rules.
type MatchRequest struct {
	Text string `json:"text" validate:"required"`
}

// MatchResponse describes which rule would fire and what it would send.
type MatchResponse struct {
	Kind       rules.MatchKind         `json:"kind"`
	FlowID     string                  `json:"flowId,omitempty"`
	FlowName   string                  `json:"flowName,omitempty"`
	TemplateID string                  `json:"templateId,omitempty"`
	Reply      *models.OutboundMessage `json:"reply,omitempty"`
	BuiltAt    time.Time               `json:"builtAt,omitzero"`
}

// MessagesResponse lists buffered session messages.
type MessagesResponse struct {
	ChatID   string                 `json:"chatId,omitempty"`
	Messages []models.MessageRecord `json:"messages"`
}

// NewMatchResponse describes match against idx, including the reply it would send.
func NewMatchResponse(idx *rules.Index, match rules.Match) MatchResponse {
	resp := MatchResponse{Kind: match.Kind}

	if idx != nil {
		resp.BuiltAt = idx.BuiltAt
	}

	if match.Flow != nil {
		resp.FlowID = match.Flow.ID
		resp.FlowName = match.Flow.Name
	}

	if match.Template != nil {
		resp.TemplateID = match.Template.ID
	}

	if reply, ok := dispatcher.ReplyFor(match); ok {
		resp.Reply = &reply
	}

	return resp
}

func newValidateFlowResponse(report flow.Report) ValidateFlowResponse {
	return ValidateFlowResponse{Valid: true, Unreachable: report.Unreachable}
}
