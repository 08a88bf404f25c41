// Package models defines the core domain models for conversation flows, templates and chat events.
package models

import "time"

// TriggerType selects how a flow's trigger rule is evaluated against inbound text.
type TriggerType string

const (
	TriggerTypeKeyword TriggerType = "keyword" // Inbound text contains any keyword
	TriggerTypeExact   TriggerType = "exact"   // Inbound text equals the exact string
)

// TriggerRule decides whether an inbound message activates a flow.
type TriggerRule struct {
	TriggerType TriggerType `json:"triggerType" validate:"required,oneof=keyword exact"`
	Keywords    []string    `json:"keywords,omitempty"   validate:"required_if=TriggerType keyword,dive,required"`
	ExactMatch  string      `json:"exactMatch,omitempty" validate:"required_if=TriggerType exact"`
}

// Flow is a user-authored conversation graph triggered by a rule.
type Flow struct {
	ID       string     `json:"id"       validate:"required"`
	Name     string     `json:"name"`
	Nodes    []FlowNode `json:"nodes"    validate:"dive"`
	Edges    []FlowEdge `json:"edges"    validate:"dive"`
	IsActive bool       `json:"isActive"`

	TriggerRule

	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Clone returns a deep copy of the flow: node configs included, nothing is shared
// with the receiver.
func (f Flow) Clone() Flow {
	out := f
	out.Nodes = nil

	if f.Nodes != nil {
		out.Nodes = make([]FlowNode, len(f.Nodes))
		for i, n := range f.Nodes {
			if n.Config != nil {
				n.Config = n.Config.clone()
			}

			out.Nodes[i] = n
		}
	}

	out.Edges = append([]FlowEdge(nil), f.Edges...)
	out.Keywords = append([]string(nil), f.Keywords...)

	return out
}

// FlowEdge connects an output port of one node to an input port of another.
type FlowEdge struct {
	ID         string `json:"id"`
	Source     string `json:"source"       validate:"required"`
	SourcePort string `json:"sourceHandle"`
	Target     string `json:"target"       validate:"required"`
	TargetPort string `json:"targetHandle"`
}
