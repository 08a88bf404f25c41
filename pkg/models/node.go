package models

import (
	"encoding/json"
	"fmt"
)

// NodeType is the closed set of node variants a flow can contain.
type NodeType string

const (
	NodeTypeStart       NodeType = "start"
	NodeTypeText        NodeType = "text"
	NodeTypeImage       NodeType = "image"
	NodeTypeAudio       NodeType = "audio"
	NodeTypeVideo       NodeType = "video"
	NodeTypeDocument    NodeType = "document"
	NodeTypeButton      NodeType = "button"
	NodeTypeList        NodeType = "list"
	NodeTypeAssignAgent NodeType = "assign-agent"
	NodeTypeDisableChat NodeType = "disable-chat"
	NodeTypeAPIRequest  NodeType = "api-request"
)

// NodeTypes lists every supported node type in palette order.
var NodeTypes = []NodeType{
	NodeTypeStart,
	NodeTypeText,
	NodeTypeImage,
	NodeTypeAudio,
	NodeTypeVideo,
	NodeTypeDocument,
	NodeTypeButton,
	NodeTypeList,
	NodeTypeAssignAgent,
	NodeTypeDisableChat,
	NodeTypeAPIRequest,
}

// Valid reports whether t is one of the supported node types.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}

	return false
}

// IsMedia reports whether nodes of this type carry a media attachment.
func (t NodeType) IsMedia() bool {
	switch t {
	case NodeTypeImage, NodeTypeAudio, NodeTypeVideo, NodeTypeDocument:
		return true
	default:
		return false
	}
}

// Position is the canvas location of a node. The engine never reads it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FlowNode is a node instance in a flow. Config always holds the variant matching Type.
type FlowNode struct {
	ID       string     `json:"id"   validate:"required"`
	Type     NodeType   `json:"type" validate:"required"`
	Position Position   `json:"position"`
	Config   NodeConfig `json:"-"`
}

type flowNodeJSON struct {
	ID       string         `json:"id"`
	Type     NodeType       `json:"type"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
}

// MarshalJSON writes the node with its config under "data", the builder's wire shape.
func (n FlowNode) MarshalJSON() ([]byte, error) {
	var data map[string]any

	if n.Config != nil {
		raw, err := json.Marshal(n.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal config of node %s: %w", n.ID, err)
		}

		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to marshal config of node %s: %w", n.ID, err)
		}
	}

	return json.Marshal(flowNodeJSON{
		ID:       n.ID,
		Type:     n.Type,
		Position: n.Position,
		Data:     data,
	})
}

// UnmarshalJSON accepts the config under either "data" or "config" and decodes it
// into the variant selected by "type".
func (n *FlowNode) UnmarshalJSON(b []byte) error {
	var aux flowNodeJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	raw := aux.Data
	if raw == nil {
		raw = aux.Config
	}

	config, err := DecodeNodeConfig(aux.Type, raw)
	if err != nil {
		return fmt.Errorf("node %s: %w", aux.ID, err)
	}

	n.ID = aux.ID
	n.Type = aux.Type
	n.Position = aux.Position
	n.Config = config

	return nil
}
