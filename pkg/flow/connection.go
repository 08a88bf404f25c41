package flow

import (
	"github.com/dukex/flowbot/pkg/models"
)

// ValidateConnection checks a candidate edge against the nodes and the edges already
// in the flow. Cycles are allowed; fan-in on a target port and reuse of a source port
// are not. An edge whose ID matches an existing edge is validated as its replacement.
func ValidateConnection(edge models.FlowEdge, nodes []models.FlowNode, edges []models.FlowEdge) error {
	const op = "ValidateConnection"

	source, ok := findNode(nodes, edge.Source)
	if !ok {
		return &ValidationError{Op: op, EdgeID: edge.ID, Message: edge.Source, Err: ErrSourceNodeMissing}
	}

	target, ok := findNode(nodes, edge.Target)
	if !ok {
		return &ValidationError{Op: op, EdgeID: edge.ID, Message: edge.Target, Err: ErrTargetNodeMissing}
	}

	if edge.Source == edge.Target {
		return &ValidationError{Op: op, EdgeID: edge.ID, NodeID: edge.Source, Err: ErrSelfLoop}
	}

	sourcePorts := OutputPorts(source)

	sourcePort, ok := resolvePort(sourcePorts, edge.SourcePort)
	if !ok {
		return &ValidationError{Op: op, EdgeID: edge.ID, Message: edge.SourcePort, Err: ErrUnknownSourcePort}
	}

	targetPorts := InputPorts(target)

	targetPort, ok := resolvePort(targetPorts, edge.TargetPort)
	if !ok {
		return &ValidationError{Op: op, EdgeID: edge.ID, Message: edge.TargetPort, Err: ErrUnknownTargetPort}
	}

	for _, existing := range edges {
		if edge.ID != "" && existing.ID == edge.ID {
			continue
		}

		if existing.Target == edge.Target {
			if port, _ := resolvePort(targetPorts, existing.TargetPort); port == targetPort {
				return &ValidationError{Op: op, EdgeID: edge.ID, Message: existing.ID, Err: ErrTargetPortOccupied}
			}
		}

		if existing.Source == edge.Source {
			if port, _ := resolvePort(sourcePorts, existing.SourcePort); port == sourcePort {
				return &ValidationError{Op: op, EdgeID: edge.ID, Message: existing.ID, Err: ErrSourcePortOccupied}
			}
		}
	}

	return nil
}

// CanConnect is the boolean form of ValidateConnection used by the builder.
func CanConnect(edge models.FlowEdge, nodes []models.FlowNode, edges []models.FlowEdge) bool {
	return ValidateConnection(edge, nodes, edges) == nil
}

func findNode(nodes []models.FlowNode, id string) (models.FlowNode, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}

	return models.FlowNode{}, false
}
