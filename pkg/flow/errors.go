// Package flow implements the flow graph model: typed ports, connection validation,
// node defaults and content resolution.
package flow

import (
	"errors"
	"fmt"
)

// Connection and flow validation errors.
var (
	ErrSourceNodeMissing  = errors.New("source node does not exist")
	ErrTargetNodeMissing  = errors.New("target node does not exist")
	ErrSelfLoop           = errors.New("node cannot connect to itself")
	ErrUnknownSourcePort  = errors.New("source port is not an output of the source node")
	ErrUnknownTargetPort  = errors.New("target port is not an input of the target node")
	ErrTargetPortOccupied = errors.New("target port already has an incoming edge")
	ErrSourcePortOccupied = errors.New("source port already has an outgoing edge")
	ErrNoStartNode        = errors.New("flow has no start node")
	ErrMultipleStartNodes = errors.New("flow has more than one start node")
	ErrDuplicateNodeID    = errors.New("duplicate node id")
	ErrInvalidNodeConfig  = errors.New("invalid node config")
)

// ValidationError describes a rejected edge or node with the offending identifiers.
type ValidationError struct {
	Op      string // Operation being performed (e.g. "ValidateConnection")
	EdgeID  string // Edge under validation, if any
	NodeID  string // Node under validation, if any
	Message string // Additional context
	Err     error  // Underlying sentinel
}

func (e *ValidationError) Error() string {
	target := "flow"

	switch {
	case e.EdgeID != "":
		target = "edge " + e.EdgeID
	case e.NodeID != "":
		target = "node " + e.NodeID
	}

	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %v (%s)", e.Op, target, e.Err, e.Message)
	}

	return fmt.Sprintf("%s: %s: %v", e.Op, target, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError reports whether err was produced by flow validation.
func IsValidationError(err error) bool {
	var verr *ValidationError

	return errors.As(err, &verr)
}
