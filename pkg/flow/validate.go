package flow

import (
	"errors"

	"github.com/dukex/flowbot/pkg/models"
)

// Report summarizes a flow validation that produced no errors worth rejecting on.
type Report struct {
	Unreachable []string `json:"unreachable,omitempty"`
}

// ValidateFlow checks the whole graph: exactly one start node, unique node ids,
// node configs matching their schema, and every edge accepted by ValidateConnection
// in order. Unreachable nodes are reported, not rejected.
func ValidateFlow(f models.Flow) (Report, error) {
	const op = "ValidateFlow"

	var errs []error

	starts := 0
	ids := make(map[string]bool, len(f.Nodes))

	for _, n := range f.Nodes {
		if ids[n.ID] {
			errs = append(errs, &ValidationError{Op: op, NodeID: n.ID, Err: ErrDuplicateNodeID})
		}

		ids[n.ID] = true

		if n.Type == models.NodeTypeStart {
			starts++
		}

		if err := ValidateNodeConfig(n); err != nil {
			errs = append(errs, err)
		}
	}

	switch {
	case starts == 0:
		errs = append(errs, &ValidationError{Op: op, Err: ErrNoStartNode})
	case starts > 1:
		errs = append(errs, &ValidationError{Op: op, Err: ErrMultipleStartNodes})
	}

	accepted := make([]models.FlowEdge, 0, len(f.Edges))

	for _, e := range f.Edges {
		if err := ValidateConnection(e, f.Nodes, accepted); err != nil {
			errs = append(errs, err)

			continue
		}

		accepted = append(accepted, e)
	}

	checked := f
	checked.Edges = accepted

	return Report{Unreachable: Unreachable(checked)}, errors.Join(errs...)
}
