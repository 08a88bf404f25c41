package flow

import "github.com/dukex/flowbot/pkg/models"

// StartNode returns the first start-type node in node order.
func StartNode(nodes []models.FlowNode) (models.FlowNode, bool) {
	for _, n := range nodes {
		if n.Type == models.NodeTypeStart {
			return n, true
		}
	}

	return models.FlowNode{}, false
}

// Reachable returns the ids of nodes reachable from the start node, start included.
func Reachable(f models.Flow) map[string]bool {
	seen := make(map[string]bool, len(f.Nodes))

	start, ok := StartNode(f.Nodes)
	if !ok {
		return seen
	}

	adjacency := make(map[string][]string, len(f.Nodes))
	for _, e := range f.Edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	queue := []string{start.ID}
	seen[start.ID] = true

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, next := range adjacency[id] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}

	return seen
}

// Unreachable lists, in node order, the nodes that cannot be reached from start.
// Such nodes are inert; they are not an error.
func Unreachable(f models.Flow) []string {
	reachable := Reachable(f)

	var out []string

	for _, n := range f.Nodes {
		if !reachable[n.ID] {
			out = append(out, n.ID)
		}
	}

	return out
}
