package flow

import (
	"fmt"
	"slices"

	"github.com/dukex/flowbot/pkg/models"
)

// Well-known port names.
const (
	PortIn      = "in"
	PortOut     = "out"
	PortSuccess = "success"
	PortError   = "error"
)

// OutputPorts returns the source ports a node exposes. Button and list nodes expose
// one port per button or row; disable-chat is terminal and exposes none.
func OutputPorts(node models.FlowNode) []string {
	switch cfg := node.Config.(type) {
	case models.ButtonConfig:
		ports := make([]string, 0, len(cfg.Buttons))
		for i, b := range cfg.Buttons {
			ports = append(ports, ButtonPortID(b, i))
		}

		return ports
	case models.ListConfig:
		var ports []string

		for si, section := range cfg.Sections {
			for ri, row := range section.Rows {
				ports = append(ports, RowPortID(row, si, ri))
			}
		}

		return ports
	}

	switch node.Type {
	case models.NodeTypeDisableChat:
		return nil
	case models.NodeTypeAPIRequest:
		return []string{PortSuccess, PortError}
	case models.NodeTypeButton, models.NodeTypeList:
		return nil
	default:
		return []string{PortOut}
	}
}

// InputPorts returns the target ports a node exposes. The start node has none.
func InputPorts(node models.FlowNode) []string {
	if node.Type == models.NodeTypeStart {
		return nil
	}

	return []string{PortIn}
}

// ButtonPortID is the port id of the i-th button.
func ButtonPortID(b models.Button, i int) string {
	if b.ID != "" {
		return b.ID
	}

	return fmt.Sprintf("button-%d", i+1)
}

// RowPortID is the port id of a list row.
func RowPortID(row models.ListRow, section, index int) string {
	if row.ID != "" {
		return row.ID
	}

	return fmt.Sprintf("row-%d-%d", section+1, index+1)
}

// resolvePort maps an empty handle to the node's only port, as the builder omits
// handles on single-port nodes.
func resolvePort(ports []string, port string) (string, bool) {
	if port == "" && len(ports) == 1 {
		return ports[0], true
	}

	return port, slices.Contains(ports, port)
}
