package flow

import (
	"fmt"

	"github.com/dukex/flowbot/pkg/models"
)

// DefaultConfig returns the config a freshly created node of type t starts with.
// It is never re-applied to existing nodes.
func DefaultConfig(t models.NodeType) (models.NodeConfig, error) {
	switch t {
	case models.NodeTypeStart:
		return models.StartConfig{Label: "Start", Content: "Welcome!"}, nil
	case models.NodeTypeText:
		return models.TextConfig{Label: "Text Message", Content: "Enter your message here"}, nil
	case models.NodeTypeImage:
		return models.MediaConfig{Kind: t, Label: "Image"}, nil
	case models.NodeTypeAudio:
		return models.MediaConfig{Kind: t, Label: "Audio"}, nil
	case models.NodeTypeVideo:
		return models.MediaConfig{Kind: t, Label: "Video"}, nil
	case models.NodeTypeDocument:
		return models.MediaConfig{Kind: t, Label: "Document"}, nil
	case models.NodeTypeButton:
		return models.ButtonConfig{
			Label:   "Buttons",
			Content: "Choose an option",
			Buttons: []models.Button{{ID: "button-1", Title: "Option 1"}},
		}, nil
	case models.NodeTypeList:
		return models.ListConfig{
			Label:      "List",
			Content:    "Select an item",
			ButtonText: "View options",
			Sections: []models.ListSection{{
				Title: "Section 1",
				Rows:  []models.ListRow{{ID: "row-1", Title: "Item 1"}},
			}},
		}, nil
	case models.NodeTypeAssignAgent:
		return models.AssignAgentConfig{Label: "Assign Agent"}, nil
	case models.NodeTypeDisableChat:
		return models.DisableChatConfig{Label: "Disable Chat"}, nil
	case models.NodeTypeAPIRequest:
		return models.APIRequestConfig{
			Label:           "API Request",
			Method:          "GET",
			Headers:         map[string]string{},
			ResponseMapping: map[string]string{},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownNodeType, t)
	}
}

// NewNode creates a node of type t at pos with its default config.
func NewNode(id string, t models.NodeType, pos models.Position) (models.FlowNode, error) {
	cfg, err := DefaultConfig(t)
	if err != nil {
		return models.FlowNode{}, err
	}

	return models.FlowNode{ID: id, Type: t, Position: pos, Config: cfg}, nil
}
