package flow

import (
	"strings"

	"github.com/dukex/flowbot/pkg/models"
)

// ResolveContent turns a node into the message it sends. Nodes that send nothing
// (assign-agent, disable-chat, api-request, or empty content) return false.
func ResolveContent(node models.FlowNode) (models.OutboundMessage, bool) {
	switch cfg := node.Config.(type) {
	case models.StartConfig:
		return textMessage(cfg.Content)
	case models.TextConfig:
		return textMessage(cfg.Content)
	case models.MediaConfig:
		if strings.TrimSpace(cfg.URL) == "" {
			return models.OutboundMessage{}, false
		}

		return models.OutboundMessage{
			Type: mediaMessageType(cfg.Kind),
			Body: models.OutboundBody{MediaURL: cfg.URL, Caption: cfg.Caption, FileName: cfg.FileName},
		}, true
	case models.ButtonConfig:
		if strings.TrimSpace(cfg.Content) == "" {
			return models.OutboundMessage{}, false
		}

		buttons := make([]models.Button, 0, len(cfg.Buttons))
		for i, b := range cfg.Buttons {
			buttons = append(buttons, models.Button{ID: ButtonPortID(b, i), Title: b.Title})
		}

		return models.OutboundMessage{
			Type: models.MessageTypeInteractive,
			Body: models.OutboundBody{Text: cfg.Content, Buttons: buttons},
		}, true
	case models.ListConfig:
		if strings.TrimSpace(cfg.Content) == "" {
			return models.OutboundMessage{}, false
		}

		return models.OutboundMessage{
			Type: models.MessageTypeInteractive,
			Body: models.OutboundBody{Text: cfg.Content, ButtonText: cfg.ButtonText, Sections: cfg.Sections},
		}, true
	case models.AssignAgentConfig, models.DisableChatConfig, models.APIRequestConfig:
		return models.OutboundMessage{}, false
	default:
		return models.OutboundMessage{}, false
	}
}

func textMessage(content string) (models.OutboundMessage, bool) {
	if strings.TrimSpace(content) == "" {
		return models.OutboundMessage{}, false
	}

	return models.NewTextMessage(content), true
}

func mediaMessageType(kind models.NodeType) models.MessageType {
	switch kind {
	case models.NodeTypeImage:
		return models.MessageTypeImage
	case models.NodeTypeAudio:
		return models.MessageTypeAudio
	case models.NodeTypeVideo:
		return models.MessageTypeVideo
	default:
		return models.MessageTypeDocument
	}
}
