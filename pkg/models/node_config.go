package models

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/mitchellh/mapstructure"
)

// ErrUnknownNodeType is returned when a node's type is outside the supported set.
var ErrUnknownNodeType = errors.New("unknown node type")

// NodeConfig is the type-specific payload of a node. The set of implementations is
// closed: only the config structs in this package satisfy it.
type NodeConfig interface {
	NodeType() NodeType
	// clone returns a copy sharing no slices or maps with the receiver.
	clone() NodeConfig
}

// StartConfig configures the entry node of a flow.
type StartConfig struct {
	Label   string `json:"label"   mapstructure:"label"`
	Content string `json:"content" mapstructure:"content"`
}

// TextConfig configures a plain text message.
type TextConfig struct {
	Label        string   `json:"label"                  mapstructure:"label"`
	Content      string   `json:"content"                mapstructure:"content"`
	QuickReplies []string `json:"quickReplies,omitempty" mapstructure:"quickReplies"`
	DelayMs      int      `json:"delayMs,omitempty"      mapstructure:"delayMs"`
}

// MediaConfig configures image, audio, video and document messages.
type MediaConfig struct {
	Kind     NodeType `json:"-"                  mapstructure:"-"`
	Label    string   `json:"label"              mapstructure:"label"`
	URL      string   `json:"url"                mapstructure:"url"`
	Caption  string   `json:"caption,omitempty"  mapstructure:"caption"`
	FileName string   `json:"fileName,omitempty" mapstructure:"fileName"`
	DelayMs  int      `json:"delayMs,omitempty"  mapstructure:"delayMs"`
}

// Button is one reply button. Each button is a distinct output port of its node.
type Button struct {
	ID    string `json:"id"    mapstructure:"id"`
	Title string `json:"title" mapstructure:"title"`
}

// ButtonConfig configures an interactive reply-button message.
type ButtonConfig struct {
	Label   string   `json:"label"            mapstructure:"label"`
	Content string   `json:"content"          mapstructure:"content"`
	Footer  string   `json:"footer,omitempty" mapstructure:"footer"`
	Buttons []Button `json:"buttons"          mapstructure:"buttons"`
}

// ListRow is one selectable row. Each row is a distinct output port of its node.
type ListRow struct {
	ID          string `json:"id"                    mapstructure:"id"`
	Title       string `json:"title"                 mapstructure:"title"`
	Description string `json:"description,omitempty" mapstructure:"description"`
}

// ListSection groups list rows under a heading.
type ListSection struct {
	Title string    `json:"title" mapstructure:"title"`
	Rows  []ListRow `json:"rows"  mapstructure:"rows"`
}

// ListConfig configures an interactive list message.
type ListConfig struct {
	Label      string        `json:"label"      mapstructure:"label"`
	Content    string        `json:"content"    mapstructure:"content"`
	ButtonText string        `json:"buttonText" mapstructure:"buttonText"`
	Sections   []ListSection `json:"sections"   mapstructure:"sections"`
}

// AssignAgentConfig hands the chat over to a human agent.
type AssignAgentConfig struct {
	Label   string `json:"label"             mapstructure:"label"`
	AgentID string `json:"agentId,omitempty" mapstructure:"agentId"`
}

// DisableChatConfig stops automated replies for the chat.
type DisableChatConfig struct {
	Label string `json:"label" mapstructure:"label"`
}

// APIRequestConfig calls an external HTTP endpoint and maps its response into variables.
type APIRequestConfig struct {
	Label           string            `json:"label"                     mapstructure:"label"`
	Method          string            `json:"method"                    mapstructure:"method"`
	URL             string            `json:"url"                       mapstructure:"url"`
	Headers         map[string]string `json:"headers,omitempty"         mapstructure:"headers"`
	Body            string            `json:"body,omitempty"            mapstructure:"body"`
	ResponseMapping map[string]string `json:"responseMapping,omitempty" mapstructure:"responseMapping"`
}

func (StartConfig) NodeType() NodeType       { return NodeTypeStart }
func (TextConfig) NodeType() NodeType        { return NodeTypeText }
func (c MediaConfig) NodeType() NodeType     { return c.Kind }
func (ButtonConfig) NodeType() NodeType      { return NodeTypeButton }
func (ListConfig) NodeType() NodeType        { return NodeTypeList }
func (AssignAgentConfig) NodeType() NodeType { return NodeTypeAssignAgent }
func (DisableChatConfig) NodeType() NodeType { return NodeTypeDisableChat }
func (APIRequestConfig) NodeType() NodeType  { return NodeTypeAPIRequest }

func (c StartConfig) clone() NodeConfig       { return c }
func (c MediaConfig) clone() NodeConfig       { return c }
func (c AssignAgentConfig) clone() NodeConfig { return c }
func (c DisableChatConfig) clone() NodeConfig { return c }

func (c TextConfig) clone() NodeConfig {
	c.QuickReplies = slices.Clone(c.QuickReplies)

	return c
}

func (c ButtonConfig) clone() NodeConfig {
	c.Buttons = slices.Clone(c.Buttons)

	return c
}

func (c ListConfig) clone() NodeConfig {
	sections := make([]ListSection, len(c.Sections))
	for i, section := range c.Sections {
		section.Rows = slices.Clone(section.Rows)
		sections[i] = section
	}

	if c.Sections == nil {
		sections = nil
	}

	c.Sections = sections

	return c
}

func (c APIRequestConfig) clone() NodeConfig {
	c.Headers = maps.Clone(c.Headers)
	c.ResponseMapping = maps.Clone(c.ResponseMapping)

	return c
}

// DecodeNodeConfig converts a loosely typed config map into the variant for nodeType.
// A nil map yields the zero config of that variant.
func DecodeNodeConfig(nodeType NodeType, raw map[string]any) (NodeConfig, error) {
	switch nodeType {
	case NodeTypeStart:
		return decodeInto[StartConfig](raw)
	case NodeTypeText:
		return decodeInto[TextConfig](raw)
	case NodeTypeImage, NodeTypeAudio, NodeTypeVideo, NodeTypeDocument:
		cfg, err := decodeInto[MediaConfig](raw)
		if err != nil {
			return nil, err
		}

		cfg.Kind = nodeType

		return cfg, nil
	case NodeTypeButton:
		return decodeInto[ButtonConfig](raw)
	case NodeTypeList:
		return decodeInto[ListConfig](raw)
	case NodeTypeAssignAgent:
		return decodeInto[AssignAgentConfig](raw)
	case NodeTypeDisableChat:
		return decodeInto[DisableChatConfig](raw)
	case NodeTypeAPIRequest:
		return decodeInto[APIRequestConfig](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}
}

func decodeInto[T NodeConfig](raw map[string]any) (T, error) {
	var out T

	if raw == nil {
		return out, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return out, err
	}

	if err := decoder.Decode(raw); err != nil {
		return out, fmt.Errorf("failed to decode %s config: %w", out.NodeType(), err)
	}

	return out, nil
}
