package flow

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dukex/flowbot/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

const mediaSchema = `{
	"type": "object",
	"required": ["url"],
	"properties": {
		"url": {"type": "string", "minLength": 1},
		"caption": {"type": "string", "maxLength": 1024}
	}
}`

var configSchemas = map[models.NodeType]string{
	models.NodeTypeStart: `{
		"type": "object",
		"properties": {"content": {"type": "string", "maxLength": 4096}}
	}`,
	models.NodeTypeText: `{
		"type": "object",
		"required": ["content"],
		"properties": {
			"content": {"type": "string", "minLength": 1, "maxLength": 4096},
			"delayMs": {"type": "integer", "minimum": 0},
			"quickReplies": {"type": "array", "maxItems": 3, "items": {"type": "string", "minLength": 1}}
		}
	}`,
	models.NodeTypeImage:    mediaSchema,
	models.NodeTypeAudio:    mediaSchema,
	models.NodeTypeVideo:    mediaSchema,
	models.NodeTypeDocument: mediaSchema,
	models.NodeTypeButton: `{
		"type": "object",
		"required": ["content", "buttons"],
		"properties": {
			"content": {"type": "string", "minLength": 1},
			"buttons": {
				"type": "array",
				"minItems": 1,
				"maxItems": 3,
				"items": {
					"type": "object",
					"required": ["title"],
					"properties": {"title": {"type": "string", "minLength": 1, "maxLength": 20}}
				}
			}
		}
	}`,
	models.NodeTypeList: `{
		"type": "object",
		"required": ["content", "sections"],
		"properties": {
			"content": {"type": "string", "minLength": 1},
			"sections": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["rows"],
					"properties": {
						"rows": {
							"type": "array",
							"minItems": 1,
							"items": {
								"type": "object",
								"required": ["title"],
								"properties": {"title": {"type": "string", "minLength": 1, "maxLength": 24}}
							}
						}
					}
				}
			}
		}
	}`,
	models.NodeTypeAPIRequest: `{
		"type": "object",
		"required": ["method", "url"],
		"properties": {
			"method": {"enum": ["GET", "POST", "PUT", "PATCH", "DELETE"]},
			"url": {"type": "string", "pattern": "^https?://"}
		}
	}`,
}

var (
	compileOnce     sync.Once
	compiledSchemas map[models.NodeType]*gojsonschema.Schema
	compileErr      error
)

func schemas() (map[models.NodeType]*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchemas = make(map[models.NodeType]*gojsonschema.Schema, len(configSchemas))

		for nodeType, raw := range configSchemas {
			schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
			if err != nil {
				compileErr = fmt.Errorf("failed to compile %s config schema: %w", nodeType, err)

				return
			}

			compiledSchemas[nodeType] = schema
		}
	})

	return compiledSchemas, compileErr
}

// ValidateNodeConfig checks a node's config against the JSON schema of its type.
// Types without a schema accept any config.
func ValidateNodeConfig(node models.FlowNode) error {
	const op = "ValidateNodeConfig"

	if node.Config == nil {
		return &ValidationError{Op: op, NodeID: node.ID, Message: "config is missing", Err: ErrInvalidNodeConfig}
	}

	if node.Config.NodeType() != node.Type {
		return &ValidationError{
			Op:      op,
			NodeID:  node.ID,
			Message: fmt.Sprintf("config is for %q", node.Config.NodeType()),
			Err:     ErrInvalidNodeConfig,
		}
	}

	compiled, err := schemas()
	if err != nil {
		return err
	}

	schema, ok := compiled[node.Type]
	if !ok {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(node.Config))
	if err != nil {
		return &ValidationError{Op: op, NodeID: node.ID, Message: err.Error(), Err: ErrInvalidNodeConfig}
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return &ValidationError{Op: op, NodeID: node.ID, Message: strings.Join(details, "; "), Err: ErrInvalidNodeConfig}
	}

	return nil
}
