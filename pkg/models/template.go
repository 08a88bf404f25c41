package models

// TemplateType classifies message templates.
type TemplateType string

const (
	TemplateTypeText        TemplateType = "TEXT"
	TemplateTypeMedia       TemplateType = "MEDIA"
	TemplateTypeInteractive TemplateType = "INTERACTIVE"
)

// TemplateContent is the structured payload of a template.
type TemplateContent struct {
	Header   string `json:"header,omitempty"`
	Body     string `json:"body"`
	Footer   string `json:"footer,omitempty"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// Template is a reusable message, matched after flows as a lower-priority rule.
type Template struct {
	ID      string          `json:"id"    validate:"required"`
	Title   string          `json:"title"`
	Type    TemplateType    `json:"type"  validate:"required"`
	Content TemplateContent `json:"content"`
}
