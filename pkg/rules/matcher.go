package rules

import (
	"strings"

	"github.com/dukex/flowbot/pkg/models"
)

// TemplateMode selects how template bodies are compared with inbound text.
type TemplateMode string

const (
	// TemplateModeBidirectional matches when either string contains the other.
	TemplateModeBidirectional TemplateMode = "bidirectional"
	// TemplateModeStrict matches only when the inbound text contains the body.
	TemplateModeStrict TemplateMode = "strict"
)

// ParseTemplateMode returns the mode named s, defaulting to bidirectional.
func ParseTemplateMode(s string) (TemplateMode, bool) {
	switch TemplateMode(strings.ToLower(strings.TrimSpace(s))) {
	case TemplateModeStrict:
		return TemplateModeStrict, true
	case TemplateModeBidirectional, "":
		return TemplateModeBidirectional, true
	default:
		return TemplateModeBidirectional, false
	}
}

// MatchKind tells which part of the index produced a match.
type MatchKind string

const (
	MatchNone     MatchKind = "none"
	MatchFlow     MatchKind = "flow"
	MatchTemplate MatchKind = "template"
)

// Match is the outcome of matching one inbound text.
type Match struct {
	Kind     MatchKind
	Flow     *models.Flow
	Template *models.Template
}

// Matcher applies first-match-wins over an Index: flow rules in index order, then
// templates in index order.
type Matcher struct {
	templateMode TemplateMode
	trimExact    bool
}

type MatcherOption func(*Matcher)

// WithTrimmedExact ignores surrounding whitespace when comparing exact-match rules.
func WithTrimmedExact(trim bool) MatcherOption {
	return func(m *Matcher) {
		m.trimExact = trim
	}
}

// NewMatcher creates a matcher using the given template mode.
func NewMatcher(mode TemplateMode, opts ...MatcherOption) *Matcher {
	if mode == "" {
		mode = TemplateModeBidirectional
	}

	m := &Matcher{templateMode: mode}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Match finds the first flow, or failing that the first template, matching text.
// Blank text never matches.
func (m *Matcher) Match(idx *Index, text string) Match {
	if idx == nil || strings.TrimSpace(text) == "" {
		return Match{Kind: MatchNone}
	}

	lowered := strings.ToLower(text)

	for i := range idx.Rules {
		if m.matchRule(idx.Rules[i].Trigger, lowered) {
			return Match{Kind: MatchFlow, Flow: &idx.Rules[i].Flow}
		}
	}

	for i := range idx.Templates {
		if m.matchTemplate(idx.Templates[i], lowered) {
			return Match{Kind: MatchTemplate, Template: &idx.Templates[i]}
		}
	}

	return Match{Kind: MatchNone}
}

func (m *Matcher) matchRule(rule models.TriggerRule, lowered string) bool {
	if m.trimExact && rule.TriggerType == models.TriggerTypeExact {
		rule.ExactMatch = strings.TrimSpace(rule.ExactMatch)
		lowered = strings.TrimSpace(lowered)
	}

	return MatchTrigger(rule, lowered)
}

// MatchTrigger reports whether lowered, already lower-cased inbound text satisfies rule.
func MatchTrigger(rule models.TriggerRule, lowered string) bool {
	switch rule.TriggerType {
	case models.TriggerTypeKeyword:
		for _, kw := range rule.Keywords {
			if kw == "" {
				continue
			}

			if strings.Contains(lowered, strings.ToLower(kw)) {
				return true
			}
		}

		return false
	case models.TriggerTypeExact:
		if rule.ExactMatch == "" {
			return false
		}

		return lowered == strings.ToLower(rule.ExactMatch)
	default:
		return false
	}
}

func (m *Matcher) matchTemplate(t models.Template, lowered string) bool {
	if t.Type != models.TemplateTypeText {
		return false
	}

	body := strings.ToLower(strings.TrimSpace(t.Content.Body))
	if body == "" {
		return false
	}

	if strings.Contains(lowered, body) {
		return true
	}

	return m.templateMode == TemplateModeBidirectional && strings.Contains(body, strings.TrimSpace(lowered))
}
