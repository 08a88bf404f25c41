// Package rules compiles active flows and templates into an immutable index and
// matches inbound text against it.
package rules

import (
	"slices"
	"strings"
	"time"

	"github.com/dukex/flowbot/pkg/models"
)

// Rule pairs an active flow with its trigger rule as loaded.
type Rule struct {
	Flow    models.Flow
	Trigger models.TriggerRule
}

// Index is a read-only snapshot of the rules a dispatcher matches against.
// An Index is never mutated after Build returns it.
type Index struct {
	Rules     []Rule
	Templates []models.Template
	BuiltAt   time.Time
}

// Empty reports whether the index has nothing to match.
func (i *Index) Empty() bool {
	return i == nil || (len(i.Rules) == 0 && len(i.Templates) == 0)
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	sortByID bool
	now      func() time.Time
}

// WithSortByID orders flows and templates by id instead of load order.
func WithSortByID(enabled bool) BuildOption {
	return func(o *buildOptions) {
		o.sortByID = enabled
	}
}

// WithClock overrides the clock used to stamp BuiltAt.
func WithClock(now func() time.Time) BuildOption {
	return func(o *buildOptions) {
		o.now = now
	}
}

// Build keeps the active flows in load order and copies them and the templates so
// later changes to the inputs cannot reach the index. Trigger rules are kept verbatim.
func Build(flows []models.Flow, templates []models.Template, opts ...BuildOption) *Index {
	options := buildOptions{now: time.Now}
	for _, opt := range opts {
		opt(&options)
	}

	idx := &Index{
		Rules:     make([]Rule, 0, len(flows)),
		Templates: make([]models.Template, len(templates)),
		BuiltAt:   options.now(),
	}

	for _, f := range flows {
		if !f.IsActive {
			continue
		}

		clone := f.Clone()
		trigger := clone.TriggerRule
		trigger.Keywords = append([]string(nil), clone.Keywords...)

		idx.Rules = append(idx.Rules, Rule{Flow: clone, Trigger: trigger})
	}

	copy(idx.Templates, templates)

	if options.sortByID {
		slices.SortStableFunc(idx.Rules, func(a, b Rule) int {
			return strings.Compare(a.Flow.ID, b.Flow.ID)
		})
		slices.SortStableFunc(idx.Templates, func(a, b models.Template) int {
			return strings.Compare(a.ID, b.ID)
		})
	}

	return idx
}
