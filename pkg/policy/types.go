package policy

import (
	"time"

	"github.com/openfroyo/strata/pkg/lookup"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that fail validation.
	SeverityError Severity = "error"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Violations are the members of the
	// deny set of its package.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	Policy   string   `json:"policy"`
	Config   string   `json:"config"`
	Entry    string   `json:"entry,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result represents the result of evaluating all policies against one
// hierarchy configuration.
type Result struct {
	// Allowed is false when a violation has error severity.
	Allowed bool `json:"allowed"`

	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	EvaluatedPolicies []string      `json:"evaluated_policies"`
	EvaluatedAt       time.Time     `json:"evaluated_at"`
	Duration          time.Duration `json:"duration"`
}

// Input is the document policies see as input.
type Input struct {
	Config  *ConfigDocument `json:"config"`
	Context *Context        `json:"context"`
}

// Context provides information about the evaluation.
type Context struct {
	Environment string    `json:"environment,omitempty"`
	Operation   string    `json:"operation"`
	Timestamp   time.Time `json:"timestamp"`
}

// ConfigDocument is the policy view of a parsed hierarchy configuration.
type ConfigDocument struct {
	Path             string          `json:"path"`
	Root             string          `json:"root"`
	Version          int             `json:"version"`
	Layer            string          `json:"layer"`
	Default          bool            `json:"default"`
	Entries          []EntryDocument `json:"entries"`
	DefaultHierarchy []EntryDocument `json:"default_hierarchy"`
	Diagnostics      []string        `json:"diagnostics"`
}

// EntryDocument is the policy view of one hierarchy entry.
type EntryDocument struct {
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	Function     string         `json:"function"`
	DataDir      string         `json:"datadir"`
	LocationKind string         `json:"location_kind,omitempty"`
	Locations    []string       `json:"locations"`
	Options      map[string]any `json:"options"`
	Legacy       bool           `json:"legacy"`
}

// NewConfigDocument converts cfg into its policy input form.
func NewConfigDocument(cfg *lookup.HierarchyConfig) *ConfigDocument {
	doc := &ConfigDocument{
		Path:             cfg.Path,
		Root:             cfg.Root,
		Version:          cfg.Version,
		Layer:            cfg.Layer.String(),
		Default:          cfg.Default,
		Entries:          entryDocuments(cfg.Entries),
		DefaultHierarchy: entryDocuments(cfg.DefaultHierarchy),
		Diagnostics:      []string{},
	}
	for _, d := range cfg.Diagnostics {
		doc.Diagnostics = append(doc.Diagnostics, d.Message)
	}
	return doc
}

func entryDocuments(entries []lookup.HierarchyEntry) []EntryDocument {
	docs := make([]EntryDocument, 0, len(entries))
	for _, e := range entries {
		d := EntryDocument{
			Name:      e.Name,
			Kind:      e.Kind.String(),
			Function:  e.FunctionName,
			DataDir:   e.DataDir,
			Locations: []string{},
			Options:   map[string]any{},
			Legacy:    e.Legacy,
		}
		if e.Locations != nil {
			d.LocationKind = e.Locations.Kind
			d.Locations = append(d.Locations, e.Locations.Values...)
		}
		for k, v := range e.Options {
			d.Options[k] = v
		}
		docs = append(docs, d)
	}
	return docs
}
