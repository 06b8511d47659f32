package lookup

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/openfroyo/strata/pkg/types"
)

// NodeKind identifies the kind of step an explain node records.
type NodeKind string

// Explain node kinds.
const (
	NodeRoot             NodeKind = "root"
	NodeLookup           NodeKind = "lookup"
	NodeLookupOptions    NodeKind = "lookup_options"
	NodeInvalidKey       NodeKind = "invalid_key"
	NodeOverrides        NodeKind = "overrides"
	NodeDefaults         NodeKind = "defaults"
	NodeLayer            NodeKind = "layer"
	NodeDefaultHierarchy NodeKind = "default_hierarchy"
	NodeModule           NodeKind = "module"
	NodeProvider         NodeKind = "provider"
	NodeLocation         NodeKind = "location"
	NodeMerge            NodeKind = "merge"
	NodeMergeSource      NodeKind = "merge_source"
	NodeInterpolate      NodeKind = "interpolate"
	NodeSubLookup        NodeKind = "sub_lookup"
	NodeSegment          NodeKind = "segment"
	NodeScope            NodeKind = "scope"
	NodeConvertTo        NodeKind = "convert_to"
	NodeMeta             NodeKind = "meta"
)

// Outcome is the recorded result of an explain node.
type Outcome string

// Explain outcomes.
const (
	OutcomeNone             Outcome = ""
	OutcomeFound            Outcome = "found"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeLocationNotFound Outcome = "location_not_found"
	OutcomeModuleNotFound   Outcome = "module_not_found"
	OutcomeResult           Outcome = "result"
	OutcomeFoundInOverrides Outcome = "found_in_overrides"
	OutcomeFoundInDefaults  Outcome = "found_in_defaults"
)

// ExplainNode is one step of a recorded lookup.
type ExplainNode struct {
	Kind     NodeKind
	Label    string
	Texts    []string
	Outcome  Outcome
	Value    any
	Children []*ExplainNode

	parent *ExplainNode
}

// Explainer records the branches taken while resolving lookups.
type Explainer struct {
	root    *ExplainNode
	current *ExplainNode

	explainOptions     bool
	onlyExplainOptions bool
}

// NewExplainer creates an explainer. When explainOptions is set, lookups of
// lookup_options are recorded too. onlyExplainOptions records nothing but the
// options resolution and stops each lookup after it.
func NewExplainer(explainOptions, onlyExplainOptions bool) *Explainer {
	root := &ExplainNode{Kind: NodeRoot}
	return &Explainer{
		root:               root,
		current:            root,
		explainOptions:     explainOptions || onlyExplainOptions,
		onlyExplainOptions: onlyExplainOptions,
	}
}

// ExplainOptions reports whether options lookups are recorded.
func (e *Explainer) ExplainOptions() bool { return e.explainOptions }

// OnlyExplainOptions reports whether only options are explained.
func (e *Explainer) OnlyExplainOptions() bool { return e.onlyExplainOptions }

// Root returns the root node.
func (e *Explainer) Root() *ExplainNode { return e.root }

func (e *Explainer) push(kind NodeKind, label string) {
	n := &ExplainNode{Kind: kind, Label: label, parent: e.current}
	e.current.Children = append(e.current.Children, n)
	e.current = n
}

func (e *Explainer) pop() {
	if e.current.parent != nil {
		e.current = e.current.parent
	}
}

func (e *Explainer) outcome(o Outcome, v any) {
	e.current.Outcome = o
	e.current.Value = v
}

func (e *Explainer) found(v any)     { e.outcome(OutcomeFound, v) }
func (e *Explainer) notFound()       { e.outcome(OutcomeNotFound, nil) }
func (e *Explainer) result(v any)    { e.outcome(OutcomeResult, v) }
func (e *Explainer) text(msg string) { e.current.Texts = append(e.current.Texts, msg) }

// Text renders the explanation as indented text.
func (e *Explainer) Text() string {
	var b strings.Builder
	for _, c := range e.root.Children {
		c.write(&b, 0)
	}
	return b.String()
}

func (n *ExplainNode) write(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	inner := indent + "  "
	if n.Label != "" {
		b.WriteString(indent)
		b.WriteString(n.Label)
		b.WriteString("\n")
	} else {
		inner = indent
	}
	for _, t := range n.Texts {
		for _, line := range strings.Split(t, "\n") {
			b.WriteString(inner)
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	childDepth := depth + 1
	if n.Label == "" {
		childDepth = depth
	}
	for _, c := range n.Children {
		c.write(b, childDepth)
	}
	if line := n.outcomeLine(); line != "" {
		b.WriteString(inner)
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func (n *ExplainNode) outcomeLine() string {
	switch n.Outcome {
	case OutcomeFound:
		return "Found value: " + renderValue(n.Value)
	case OutcomeResult:
		return "Merged result: " + renderValue(n.Value)
	case OutcomeNotFound:
		return "No such key"
	case OutcomeLocationNotFound:
		return "Location not found"
	case OutcomeModuleNotFound:
		return "Module not found"
	case OutcomeFoundInOverrides:
		return "Found in overrides: " + renderValue(n.Value)
	case OutcomeFoundInDefaults:
		return "Found in defaults: " + renderValue(n.Value)
	}
	return ""
}

// ToMap renders the explanation as a structured document.
func (e *Explainer) ToMap() map[string]any {
	branches := make([]any, 0, len(e.root.Children))
	for _, c := range e.root.Children {
		branches = append(branches, c.toMap())
	}
	return map[string]any{"branches": branches}
}

func (n *ExplainNode) toMap() map[string]any {
	m := map[string]any{"type": string(n.Kind)}
	if n.Label != "" {
		m["label"] = n.Label
	}
	if len(n.Texts) > 0 {
		texts := make([]any, len(n.Texts))
		for i, t := range n.Texts {
			texts[i] = t
		}
		m["texts"] = texts
	}
	if n.Outcome != OutcomeNone {
		m["event"] = string(n.Outcome)
		if n.Outcome != OutcomeNotFound && n.Outcome != OutcomeLocationNotFound && n.Outcome != OutcomeModuleNotFound {
			m["value"] = redact(n.Value)
		}
	}
	if len(n.Children) > 0 {
		branches := make([]any, len(n.Children))
		for i, c := range n.Children {
			branches[i] = c.toMap()
		}
		m["branches"] = branches
	}
	return m
}

// redact replaces sensitive values with their redacted text.
func redact(v any) any {
	switch t := v.(type) {
	case types.Sensitive:
		return t.String()
	case types.TypeRef:
		return t.Expr
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redact(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = redact(e)
		}
		return out
	default:
		return v
	}
}

func renderValue(v any) string {
	data, err := json.Marshal(redact(v))
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
