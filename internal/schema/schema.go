package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Field length bounds for agent configurations.
const (
	AgentNameMax    = 100
	DescriptionMax  = 500
	SystemPromptMin = 10
	SkillNameMax    = 50
	WhenToUseMin    = 10
	WhenToUseMax    = 500
	SkillPromptMin  = 10
)

// ToolBinding associates a skill with a catalog tool and its configuration.
type ToolBinding struct {
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// Skill is one bounded capability of a built agent. A skill is instantiated
// as its own sub-agent with its own tools.
type Skill struct {
	Name      string        `json:"name"`
	WhenToUse string        `json:"when_to_use"`
	Prompt    string        `json:"prompt"`
	Tools     []ToolBinding `json:"tools"`
}

// AgentConfig is a complete, validated agent configuration.
// Skills always has exactly one entry; single-skill agents are the only
// supported shape for now.
type AgentConfig struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	SystemPrompt string  `json:"system_prompt"`
	Skills       []Skill `json:"skills"`
}

// FieldError describes one violated constraint at a field path.
type FieldError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ValidationError carries every violation found in a candidate, not just the
// first. Each report back to the user costs a conversational turn, so callers
// need the full list in one shot.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration validation failed:")
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "\n  - %s: %s", f.Path, f.Reason)
	}
	return b.String()
}

// Validator applies the AgentConfig schema to raw candidate maps.
type Validator struct {
	// EnforceCatalog rejects tool bindings whose name is not a catalog entry.
	// Off by default: catalog membership is normally steered through prompting,
	// not the schema.
	EnforceCatalog bool
}

// Validate checks a raw candidate against the schema. It returns either a
// fully decoded AgentConfig or a *ValidationError listing every violated
// field path, never both.
func Validate(candidate map[string]any) (*AgentConfig, error) {
	return (&Validator{}).Validate(candidate)
}

// Validate checks a raw candidate against the schema. See package-level
// Validate for the contract.
func (v *Validator) Validate(candidate map[string]any) (*AgentConfig, error) {
	var errs []FieldError
	cfg := &AgentConfig{}

	cfg.Name = v.stringField(candidate, "name", "name", 1, AgentNameMax, &errs)
	cfg.Description = v.stringField(candidate, "description", "description", 1, DescriptionMax, &errs)
	cfg.SystemPrompt = v.stringField(candidate, "system_prompt", "system_prompt", SystemPromptMin, 0, &errs)
	cfg.Skills = v.skillsField(candidate, &errs)

	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return cfg, nil
}

func (v *Validator) skillsField(candidate map[string]any, errs *[]FieldError) []Skill {
	raw, ok := candidate["skills"]
	if !ok || raw == nil {
		*errs = append(*errs, FieldError{Path: "skills", Reason: "field is required"})
		return nil
	}

	items := toSlice(raw)
	if items == nil {
		*errs = append(*errs, FieldError{Path: "skills", Reason: "must be a list of skill objects"})
		return nil
	}
	if len(items) != 1 {
		*errs = append(*errs, FieldError{
			Path:   "skills",
			Reason: fmt.Sprintf("must contain exactly 1 skill, got %d", len(items)),
		})
		return nil
	}

	var skills []Skill
	for i, item := range items {
		path := fmt.Sprintf("skills[%d]", i)
		m, ok := item.(map[string]any)
		if !ok {
			*errs = append(*errs, FieldError{Path: path, Reason: "must be a skill object"})
			continue
		}
		skills = append(skills, v.decodeSkill(m, path, errs))
	}
	return skills
}

func (v *Validator) decodeSkill(m map[string]any, path string, errs *[]FieldError) Skill {
	s := Skill{
		Name:      v.stringField(m, "name", path+".name", 1, SkillNameMax, errs),
		WhenToUse: v.stringField(m, "when_to_use", path+".when_to_use", WhenToUseMin, WhenToUseMax, errs),
		Prompt:    v.stringField(m, "prompt", path+".prompt", SkillPromptMin, 0, errs),
	}

	raw, ok := m["tools"]
	if !ok || raw == nil {
		s.Tools = []ToolBinding{}
		return s
	}
	items := toSlice(raw)
	if items == nil {
		*errs = append(*errs, FieldError{Path: path + ".tools", Reason: "must be a list of tool objects"})
		return s
	}
	s.Tools = []ToolBinding{}
	for i, item := range items {
		tpath := fmt.Sprintf("%s.tools[%d]", path, i)
		tm, ok := item.(map[string]any)
		if !ok {
			*errs = append(*errs, FieldError{Path: tpath, Reason: "must be a tool object"})
			continue
		}
		s.Tools = append(s.Tools, v.decodeToolBinding(tm, tpath, errs))
	}
	return s
}

func (v *Validator) decodeToolBinding(m map[string]any, path string, errs *[]FieldError) ToolBinding {
	tb := ToolBinding{
		Name:   v.stringField(m, "name", path+".name", 1, 0, errs),
		Config: map[string]any{},
	}
	if raw, ok := m["config"]; ok && raw != nil {
		cm, ok := raw.(map[string]any)
		if !ok {
			*errs = append(*errs, FieldError{Path: path + ".config", Reason: "must be an object"})
		} else {
			tb.Config = cm
		}
	}
	if v.EnforceCatalog && tb.Name != "" {
		if _, ok := CatalogEntryByName(tb.Name); !ok {
			*errs = append(*errs, FieldError{
				Path:   path + ".name",
				Reason: fmt.Sprintf("%q is not in the tool catalog", tb.Name),
			})
		}
	}
	return tb
}

// stringField extracts a bounded string. min/max bound rune counts; max 0
// means unbounded.
func (v *Validator) stringField(m map[string]any, key, path string, min, max int, errs *[]FieldError) string {
	raw, ok := m[key]
	if !ok || raw == nil {
		*errs = append(*errs, FieldError{Path: path, Reason: "field is required"})
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		*errs = append(*errs, FieldError{Path: path, Reason: "must be a string"})
		return ""
	}
	n := utf8.RuneCountInString(s)
	if n < min {
		*errs = append(*errs, FieldError{
			Path:   path,
			Reason: fmt.Sprintf("must be at least %d characters, got %d", min, n),
		})
	}
	if max > 0 && n > max {
		*errs = append(*errs, FieldError{
			Path:   path,
			Reason: fmt.Sprintf("must be at most %d characters, got %d", max, n),
		})
	}
	return s
}

// toSlice normalizes the two list shapes seen in practice: JSON-decoded
// []any and programmatically built []map[string]any.
func toSlice(raw any) []any {
	switch v := raw.(type) {
	case []any:
		return v
	case []map[string]any:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out
	default:
		return nil
	}
}

// AsMap converts a validated config back into the raw map shape used by the
// merge engine, so incremental patches can be applied on top of it.
func (c *AgentConfig) AsMap() map[string]any {
	skills := make([]any, len(c.Skills))
	for i, s := range c.Skills {
		tools := make([]any, len(s.Tools))
		for j, t := range s.Tools {
			cfg := t.Config
			if cfg == nil {
				cfg = map[string]any{}
			}
			tools[j] = map[string]any{"name": t.Name, "config": cfg}
		}
		skills[i] = map[string]any{
			"name":        s.Name,
			"when_to_use": s.WhenToUse,
			"prompt":      s.Prompt,
			"tools":       tools,
		}
	}
	return map[string]any{
		"name":          c.Name,
		"description":   c.Description,
		"system_prompt": c.SystemPrompt,
		"skills":        skills,
	}
}

// Normalized returns the canonical JSON encoding of the config. Struct field
// order is fixed and map keys are sorted, so two configs with the same
// normalized bytes are materially identical.
func (c *AgentConfig) Normalized() []byte {
	data, _ := json.Marshal(c)
	return data
}

// Equal reports whether two configs are materially identical, comparing the
// fully normalized field set independent of key order.
func Equal(a, b *AgentConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return bytes.Equal(a.Normalized(), b.Normalized())
}
