package agent

import (
	"regexp"
	"strings"
)

var nonIdentRe = regexp.MustCompile(`[^a-z0-9_-]`)

// SanitizeToolName maps an arbitrary human-readable name to an identifier
// matching ^[a-z0-9_-]+$, as required for names exposed as callable actions.
// The transform is deterministic and idempotent, so action names stay stable
// across repeated instantiation from the same configuration: lowercase,
// spaces to underscores, strip everything else; an empty result falls back
// to "skill_tool" and a leading digit gets a "skill_" prefix.
func SanitizeToolName(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "_")
	s = nonIdentRe.ReplaceAllString(s, "")
	if s == "" {
		return "skill_tool"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "skill_" + s
	}
	return s
}
