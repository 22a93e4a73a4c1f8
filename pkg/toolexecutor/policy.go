package toolexecutor

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
)

// ToolPolicy defines which tools a session will run. Entries are exact names
// or glob patterns such as "debug.*".
type ToolPolicy struct {
	Allow []string `json:"allow" mapstructure:"allow"` // List of allowed tools (* for all)
	Deny  []string `json:"deny" mapstructure:"deny"`   // List of denied tools (overrides allow)
}

// IsToolAllowed checks if a tool is allowed by the policy
func (tp *ToolPolicy) IsToolAllowed(toolName string) bool {
	if tp == nil {
		// No policy means allow all
		return true
	}

	// Check deny list first (overrides allow list)
	for _, denied := range tp.Deny {
		if matchTool(denied, toolName) {
			return false
		}
	}

	for _, allowed := range tp.Allow {
		if matchTool(allowed, toolName) {
			return true
		}
	}

	// If no explicit allow, deny by default
	return false
}

func matchTool(pattern, toolName string) bool {
	if pattern == toolName || pattern == "*" {
		return true
	}
	ok, err := doublestar.Match(pattern, toolName)
	return err == nil && ok
}

// Validate checks that every pattern is well formed and warns about policies
// that can never allow anything.
func (tp *ToolPolicy) Validate(logger zerolog.Logger) error {
	if tp == nil {
		return nil
	}

	for _, pattern := range append(append([]string{}, tp.Allow...), tp.Deny...) {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid tool pattern %q", pattern)
		}
	}

	if len(tp.Allow) == 0 {
		logger.Warn().Msg("Policy has empty allow list - all tools will be denied by default")
	}

	return nil
}

// FilterToolsByPolicy filters a list of tools based on a policy
func FilterToolsByPolicy(tools []string, policy *ToolPolicy) []string {
	if policy == nil {
		return tools
	}

	filtered := []string{}
	for _, tool := range tools {
		if policy.IsToolAllowed(tool) {
			filtered = append(filtered, tool)
		}
	}

	return filtered
}
