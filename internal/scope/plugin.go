package scope

import "mcpgateway/internal/flow"

// Plugin is a registered contribution of hooks and, indirectly, tools,
// resources, and prompts. The PluginRegistry only tracks hook ownership so
// a plugin can be disabled/unregistered as a unit.
type Plugin struct {
	Name  string
	Hooks []*flow.Hook
}

// PluginRegistry is the spec 3/4.2 plugin registry.
type PluginRegistry struct {
	*Registry[*Plugin]
}

// NewPluginRegistry constructs an empty PluginRegistry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{Registry: NewRegistry[*Plugin]()}
}
