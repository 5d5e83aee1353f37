// Package scope implements the scope tree and uniform registry protocol of
// spec section 4.2: server-scope contains app-scopes, an app-scope may
// contain further sub-scopes, and tool/resource registries adopt their
// children's contributions with qualified-name rewriting.
package scope

import (
	"mcpgateway/internal/flow"
	"mcpgateway/internal/provider"

	"go.uber.org/zap"
)

// Kind distinguishes the three levels of the scope tree named in spec 3.
type Kind string

const (
	KindServer Kind = "server"
	KindApp    Kind = "app"
	KindPlugin Kind = "plugin"
)

// Scope is a named container holding the registries enumerated in spec 3:
// providers, tools, resources, prompts, flows, an optional skill registry,
// and a plugin registry. Scopes form a tree.
type Scope struct {
	ID       string
	Kind     Kind
	Parent   *Scope
	Children []*Scope

	Providers *provider.Container
	Tools     *ToolRegistry
	Resources *ResourceRegistry
	Prompts   *PromptRegistry
	Flows     *flow.Engine
	Skills    SkillRegistry // optional collaborator, spec 4.2
	Plugins   *PluginRegistry

	logger *zap.Logger
	frozen bool
}

// New creates a root scope (typically the server-scope).
func New(id string, kind Kind, logger *zap.Logger) *Scope {
	s := &Scope{
		ID:        id,
		Kind:      kind,
		Providers: provider.NewContainer(),
		Tools:     NewToolRegistry(),
		Resources: NewResourceRegistry(),
		Prompts:   NewPromptRegistry(),
		Flows:     flow.NewEngine(logger),
		Plugins:   NewPluginRegistry(),
		logger:    logger,
	}
	return s
}

// NewChild creates a sub-scope (an app under the server, a plugin under an
// app) whose provider container forks the parent's (so resolution walks
// child -> parent, first binding wins, per spec 3).
func (s *Scope) NewChild(id string, kind Kind) *Scope {
	child := &Scope{
		ID:        id,
		Kind:      kind,
		Parent:    s,
		Providers: s.Providers.Fork(),
		Tools:     NewToolRegistry(),
		Resources: NewResourceRegistry(),
		Prompts:   NewPromptRegistry(),
		Flows:     s.Flows, // shared with the parent; PluginRegistry hooks are not added to it
		Plugins:   NewPluginRegistry(),
		logger:    s.logger,
	}
	s.Children = append(s.Children, child)
	return child
}

// Freeze marks the scope as started and freezes its provider container,
// which then rejects registrations that are not HotReload. The tool,
// resource, prompt and plugin registries are not frozen and still accept
// Upsert.
func (s *Scope) Freeze() {
	s.frozen = true
	s.Providers.MarkStarted()
}

// Adopt folds a child scope's tool, resource, and prompt contributions into
// this scope, recomputing each qualified name as child.ID + "." + the
// entry's qualified name within the child (spec 4.2 "Tool and resource
// registries additionally adopt children's contributions").
func (s *Scope) Adopt(child *Scope) {
	s.Tools.adoptFrom(child.Tools, child.ID)
	s.Resources.adoptFrom(child.Resources, child.ID)
	s.Prompts.adoptFrom(child.Prompts, child.ID)
}
