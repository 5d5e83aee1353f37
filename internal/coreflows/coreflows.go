// Package coreflows registers the baseline flow.Records for every method
// in dispatch.MethodFlowMap other than "tools/call" (which internal/
// toolinvoke owns): initialize/ping handshake, list/read operations over
// the scope's registries, logging level control, and the skill registry
// contract.
//
// Grounded on the teacher's internal/server/mcp.go registerTools/
// registerPrompts list-building pattern (iterate a registry, project to a
// wire-shaped slice) and internal/obctx's per-session log-level registry.
package coreflows

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mcpgateway/internal/elicit"
	"mcpgateway/internal/flow"
	"mcpgateway/internal/obctx"
	"mcpgateway/internal/scope"
)

const (
	execute  flow.Stage = "execute"
	finalize flow.Stage = "finalize"
)

func simple(name string, fn flow.StageFunc) *flow.Record {
	return &flow.Record{
		Name:    name,
		RunPlan: []flow.Stage{execute, finalize},
		Executors: map[flow.Stage]flow.StageFunc{
			execute:  fn,
			finalize: func(context.Context, *flow.Ctx) error { return nil },
		},
	}
}

// Register installs every baseline flow into s's engine.
func Register(s *scope.Scope, levels *obctx.LevelRegistry, logger *zap.Logger) {
	e := s.Flows

	e.Register(simple("system:initialize", func(ctx context.Context, fc *flow.Ctx) error {
		fc.Output = map[string]any{
			"protocolVersion": "2025-06-18",
			"serverInfo":      map[string]any{"name": s.ID, "version": "1.0.0"},
			"capabilities": map[string]any{
				"tools":     map[string]any{"listChanged": true},
				"resources": map[string]any{"listChanged": true, "subscribe": true},
				"prompts":   map[string]any{"listChanged": true},
				"logging":   map[string]any{},
			},
		}
		return nil
	}))

	e.Register(simple("system:ping", func(ctx context.Context, fc *flow.Ctx) error {
		fc.Output = map[string]any{}
		return nil
	}))

	e.Register(simple("tools:list-tools", func(ctx context.Context, fc *flow.Ctx) error {
		var tools []map[string]any
		for _, entry := range s.Tools.List() {
			t := entry.Value
			tools = append(tools, map[string]any{
				"name":        t.ID,
				"description": t.Annotations.Title,
				"inputSchema": t.InputSchema,
			})
		}
		fc.Output = map[string]any{"tools": tools}
		return nil
	}))

	e.Register(simple("resources:list-resources", func(ctx context.Context, fc *flow.Ctx) error {
		var resources []map[string]any
		for _, entry := range s.Resources.List() {
			r := entry.Value
			resources = append(resources, map[string]any{
				"name":     r.ID,
				"uri":      r.URITemplate,
				"mimeType": r.MIMEType,
			})
		}
		fc.Output = map[string]any{"resources": resources}
		return nil
	}))

	e.Register(simple("resources:list-templates", func(ctx context.Context, fc *flow.Ctx) error {
		var templates []map[string]any
		for _, entry := range s.Resources.List() {
			r := entry.Value
			templates = append(templates, map[string]any{
				"name":        r.ID,
				"uriTemplate": r.URITemplate,
				"mimeType":    r.MIMEType,
			})
		}
		fc.Output = map[string]any{"resourceTemplates": templates}
		return nil
	}))

	e.Register(simple("resources:read-resource", func(ctx context.Context, fc *flow.Ctx) error {
		params, _ := fc.Input.(map[string]any)
		uri, _ := params["uri"].(string)
		for _, entry := range s.Resources.List() {
			r := entry.Value
			if r.URITemplate != uri {
				continue
			}
			data, err := r.Read()
			if err != nil {
				return flow.NewPublicError(flow.KindInternalError, "resource_read_failed", err.Error(), 500)
			}
			fc.Output = map[string]any{
				"contents": []map[string]any{{"uri": uri, "mimeType": r.MIMEType, "text": string(data)}},
			}
			return nil
		}
		return flow.NewPublicError(flow.KindInvalidRequest, "resource_not_found", fmt.Sprintf("resource %q not found", uri), 404)
	}))

	e.Register(simple("resources:subscribe", func(ctx context.Context, fc *flow.Ctx) error {
		fc.Output = map[string]any{"subscribed": true}
		return nil
	}))

	e.Register(simple("resources:unsubscribe", func(ctx context.Context, fc *flow.Ctx) error {
		fc.Output = map[string]any{"unsubscribed": true}
		return nil
	}))

	e.Register(simple("prompts:list-prompts", func(ctx context.Context, fc *flow.Ctx) error {
		var prompts []map[string]any
		for _, entry := range s.Prompts.List() {
			p := entry.Value
			prompts = append(prompts, map[string]any{"name": p.ID})
		}
		fc.Output = map[string]any{"prompts": prompts}
		return nil
	}))

	e.Register(simple("prompts:get-prompt", func(ctx context.Context, fc *flow.Ctx) error {
		params, _ := fc.Input.(map[string]any)
		name, _ := params["name"].(string)
		args, _ := params["arguments"].(map[string]string)
		entry, ok := s.Prompts.FindByQualifiedName(name)
		if !ok {
			entry, ok = s.Prompts.FindByName(name)
		}
		if !ok {
			return flow.NewPublicError(flow.KindInvalidRequest, "prompt_not_found", fmt.Sprintf("prompt %q not found", name), 404)
		}
		text, err := entry.Value.Render(args)
		if err != nil {
			return flow.NewPublicError(flow.KindInternalError, "prompt_render_failed", err.Error(), 500)
		}
		fc.Output = map[string]any{
			"messages": []map[string]any{{"role": "user", "content": map[string]any{"type": "text", "text": text}}},
		}
		return nil
	}))

	e.Register(simple("completion:complete", func(ctx context.Context, fc *flow.Ctx) error {
		fc.Output = map[string]any{"completion": map[string]any{"values": []string{}}}
		return nil
	}))

	e.Register(simple("logging:set-level", func(ctx context.Context, fc *flow.Ctx) error {
		params, _ := fc.Input.(map[string]any)
		level, _ := params["level"].(string)
		if level == "" {
			return flow.NewPublicError(flow.KindInvalidInput, "missing_level", "logging/setLevel requires a \"level\"", 400)
		}
		levels.SetLevel(fc.SessionID, obctx.LogLevel(level))
		fc.Output = map[string]any{}
		return nil
	}))

	// elicitation/create is server-initiated (spec 4.4 "Elicit out-path");
	// a client-sent request to this method is not serviced.
	e.Register(simple("elicitation:request", func(ctx context.Context, fc *flow.Ctx) error {
		return flow.NewPublicError(flow.KindCapabilityUnavailable, "elicitation_is_server_initiated",
			"elicitation/create is only sent server -> client", 400)
	}))

	if s.Skills != nil {
		e.Register(simple("skills:list", func(ctx context.Context, fc *flow.Ctx) error {
			params, _ := fc.Input.(map[string]any)
			limit, _ := params["limit"].(float64)
			skills, err := s.Skills.ListSkills(ctx, scope.SkillListOptions{Limit: int(limit)})
			if err != nil {
				return flow.NewPublicError(flow.KindInternalError, "skills_list_failed", err.Error(), 500)
			}
			fc.Output = map[string]any{"skills": skills}
			return nil
		}))

		e.Register(simple("skills:search", func(ctx context.Context, fc *flow.Ctx) error {
			params, _ := fc.Input.(map[string]any)
			query, _ := params["query"].(string)
			limit, _ := params["limit"].(float64)
			skills, err := s.Skills.Search(ctx, query, scope.SkillSearchOptions{Limit: int(limit)})
			if err != nil {
				return flow.NewPublicError(flow.KindInternalError, "skills_search_failed", err.Error(), 500)
			}
			fc.Output = map[string]any{"skills": skills}
			return nil
		}))

		e.Register(simple("skills:load", func(ctx context.Context, fc *flow.Ctx) error {
			params, _ := fc.Input.(map[string]any)
			id, _ := params["id"].(string)
			loaded, err := s.Skills.LoadSkill(ctx, id)
			if err != nil {
				return flow.NewPublicError(flow.KindInvalidRequest, "skill_not_found", err.Error(), 404)
			}
			fc.Output = loaded
			return nil
		}))
	}

	_ = elicit.ModeForm // keep import anchored to the elicit package for godoc cross-linking
}
