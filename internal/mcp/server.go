// Package mcp exposes study generation as MCP tools. The server is served
// over stdio by the "scribby mcp" subcommand.
package mcp

import (
	"context"
	"encoding/json"

	"github.com/hazyhaar/pkg/kit"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/scribby/internal/service"
	"github.com/hazyhaar/scribby/pkg/audit"
)

const defaultHistoryLimit = 20

// NewServer creates an MCPServer with every scribby tool registered.
// auditLog may be nil.
func NewServer(svc *service.Service, version string, auditLog audit.Logger) *server.MCPServer {
	srv := server.NewMCPServer(
		"scribby",
		version,
		server.WithToolCapabilities(true),
	)

	registerGenerateStudy(srv, svc, auditLog)
	registerCompletePrompt(srv, svc, auditLog)
	registerProviderStatus(srv, svc, auditLog)
	registerListModels(srv, svc, auditLog)
	registerStudyHistory(srv, svc, auditLog)

	return srv
}

func wrap(endpoint kit.Endpoint, auditLog audit.Logger, action string) kit.Endpoint {
	if auditLog == nil {
		return endpoint
	}
	return audit.Middleware(auditLog, action, audit.TransportMCPStdio)(endpoint)
}

func rawSchema(properties map[string]any, required ...string) json.RawMessage {
	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	b, _ := json.Marshal(s)
	return b
}

// --- generate_study ---

func generateStudyEndpoint(svc *service.Service) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return svc.Generate(ctx, *request.(*service.GenerateInput))
	}
}

func registerGenerateStudy(srv *server.MCPServer, svc *service.Service, auditLog audit.Logger) {
	endpoint := wrap(generateStudyEndpoint(svc), auditLog, "generate_study")

	schema := rawSchema(map[string]any{
		"reference":    map[string]string{"type": "string", "description": "Passage reference, e.g. John 1:1-18"},
		"book":         map[string]string{"type": "string", "description": "Book name, used with chapter when reference is empty"},
		"chapter":      map[string]string{"type": "integer", "description": "Chapter number"},
		"start_verse":  map[string]string{"type": "integer", "description": "First verse (optional)"},
		"end_verse":    map[string]string{"type": "integer", "description": "Last verse (optional)"},
		"passage_text": map[string]string{"type": "string", "description": "Passage text; fetched from the ESV API when empty"},
		"provider":     map[string]string{"type": "string", "description": "groq, openrouter, gemini, claude or auto"},
		"model":        map[string]string{"type": "string", "description": "Model override for an explicit provider"},
	})
	tool := mcp.NewToolWithRawSchema("generate_study", "Generate an interwoven Bible study for a passage", schema)

	kit.RegisterMCPTool(srv, tool, endpoint, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		return &kit.MCPDecodeResult{Request: &service.GenerateInput{
			Reference:   stringArg(args, "reference"),
			Book:        stringArg(args, "book"),
			Chapter:     intArg(args, "chapter", 0),
			StartVerse:  intArg(args, "start_verse", 0),
			EndVerse:    intArg(args, "end_verse", 0),
			PassageText: stringArg(args, "passage_text"),
			Provider:    stringArg(args, "provider"),
			Model:       stringArg(args, "model"),
		}}, nil
	})
}

// --- complete_prompt ---

type completeReq struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

func completePromptEndpoint(svc *service.Service) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		r := request.(*completeReq)
		return svc.Complete(ctx, r.Prompt, r.Provider, r.Model)
	}
}

func registerCompletePrompt(srv *server.MCPServer, svc *service.Service, auditLog audit.Logger) {
	endpoint := wrap(completePromptEndpoint(svc), auditLog, "complete_prompt")

	schema := rawSchema(map[string]any{
		"prompt":   map[string]string{"type": "string", "description": "Prompt text"},
		"provider": map[string]string{"type": "string", "description": "Provider name or auto"},
		"model":    map[string]string{"type": "string", "description": "Model override"},
	}, "prompt")
	tool := mcp.NewToolWithRawSchema("complete_prompt", "Run a free-form completion through the provider fallback chain", schema)

	kit.RegisterMCPTool(srv, tool, endpoint, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		return &kit.MCPDecodeResult{Request: &completeReq{
			Prompt:   stringArg(args, "prompt"),
			Provider: stringArg(args, "provider"),
			Model:    stringArg(args, "model"),
		}}, nil
	})
}

// --- provider_status ---

func providerStatusEndpoint(svc *service.Service) kit.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		return map[string]any{
			"mode":      svc.Router.Mode(),
			"providers": svc.Router.Status(),
		}, nil
	}
}

func registerProviderStatus(srv *server.MCPServer, svc *service.Service, auditLog audit.Logger) {
	endpoint := wrap(providerStatusEndpoint(svc), auditLog, "provider_status")
	tool := mcp.NewToolWithRawSchema("provider_status", "Report which LLM providers are configured", rawSchema(map[string]any{}))

	kit.RegisterMCPTool(srv, tool, endpoint, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	})
}

// --- list_models ---

func listModelsEndpoint(svc *service.Service) kit.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		return svc.Router.DiscoverModels(ctx), nil
	}
}

func registerListModels(srv *server.MCPServer, svc *service.Service, auditLog audit.Logger) {
	endpoint := wrap(listModelsEndpoint(svc), auditLog, "list_models")
	tool := mcp.NewToolWithRawSchema("list_models", "List the models each configured provider advertises", rawSchema(map[string]any{}))

	kit.RegisterMCPTool(srv, tool, endpoint, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	})
}

// --- study_history ---

type historyReq struct {
	Limit int `json:"limit"`
}

func studyHistoryEndpoint(svc *service.Service) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return svc.RecentHistory(ctx, request.(*historyReq).Limit)
	}
}

func registerStudyHistory(srv *server.MCPServer, svc *service.Service, auditLog audit.Logger) {
	endpoint := wrap(studyHistoryEndpoint(svc), auditLog, "study_history")

	schema := rawSchema(map[string]any{
		"limit": map[string]string{"type": "integer", "description": "Max entries (default 20)"},
	})
	tool := mcp.NewToolWithRawSchema("study_history", "List recently generated studies, newest first", schema)

	kit.RegisterMCPTool(srv, tool, endpoint, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		limit := intArg(req.GetArguments(), "limit", defaultHistoryLimit)
		if limit <= 0 {
			limit = defaultHistoryLimit
		}
		return &kit.MCPDecodeResult{Request: &historyReq{Limit: limit}}, nil
	})
}

// --- helpers ---

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return def
	}
}
