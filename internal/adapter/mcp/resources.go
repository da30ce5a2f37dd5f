package mcp

import (
	"context"
	"encoding/json"
	"sort"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"codesense://servers",
			"Language Servers",
			mcplib.WithResourceDescription("Lifecycle state of every running language server session"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleServersResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"codesense://diagnostics",
			"Workspace Diagnostics",
			mcplib.WithResourceDescription("All cached diagnostics across the workspace"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleDiagnosticsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"codesense://capabilities",
			"Capability Matrix",
			mcplib.WithResourceDescription("Per-language feature support classification"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleCapabilitiesResource,
	)
}

func (s *Server) handleServersResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Intel == nil {
		return errorContents(req.Params.URI, "code intelligence not configured"), nil
	}
	data, err := json.Marshal(s.deps.Intel.Status())
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, data), nil
}

func (s *Server) handleDiagnosticsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Intel == nil {
		return errorContents(req.Params.URI, "code intelligence not configured"), nil
	}
	diags, err := s.deps.Intel.Diagnostics(ctx, "")
	if err != nil {
		return nil, err
	}
	if diags == nil {
		diags = []lspDomain.Diagnostic{}
	}
	data, err := json.Marshal(diags)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, data), nil
}

func (s *Server) handleCapabilitiesResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	features := []lspDomain.Feature{
		lspDomain.FeatureReferences,
		lspDomain.FeatureCallHierarchy,
		lspDomain.FeatureDocumentSymbols,
		lspDomain.FeatureCompletions,
	}

	langs := make([]string, 0, len(lspDomain.DefaultServers))
	for lang := range lspDomain.DefaultServers {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	matrix := make(map[string]map[lspDomain.Feature]lspDomain.CapabilitySupport, len(langs))
	for _, lang := range langs {
		row := make(map[lspDomain.Feature]lspDomain.CapabilitySupport, len(features))
		for _, feature := range features {
			row[feature] = lspDomain.SupportLevel(lang, feature)
		}
		matrix[lang] = row
	}

	data, err := json.Marshal(matrix)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, data), nil
}

func jsonContents(uri string, data []byte) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}
}

func errorContents(uri, msg string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     `{"error":"` + msg + `"}`,
		},
	}
}
