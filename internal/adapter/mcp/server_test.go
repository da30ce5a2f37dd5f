package mcp_test

import (
	"context"
	"encoding/json"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	csmcp "github.com/Strob0t/CodeSense/internal/adapter/mcp"
	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
)

// --- Mocks ---

type mockIntel struct {
	symbols     map[string]*lspDomain.Symbol // "path|namePath" -> symbol
	groups      []lspDomain.ReferenceGroup
	definitions []lspDomain.Location
	hover       *lspDomain.HoverResult
	status      []lspDomain.ServerInfo
	err         error

	invalidated []string
}

func (m *mockIntel) FindSymbol(_ context.Context, relPath, namePath string) (*lspDomain.Symbol, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.symbols[relPath+"|"+namePath], nil
}

func (m *mockIntel) DocumentSymbols(_ context.Context, _ string) ([]*lspDomain.Symbol, error) {
	if m.err != nil {
		return nil, m.err
	}
	var roots []*lspDomain.Symbol
	for _, sym := range m.symbols {
		roots = append(roots, sym)
	}
	return roots, nil
}

func (m *mockIntel) References(_ context.Context, _ string, _ lspDomain.Position) ([]lspDomain.ReferenceGroup, error) {
	return m.groups, m.err
}

func (m *mockIntel) Definition(_ context.Context, _ string, _ lspDomain.Position) ([]lspDomain.Location, error) {
	return m.definitions, m.err
}

func (m *mockIntel) Hover(_ context.Context, _ string, _ lspDomain.Position) (*lspDomain.HoverResult, error) {
	return m.hover, m.err
}

func (m *mockIntel) Completions(_ context.Context, _ string, _ lspDomain.Position) ([]lspDomain.CompletionItem, error) {
	return []lspDomain.CompletionItem{{Label: "Add"}}, m.err
}

func (m *mockIntel) IncomingCalls(_ context.Context, _ string, _ lspDomain.Position) ([]lspDomain.Location, error) {
	return m.definitions, m.err
}

func (m *mockIntel) WorkspaceSymbols(_ context.Context, _, _ string) ([]*lspDomain.Symbol, error) {
	var syms []*lspDomain.Symbol
	for _, sym := range m.symbols {
		syms = append(syms, sym)
	}
	return syms, m.err
}

func (m *mockIntel) Diagnostics(_ context.Context, _ string) ([]lspDomain.Diagnostic, error) {
	return nil, m.err
}

func (m *mockIntel) InvalidateFile(relPath string) {
	m.invalidated = append(m.invalidated, relPath)
}

func (m *mockIntel) Status() []lspDomain.ServerInfo { return m.status }

func newTestServer(intel *mockIntel) *csmcp.Server {
	return csmcp.NewServer(
		csmcp.ServerConfig{Name: "test", Version: "0.1.0"},
		csmcp.ServerDeps{Intel: intel},
	)
}

func callTool(t *testing.T, s *csmcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tools := s.MCPServer().ListTools()
	tool, ok := tools[name]
	if !ok {
		t.Fatalf("tool %s not found", name)
	}
	result, err := tool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return result
}

func resultText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty result content")
	}
	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	return text.Text
}

// --- Tests ---

func TestNewServer(t *testing.T) {
	s := newTestServer(&mockIntel{})
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	if s.MCPServer() == nil {
		t.Fatal("MCPServer() returned nil")
	}
}

func TestServerStartStop(t *testing.T) {
	s := csmcp.NewServer(
		csmcp.ServerConfig{Addr: ":0", Name: "test", Version: "0.1.0"},
		csmcp.ServerDeps{Intel: &mockIntel{}},
	)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestToolRegistration(t *testing.T) {
	s := newTestServer(&mockIntel{})

	expectedTools := map[string]bool{
		"find_symbol":              false,
		"get_document_symbols":     false,
		"find_referencing_symbols": false,
		"goto_definition":          false,
		"hover":                    false,
		"completions":              false,
		"incoming_calls":           false,
		"workspace_symbols":        false,
		"get_diagnostics":          false,
		"notify_file_changed":      false,
		"server_status":            false,
	}

	tools := s.MCPServer().ListTools()
	if len(tools) != len(expectedTools) {
		t.Fatalf("expected %d tools, got %d", len(expectedTools), len(tools))
	}
	for name := range tools {
		if _, ok := expectedTools[name]; ok {
			expectedTools[name] = true
		} else {
			t.Errorf("unexpected tool: %s", name)
		}
	}
	for name, found := range expectedTools {
		if !found {
			t.Errorf("expected tool %q not registered", name)
		}
	}
}

func TestHandleFindSymbol(t *testing.T) {
	intel := &mockIntel{
		symbols: map[string]*lspDomain.Symbol{
			"calc.go|Calc/add": {Name: "add", NamePath: "Calc/add", Kind: lspDomain.KindMethod},
		},
	}
	s := newTestServer(intel)

	result := callTool(t, s, "find_symbol", map[string]any{
		"relative_path": "calc.go",
		"name_path":     "Calc/add",
	})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	var sym lspDomain.Symbol
	if err := json.Unmarshal([]byte(resultText(t, result)), &sym); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if sym.NamePath != "Calc/add" {
		t.Errorf("name path = %q, want Calc/add", sym.NamePath)
	}
}

func TestHandleFindSymbolNotFound(t *testing.T) {
	s := newTestServer(&mockIntel{})

	result := callTool(t, s, "find_symbol", map[string]any{
		"relative_path": "calc.go",
		"name_path":     "Missing",
	})
	if result.IsError {
		t.Fatalf("absent symbol should not be an error result: %v", result.Content)
	}
	if got := resultText(t, result); got != "null" {
		t.Errorf("result = %q, want null", got)
	}
}

func TestHandleFindSymbolMissingArg(t *testing.T) {
	s := newTestServer(&mockIntel{})

	result := callTool(t, s, "find_symbol", map[string]any{
		"relative_path": "calc.go",
	})
	if !result.IsError {
		t.Fatal("expected error result for missing name_path")
	}
}

func TestHandleFindReferences(t *testing.T) {
	intel := &mockIntel{
		groups: []lspDomain.ReferenceGroup{
			{Path: "main.go", Kind: lspDomain.KindFunction, Locations: []lspDomain.Location{
				{URI: "file:///proj/main.go"},
			}},
		},
	}
	s := newTestServer(intel)

	result := callTool(t, s, "find_referencing_symbols", map[string]any{
		"relative_path": "calc.go",
		"line":          float64(3),
		"character":     float64(5),
	})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	var groups []lspDomain.ReferenceGroup
	if err := json.Unmarshal([]byte(resultText(t, result)), &groups); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(groups) != 1 || groups[0].Path != "main.go" {
		t.Errorf("groups = %+v, want one group for main.go", groups)
	}
}

func TestHandleFindReferencesMissingPosition(t *testing.T) {
	s := newTestServer(&mockIntel{})

	result := callTool(t, s, "find_referencing_symbols", map[string]any{
		"relative_path": "calc.go",
		"line":          float64(3),
	})
	if !result.IsError {
		t.Fatal("expected error result for missing character")
	}
}

func TestHandleHover(t *testing.T) {
	intel := &mockIntel{hover: &lspDomain.HoverResult{Contents: "func Add(a, b int) int"}}
	s := newTestServer(intel)

	result := callTool(t, s, "hover", map[string]any{
		"relative_path": "calc.go",
		"line":          float64(0),
		"character":     float64(0),
	})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	var out lspDomain.HoverResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if out.Contents != "func Add(a, b int) int" {
		t.Errorf("contents = %q", out.Contents)
	}
}

func TestHandleNotifyFileChanged(t *testing.T) {
	intel := &mockIntel{}
	s := newTestServer(intel)

	result := callTool(t, s, "notify_file_changed", map[string]any{
		"relative_path": "calc.go",
	})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	if len(intel.invalidated) != 1 || intel.invalidated[0] != "calc.go" {
		t.Errorf("invalidated = %v, want [calc.go]", intel.invalidated)
	}
}

func TestHandleServerStatus(t *testing.T) {
	intel := &mockIntel{
		status: []lspDomain.ServerInfo{
			{Language: "go", State: lspDomain.StateReady, ReadyReason: lspDomain.ReadyProbeSuccess},
		},
	}
	s := newTestServer(intel)

	result := callTool(t, s, "server_status", nil)
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	var infos []lspDomain.ServerInfo
	if err := json.Unmarshal([]byte(resultText(t, result)), &infos); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(infos) != 1 || infos[0].State != lspDomain.StateReady {
		t.Errorf("infos = %+v", infos)
	}
}

func TestHandleNilDeps(t *testing.T) {
	s := csmcp.NewServer(csmcp.ServerConfig{Name: "test", Version: "0.1.0"}, csmcp.ServerDeps{})

	result := callTool(t, s, "server_status", nil)
	if !result.IsError {
		t.Fatal("expected error result when deps are nil")
	}
}
