// Package lsp implements the Language Server Protocol client stack: process
// transport (stdio and tcp), JSON-RPC 2.0 framing and correlation, capability
// negotiation, and a typed request surface used by server sessions.
package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
)

// ClientConfig carries the per-request knobs a client needs.
type ClientConfig struct {
	RequestTimeout  time.Duration // per-request deadline, default 15s
	ShutdownTimeout time.Duration // graceful shutdown budget, default 5s
	MaxDiagnostics  int           // per-file diagnostic cap, 0 = unlimited
}

func (c *ClientConfig) withDefaults() ClientConfig {
	out := *c
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = 15 * time.Second
	}
	if out.ShutdownTimeout <= 0 {
		out.ShutdownTimeout = 5 * time.Second
	}
	return out
}

// Client is the typed request surface over one language server process. It
// owns the transport and handler, caches published diagnostics per URI, and
// forwards $/progress activity to an optional callback. Lifecycle policy
// (readiness, retries, fallbacks) lives above it in the session.
type Client struct {
	language  string
	workspace string
	cfg       ClientConfig
	logger    *slog.Logger

	transport *Transport
	handler   *Handler
	caps      *Capabilities

	diagnostics map[string][]lspDomain.Diagnostic
	diagMu      sync.RWMutex

	onProgress func()
	progMu     sync.Mutex
}

// NewClient creates an unstarted client for one server process.
func NewClient(language, workspace string, info LaunchInfo, cfg ClientConfig, logger *slog.Logger) *Client {
	c := &Client{
		language:    language,
		workspace:   workspace,
		cfg:         cfg.withDefaults(),
		logger:      logger.With("language", language),
		diagnostics: make(map[string][]lspDomain.Diagnostic),
	}
	c.transport = NewTransport(info, c.logger, func(payload []byte) {
		c.handler.HandlePayload(payload)
	})
	c.handler = NewHandler(c.transport, c.logger)
	c.registerServerCallbacks()
	return c
}

// SetProgressCallback registers fn to run on every $/progress notification.
func (c *Client) SetProgressCallback(fn func()) {
	c.progMu.Lock()
	defer c.progMu.Unlock()
	c.onProgress = fn
}

// Language returns the language this client serves.
func (c *Client) Language() string { return c.language }

// PID returns the server process id, or 0 before start.
func (c *Client) PID() int { return c.transport.PID() }

// Exited is closed once the server process has been reaped.
func (c *Client) Exited() <-chan struct{} { return c.transport.Exited() }

// Capabilities returns the negotiated server capabilities, nil before
// Initialize completes.
func (c *Client) Capabilities() *Capabilities { return c.caps }

// Start launches the server process and begins reading.
func (c *Client) Start(ctx context.Context) error {
	if err := c.transport.Start(ctx); err != nil {
		return err
	}
	// Fail outstanding calls when the process dies out from under us.
	go func() {
		<-c.transport.Exited()
		c.handler.Close()
	}()
	c.logger.Info("server process started", "pid", c.transport.PID())
	return nil
}

// Initialize performs the initialize/initialized handshake and records the
// server's capabilities.
func (c *Client) Initialize(ctx context.Context, initOpts map[string]any) error {
	workspaceURI := pathToURI(c.workspace)
	params := map[string]any{
		"processId": os.Getpid(),
		"rootUri":   workspaceURI,
		"workspaceFolders": []map[string]any{
			{"uri": workspaceURI, "name": "workspace"},
		},
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"synchronization":    map[string]any{"didSave": true},
				"publishDiagnostics": map[string]any{},
				"definition":         map[string]any{},
				"references":         map[string]any{},
				"hover":              map[string]any{"contentFormat": []string{"markdown", "plaintext"}},
				"completion": map[string]any{
					"completionItem": map[string]any{"snippetSupport": false},
				},
				"documentSymbol": map[string]any{
					"hierarchicalDocumentSymbolSupport": true,
				},
				"callHierarchy": map[string]any{},
			},
			"workspace": map[string]any{
				"workspaceFolders": true,
				"symbol":           map[string]any{},
			},
			"window": map[string]any{
				"workDoneProgress": true,
			},
		},
	}
	if initOpts != nil {
		params["initializationOptions"] = initOpts
	}

	result, err := c.call(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}
	caps, err := ParseCapabilities(result)
	if err != nil {
		return lspDomain.WrapError(lspDomain.KindProtocol, err, "parse server capabilities")
	}
	c.caps = caps

	if err := c.handler.Notify("initialized", map[string]any{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// Stop performs the shutdown/exit sequence and tears the process down.
func (c *Client) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
	defer cancel()

	if _, err := c.handler.Call(shutdownCtx, "shutdown", nil); err != nil {
		c.logger.Warn("shutdown request failed", "error", err)
	}
	_ = c.handler.Notify("exit", nil)

	c.transport.Stop(c.cfg.ShutdownTimeout)
	c.handler.Close()
	c.logger.Info("server stopped")
	return nil
}

// --- Requests ---

// RawDocumentSymbols issues textDocument/documentSymbol and normalizes both
// response shapes: hierarchical DocumentSymbol[] and the flat
// SymbolInformation[] that older servers still send.
func (c *Client) RawDocumentSymbols(ctx context.Context, uri string) ([]*lspDomain.Symbol, error) {
	result, err := c.call(ctx, "textDocument/documentSymbol", map[string]any{
		"textDocument": map[string]string{"uri": uri},
	})
	if err != nil {
		return nil, err
	}
	return parseDocumentSymbols(result)
}

// WorkspaceSymbols issues workspace/symbol. An empty query is a cheap
// readiness probe on most servers.
func (c *Client) WorkspaceSymbols(ctx context.Context, query string) ([]*lspDomain.Symbol, error) {
	result, err := c.call(ctx, "workspace/symbol", map[string]any{"query": query})
	if err != nil {
		return nil, err
	}
	if result == nil || string(result) == "null" {
		return nil, nil
	}
	var infos []symbolInformation
	if err := json.Unmarshal(result, &infos); err != nil {
		return nil, lspDomain.WrapError(lspDomain.KindProtocol, err, "unmarshal workspace symbols")
	}
	out := make([]*lspDomain.Symbol, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.toSymbol())
	}
	return out, nil
}

// Definition returns definition locations for a position.
func (c *Client) Definition(ctx context.Context, uri string, pos lspDomain.Position) ([]lspDomain.Location, error) {
	result, err := c.call(ctx, "textDocument/definition", positionParams(uri, pos))
	if err != nil {
		return nil, err
	}
	return parseLocations(result)
}

// References returns all references to the symbol at a position, declaration
// included.
func (c *Client) References(ctx context.Context, uri string, pos lspDomain.Position) ([]lspDomain.Location, error) {
	params := positionParams(uri, pos)
	params["context"] = map[string]bool{"includeDeclaration": true}
	result, err := c.call(ctx, "textDocument/references", params)
	if err != nil {
		return nil, err
	}
	return parseLocations(result)
}

// Hover returns hover contents for a position, nil when the server has none.
func (c *Client) Hover(ctx context.Context, uri string, pos lspDomain.Position) (*lspDomain.HoverResult, error) {
	result, err := c.call(ctx, "textDocument/hover", positionParams(uri, pos))
	if err != nil {
		return nil, err
	}
	if result == nil || string(result) == "null" {
		return nil, nil
	}

	var raw struct {
		Contents json.RawMessage  `json:"contents"`
		Range    *lspDomain.Range `json:"range,omitempty"`
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, lspDomain.WrapError(lspDomain.KindProtocol, err, "unmarshal hover")
	}
	return &lspDomain.HoverResult{
		Contents: extractHoverContents(raw.Contents),
		Range:    raw.Range,
	}, nil
}

// Completions returns completion items for a position.
func (c *Client) Completions(ctx context.Context, uri string, pos lspDomain.Position) ([]lspDomain.CompletionItem, error) {
	result, err := c.call(ctx, "textDocument/completion", positionParams(uri, pos))
	if err != nil {
		return nil, err
	}
	if result == nil || string(result) == "null" {
		return nil, nil
	}

	// Response is CompletionItem[] | CompletionList.
	var items []lspDomain.CompletionItem
	if err := json.Unmarshal(result, &items); err == nil {
		return items, nil
	}
	var list struct {
		Items []lspDomain.CompletionItem `json:"items"`
	}
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, lspDomain.WrapError(lspDomain.KindProtocol, err, "unmarshal completions")
	}
	return list.Items, nil
}

// callHierarchyItem is the wire shape of an item in a call hierarchy.
type callHierarchyItem struct {
	Name           string          `json:"name"`
	Kind           int             `json:"kind"`
	URI            string          `json:"uri"`
	Range          lspDomain.Range `json:"range"`
	SelectionRange lspDomain.Range `json:"selectionRange"`
}

// IncomingCalls resolves callers of the symbol at a position via the call
// hierarchy: prepare, then incomingCalls per prepared item. Returned
// locations are the call sites.
func (c *Client) IncomingCalls(ctx context.Context, uri string, pos lspDomain.Position) ([]lspDomain.Location, error) {
	prepared, err := c.call(ctx, "textDocument/prepareCallHierarchy", positionParams(uri, pos))
	if err != nil {
		return nil, err
	}
	if prepared == nil || string(prepared) == "null" {
		return nil, nil
	}
	var items []callHierarchyItem
	if err := json.Unmarshal(prepared, &items); err != nil {
		return nil, lspDomain.WrapError(lspDomain.KindProtocol, err, "unmarshal call hierarchy items")
	}

	var locs []lspDomain.Location
	for _, item := range items {
		result, err := c.call(ctx, "callHierarchy/incomingCalls", map[string]any{"item": item})
		if err != nil {
			return nil, err
		}
		var calls []struct {
			From       callHierarchyItem `json:"from"`
			FromRanges []lspDomain.Range `json:"fromRanges"`
		}
		if err := json.Unmarshal(result, &calls); err != nil {
			return nil, lspDomain.WrapError(lspDomain.KindProtocol, err, "unmarshal incoming calls")
		}
		for _, call := range calls {
			for _, r := range call.FromRanges {
				locs = append(locs, lspDomain.Location{URI: call.From.URI, Range: r})
			}
			if len(call.FromRanges) == 0 {
				locs = append(locs, lspDomain.Location{URI: call.From.URI, Range: call.From.SelectionRange})
			}
		}
	}
	return locs, nil
}

// OpenFile announces a file's content to the server.
func (c *Client) OpenFile(uri, languageID, content string) error {
	return c.handler.Notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": languageID,
			"version":    1,
			"text":       content,
		},
	})
}

// CloseFile retracts a previously opened file.
func (c *Client) CloseFile(uri string) error {
	return c.handler.Notify("textDocument/didClose", map[string]any{
		"textDocument": map[string]string{"uri": uri},
	})
}

// Diagnostics returns cached diagnostics for a URI, or all when uri is empty.
func (c *Client) Diagnostics(uri string) []lspDomain.Diagnostic {
	c.diagMu.RLock()
	defer c.diagMu.RUnlock()
	if uri != "" {
		return c.diagnostics[uri]
	}
	var all []lspDomain.Diagnostic
	for _, diags := range c.diagnostics {
		all = append(all, diags...)
	}
	return all
}

// DiagnosticCount returns the total number of cached diagnostics.
func (c *Client) DiagnosticCount() int {
	c.diagMu.RLock()
	defer c.diagMu.RUnlock()
	count := 0
	for _, diags := range c.diagnostics {
		count += len(diags)
	}
	return count
}

// --- Internal ---

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	callCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}
	return c.handler.Call(callCtx, method, params)
}

func (c *Client) registerServerCallbacks() {
	c.handler.OnNotification("textDocument/publishDiagnostics", c.handlePublishDiagnostics)
	c.handler.OnNotification("$/progress", func(json.RawMessage) {
		c.progMu.Lock()
		fn := c.onProgress
		c.progMu.Unlock()
		if fn != nil {
			fn()
		}
	})
	c.handler.OnNotification("window/logMessage", func(raw json.RawMessage) {
		var params struct {
			Type    int    `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return
		}
		if params.Type == 1 {
			c.logger.Warn("server log", "message", params.Message)
		} else {
			c.logger.Debug("server log", "message", params.Message)
		}
	})
	// Servers register dynamic capabilities and create progress tokens; both
	// just need an acknowledgement.
	c.handler.OnRequest("client/registerCapability", func(json.RawMessage) (any, error) {
		return nil, nil
	})
	c.handler.OnRequest("window/workDoneProgress/create", func(json.RawMessage) (any, error) {
		return nil, nil
	})
	c.handler.OnRequest("workspace/configuration", func(raw json.RawMessage) (any, error) {
		var params struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(raw, &params)
		return make([]any, len(params.Items)), nil
	})
}

func (c *Client) handlePublishDiagnostics(raw json.RawMessage) {
	var params struct {
		URI         string                 `json:"uri"`
		Diagnostics []lspDomain.Diagnostic `json:"diagnostics"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		c.logger.Warn("failed to unmarshal diagnostics", "error", err)
		return
	}

	diags := params.Diagnostics
	if c.cfg.MaxDiagnostics > 0 && len(diags) > c.cfg.MaxDiagnostics {
		diags = diags[:c.cfg.MaxDiagnostics]
	}

	c.diagMu.Lock()
	if len(diags) == 0 {
		delete(c.diagnostics, params.URI)
	} else {
		c.diagnostics[params.URI] = diags
	}
	c.diagMu.Unlock()
}

// --- Wire parsing helpers ---

// symbolInformation is the flat legacy symbol shape.
type symbolInformation struct {
	Name     string `json:"name"`
	Kind     int    `json:"kind"`
	Location struct {
		URI   string          `json:"uri"`
		Range lspDomain.Range `json:"range"`
	} `json:"location"`
	ContainerName string `json:"containerName,omitempty"`
}

func (s symbolInformation) toSymbol() *lspDomain.Symbol {
	return &lspDomain.Symbol{
		Name:           s.Name,
		Kind:           lspDomain.SymbolKind(s.Kind),
		Range:          s.Location.Range,
		SelectionRange: s.Location.Range,
	}
}

// parseDocumentSymbols accepts DocumentSymbol[] (hierarchical) or
// SymbolInformation[] (flat). The flat shape yields a childless tree.
func parseDocumentSymbols(raw json.RawMessage) ([]*lspDomain.Symbol, error) {
	if raw == nil || string(raw) == "null" {
		return nil, nil
	}

	var symbols []*lspDomain.Symbol
	if err := json.Unmarshal(raw, &symbols); err == nil && symbolsWellFormed(symbols) {
		return symbols, nil
	}

	var infos []symbolInformation
	if err := json.Unmarshal(raw, &infos); err != nil {
		return nil, lspDomain.WrapError(lspDomain.KindProtocol, err, "unmarshal document symbols")
	}
	out := make([]*lspDomain.Symbol, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.toSymbol())
	}
	return out, nil
}

// symbolsWellFormed distinguishes a real DocumentSymbol[] decode from a
// SymbolInformation[] payload that happened to half-unmarshal (it has no
// selectionRange, leaving every range zero).
func symbolsWellFormed(symbols []*lspDomain.Symbol) bool {
	for _, s := range symbols {
		if s == nil || s.Name == "" {
			return false
		}
		zero := lspDomain.Range{}
		if s.Range == zero && s.SelectionRange == zero {
			return false
		}
	}
	return true
}

func positionParams(uri string, pos lspDomain.Position) map[string]any {
	return map[string]any{
		"textDocument": map[string]string{"uri": uri},
		"position":     map[string]int{"line": pos.Line, "character": pos.Character},
	}
}

func parseLocations(raw json.RawMessage) ([]lspDomain.Location, error) {
	if raw == nil || string(raw) == "null" {
		return nil, nil
	}

	// Location | Location[] | LocationLink[].
	var locs []lspDomain.Location
	if err := json.Unmarshal(raw, &locs); err == nil && locationsWellFormed(locs) {
		return locs, nil
	}

	var links []struct {
		TargetURI   string          `json:"targetUri"`
		TargetRange lspDomain.Range `json:"targetSelectionRange"`
	}
	if err := json.Unmarshal(raw, &links); err == nil && len(links) > 0 && links[0].TargetURI != "" {
		out := make([]lspDomain.Location, 0, len(links))
		for _, l := range links {
			out = append(out, lspDomain.Location{URI: l.TargetURI, Range: l.TargetRange})
		}
		return out, nil
	}

	var loc lspDomain.Location
	if err := json.Unmarshal(raw, &loc); err == nil && loc.URI != "" {
		return []lspDomain.Location{loc}, nil
	}

	return nil, lspDomain.NewError(lspDomain.KindProtocol, "unexpected location result shape")
}

func locationsWellFormed(locs []lspDomain.Location) bool {
	for _, l := range locs {
		if l.URI == "" {
			return false
		}
	}
	return true
}

// extractHoverContents normalizes string | MarkupContent | MarkedString[]
// into one markdown string.
func extractHoverContents(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var mc struct {
		Kind  string `json:"kind"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &mc); err == nil && mc.Value != "" {
		return mc.Value
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		var parts []string
		for _, item := range arr {
			var str string
			if err := json.Unmarshal(item, &str); err == nil {
				parts = append(parts, str)
				continue
			}
			var ms struct {
				Language string `json:"language"`
				Value    string `json:"value"`
			}
			if err := json.Unmarshal(item, &ms); err == nil {
				if ms.Language != "" {
					parts = append(parts, fmt.Sprintf("```%s\n%s\n```", ms.Language, ms.Value))
				} else {
					parts = append(parts, ms.Value)
				}
			}
		}
		return strings.Join(parts, "\n\n")
	}

	return string(raw)
}

// pathToURI converts an absolute path to a file:// URI.
func pathToURI(path string) string {
	return "file://" + path
}

// URIToPath converts a file:// URI back to a filesystem path.
func URIToPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}
