// Package lsp defines domain types for Language Server Protocol integration.
// These types represent LSP concepts (positions, locations, symbols,
// diagnostics) in a transport-independent way for use across the session,
// adapter, and service layers.
package lsp

import "fmt"

// Position in a text document (0-based line and character).
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range in a text document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether other lies entirely within r.
func (r Range) Contains(other Range) bool {
	return !positionBefore(other.Start, r.Start) && !positionBefore(r.End, other.End)
}

func positionBefore(a, b Position) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Character < b.Character
}

// Location links a URI to a range. Immutable: created per response, never
// mutated after normalization.
type Location struct {
	URI          string `json:"uri"`
	Range        Range  `json:"range"`
	RelativePath string `json:"relativePath,omitempty"`
}

// SymbolKind mirrors the LSP SymbolKind enum.
type SymbolKind int

// LSP SymbolKind values (LSP 3.17).
const (
	KindFile          SymbolKind = 1
	KindModule        SymbolKind = 2
	KindNamespace     SymbolKind = 3
	KindPackage       SymbolKind = 4
	KindClass         SymbolKind = 5
	KindMethod        SymbolKind = 6
	KindProperty      SymbolKind = 7
	KindField         SymbolKind = 8
	KindConstructor   SymbolKind = 9
	KindEnum          SymbolKind = 10
	KindInterface     SymbolKind = 11
	KindFunction      SymbolKind = 12
	KindVariable      SymbolKind = 13
	KindConstant      SymbolKind = 14
	KindString        SymbolKind = 15
	KindNumber        SymbolKind = 16
	KindBoolean       SymbolKind = 17
	KindArray         SymbolKind = 18
	KindObject        SymbolKind = 19
	KindKey           SymbolKind = 20
	KindNull          SymbolKind = 21
	KindEnumMember    SymbolKind = 22
	KindStruct        SymbolKind = 23
	KindEvent         SymbolKind = 24
	KindOperator      SymbolKind = 25
	KindTypeParameter SymbolKind = 26
)

var symbolKindNames = map[SymbolKind]string{
	KindFile: "file", KindModule: "module", KindNamespace: "namespace",
	KindPackage: "package", KindClass: "class", KindMethod: "method",
	KindProperty: "property", KindField: "field", KindConstructor: "constructor",
	KindEnum: "enum", KindInterface: "interface", KindFunction: "function",
	KindVariable: "variable", KindConstant: "constant", KindString: "string",
	KindNumber: "number", KindBoolean: "boolean", KindArray: "array",
	KindObject: "object", KindKey: "key", KindNull: "null",
	KindEnumMember: "enum member", KindStruct: "struct", KindEvent: "event",
	KindOperator: "operator", KindTypeParameter: "type parameter",
}

func (k SymbolKind) String() string {
	if name, ok := symbolKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Symbol is a node in a document's symbol tree. NamePath is the /-joined
// sequence of ancestor names uniquely addressing the symbol within its file
// (e.g. "Calc/add"); it is filled in during normalization, not by the server.
type Symbol struct {
	Name           string     `json:"name"`
	Kind           SymbolKind `json:"kind"`
	Range          Range      `json:"range"`
	SelectionRange Range      `json:"selectionRange"`
	NamePath       string     `json:"namePath,omitempty"`
	Children       []*Symbol  `json:"children,omitempty"`
}

// DiagnosticSeverity mirrors LSP DiagnosticSeverity.
const (
	SeverityError   = 1
	SeverityWarning = 2
	SeverityInfo    = 3
	SeverityHint    = 4
)

// Diagnostic represents a compiler/linter diagnostic published by a server.
type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity"` // 1=Error, 2=Warning, 3=Info, 4=Hint
	Source   string `json:"source"`
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
}

// HoverResult contains hover information for a position.
type HoverResult struct {
	Contents string `json:"contents"` // Markdown
	Range    *Range `json:"range,omitempty"`
}

// CompletionItem is a single completion suggestion.
type CompletionItem struct {
	Label      string `json:"label"`
	Kind       int    `json:"kind,omitempty"`
	Detail     string `json:"detail,omitempty"`
	InsertText string `json:"insertText,omitempty"`
}

// ReferenceGroup is the per-file, per-kind presentation of reference results.
type ReferenceGroup struct {
	Path      string     `json:"path"`
	Kind      SymbolKind `json:"kind"`
	Locations []Location `json:"locations"`
}

// ServerState is the lifecycle state of a language server session. Only the
// readiness engine may transition it.
type ServerState string

const (
	StateStarting         ServerState = "starting"
	StateInitializing     ServerState = "initializing"
	StateProbingReadiness ServerState = "probing_readiness"
	StateReady            ServerState = "ready"
	StateDegraded         ServerState = "degraded"
	StateShuttingDown     ServerState = "shutting_down"
	StateStopped          ServerState = "stopped"
)

// ReadyReason records which readiness signal fired first.
type ReadyReason string

const (
	ReadyProbeSuccess  ReadyReason = "probe_success"
	ReadyProgressEmpty ReadyReason = "progress_empty"
	ReadyFallback      ReadyReason = "fallback"
)

// ServerInfo describes a running language server session.
type ServerInfo struct {
	ID          string      `json:"id"`
	Language    string      `json:"language"`
	State       ServerState `json:"state"`
	ReadyReason ReadyReason `json:"readyReason,omitempty"`
	Command     string      `json:"command"`
	PID         int         `json:"pid,omitempty"`
	Error       string      `json:"error,omitempty"`
	Diagnostics int         `json:"diagnostics"`
}
