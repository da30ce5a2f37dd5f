package lsp

import "strings"

// TransportKind selects how the client talks to a server process.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportTCP   TransportKind = "tcp"
)

// ServerConfig defines how to launch and talk to a language server for a
// given language. Language-specific quirks are data here (capability tier,
// correction rules, vendored markers), not subclasses.
type ServerConfig struct {
	Command   []string          // e.g. ["gopls", "serve"]
	Transport TransportKind     // default stdio
	TCPHost   string            // tcp mode only
	TCPPort   int               // tcp mode only
	InitOpts  map[string]any    // LSP initializationOptions (optional)
	Env       map[string]string // extra child process environment

	// CorrectBlankLineAnchors enables the blank-line/doc-comment range
	// correction pass for backends that anchor symbols above the identifier.
	CorrectBlankLineAnchors bool

	// VendoredMarkers are path segments identifying dependency copies;
	// definitions under them lose to real source when both are reported.
	VendoredMarkers []string

	// Extensions are the file extensions handled by this server.
	Extensions []string
}

// DefaultServers maps language names to their default server configurations.
var DefaultServers = map[string]ServerConfig{
	"go": {
		Command:         []string{"gopls", "serve"},
		Extensions:      []string{".go"},
		VendoredMarkers: []string{"vendor"},
	},
	"python": {
		Command:         []string{"pyright-langserver", "--stdio"},
		Extensions:      []string{".py"},
		VendoredMarkers: []string{"site-packages", ".venv"},
	},
	"typescript": {
		Command:         []string{"typescript-language-server", "--stdio"},
		Extensions:      []string{".ts", ".tsx"},
		VendoredMarkers: []string{"node_modules"},
	},
	"javascript": {
		Command:         []string{"typescript-language-server", "--stdio"},
		Extensions:      []string{".js", ".jsx"},
		VendoredMarkers: []string{"node_modules"},
	},
	"rust": {
		Command:    []string{"rust-analyzer"},
		Extensions: []string{".rs"},
	},
	"csharp": {
		Command:    []string{"Microsoft.CodeAnalysis.LanguageServer", "--stdio"},
		Extensions: []string{".cs"},
	},
	"fsharp": {
		Command:                 []string{"fsautocomplete", "--adaptive-lsp-server-enabled"},
		Extensions:              []string{".fs", ".fsx"},
		CorrectBlankLineAnchors: true,
	},
	"ruby": {
		Command:    []string{"ruby-lsp"},
		Extensions: []string{".rb"},
	},
	"php": {
		Command:         []string{"intelephense", "--stdio"},
		Extensions:      []string{".php"},
		VendoredMarkers: []string{"vendor"},
	},
	"erlang": {
		Command:    []string{"erlang_ls"},
		Transport:  TransportTCP,
		TCPHost:    "127.0.0.1",
		TCPPort:    10000,
		Extensions: []string{".erl", ".hrl"},
	},
}

// LanguageForPath infers the configured language from a file path's
// extension. Returns "" when no server handles the extension.
func LanguageForPath(path string) string {
	lower := strings.ToLower(path)
	for lang, cfg := range DefaultServers {
		for _, ext := range cfg.Extensions {
			if strings.HasSuffix(lower, ext) {
				return lang
			}
		}
	}
	return ""
}
