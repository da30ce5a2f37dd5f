package lsp

import (
	"encoding/json"
	"testing"
)

func TestCapabilitiesDottedPath(t *testing.T) {
	result := json.RawMessage(`{
		"capabilities": {
			"textDocumentSync": 2,
			"hoverProvider": true,
			"referencesProvider": false,
			"documentSymbolProvider": {"label": "symbols"},
			"completionProvider": {
				"resolveProvider": true,
				"triggerCharacters": ["."]
			}
		}
	}`)

	caps, err := ParseCapabilities(result)
	if err != nil {
		t.Fatalf("ParseCapabilities: %v", err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"hoverProvider", true},
		{"referencesProvider", false},
		{"documentSymbolProvider", true}, // options object counts
		{"completionProvider.resolveProvider", true},
		{"completionProvider.missing", false},
		{"callHierarchyProvider", false},
		{"textDocumentSync", true}, // non-false scalar
	}
	for _, tt := range tests {
		if got := caps.Has(tt.path); got != tt.want {
			t.Errorf("Has(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if v := caps.Get("textDocumentSync"); v != float64(2) {
		t.Errorf("Get(textDocumentSync) = %v, want 2", v)
	}
	if v := caps.Get("completionProvider.resolveProvider"); v != true {
		t.Errorf("Get(completionProvider.resolveProvider) = %v, want true", v)
	}
	if v := caps.Get("hoverProvider.nested.deep"); v != nil {
		t.Errorf("Get through scalar = %v, want nil", v)
	}
}

func TestParseCapabilitiesEmpty(t *testing.T) {
	caps, err := ParseCapabilities(json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("ParseCapabilities: %v", err)
	}
	if caps.Has("hoverProvider") {
		t.Error("empty capabilities should report nothing supported")
	}
}
