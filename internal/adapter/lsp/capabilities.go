package lsp

import (
	"encoding/json"
	"strings"
)

// Capabilities is the server's advertised capability object, queryable by
// dotted path so callers never re-declare the nested structure, e.g.
// Has("textDocument.completion.completionItem.snippetSupport") or
// Get("textDocumentSync").
type Capabilities struct {
	raw map[string]any
}

// ParseCapabilities decodes the capabilities object of an initialize result.
func ParseCapabilities(result json.RawMessage) (*Capabilities, error) {
	var body struct {
		Capabilities map[string]any `json:"capabilities"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, err
	}
	if body.Capabilities == nil {
		body.Capabilities = map[string]any{}
	}
	return &Capabilities{raw: body.Capabilities}, nil
}

// Get returns the value at a dotted path, or nil when any segment is absent.
func (c *Capabilities) Get(path string) any {
	var cur any = c.raw
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

// Has reports whether the path resolves to a truthy capability value. A
// boolean false and an absent path are both "no"; objects and non-false
// scalars count as supported, matching how servers advertise provider
// options objects in place of plain true.
func (c *Capabilities) Has(path string) bool {
	switch v := c.Get(path).(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		return true
	}
}
