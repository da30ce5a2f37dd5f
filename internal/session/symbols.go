package session

import (
	"context"
	"strings"

	"github.com/Strob0t/CodeSense/internal/cache"
	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
)

// DocumentSymbols returns the file's symbol tree roots plus a flattened
// list. Raw server output goes through two passes: position correction for
// backends that anchor declarations on a preceding blank line, and
// flattening that assigns each node its /-joined name path.
func (s *Session) DocumentSymbols(ctx context.Context, relPath string) (flat []*lspDomain.Symbol, roots []*lspDomain.Symbol, err error) {
	err = s.do(ctx, func(ctx context.Context) error {
		var reqErr error
		roots, reqErr = s.backend.RawDocumentSymbols(ctx, s.uriFor(relPath))
		return reqErr
	}, relPath)
	if err != nil {
		return nil, nil, err
	}

	if s.cfg.CorrectBlankLineAnchors {
		if lines, readErr := s.provider.ReadLines(relPath); readErr == nil {
			for _, root := range roots {
				correctBlankAnchor(lines, root)
			}
		}
	}

	flat = flatten(roots)
	for _, sym := range flat {
		s.symbols.Put(cache.SymbolKey{Path: relPath, NamePath: sym.NamePath}, sym)
	}
	if roots == nil {
		roots = []*lspDomain.Symbol{}
	}
	return flat, roots, nil
}

// FindSymbol resolves a symbol by its name path within a file, serving from
// the mtime-gated cache when the file has not changed.
func (s *Session) FindSymbol(ctx context.Context, relPath, namePath string) (*lspDomain.Symbol, error) {
	if sym, ok := s.symbols.Get(cache.SymbolKey{Path: relPath, NamePath: namePath}); ok {
		return sym, nil
	}

	flat, _, err := s.DocumentSymbols(ctx, relPath)
	if err != nil {
		return nil, err
	}
	for _, sym := range flat {
		if sym.NamePath == namePath {
			return sym, nil
		}
	}
	return nil, nil
}

// correctBlankAnchor fixes symbols whose reported range starts on a blank
// line above the declaration's comment block. The whole subtree shifts by
// the number of blank lines skipped so every reported position points at
// the identifier's comment/declaration block.
func correctBlankAnchor(lines []string, sym *lspDomain.Symbol) {
	start := sym.Range.Start.Line
	if start >= 0 && start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		next := start
		for next < len(lines) && strings.TrimSpace(lines[next]) == "" {
			next++
		}
		if delta := next - start; next < len(lines) && delta > 0 {
			shiftTree(sym, delta)
		}
	}
	for _, child := range sym.Children {
		correctBlankAnchor(lines, child)
	}
}

// shiftTree moves a symbol's reported positions forward by delta lines,
// descendants included. The whole subtree moves uniformly so parent ranges
// keep containing their children.
func shiftTree(sym *lspDomain.Symbol, delta int) {
	sym.Range.Start.Line += delta
	sym.Range.End.Line += delta
	sym.SelectionRange.Start.Line += delta
	sym.SelectionRange.End.Line += delta
	for _, child := range sym.Children {
		shiftTree(child, delta)
	}
}

// flatten walks the tree depth-first, assigning each symbol its name path
// from the ancestor chain and collecting every node.
func flatten(roots []*lspDomain.Symbol) []*lspDomain.Symbol {
	var flat []*lspDomain.Symbol
	var walk func(prefix string, sym *lspDomain.Symbol)
	walk = func(prefix string, sym *lspDomain.Symbol) {
		if prefix == "" {
			sym.NamePath = sym.Name
		} else {
			sym.NamePath = prefix + "/" + sym.Name
		}
		flat = append(flat, sym)
		for _, child := range sym.Children {
			walk(sym.NamePath, child)
		}
	}
	for _, root := range roots {
		walk("", root)
	}
	return flat
}
