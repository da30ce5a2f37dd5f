package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/sync/errgroup"

	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
)

// References returns all locations referencing the symbol at a position.
// Dispatch follows the language's capability tier: Fallback never issues the
// native request and scans the project instead; Unknown attempts the native
// request and scans only if it errors; classified tiers use the native
// request directly.
func (s *Session) References(ctx context.Context, relPath string, pos lspDomain.Position) ([]lspDomain.Location, error) {
	return s.referencesShared(ctx, relPath, pos, newSharedSymbolCache())
}

// IncomingCalls resolves callers via the call hierarchy, honoring
// ShouldFallbackToReferences: Fallback-tier languages go straight to the
// reference scan, Unknown-tier failures fall back instead of propagating.
func (s *Session) IncomingCalls(ctx context.Context, relPath string, pos lspDomain.Position) ([]lspDomain.Location, error) {
	if lspDomain.ShouldFallbackToReferences(s.language) {
		return s.fallbackReferences(ctx, relPath, pos, nil)
	}

	var locs []lspDomain.Location
	err := s.do(ctx, func(ctx context.Context) error {
		var reqErr error
		locs, reqErr = s.backend.IncomingCalls(ctx, s.uriFor(relPath), pos)
		return reqErr
	}, relPath)
	if err != nil {
		if lspDomain.SupportLevel(s.language, lspDomain.FeatureCallHierarchy) == lspDomain.SupportUnknown {
			return s.fallbackReferences(ctx, relPath, pos, nil)
		}
		return nil, err
	}
	return s.normalizeLocations(locs), nil
}

// Definition returns definition locations with real source preferred over
// vendored copies: the first location outside any vendored-directory marker
// is moved to the front, and only when every result is vendored does the
// server's first answer stay first.
func (s *Session) Definition(ctx context.Context, relPath string, pos lspDomain.Position) ([]lspDomain.Location, error) {
	var locs []lspDomain.Location
	err := s.do(ctx, func(ctx context.Context) error {
		var reqErr error
		locs, reqErr = s.backend.Definition(ctx, s.uriFor(relPath), pos)
		return reqErr
	}, relPath)
	if err != nil {
		return nil, err
	}
	locs = s.normalizeLocations(locs)

	for i, loc := range locs {
		if !s.vendored(loc.RelativePath) {
			if i > 0 {
				preferred := locs[i]
				copy(locs[1:i+1], locs[0:i])
				locs[0] = preferred
			}
			break
		}
	}
	return locs, nil
}

// GroupedReferences renders reference locations grouped by file path, then
// by the kind of the enclosing symbol, for compact presentation.
func (s *Session) GroupedReferences(ctx context.Context, relPath string, pos lspDomain.Position) ([]lspDomain.ReferenceGroup, error) {
	// One symbol cache spans resolution and grouping, so a fallback scan's
	// document-symbol lookups are reused when attributing occurrences.
	shared := newSharedSymbolCache()
	locs, err := s.referencesShared(ctx, relPath, pos, shared)
	if err != nil {
		return nil, err
	}

	type groupKey struct {
		path string
		kind lspDomain.SymbolKind
	}
	groups := make(map[groupKey][]lspDomain.Location)

	for _, loc := range locs {
		kind := lspDomain.KindFile
		if sym := s.enclosingSymbol(ctx, loc, shared); sym != nil {
			kind = sym.Kind
		}
		key := groupKey{path: loc.RelativePath, kind: kind}
		groups[key] = append(groups[key], loc)
	}

	out := make([]lspDomain.ReferenceGroup, 0, len(groups))
	for key, members := range groups {
		out = append(out, lspDomain.ReferenceGroup{Path: key.path, Kind: key.kind, Locations: members})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

// BatchTarget names one symbol position for batch reference resolution.
type BatchTarget struct {
	Path     string
	Position lspDomain.Position
}

// BatchReferences resolves references for many targets with bounded fan-out
// through the worker pool. Document-symbol lookups are shared across targets
// so each distinct file costs one round trip at most.
func (s *Session) BatchReferences(ctx context.Context, targets []BatchTarget) (map[BatchTarget][]lspDomain.Location, error) {
	results := make(map[BatchTarget][]lspDomain.Location, len(targets))
	var mu sync.Mutex
	symbolCache := newSharedSymbolCache()

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		g.Go(func() error {
			return s.pool.Run(gctx, func(ctx context.Context) error {
				locs, err := s.referencesShared(ctx, target.Path, target.Position, symbolCache)
				if err != nil {
					return err
				}
				mu.Lock()
				results[target] = locs
				mu.Unlock()
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Session) referencesShared(ctx context.Context, relPath string, pos lspDomain.Position, shared *sharedSymbolCache) ([]lspDomain.Location, error) {
	tier := lspDomain.SupportLevel(s.language, lspDomain.FeatureReferences)
	if tier == lspDomain.SupportFallback {
		return s.fallbackReferences(ctx, relPath, pos, shared)
	}

	var locs []lspDomain.Location
	err := s.do(ctx, func(ctx context.Context) error {
		var reqErr error
		locs, reqErr = s.backend.References(ctx, s.uriFor(relPath), pos)
		return reqErr
	}, relPath)
	if err != nil {
		if tier == lspDomain.SupportUnknown {
			s.logger.Debug("native references failed, scanning instead", "error", err)
			return s.fallbackReferences(ctx, relPath, pos, shared)
		}
		return nil, err
	}
	return s.normalizeLocations(locs), nil
}

// sharedSymbolCache deduplicates per-file document-symbol round trips within
// one batch or scan.
type sharedSymbolCache struct {
	mu      sync.Mutex
	entries map[string][]*lspDomain.Symbol
}

func newSharedSymbolCache() *sharedSymbolCache {
	return &sharedSymbolCache{entries: make(map[string][]*lspDomain.Symbol)}
}

func (c *sharedSymbolCache) get(path string) ([]*lspDomain.Symbol, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	flat, ok := c.entries[path]
	return flat, ok
}

func (c *sharedSymbolCache) put(path string, flat []*lspDomain.Symbol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = flat
}

// fallbackReferences aggregates referencing locations without any native
// reference support: it resolves the identifier under the cursor, walks the
// project's candidate files, and reports whole-word occurrences. Vendored
// directories and dot dirs are excluded by the provider's walk.
func (s *Session) fallbackReferences(ctx context.Context, relPath string, pos lspDomain.Position, shared *sharedSymbolCache) ([]lspDomain.Location, error) {
	lines, err := s.provider.ReadLines(relPath)
	if err != nil {
		return nil, lspDomain.WrapError(lspDomain.KindUnsupported, err, "read %s", relPath)
	}
	ident := identifierAt(lines, pos)
	if ident == "" {
		return []lspDomain.Location{}, nil
	}
	if shared == nil {
		shared = newSharedSymbolCache()
	}

	var locs []lspDomain.Location
	walkErr := s.provider.Walk(s.cfg.Extensions, func(candidate string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := s.provider.ReadFile(candidate)
		if err != nil || !strings.Contains(string(content), ident) {
			return nil //nolint:nilerr // unreadable candidates are skipped, not fatal
		}

		// One document-symbol round trip per distinct file, shared across
		// the batch; grouping uses it to attribute occurrences later.
		if _, ok := shared.get(candidate); !ok {
			flat, _, symErr := s.DocumentSymbols(ctx, candidate)
			if symErr != nil {
				flat = nil
			}
			shared.put(candidate, flat)
		}

		for lineNo, line := range strings.Split(string(content), "\n") {
			for _, col := range wholeWordOccurrences(line, ident) {
				locs = append(locs, lspDomain.Location{
					URI:          s.uriFor(candidate),
					RelativePath: candidate,
					Range: lspDomain.Range{
						Start: lspDomain.Position{Line: lineNo, Character: col},
						End:   lspDomain.Position{Line: lineNo, Character: col + len(ident)},
					},
				})
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, lspDomain.WrapError(lspDomain.KindUnsupported, walkErr, "scan references for %s", ident)
	}
	return dedupLocations(locs), nil
}

// enclosingSymbol finds the innermost symbol whose range covers a location.
func (s *Session) enclosingSymbol(ctx context.Context, loc lspDomain.Location, shared *sharedSymbolCache) *lspDomain.Symbol {
	relPath := loc.RelativePath
	if relPath == "" {
		relPath = s.relFor(loc.URI)
	}
	flat, ok := shared.get(relPath)
	if !ok {
		var err error
		flat, _, err = s.DocumentSymbols(ctx, relPath)
		if err != nil {
			flat = nil
		}
		shared.put(relPath, flat)
	}

	var best *lspDomain.Symbol
	for _, sym := range flat {
		if !sym.Range.Contains(loc.Range) {
			continue
		}
		if best == nil || best.Range.Contains(sym.Range) {
			best = sym
		}
	}
	return best
}

// normalizeLocations fills relative paths and removes duplicate uri+range
// pairs while preserving order.
func (s *Session) normalizeLocations(locs []lspDomain.Location) []lspDomain.Location {
	for i := range locs {
		if locs[i].RelativePath == "" {
			locs[i].RelativePath = s.relFor(locs[i].URI)
		}
	}
	return dedupLocations(locs)
}

func dedupLocations(locs []lspDomain.Location) []lspDomain.Location {
	type locKey struct {
		uri string
		r   lspDomain.Range
	}
	seen := make(map[locKey]bool, len(locs))
	out := locs[:0]
	for _, loc := range locs {
		key := locKey{uri: loc.URI, r: loc.Range}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, loc)
	}
	if out == nil {
		out = []lspDomain.Location{}
	}
	return out
}

// vendored reports whether a path falls under one of the language's
// vendored-directory markers.
func (s *Session) vendored(relPath string) bool {
	for _, marker := range s.cfg.VendoredMarkers {
		for _, seg := range strings.Split(relPath, "/") {
			if seg == marker {
				return true
			}
		}
	}
	return false
}

// identifierAt extracts the identifier covering a position.
func identifierAt(lines []string, pos lspDomain.Position) string {
	if pos.Line < 0 || pos.Line >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	if pos.Character < 0 || pos.Character > len(line) {
		return ""
	}

	isIdent := func(r byte) bool {
		return r == '_' || unicode.IsLetter(rune(r)) || unicode.IsDigit(rune(r))
	}
	start := pos.Character
	for start > 0 && isIdent(line[start-1]) {
		start--
	}
	end := pos.Character
	for end < len(line) && isIdent(line[end]) {
		end++
	}
	return line[start:end]
}

// wholeWordOccurrences returns the column of every occurrence of ident in
// line that is not part of a longer identifier.
func wholeWordOccurrences(line, ident string) []int {
	var cols []int
	isIdent := func(r byte) bool {
		return r == '_' || unicode.IsLetter(rune(r)) || unicode.IsDigit(rune(r))
	}
	for from := 0; ; {
		i := strings.Index(line[from:], ident)
		if i < 0 {
			return cols
		}
		col := from + i
		before := col == 0 || !isIdent(line[col-1])
		afterIdx := col + len(ident)
		after := afterIdx >= len(line) || !isIdent(line[afterIdx])
		if before && after {
			cols = append(cols, col)
		}
		from = col + len(ident)
	}
}
