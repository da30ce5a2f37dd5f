// Package service assembles sessions, caches, and telemetry into the
// runtime that the MCP surface talks to. One Runtime serves one project
// root and lazily starts a language server per detected language.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	lspAdapter "github.com/Strob0t/CodeSense/internal/adapter/lsp"
	otelAdapter "github.com/Strob0t/CodeSense/internal/adapter/otel"
	"github.com/Strob0t/CodeSense/internal/config"
	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
	portcache "github.com/Strob0t/CodeSense/internal/port/cache"
	"github.com/Strob0t/CodeSense/internal/project"
	"github.com/Strob0t/CodeSense/internal/session"
	"github.com/Strob0t/CodeSense/internal/workerpool"
)

// BackendFactory builds the raw server backend for a language. Production
// wiring launches a real process; tests substitute fakes.
type BackendFactory func(language string, cfg lspDomain.ServerConfig) session.Backend

// Runtime manages one session per language over a single project root.
type Runtime struct {
	cfg      *config.Config
	provider project.FileProvider
	logger   *slog.Logger
	pool     *workerpool.Pool
	newBack  BackendFactory

	responses portcache.Cache // optional response cache, may be nil
	metrics   *otelAdapter.Metrics

	mu       sync.RWMutex
	sessions map[string]*session.Session // language -> session
	closed   bool
}

// NewRuntime assembles a runtime. responses and metrics may be nil; factory
// may be nil to use the default process-launching backend.
func NewRuntime(cfg *config.Config, provider project.FileProvider, responses portcache.Cache, metrics *otelAdapter.Metrics, factory BackendFactory, logger *slog.Logger) *Runtime {
	r := &Runtime{
		cfg:       cfg,
		provider:  provider,
		logger:    logger,
		pool:      workerpool.New(cfg.Workers.Width),
		newBack:   factory,
		responses: responses,
		metrics:   metrics,
		sessions:  make(map[string]*session.Session),
	}
	if r.newBack == nil {
		r.newBack = r.launchBackend
	}
	return r
}

// launchBackend is the default factory: a real server process over stdio or
// TCP, rooted at the provider's workspace.
func (r *Runtime) launchBackend(language string, cfg lspDomain.ServerConfig) session.Backend {
	return lspAdapter.NewClient(language, r.provider.Root(), lspAdapter.LaunchInfo{
		Command:        cfg.Command,
		WorkingDir:     r.provider.Root(),
		Env:            cfg.Env,
		Transport:      cfg.Transport,
		TCPHost:        cfg.TCPHost,
		TCPPort:        cfg.TCPPort,
		ConnectTimeout: r.cfg.LSP.ConnectTimeout,
	}, lspAdapter.ClientConfig{
		RequestTimeout:  r.cfg.LSP.RequestTimeout,
		ShutdownTimeout: r.cfg.LSP.ShutdownTimeout,
		MaxDiagnostics:  r.cfg.LSP.MaxDiagnostics,
	}, r.logger)
}

func (r *Runtime) sessionOptions() session.Options {
	opts := session.Options{
		RequestTimeout:  r.cfg.LSP.RequestTimeout,
		QuietPeriod:     r.cfg.LSP.QuietPeriod,
		FallbackDelay:   r.cfg.LSP.FallbackDelay,
		ReadyCeiling:    r.cfg.LSP.ReadyCeiling,
		ProbeInterval:   r.cfg.LSP.ProbeInterval,
		SymbolCacheSize: r.cfg.Cache.SymbolEntries,
		SymbolCacheTTL:  r.cfg.Cache.SymbolTTL,
		RateLimit:       r.cfg.Rate.RequestsPerSecond,
		RateBurst:       r.cfg.Rate.Burst,
	}
	if r.metrics != nil {
		// Readiness resolves in the background, after the starting request's
		// context may be gone.
		opts.OnReady = func(language string, reason lspDomain.ReadyReason) {
			r.metrics.RecordReady(context.Background(), language, string(reason))
		}
	}
	return opts
}

// DetectLanguages walks the project and returns the languages with a
// configured server that actually have source files, sorted for stable
// startup order.
func (r *Runtime) DetectLanguages() ([]string, error) {
	var exts []string
	for _, cfg := range lspDomain.DefaultServers {
		exts = append(exts, cfg.Extensions...)
	}

	seen := make(map[string]bool)
	err := r.provider.Walk(exts, func(relPath string) error {
		if lang := lspDomain.LanguageForPath(relPath); lang != "" {
			seen[lang] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("detect languages: %w", err)
	}

	langs := make([]string, 0, len(seen))
	for lang := range seen {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs, nil
}

// StartServers starts sessions for the given languages, auto-detecting from
// the project when none are named. Individual failures are logged and
// skipped so one broken server does not block the rest.
func (r *Runtime) StartServers(ctx context.Context, languages []string) error {
	if len(languages) == 0 {
		detected, err := r.DetectLanguages()
		if err != nil {
			return err
		}
		languages = detected
	}

	var started int
	for _, lang := range languages {
		if _, ok := lspDomain.DefaultServers[lang]; !ok {
			r.logger.Debug("no server configured", "language", lang)
			continue
		}
		if _, err := r.SessionFor(ctx, lang); err != nil {
			r.logger.Warn("failed to start server", "language", lang, "error", err)
			continue
		}
		started++
	}

	r.logger.Info("language servers started", "count", started)
	return nil
}

// SessionFor returns the running session for a language, starting one on
// first use.
func (r *Runtime) SessionFor(ctx context.Context, language string) (*session.Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[language]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, lspDomain.NewError(lspDomain.KindUnsupported, "runtime is shut down")
	}
	if ok {
		return sess, nil
	}

	cfg, ok := lspDomain.DefaultServers[language]
	if !ok {
		return nil, lspDomain.NewError(lspDomain.KindUnsupported, "no language server configured for %q", language)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[language]; ok {
		return sess, nil
	}

	id := uuid.NewString()
	sess = session.New(id, language, cfg, r.newBack(language, cfg), r.provider, r.pool, r.sessionOptions(), r.logger)

	startCtx, span := otelAdapter.StartSessionSpan(ctx, id, language, r.provider.Root())
	err := sess.Start(startCtx)
	span.End()
	if err != nil {
		return nil, err
	}
	r.sessions[language] = sess
	if r.metrics != nil {
		r.metrics.SessionsActive.Add(ctx, 1)
	}
	return sess, nil
}

// sessionForPath routes a file path to the session of its language.
func (r *Runtime) sessionForPath(ctx context.Context, relPath string) (*session.Session, error) {
	lang := lspDomain.LanguageForPath(relPath)
	if lang == "" {
		return nil, lspDomain.NewError(lspDomain.KindUnsupported, "no language server handles %q", relPath)
	}
	return r.SessionFor(ctx, lang)
}

// StopServer stops and removes a single language's session.
func (r *Runtime) StopServer(ctx context.Context, language string) error {
	r.mu.Lock()
	sess, ok := r.sessions[language]
	delete(r.sessions, language)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if r.metrics != nil {
		r.metrics.SessionsActive.Add(ctx, -1)
	}
	return sess.Stop(ctx)
}

// Status snapshots every session, sorted by language.
func (r *Runtime) Status() []lspDomain.ServerInfo {
	r.mu.RLock()
	infos := make([]lspDomain.ServerInfo, 0, len(r.sessions))
	for _, sess := range r.sessions {
		infos = append(infos, sess.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Language < infos[j].Language })
	return infos
}

// InvalidateFile drops cached symbols for an edited file. Response cache
// entries carry the file's mtime in their key, so they age out on their own.
func (r *Runtime) InvalidateFile(relPath string) {
	lang := lspDomain.LanguageForPath(relPath)
	r.mu.RLock()
	sess := r.sessions[lang]
	r.mu.RUnlock()
	if sess != nil {
		sess.InvalidateFile(relPath)
	}
}

// Close stops every session and drains the worker pool.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*session.Session)
	r.mu.Unlock()

	var firstErr error
	for lang, sess := range sessions {
		if err := sess.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s: %w", lang, err)
		}
		if r.metrics != nil {
			r.metrics.SessionsActive.Add(ctx, -1)
		}
	}
	if err := r.pool.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// --- Operations ---

// FindSymbol resolves a /-joined name path within a file.
func (r *Runtime) FindSymbol(ctx context.Context, relPath, namePath string) (*lspDomain.Symbol, error) {
	sess, err := r.sessionForPath(ctx, relPath)
	if err != nil {
		return nil, err
	}
	var sym *lspDomain.Symbol
	err = r.instrument(ctx, sess.Language(), "findSymbol", func(ctx context.Context) error {
		var opErr error
		sym, opErr = sess.FindSymbol(ctx, relPath, namePath)
		return opErr
	})
	return sym, err
}

// DocumentSymbols returns a file's corrected symbol tree roots.
func (r *Runtime) DocumentSymbols(ctx context.Context, relPath string) ([]*lspDomain.Symbol, error) {
	sess, err := r.sessionForPath(ctx, relPath)
	if err != nil {
		return nil, err
	}
	var roots []*lspDomain.Symbol
	err = r.instrument(ctx, sess.Language(), "documentSymbols", func(ctx context.Context) error {
		var opErr error
		_, roots, opErr = sess.DocumentSymbols(ctx, relPath)
		return opErr
	})
	return roots, err
}

// References returns every reference to the symbol at a position, grouped
// per file and enclosing symbol kind.
func (r *Runtime) References(ctx context.Context, relPath string, pos lspDomain.Position) ([]lspDomain.ReferenceGroup, error) {
	sess, err := r.sessionForPath(ctx, relPath)
	if err != nil {
		return nil, err
	}
	var groups []lspDomain.ReferenceGroup
	err = r.instrument(ctx, sess.Language(), "references", func(ctx context.Context) error {
		var opErr error
		groups, opErr = sess.GroupedReferences(ctx, relPath, pos)
		return opErr
	})
	return groups, err
}

// BatchReferences resolves references for many targets in one language with
// bounded fan-out.
func (r *Runtime) BatchReferences(ctx context.Context, targets []session.BatchTarget) (map[session.BatchTarget][]lspDomain.Location, error) {
	if len(targets) == 0 {
		return map[session.BatchTarget][]lspDomain.Location{}, nil
	}
	sess, err := r.sessionForPath(ctx, targets[0].Path)
	if err != nil {
		return nil, err
	}
	var out map[session.BatchTarget][]lspDomain.Location
	err = r.instrument(ctx, sess.Language(), "batchReferences", func(ctx context.Context) error {
		var opErr error
		out, opErr = sess.BatchReferences(ctx, targets)
		return opErr
	})
	return out, err
}

// Definition returns definition locations with real source preferred over
// vendored copies.
func (r *Runtime) Definition(ctx context.Context, relPath string, pos lspDomain.Position) ([]lspDomain.Location, error) {
	sess, err := r.sessionForPath(ctx, relPath)
	if err != nil {
		return nil, err
	}
	var locs []lspDomain.Location
	err = r.instrument(ctx, sess.Language(), "definition", func(ctx context.Context) error {
		var opErr error
		locs, opErr = sess.Definition(ctx, relPath, pos)
		return opErr
	})
	return locs, err
}

// Hover returns hover contents, served from the response cache while the
// file is unchanged.
func (r *Runtime) Hover(ctx context.Context, relPath string, pos lspDomain.Position) (*lspDomain.HoverResult, error) {
	sess, err := r.sessionForPath(ctx, relPath)
	if err != nil {
		return nil, err
	}

	key := r.hoverKey(sess.Language(), relPath, pos)
	if cached, ok := r.cachedResponse(ctx, key); ok {
		var out lspDomain.HoverResult
		if json.Unmarshal(cached, &out) == nil {
			return &out, nil
		}
	}

	var out *lspDomain.HoverResult
	err = r.instrument(ctx, sess.Language(), "hover", func(ctx context.Context) error {
		var opErr error
		out, opErr = sess.Hover(ctx, relPath, pos)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		r.storeResponse(ctx, key, out)
	}
	return out, nil
}

// Completions returns completion items at a position.
func (r *Runtime) Completions(ctx context.Context, relPath string, pos lspDomain.Position) ([]lspDomain.CompletionItem, error) {
	sess, err := r.sessionForPath(ctx, relPath)
	if err != nil {
		return nil, err
	}
	var items []lspDomain.CompletionItem
	err = r.instrument(ctx, sess.Language(), "completions", func(ctx context.Context) error {
		var opErr error
		items, opErr = sess.Completions(ctx, relPath, pos)
		return opErr
	})
	return items, err
}

// WorkspaceSymbols searches symbols across one language's workspace.
func (r *Runtime) WorkspaceSymbols(ctx context.Context, language, query string) ([]*lspDomain.Symbol, error) {
	sess, err := r.SessionFor(ctx, language)
	if err != nil {
		return nil, err
	}
	var syms []*lspDomain.Symbol
	err = r.instrument(ctx, language, "workspaceSymbols", func(ctx context.Context) error {
		var opErr error
		syms, opErr = sess.WorkspaceSymbols(ctx, query)
		return opErr
	})
	return syms, err
}

// IncomingCalls returns callers of the symbol at a position, degrading to a
// reference scan for languages without call hierarchy support.
func (r *Runtime) IncomingCalls(ctx context.Context, relPath string, pos lspDomain.Position) ([]lspDomain.Location, error) {
	sess, err := r.sessionForPath(ctx, relPath)
	if err != nil {
		return nil, err
	}
	var locs []lspDomain.Location
	err = r.instrument(ctx, sess.Language(), "incomingCalls", func(ctx context.Context) error {
		var opErr error
		locs, opErr = sess.IncomingCalls(ctx, relPath, pos)
		return opErr
	})
	return locs, err
}

// Diagnostics returns cached diagnostics for a file, or for the whole
// workspace when relPath is empty.
func (r *Runtime) Diagnostics(ctx context.Context, relPath string) ([]lspDomain.Diagnostic, error) {
	if relPath == "" {
		r.mu.RLock()
		defer r.mu.RUnlock()
		var all []lspDomain.Diagnostic
		for _, sess := range r.sessions {
			all = append(all, sess.Diagnostics("")...)
		}
		return all, nil
	}

	sess, err := r.sessionForPath(ctx, relPath)
	if err != nil {
		return nil, err
	}
	return sess.Diagnostics(relPath), nil
}

// --- Instrumentation and response cache plumbing ---

// instrument wraps one operation with a span, counters, and latency.
func (r *Runtime) instrument(ctx context.Context, language, method string, op func(context.Context) error) error {
	ctx, span := otelAdapter.StartRequestSpan(ctx, language, method)
	defer span.End()

	start := time.Now()
	err := op(ctx)
	if r.metrics != nil {
		r.metrics.RecordRequest(ctx, language, method, time.Since(start))
		if err != nil {
			r.metrics.RecordError(ctx, language, method)
		}
	}
	return err
}

func (r *Runtime) hoverKey(language, relPath string, pos lspDomain.Position) string {
	mtime := int64(0)
	if t, err := r.provider.Mtime(relPath); err == nil {
		mtime = t.UnixNano()
	}
	return fmt.Sprintf("%s|%d|%d|%d", r.responseKey("hover", language, relPath), pos.Line, pos.Character, mtime)
}

func (r *Runtime) responseKey(method, language, relPath string) string {
	return fmt.Sprintf("%s|%s|%s", method, language, relPath)
}

func (r *Runtime) cachedResponse(ctx context.Context, key string) ([]byte, bool) {
	if r.responses == nil {
		return nil, false
	}
	data, ok, err := r.responses.Get(ctx, key)
	if err != nil || !ok {
		if r.metrics != nil {
			r.metrics.CacheMisses.Add(ctx, 1)
		}
		return nil, false
	}
	if r.metrics != nil {
		r.metrics.CacheHits.Add(ctx, 1)
	}
	return data, true
}

func (r *Runtime) storeResponse(ctx context.Context, key string, value any) {
	if r.responses == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := r.responses.Set(ctx, key, data, r.cfg.Cache.ResponseTTL); err != nil {
		r.logger.Debug("response cache set failed", "error", err)
	}
}
