// Package session implements the per-server lifecycle: readiness detection
// after startup, the symbol and reference engines, caching, and the public
// operation surface. One Session serves one (language, project root) pair.
package session

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/CodeSense/internal/cache"
	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
	"github.com/Strob0t/CodeSense/internal/project"
	"github.com/Strob0t/CodeSense/internal/ratelimit"
	"github.com/Strob0t/CodeSense/internal/workerpool"
)

// Backend is the raw request surface the session drives. The production
// implementation is the adapter's Client; tests substitute fakes.
type Backend interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, initOpts map[string]any) error
	Stop(ctx context.Context) error
	Exited() <-chan struct{}
	PID() int
	SetProgressCallback(fn func())

	RawDocumentSymbols(ctx context.Context, uri string) ([]*lspDomain.Symbol, error)
	WorkspaceSymbols(ctx context.Context, query string) ([]*lspDomain.Symbol, error)
	Definition(ctx context.Context, uri string, pos lspDomain.Position) ([]lspDomain.Location, error)
	References(ctx context.Context, uri string, pos lspDomain.Position) ([]lspDomain.Location, error)
	Hover(ctx context.Context, uri string, pos lspDomain.Position) (*lspDomain.HoverResult, error)
	Completions(ctx context.Context, uri string, pos lspDomain.Position) ([]lspDomain.CompletionItem, error)
	IncomingCalls(ctx context.Context, uri string, pos lspDomain.Position) ([]lspDomain.Location, error)

	OpenFile(uri, languageID, content string) error
	CloseFile(uri string) error
	Diagnostics(uri string) []lspDomain.Diagnostic
	DiagnosticCount() int
}

// Options are the session's tuning knobs, mapped from configuration.
type Options struct {
	RequestTimeout time.Duration // per public operation, default 15s
	QuietPeriod    time.Duration // $/progress silence treated as ready, default 1s
	FallbackDelay  time.Duration // readiness fallback timer, default 5s
	ReadyCeiling   time.Duration // absolute readiness bound before Degraded, default 30s
	ProbeInterval  time.Duration // delay between readiness probes, default 250ms

	SymbolCacheSize int           // entries, default 2048
	SymbolCacheTTL  time.Duration // default 5m

	RateLimit float64 // requests per second, default 20
	RateBurst float64 // default 2x rate

	// OnReady, when set, observes the session reaching Ready with the
	// winning readiness signal. Called off the session lock.
	OnReady func(language string, reason lspDomain.ReadyReason)
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
	if o.QuietPeriod <= 0 {
		o.QuietPeriod = time.Second
	}
	if o.FallbackDelay <= 0 {
		o.FallbackDelay = 5 * time.Second
	}
	if o.ReadyCeiling <= 0 {
		o.ReadyCeiling = 30 * time.Second
	}
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = 250 * time.Millisecond
	}
	if o.SymbolCacheSize <= 0 {
		o.SymbolCacheSize = 2048
	}
	if o.SymbolCacheTTL <= 0 {
		o.SymbolCacheTTL = 5 * time.Minute
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 20
	}
	return o
}

// Session owns one language server and answers code intelligence queries for
// one project root. Public operations never block forever: they either
// return a typed error or a well-typed empty result.
type Session struct {
	ID       string
	language string
	cfg      lspDomain.ServerConfig
	opts     Options
	logger   *slog.Logger

	backend  Backend
	provider project.FileProvider
	limiter  *ratelimit.Limiter
	pool     *workerpool.Pool
	symbols  *cache.SymbolCache

	mu          sync.Mutex
	state       lspDomain.ServerState
	readyReason lspDomain.ReadyReason
	lastErr     error
	ready       chan struct{} // closed when Ready or Degraded
	opened      map[string]bool

	readiness *readinessEngine
	stopOnce  sync.Once
}

// New assembles a session. The worker pool is shared, owned by the runtime;
// everything else is per-session.
func New(id, language string, cfg lspDomain.ServerConfig, backend Backend, provider project.FileProvider, pool *workerpool.Pool, opts Options, logger *slog.Logger) *Session {
	opts = opts.withDefaults()
	s := &Session{
		ID:       id,
		language: language,
		cfg:      cfg,
		opts:     opts,
		logger:   logger.With("language", language, "session", id),
		backend:  backend,
		provider: provider,
		limiter:  ratelimit.New(opts.RateLimit, opts.RateBurst),
		pool:     pool,
		symbols:  cache.NewSymbolCache(opts.SymbolCacheSize, opts.SymbolCacheTTL, provider.Mtime),
		state:    lspDomain.StateStopped,
		ready:    make(chan struct{}),
		opened:   make(map[string]bool),
	}
	s.readiness = newReadinessEngine(s)
	return s
}

// Language returns the session's language.
func (s *Session) Language() string { return s.language }

// Start launches the server, runs the initialize handshake, and kicks off
// readiness detection in the background. It returns once the server is
// initializing; callers needing full readiness use WaitReady.
func (s *Session) Start(ctx context.Context) error {
	s.setState(lspDomain.StateStarting, "")

	if err := s.backend.Start(ctx); err != nil {
		s.fail(err)
		return err
	}
	s.setState(lspDomain.StateInitializing, "")

	if err := s.backend.Initialize(ctx, s.cfg.InitOpts); err != nil {
		s.fail(err)
		_ = s.backend.Stop(ctx)
		return err
	}

	go s.supervise()
	go s.readiness.run(context.Background())
	return nil
}

// WaitReady blocks until the session is Ready or Degraded, or ctx ends.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return lspDomain.WrapError(lspDomain.KindTimeout, ctx.Err(), "waiting for %s server readiness", s.language)
	}
}

// Stop shuts the server down gracefully. Idempotent.
func (s *Session) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.setState(lspDomain.StateShuttingDown, "")
		s.readiness.cancel()
		err = s.backend.Stop(ctx)
		s.setState(lspDomain.StateStopped, "")
	})
	return err
}

// State returns the current lifecycle state.
func (s *Session) State() lspDomain.ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ReadyReason returns which signal made the session Ready, or "".
func (s *Session) ReadyReason() lspDomain.ReadyReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyReason
}

// Info snapshots the session for status surfaces.
func (s *Session) Info() lspDomain.ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := lspDomain.ServerInfo{
		ID:          s.ID,
		Language:    s.language,
		State:       s.state,
		ReadyReason: s.readyReason,
		Command:     strings.Join(s.cfg.Command, " "),
		PID:         s.backend.PID(),
		Diagnostics: s.backend.DiagnosticCount(),
	}
	if s.lastErr != nil {
		info.Error = s.lastErr.Error()
	}
	return info
}

// InvalidateFile drops cached symbols for a file; callers invoke it after
// edits.
func (s *Session) InvalidateFile(relPath string) {
	s.symbols.InvalidateFile(relPath)
}

// Diagnostics returns the server's cached diagnostics for a file, or all
// files when relPath is empty.
func (s *Session) Diagnostics(relPath string) []lspDomain.Diagnostic {
	if relPath == "" {
		return s.backend.Diagnostics("")
	}
	return s.backend.Diagnostics(s.uriFor(relPath))
}

// --- Public operations ---

// Hover returns hover contents at a position.
func (s *Session) Hover(ctx context.Context, relPath string, pos lspDomain.Position) (*lspDomain.HoverResult, error) {
	var out *lspDomain.HoverResult
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.backend.Hover(ctx, s.uriFor(relPath), pos)
		return err
	}, relPath)
	return out, err
}

// Completions returns completion items at a position.
func (s *Session) Completions(ctx context.Context, relPath string, pos lspDomain.Position) ([]lspDomain.CompletionItem, error) {
	var out []lspDomain.CompletionItem
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.backend.Completions(ctx, s.uriFor(relPath), pos)
		return err
	}, relPath)
	if out == nil {
		out = []lspDomain.CompletionItem{}
	}
	return out, err
}

// WorkspaceSymbols searches symbols across the workspace.
func (s *Session) WorkspaceSymbols(ctx context.Context, query string) ([]*lspDomain.Symbol, error) {
	var out []*lspDomain.Symbol
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.backend.WorkspaceSymbols(ctx, query)
		return err
	}, "")
	if out == nil {
		out = []*lspDomain.Symbol{}
	}
	return out, err
}

// --- Internals shared by the engines ---

// do runs one rate-limited backend operation after readiness, retrying a
// timed-out request exactly once after re-awaiting readiness.
func (s *Session) do(ctx context.Context, op func(context.Context) error, relPath string) error {
	if err := s.prepare(ctx, relPath); err != nil {
		return err
	}
	err := s.invoke(ctx, op)
	if err == nil || !lspDomain.IsTimeout(err) {
		return err
	}

	// One bounded retry: the timeout may just mean the server was still
	// indexing; wait for readiness once more and re-issue.
	s.logger.Debug("retrying after timeout")
	if werr := s.WaitReady(ctx); werr != nil {
		return err
	}
	return s.invoke(ctx, op)
}

func (s *Session) invoke(ctx context.Context, op func(context.Context) error) error {
	if err := s.limiter.Acquire(ctx, 1, s.opts.RequestTimeout); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	return op(opCtx)
}

// prepare waits for readiness and ensures the file is open on the server.
func (s *Session) prepare(ctx context.Context, relPath string) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.ReadyCeiling)
	defer cancel()
	if err := s.WaitReady(waitCtx); err != nil {
		return err
	}
	if state := s.State(); state == lspDomain.StateStopped || state == lspDomain.StateShuttingDown {
		return lspDomain.NewError(lspDomain.KindTransport, "%s server is stopped", s.language)
	}
	if relPath != "" {
		return s.ensureOpen(relPath)
	}
	return nil
}

// ensureOpen sends didOpen once per file so the server has its contents.
func (s *Session) ensureOpen(relPath string) error {
	s.mu.Lock()
	already := s.opened[relPath]
	s.mu.Unlock()
	if already {
		return nil
	}

	content, err := s.provider.ReadFile(relPath)
	if err != nil {
		return lspDomain.WrapError(lspDomain.KindUnsupported, err, "read %s", relPath)
	}
	if err := s.backend.OpenFile(s.uriFor(relPath), s.language, string(content)); err != nil {
		return err
	}
	s.mu.Lock()
	s.opened[relPath] = true
	s.mu.Unlock()
	return nil
}

// supervise watches for process death and moves the session to a terminal
// state. A crash is never answered with a silent respawn.
func (s *Session) supervise() {
	<-s.backend.Exited()

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == lspDomain.StateShuttingDown || state == lspDomain.StateStopped {
		return
	}

	if state == lspDomain.StateReady || state == lspDomain.StateDegraded {
		s.logger.Error("server process died, session degraded")
		s.setState(lspDomain.StateDegraded, "")
	} else {
		s.logger.Error("server process died before becoming ready")
		s.setState(lspDomain.StateStopped, "")
	}
	s.readiness.cancel()
}

func (s *Session) setState(state lspDomain.ServerState, reason lspDomain.ReadyReason) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	if reason != "" {
		s.readyReason = reason
	}
	ready := s.ready
	s.mu.Unlock()

	if prev != state {
		s.logger.Info("state changed", "from", prev, "to", state, "reason", reason)
		if state == lspDomain.StateReady && reason != "" && s.opts.OnReady != nil {
			s.opts.OnReady(s.language, reason)
		}
	}
	// Terminal states also unblock waiters; prepare re-checks the state so
	// stopped sessions answer with a typed error instead of hanging.
	switch state {
	case lspDomain.StateReady, lspDomain.StateDegraded, lspDomain.StateStopped:
		select {
		case <-ready:
		default:
			close(ready)
		}
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.setState(lspDomain.StateStopped, "")
}

func (s *Session) uriFor(relPath string) string {
	root := strings.TrimSuffix(s.provider.Root(), "/")
	return "file://" + root + "/" + path.Clean(relPath)
}

func (s *Session) relFor(uri string) string {
	p := strings.TrimPrefix(uri, "file://")
	root := strings.TrimSuffix(s.provider.Root(), "/") + "/"
	return strings.TrimPrefix(p, root)
}
