package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
)

// readinessEngine decides when a freshly initialized server can answer
// cross-file queries. Three signals race: a lightweight probe (empty
// workspace/symbol query) succeeding, the $/progress stream going quiet for
// QuietPeriod, and a fallback timer. The first one wins; when several have
// fired by the time the loop evaluates, the deterministic precedence is
// probe over quiet over fallback. If nothing fires within ReadyCeiling the
// session continues Degraded rather than blocking callers.
type readinessEngine struct {
	s *Session

	lastProgress atomic.Int64 // unix nanos of last $/progress
	sawProgress  atomic.Bool

	cancelOnce sync.Once
	cancelCh   chan struct{}
}

func newReadinessEngine(s *Session) *readinessEngine {
	e := &readinessEngine{s: s, cancelCh: make(chan struct{})}
	s.backend.SetProgressCallback(func() {
		e.sawProgress.Store(true)
		e.lastProgress.Store(time.Now().UnixNano())
	})
	return e
}

func (e *readinessEngine) cancel() {
	e.cancelOnce.Do(func() { close(e.cancelCh) })
}

func (e *readinessEngine) run(ctx context.Context) {
	s := e.s
	s.setState(lspDomain.StateProbingReadiness, "")

	start := time.Now()
	e.lastProgress.Store(start.UnixNano())

	ctx, cancelProbe := context.WithCancel(ctx)
	defer cancelProbe()

	probeCh := make(chan struct{}, 1)
	go e.probeLoop(ctx, probeCh)

	fallback := time.NewTimer(s.opts.FallbackDelay)
	defer fallback.Stop()
	ceiling := time.NewTimer(s.opts.ReadyCeiling)
	defer ceiling.Stop()
	tick := time.NewTicker(s.opts.QuietPeriod / 4)
	defer tick.Stop()

	fallbackFired := false
	for {
		// Evaluate in precedence order first so coinciding signals resolve
		// deterministically regardless of select's random choice.
		select {
		case <-probeCh:
			s.setState(lspDomain.StateReady, lspDomain.ReadyProbeSuccess)
			return
		default:
		}
		if e.quietElapsed() {
			s.setState(lspDomain.StateReady, lspDomain.ReadyProgressEmpty)
			return
		}
		if fallbackFired {
			s.setState(lspDomain.StateReady, lspDomain.ReadyFallback)
			return
		}

		select {
		case <-probeCh:
			s.setState(lspDomain.StateReady, lspDomain.ReadyProbeSuccess)
			return
		case <-tick.C:
		case <-fallback.C:
			fallbackFired = true
		case <-ceiling.C:
			s.logger.Warn("no readiness signal within ceiling, continuing degraded")
			s.setState(lspDomain.StateDegraded, "")
			return
		case <-e.cancelCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// quietElapsed reports whether the progress stream has been silent for the
// quiet period. Servers that never emit progress qualify once the period
// has passed since probing began.
func (e *readinessEngine) quietElapsed() bool {
	last := time.Unix(0, e.lastProgress.Load())
	return time.Since(last) >= e.s.opts.QuietPeriod
}

// probeLoop issues empty workspace/symbol queries until one succeeds. Probe
// failures are expected while the server indexes; they are retried at the
// probe interval, never surfaced.
func (e *readinessEngine) probeLoop(ctx context.Context, probeCh chan<- struct{}) {
	for {
		probeCtx, cancel := context.WithTimeout(ctx, e.s.opts.RequestTimeout)
		_, err := e.s.backend.WorkspaceSymbols(probeCtx, "")
		cancel()
		if err == nil {
			select {
			case probeCh <- struct{}{}:
			default:
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-e.cancelCh:
			return
		case <-time.After(e.s.opts.ProbeInterval):
		}
	}
}
