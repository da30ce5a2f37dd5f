package lsp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
)

// LaunchInfo describes how to start a language server process and connect
// to it.
type LaunchInfo struct {
	Command    []string
	WorkingDir string
	Env        map[string]string

	Transport      lspDomain.TransportKind // defaults to stdio
	TCPHost        string
	TCPPort        int
	ConnectTimeout time.Duration // tcp dial deadline, defaults to 10s
}

const defaultConnectTimeout = 10 * time.Second

// Transport owns a language server child process and its framed byte stream.
// It delivers raw message payloads to a callback and forwards classified
// stderr lines to the logger. Message semantics live in the Handler.
type Transport struct {
	info   LaunchInfo
	logger *slog.Logger

	cmd  *exec.Cmd
	rwc  io.ReadWriteCloser
	rd   *bufio.Reader
	wrMu sync.Mutex

	onPayload func([]byte)

	exited  chan struct{} // closed when the process exits
	exitErr error
	readers sync.WaitGroup
	stopped chan struct{}
	once    sync.Once
}

// NewTransport creates an unstarted transport. onPayload is invoked from the
// read goroutine for every framed payload; it must not block.
func NewTransport(info LaunchInfo, logger *slog.Logger, onPayload func([]byte)) *Transport {
	return &Transport{
		info:      info,
		logger:    logger,
		onPayload: onPayload,
		exited:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start spawns the process and, in tcp mode, dials the server socket. The
// read loops run until Stop or process death.
func (t *Transport) Start(ctx context.Context) error {
	if len(t.info.Command) == 0 {
		return lspDomain.NewError(lspDomain.KindTransport, "no command configured")
	}
	if _, err := exec.LookPath(t.info.Command[0]); err != nil {
		return lspDomain.WrapError(lspDomain.KindTransport, err, "server binary not found: %s", t.info.Command[0])
	}

	cmd := exec.CommandContext(ctx, t.info.Command[0], t.info.Command[1:]...) //nolint:gosec // command from trusted config
	cmd.Dir = t.info.WorkingDir
	cmd.Env = os.Environ()
	for k, v := range t.info.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return lspDomain.WrapError(lspDomain.KindTransport, err, "stderr pipe")
	}

	switch t.info.Transport {
	case lspDomain.TransportTCP:
		if err := t.startTCP(cmd, stderr); err != nil {
			return err
		}
	default:
		if err := t.startStdio(cmd, stderr); err != nil {
			return err
		}
	}

	t.readers.Add(2)
	go t.readLoop()
	go t.stderrLoop(stderr)
	go t.waitExit()
	return nil
}

func (t *Transport) startStdio(cmd *exec.Cmd, _ io.Reader) error {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return lspDomain.WrapError(lspDomain.KindTransport, err, "stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return lspDomain.WrapError(lspDomain.KindTransport, err, "stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return lspDomain.WrapError(lspDomain.KindTransport, err, "start process")
	}
	t.cmd = cmd
	t.rwc = stdioPipe{stdin: stdin, stdout: stdout}
	t.rd = bufio.NewReaderSize(t.rwc, 64*1024)
	return nil
}

// startTCP launches the child with its stdio discarded, then dials until the
// socket accepts or the deadline passes. A child that dies first is reported
// as such rather than as a generic refused connection.
func (t *Transport) startTCP(cmd *exec.Cmd, _ io.Reader) error {
	cmd.Stdin = nil
	cmd.Stdout = nil
	if err := cmd.Start(); err != nil {
		return lspDomain.WrapError(lspDomain.KindTransport, err, "start process")
	}
	t.cmd = cmd

	procExit := make(chan error, 1)
	go func() { procExit <- cmd.Wait() }()

	timeout := t.info.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	addr := net.JoinHostPort(t.info.TCPHost, fmt.Sprint(t.info.TCPPort))
	deadline := time.Now().Add(timeout)

	var dialErr error
	for time.Now().Before(deadline) {
		select {
		case err := <-procExit:
			return lspDomain.WrapError(lspDomain.KindTransport, err, "server exited before accepting connections on %s", addr)
		default:
		}
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			t.rwc = conn
			t.rd = bufio.NewReaderSize(conn, 64*1024)
			// Hand process reaping back to waitExit.
			go func() { t.exitErr = <-procExit; close(t.exited) }()
			return nil
		}
		dialErr = err
		time.Sleep(100 * time.Millisecond)
	}

	_ = cmd.Process.Kill()
	<-procExit
	return lspDomain.WrapError(lspDomain.KindTransport, dialErr, "connect to %s within %s", addr, timeout)
}

// Send writes one framed payload under the write lock.
func (t *Transport) Send(data []byte) error {
	t.wrMu.Lock()
	defer t.wrMu.Unlock()
	if t.rwc == nil {
		return lspDomain.NewError(lspDomain.KindTransport, "transport not started")
	}
	if err := writeFrame(t.rwc, data); err != nil {
		return lspDomain.WrapError(lspDomain.KindTransport, err, "send")
	}
	return nil
}

// PID returns the child process id, or 0 before Start.
func (t *Transport) PID() int {
	if t.cmd != nil && t.cmd.Process != nil {
		return t.cmd.Process.Pid
	}
	return 0
}

// Exited is closed when the child process has been reaped.
func (t *Transport) Exited() <-chan struct{} { return t.exited }

// Stop closes the stream, kills a still-running child after gracePeriod, and
// waits for the readers to drain. Idempotent.
func (t *Transport) Stop(gracePeriod time.Duration) {
	t.once.Do(func() {
		close(t.stopped)
		if t.rwc != nil {
			_ = t.rwc.Close()
		}
		if t.cmd != nil && t.cmd.Process != nil {
			select {
			case <-t.exited:
			case <-time.After(gracePeriod):
				t.logger.Warn("server did not exit, killing", "pid", t.cmd.Process.Pid)
				_ = t.cmd.Process.Kill()
				<-t.exited
			}
		}
		t.readers.Wait()
	})
}

func (t *Transport) waitExit() {
	if t.info.Transport == lspDomain.TransportTCP {
		// tcp mode reaps in startTCP's goroutine.
		return
	}
	t.exitErr = t.cmd.Wait()
	close(t.exited)
}

func (t *Transport) readLoop() {
	defer t.readers.Done()
	for {
		payload, err := readFrame(t.rd)
		if err != nil {
			select {
			case <-t.stopped:
			default:
				t.logger.Debug("read loop ended", "error", err)
			}
			return
		}
		t.onPayload(payload)
	}
}

// stderrLoop forwards server stderr to the logger. Lines are classified by
// pattern because many servers print benign progress text containing the
// word "error".
func (t *Transport) stderrLoop(r io.Reader) {
	defer t.readers.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		switch classifyStderrLine(line) {
		case slog.LevelError:
			t.logger.Error("server stderr", "line", line)
		case slog.LevelWarn:
			t.logger.Warn("server stderr", "line", line)
		default:
			t.logger.Debug("server stderr", "line", line)
		}
	}
}

// classifyStderrLine maps a stderr line to a log level. Only lines that carry
// an explicit severity marker are promoted above debug.
func classifyStderrLine(line string) slog.Level {
	upper := strings.ToUpper(line)
	switch {
	case strings.Contains(upper, "[ERROR]") || strings.HasPrefix(upper, "ERROR:") ||
		strings.Contains(upper, " ERROR:") || strings.Contains(upper, "FATAL"):
		return slog.LevelError
	case strings.Contains(upper, "[WARN") || strings.HasPrefix(upper, "WARNING:") ||
		strings.Contains(upper, " WARNING:"):
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}

// stdioPipe combines the child's stdin (writer) and stdout (reader) into one
// io.ReadWriteCloser.
type stdioPipe struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (p stdioPipe) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p stdioPipe) Write(b []byte) (int, error) { return p.stdin.Write(b) }
func (p stdioPipe) Close() error {
	_ = p.stdin.Close()
	return p.stdout.Close()
}
