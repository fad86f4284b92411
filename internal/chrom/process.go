package chrom

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"lipidquant/internal/lipid"
	"lipidquant/internal/logging"
	"lipidquant/internal/procgroup"
	"lipidquant/internal/services"
)

const (
	maxResponseBytes = 64 << 20
	closeGrace       = 5 * time.Second
)

// ProcessOpener starts one analyzer process per slot.
type ProcessOpener struct {
	Binary string
	Logger *slog.Logger
}

// NewProcessOpener returns an opener for the analyzer binary.
func NewProcessOpener(binary string, logger *slog.Logger) (*ProcessOpener, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "analyzer", "open", "analyzer binary required", nil)
	}
	return &ProcessOpener{Binary: binary, Logger: logger}, nil
}

// Open starts the analyzer bound to chromPath. The process outlives ctx only
// until Close; cancelling ctx terminates it.
func (o *ProcessOpener) Open(ctx context.Context, chromPath string, slot int) (SearchContext, error) {
	logger := logging.NewComponentLogger(o.Logger, "analyzer").With(logging.Int(logging.FieldSlot, slot))

	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(procCtx, o.Binary, "serve", "--chrom", chromPath, "--slot", strconv.Itoa(slot)) //nolint:gosec
	procgroup.Configure(cmd, closeGrace)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, services.Wrap(services.ErrExternalTool, "analyzer", "start", o.Binary, err)
	}

	pc := &processContext{
		cmd:       cmd,
		cancel:    cancel,
		stop:      procCtx.Done(),
		stdin:     stdin,
		responses: make(chan wireResponse),
		readDone:  make(chan struct{}),
		errDone:   make(chan struct{}),
		logger:    logger,
	}
	go pc.readResponses(stdout)
	go pc.forwardStderr(stderr)

	logger.Debug("analyzer started",
		logging.String("chrom", chromPath),
		logging.Int("pid", cmd.Process.Pid),
	)
	return pc, nil
}

type processContext struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stop   <-chan struct{}
	stdin  io.WriteCloser
	logger *slog.Logger

	responses chan wireResponse
	readDone  chan struct{}
	readErr   error
	errDone   chan struct{}

	mu      sync.Mutex
	nextID  uint64
	broken  error
	closed  bool
	waitErr error
}

func (p *processContext) readResponses(r io.Reader) {
	defer close(p.readDone)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxResponseBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var resp wireResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			p.readErr = fmt.Errorf("decode response: %w", err)
			return
		}
		select {
		case p.responses <- resp:
		case <-p.stop:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		p.readErr = fmt.Errorf("read response: %w", err)
		return
	}
	p.readErr = io.ErrUnexpectedEOF
}

func (p *processContext) forwardStderr(r io.Reader) {
	defer close(p.errDone)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			p.logger.Debug("analyzer stderr", logging.String("line", line))
		}
	}
}

// Search sends one request and waits for its response. A cancelled ctx
// terminates the process because the protocol cannot abandon a request.
func (p *processContext) Search(ctx context.Context, q Query) ([]lipid.Hit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("analyzer closed")
	}
	if p.broken != nil {
		return nil, p.broken
	}

	p.nextID++
	id := p.nextID
	payload, err := json.Marshal(encodeRequest(id, q))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := p.stdin.Write(payload); err != nil {
		p.broken = services.Wrap(services.ErrExternalTool, "analyzer", "write request", "", err)
		return nil, p.broken
	}

	select {
	case <-ctx.Done():
		p.broken = fmt.Errorf("analyzer abandoned: %w", ctx.Err())
		p.cancel()
		return nil, ctx.Err()
	case <-p.readDone:
		p.broken = services.Wrap(services.ErrExternalTool, "analyzer", "read response", "analyzer exited", p.readErr)
		return nil, p.broken
	case resp := <-p.responses:
		if resp.ID != id {
			p.broken = services.Wrap(services.ErrExternalTool, "analyzer", "read response",
				fmt.Sprintf("response id %d does not match request %d", resp.ID, id), nil)
			return nil, p.broken
		}
		if msg := strings.TrimSpace(resp.Error); msg != "" {
			return nil, services.Wrap(services.ErrExternalTool, "analyzer", "search", msg, nil)
		}
		return decodeHits(resp.Hits), nil
	}
}

// Close ends the process by closing its stdin and waits for it to exit,
// terminating the group if it does not. Both pipe readers finish before
// Wait, which closes the pipes.
func (p *processContext) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return p.waitErr
	}
	p.closed = true
	_ = p.stdin.Close()

	grace := time.NewTimer(closeGrace)
	defer grace.Stop()
	for _, done := range []<-chan struct{}{p.readDone, p.errDone} {
		select {
		case <-done:
		case <-grace.C:
			p.cancel()
			<-done
		}
	}

	waited := make(chan error, 1)
	go func() { waited <- p.cmd.Wait() }()
	select {
	case err := <-waited:
		p.waitErr = err
	case <-time.After(closeGrace):
		p.cancel()
		p.waitErr = <-waited
	}
	p.cancel()
	if p.broken != nil {
		// The process was terminated on purpose; its exit status is noise.
		p.waitErr = nil
	}
	if p.waitErr != nil {
		logging.WarnWithContext(p.logger, "analyzer exited with error", "analyzer_exit",
			logging.Error(p.waitErr),
			logging.String(logging.FieldErrorHint, "check analyzer stderr in debug logs"),
			logging.String(logging.FieldImpact, "search results of this slot were already collected"),
		)
	}
	return p.waitErr
}
