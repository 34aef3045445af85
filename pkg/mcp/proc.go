// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jcanyelles/weft/pkg/errors"
	"github.com/jcanyelles/weft/pkg/workflow"
)

const maxLineBytes = 16 * 1024 * 1024

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// serverProc owns one tool-server child process and its line-delimited
// JSON-RPC session. Three pumps run for the process lifetime: a stdout
// decoder, a stdin writer, and a stderr drain.
type serverProc struct {
	category string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	grace    time.Duration
	logger   *slog.Logger

	outgoing   chan []byte
	closed     chan struct{} // signals pumps to stop accepting work
	stdoutDone chan struct{} // stdout pump observed EOF or error
	pumps      sync.WaitGroup
	closeOnce  sync.Once

	nextID    atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]chan rpcResponse
}

// startProc spawns the child process and its pumps. It does not perform the
// session handshake; the manager drives that.
func startProc(category string, spec workflow.ToolServerSpec, grace time.Duration, logger *slog.Logger) (*serverProc, error) {
	if spec.Command == "" {
		return nil, errors.New(errors.CodeInvalidInput, "tool server command is empty", nil).
			WithContext("category", category)
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.New(errors.CodeTransport, "tool server failed to start", err).
			WithContext("category", category).
			WithContext("command", spec.Command)
	}

	p := &serverProc{
		category:   category,
		cmd:        cmd,
		stdin:      stdin,
		grace:      grace,
		logger:     logger,
		outgoing:   make(chan []byte, 16),
		closed:     make(chan struct{}),
		stdoutDone: make(chan struct{}),
		pending:    make(map[int64]chan rpcResponse),
	}

	p.pumps.Add(3)
	go p.stdoutPump(stdout)
	go p.stdinPump()
	go p.stderrPump(stderr)
	return p, nil
}

// stdoutPump decodes newline-delimited JSON-RPC messages and delivers
// responses to their callers. Malformed lines are dropped with a diagnostic;
// they never stop the reader.
func (p *serverProc) stdoutPump(stdout io.Reader) {
	defer p.pumps.Done()
	defer close(p.stdoutDone)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			p.logger.Warn("dropping malformed json-rpc line",
				"category", p.category, "err", err)
			continue
		}
		if resp.ID == nil {
			// Server-initiated notification; nothing correlates to it.
			continue
		}
		p.deliver(*resp.ID, resp)
	}
	if err := scanner.Err(); err != nil {
		p.logger.Debug("stdout pump stopped", "category", p.category, "err", err)
	}
	p.failPending(errors.New(errors.CodeTransport, "tool server session ended", nil).
		WithContext("category", p.category))
}

// stdinPump serializes outgoing session messages onto the child's stdin.
func (p *serverProc) stdinPump() {
	defer p.pumps.Done()
	for {
		select {
		case line := <-p.outgoing:
			if _, err := p.stdin.Write(append(line, '\n')); err != nil {
				p.logger.Warn("stdin write failed", "category", p.category, "err", err)
				p.failPending(errors.New(errors.CodeTransport, "tool server stdin closed", err).
					WithContext("category", p.category))
				return
			}
		case <-p.closed:
			return
		}
	}
}

// stderrPump drains child stderr for diagnostics only.
func (p *serverProc) stderrPump(stderr io.Reader) {
	defer p.pumps.Done()
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if text := scanner.Text(); text != "" {
			p.logger.Debug("tool server stderr", "category", p.category, "line", text)
		}
	}
}

func (p *serverProc) deliver(id int64, resp rpcResponse) {
	p.pendingMu.Lock()
	ch, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.pendingMu.Unlock()
	if !ok {
		p.logger.Debug("response without pending call", "category", p.category, "id", id)
		return
	}
	ch <- resp
}

func (p *serverProc) failPending(err error) {
	p.pendingMu.Lock()
	pending := p.pending
	p.pending = make(map[int64]chan rpcResponse)
	p.pendingMu.Unlock()
	for _, ch := range pending {
		ch <- rpcResponse{Error: &rpcError{Code: -32000, Message: err.Error()}}
	}
}

// call sends a request and blocks until its response, ctx expiry, or session
// close.
func (p *serverProc) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := p.nextID.Add(1)
	ch := make(chan rpcResponse, 1)

	p.pendingMu.Lock()
	p.pending[id] = ch
	p.pendingMu.Unlock()
	unregister := func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}

	line, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		unregister()
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	select {
	case p.outgoing <- line:
	case <-p.closed:
		unregister()
		return nil, errors.New(errors.CodeTransport, "tool server session closed", nil).
			WithContext("category", p.category)
	case <-ctx.Done():
		unregister()
		return nil, ctx.Err()
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, errors.New(errors.CodeToolFailure, resp.Error.Message, nil).
				WithContext("category", p.category).
				WithContext("method", method)
		}
		return resp.Result, nil
	case <-ctx.Done():
		unregister()
		return nil, ctx.Err()
	}
}

// notify sends a one-way notification.
func (p *serverProc) notify(ctx context.Context, method string, params any) error {
	line, err := json.Marshal(rpcNotification{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s notification: %w", method, err)
	}
	select {
	case p.outgoing <- line:
		return nil
	case <-p.closed:
		return errors.New(errors.CodeTransport, "tool server session closed", nil)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close tears the process down: stdin close signals the child, SIGTERM asks
// politely, and after the grace period the child is killed. It returns only
// once all three pumps have observed cancellation.
func (p *serverProc) close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		_ = p.stdin.Close()

		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(syscall.SIGTERM)
		}

		select {
		case <-p.stdoutDone:
		case <-time.After(p.grace):
			p.logger.Warn("tool server ignored termination, killing",
				"category", p.category, "grace", p.grace)
			if p.cmd.Process != nil {
				_ = p.cmd.Process.Kill()
			}
			<-p.stdoutDone
		}

		_ = p.cmd.Wait()
		p.pumps.Wait()
		p.failPending(errors.New(errors.CodeTransport, "tool server shut down", nil).
			WithContext("category", p.category))
	})
}
