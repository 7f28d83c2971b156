// ============================================================================
// ruvltra-core Transport - JSON-RPC 2.0 over stdio
// ============================================================================
//
// Package: internal/transport
// File: transport.go
// Function: Frames the process's stdin/stdout as a single bidirectional
// JSON-RPC 2.0 stream (spec §6 "Transport") and dispatches its two methods,
// tools/list and tools/call, into the Tool Mediator.
//
// Design origin:
//   github.com/sourcegraph/jsonrpc2's Conn/Handler pair plays the same role
//   here that the teacher's gRPC server (internal/server/server.go) plays
//   over its generated service interface: one Handle method, a request name
//   switch, domain calls delegated to the coordinator (there, *controller.
//   Controller; here, *mediator.Mediator). No pack example wires jsonrpc2
//   directly (it appears only in other_examples manifests), so the
//   plumbing below - stdio ReadWriteCloser, NewPlainObjectStream, a single
//   Handler - is written directly against the library's documented API.
//
// ============================================================================

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"

	toolmediator "github.com/ChuLiYu/ruvltra-core/internal/mediator"
	"github.com/ChuLiYu/ruvltra-core/pkg/types"
	"github.com/sourcegraph/jsonrpc2"
)

// mediator is the subset of *mediator.Mediator the transport calls. Narrow
// interface so tests can supply a fake without the full worker pool.
type mediator interface {
	Generate(ctx context.Context, toolName string, rawArgs json.RawMessage) (json.RawMessage, error)
	ParallelGenerate(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error)
	SwarmReview(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error)
	Status(ctx context.Context) (json.RawMessage, error)
	ScaleWorkers(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error)
	SonaStats(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error)
	CancelTask(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error)
}

// ToolDescriptor is one entry in the static tool catalog returned by
// tools/list.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// CallToolParams is the params shape for a tools/call request.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ContentBlock is one element of a CallToolResult's content array.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the content envelope every tools/call response carries,
// per spec §6 "tool invocation (name + arguments -> content envelope +
// optional structured payload + optional error flag)".
type CallToolResult struct {
	Content           []ContentBlock  `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

// Server dispatches tools/list and tools/call over a JSON-RPC 2.0 stream.
type Server struct {
	m mediator
}

// NewServer builds a Server delegating tool calls to m.
func NewServer(m mediator) *Server {
	return &Server{m: m}
}

// Handle implements jsonrpc2.Handler.
func (s *Server) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	switch req.Method {
	case "tools/list":
		s.handleList(ctx, conn, req)
	case "tools/call":
		s.handleCall(ctx, conn, req)
	default:
		s.replyError(ctx, conn, req, jsonrpc2.CodeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *Server) handleList(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if err := conn.Reply(ctx, req.ID, map[string]interface{}{"tools": Catalog()}); err != nil {
		slog.Error("transport: failed to reply to tools/list", "error", err)
	}
}

func (s *Server) handleCall(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if req.Params == nil {
		s.replyError(ctx, conn, req, jsonrpc2.CodeInvalidParams, "missing params")
		return
	}
	var params CallToolParams
	if err := json.Unmarshal(*req.Params, &params); err != nil {
		s.replyError(ctx, conn, req, jsonrpc2.CodeInvalidParams, "malformed params: "+err.Error())
		return
	}

	var (
		raw json.RawMessage
		err error
	)
	switch params.Name {
	case "ruvltra_parallel_generate":
		raw, err = s.m.ParallelGenerate(ctx, params.Arguments)
	case "ruvltra_swarm_review":
		raw, err = s.m.SwarmReview(ctx, params.Arguments)
	case "ruvltra_status":
		raw, err = s.m.Status(ctx)
	case "ruvltra_scale_workers":
		raw, err = s.m.ScaleWorkers(ctx, params.Arguments)
	case "ruvltra_sona_stats":
		raw, err = s.m.SonaStats(ctx, params.Arguments)
	case "ruvltra_cancel_task":
		raw, err = s.m.CancelTask(ctx, params.Arguments)
	default:
		raw, err = s.m.Generate(ctx, params.Name, params.Arguments)
	}

	if err != nil {
		var toolErr toolmediator.ToolError
		var argErr types.ErrInvalidArgument
		if errors.As(err, &toolErr) || errors.As(err, &argErr) {
			s.replyError(ctx, conn, req, jsonrpc2.CodeInvalidParams, err.Error())
			return
		}

		result := CallToolResult{IsError: true, Content: []ContentBlock{{Type: "text", Text: err.Error()}}}
		if replyErr := conn.Reply(ctx, req.ID, result); replyErr != nil {
			slog.Error("transport: failed to reply to tools/call", "tool", params.Name, "error", replyErr)
		}
		return
	}

	result := CallToolResult{StructuredContent: raw, Content: []ContentBlock{{Type: "text", Text: string(raw)}}}
	if replyErr := conn.Reply(ctx, req.ID, result); replyErr != nil {
		slog.Error("transport: failed to reply to tools/call", "tool", params.Name, "error", replyErr)
	}
}

func (s *Server) replyError(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, code int64, message string) {
	if err := conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{Code: code, Message: message}); err != nil {
		slog.Error("transport: failed to reply with error", "error", err)
	}
}

// stdio wraps os.Stdin/os.Stdout as a single io.ReadWriteCloser, per
// spec §6 "a single bidirectional message stream over standard input/
// output".
type stdio struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (s stdio) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s stdio) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s stdio) Close() error {
	inErr := s.in.Close()
	outErr := s.out.Close()
	if inErr != nil {
		return inErr
	}
	return outErr
}

// Serve runs the JSON-RPC server over stdin/stdout until the stream closes
// or ctx is done. Diagnostic logging is the caller's responsibility to
// redirect to stderr (spec §6 "logging discipline") before Serve is called,
// since standard output is reserved for the wire itself.
func Serve(ctx context.Context, m mediator) error {
	stream := jsonrpc2.NewPlainObjectStream(stdio{in: os.Stdin, out: os.Stdout})
	conn := jsonrpc2.NewConn(ctx, stream, NewServer(m))
	select {
	case <-conn.DisconnectNotify():
		return nil
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	}
}
