package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/storyweave/storyd/internal/tools"
)

// Gateway dispatches JSON-RPC requests to registered tools. It is
// transport-independent; the server package binds it to HTTP.
type Gateway struct {
	read    *tools.Registry
	write   *tools.Registry
	logger  *zap.Logger
	metrics *Metrics

	// trusted exposes usage guidelines and allowed phases in
	// tools/list.
	trusted bool
}

// Config configures the gateway.
type Config struct {
	// Read is the read tool set (list/get actions). Required.
	Read *tools.Registry

	// Write is the write tool set (create/update/delete actions).
	// Optional; a read-only gateway is valid.
	Write *tools.Registry

	// TrustedCaller exposes guidance fields in tools/list.
	TrustedCaller bool

	// Logger for structured logging. Nil means no-op.
	Logger *zap.Logger
}

// New creates a gateway over the given tool registries.
func New(cfg Config) (*Gateway, error) {
	if cfg.Read == nil {
		return nil, fmt.Errorf("read registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		read:    cfg.Read,
		write:   cfg.Write,
		trusted: cfg.TrustedCaller,
		logger:  logger,
		metrics: NewMetrics(logger),
	}, nil
}

// HandleRaw parses a raw request body and dispatches it. Bodies that
// are not valid JSON produce a ParseError with a null id; valid JSON
// that fails the envelope shape check produces InvalidRequest, echoing
// the id whenever it can still be recovered from the body.
func (g *Gateway) HandleRaw(ctx context.Context, body []byte) *Response {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return failure(recoverID(body), InvalidRequest, "malformed request envelope: "+err.Error(), nil)
		}
		// Not JSON at all; there is no id to echo.
		return failure(nil, ParseError, "invalid JSON: "+err.Error(), nil)
	}
	return g.Handle(ctx, &req)
}

// recoverID pulls the id out of a body whose envelope failed the shape
// check. A top-level non-object or an unusable id yields null.
func recoverID(body []byte) any {
	var partial struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(body, &partial); err != nil || !validID(partial.ID) {
		return nil
	}
	return partial.ID
}

// Handle dispatches one request and always returns a well-formed
// response, even on failure.
func (g *Gateway) Handle(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != "2.0" {
		return failure(req.ID, InvalidRequest, fmt.Sprintf("unsupported jsonrpc version %q", req.JSONRPC), nil)
	}
	if !validID(req.ID) {
		return failure(nil, InvalidRequest, "request id must be a string, number, or null", nil)
	}

	switch req.Method {
	case "tools/list":
		return g.handleList(req)
	case "tools/call":
		return g.handleCall(ctx, req)
	default:
		return failure(req.ID, MethodNotFound, fmt.Sprintf("unknown method: %s", req.Method), nil)
	}
}

// handleList returns summaries for every registered tool, read set
// first. No side effects.
func (g *Gateway) handleList(req *Request) *Response {
	result := ListResult{Tools: []any{}}
	for _, def := range g.read.List() {
		result.Tools = append(result.Tools, def.Summarize(g.trusted))
	}
	if g.write != nil {
		for _, def := range g.write.List() {
			result.Tools = append(result.Tools, def.Summarize(g.trusted))
		}
	}
	return success(req.ID, result)
}

// handleCall resolves, validates, and invokes one tool.
func (g *Gateway) handleCall(ctx context.Context, req *Request) *Response {
	var params CallParams
	if len(req.Params) == 0 {
		return failure(req.ID, InvalidParams, "params required for tools/call", nil)
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return failure(req.ID, InvalidParams, "malformed tools/call params: "+err.Error(), nil)
	}
	if params.Name == "" {
		return failure(req.ID, InvalidParams, "tool name is required", nil)
	}

	def, ok := g.resolve(params.Name)
	if !ok {
		return failure(req.ID, ToolNotFound, fmt.Sprintf("no tool registered under %q", params.Name), nil)
	}

	if violations := def.Validate(params.Arguments); violations != nil {
		g.metrics.RecordError(ctx, params.Name, "invalid_params")
		fields := make([]any, 0, len(violations))
		for _, v := range violations {
			fields = append(fields, map[string]any{"field": v.Field, "message": v.Message})
		}
		return failure(req.ID, InvalidParams,
			fmt.Sprintf("invalid arguments for %s", params.Name),
			map[string]any{"violations": fields})
	}

	done := g.metrics.RecordInvocation(ctx, params.Name)
	value, err := g.invoke(ctx, def, params.Arguments)
	done()
	if err != nil {
		g.metrics.RecordError(ctx, params.Name, "execution")
		g.logger.Warn("tool execution failed",
			zap.String("tool", params.Name),
			zap.Error(err))
		return failure(req.ID, ToolExecutionError, err.Error(),
			map[string]any{"tool": params.Name})
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return failure(req.ID, InternalError,
			fmt.Sprintf("tool %s returned an unserializable value: %v", params.Name, err), nil)
	}
	return success(req.ID, CallResult{
		Content: []ContentItem{{Type: "text", Text: string(encoded)}},
	})
}

// invoke runs the handler, converting panics into errors so no tool
// failure can escape the gateway boundary.
func (g *Gateway) invoke(ctx context.Context, def *tools.Definition, args json.RawMessage) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", def.Name, r)
		}
	}()
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return def.Handler(ctx, args)
}

// resolve looks the tool up in the read set first, then the write set.
func (g *Gateway) resolve(name string) (*tools.Definition, bool) {
	if def, ok := g.read.Get(name); ok {
		return def, true
	}
	if g.write != nil {
		if def, ok := g.write.Get(name); ok {
			return def, true
		}
	}
	return nil, false
}

// validID reports whether id is a legal JSON-RPC id (string, number,
// or null).
func validID(id any) bool {
	switch id.(type) {
	case nil, string, float64, int, int64, json.Number:
		return true
	default:
		return false
	}
}
