package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ggoodman/mcp-context-go/auth"
	"github.com/ggoodman/mcp-context-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-context-go/internal/logctx"
	"github.com/ggoodman/mcp-context-go/mcp"
	"github.com/ggoodman/mcp-context-go/sessions"
)

// Default server identity reported by initialize.
const (
	DefaultServerName    = "AccountManager7"
	DefaultServerVersion = "7.0.0"
)

// Protocol error messages.
const (
	msgMissingSession = "Missing or invalid Mcp-Session-Id"
	msgNotInitialized = "Session not yet initialized"
)

// Result is what a transport sends back for one inbound message.
type Result struct {
	// Status is http.StatusOK for every JSON-RPC response and
	// http.StatusNoContent when there is nothing to send.
	Status int
	// Body is the serialized JSON-RPC response, or nil with StatusNoContent.
	Body []byte
	// SessionID is the session token to hand back to the client. It is set
	// on successful responses only.
	SessionID string
}

// Dispatcher routes MCP messages for every session it owns. It is safe for
// concurrent use; each call to Handle is independent.
type Dispatcher struct {
	resources ResourceProvider
	tools     ToolProvider
	sessions  *sessions.Table

	log         *slog.Logger
	metrics     *Metrics
	now         func() time.Time
	idleTimeout time.Duration
	serverInfo  mcp.ImplementationInfo
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithSessionTimeout overrides how long a session may sit idle before it is
// discarded. Non-positive values are ignored.
func WithSessionTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.idleTimeout = timeout
		}
	}
}

// WithServerInfo overrides the serverInfo returned by initialize.
func WithServerInfo(name, version string) Option {
	return func(d *Dispatcher) { d.serverInfo = mcp.ImplementationInfo{Name: name, Version: version} }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithMetrics records request counts, latencies and the session gauge.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New returns a Dispatcher over the given providers. A nil provider behaves
// as one with nothing to offer.
func New(resources ResourceProvider, tools ToolProvider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resources:   resources,
		tools:       tools,
		sessions:    sessions.NewTable(),
		log:         slog.Default(),
		now:         time.Now,
		idleTimeout: sessions.DefaultIdleTimeout,
		serverInfo:  mcp.ImplementationInfo{Name: DefaultServerName, Version: DefaultServerVersion},
	}
	if d.resources == nil {
		d.resources = emptyProvider{}
	}
	if d.tools == nil {
		d.tools = emptyProvider{}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Session returns the live session for id, or nil.
func (d *Dispatcher) Session(id string) *sessions.Session {
	return d.sessions.Get(id)
}

// ActiveSessions returns the number of sessions in the table, including
// idle ones that have not been purged yet.
func (d *Dispatcher) ActiveSessions() int {
	return d.sessions.Len()
}

// CloseSession removes a session. It reports whether it existed.
func (d *Dispatcher) CloseSession(id string) bool {
	ok := d.sessions.Delete(id)
	if ok {
		d.metrics.setActiveSessions(d.sessions.Len())
	}
	return ok
}

// rpcError is a protocol failure raised while routing.
type rpcError struct {
	code    jsonrpc.ErrorCode
	message string
}

func (e *rpcError) Error() string { return e.message }

func invalidParams(msg string) *rpcError {
	return &rpcError{code: jsonrpc.ErrorCodeInvalidParams, message: msg}
}

func internalError(msg string) *rpcError {
	return &rpcError{code: jsonrpc.ErrorCodeInternalError, message: "Internal error: " + msg}
}

// Handle processes one inbound message.
//
// sessionID is the token the client presented, or "". principal is bound to
// a session at initialize and ignored afterwards; it may be nil.
func (d *Dispatcher) Handle(ctx context.Context, body []byte, sessionID string, principal auth.UserInfo) Result {
	start := d.now()

	req, derr := jsonrpc.DecodeRequest(body)
	if derr != nil {
		method := ""
		if req != nil {
			method = req.Method
		}
		d.log.InfoContext(ctx, "dispatcher.handle.invalid",
			slog.String("method", method),
			slog.String("err", derr.Message),
			slog.Int64("dur_ms", d.since(start).Milliseconds()),
		)
		d.metrics.observe(method, derr.Code.String(), d.since(start))
		if req == nil {
			// Parse failures and undecodable ids have nothing to echo.
			return d.errorResult(nil, derr.Code, derr.Message)
		}
		if req.IsNotification() {
			return Result{Status: http.StatusNoContent}
		}
		return d.errorResult(req.ID, derr.Code, derr.Message)
	}

	msgType := "request"
	if req.IsNotification() {
		msgType = "notification"
	}
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: msgType})
	log := d.log.With(slog.String("method", req.Method))

	if req.Method == string(mcp.InitializeMethod) {
		return d.initialize(ctx, log, start, req, principal)
	}

	sess := d.lookup(sessionID, start)
	if sess == nil {
		return d.reject(ctx, log, start, req, jsonrpc.ErrorCodeInvalidRequest, msgMissingSession)
	}
	sess.Touch(start)
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.ID(),
		UserID:          sess.UserID(),
		ProtocolVersion: sess.ClientProtocolVersion(),
		Initialized:     sess.Initialized(),
	})

	if req.Method == string(mcp.InitializedNotificationMethod) {
		sess.MarkInitialized()
		log.InfoContext(ctx, "dispatcher.handle.ok", slog.Int64("dur_ms", d.since(start).Milliseconds()))
		d.metrics.observe(req.Method, outcomeNotification, d.since(start))
		return Result{Status: http.StatusNoContent}
	}

	if !sess.Initialized() && req.Method != string(mcp.PingMethod) {
		return d.reject(ctx, log, start, req, jsonrpc.ErrorCodeInvalidRequest, msgNotInitialized)
	}

	result, err := d.route(ctx, sess, req)
	if err != nil {
		var rerr *rpcError
		if !errors.As(err, &rerr) {
			rerr = internalError(err.Error())
		}
		if rerr.code == jsonrpc.ErrorCodeInternalError {
			log.ErrorContext(ctx, "dispatcher.handle.fail", slog.String("err", rerr.message), slog.Int64("dur_ms", d.since(start).Milliseconds()))
			d.metrics.observe(req.Method, rerr.code.String(), d.since(start))
			if req.IsNotification() {
				return Result{Status: http.StatusNoContent}
			}
			return d.errorResult(req.ID, rerr.code, rerr.message)
		}
		return d.reject(ctx, log, start, req, rerr.code, rerr.message)
	}

	outcome := outcomeOK
	if tr, ok := result.(*mcp.CallToolResult); ok && tr.IsError {
		outcome = outcomeToolError
	}
	if req.IsNotification() {
		outcome = outcomeNotification
	}
	log.InfoContext(ctx, "dispatcher.handle.ok", slog.Int64("dur_ms", d.since(start).Milliseconds()))
	d.metrics.observe(req.Method, outcome, d.since(start))

	if req.IsNotification() {
		return Result{Status: http.StatusNoContent}
	}
	return d.resultResult(ctx, log, req.ID, result, sess.ID())
}

func (d *Dispatcher) initialize(ctx context.Context, log *slog.Logger, start time.Time, req *jsonrpc.Request, principal auth.UserInfo) Result {
	var params mcp.InitializeRequest
	if len(req.Params) > 0 && string(req.Params) != "null" {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return d.reject(ctx, log, start, req, jsonrpc.ErrorCodeInvalidParams, "Invalid params: "+err.Error())
		}
	}

	if n := d.sessions.PurgeIdle(start, d.idleTimeout); n > 0 {
		log.InfoContext(ctx, "dispatcher.sessions.purged", slog.Int("count", n))
	}

	sess, err := d.sessions.Create(principal, params.ProtocolVersion, params.Capabilities, start)
	if err != nil {
		log.ErrorContext(ctx, "dispatcher.handle.fail", slog.String("err", err.Error()))
		d.metrics.observe(req.Method, jsonrpc.ErrorCodeInternalError.String(), d.since(start))
		return d.errorResult(req.ID, jsonrpc.ErrorCodeInternalError, "Internal error: "+err.Error())
	}
	d.metrics.setActiveSessions(d.sessions.Len())

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.ID(),
		UserID:          sess.UserID(),
		ProtocolVersion: params.ProtocolVersion,
	})
	log.InfoContext(ctx, "dispatcher.session.created",
		slog.String("client_name", params.ClientInfo.Name),
		slog.String("client_version", params.ClientInfo.Version),
	)

	res := mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Resources: &mcp.ResourcesCapability{},
			Tools:     &mcp.ToolsCapability{},
		},
		ServerInfo: d.serverInfo,
	}

	log.InfoContext(ctx, "dispatcher.handle.ok", slog.Int64("dur_ms", d.since(start).Milliseconds()))
	d.metrics.observe(req.Method, outcomeOK, d.since(start))
	return d.resultResult(ctx, log, req.ID, res, sess.ID())
}

// lookup resolves a presented token. A session idle past the timeout is
// discarded here as well, so expiry does not wait for the next initialize.
func (d *Dispatcher) lookup(id string, now time.Time) *sessions.Session {
	sess := d.sessions.Get(id)
	if sess == nil {
		return nil
	}
	if sess.IdleFor(now) > d.idleTimeout {
		d.sessions.Delete(id)
		d.metrics.setActiveSessions(d.sessions.Len())
		return nil
	}
	return sess
}

// route runs the method and recovers provider panics as internal errors.
func (d *Dispatcher) route(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = internalError(fmt.Sprint(r))
		}
	}()

	switch mcp.Method(req.Method) {
	case mcp.PingMethod:
		return mcp.EmptyResult{}, nil

	case mcp.ResourcesListMethod:
		var params mcp.ListResourcesRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		res, err := d.resources.ListResources(ctx, sess, params.Cursor)
		if err != nil {
			return nil, internalError(err.Error())
		}
		if res.Resources == nil {
			res.Resources = []mcp.Resource{}
		}
		return res, nil

	case mcp.ResourcesReadMethod:
		var params mcp.ReadResourceRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		if params.URI == "" {
			return nil, invalidParams("uri is required")
		}
		contents, err := d.resources.ReadResource(ctx, sess, params.URI)
		if err != nil {
			return nil, internalError(err.Error())
		}
		if contents == nil {
			contents = []mcp.ResourceContents{}
		}
		return mcp.ReadResourceResult{Contents: contents}, nil

	case mcp.ResourcesTemplatesListMethod:
		templates, err := d.resources.ListResourceTemplates(ctx, sess)
		if err != nil {
			return nil, internalError(err.Error())
		}
		if templates == nil {
			templates = []mcp.ResourceTemplate{}
		}
		return mcp.ListResourceTemplatesResult{ResourceTemplates: templates}, nil

	case mcp.ToolsListMethod:
		tools, err := d.tools.ListTools(ctx, sess)
		if err != nil {
			return nil, internalError(err.Error())
		}
		if tools == nil {
			tools = []mcp.Tool{}
		}
		return mcp.ListToolsResult{Tools: tools}, nil

	case mcp.ToolsCallMethod:
		var params mcp.CallToolRequestReceived
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		if params.Name == "" {
			return nil, invalidParams("name is required")
		}
		args := params.Arguments
		if len(args) == 0 || string(args) == "null" {
			args = json.RawMessage("{}")
		}
		ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})
		res, err := d.tools.CallTool(ctx, sess, params.Name, args)
		if err != nil {
			return nil, internalError(err.Error())
		}
		if res == nil {
			res = &mcp.CallToolResult{}
		}
		if res.Content == nil {
			res.Content = []mcp.ContentBlock{}
		}
		return res, nil
	}

	return nil, &rpcError{code: jsonrpc.ErrorCodeMethodNotFound, message: "Method not found: " + req.Method}
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidParams("Invalid params: " + err.Error())
	}
	return nil
}

// reject logs a protocol failure and builds its response. Notifications get
// no response.
func (d *Dispatcher) reject(ctx context.Context, log *slog.Logger, start time.Time, req *jsonrpc.Request, code jsonrpc.ErrorCode, msg string) Result {
	log.InfoContext(ctx, "dispatcher.handle.invalid", slog.String("err", msg), slog.Int64("dur_ms", d.since(start).Milliseconds()))
	d.metrics.observe(req.Method, code.String(), d.since(start))
	if req.IsNotification() {
		return Result{Status: http.StatusNoContent}
	}
	return d.errorResult(req.ID, code, msg)
}

func (d *Dispatcher) resultResult(ctx context.Context, log *slog.Logger, id *jsonrpc.RequestID, result any, sessionID string) Result {
	resp, err := jsonrpc.NewResultResponse(id, result)
	if err != nil {
		log.ErrorContext(ctx, "dispatcher.encode.fail", slog.String("err", err.Error()))
		return d.errorResult(id, jsonrpc.ErrorCodeInternalError, "Internal error: "+err.Error())
	}
	body, err := json.Marshal(resp)
	if err != nil {
		log.ErrorContext(ctx, "dispatcher.encode.fail", slog.String("err", err.Error()))
		return d.errorResult(id, jsonrpc.ErrorCodeInternalError, "Internal error: "+err.Error())
	}
	return Result{Status: http.StatusOK, Body: body, SessionID: sessionID}
}

func (d *Dispatcher) errorResult(id *jsonrpc.RequestID, code jsonrpc.ErrorCode, msg string) Result {
	body, err := json.Marshal(jsonrpc.NewErrorResponse(id, code, msg, nil))
	if err != nil {
		// Only id and a string can fail to encode here; fall back to a null id.
		body, _ = json.Marshal(jsonrpc.NewErrorResponse(nil, code, msg, nil))
	}
	return Result{Status: http.StatusOK, Body: body}
}

func (d *Dispatcher) since(start time.Time) time.Duration {
	return d.now().Sub(start)
}
