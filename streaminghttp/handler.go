package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/ggoodman/mcp-context-go/auth"
	"github.com/ggoodman/mcp-context-go/internal/logctx"
	"github.com/ggoodman/mcp-context-go/mcpserver"
)

var _ http.Handler = (*Handler)(nil)

// DefaultMaxBodyBytes bounds a POST body.
const DefaultMaxBodyBytes = 4 << 20

var (
	jsonMediaType  = contenttype.NewMediaType("application/json")
	jsonMediaTypes = []contenttype.MediaType{jsonMediaType}
)

const (
	mcpSessionIDHeader    = "Mcp-Session-Id"
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"
)

// writeJSONError emits a transport-level rejection. It is not a JSON-RPC
// envelope. Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges. It is
// omitted when empty.
func WithRealm(realm string) Option {
	return func(h *Handler) { h.realm = strings.TrimSpace(realm) }
}

// WithResourceMetadata advertises the protected resource metadata document
// at url in every bearer challenge.
func WithResourceMetadata(url string) Option {
	return func(h *Handler) { h.resourceMetadata = url }
}

// Handler is the HTTP front of a Dispatcher.
type Handler struct {
	disp    *mcpserver.Dispatcher
	auth    auth.Authenticator
	log     *slog.Logger
	maxBody int64
	realm   string

	resourceMetadata string
}

// New returns a Handler for d. A nil authenticator admits every request with
// no principal.
func New(d *mcpserver.Dispatcher, authenticator auth.Authenticator, opts ...Option) *Handler {
	h := &Handler{
		disp:    d,
		auth:    authenticator,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r = r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Transport:  "http",
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}))
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		h.log.WarnContext(ctx, "http.post.content_type.unsupported")
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}
	if _, _, err := contenttype.GetAcceptableMediaType(r, jsonMediaTypes); err != nil {
		h.log.WarnContext(ctx, "http.post.accept.unsupported")
		writeJSONError(w, http.StatusNotAcceptable, "client must accept application/json")
		return
	}

	userInfo, ok := h.checkAuthentication(ctx, r, w)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.log.WarnContext(ctx, "http.post.body.too_large", slog.Int64("limit", tooLarge.Limit))
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.log.WarnContext(ctx, "http.post.body.read_fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	res := h.disp.Handle(ctx, body, r.Header.Get(mcpSessionIDHeader), userInfo)
	if res.SessionID != "" {
		w.Header().Set(mcpSessionIDHeader, res.SessionID)
	}
	if res.Status == http.StatusNoContent || len(res.Body) == 0 {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.Header().Set("Content-Type", jsonMediaType.String())
		w.WriteHeader(res.Status)
		_, _ = w.Write(res.Body)
	}
	h.log.InfoContext(ctx, "http.post.ok", slog.Int("status", res.Status), slog.Duration("dur", time.Since(start)))
}

// handleDelete ends the session named by the Mcp-Session-Id header. Only the
// principal that opened a session may end it.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userInfo, ok := h.checkAuthentication(ctx, r, w)
	if !ok {
		return
	}

	id := r.Header.Get(mcpSessionIDHeader)
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "missing Mcp-Session-Id header")
		return
	}
	sess := h.disp.Session(id)
	if sess == nil || (userInfo != nil && sess.UserID() != userInfo.UserID()) {
		h.log.InfoContext(ctx, "http.delete.miss")
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	h.disp.CloseSession(id)
	h.log.InfoContext(ctx, "http.delete.ok")
	w.WriteHeader(http.StatusNoContent)
}

// checkAuthentication resolves the bearer token. On failure it has already
// written the response.
func (h *Handler) checkAuthentication(ctx context.Context, r *http.Request, w http.ResponseWriter) (auth.UserInfo, bool) {
	if h.auth == nil {
		return nil, true
	}
	authHeader := r.Header.Get(authorizationHeader)
	if authHeader == "" {
		h.log.InfoContext(ctx, "auth.check.missing")
		w.Header().Add(wwwAuthenticateHeader, h.challenge(nil))
		writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
		return nil, false
	}

	const bearerPrefix = "Bearer "
	if len(authHeader) <= len(bearerPrefix) || !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		h.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "malformed bearer authorization header"))
		w.Header().Add(wwwAuthenticateHeader, h.challenge(map[string]string{
			"error": "invalid_request", "error_description": "malformed bearer authorization header",
		}))
		writeJSONError(w, http.StatusUnauthorized, "malformed bearer authorization header")
		return nil, false
	}
	tok := strings.TrimSpace(authHeader[len(bearerPrefix):])

	userInfo, err := h.auth.CheckAuthentication(ctx, tok)
	switch {
	case err == nil:
		return userInfo, true
	case errors.Is(err, auth.ErrInsufficientScope):
		h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		w.Header().Add(wwwAuthenticateHeader, h.challenge(map[string]string{
			"error": "insufficient_scope", "error_description": err.Error(),
		}))
		writeJSONError(w, http.StatusForbidden, "insufficient scope")
	case errors.Is(err, auth.ErrUnauthorized):
		h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		w.Header().Add(wwwAuthenticateHeader, h.challenge(map[string]string{
			"error": "invalid_token", "error_description": err.Error(),
		}))
		writeJSONError(w, http.StatusUnauthorized, "invalid token")
	default:
		h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "authentication unavailable")
	}
	return nil, false
}

func (h *Handler) challenge(params map[string]string) string {
	if h.resourceMetadata != "" {
		merged := map[string]string{"resource_metadata": h.resourceMetadata}
		for k, v := range params {
			merged[k] = v
		}
		params = merged
	}
	return buildBearerChallenge(h.realm, params)
}

// buildBearerChallenge formats
//
//	Bearer realm="<realm>", error="...", error_description="..."
//
// omitting whatever is unset.
func buildBearerChallenge(realm string, params map[string]string) string {
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", " ", "\r", " ")
	var pieces []string
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc.Replace(realm)))
	}
	for _, k := range []string{"resource_metadata", "error", "error_description", "scope"} {
		if v, ok := params[k]; ok {
			pieces = append(pieces, fmt.Sprintf(`%s="%s"`, k, esc.Replace(v)))
		}
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}
