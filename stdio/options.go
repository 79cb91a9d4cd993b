package stdio

import (
	"io"
	"log/slog"

	"github.com/ggoodman/mcp-context-go/auth"
)

// Option customizes a Handler.
type Option func(*Handler)

// WithIO sets the reader and writer for the handler.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}

// WithUserProvider overrides how the peer's user ID is resolved.
func WithUserProvider(up UserProvider) Option {
	return func(h *Handler) {
		if up != nil {
			h.userProvider = up
		}
	}
}

// WithPrincipal binds a fixed principal, bypassing the UserProvider. Claims
// such as the organization can only be supplied this way.
func WithPrincipal(p auth.UserInfo) Option {
	return func(h *Handler) {
		h.principal = p
	}
}

// WithMaxLineBytes bounds a single input message. Non-positive values are
// ignored.
func WithMaxLineBytes(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxLine = n
		}
	}
}
