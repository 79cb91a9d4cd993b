package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/ggoodman/mcp-context-go/auth"
	"github.com/ggoodman/mcp-context-go/internal/logctx"
	"github.com/ggoodman/mcp-context-go/mcpserver"
)

// DefaultMaxLineBytes bounds a single input message.
const DefaultMaxLineBytes = 4 << 20

// ErrLineTooLong is returned by Serve when the peer sends a message larger
// than the configured limit.
var ErrLineTooLong = errors.New("stdio: message exceeds line limit")

// Handler is a single-connection stdio transport. By default it reads
// os.Stdin, writes os.Stdout and identifies the peer as the current OS user.
type Handler struct {
	disp         *mcpserver.Dispatcher
	r            io.Reader
	w            io.Writer
	l            *slog.Logger
	userProvider UserProvider
	principal    auth.UserInfo
	maxLine      int

	writeMu   sync.Mutex
	sessionID string
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(d *mcpserver.Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		disp:         d,
		r:            os.Stdin,
		w:            os.Stdout,
		l:            slog.Default(),
		userProvider: OSUserProvider{},
		maxLine:      DefaultMaxLineBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve runs the read loop until EOF on the reader or ctx is canceled. EOF is
// a clean shutdown and returns nil. The session opened over the stream is
// closed on return. Serve may be called at most once.
func (h *Handler) Serve(ctx context.Context) error {
	principal, err := h.resolvePrincipal()
	if err != nil {
		return fmt.Errorf("stdio: resolve user: %w", err)
	}
	ctx = logctx.WithRequestData(ctx, &logctx.RequestData{
		RequestID: uuid.NewString(),
		Transport: "stdio",
	})
	h.l.InfoContext(ctx, "stdio.serve.start", slog.String("user_id", principal.UserID()))

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go h.readLoop(ctx, lines, readErr)

	defer func() {
		if h.sessionID != "" {
			h.disp.CloseSession(h.sessionID)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.l.InfoContext(ctx, "stdio.serve.stop", slog.String("reason", "context"))
			return ctx.Err()
		case err := <-readErr:
			if err == nil {
				h.l.InfoContext(ctx, "stdio.serve.stop", slog.String("reason", "eof"))
				return nil
			}
			h.l.ErrorContext(ctx, "stdio.serve.fail", slog.String("err", err.Error()))
			return err
		case line := <-lines:
			if err := h.handleLine(ctx, line, principal); err != nil {
				h.l.ErrorContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
				return err
			}
		}
	}
}

// readLoop delivers one trimmed, non-blank line at a time. It sends nil on
// readErr at EOF.
func (h *Handler) readLoop(ctx context.Context, lines chan<- []byte, readErr chan<- error) {
	br := bufio.NewReaderSize(h.r, 64*1024)
	for {
		line, err := readLine(br, h.maxLine)
		if len(line) > 0 {
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			readErr <- err
			return
		}
	}
}

func readLine(br *bufio.Reader, max int) ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		buf = append(buf, chunk...)
		if len(buf) > max {
			return nil, ErrLineTooLong
		}
		if err != nil {
			return bytes.TrimSpace(buf), err
		}
		if !isPrefix {
			return bytes.TrimSpace(buf), nil
		}
	}
}

func (h *Handler) handleLine(ctx context.Context, line []byte, principal auth.UserInfo) error {
	res := h.disp.Handle(ctx, line, h.sessionID, principal)
	if res.SessionID != "" && res.SessionID != h.sessionID {
		if h.sessionID != "" {
			// A second initialize replaces the stream's session.
			h.disp.CloseSession(h.sessionID)
		}
		h.sessionID = res.SessionID
	}
	if len(res.Body) == 0 {
		return nil
	}
	return h.writeLine(res.Body)
}

func (h *Handler) writeLine(b []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	out := make([]byte, 0, len(b)+1)
	out = append(out, bytes.TrimRight(b, "\n")...)
	out = append(out, '\n')
	_, err := h.w.Write(out)
	return err
}

func (h *Handler) resolvePrincipal() (auth.UserInfo, error) {
	if h.principal != nil {
		return h.principal, nil
	}
	id, err := h.userProvider.CurrentUserID()
	if err != nil {
		return nil, err
	}
	return auth.NewUser(id, nil), nil
}
