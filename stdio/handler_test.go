package stdio_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ggoodman/mcp-context-go/auth"
	"github.com/ggoodman/mcp-context-go/mcp"
	"github.com/ggoodman/mcp-context-go/mcpserver"
	"github.com/ggoodman/mcp-context-go/mcpservice"
	"github.com/ggoodman/mcp-context-go/sessions"
	"github.com/ggoodman/mcp-context-go/stdio"
)

const (
	initializeLine  = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`
	initializedLine = `{"jsonrpc":"2.0","method":"notifications/initialized"}`
	whoamiLine      = `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"whoami"}}`
)

type whoamiArgs struct{}

type wireResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newDispatcher(t *testing.T) *mcpserver.Dispatcher {
	t.Helper()
	whoami := mcpservice.NewTool("whoami", func(_ context.Context, s *sessions.Session, _ whoamiArgs) (*mcp.CallToolResult, error) {
		var claims struct {
			Org string `json:"org"`
		}
		if p := s.Principal(); p != nil {
			_ = p.Claims(&claims)
		}
		return mcpservice.TextResult(strings.TrimSuffix(s.UserID()+"@"+claims.Org, "@")), nil
	})
	return mcpserver.New(nil, mcpservice.NewToolSet(whoami), mcpserver.WithLogger(discard()))
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func serve(t *testing.T, d *mcpserver.Dispatcher, input string, opts ...stdio.Option) []wireResponse {
	t.Helper()
	var out bytes.Buffer
	opts = append([]stdio.Option{stdio.WithIO(strings.NewReader(input), &out), stdio.WithLogger(discard())}, opts...)
	if err := stdio.NewHandler(d, opts...).Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	var resps []wireResponse
	for _, line := range strings.Split(strings.TrimRight(out.String(), "\n"), "\n") {
		if line == "" {
			continue
		}
		var r wireResponse
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("output line is not JSON: %q", line)
		}
		resps = append(resps, r)
	}
	return resps
}

func toolText(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var res mcp.CallToolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode tool result: %v", err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("want 1 content block, got %d", len(res.Content))
	}
	return res.Content[0].Text
}

func TestServeLifecycle(t *testing.T) {
	d := newDispatcher(t)
	input := strings.Join([]string{initializeLine, "", initializedLine, whoamiLine}, "\n") + "\n"
	resps := serve(t, d, input, stdio.WithUserProvider(stdio.StaticUserProvider("carol")))

	if len(resps) != 2 {
		t.Fatalf("want 2 responses (notification is silent), got %d", len(resps))
	}
	if got := []string{string(resps[0].ID), string(resps[1].ID)}; !cmp.Equal(got, []string{"1", "2"}) {
		t.Fatalf("ids = %v", got)
	}
	if resps[1].Error != nil {
		t.Fatalf("tools/call failed: %+v", resps[1].Error)
	}
	if got := toolText(t, resps[1].Result); got != "carol" {
		t.Fatalf("whoami = %q", got)
	}
	if n := d.ActiveSessions(); n != 0 {
		t.Fatalf("session not closed at EOF, %d active", n)
	}
}

func TestServeWithPrincipal(t *testing.T) {
	d := newDispatcher(t)
	input := initializeLine + "\n" + initializedLine + "\n" + whoamiLine
	resps := serve(t, d, input, stdio.WithPrincipal(auth.NewUser("dave", map[string]any{"org": "acme"})))
	if len(resps) != 2 {
		t.Fatalf("want 2 responses, got %d", len(resps))
	}
	if got := toolText(t, resps[1].Result); got != "dave@acme" {
		t.Fatalf("whoami = %q", got)
	}
}

func TestServeBeforeInitialize(t *testing.T) {
	resps := serve(t, newDispatcher(t), whoamiLine+"\n")
	if len(resps) != 1 || resps[0].Error == nil {
		t.Fatalf("want one error response, got %+v", resps)
	}
	if resps[0].Error.Code != -32600 {
		t.Fatalf("code = %d", resps[0].Error.Code)
	}
}

func TestServeParseError(t *testing.T) {
	resps := serve(t, newDispatcher(t), "{nope\n")
	if len(resps) != 1 || resps[0].Error == nil || resps[0].Error.Code != -32700 {
		t.Fatalf("want parse error, got %+v", resps)
	}
	if string(resps[0].ID) != "null" {
		t.Fatalf("id = %s, want null", resps[0].ID)
	}
}

func TestServeLineTooLong(t *testing.T) {
	var out bytes.Buffer
	h := stdio.NewHandler(newDispatcher(t),
		stdio.WithIO(strings.NewReader(strings.Repeat("x", 128)+"\n"), &out),
		stdio.WithLogger(discard()),
		stdio.WithMaxLineBytes(64),
	)
	if err := h.Serve(context.Background()); !errors.Is(err, stdio.ErrLineTooLong) {
		t.Fatalf("err = %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestServeContextCancel(t *testing.T) {
	inR, inW := io.Pipe()
	t.Cleanup(func() { _ = inW.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	h := stdio.NewHandler(newDispatcher(t), stdio.WithIO(inR, io.Discard), stdio.WithLogger(discard()),
		stdio.WithUserProvider(stdio.StaticUserProvider("erin")))

	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
