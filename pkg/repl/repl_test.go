package repl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/minhyannv/io-chat-go/pkg/chat"
	"github.com/minhyannv/io-chat-go/pkg/conversation"
)

type fakeGateway struct {
	replies   []chat.Reply
	errs      []error
	usage     string
	usageErr  error
	histories []conversation.History
}

func (g *fakeGateway) SendChat(_ context.Context, history conversation.History) (chat.Reply, error) {
	i := len(g.histories)
	g.histories = append(g.histories, history)
	if i < len(g.errs) && g.errs[i] != nil {
		return chat.Reply{}, g.errs[i]
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return chat.Reply{Content: "ok"}, nil
}

func (g *fakeGateway) FetchUsage(context.Context) (string, error) {
	return g.usage, g.usageErr
}

type fakeArchive struct {
	saved []conversation.Session
	err   error
}

func (a *fakeArchive) SaveSession(_ context.Context, s conversation.Session) error {
	a.saved = append(a.saved, s)
	return a.err
}

type upperRenderer struct{}

func (upperRenderer) Render(markdown string) (string, error) {
	return strings.ToUpper(markdown) + "\n", nil
}

func newTestDispatcher(t *testing.T, gw Gateway, input string, opts Options) (*Dispatcher, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts.NoColor = true
	opts.Quiet = true
	d, err := New(gw, NewScannerReader(strings.NewReader(input), &out), &out, opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return d, &out
}

func TestNewRequiresGatewayAndInput(t *testing.T) {
	if _, err := New(nil, NewScannerReader(strings.NewReader(""), nil), nil, Options{}); err == nil {
		t.Fatal("expected error for nil gateway")
	}
	if _, err := New(&fakeGateway{}, nil, nil, Options{}); err == nil {
		t.Fatal("expected error for nil input")
	}
}

func TestNewThenTokenPrintsZero(t *testing.T) {
	d, out := newTestDispatcher(t, &fakeGateway{}, "new\ntoken\nexit\n", Options{})

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !strings.Contains(out.String(), "New session started.") {
		t.Fatalf("expected reset notice, got %q", out.String())
	}
	if !strings.Contains(out.String(), "Tokens: 0\n") {
		t.Fatalf("expected token count 0, got %q", out.String())
	}
}

func TestChatTurnFoldsTokens(t *testing.T) {
	gw := &fakeGateway{replies: []chat.Reply{{Content: "hello there", TotalTokens: 15}}}
	d, out := newTestDispatcher(t, gw, "hi\ntoken\nexit\n", Options{})

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !strings.Contains(out.String(), "hello there\n") {
		t.Fatalf("expected reply in output, got %q", out.String())
	}
	if !strings.Contains(out.String(), "Tokens: 15\n") {
		t.Fatalf("expected token count 15, got %q", out.String())
	}

	h := d.Session().History
	if len(h) != 3 {
		t.Fatalf("expected system, user and assistant messages, got %+v", h)
	}
	if h[1] != (conversation.Message{Role: conversation.RoleUser, Content: "hi"}) {
		t.Fatalf("unexpected user message %+v", h[1])
	}
	if h[2] != (conversation.Message{Role: conversation.RoleAssistant, Content: "hello there"}) {
		t.Fatalf("unexpected assistant message %+v", h[2])
	}

	sent := gw.histories[0]
	if len(sent) != 2 || sent[0].Role != conversation.RoleSystem || sent[1].Content != "hi" {
		t.Fatalf("unexpected history sent: %+v", sent)
	}
}

func TestFailedTurnLeavesSessionUntouched(t *testing.T) {
	gw := &fakeGateway{
		replies: []chat.Reply{{Content: "first", TotalTokens: 4}},
		errs:    []error{nil, &chat.Error{Kind: chat.KindHTTPStatus, StatusCode: http.StatusTooManyRequests}},
	}
	d, out := newTestDispatcher(t, gw, "", Options{})

	ctx := context.Background()
	if _, err := d.Handle(ctx, "one"); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	before := d.Session()

	if _, err := d.Handle(ctx, "two"); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	after := d.Session()

	if len(after.History) != len(before.History) || after.TokenCount != before.TokenCount {
		t.Fatalf("failed turn changed the session: before=%+v after=%+v", before, after)
	}
	if !strings.Contains(out.String(), "Error: http status 429") {
		t.Fatalf("expected error report, got %q", out.String())
	}
}

func TestContextCommandReplacesSession(t *testing.T) {
	gw := &fakeGateway{replies: []chat.Reply{{Content: "a", TotalTokens: 9}}}
	d, out := newTestDispatcher(t, gw, "hello\ncontext\nYou are a pirate.\ntoken\nexit\n", Options{})
	first := d.Session().ID

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	s := d.Session()
	if s.ID == first {
		t.Fatal("expected a new session")
	}
	if len(s.History) != 1 || s.History[0].Role != conversation.RoleSystem || s.History[0].Content != "You are a pirate." {
		t.Fatalf("unexpected history after context: %+v", s.History)
	}
	if s.TokenCount != 0 {
		t.Fatalf("expected token count reset, got %d", s.TokenCount)
	}
	if !strings.Contains(out.String(), ContextPrompt) || !strings.Contains(out.String(), "Tokens: 0\n") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestContextCommandRejectsEmptyPrompt(t *testing.T) {
	d, out := newTestDispatcher(t, &fakeGateway{}, "context\n   \nexit\n", Options{SystemPrompt: "keep me"})
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if d.Session().History.SystemPrompt() != "keep me" {
		t.Fatalf("expected session to be kept, got %+v", d.Session().History)
	}
	if !strings.Contains(out.String(), "Context unchanged") {
		t.Fatalf("expected notice, got %q", out.String())
	}
}

func TestNewUsesDefaultPrompt(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeGateway{}, "", Options{})
	if d.Session().History.SystemPrompt() != conversation.DefaultSystemPrompt {
		t.Fatalf("unexpected system prompt %q", d.Session().History.SystemPrompt())
	}
}

func TestUsageCommand(t *testing.T) {
	gw := &fakeGateway{usage: "$ 12.345"}
	d, out := newTestDispatcher(t, gw, "usage\nexit\n", Options{})
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !strings.Contains(out.String(), "$ 12.345\n") {
		t.Fatalf("expected usage amount, got %q", out.String())
	}
	if len(d.Session().History) != 1 || len(gw.histories) != 0 {
		t.Fatal("usage must not touch history")
	}

	gw = &fakeGateway{usageErr: errors.New("boom")}
	d, out = newTestDispatcher(t, gw, "usage\nexit\n", Options{})
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !strings.Contains(out.String(), "Error: boom") {
		t.Fatalf("expected usage error, got %q", out.String())
	}
}

func TestCommandsAreCaseSensitive(t *testing.T) {
	gw := &fakeGateway{}
	d, _ := newTestDispatcher(t, gw, "", Options{})
	quit, err := d.Handle(context.Background(), "EXIT")
	if err != nil || quit {
		t.Fatalf("expected EXIT to be a chat turn, got quit=%v err=%v", quit, err)
	}
	if len(gw.histories) != 1 || gw.histories[0][1].Content != "EXIT" {
		t.Fatalf("expected EXIT to be sent as chat, got %+v", gw.histories)
	}
}

func TestEmptyLinesAreIgnored(t *testing.T) {
	gw := &fakeGateway{}
	d, _ := newTestDispatcher(t, gw, "\n   \nexit\n", Options{})
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(gw.histories) != 0 {
		t.Fatalf("expected no requests, got %d", len(gw.histories))
	}
}

func TestRunStopsAtEOF(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeGateway{}, "token\n", Options{})
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("expected clean stop at EOF, got %v", err)
	}
}

type failingReader struct{}

func (failingReader) ReadLine(string) (string, error) { return "", errors.New("tty gone") }

func TestRunReportsReadErrors(t *testing.T) {
	d, err := New(&fakeGateway{}, failingReader{}, io.Discard, Options{Quiet: true})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := d.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "tty gone") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestRunStopsWhenContextDone(t *testing.T) {
	gw := &fakeGateway{}
	d, _ := newTestDispatcher(t, gw, "hello\n", Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(gw.histories) != 0 {
		t.Fatal("expected no request after cancellation")
	}
}

func TestArchiveAndRenderer(t *testing.T) {
	gw := &fakeGateway{replies: []chat.Reply{{Content: "**bold**", TotalTokens: 3}}}
	archive := &fakeArchive{err: errors.New("disk full")}
	d, out := newTestDispatcher(t, gw, "", Options{Archive: archive, Renderer: upperRenderer{}})

	if _, err := d.Handle(context.Background(), "hi"); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if len(archive.saved) != 1 || len(archive.saved[0].History) != 3 || archive.saved[0].TokenCount != 3 {
		t.Fatalf("unexpected archived sessions: %+v", archive.saved)
	}
	if !strings.Contains(out.String(), "**BOLD**\n") {
		t.Fatalf("expected rendered reply, got %q", out.String())
	}
	if d.Session().TokenCount != 3 {
		t.Fatal("archive failure must not undo the turn")
	}
}

func TestWelcomeBanner(t *testing.T) {
	var out bytes.Buffer
	d, err := New(&fakeGateway{}, NewScannerReader(strings.NewReader("exit\n"), &out), &out, Options{NoColor: true})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !strings.Contains(out.String(), "=== Io Chat ===") || !strings.Contains(out.String(), Prompt) {
		t.Fatalf("unexpected output %q", out.String())
	}
}
