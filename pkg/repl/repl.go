// Package repl runs the interactive command loop of the chat client.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minhyannv/io-chat-go/pkg/chat"
	"github.com/minhyannv/io-chat-go/pkg/conversation"
	loggerpkg "github.com/minhyannv/io-chat-go/pkg/logger"
)

// Prompts shown before reading input.
const (
	Prompt        = "Io: "
	ContextPrompt = "Context: "
)

// Built-in commands. Matching is exact and case-sensitive.
const (
	cmdExit    = "exit"
	cmdNew     = "new"
	cmdContext = "context"
	cmdToken   = "token"
	cmdUsage   = "usage"
)

// Gateway sends chat turns and usage queries.
type Gateway interface {
	SendChat(ctx context.Context, history conversation.History) (chat.Reply, error)
	FetchUsage(ctx context.Context) (string, error)
}

// Archive persists a session after each successful turn.
type Archive interface {
	SaveSession(ctx context.Context, s conversation.Session) error
}

// Renderer turns a markdown reply into terminal output.
type Renderer interface {
	Render(markdown string) (string, error)
}

// Options configures a Dispatcher.
type Options struct {
	SystemPrompt string
	Verbose      bool
	NoColor      bool
	Quiet        bool
	Logger       loggerpkg.Logger
	Archive      Archive
	Renderer     Renderer
}

// Dispatcher owns the session and routes each input line to a command or a chat turn.
type Dispatcher struct {
	gateway      Gateway
	in           LineReader
	out          io.Writer
	session      conversation.Session
	systemPrompt string
	quiet        bool

	archive  Archive
	renderer Renderer
	logger   loggerpkg.Logger
	verbose  bool
	style    style
}

// New builds a Dispatcher with a fresh session.
func New(gateway Gateway, in LineReader, out io.Writer, opts Options) (*Dispatcher, error) {
	if gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if in == nil {
		return nil, errors.New("input reader is required")
	}
	if out == nil {
		out = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = loggerpkg.NopLogger{}
	}
	systemPrompt := opts.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = conversation.DefaultSystemPrompt
	}

	return &Dispatcher{
		gateway:      gateway,
		in:           in,
		out:          out,
		session:      conversation.StartSession(systemPrompt),
		systemPrompt: systemPrompt,
		quiet:        opts.Quiet,
		archive:      opts.Archive,
		renderer:     opts.Renderer,
		logger:       opts.Logger,
		verbose:      opts.Verbose,
		style:        newStyle(opts.NoColor),
	}, nil
}

// Session returns the current session.
func (d *Dispatcher) Session() conversation.Session {
	return d.session
}

// Run reads and handles lines until "exit", end of input, or ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !d.quiet {
		d.printWelcome()
	}
	loggerpkg.Debug(d.verbose, d.logger, "repl start", map[string]any{"session": d.session.ID})

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := d.in.ReadLine(Prompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				_, _ = fmt.Fprintln(d.out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		quit, err := d.Handle(ctx, line)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

// Handle processes one input line. It reports quit=true for "exit" or when
// input ends while a command still needed a line.
func (d *Dispatcher) Handle(ctx context.Context, line string) (bool, error) {
	input := strings.TrimSpace(line)
	if input == "" {
		return false, nil
	}

	switch input {
	case cmdExit:
		loggerpkg.Debug(d.verbose, d.logger, "exit requested", nil)
		return true, nil
	case cmdNew:
		d.reset(d.systemPrompt)
		d.style.notice.Fprintln(d.out, "New session started.")
		return false, nil
	case cmdContext:
		return d.changeContext()
	case cmdToken:
		d.style.info.Fprintf(d.out, "Tokens: %d\n", d.session.TokenCount)
		return false, nil
	case cmdUsage:
		d.showUsage(ctx)
		return false, nil
	default:
		d.chatTurn(ctx, input)
		return false, nil
	}
}

func (d *Dispatcher) changeContext() (bool, error) {
	line, err := d.in.ReadLine(ContextPrompt)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		return false, fmt.Errorf("read context: %w", err)
	}
	prompt := strings.TrimSpace(line)
	if prompt == "" {
		d.style.notice.Fprintln(d.out, "Context unchanged: empty system prompt.")
		return false, nil
	}
	d.reset(prompt)
	d.style.notice.Fprintln(d.out, "Context updated. New session started.")
	return false, nil
}

func (d *Dispatcher) reset(systemPrompt string) {
	previous := d.session.ID
	d.session = conversation.StartSession(systemPrompt)
	loggerpkg.Debug(d.verbose, d.logger, "session reset", map[string]any{
		"previous": previous,
		"session":  d.session.ID,
	})
}

func (d *Dispatcher) showUsage(ctx context.Context) {
	amount, err := d.gateway.FetchUsage(ctx)
	if err != nil {
		loggerpkg.Warn(d.logger, "usage request failed", map[string]any{"error": err.Error()})
		d.style.err.Fprintf(d.out, "Error: %v\n", err)
		return
	}
	d.style.info.Fprintln(d.out, amount)
}

// chatTurn sends the history plus the new user message. The session only
// changes when a reply arrives, so a failed turn leaves no trace in it.
func (d *Dispatcher) chatTurn(ctx context.Context, text string) {
	pending := d.session.Append(conversation.RoleUser, text)
	reply, err := d.gateway.SendChat(ctx, pending.History)
	if err != nil {
		loggerpkg.Warn(d.logger, "chat turn failed", map[string]any{
			"kind":  chat.KindOf(err).String(),
			"error": err.Error(),
		})
		d.style.err.Fprintf(d.out, "Error: %v\n", err)
		return
	}

	d.session = pending.Append(conversation.RoleAssistant, reply.Content).AddUsage(reply.TotalTokens)
	loggerpkg.Debug(d.verbose, d.logger, "chat turn done", map[string]any{
		"messages":     len(d.session.History),
		"total_tokens": d.session.TokenCount,
	})
	d.persist(ctx)
	d.printReply(reply.Content)
}

func (d *Dispatcher) persist(ctx context.Context) {
	if d.archive == nil {
		return
	}
	if err := d.archive.SaveSession(ctx, d.session); err != nil {
		loggerpkg.Warn(d.logger, "archive session failed", map[string]any{
			"session": d.session.ID,
			"error":   err.Error(),
		})
	}
}

func (d *Dispatcher) printReply(content string) {
	if d.renderer != nil {
		rendered, err := d.renderer.Render(content)
		if err == nil {
			_, _ = fmt.Fprint(d.out, rendered)
			if !strings.HasSuffix(rendered, "\n") {
				_, _ = fmt.Fprintln(d.out)
			}
			return
		}
		loggerpkg.Warn(d.logger, "render reply failed", map[string]any{"error": err.Error()})
	}
	d.style.reply.Fprintln(d.out, content)
}

func (d *Dispatcher) printWelcome() {
	_, _ = fmt.Fprintln(d.out, "=== Io Chat ===")
	_, _ = fmt.Fprintln(d.out, "Type your message and press Enter. Commands:")
	_, _ = fmt.Fprintln(d.out, "  new     - Start a new session")
	_, _ = fmt.Fprintln(d.out, "  context - Start a new session with your own system prompt")
	_, _ = fmt.Fprintln(d.out, "  token   - Show tokens used in this session")
	_, _ = fmt.Fprintln(d.out, "  usage   - Show billed usage of the last 30 days")
	_, _ = fmt.Fprintln(d.out, "  exit    - Exit the program")
	_, _ = fmt.Fprintln(d.out)
}
