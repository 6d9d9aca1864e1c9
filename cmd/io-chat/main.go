// Package main is the io-chat console client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/minhyannv/io-chat-go/pkg/chat"
	configpkg "github.com/minhyannv/io-chat-go/pkg/config"
	loggerpkg "github.com/minhyannv/io-chat-go/pkg/logger"
	"github.com/minhyannv/io-chat-go/pkg/repl"
	"github.com/minhyannv/io-chat-go/pkg/transcript"
)

const markdownWrap = 100

// main is the program entry point.
func main() {
	_ = godotenv.Load()

	opts, err := parseCLIConfig(os.Args[1:], os.Getenv, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, opts, os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the client and blocks until the session ends.
func run(ctx context.Context, opts cliOptions, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg := opts.Config

	level, err := loggerpkg.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		level = loggerpkg.LevelDebug
	}
	appLogger := loggerpkg.NewLeveledLogger(stderr, level)
	if cfg.NoColor {
		color.NoColor = true
	}

	var store *transcript.Store
	if cfg.HistoryDB != "" {
		store, err = transcript.Open(ctx, cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
	}

	if opts.ListSessions {
		if store == nil {
			return errors.New("-list_sessions requires -history_db")
		}
		return listSessions(ctx, store, opts.ListLimit, stdout)
	}

	if err := configpkg.Validate(cfg); err != nil {
		return err
	}

	client := chat.New(cfg, chat.WithLogger(appLogger))

	replOpts := repl.Options{
		Verbose: cfg.Verbose,
		NoColor: cfg.NoColor,
		Logger:  appLogger,
	}
	if store != nil {
		replOpts.Archive = store
	}
	if cfg.Markdown {
		renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(markdownWrap))
		if err != nil {
			loggerpkg.Warn(appLogger, "markdown renderer unavailable", map[string]any{"error": err.Error()})
		} else {
			replOpts.Renderer = renderer
		}
	}

	in, closeInput := newLineReader(cfg, stdin, stdout)
	defer closeInput()

	dispatcher, err := repl.New(client, in, stdout, replOpts)
	if err != nil {
		return err
	}
	return dispatcher.Run(ctx)
}

// newLineReader uses liner on a real terminal and a plain scanner otherwise.
func newLineReader(cfg configpkg.Config, stdin io.Reader, stdout io.Writer) (repl.LineReader, func()) {
	if f, ok := stdin.(*os.File); ok && f == os.Stdin && repl.TerminalSupported() {
		r := repl.NewLinerReader(cfg.HistoryFile)
		return r, func() { _ = r.Close() }
	}
	return repl.NewScannerReader(stdin, stdout), func() {}
}

func listSessions(ctx context.Context, store *transcript.Store, limit int, out io.Writer) error {
	sessions, err := store.ListSessions(ctx, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		_, _ = fmt.Fprintln(out, "No archived sessions.")
		return nil
	}
	for _, s := range sessions {
		_, _ = fmt.Fprintf(out, "%s  %s  messages=%d tokens=%d  %q\n",
			s.ID, s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.Messages, s.TokenCount, s.SystemPrompt)
	}
	return nil
}
