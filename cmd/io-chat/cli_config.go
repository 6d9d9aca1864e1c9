package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	configpkg "github.com/minhyannv/io-chat-go/pkg/config"
)

// cliOptions is the parsed command line.
type cliOptions struct {
	Config       configpkg.Config
	ListSessions bool
	ListLimit    int
}

// parseCLIConfig layers defaults, the secret file, IO_* environment variables,
// flags and the optional positional api key, in that order of precedence.
func parseCLIConfig(args []string, getenv func(string) string, usageOut io.Writer) (cliOptions, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	defaults := configpkg.DefaultConfig()

	flags := flag.NewFlagSet("io-chat", flag.ContinueOnError)
	if usageOut != nil {
		flags.SetOutput(usageOut)
	}
	secretFile := flags.String("config", defaults.SecretFile, "Secret file (YAML or JSON) with api_key, model, url_chat and url_usage")
	verbose := flags.Bool("verbose", defaults.Verbose, "Verbose request logging")
	logLevel := flags.String("log_level", defaults.LogLevel, "Log level: debug, info, warn or error")
	timeout := flags.Duration("timeout", defaults.Timeout, "Per-request timeout (0 keeps the transport default)")
	markdown := flags.Bool("markdown", defaults.Markdown, "Render replies as markdown")
	noColor := flags.Bool("no_color", defaults.NoColor, "Disable colored output")
	historyDB := flags.String("history_db", defaults.HistoryDB, "SQLite file to archive sessions in (empty disables the archive)")
	historyFile := flags.String("history_file", defaults.HistoryFile, "File to keep input line history in (empty disables it)")
	listSessions := flags.Bool("list_sessions", false, "List archived sessions and exit")
	listLimit := flags.Int("list_limit", 20, "Number of sessions shown by -list_sessions")
	flags.Usage = func() {
		_, _ = fmt.Fprintln(flags.Output(), "Usage: io-chat [flags] [api_key]")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return cliOptions{}, err
	}
	if flags.NArg() > 1 {
		return cliOptions{}, fmt.Errorf("unexpected arguments: %s", strings.Join(flags.Args()[1:], " "))
	}

	explicitSecretFile := false
	flags.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicitSecretFile = true
		}
	})

	cfg := defaults
	cfg.SecretFile = strings.TrimSpace(*secretFile)
	cfg.Verbose = *verbose
	cfg.LogLevel = *logLevel
	cfg.Timeout = *timeout
	cfg.Markdown = *markdown
	cfg.NoColor = *noColor
	cfg.HistoryDB = *historyDB
	cfg.HistoryFile = *historyFile

	if cfg.SecretFile != "" {
		secrets, err := configpkg.LoadSecretFile(cfg.SecretFile)
		switch {
		case err == nil:
			cfg = configpkg.ApplySecrets(cfg, secrets)
		case errors.Is(err, os.ErrNotExist) && !explicitSecretFile:
			// The default file is optional; the environment may carry everything.
		default:
			return cliOptions{}, err
		}
	}
	cfg = configpkg.ApplyEnv(cfg, getenv)
	if flags.NArg() == 1 {
		cfg.APIKey = flags.Arg(0)
	}

	return cliOptions{
		Config:       configpkg.Normalize(cfg),
		ListSessions: *listSessions,
		ListLimit:    *listLimit,
	}, nil
}
