package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
)

// LineReader reads one line of input after showing prompt.
// It returns io.EOF when the input has ended.
type LineReader interface {
	ReadLine(prompt string) (string, error)
}

const maxLineBytes = 1 << 20

// ScannerReader reads lines from any io.Reader.
type ScannerReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewScannerReader reads from in and writes prompts to out.
func NewScannerReader(in io.Reader, out io.Writer) *ScannerReader {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	if out == nil {
		out = io.Discard
	}
	return &ScannerReader{scanner: scanner, out: out}
}

// ReadLine implements LineReader.
func (r *ScannerReader) ReadLine(prompt string) (string, error) {
	_, _ = fmt.Fprint(r.out, prompt)
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

// LinerReader provides line editing and input history on a terminal.
type LinerReader struct {
	state       *liner.State
	historyFile string
}

// NewLinerReader opens the terminal. historyFile may be empty to disable persistence.
func NewLinerReader(historyFile string) *LinerReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)

	r := &LinerReader{state: state, historyFile: historyFile}
	if historyFile != "" {
		if f, err := os.Open(historyFile); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}
	}
	return r
}

// ReadLine implements LineReader. Ctrl-C at the prompt is reported as io.EOF.
func (r *LinerReader) ReadLine(prompt string) (string, error) {
	line, err := r.state.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", io.EOF
		}
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		r.state.AppendHistory(line)
	}
	return line, nil
}

// Close writes the history file (0600) and restores the terminal.
func (r *LinerReader) Close() error {
	if r.historyFile != "" {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = r.state.WriteHistory(f)
			_ = f.Close()
		}
	}
	return r.state.Close()
}

// TerminalSupported reports whether LinerReader can drive the current terminal.
func TerminalSupported() bool {
	return liner.TerminalSupported()
}
