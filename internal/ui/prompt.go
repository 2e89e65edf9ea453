package ui

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

// ErrAborted is returned by Read when the user presses Ctrl-C at the prompt.
var ErrAborted = liner.ErrPromptAborted

// LineReader reads prompt input with line editing and a persistent
// history file.
type LineReader struct {
	line        *liner.State
	historyPath string
}

// NewLineReader returns a reader whose history is loaded from and saved to
// historyPath. An empty path disables persistence.
func NewLineReader(historyPath string) *LineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	r := &LineReader{line: line, historyPath: historyPath}
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	return r
}

// Read prompts for one line. It returns io.EOF on Ctrl-D and ErrAborted on
// Ctrl-C. The prompt must not contain escape sequences.
func (r *LineReader) Read(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", ErrAborted
		}
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close writes the history file (mode 0600) and restores the terminal.
func (r *LineReader) Close() error {
	defer r.line.Close()
	if r.historyPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.historyPath), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(r.historyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = r.line.WriteHistory(f)
	return err
}
