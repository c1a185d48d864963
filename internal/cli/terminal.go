package cli

import (
	"os"
	"path/filepath"

	"github.com/peterh/liner"
)

// Terminal is a line editor with persistent history.
type Terminal struct {
	*liner.State
	historyFile string
}

// NewTerminal opens the line editor and loads history from the user config
// directory, falling back to the temp directory.
func NewTerminal() *Terminal {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	t := &Terminal{State: line, historyFile: filepath.Join(dir, "pdfchat", "history")}
	if f, err := os.Open(t.historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return t
}

// Close saves history and restores the terminal.
func (t *Terminal) Close() error {
	if err := os.MkdirAll(filepath.Dir(t.historyFile), 0o700); err == nil {
		if f, err := os.OpenFile(t.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = t.WriteHistory(f)
			f.Close()
		}
	}
	return t.State.Close()
}
