package tui

import (
	"io"
	"os"

	"golang.org/x/term"
)

// Bell rings the terminal bell.
const Bell = "\a"

// DefaultWidth is used when the output is not a terminal.
const DefaultWidth = 80

// Terminal describes where output goes and where answers come from.
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

// NewTerminal wraps stdin and the given writer.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{In: os.Stdin, Out: out}
}

// Interactive reports whether both ends are attached to a terminal, so a
// human can answer prompts.
func (t *Terminal) Interactive() bool {
	return isTerminal(t.In) && isTerminal(t.Out)
}

// Width returns the output's column count, or DefaultWidth when unknown.
func (t *Terminal) Width() int {
	f, ok := t.Out.(*os.File)
	if !ok {
		return DefaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return DefaultWidth
	}
	return width
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
