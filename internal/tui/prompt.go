package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/thruflo/gantry/internal/guardrail"
)

// Prompter asks the human whether to continue past a Block. It satisfies
// the loop's Confirmer.
type Prompter struct {
	in          *bufio.Reader
	out         io.Writer
	width       int
	interactive bool

	// pending is a read abandoned by a cancelled Confirm. The next Confirm
	// takes it over, so at most one read of in is ever outstanding.
	pending chan answer
}

type answer struct {
	line string
	err  error
}

// NewPrompter creates a Prompter for t. When t is not interactive every
// Block is declined without asking.
func NewPrompter(t *Terminal) *Prompter {
	return &Prompter{
		in:          bufio.NewReader(t.In),
		out:         t.Out,
		width:       t.Width(),
		interactive: t.Interactive(),
	}
}

// NewScriptedPrompter reads answers from in even when it is not a terminal.
func NewScriptedPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out, width: DefaultWidth, interactive: true}
}

// Confirm prints the trail and waits for y or n. Anything other than y or
// yes declines, as does end of input. Cancelling ctx abandons the wait.
func (p *Prompter) Confirm(ctx context.Context, trail []guardrail.Evaluation) (bool, error) {
	fmt.Fprintln(p.out, RenderTrail(trail, p.width))
	if !p.interactive {
		fmt.Fprintln(p.out, dimStyle.Render("not a terminal; stopping at the block"))
		return false, nil
	}
	fmt.Fprint(p.out, "Continue anyway? [y/N] ")

	ch := p.pending
	if ch == nil {
		ch = make(chan answer, 1)
		go func() {
			line, err := p.in.ReadString('\n')
			ch <- answer{line, err}
		}()
	}

	select {
	case <-ctx.Done():
		p.pending = ch
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case a := <-ch:
		p.pending = nil
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return false, fmt.Errorf("failed to read answer: %w", a.err)
		}
		if a.err != nil && strings.TrimSpace(a.line) == "" {
			fmt.Fprintln(p.out)
			return false, nil
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
