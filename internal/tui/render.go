package tui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/thruflo/gantry/internal/guardrail"
	"github.com/thruflo/gantry/internal/loop"
	"github.com/thruflo/gantry/internal/work"
)

// Tree drawing segments.
const (
	treeBranch = "├── "
	treeLast   = "└── "
	treePipe   = "│   "
	treeSpace  = "    "
)

// RenderTree draws the module and everything below it, one node per line.
// Parents show their aggregate state; when a parent's own state differs it
// is shown alongside.
func RenderTree(m *work.Module) string {
	var b strings.Builder
	writeNode(&b, m.Node, "", "")
	return strings.TrimRight(b.String(), "\n")
}

func writeNode(b *strings.Builder, n *work.Node, lead, childLead string) {
	agg := n.ComputeAggregateState()
	line := fmt.Sprintf("%s%s %s", lead, StateIcon(agg), titleStyle.Render(n.ID()))
	if n.Name() != "" && n.Name() != n.ID() {
		line += " " + n.Name()
	}
	line += " " + FormatState(agg)
	if own := n.State(); own != agg {
		line += dimStyle.Render(fmt.Sprintf(" (marked %s)", own))
	}
	b.WriteString(line)
	b.WriteByte('\n')

	children := n.Children()
	for i, c := range children {
		if i == len(children)-1 {
			writeNode(b, c, childLead+treeLast, childLead+treeSpace)
		} else {
			writeNode(b, c, childLead+treeBranch, childLead+treePipe)
		}
	}
}

// RenderTrail lists a pipeline trail in evaluation order. Warn and Block
// messages are wrapped under their guardrail.
func RenderTrail(trail []guardrail.Evaluation, width int) string {
	if len(trail) == 0 {
		return dimStyle.Render("no guardrails evaluated")
	}

	var lines []string
	for _, e := range trail {
		outcome := e.Result.Outcome()
		lines = append(lines, fmt.Sprintf("%s %s %s",
			dimStyle.Render(fmt.Sprintf("[%d]", e.Order)),
			labelStyle.Render(e.Guardrail),
			FormatOutcome(outcome),
		))
		if msg := guardrail.MessageOf(e.Result); msg != "" {
			for _, l := range WrapText(msg, max(width-4, 20)) {
				lines = append(lines, "    "+l)
			}
		}
	}
	return strings.Join(lines, "\n")
}

// RenderProgress summarises completion as "done/total" with a bar.
func RenderProgress(completed, total, width int) string {
	label := fmt.Sprintf("%d/%d nodes complete", completed, total)
	bar := ProgressBar(completed, total, width-utf8.RuneCountInString(label)-1)
	if bar == "" {
		return label
	}
	return bar + " " + label
}

// RenderResult describes why the loop stopped, boxed for the end of a run.
func RenderResult(module string, res loop.Result, width int) string {
	style := outcomeStyles[guardrail.OutcomePass]
	switch res.Reason {
	case loop.ExitReasonBlocked, loop.ExitReasonStuck, loop.ExitReasonMaxIterations:
		style = outcomeStyles[guardrail.OutcomeWarn]
	case loop.ExitReasonCrash, loop.ExitReasonUnknown:
		style = outcomeStyles[guardrail.OutcomeBlock]
	case loop.ExitReasonCancelled:
		style = dimStyle
	}

	inner := max(width-4, 20)
	lines := []string{
		fmt.Sprintf("%s %s after %d iteration(s)", titleStyle.Render(module), style.Render(res.Reason.String()), res.Iterations),
	}
	if res.Message != "" {
		lines = append(lines, WrapText(res.Message, inner)...)
	}
	if res.Error != nil {
		lines = append(lines, WrapText("error: "+res.Error.Error(), inner)...)
	}
	if len(res.Trail) > 0 {
		lines = append(lines, "", RenderTrail(res.Trail, inner))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// PadOrTruncate pads or truncates a string to exactly width characters.
// Uses visual width (rune count) for proper Unicode handling.
func PadOrTruncate(s string, width int) string {
	if width <= 0 {
		return ""
	}

	runeLen := utf8.RuneCountInString(s)
	if runeLen == width {
		return s
	}
	if runeLen < width {
		return s + strings.Repeat(" ", width-runeLen)
	}
	return Truncate(s, width)
}

// Truncate truncates a string to max width, adding ellipsis if needed.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= width {
		return s
	}

	if width >= 3 {
		return string(runes[:width-3]) + "..."
	}
	return string(runes[:width])
}

// WrapText wraps text to fit within the given width.
// Returns a slice of lines.
func WrapText(text string, width int) []string {
	if width <= 0 {
		return nil
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}

		currentLine := words[0]
		for _, word := range words[1:] {
			if utf8.RuneCountInString(currentLine)+1+utf8.RuneCountInString(word) <= width {
				currentLine += " " + word
			} else {
				lines = append(lines, currentLine)
				currentLine = word
			}
		}
		lines = append(lines, currentLine)
	}
	return lines
}

// ProgressBar renders a simple progress bar.
// Returns a string like "[████████░░░░░░░░] 50%"
func ProgressBar(current, total, width int) string {
	if total == 0 || width < 10 {
		return ""
	}

	pct := float64(current) / float64(total)
	if pct > 1 {
		pct = 1
	}

	barWidth := width - 7 // Space for "[] XXX%"
	filled := int(pct * float64(barWidth))
	empty := barWidth - filled

	bar := "[" +
		stateStyles[work.StateComplete].Render(strings.Repeat("█", filled)) +
		dimStyle.Render(strings.Repeat("░", empty)) +
		"]"

	return bar + " " + fmt.Sprintf("%3d", int(pct*100)) + "%"
}
