package tui

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"github.com/thruflo/gantry/internal/loop"
)

// Notifier tells the human a run has stopped. In the foreground it rings
// the terminal bell; otherwise it uses OS-native notifications.
type Notifier struct {
	out io.Writer
	// notifyOS is swapped in tests.
	notifyOS func(title, message string) error
}

// NewNotifier creates a Notifier that writes bell to the given output.
func NewNotifier(out io.Writer) *Notifier {
	return &Notifier{out: out, notifyOS: notifyOS}
}

// Bell writes the terminal bell character to output.
func (n *Notifier) Bell() {
	fmt.Fprint(n.out, Bell)
}

// NotifyAttention rings the bell when foreground, else sends an OS
// notification.
func (n *Notifier) NotifyAttention(title, message string, foreground bool) error {
	if foreground {
		n.Bell()
		return nil
	}
	return n.notifyOS(title, message)
}

// NotifyExit announces why the loop stopped. Cancellation is silent since
// the human asked for it.
func (n *Notifier) NotifyExit(module string, res loop.Result, foreground bool) error {
	if res.Reason == loop.ExitReasonCancelled {
		return nil
	}
	return n.NotifyAttention(ExitTitle(res.Reason), ExitMessage(module, res.Reason), foreground)
}

// ExitTitle returns the notification title for an exit reason.
func ExitTitle(r loop.ExitReason) string {
	switch r {
	case loop.ExitReasonDone:
		return "gantry: Completed"
	case loop.ExitReasonBlocked:
		return "gantry: Blocked"
	case loop.ExitReasonStuck:
		return "gantry: Stuck"
	case loop.ExitReasonMaxIterations:
		return "gantry: Iteration Limit"
	case loop.ExitReasonCrash:
		return "gantry: Crashed"
	default:
		return "gantry"
	}
}

// ExitMessage returns the notification body for an exit reason.
func ExitMessage(module string, r loop.ExitReason) string {
	switch r {
	case loop.ExitReasonDone:
		return fmt.Sprintf("Module %s completed and verified", module)
	case loop.ExitReasonBlocked:
		return fmt.Sprintf("Module %s is blocked and needs a decision", module)
	case loop.ExitReasonStuck:
		return fmt.Sprintf("Module %s is stuck with no progress", module)
	case loop.ExitReasonMaxIterations:
		return fmt.Sprintf("Module %s reached the iteration limit", module)
	case loop.ExitReasonCrash:
		return fmt.Sprintf("Module %s crashed unexpectedly", module)
	default:
		return fmt.Sprintf("Module %s needs attention", module)
	}
}

// notifyOS uses osascript on macOS and does nothing elsewhere.
func notifyOS(title, message string) error {
	if runtime.GOOS != "darwin" {
		return nil
	}
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}
