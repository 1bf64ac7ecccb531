package guardrail

import "fmt"

// Outcome names the active variant of a Result.
type Outcome int

const (
	OutcomePass Outcome = iota
	OutcomeWarn
	OutcomeBlock
)

func (o Outcome) String() string {
	switch o {
	case OutcomePass:
		return "pass"
	case OutcomeWarn:
		return "warn"
	case OutcomeBlock:
		return "block"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the closed set {Pass, Warn, Block}. The unexported marker
// method keeps other packages from adding variants; use Fold or a type
// switch over the three concrete types to consume it.
type Result interface {
	Outcome() Outcome
	isResult()
}

// Pass carries no payload.
type Pass struct{}

// Warn carries corrective guidance for the next agent turn.
type Warn struct{ message string }

// Block carries the reason progress must stop.
type Block struct{ message string }

// Passed returns the Pass result.
func Passed() Result { return Pass{} }

// Warned returns a Warn result. An empty message is a programming error.
func Warned(message string) Result {
	if message == "" {
		panic("guardrail: warn result requires a message")
	}
	return Warn{message: message}
}

// Blocked returns a Block result. An empty message is a programming error.
func Blocked(message string) Result {
	if message == "" {
		panic("guardrail: block result requires a message")
	}
	return Block{message: message}
}

func (Pass) Outcome() Outcome  { return OutcomePass }
func (Warn) Outcome() Outcome  { return OutcomeWarn }
func (Block) Outcome() Outcome { return OutcomeBlock }

func (Pass) isResult()  {}
func (Warn) isResult()  {}
func (Block) isResult() {}

// Message returns the guidance text.
func (w Warn) Message() string { return w.message }

// Message returns the block reason.
func (b Block) Message() string { return b.message }

func (Pass) String() string    { return "pass" }
func (w Warn) String() string  { return "warn: " + w.message }
func (b Block) String() string { return "block: " + b.message }

// Fold consumes r by calling exactly one of the handlers.
func Fold[T any](r Result, onPass func() T, onWarn func(message string) T, onBlock func(message string) T) T {
	switch v := r.(type) {
	case Pass:
		return onPass()
	case Warn:
		return onWarn(v.message)
	case Block:
		return onBlock(v.message)
	default:
		panic(fmt.Sprintf("guardrail: unknown result type %T", r))
	}
}

// MessageOf returns the message of a Warn or Block and "" for Pass.
func MessageOf(r Result) string {
	return Fold(r,
		func() string { return "" },
		func(m string) string { return m },
		func(m string) string { return m },
	)
}
