// Package apperrors defines the typed error taxonomy shared by the
// signal generator and order executor CLIs, each carrying the process
// exit code its kind maps to so main() can do a single errors.As check
// instead of string-matching messages.
package apperrors

import "fmt"

// Kind is the taxonomy tag; each maps to a fixed CLI exit code.
type Kind int

const (
	KindConfig Kind = iota
	KindKillSwitch
	KindReconciliation
	KindWrongStrategy
	KindOPGAllPhase
)

// ExitCode returns the process exit code for k.
func (k Kind) ExitCode() int {
	switch k {
	case KindConfig:
		return 2
	case KindKillSwitch:
		return 3
	case KindReconciliation:
		return 4
	case KindWrongStrategy:
		return 5
	case KindOPGAllPhase:
		return 6
	default:
		return 1
	}
}

// Error is an apperrors-taxonomy error. Wrap an underlying cause with
// Wrap or construct directly with New.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode returns the exit code for e's kind, satisfying main()'s
// "does this error carry an exit code" check via errors.As.
func (e *Error) ExitCode() int { return e.Kind.ExitCode() }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// ErrConfig reports an invalid argument range or inconsistent
// configuration combination. Exit code 2.
func ErrConfig(msg string) *Error { return New(KindConfig, msg) }

// ErrKillSwitch reports the kill switch is tripped. Exit code 3.
func ErrKillSwitch(msg string) *Error { return New(KindKillSwitch, msg) }

// ErrReconciliation reports a state mismatch between C7 and the
// brokerage. Exit code 4.
func ErrReconciliation(msg string) *Error { return New(KindReconciliation, msg) }

// ErrWrongStrategy reports a signal file whose strategy is not the
// executable one. Exit code 5.
func ErrWrongStrategy(msg string) *Error { return New(KindWrongStrategy, msg) }

// ErrOPGAllPhase reports an "all" phase invocation with an
// opening-auction time-in-force. Exit code 6.
func ErrOPGAllPhase(msg string) *Error { return New(KindOPGAllPhase, msg) }
