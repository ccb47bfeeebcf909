package core

import (
	"errors"
	"fmt"
)

// Kind classifies driver errors so callers can tell "nothing happened" from "state unknown"
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindUnsupportedSymbol
	KindNotFound
	KindNetwork
	KindInsufficientBalance
	KindChain
	KindAmendConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnsupportedSymbol:
		return "unsupported symbol"
	case KindNotFound:
		return "not found"
	case KindNetwork:
		return "network"
	case KindInsufficientBalance:
		return "insufficient balance"
	case KindChain:
		return "chain"
	case KindAmendConflict:
		return "amend conflict"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against an *Error of the same kind
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrUnsupportedSymbol   = &Error{Kind: KindUnsupportedSymbol}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrNetwork             = &Error{Kind: KindNetwork}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrChain               = &Error{Kind: KindChain}
	ErrAmendConflict       = &Error{Kind: KindAmendConflict}
)

// ErrUnsupported marks a capability the selected venue does not offer.
// It is wrapped in a validation error.
var ErrUnsupported = errors.New("operation not supported by venue")

// Error is the single error type returned across the driver boundary
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "place order"
	Msg  string
	Err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so the package sentinels work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

func newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(op, format string, args ...any) error {
	return newf(KindValidation, op, format, args...)
}

func UnsupportedSymbolf(op, format string, args ...any) error {
	return newf(KindUnsupportedSymbol, op, format, args...)
}

func NotFoundf(op, format string, args ...any) error {
	return newf(KindNotFound, op, format, args...)
}

func InsufficientBalancef(op, format string, args ...any) error {
	return newf(KindInsufficientBalance, op, format, args...)
}

// Network wraps a transport failure, non-2xx status or malformed response
func Network(op string, err error) error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

func Networkf(op, format string, args ...any) error {
	return newf(KindNetwork, op, format, args...)
}

// Chain wraps an RPC failure, revert or confirmation timeout
func Chain(op string, err error) error {
	return &Error{Kind: KindChain, Op: op, Err: err}
}

func Chainf(op, format string, args ...any) error {
	return newf(KindChain, op, format, args...)
}

func AmendConflict(op string, err error) error {
	return &Error{Kind: KindAmendConflict, Op: op, Msg: "original order cancelled, replacement not placed", Err: err}
}

// Unsupported reports a capability the venue lacks
func Unsupported(op string) error {
	return &Error{Kind: KindValidation, Op: op, Err: ErrUnsupported}
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// NothingHappened reports whether err guarantees no side effect reached the venue
func NothingHappened(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindUnsupportedSymbol, KindNotFound, KindInsufficientBalance:
		return true
	}
	return false
}
