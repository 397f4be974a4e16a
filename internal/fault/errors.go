package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes for the interop layer.
var (
	// ErrSymbolNotFound indicates the native library does not export an expected symbol.
	ErrSymbolNotFound = errors.New("jph: native symbol not found")

	// ErrSignatureMismatch indicates an internally inconsistent call signature.
	ErrSignatureMismatch = errors.New("jph: signature mismatch")

	// ErrLayoutValidation indicates declared struct layouts drifted from the native ABI.
	ErrLayoutValidation = errors.New("jph: layout validation failed")

	// ErrNativeCallFailed indicates a native call reported failure.
	ErrNativeCallFailed = errors.New("jph: native call failed")

	// ErrVersionMismatch indicates the native library version is outside the accepted range.
	ErrVersionMismatch = errors.New("jph: native version mismatch")

	// ErrUseAfterRelease indicates a buffer or trampoline was used after its region closed.
	ErrUseAfterRelease = errors.New("jph: use after release")
)

// IsFatal reports whether err belongs to a class that means the binary does not
// match the native library. Such errors are never retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSymbolNotFound) ||
		errors.Is(err, ErrSignatureMismatch) ||
		errors.Is(err, ErrLayoutValidation) ||
		errors.Is(err, ErrVersionMismatch)
}

type SymbolError struct {
	Symbol string
	Err    error
}

func (e *SymbolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrSymbolNotFound, e.Symbol)
	}
	return fmt.Sprintf("%s: %s: %v", ErrSymbolNotFound, e.Symbol, e.Err)
}

func (e *SymbolError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSymbolNotFound}
	}
	return []error{ErrSymbolNotFound, e.Err}
}

type SignatureError struct {
	Symbol string
	Reason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrSignatureMismatch, e.Symbol, e.Reason)
}

func (e *SignatureError) Unwrap() error {
	return ErrSignatureMismatch
}

// LayoutMismatch records one layout whose declared size differs from the
// size the native library reports.
type LayoutMismatch struct {
	Layout   string
	Declared uintptr
	Native   uintptr
}

type LayoutError struct {
	Mismatches []LayoutMismatch
}

func (e *LayoutError) Error() string {
	parts := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		parts = append(parts, fmt.Sprintf("%s declared %d bytes, native %d", m.Layout, m.Declared, m.Native))
	}
	return fmt.Sprintf("%s: %s", ErrLayoutValidation, strings.Join(parts, "; "))
}

func (e *LayoutError) Unwrap() error {
	return ErrLayoutValidation
}

// CallError wraps a failed native call. Code carries the native status value
// when the failure was reported through a return code.
type CallError struct {
	Symbol string
	Code   int64
	Cause  error
}

func (e *CallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", ErrNativeCallFailed, e.Symbol, e.Cause)
	}
	return fmt.Sprintf("%s: %s: status %d", ErrNativeCallFailed, e.Symbol, e.Code)
}

func (e *CallError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrNativeCallFailed}
	}
	return []error{ErrNativeCallFailed, e.Cause}
}

type ReleaseError struct {
	Object string
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUseAfterRelease, e.Object)
}

func (e *ReleaseError) Unwrap() error {
	return ErrUseAfterRelease
}

type VersionError struct {
	Version    string
	Constraint string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("%s: %s does not satisfy %s", ErrVersionMismatch, e.Version, e.Constraint)
}

func (e *VersionError) Unwrap() error {
	return ErrVersionMismatch
}
