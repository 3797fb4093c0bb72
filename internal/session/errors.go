// CLAUDE:SUMMARY Typed capture, injection and verification errors with sentinels.
package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLoginNotConfirmed means the operator confirmed but the login marker
	// was not present in the interactive tab.
	ErrLoginNotConfirmed = errors.New("session: login not confirmed")

	// ErrVerificationTimeout means the ready marker did not appear after
	// injection within the verification timeout.
	ErrVerificationTimeout = errors.New("session: verification timed out")
)

// CaptureError is returned when capture ends in the Failed state.
type CaptureError struct {
	Stage CaptureState
	Cause error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("session: capture failed while %s: %v", e.Stage, e.Cause)
}

func (e *CaptureError) Unwrap() error { return e.Cause }

// InjectionError is returned when the monitor tab cannot reach the origin.
type InjectionError struct {
	Origin string
	Cause  error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("session: inject into %s: %v", e.Origin, e.Cause)
}

func (e *InjectionError) Unwrap() error { return e.Cause }

// VerificationError is returned when the replayed session does not reach the
// ready state. Artifacts lists the diagnostic files written.
type VerificationError struct {
	Selector  string
	Artifacts []string
	Cause     error
}

func (e *VerificationError) Error() string {
	msg := fmt.Sprintf("session: verify %q: %v", e.Selector, e.Cause)
	if len(e.Artifacts) > 0 {
		msg += " (artifacts: " + strings.Join(e.Artifacts, ", ") + ")"
	}
	return msg
}

func (e *VerificationError) Unwrap() error { return e.Cause }
