package sefin

import (
	"errors"
	"fmt"
)

// TransportError is a non-200 status or a failed request at a named step.
type TransportError struct {
	Step       string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Step, e.Err.Error())
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Step, e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthenticationError means the handshake never reached StatePortalHome.
type AuthenticationError struct {
	// State is the last state reached before failing.
	State  State
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("authentication failed after %s: %s", e.State, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// ExtractionMiss means a required form or table was not on the page.
type ExtractionMiss struct {
	Target string
}

func (e *ExtractionMiss) Error() string {
	return fmt.Sprintf("%s not found", e.Target)
}

var ErrCaptchaExhausted = errors.New("guide could not be issued: captcha attempts exhausted")

func statusError(step string, status int) error {
	return &TransportError{Step: step, StatusCode: status}
}
