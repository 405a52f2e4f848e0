package pipeline

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyInput rejects a run with no sentences before any work starts.
	// The text is the wire message clients match on.
	ErrEmptyInput = errors.New("No sentences provided.")

	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrSuperseded means a newer run replaced this one. It is returned to the
	// caller of Run but never reported as an event.
	ErrSuperseded = errors.New("run superseded")
)

// unknownErrorMessage is reported when a failure carries no message.
const unknownErrorMessage = "Unknown worker error"

// errorMessage is the text carried by a terminal error event.
func errorMessage(err error) string {
	if err == nil {
		return unknownErrorMessage
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return unknownErrorMessage
	}
	return msg
}
