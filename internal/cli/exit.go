package cli

import (
	"errors"
	"fmt"

	"ArticlePublisher/internal/usecase"
)

// Exit codes are a stable contract with the automation that invokes the
// publisher; see usecase for the reconciliation codes.
const (
	ExitSuccess   = usecase.ExitOK
	ExitFatal     = usecase.ExitFatal
	ExitUsage     = usecase.ExitUsage
	ExitPending   = usecase.ExitPending
	ExitRetryable = usecase.ExitRetryable
)

// ExitError represents an error with a specific exit code.
// An empty Message means the command already reported everything.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Errors that are not ExitErrors come from cobra's argument and flag
// parsing and map to ExitUsage.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitUsage
}

// Silent reports whether err carries no message worth printing.
func Silent(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Message == "" && exitErr.Err == nil
}
