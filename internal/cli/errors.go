// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error reporting and exit codes for navstream commands.
//
// Command handlers return errors; main displays them once and maps them
// to an exit code.

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jeranaias/navstream/internal/config"
	"github.com/jeranaias/navstream/internal/convstore"
	"github.com/jeranaias/navstream/internal/storage"
	"github.com/jeranaias/navstream/internal/stream"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "export")
	Action  string // Action being performed (e.g., "write")
	Err     error
}

func (e *CommandError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("%s failed: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError represents invalid arguments.
type UsageError struct {
	Reason  string
	Example string
}

func (e *UsageError) Error() string {
	if e.Example != "" {
		return fmt.Sprintf("%s\nExample: %s", e.Reason, e.Example)
	}
	return e.Reason
}

// ErrMissingArgument creates an error for missing required arguments.
func ErrMissingArgument(name, example string) error {
	return &UsageError{Reason: "missing " + name, Example: example}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode determines the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsageError
	}

	var validationErrs config.ValidateErrors
	var validationErr config.ValidationError
	if errors.As(err, &validationErrs) || errors.As(err, &validationErr) {
		return ExitConfigError
	}

	if errors.Is(err, convstore.ErrNotFound) || errors.Is(err, storage.ErrConversationNotFound) {
		return ExitNotFoundError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ExitTimeoutError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ExitTimeoutError
		}
		return ExitNetworkError
	}
	var statusErr *stream.StatusError
	if errors.As(err, &statusErr) {
		return ExitNetworkError
	}
	var apiErr *convstore.APIError
	if errors.As(err, &apiErr) {
		return ExitNetworkError
	}

	return ExitGeneralError
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON when jsonMode is set.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}

	if jsonMode {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(NewJSONErrorResponse("", err))
		return
	}

	fmt.Fprintf(w, "%s %s\n", RenderConditional(ErrorStyle, "[ERROR]"), err.Error())
}
