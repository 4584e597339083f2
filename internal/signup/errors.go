package signup

import (
	"errors"

	"github.com/flowweave/flowweave-web/internal/identity"
)

const defaultErrorMessage = identity.DefaultMessage

var (
	ErrSessionNotFound      = errors.New("signup session not found")
	ErrInvalidTransition    = errors.New("invalid signup transition")
	ErrSubmissionInProgress = errors.New("signup submission in progress")
	ErrProviderNotAllowed   = errors.New("oauth provider not allowed")
	ErrFlowNotFound         = errors.New("oauth flow not found")
	ErrTokenRejected        = errors.New("oauth access token rejected")
)

// ValidationError describes a form field the visitor has to fix.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// UserMessage is the single line of text shown in the modal for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := identity.MessageOf(err); ok {
		return msg
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	switch {
	case errors.Is(err, ErrSubmissionInProgress):
		return "Your request is already being processed."
	case errors.Is(err, ErrProviderNotAllowed):
		return "That sign-in option is not available."
	case errors.Is(err, ErrFlowNotFound):
		return "Your sign-in attempt expired. Please try again."
	}
	return defaultErrorMessage
}

// IsUserFacing reports whether err is an expected outcome already reflected
// in the session, as opposed to an internal failure worth logging loudly.
func IsUserFacing(err error) bool {
	if err == nil {
		return true
	}
	if _, ok := identity.MessageOf(err); ok {
		return true
	}
	var verr *ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrSubmissionInProgress) ||
		errors.Is(err, ErrProviderNotAllowed) ||
		errors.Is(err, ErrFlowNotFound) ||
		errors.Is(err, ErrTokenRejected)
}
