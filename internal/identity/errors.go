package identity

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// DefaultMessage is shown when the provider gives no usable explanation.
const DefaultMessage = "An error occurred"

// ErrVerificationDisabled is returned by VerifyAccessToken when no signing
// secret is configured.
var ErrVerificationDisabled = errors.New("identity: access token verification disabled")

// Error is a rejection from the identity provider, or a failure to reach it.
// Message is safe to show to the person filling in the form.
type Error struct {
	Status  int
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return "identity: " + e.Code + ": " + e.Message
	}
	return "identity: " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func transportError(err error) error {
	return &Error{
		Status:  http.StatusBadGateway,
		Code:    "unreachable",
		Message: DefaultMessage,
		cause:   err,
	}
}

// invalidTokenError reports an access token that failed verification. The
// visitor only ever sees DefaultMessage.
func invalidTokenError(err error) error {
	return &Error{
		Status:  http.StatusUnauthorized,
		Code:    "invalid_token",
		Message: DefaultMessage,
		cause:   err,
	}
}

func errorFromResponse(status int, body []byte) error {
	var payload struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
		ErrorCode        string `json:"error_code"`
		Code             any    `json:"code"`
	}
	_ = json.Unmarshal(body, &payload)

	message := firstNonEmpty(payload.Msg, payload.Message, payload.ErrorDescription, payload.Error)
	if message == "" {
		message = DefaultMessage
	}
	code := strings.TrimSpace(payload.ErrorCode)
	if code == "" {
		if s, ok := payload.Code.(string); ok {
			code = strings.TrimSpace(s)
		}
	}
	if code == "" && payload.Error != "" && payload.Error != message {
		code = strings.TrimSpace(payload.Error)
	}
	return &Error{Status: status, Code: code, Message: message}
}

// MessageOf extracts the user-facing message from an identity error.
func MessageOf(err error) (string, bool) {
	var idErr *Error
	if errors.As(err, &idErr) {
		if strings.TrimSpace(idErr.Message) == "" {
			return DefaultMessage, true
		}
		return idErr.Message, true
	}
	return "", false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
