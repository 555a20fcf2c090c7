package ragapi

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeNetworkError ErrorCode = "NETWORK_ERROR"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeServerError  ErrorCode = "SERVER_ERROR"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	CodeRateLimit    ErrorCode = "RATE_LIMIT"
)

// User-facing messages, one per failure mode.
const (
	MsgEmptyQuery    = "Please enter a question."
	MsgQueryTooLong  = "Question is too long (%d characters). Maximum %d characters allowed."
	MsgBadRequest    = "Your question could not be processed. Please try rephrasing."
	MsgRateLimited   = "Too many requests. Please wait a moment and try again."
	MsgServerError   = "Service temporarily unavailable. Please try again."
	MsgTimeout       = "Request timed out. Please try again."
	MsgNetworkError  = "Unable to connect. Please check your internet connection."
	MsgUnexpectedErr = "An unexpected error occurred. Please try again."
)

// ChatError is a classified failure of an API call. Every expected failure
// of the client surfaces as a *ChatError.
type ChatError struct {
	Message   string    `json:"message"`
	Code      ErrorCode `json:"code"`
	Retryable bool      `json:"retryable"`
	LastQuery string    `json:"lastQuery,omitempty"`
}

// NewChatError derives Retryable from code: only INVALID_INPUT is final.
func NewChatError(code ErrorCode, message, lastQuery string) *ChatError {
	return &ChatError{
		Message:   message,
		Code:      code,
		Retryable: code != CodeInvalidInput,
		LastQuery: lastQuery,
	}
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsChatError unwraps err into a *ChatError if it carries one.
func AsChatError(err error) (*ChatError, bool) {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr, true
	}
	return nil, false
}

func errorForStatus(status int, query string) *ChatError {
	switch status {
	case 400:
		return NewChatError(CodeInvalidInput, MsgBadRequest, query)
	case 429:
		return NewChatError(CodeRateLimit, MsgRateLimited, query)
	default:
		return NewChatError(CodeServerError, MsgServerError, query)
	}
}
