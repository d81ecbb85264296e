package errcode

import (
	"errors"
	"fmt"
)

// Error represents a business error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// Is matches errors by code, so a wrapped error still compares equal to its sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New creates a new error with code and message
func New(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code: e.Code,
		Msg:  fmt.Sprintf("%s: %v", e.Msg, err),
	}
}

// From extracts the business error from err, falling back to ErrInternalServer.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternalServer
}

var (
	// Success
	ErrSuccess = New(0, "success")

	// Common errors (1xxx)
	ErrInvalidParam     = New(1001, "invalid parameter")
	ErrInternalServer   = New(1002, "internal server error")
	ErrUnauthorized     = New(1003, "unauthorized")
	ErrForbidden        = New(1004, "forbidden")
	ErrNotFound         = New(1005, "not found")
	ErrTooManyRequests  = New(1006, "too many requests")
	ErrStoreUnavailable = New(1008, "store unavailable")

	// Auth and identity errors (2xxx)
	ErrTokenInvalid    = New(2001, "token invalid")
	ErrTokenExpired    = New(2002, "token expired")
	ErrTokenMissing    = New(2003, "token missing")
	ErrTokenMismatch   = New(2004, "token user mismatch")
	ErrUserNotFound    = New(2006, "user not found")
	ErrIdentityInvalid = New(2009, "invalid participant identity")

	// Conversation and message errors (4xxx)
	ErrConvNotFound   = New(4003, "conversation not found")
	ErrSeqAllocFailed = New(4004, "seq allocation failed")
	ErrSendFailed     = New(4005, "message send failed")
	ErrNotParticipant = New(4007, "not a participant of the conversation")
	ErrEmptyContent   = New(4008, "message content is empty")
	ErrContentTooLong = New(4009, "message content too long")

	// WebSocket errors (5xxx)
	ErrConnOverLimit   = New(5001, "connection over max limit")
	ErrConnClosed      = New(5002, "connection closed")
	ErrInvalidProtocol = New(5003, "invalid protocol")
	ErrPushFailed      = New(5004, "push message failed")
	ErrSubNotFound     = New(5005, "subscription not found")

	// AI reply errors (6xxx)
	ErrGenerationFailed = New(6001, "ai reply generation failed")
)
