package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies channel failures so callers can decide between retry, skip and deactivate
type ErrorKind string

const (
	// ErrorKindConfig means a channel credential is missing; the channel is unusable for this run
	ErrorKindConfig ErrorKind = "config"
	// ErrorKindValidation means the content does not meet platform preconditions; never retried
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindTransient covers network failures, throttling and 5xx; retried up to the attempt cap
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindPermanent covers expired tokens and gone subscriptions; not retried
	ErrorKindPermanent ErrorKind = "permanent"
)

var (
	ErrSubscriptionExpired = errors.New("SUBSCRIPTION_EXPIRED")
	ErrTokenExpired        = errors.New("TOKEN_EXPIRED")
	ErrChannelDisabled     = errors.New("CHANNEL_NOT_CONFIGURED")
)

// DispatchError is the typed failure returned by channel adapters
type DispatchError struct {
	Kind       ErrorKind
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func NewConfigError(code, message string) *DispatchError {
	return &DispatchError{Kind: ErrorKindConfig, Code: code, Message: message, Err: ErrChannelDisabled}
}

func NewValidationError(code, message string) *DispatchError {
	return &DispatchError{Kind: ErrorKindValidation, Code: code, Message: message}
}

func NewTransientError(code, message string, statusCode int, err error) *DispatchError {
	return &DispatchError{Kind: ErrorKindTransient, Code: code, Message: message, StatusCode: statusCode, Err: err}
}

func NewPermanentError(code, message string, statusCode int, err error) *DispatchError {
	return &DispatchError{Kind: ErrorKindPermanent, Code: code, Message: message, StatusCode: statusCode, Err: err}
}

// KindOf returns the kind of err. Untyped errors are treated as transient.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrorKindTransient
}

func IsTransient(err error) bool  { return err != nil && KindOf(err) == ErrorKindTransient }
func IsPermanent(err error) bool  { return KindOf(err) == ErrorKindPermanent }
func IsValidation(err error) bool { return KindOf(err) == ErrorKindValidation }
func IsConfig(err error) bool     { return KindOf(err) == ErrorKindConfig }

// classifyHTTPStatus maps a provider response status to an error kind
func classifyHTTPStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return ErrorKindTransient
	case status == http.StatusUnauthorized:
		return ErrorKindConfig
	default:
		return ErrorKindPermanent
	}
}
