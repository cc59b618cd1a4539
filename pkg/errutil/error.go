package errutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

func (e BaseError) URL() string {
	values := url.Values{}

	values.Set("error_code", string(e.Code))
	values.Set("error_message", e.Message)

	for _, d := range e.Details {
		values.Set("details["+strings.TrimSpace(d.Field)+"]", d.Message)
	}

	return values.Encode()
}

func (e BaseError) JSON() interface{} {
	return map[string]interface{}{
		"error":   true,
		"code":    e.Code,
		"message": e.Message,
		"details": e.Details,
	}
}

func (e BaseError) Unwrap() error {
	return e.Err
}

// Is matches any BaseError carrying the same code, so sentinels such as
// ErrMalformedLine can be used with errors.Is.
func (e BaseError) Is(target error) bool {
	var other BaseError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.messageWithErr())
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e BaseError) messageWithErr() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = details }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

// Sentinels for errors.Is.
var (
	ErrRemoteUnavailable   = BaseError{Code: StatusRemoteUnavailable}
	ErrRemoteExecution     = BaseError{Code: StatusRemoteExecution}
	ErrMalformedLine       = BaseError{Code: StatusMalformedLine}
	ErrInconsistentCatalog = BaseError{Code: StatusInconsistentCatalog}
	ErrPrecondition        = BaseError{Code: StatusPrecondition}
	ErrSubmission          = BaseError{Code: StatusSubmission}
	ErrNotFound            = BaseError{Code: StatusNotFound}
	ErrValidationFailed    = BaseError{Code: StatusValidationFailed}
	ErrForbidden           = BaseError{Code: StatusForbidden}
)

func RemoteUnavailable(msg string, err error, options ...Option) error {
	return New(StatusRemoteUnavailable, msg, append(options, WithErr(err))...)
}

func RemoteExecution(msg string, err error, options ...Option) error {
	return New(StatusRemoteExecution, msg, append(options, WithErr(err))...)
}

func MalformedLine(msg string, err error, options ...Option) error {
	return New(StatusMalformedLine, msg, append(options, WithErr(err))...)
}

func InconsistentCatalog(msg string, err error, options ...Option) error {
	return New(StatusInconsistentCatalog, msg, append(options, WithErr(err))...)
}

func Precondition(msg string, err error, options ...Option) error {
	return New(StatusPrecondition, msg, append(options, WithErr(err))...)
}

func Submission(msg string, err error, options ...Option) error {
	return New(StatusSubmission, msg, append(options, WithErr(err))...)
}

func NotFound(msg string, err error, options ...Option) error {
	return New(StatusNotFound, msg, append(options, WithErr(err))...)
}

func BadRequest(msg string, err error, options ...Option) error {
	return New(StatusBadRequest, msg, append(options, WithErr(err))...)
}

func ValidationFailed(msg string, err error, options ...Option) error {
	return New(StatusValidationFailed, msg, append(options, WithErr(err))...)
}

func Forbidden(msg string, err error, options ...Option) error {
	return New(StatusForbidden, msg, append(options, WithErr(err))...)
}

func Internal(msg string, err error, options ...Option) error {
	return New(StatusInternal, msg, append(options, WithErr(err))...)
}

// StatusOf returns the code of the first BaseError in the chain, or
// StatusUnknown.
func StatusOf(err error) CoreStatus {
	var base BaseError
	if errors.As(err, &base) {
		return base.Code
	}
	return StatusUnknown
}

// Retryable reports whether err is a transient transport failure that the
// caller may retry at batch level.
func Retryable(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable)
}
