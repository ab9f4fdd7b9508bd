package backend

import (
	"errors"
	"fmt"
)

// Kind separates failures the caller could not reach the backend through from
// requests the backend answered with a non-2xx status.
type Kind string

const (
	KindTransport Kind = "transport"
	KindRejected  Kind = "rejected"
)

// Error is returned by every Client call.
type Error struct {
	Kind    Kind
	Op      string // e.g. "Client.UploadVideo"
	Status  int    // HTTP status for KindRejected, 0 otherwise
	Message string // server detail or a short description
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Kind == KindRejected && e.Message != "":
		return fmt.Sprintf("%s: api error %d: %s", e.Op, e.Status, e.Message)
	case e.Kind == KindRejected:
		return fmt.Sprintf("%s: api error %d", e.Op, e.Status)
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func transportErr(op, msg string, err error) error {
	return &Error{Kind: KindTransport, Op: op, Message: msg, Err: err}
}

func rejectedErr(op string, status int, detail string) error {
	return &Error{Kind: KindRejected, Op: op, Status: status, Message: detail}
}

func IsTransport(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == KindTransport
}

func IsRejected(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == KindRejected
}

// StatusOf returns the HTTP status carried by a rejected request, or 0.
func StatusOf(err error) int {
	var be *Error
	if errors.As(err, &be) {
		return be.Status
	}
	return 0
}

// MessageOf returns the server-supplied detail when there is one.
func MessageOf(err error) string {
	var be *Error
	if errors.As(err, &be) && be.Kind == KindRejected {
		return be.Message
	}
	return ""
}
