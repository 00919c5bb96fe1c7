package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures at service boundaries.
type ErrorKind int

const (
	// KindInternal covers pipeline bugs and unexpected failures.
	KindInternal ErrorKind = iota
	// KindInvalid covers bad requests and configuration.
	KindInvalid
	// KindUnavailable covers data source failures.
	KindUnavailable
	// KindDataQuality covers implausible input data.
	KindDataQuality
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnavailable:
		return "unavailable"
	case KindDataQuality:
		return "data_quality"
	default:
		return "internal"
	}
}

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op   string
	Msg  string
	Kind ErrorKind
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError of the given kind.
func NewAppError(op, msg string, kind ErrorKind, err error) error {
	return &AppError{Op: op, Msg: msg, Kind: kind, Err: err}
}

// KindOf returns the kind of the outermost AppError in err's chain.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
