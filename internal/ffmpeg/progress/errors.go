// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package progress

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by errors.Is against an *Error of the same kind.
var (
	ErrIO            = errors.New("progress: i/o failure")
	ErrFraming       = errors.New("progress: invalid key=value pair")
	ErrUnknownStatus = errors.New("progress: unknown status")
	ErrConversion    = errors.New("progress: invalid field value")
)

// Kind classifies a session error
type Kind int

const (
	KindIO Kind = iota + 1
	KindFraming
	KindStatus
	KindConversion
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindFraming:
		return "framing"
	case KindStatus:
		return "status"
	case KindConversion:
		return "conversion"
	}
	return "unknown"
}

func (k Kind) sentinel() error {
	switch k {
	case KindIO:
		return ErrIO
	case KindFraming:
		return ErrFraming
	case KindStatus:
		return ErrUnknownStatus
	case KindConversion:
		return ErrConversion
	}
	return nil
}

// Error is a progress session failure.
//
// Key and Value hold the offending protocol text: the whole line for framing
// errors, the status for status errors and the key with its raw value for
// conversion errors. Err is the underlying cause, if any.
type Error struct {
	Kind  Kind
	Key   string
	Value string
	Err   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindIO:
		return fmt.Sprintf("io error: %v", e.Err)
	case KindFraming:
		return fmt.Sprintf("invalid key=value pair: %q", e.Value)
	case KindStatus:
		return fmt.Sprintf("unknown status: %q", e.Value)
	case KindConversion:
		return fmt.Sprintf("parse error: %s=%q: %v", e.Key, e.Value, e.Err)
	}
	return fmt.Sprintf("progress error (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

func ioError(op string, err error) *Error {
	return &Error{Kind: KindIO, Err: fmt.Errorf("%s: %w", op, err)}
}
