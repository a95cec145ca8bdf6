package errx

import (
	"errors"
	"fmt"

	"autframe/pkg/domain"
)

type Code string

type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, msg string) *Error { return &Error{Code: code, Msg: msg} }

func Wrap(code Code, err error, msg string) *Error { return &Error{Code: code, Msg: msg, Err: err} }

func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

const (
	CodeSessionNotFound     Code = "SESSION_NOT_FOUND"
	CodeAppLoadFailed       Code = "APP_LOAD_FAILED"
	CodeInvalidParams       Code = "INVALID_PARAMS"
	CodeInvalidRequest      Code = "INVALID_REQUEST"
	CodeMethodNotFound      Code = "METHOD_NOT_FOUND"
	CodeDevToolsUnreachable Code = "DEVTOOLS_UNREACHABLE"
	CodeDatabaseError       Code = "DATABASE_ERROR"
	CodeInternal            Code = "INTERNAL"
)

// 领域错误到错误码的映射
var codeMappings = []struct {
	err  error
	code Code
}{
	{domain.ErrSessionNotFound, CodeSessionNotFound},
	{domain.ErrAppLoadFailed, CodeAppLoadFailed},
	{domain.ErrDevToolsUnreachable, CodeDevToolsUnreachable},
	{domain.ErrDatabaseNotInitialized, CodeDatabaseError},
}

// CodeOf 返回错误对应的错误码，显式包装的错误码优先
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	for _, m := range codeMappings {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return CodeInternal
}
