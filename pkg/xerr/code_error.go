package xerr

import (
	"errors"
	"fmt"
)

// CodeError 自定义错误结构
//
// 预定义的 CodeError 作为哨兵使用；Wrap 派生出的错误保留哨兵身份（errors.Is 成立），
// 同时携带底层 cause（errors.Unwrap 可取出）。
type CodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`

	base  *CodeError
	cause error
}

// Error 实现 error 接口
func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("Code: %d, Message: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("Code: %d, Message: %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *CodeError) Unwrap() error {
	return e.cause
}

// Is 派生错误与其哨兵视为同一类
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	if !ok {
		return false
	}
	return e == t || (e.base != nil && e.base == t)
}

// New 创建新的 CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Message: msg}
}

// Wrap 基于哨兵错误包装一个底层错误
func Wrap(base *CodeError, cause error) *CodeError {
	root := base
	if base.base != nil {
		root = base.base
	}
	return &CodeError{Code: base.Code, Message: base.Message, base: root, cause: cause}
}

// Wrapf 基于哨兵错误附加一段说明
func Wrapf(base *CodeError, format string, args ...any) *CodeError {
	return Wrap(base, fmt.Errorf(format, args...))
}

// CodeOf 取出错误链上的业务码，非 CodeError 视为系统错误
func CodeOf(err error) int {
	if err == nil {
		return OK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return InternalServerError
}

// 常用通用错误码
const (
	OK                  = 200
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
	ServiceUnavailable  = 503
)

// 常用预定义错误
var (
	ErrSuccess     = New(OK, "Success")
	ErrServerError = New(InternalServerError, "系统错误，请联系工作人员")
	ErrParam       = New(BadRequest, "参数错误")
)
