package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 统一错误码，用于对齐 HTTP 状态、可重试性与降级策略。
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 参数/格式错误
	ErrRateLimited        ErrorCode = "RATE_LIMITED"        // 上游或本地限流
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"    // 上游超时
	ErrConnectionError    ErrorCode = "CONNECTION_ERROR"    // 网络连接失败
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"      // 上游其他错误（不可重试）
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE" // 重试耗尽后的重分类
	ErrStorageError       ErrorCode = "STORAGE_ERROR"       // 存储后端错误
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"        // 认证失败
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"      // 内部错误
)

// Error 结构化错误，携带错误码、HTTP 状态与可重试标记。
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError 创建结构化错误
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause 附加底层错误
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus 设置 HTTP 状态码
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable 标记可重试性
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// AsError 从错误链中提取结构化错误
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetErrorCode 从错误中提取错误码
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransient 判断是否为可被重试层吸收的瞬时上游错误。
// 集合固定为 {限流, 超时, 连接失败}，其余错误直接向上传播。
func IsTransient(err error) bool {
	switch GetErrorCode(err) {
	case ErrRateLimited, ErrUpstreamTimeout, ErrConnectionError:
		return true
	default:
		return false
	}
}

// HTTPStatusFor 返回错误码对应的 HTTP 状态码
func HTTPStatusFor(code ErrorCode) int {
	switch code {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrUpstreamTimeout:
		return http.StatusGatewayTimeout
	case ErrConnectionError, ErrUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
