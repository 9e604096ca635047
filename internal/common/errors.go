package common

import (
	"errors"
	"fmt"
)

// AppError 带错误码的应用错误
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WrapError 包装底层错误
func WrapError(code, message string, err error) error {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewError 创建新错误
func NewError(code, message string) error {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// CodeOf 返回错误链上最外层 AppError 的错误码，没有时返回 ErrCodeInternal
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode 错误链上任一 AppError 带有该错误码
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

const (
	ErrCodeGitHubAPI        = "GITHUB_API_ERROR"
	ErrCodeDatabase         = "DATABASE_ERROR"
	ErrCodeAIProcessing     = "AI_PROCESSING_ERROR"
	ErrCodeNotification     = "NOTIFICATION_ERROR"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeInsufficientData = "INSUFFICIENT_DATA"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeRunInProgress    = "RUN_IN_PROGRESS"
	ErrCodeInternal         = "INTERNAL_ERROR"
)
