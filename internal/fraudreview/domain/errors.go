package domain

import (
	"errors"
	"fmt"
)

// 错误类别哨兵，可配合 errors.Is 使用
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrAssessorUnavailable = errors.New("risk assessor unavailable")
	// ErrCounterBusy 对账期间计数器有写入进行，本次覆盖被放弃
	ErrCounterBusy = errors.New("report counter busy")
)

// ValidationError 请求字段校验失败
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError 构造字段校验错误
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError 交易不存在
type NotFoundError struct {
	TransactionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("transaction %s not found", e.TransactionID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidTransitionError 当前状态不允许该审核动作
type InvalidTransitionError struct {
	From   Status
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("action %q is not allowed from status %s", e.Action, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ConcurrencyConflictError 交易在读取后已被其他审核员修改
type ConcurrencyConflictError struct {
	TransactionID string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("transaction %s was modified concurrently", e.TransactionID)
}

func (e *ConcurrencyConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

// AssessorUnavailableError 风险评估服务不可用或返回非法结果
type AssessorUnavailableError struct {
	Cause error
}

func (e *AssessorUnavailableError) Error() string {
	if e.Cause == nil {
		return "risk assessment unavailable"
	}
	return "risk assessment unavailable: " + e.Cause.Error()
}

func (e *AssessorUnavailableError) Unwrap() error { return e.Cause }

func (e *AssessorUnavailableError) Is(target error) bool { return target == ErrAssessorUnavailable }

// IsValidation 判断错误链中是否包含 ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound 判断错误链中是否包含 NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsInvalidTransition 判断错误链中是否包含 InvalidTransitionError
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// IsConcurrencyConflict 判断错误链中是否包含 ConcurrencyConflictError
func IsConcurrencyConflict(err error) bool {
	var target *ConcurrencyConflictError
	return errors.As(err, &target)
}

// IsAssessorUnavailable 判断错误链中是否包含 AssessorUnavailableError
func IsAssessorUnavailable(err error) bool {
	var target *AssessorUnavailableError
	return errors.As(err, &target)
}

// IsRetryable 重新读取交易后可再次尝试的错误
func IsRetryable(err error) bool {
	return IsInvalidTransition(err) || IsConcurrencyConflict(err)
}
