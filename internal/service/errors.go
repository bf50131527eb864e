package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// 错误分类。具体错误通过 %w 包装其中之一，handler 只按分类映射状态码。
var (
	ErrValidation = errors.New("validation failed")
	ErrPermission = errors.New("permission denied")
	ErrNotFound   = errors.New("not found")
	// ErrConflict 仅在内部使用：唯一约束冲突在幂等路径上被当作成功吞掉。
	ErrConflict   = errors.New("conflict")
	ErrDependency = errors.New("dependency failure")
)

var (
	ErrWishNotFound      = fmt.Errorf("wish %w", ErrNotFound)
	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)
	ErrGroupNotFound     = fmt.Errorf("group %w", ErrNotFound)
	ErrCandidateNotFound = fmt.Errorf("schedule candidate %w", ErrNotFound)
	ErrEventNotFound     = fmt.Errorf("event %w", ErrNotFound)

	ErrEmptyTitle        = fmt.Errorf("%w: title is required", ErrValidation)
	ErrUnknownCreator    = fmt.Errorf("%w: creator is not a registered user", ErrValidation)
	ErrNoCandidates      = fmt.Errorf("%w: at least one candidate date is required", ErrValidation)
	ErrInvalidVote       = fmt.Errorf("%w: unrecognized availability", ErrValidation)
	ErrInvalidResponse   = fmt.Errorf("%w: unrecognized response", ErrValidation)
	ErrInvalidTransition = fmt.Errorf("%w: transition not allowed in current phase", ErrValidation)
	ErrDateRequired      = fmt.Errorf("%w: wish has no start date", ErrValidation)
	ErrNotACandidate     = fmt.Errorf("%w: date is not one of the poll candidates", ErrValidation)

	ErrNotCreator   = fmt.Errorf("%w: only the creator may change this wish", ErrPermission)
	ErrWishLocked   = fmt.Errorf("%w: wish can no longer be edited", ErrPermission)
	ErrNotOrganizer = fmt.Errorf("%w: only the organizer may close this event", ErrPermission)
)

// dependency 把存储或外部调用的错误标记为 ErrDependency，保留原始错误链。
func dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDependency, err)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct 执行 validate 标签检查，并把失败字段转换为 ErrValidation。
func validateStruct(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(parts, ", "))
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}
