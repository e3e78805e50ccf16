package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("approval request not found")
	ErrAlreadyDecided    = errors.New("approval request already decided")
	ErrInvalidStatus     = errors.New("invalid approval status")
	ErrForwarding        = errors.New("webhook forwarding failed")
	ErrStore             = errors.New("record store failure")
	ErrForwardInProgress = errors.New("forwarding already in progress")
)

// ValidationError перечисляет незаполненные обязательные поля.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: missing required fields: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidStatusError - неизвестный токен статуса.
type InvalidStatusError struct {
	Token string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid approval status %q: expected one of approve, approved, decline, declined", e.Token)
}

func (e *InvalidStatusError) Is(target error) bool { return target == ErrInvalidStatus }

// AlreadyDecidedError несет статус, выставленный победившим решением.
type AlreadyDecidedError struct {
	Status ApprovalStatus
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("approval request already decided (status: %s)", e.Status)
}

func (e *AlreadyDecidedError) Is(target error) bool { return target == ErrAlreadyDecided }

// StoreError оборачивает сбой хранилища, чтобы хендлер отдал 500.
func StoreError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
