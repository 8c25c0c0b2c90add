package domain

import (
	"errors"
	"fmt"
)

// Kind - машиночитаемый класс ошибки, который видит клиент.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindAuthentication Kind = "authentication_error"
	KindAuthorization  Kind = "authorization_error"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindInternal       Kind = "internal_error"
)

// Error - ошибка с классом и сообщением для пользователя.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает ошибки по классу, поэтому errors.Is(err, ErrNotFound)
// срабатывает для любой not_found ошибки.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation      = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrUnauthenticated = &Error{Kind: KindAuthentication, Message: "authentication required"}
	ErrForbidden       = &Error{Kind: KindAuthorization, Message: "forbidden"}
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict        = &Error{Kind: KindConflict, Message: "conflict"}
	ErrInternal        = &Error{Kind: KindInternal, Message: "internal error"}

	// ErrNotFoundOrUnauthorized не различает отсутствие поста и отсутствие прав,
	// чтобы не раскрывать существование чужих записей.
	ErrNotFoundOrUnauthorized = &Error{Kind: KindNotFound, Message: "post not found or unauthorized"}

	ErrInvalidCredentials = &Error{Kind: KindAuthentication, Message: "invalid credentials"}
	ErrInvalidToken       = &Error{Kind: KindAuthentication, Message: "invalid token"}
	ErrTokenExpired       = &Error{Kind: KindAuthentication, Message: "token expired"}
)

// Validationf создаёт ошибку валидации с сообщением.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf создаёт not_found ошибку с сообщением.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf создаёт ошибку конфликта с сообщением.
func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Forbiddenf создаёт ошибку отказа в доступе с сообщением.
func Forbiddenf(format string, args ...any) error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

// Internal оборачивает неожиданную ошибку.
func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf возвращает класс ошибки; неизвестные ошибки считаются внутренними.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf возвращает сообщение, безопасное для клиента.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return ErrInternal.Message
}
