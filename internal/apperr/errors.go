// Package apperr — таксономия ошибок движка посещаемости и оплат.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — класс, ученик или платёж не существует.
	ErrNotFound = errors.New("not found")
	// ErrNotInRoster — ученик найден, но не записан в этот класс.
	ErrNotInRoster = errors.New("student is not in roster")
	// ErrNoContact — у ученика нет контакта родителя.
	ErrNoContact = errors.New("no guardian contact")
	// ErrForbidden — у оператора нет прав на операцию.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError — входные данные отклонены до обращения к провайдеру.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// ProviderError — сбой внешнего провайдера (таймаут, связь). Op и Key нужны вызывающему
// для собственной политики повторов; сами мы не повторяем.
type ProviderError struct {
	Op  string
	Key string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Key, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Provider оборачивает ошибку провайдера. Доменные ошибки пропускаются как есть.
func Provider(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) {
		return err
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Op: op, Key: key, Err: err}
}

// IsDomain — ошибки, которые показываются пользователю как отдельные состояния.
func IsDomain(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotInRoster) || errors.Is(err, ErrNoContact) ||
		errors.Is(err, ErrForbidden) {
		return true
	}
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// Reason — короткий код причины для отчётов и метрик.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoContact):
		return "NoContact"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrNotInRoster):
		return "NotInRoster"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case IsProvider(err):
		return "ProviderTransient"
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "ValidationError"
	}
	return "SendFailed"
}
