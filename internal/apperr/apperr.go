package apperr

import (
	"errors"
	"fmt"
)

// Kind: класс ошибки, по которому транспортный слой выбирает статус ответа.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindVersionConflict Kind = "version_conflict"
	KindForbidden       Kind = "forbidden"
)

// Стабильные коды ошибок для клиентов (UI, IVR, публичная страница оффера).
const (
	CodeSlotTaken               = "SLOT_TAKEN"
	CodeNoSlots                 = "NO_SLOTS"
	CodeVersionConflict         = "VERSION_CONFLICT"
	CodeInvalidTransition       = "INVALID_TRANSITION"
	CodeHoldExpired             = "HOLD_EXPIRED"
	CodeLockActive              = "LOCK_ACTIVE"
	CodePlanStale               = "PLAN_STALE"
	CodeOfferNotFound           = "OFFER_NOT_FOUND"
	CodeNotFound                = "NOT_FOUND"
	CodeQuestionnaireIncomplete = "QUESTIONNAIRE_INCOMPLETE"
	CodeOfferAttemptsExhausted  = "OFFER_ATTEMPTS_EXHAUSTED"
	CodeInvalidWindow           = "INVALID_WINDOW"
	CodeMissingLink             = "MISSING_LINK"
	CodeInvalidArgument         = "INVALID_ARGUMENT"
	CodeForbiddenLockLevel      = "FORBIDDEN_LOCK_LEVEL"
	CodeRateLimited             = "RATE_LIMITED"
)

// Error: доменная ошибка со стабильным кодом.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Validation(code, msg string) *Error { return New(KindValidation, code, msg) }

func NotFound(code, msg string) *Error { return New(KindNotFound, code, msg) }

func Conflict(code, msg string) *Error { return New(KindConflict, code, msg) }

func Forbidden(code, msg string) *Error { return New(KindForbidden, code, msg) }

// VersionConflict возвращается при несовпадении ожидаемого row_version.
func VersionConflict(entity string) *Error {
	return New(KindVersionConflict, CodeVersionConflict, entity+" was modified concurrently")
}

// Wrap прикрепляет причину к доменной ошибке.
func Wrap(e *Error, err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// As достаёт *Error из цепочки.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf возвращает класс ошибки или пустую строку для инфраструктурных ошибок.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// CodeOf возвращает стабильный код или пустую строку.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// IsConflict истинно и для обычного конфликта, и для конфликта версий.
func IsConflict(err error) bool {
	k := KindOf(err)
	return k == KindConflict || k == KindVersionConflict
}

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
