package errors

import "errors"

var (
	ErrNotFound                 = errors.New("not found")
	ErrInvalid                  = errors.New("invalid")
	ErrConflict                 = errors.New("conflict")
	ErrTooMany                  = errors.New("too many requests")
	ErrUnavailable              = errors.New("ai unavailable")
	ErrMissingParameter         = errors.New("missing parameter")
	ErrLLMResponseMalformed     = errors.New("llm response malformed")
	ErrVerificationInputMissing = errors.New("verification input missing")
	ErrTaskSetup                = errors.New("task setup failed")
	ErrEmptyDocument            = errors.New("document yields no segments")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
