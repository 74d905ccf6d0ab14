package errdefs

import "errors"

type ErrorType int

const (
	ErrTypeGeneric ErrorType = iota
	ErrTypeFetch
	ErrTypeLocalStatus
	ErrTypeInstall
	ErrTypeActivate
	ErrTypeMalformedRecord
	ErrTypeBusy
	ErrTypeNotFound
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeFetch:
		return "fetch"
	case ErrTypeLocalStatus:
		return "local_status"
	case ErrTypeInstall:
		return "install"
	case ErrTypeActivate:
		return "activate"
	case ErrTypeMalformedRecord:
		return "malformed_record"
	case ErrTypeBusy:
		return "busy"
	case ErrTypeNotFound:
		return "not_found"
	default:
		return "generic"
	}
}

// CustomError carries a user-facing Message and, optionally, the underlying
// cause. Two CustomErrors match under errors.Is when their types are equal.
type CustomError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *CustomError) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Type.String() + " error"
}

func (e *CustomError) Unwrap() error { return e.Err }

func (e *CustomError) Is(target error) bool {
	var t *CustomError
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

func NewCustomError(errType ErrorType, message string) error {
	return &CustomError{
		Type:    errType,
		Message: message,
	}
}

func Wrap(errType ErrorType, message string, err error) error {
	return &CustomError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

func NewFetchError(message string, err error) error       { return Wrap(ErrTypeFetch, message, err) }
func NewLocalStatusError(message string, err error) error { return Wrap(ErrTypeLocalStatus, message, err) }
func NewInstallError(message string, err error) error     { return Wrap(ErrTypeInstall, message, err) }
func NewActivateError(message string, err error) error    { return Wrap(ErrTypeActivate, message, err) }

var (
	ErrFetch           = NewCustomError(ErrTypeFetch, "catalog unavailable")
	ErrLocalStatus     = NewCustomError(ErrTypeLocalStatus, "local plugin status unavailable")
	ErrInstall         = NewCustomError(ErrTypeInstall, "installation failed")
	ErrActivate        = NewCustomError(ErrTypeActivate, "activation failed")
	ErrMalformedRecord = NewCustomError(ErrTypeMalformedRecord, "catalog entry has no identifier")
	ErrBusy            = NewCustomError(ErrTypeBusy, "an action is already running for this plugin")
	ErrNotFound        = NewCustomError(ErrTypeNotFound, "plugin not found")
)

// ServerMessage is implemented by errors that carry a message produced by the
// remote server, e.g. a WordPress REST error body.
type ServerMessage interface {
	ServerMessage() string
}

// UserMessage returns the server-provided message found anywhere in err's
// chain, or fallback when there is none.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var sm ServerMessage
	if errors.As(err, &sm) {
		if msg := sm.ServerMessage(); msg != "" {
			return msg
		}
	}
	return fallback
}
