package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies configuration failures independently of the concrete error value.
type ErrorKind string

const (
	// KindMalformedInput marks input that is empty or cannot be parsed.
	KindMalformedInput ErrorKind = "MALFORMED_INPUT"
	// KindMissingField marks a required field that was not supplied.
	KindMissingField ErrorKind = "MISSING_FIELD"
	// KindConflictingSerializer marks a configuration holding both a custom serializer and serializer options.
	KindConflictingSerializer ErrorKind = "CONFLICTING_SERIALIZER_CONFIGURATION"
	// KindInvalidHandlerChain marks a custom request handler that is already linked to a successor.
	KindInvalidHandlerChain ErrorKind = "INVALID_HANDLER_CHAIN"
	// KindInvalidArgument marks a nil or otherwise unusable argument.
	KindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
)

// Sentinel errors, one per kind. ConfigError unwraps to these so callers can use errors.Is.
var (
	ErrMalformedInput        = errors.New("malformed input")
	ErrMissingField          = errors.New("missing required field")
	ErrConflictingSerializer = errors.New("custom serializer and serializer options are mutually exclusive")
	ErrInvalidHandlerChain   = errors.New("invalid handler chain")
	ErrInvalidArgument       = errors.New("invalid argument")
)

// ErrMissingEndpoint is reported when a build has no account endpoint on any input path.
var ErrMissingEndpoint = &ConfigError{
	Kind:    KindMissingField,
	Field:   "AccountEndpoint",
	Message: "account endpoint is required",
}

var kindSentinels = map[ErrorKind]error{
	KindMalformedInput:        ErrMalformedInput,
	KindMissingField:          ErrMissingField,
	KindConflictingSerializer: ErrConflictingSerializer,
	KindInvalidHandlerChain:   ErrInvalidHandlerChain,
	KindInvalidArgument:       ErrInvalidArgument,
}

// ConfigError wraps configuration failures with the offending field and its kind.
type ConfigError struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

// NewConfigError builds a ConfigError of the given kind.
func NewConfigError(kind ErrorKind, field, format string, args ...any) *ConfigError {
	return &ConfigError{
		Kind:    kind,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.sentinel().Error()
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and any underlying cause.
func (e *ConfigError) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *ConfigError) sentinel() error {
	if s, ok := kindSentinels[e.Kind]; ok {
		return s
	}
	return ErrInvalidArgument
}

// KindOf reports the kind of the first ConfigError in err's chain, or "" when there is none.
func KindOf(err error) ErrorKind {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
