package donations

import "fmt"

// Kind classifies an error so the handler layer can pick an HTTP status
// without inspecting messages.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindConfiguration         Kind = "configuration"
	KindGateway               Kind = "gateway"
	KindNotFound              Kind = "not_found"
	KindForbidden             Kind = "forbidden"
	KindPreconditionFailed    Kind = "precondition_failed"
	KindUnrecognizedReference Kind = "unrecognized_reference"
	KindInternal              Kind = "internal"
)

// Error is the typed error the donation services return across the
// package boundary. Msg is safe to show to API callers; Err is not.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func errValidation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func errConfiguration(key string) *Error {
	return &Error{Kind: KindConfiguration, Msg: "missing required configuration: " + key}
}

func errGateway(msg string, err error) *Error {
	return &Error{Kind: KindGateway, Msg: msg, Err: err}
}

func errNotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

func errForbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Msg: msg}
}

func errPrecondition(expected, actual string) *Error {
	return &Error{
		Kind: KindPreconditionFailed,
		Msg:  fmt.Sprintf("donation must be in state %q (currently %q)", expected, actual),
	}
}

func errUnrecognizedReference(ref string) *Error {
	return &Error{Kind: KindUnrecognizedReference, Msg: fmt.Sprintf("unrecognized gateway reference %q", ref)}
}

func errInternal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf extracts the Kind from any error, defaulting to internal.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindInternal
}
