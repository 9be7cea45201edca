package common

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies an AppError. Callers switch on the kind, never on the message.
type Kind string

const (
	KindUnsupportedFormat     Kind = "UNSUPPORTED_FORMAT"
	KindCapabilityUnavailable Kind = "CAPABILITY_UNAVAILABLE"
	KindExtractionTimeout     Kind = "EXTRACTION_TIMEOUT"
	KindInvalidOverride       Kind = "INVALID_OVERRIDE"
	KindInvalidArgument       Kind = "INVALID_ARGUMENT"
	KindUnknownMaterial       Kind = "UNKNOWN_MATERIAL"
	KindNotFound              Kind = "NOT_FOUND"
	KindInternal              Kind = "INTERNAL"
)

// AppError represents application-specific errors.
// Field names the offending input (signal name, argument, capability) when there is one.
type AppError struct {
	Kind    Kind
	Field   string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	msg := string(e.Kind)
	if e.Field != "" {
		msg += " [" + e.Field + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another *AppError by kind, and by field when the target names one.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Field == "" || t.Field == e.Field
}

// Sentinels for errors.Is checks.
var (
	ErrUnsupportedFormat     = &AppError{Kind: KindUnsupportedFormat}
	ErrCapabilityUnavailable = &AppError{Kind: KindCapabilityUnavailable}
	ErrOCRUnavailable        = &AppError{Kind: KindCapabilityUnavailable, Field: CapabilityOCR}
	ErrCADUnavailable        = &AppError{Kind: KindCapabilityUnavailable, Field: CapabilityCAD}
	ErrExtractionTimeout     = &AppError{Kind: KindExtractionTimeout}
	ErrInvalidOverride       = &AppError{Kind: KindInvalidOverride}
	ErrInvalidArgument       = &AppError{Kind: KindInvalidArgument}
	ErrUnknownMaterial       = &AppError{Kind: KindUnknownMaterial}
	ErrNotFound              = &AppError{Kind: KindNotFound}
	ErrInternal              = &AppError{Kind: KindInternal}
)

// Capability names used as the Field of CapabilityUnavailable errors.
const (
	CapabilityOCR = "ocr"
	CapabilityCAD = "cad"
	CapabilityPDF = "pdf"
)

// Error constructors
func NewAppError(kind Kind, field, message string, cause error) *AppError {
	return &AppError{Kind: kind, Field: field, Message: message, Cause: cause}
}

func UnsupportedFormat(filename string) *AppError {
	return NewAppError(KindUnsupportedFormat, "filename", fmt.Sprintf("cannot read %q", filename), nil)
}

func CapabilityUnavailable(capability string, cause error) *AppError {
	return NewAppError(KindCapabilityUnavailable, capability, capability+" backend is not available", cause)
}

func ExtractionTimeout(filename string, cause error) *AppError {
	return NewAppError(KindExtractionTimeout, "filename", fmt.Sprintf("extraction of %q timed out", filename), cause)
}

func InvalidOverride(field, message string) *AppError {
	return NewAppError(KindInvalidOverride, field, message, nil)
}

func InvalidArgument(field, message string) *AppError {
	return NewAppError(KindInvalidArgument, field, message, nil)
}

func UnknownMaterial(material string) *AppError {
	return NewAppError(KindUnknownMaterial, "material", fmt.Sprintf("no rate configured for %q", material), nil)
}

func NotFound(field, id string) *AppError {
	return NewAppError(KindNotFound, field, fmt.Sprintf("%s not found", id), nil)
}

func Internal(message string, cause error) *AppError {
	return NewAppError(KindInternal, "", message, cause)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// KindOf returns the kind of the first AppError in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// ToStatus converts err into a gRPC status error carrying an ErrorInfo detail
// with the kind and field so clients can render an actionable message.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}

	var ae *AppError
	if !errors.As(err, &ae) {
		return InternalError(err.Error())
	}

	var code codes.Code
	switch ae.Kind {
	case KindUnsupportedFormat, KindInvalidOverride, KindInvalidArgument:
		code = codes.InvalidArgument
	case KindUnknownMaterial:
		code = codes.FailedPrecondition
	case KindCapabilityUnavailable:
		code = codes.Unimplemented
	case KindExtractionTimeout:
		code = codes.DeadlineExceeded
	case KindNotFound:
		code = codes.NotFound
	default:
		code = codes.Internal
	}

	st := status.New(code, err.Error())
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(ae.Kind),
		Domain:   "drawing-quotes",
		Metadata: map[string]string{"field": ae.Field},
	})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}
