// Package errors provides structured error handling for Skiff.
//
// Model-side errors mirror scikit-learn's exception taxonomy (not fitted,
// dimension mismatch, bad values), while platform-side errors cover the
// lifecycle of training jobs, endpoints and stored objects. All constructors
// attach a stack trace via cockroachdb/errors.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Model errors
//
// ===========================================================================

// NotFittedError is returned when Predict or Transform is called on a model
// that has not been fitted.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("skiff: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stack trace.
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError is returned when input data does not have the expected shape.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("skiff: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError is returned when a parameter fails validation.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("skiff: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError creates a ValidationError with a stack trace.
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError is returned when an argument has an inappropriate value.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("skiff: %s: %s", e.Op, e.Message)
}

// NewValueError creates a ValueError with a stack trace.
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError is a general error concerning a machine learning model.
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("skiff: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("skiff: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError creates a ModelError with a stack trace.
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// ===========================================================================
//
//	Platform errors
//
// ===========================================================================

// NotFoundError is returned when a stored object, training job or endpoint
// does not exist.
type NotFoundError struct {
	Resource string // "blob", "training job", "endpoint", ...
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("skiff: %s %q not found", e.Resource, e.Name)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *NotFoundError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("resource", e.Resource).
		Str("name", e.Name).
		Str("type", "NotFoundError")
}

// NewNotFoundError creates a NotFoundError with a stack trace.
func NewNotFoundError(resource, name string) error {
	err := &NotFoundError{Resource: resource, Name: name}
	return errors.WithStack(err)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// JobFailedError is returned when a training job ends in a terminal failure.
type JobFailedError struct {
	JobName       string
	FailureReason string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("skiff: training job %q failed: %s", e.JobName, e.FailureReason)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *JobFailedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("job_name", e.JobName).
		Str("failure_reason", e.FailureReason).
		Str("type", "JobFailedError")
}

// NewJobFailedError creates a JobFailedError with a stack trace.
func NewJobFailedError(jobName, reason string) error {
	err := &JobFailedError{JobName: jobName, FailureReason: reason}
	return errors.WithStack(err)
}

// EndpointNotReadyError is returned when an endpoint is invoked or deleted
// while it is not in service.
type EndpointNotReadyError struct {
	EndpointName string
	Status       string
}

func (e *EndpointNotReadyError) Error() string {
	return fmt.Sprintf("skiff: endpoint %q is not in service (status: %s)", e.EndpointName, e.Status)
}

// NewEndpointNotReadyError creates an EndpointNotReadyError with a stack trace.
func NewEndpointNotReadyError(name, status string) error {
	err := &EndpointNotReadyError{EndpointName: name, Status: status}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors passthroughs
//
// ===========================================================================

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates err with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Common error values
//
// ===========================================================================

var (
	// ErrEmptyData is returned when empty data is passed.
	ErrEmptyData = New("empty data")

	// ErrJobAlreadyExists is returned when a training job name is reused.
	ErrJobAlreadyExists = New("training job already exists")

	// ErrEndpointAlreadyExists is returned when an endpoint name is reused.
	ErrEndpointAlreadyExists = New("endpoint already exists")
)
