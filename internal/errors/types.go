package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeDeclaration ErrorType = "declaration"
	ErrorTypeInjection   ErrorType = "injection"
	ErrorTypeBehavior    ErrorType = "behavior"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeSecurity    ErrorType = "security"
	ErrorTypeIO          ErrorType = "io"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeInternal    ErrorType = "internal"
)

// ShrootError is a structured error type with context.
type ShrootError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	FilePath    string
	Recoverable bool
}

// Error implements the error interface.
func (e *ShrootError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}
	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

// Unwrap returns the underlying cause error.
func (e *ShrootError) Unwrap() error {
	return e.Cause
}

// Is matches another ShrootError with the same type and code.
func (e *ShrootError) Is(target error) bool {
	var t *ShrootError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// WithContext adds context information to the error.
func (e *ShrootError) WithContext(key string, value interface{}) *ShrootError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithFile records the page the error relates to.
func (e *ShrootError) WithFile(filePath string) *ShrootError {
	e.FilePath = filePath
	return e
}

// WithComponent adds the component type the error relates to.
func (e *ShrootError) WithComponent(component string) *ShrootError {
	e.Component = component
	return e
}

// NewDeclarationError creates an error for a declaration that could not be
// turned into a template.
func NewDeclarationError(code, message string) *ShrootError {
	return &ShrootError{
		Type:        ErrorTypeDeclaration,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewInjectionError creates an error for an element that could not receive
// its template.
func NewInjectionError(code, message string, cause error) *ShrootError {
	return &ShrootError{
		Type:        ErrorTypeInjection,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewBehaviorError creates a behavior loading or execution error.
func NewBehaviorError(code, message string, cause error) *ShrootError {
	return &ShrootError{
		Type:        ErrorTypeBehavior,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *ShrootError {
	return &ShrootError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewSecurityError creates a security error.
func NewSecurityError(code, message string) *ShrootError {
	return &ShrootError{
		Type:    ErrorTypeSecurity,
		Code:    code,
		Message: message,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *ShrootError {
	return &ShrootError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *ShrootError {
	return &ShrootError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *ShrootError {
	return &ShrootError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var se *ShrootError
	if errors.As(err, &se) {
		return se.Recoverable
	}
	return false
}

// IsType reports whether err is a ShrootError of the given type.
func IsType(err error, t ErrorType) bool {
	var se *ShrootError
	if errors.As(err, &se) {
		return se.Type == t
	}
	return false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger   Logger
	notifier Notifier
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// Notifier interface for error notifications.
type Notifier interface {
	NotifyError(ctx context.Context, err *ShrootError) error
}

// NewErrorHandler creates a new error handler. Either argument may be nil.
func NewErrorHandler(logger Logger, notifier Notifier) *ErrorHandler {
	return &ErrorHandler{
		logger:   logger,
		notifier: notifier,
	}
}

// Handle logs err according to its type and forwards structured errors to
// the notifier.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	var se *ShrootError
	if errors.As(err, &se) {
		h.handleShrootError(ctx, se)
	} else if h.logger != nil {
		h.logger.Error(ctx, err, "Unhandled error occurred")
	}
}

func (h *ErrorHandler) handleShrootError(ctx context.Context, err *ShrootError) {
	if h.logger != nil {
		fields := []interface{}{
			"type", string(err.Type),
			"code", err.Code,
		}
		if err.Component != "" {
			fields = append(fields, "component", err.Component)
		}
		if err.FilePath != "" {
			fields = append(fields, "file", err.FilePath)
		}

		switch err.Type {
		case ErrorTypeDeclaration, ErrorTypeInjection, ErrorTypeBehavior, ErrorTypeValidation:
			h.logger.Warn(ctx, err, string(err.Type)+" error occurred", fields...)
		default:
			h.logger.Error(ctx, err, string(err.Type)+" error occurred", fields...)
		}
	}

	if h.notifier != nil {
		_ = h.notifier.NotifyError(ctx, err)
	}
}

// Common error codes.
const (
	ErrCodeMalformedDeclaration = "ERR_MALFORMED_DECLARATION"
	ErrCodeUnsupportedHost      = "ERR_UNSUPPORTED_HOST"
	ErrCodeInjectionFailed      = "ERR_INJECTION_FAILED"
	ErrCodeBehaviorLoad         = "ERR_BEHAVIOR_LOAD"
	ErrCodeBehaviorPanic        = "ERR_BEHAVIOR_PANIC"
	ErrCodeBehaviorFailed       = "ERR_BEHAVIOR_FAILED"
	ErrCodeDuplicateDefinition  = "ERR_DUPLICATE_DEFINITION"
	ErrCodeInvalidName          = "ERR_INVALID_NAME"
	ErrCodePageNotFound         = "ERR_PAGE_NOT_FOUND"
	ErrCodeInvalidPath          = "ERR_INVALID_PATH"
	ErrCodePathTraversal        = "ERR_PATH_TRAVERSAL"
	ErrCodeConfigInvalid        = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound         = "ERR_FILE_NOT_FOUND"
	ErrCodeInternalError        = "ERR_INTERNAL"
	ErrCodeValidationFailed     = "ERR_VALIDATION_FAILED"
)

// FieldValidationError reports one invalid configuration field.
type FieldValidationError struct {
	FieldName    string
	FieldValue   interface{}
	ErrorMessage string
	HelpText     []string
}

// Error implements the error interface.
func (fve *FieldValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", fve.FieldName, fve.ErrorMessage)
}

// NewFieldValidationError creates a new field validation error.
func NewFieldValidationError(field string, value interface{}, message string, suggestions ...string) *FieldValidationError {
	return &FieldValidationError{
		FieldName:    field,
		FieldValue:   value,
		ErrorMessage: message,
		HelpText:     suggestions,
	}
}

// ValidationErrorCollection represents a collection of validation errors.
type ValidationErrorCollection struct {
	Errors []*FieldValidationError
}

// Error implements the error interface.
func (vec *ValidationErrorCollection) Error() string {
	switch len(vec.Errors) {
	case 0:
		return "no validation errors"
	case 1:
		return vec.Errors[0].Error()
	default:
		return fmt.Sprintf("validation failed with %d errors", len(vec.Errors))
	}
}

// AddField adds a field validation error to the collection.
func (vec *ValidationErrorCollection) AddField(field string, value interface{}, message string, suggestions ...string) {
	vec.Errors = append(vec.Errors, NewFieldValidationError(field, value, message, suggestions...))
}

// HasErrors returns true if there are any validation errors.
func (vec *ValidationErrorCollection) HasErrors() bool {
	return len(vec.Errors) > 0
}

// ToShrootError converts the collection to a single validation error, or
// nil when it is empty.
func (vec *ValidationErrorCollection) ToShrootError() *ShrootError {
	if !vec.HasErrors() {
		return nil
	}

	messages := make([]string, 0, len(vec.Errors))
	context := make(map[string]interface{}, len(vec.Errors))
	for _, err := range vec.Errors {
		messages = append(messages, err.Error())
		context[err.FieldName] = map[string]interface{}{
			"value":       err.FieldValue,
			"suggestions": err.HelpText,
		}
	}

	return &ShrootError{
		Type:        ErrorTypeValidation,
		Code:        ErrCodeValidationFailed,
		Message:     strings.Join(messages, "; "),
		Context:     context,
		Recoverable: true,
	}
}

// ErrUnsupportedHost reports an element that cannot host a rendering scope.
func ErrUnsupportedHost(tag string, cause error) *ShrootError {
	return NewInjectionError(ErrCodeUnsupportedHost, "element cannot host a shadow root: <"+tag+">", cause).
		WithComponent(tag)
}

// ErrBehaviorLoad reports a behavior module that failed to load.
func ErrBehaviorLoad(typeID, ref string, cause error) *ShrootError {
	return NewBehaviorError(ErrCodeBehaviorLoad, "failed to load behavior "+ref, cause).
		WithComponent(typeID)
}

// ErrPageNotFound reports an unknown page name.
func ErrPageNotFound(name string) *ShrootError {
	return NewValidationError(ErrCodePageNotFound, "page not found: "+name).WithContext("page", name)
}

// ErrPathTraversal creates a path traversal security error.
func ErrPathTraversal(path string) *ShrootError {
	return NewSecurityError(ErrCodePathTraversal, "path traversal attempt: "+path)
}
