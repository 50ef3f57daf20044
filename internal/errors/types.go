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
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes for the content pipeline.
const (
	ErrCodeRootUnreadable  = "ERR_ROOT_UNREADABLE"
	ErrCodeFileUnreadable  = "ERR_FILE_UNREADABLE"
	ErrCodeFrontMatter     = "ERR_FRONT_MATTER"
	ErrCodeRender          = "ERR_RENDER"
	ErrCodeDuplicateSlug   = "ERR_DUPLICATE_SLUG"
	ErrCodeWatchClosed     = "ERR_WATCH_CLOSED"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodeInternalError   = "ERR_INTERNAL"
	ErrCodeJournalFailure  = "ERR_JOURNAL"
	ErrCodeSearchFailure   = "ERR_SEARCH"
	ErrCodeSnapshotMissing = "ERR_SNAPSHOT_MISSING"
)

// QuireError is a structured error type with context.
type QuireError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	FilePath    string
	Line        int
	Recoverable bool
}

// Error implements the error interface.
func (e *QuireError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *QuireError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code so sentinel values work with errors.Is.
func (e *QuireError) Is(target error) bool {
	var t *QuireError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *QuireError) WithContext(key string, value interface{}) *QuireError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *QuireError) WithLocation(filePath string, line int) *QuireError {
	e.FilePath = filePath
	e.Line = line

	return e
}

// WithComponent adds component context.
func (e *QuireError) WithComponent(component string) *QuireError {
	e.Component = component

	return e
}

// Sentinels for errors.Is checks.
var (
	ErrRootUnreadable = &QuireError{Type: ErrorTypeIO, Code: ErrCodeRootUnreadable}
	ErrFileUnreadable = &QuireError{Type: ErrorTypeIO, Code: ErrCodeFileUnreadable}
	ErrFrontMatter    = &QuireError{Type: ErrorTypeValidation, Code: ErrCodeFrontMatter}
	ErrRender         = &QuireError{Type: ErrorTypeBuild, Code: ErrCodeRender}
	ErrDuplicateSlug  = &QuireError{Type: ErrorTypeValidation, Code: ErrCodeDuplicateSlug}
	ErrWatchClosed    = &QuireError{Type: ErrorTypeInternal, Code: ErrCodeWatchClosed}
	ErrConfigInvalid  = &QuireError{Type: ErrorTypeConfig, Code: ErrCodeConfigInvalid}
)

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *QuireError {
	return &QuireError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *QuireError {
	return &QuireError{
		Type:        ErrorTypeBuild,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *QuireError {
	return &QuireError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *QuireError {
	return &QuireError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *QuireError {
	return &QuireError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// RootUnreadable reports that the content root could not be enumerated.
// It aborts the reload that hit it and nothing else.
func RootUnreadable(root string, cause error) *QuireError {
	return NewIOError(ErrCodeRootUnreadable, "content root unreadable", cause).
		WithLocation(root, 0)
}

// FileUnreadable reports a single source file that could not be read.
func FileUnreadable(path string, cause error) *QuireError {
	err := NewIOError(ErrCodeFileUnreadable, "file unreadable", cause).WithLocation(path, 0)
	err.Recoverable = true

	return err
}

// FrontMatterMalformed reports a metadata problem in one file.
func FrontMatterMalformed(path, message string, cause error) *QuireError {
	err := NewValidationError(ErrCodeFrontMatter, message).WithLocation(path, 0)
	err.Cause = cause

	return err
}

// RenderFailure reports a markdown conversion failure for one file.
func RenderFailure(path string, cause error) *QuireError {
	return NewBuildError(ErrCodeRender, "markdown render failed", cause).WithLocation(path, 0)
}

// DuplicateSlug reports a slug collision; the first path keeps the slug.
func DuplicateSlug(slug, kept, dropped string) *QuireError {
	return NewValidationError(ErrCodeDuplicateSlug, "duplicate slug "+slug).
		WithLocation(dropped, 0).
		WithContext("slug", slug).
		WithContext("kept", kept)
}

// WatchChannelClosed reports that filesystem notifications stopped arriving.
func WatchChannelClosed(cause error) *QuireError {
	err := NewInternalError(ErrCodeWatchClosed, "watch channel closed", cause)
	err.Recoverable = true

	return err
}

// SnapshotMissing reports a read before the first snapshot was published.
func SnapshotMissing() *QuireError {
	err := NewInternalError(ErrCodeSnapshotMissing, "content not loaded yet", nil)
	err.Recoverable = true

	return err
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var te *QuireError
	if errors.As(err, &te) {
		return te.Recoverable
	}

	return false
}

// CodeOf returns the error code carried by err, or "" when it has none.
func CodeOf(err error) string {
	var te *QuireError
	if errors.As(err, &te) {
		return te.Code
	}

	return ""
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at a level matching its type.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var te *QuireError
	if !errors.As(err, &te) {
		h.logger.Error(ctx, err, "Unhandled error occurred")

		return
	}

	switch te.Type {
	case ErrorTypeBuild, ErrorTypeValidation:
		h.logger.Warn(ctx, err, "Content error",
			"type", te.Type,
			"code", te.Code,
			"file", te.FilePath)
	case ErrorTypeIO:
		if te.Recoverable {
			h.logger.Warn(ctx, err, "File error",
				"code", te.Code,
				"file", te.FilePath)

			return
		}
		h.logger.Error(ctx, err, "I/O error occurred",
			"code", te.Code,
			"path", te.FilePath)
	default:
		h.logger.Error(ctx, err, "Error occurred",
			"type", te.Type,
			"code", te.Code,
			"component", te.Component)
	}
}
