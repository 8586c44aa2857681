// Package errhandling provides the error taxonomy of the cleaning stage and
// helpers to classify the underlying causes reported by artifact backends.
//
// Every failure of a run is wrapped in a StageError whose Category says which
// step failed (argument, download, parse, upload). None of them are recovered
// locally: they propagate to the CLI, which exits non-zero.
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
)

// ErrorCategory represents the step of the run that failed.
type ErrorCategory string

// Stage error categories.
const (
	// CategoryArgument is a missing or malformed CLI input, detected before any I/O.
	CategoryArgument ErrorCategory = "argument"

	// CategoryDownload is an input artifact that could not be resolved or transferred.
	CategoryDownload ErrorCategory = "download"

	// CategoryParse is malformed tabular data or a dataset missing a required column.
	CategoryParse ErrorCategory = "parse"

	// CategoryUpload is a publish or durability-confirmation failure.
	CategoryUpload ErrorCategory = "upload"

	// CategoryUnknown is anything not produced by this package.
	CategoryUnknown ErrorCategory = "unknown"
)

// Error codes carried by StageError.
const (
	CodeInvalidArgument       = "INVALID_ARGUMENT"
	CodeArtifactNotFound      = "ARTIFACT_NOT_FOUND"
	CodeDownloadFailed        = "DOWNLOAD_FAILED"
	CodeParseFailed           = "PARSE_FAILED"
	CodeSchemaMismatch        = "SCHEMA_MISMATCH"
	CodeWriteFailed           = "WRITE_FAILED"
	CodeUploadFailed          = "UPLOAD_FAILED"
	CodeDurabilityUnconfirmed = "DURABILITY_UNCONFIRMED"
)

// ErrNotFound is the root of every "does not exist" error raised by the
// artifact store, so callers can test for it without importing backends.
var ErrNotFound = errors.New("not found")

// StageError is a failure of one step of the cleaning run.
type StageError struct {
	// Category is the failing step.
	Category ErrorCategory

	// Code is a stable machine-readable code (see the Code constants).
	Code string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Category, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As.
func (e *StageError) Unwrap() error {
	return e.Err
}

// NewArgumentError reports an invalid command-line input.
func NewArgumentError(message string, err error) *StageError {
	return &StageError{Category: CategoryArgument, Code: CodeInvalidArgument, Message: message, Err: err}
}

// NewDownloadError reports a failure to resolve or fetch the input artifact.
// Causes that wrap ErrNotFound get the ARTIFACT_NOT_FOUND code.
func NewDownloadError(message string, err error) *StageError {
	code := CodeDownloadFailed
	if errors.Is(err, ErrNotFound) {
		code = CodeArtifactNotFound
	}
	return &StageError{Category: CategoryDownload, Code: code, Message: message, Err: err}
}

// NewParseError reports malformed tabular data.
func NewParseError(message string, err error) *StageError {
	return &StageError{Category: CategoryParse, Code: CodeParseFailed, Message: message, Err: err}
}

// NewSchemaError reports a dataset that lacks a column the filters need.
func NewSchemaError(column string) *StageError {
	return &StageError{
		Category: CategoryParse,
		Code:     CodeSchemaMismatch,
		Message:  fmt.Sprintf("required column %q not found", column),
	}
}

// NewUploadError reports a failure to write or publish the output artifact.
func NewUploadError(code, message string, err error) *StageError {
	if code == "" {
		code = CodeUploadFailed
	}
	return &StageError{Category: CategoryUpload, Code: code, Message: message, Err: err}
}

// GetErrorCategory returns the category of the outermost StageError in err's chain.
func GetErrorCategory(err error) ErrorCategory {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Category
	}
	return CategoryUnknown
}

// GetErrorCode returns the code of the outermost StageError in err's chain.
func GetErrorCode(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Code
	}
	return ""
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category ErrorCategory) bool {
	return err != nil && GetErrorCategory(err) == category
}

// CauseKind describes what went wrong underneath a StageError. It is only
// used to enrich log lines.
type CauseKind string

// Cause kinds.
const (
	CauseNotFound       CauseKind = "not_found"
	CauseNetwork        CauseKind = "network"
	CauseAuthentication CauseKind = "authentication"
	CauseCanceled       CauseKind = "canceled"
	CauseTimeout        CauseKind = "timeout"
	CauseFilesystem     CauseKind = "filesystem"
	CauseUnknown        CauseKind = "unknown"
)

// apiError matches the error-code interface of AWS SDK API errors.
type apiError interface {
	ErrorCode() string
}

// httpStatusError matches transport errors exposing an HTTP status.
type httpStatusError interface {
	HTTPStatusCode() int
}

// ClassifyCause inspects the chain of err and returns the most specific cause.
//
// Classification rules:
//   - ErrNotFound, os.ErrNotExist, HTTP 404: not_found
//   - context.Canceled: canceled; context.DeadlineExceeded: timeout
//   - AccessDenied-style API codes, HTTP 401/403: authentication
//   - net.OpError, net.DNSError, url.Error: network
//   - *os.PathError: filesystem
func ClassifyCause(err error) CauseKind {
	if err == nil {
		return CauseUnknown
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, os.ErrNotExist):
		return CauseNotFound
	case errors.Is(err, context.Canceled):
		return CauseCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return CauseTimeout
	}

	var api apiError
	if errors.As(err, &api) {
		switch api.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return CauseNotFound
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return CauseAuthentication
		}
	}

	var status httpStatusError
	if errors.As(err, &status) {
		switch status.HTTPStatusCode() {
		case 404:
			return CauseNotFound
		case 401, 403:
			return CauseAuthentication
		}
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	var urlErr *url.Error
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.As(err, &urlErr) {
		return CauseNetwork
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return CauseFilesystem
	}

	return CauseUnknown
}
