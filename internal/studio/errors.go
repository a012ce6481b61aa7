package studio

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/mythos-studio/pkg/log"
)

type ErrorType int

const (
	ErrValidation ErrorType = iota
	ErrQuota
	ErrScript
	ErrProvider
	ErrAssembly
	ErrStorage
	ErrConfig
	ErrUnknown
)

// StudioError is the typed failure of a video job.
type StudioError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *StudioError {
	return &StudioError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *StudioError {
	return &StudioError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *StudioError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		sort.Strings(ctxParts)
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *StudioError) Unwrap() error {
	return e.Cause
}

func (e *StudioError) WithContext(key string, value any) *StudioError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrValidation:
		return "Validation"
	case ErrQuota:
		return "Quota"
	case ErrScript:
		return "Script"
	case ErrProvider:
		return "Provider"
	case ErrAssembly:
		return "Assembly"
	case ErrStorage:
		return "Storage"
	case ErrConfig:
		return "Config"
	default:
		return "Unknown"
	}
}

// Advice returns an operator-facing hint for the error type.
func Advice(err error) string {
	var studioErr *StudioError
	if !errors.As(err, &studioErr) {
		return "Please review the detailed error information"
	}
	switch studioErr.Type {
	case ErrValidation:
		return "Please provide a topic between 5 and 200 characters without prohibited content"
	case ErrQuota:
		return "The daily video limit is reached, please try again tomorrow"
	case ErrScript:
		return "The script model returned an unusable answer, check LLM_MODEL and try again"
	case ErrProvider:
		return "Please check the media API key, quota and network connectivity"
	case ErrAssembly:
		return "Please check that ffmpeg is installed and the image and speech providers are reachable"
	case ErrStorage:
		return "Please check the data and cache directories are writable and not corrupt"
	case ErrConfig:
		return "Please check that environment variables are set correctly"
	default:
		return "Please review the detailed error information"
	}
}

// LogError logs err together with its advice.
func LogError(err error) {
	log.Error("Error detail: %v\n advice: %s", err, Advice(err))
}

func IsErrorType(err error, errorType ErrorType) bool {
	var studioErr *StudioError
	if errors.As(err, &studioErr) {
		return studioErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *StudioError {
	return NewErrorWithCause(errorType, message, err)
}

// SafeExecute turns a panic in fn into an ErrUnknown.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
