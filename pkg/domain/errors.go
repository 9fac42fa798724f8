package domain

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ErrSessionNotFound is returned when a session key cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrBlueprintNotFound is returned when a blueprint id or trigger cannot be resolved.
var ErrBlueprintNotFound = errors.New("blueprint not found")

// ErrJobNotFound is returned when a job id cannot be found in the store.
var ErrJobNotFound = errors.New("job not found")

const (
	CodeTriggerMismatch   = "TRIGGER_MISMATCH"
	CodeUnknownAction     = "UNKNOWN_ACTION"
	CodeStepLimitExceeded = "STEP_LIMIT_EXCEEDED"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeProviderError     = "PROVIDER_ERROR"
	CodeRateLimited       = "RATE_LIMITED"
	CodeUnreachable       = "UNREACHABLE"
	CodeBlocked           = "BLOCKED"
	CodeBlueprintNotFound = "BLUEPRINT_NOT_FOUND"
	CodeStepNotFound      = "STEP_NOT_FOUND"
	CodeNoActiveFlow      = "NO_ACTIVE_FLOW"
	CodeStoreFailure      = "STORE_FAILURE"
	CodeInvalidBlueprint  = "INVALID_BLUEPRINT"
	CodeInternal          = "INTERNAL"
	CodeInvalidJob        = "INVALID_JOB"
)

var (
	ErrTriggerMismatch = goerrors.New("trigger mismatch", goerrors.CategoryConflict).
				WithTextCode(CodeTriggerMismatch)
	ErrUnknownAction = goerrors.New("unknown action", goerrors.CategoryBadInput).
				WithTextCode(CodeUnknownAction)
	ErrStepLimitExceeded = goerrors.New("step limit exceeded", goerrors.CategoryBadInput).
				WithTextCode(CodeStepLimitExceeded)
	ErrValidationFailed = goerrors.New("input validation failed", goerrors.CategoryValidation).
				WithTextCode(CodeValidationFailed)
	ErrProvider = goerrors.New("provider request failed", goerrors.CategoryExternal).
			WithTextCode(CodeProviderError)
	ErrRateLimited = goerrors.New("rate limited", goerrors.CategoryExternal).
			WithTextCode(CodeRateLimited)
	ErrUnreachable = goerrors.New("recipient unreachable", goerrors.CategoryExternal).
			WithTextCode(CodeUnreachable)
	ErrBlocked = goerrors.New("recipient blocked the bot", goerrors.CategoryExternal).
			WithTextCode(CodeBlocked)
	ErrNoBlueprint = goerrors.New("no blueprint for trigger", goerrors.CategoryBadInput).
			WithTextCode(CodeBlueprintNotFound)
	ErrStepMissing = goerrors.New("step not found", goerrors.CategoryBadInput).
			WithTextCode(CodeStepNotFound)
	ErrNoActiveFlow = goerrors.New("no active flow to resume", goerrors.CategoryConflict).
			WithTextCode(CodeNoActiveFlow)
	ErrStore = goerrors.New("store failure", goerrors.CategoryExternal).
			WithTextCode(CodeStoreFailure)
	ErrInvalidBlueprint = goerrors.New("invalid blueprint", goerrors.CategoryValidation).
				WithTextCode(CodeInvalidBlueprint)
	ErrInternal = goerrors.New("internal error", goerrors.CategoryHandler).
			WithTextCode(CodeInternal)
	ErrInvalidJob = goerrors.New("invalid job", goerrors.CategoryBadInput).
			WithTextCode(CodeInvalidJob)
)

// NewError clones one of the taxonomy errors with a specific message, cause and metadata.
func NewError(base *goerrors.Error, message string, source error, metadata map[string]any) *goerrors.Error {
	if base == nil {
		base = ErrStore
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode returns the taxonomy text code carried by err, or "" when unclassified.
func ErrorCode(err error) string {
	var ge *goerrors.Error
	if errors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// HasCode reports whether err is classified with the given code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// ErrorMessage renders err for structured results, including the cause when present.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var ge *goerrors.Error
	if errors.As(err, &ge) {
		if ge.Source != nil {
			return ge.Message + ": " + ge.Source.Error()
		}
		return ge.Message
	}
	return err.Error()
}
