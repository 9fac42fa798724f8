package ports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/botflow/pkg/domain"
)

// Target addresses one outbound message.
type Target struct {
	ChatID   string
	BotToken string

	// ParseMode is passed through to providers that support rich text (e.g. "HTML").
	ParseMode string
}

// Button is a quick-reply option. URL buttons open a link instead of posting Value back.
type Button struct {
	Label string `json:"label" mapstructure:"label"`
	Value string `json:"value,omitempty" mapstructure:"value"`
	URL   string `json:"url,omitempty" mapstructure:"url"`
}

// MessageSender is the capability a messaging platform adapter exposes.
// Implementations must bound every network call with a timeout.
type MessageSender interface {
	SendText(ctx context.Context, target Target, text string) error
	SendButtons(ctx context.Context, target Target, text string, buttons []Button) error
	SendPhoto(ctx context.Context, target Target, photoURL, caption string) error
}

// SendError classifies a provider failure with a taxonomy code.
// RetryAfter is only meaningful for domain.CodeRateLimited.
type SendError struct {
	Code       string
	RetryAfter time.Duration
	Err        error
}

func (e *SendError) Error() string {
	if e.Code == domain.CodeRateLimited {
		return fmt.Sprintf("%s (retry after %s): %v", e.Code, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// RateLimited wraps err as a rate-limit signal.
func RateLimited(retryAfter time.Duration, err error) *SendError {
	return &SendError{Code: domain.CodeRateLimited, RetryAfter: retryAfter, Err: err}
}

// Blocked wraps err as a terminal "recipient blocked us" failure.
func Blocked(err error) *SendError {
	return &SendError{Code: domain.CodeBlocked, Err: err}
}

// Unreachable wraps err as a terminal "invalid target" failure.
func Unreachable(err error) *SendError {
	return &SendError{Code: domain.CodeUnreachable, Err: err}
}

// ClassifySendError returns the taxonomy code of a send failure.
// Unclassified errors are provider errors.
func ClassifySendError(err error) (code string, retryAfter time.Duration) {
	if err == nil {
		return "", 0
	}
	var se *SendError
	if errors.As(err, &se) {
		return se.Code, se.RetryAfter
	}
	return domain.CodeProviderError, 0
}
