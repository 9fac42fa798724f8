package actions

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
)

type collectParams struct {
	Prompt       string `mapstructure:"prompt"`
	Variable     string `mapstructure:"variable"`
	Validator    string `mapstructure:"validator"`
	Pattern      string `mapstructure:"pattern"`
	RetryMessage string `mapstructure:"retry_message"`
	ParseMode    string `mapstructure:"parse_mode"`
	Resuming     bool   `mapstructure:"_is_resuming"`
}

// collectInput suspends the flow on first visit (sending the prompt, if any)
// and validates metadata.LastInput when the flow resumes at it.
func (a *Actions) collectInput(ctx context.Context, uctx *domain.UniversalContext, params map[string]any) domain.ActionResult {
	var p collectParams
	if err := decodeParams(params, &p); err != nil {
		return domain.Fail(err)
	}
	if p.Variable == "" {
		return domain.Fail(domain.NewError(domain.ErrInvalidBlueprint, "collect_input requires variable", nil, nil))
	}

	if !p.Resuming {
		if p.Prompt != "" {
			if err := a.sendPlain(ctx, uctx, p.Prompt, p.ParseMode); err != nil {
				return domain.Fail(err)
			}
		}
		return domain.Suspend(nil)
	}

	value, verr := validateInput(p, uctx.Metadata.LastInput)
	if verr == nil {
		return domain.Ok(map[string]any{p.Variable: value})
	}

	a.logger.Debug("input rejected",
		"tenant", uctx.TenantID,
		"validator", p.Validator,
		"err", verr,
	)
	if p.RetryMessage == "" {
		return domain.Fail(verr)
	}
	if err := a.sendPlain(ctx, uctx, p.RetryMessage, p.ParseMode); err != nil {
		return domain.Fail(err)
	}
	return domain.Suspend(nil)
}

func (a *Actions) sendPlain(ctx context.Context, uctx *domain.UniversalContext, text, parseMode string) error {
	text = messageParams{Text: text, ParseMode: parseMode}.render()
	return a.send(ctx, CollectInput, uctx, func(ctx context.Context, s ports.MessageSender) error {
		return s.SendText(ctx, targetOf(uctx, parseMode), text)
	})
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneStrip   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)
)

// validateInput sanitises raw and applies the configured validator.
// The returned value is what gets stored: numbers are stored as float64,
// phones without separators, everything else as trimmed text.
func validateInput(p collectParams, raw string) (any, error) {
	input, err := SanitizeInput(raw)
	if err != nil {
		return nil, invalid(p.Validator, err.Error())
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, invalid(p.Validator, "input is empty")
	}

	switch p.Validator {
	case "", "text":
		return input, nil
	case "email":
		if !emailPattern.MatchString(input) {
			return nil, invalid(p.Validator, "not an email address")
		}
		return strings.ToLower(input), nil
	case "phone":
		phone := phoneStrip.Replace(input)
		if !phonePattern.MatchString(phone) {
			return nil, invalid(p.Validator, "not a phone number")
		}
		return phone, nil
	case "number":
		n, err := strconv.ParseFloat(strings.ReplaceAll(input, ",", "."), 64)
		if err != nil {
			return nil, invalid(p.Validator, "not a number")
		}
		return n, nil
	case "regex":
		re, err := regexp.Compile(p.Pattern)
		if err != nil || p.Pattern == "" {
			return nil, domain.NewError(domain.ErrInvalidBlueprint, "collect_input regex validator needs a valid pattern", err, nil)
		}
		if !re.MatchString(input) {
			return nil, invalid(p.Validator, "does not match pattern")
		}
		return input, nil
	default:
		return nil, domain.NewError(domain.ErrInvalidBlueprint, fmt.Sprintf("unknown validator %q", p.Validator), nil, nil)
	}
}

func invalid(validator, reason string) error {
	if validator == "" {
		validator = "text"
	}
	return domain.NewError(domain.ErrValidationFailed,
		fmt.Sprintf("input validation failed (%s): %s", validator, reason), nil,
		map[string]any{"validator": validator})
}
