package actions

import (
	"fmt"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// decodeParams maps resolved step params onto a typed struct.
// Template resolution turns everything into strings, so weak typing is on.
func decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return domain.NewError(domain.ErrInvalidBlueprint, fmt.Sprintf("invalid params: %v", err), err, nil)
	}
	return nil
}
