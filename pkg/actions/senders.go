package actions

import (
	"fmt"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
)

// Senders is the provider lookup table ("telegram" -> sender).
type Senders map[string]ports.MessageSender

// Lookup returns the sender registered for provider.
func (s Senders) Lookup(provider string) (ports.MessageSender, error) {
	if sender, ok := s[provider]; ok && sender != nil {
		return sender, nil
	}
	return nil, domain.NewError(domain.ErrProvider,
		fmt.Sprintf("no sender registered for provider %q", provider), nil,
		map[string]any{"provider": provider})
}

// Providers lists the registered provider names.
func (s Senders) Providers() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	return out
}
