package domain

// Metadata carries the parts of an inbound event the engine cares about.
type Metadata struct {
	Command   string         `json:"command,omitempty"`
	LastInput string         `json:"last_input,omitempty"`
	UserName  string         `json:"user_name,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`

	// Debug marks a manual or flow-debug trigger: it always starts at the entry step.
	Debug bool `json:"debug,omitempty"`
}

// UniversalContext is the provider-agnostic view of one inbound event.
// It is built fresh by the caller for every event and never persisted.
type UniversalContext struct {
	TenantID string   `json:"tenant_id"`
	Provider string   `json:"provider"`
	UserID   string   `json:"user_id"`
	ChatID   string   `json:"chat_id"`
	BotID    string   `json:"bot_id"`
	BotToken string   `json:"bot_token,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// SessionKey derives the session identity of the event.
func (c *UniversalContext) SessionKey() SessionKey {
	return SessionKey{TenantID: c.TenantID, Provider: c.Provider, UserID: c.UserID}
}
