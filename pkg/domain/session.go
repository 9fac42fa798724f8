package domain

import (
	"errors"
	"strings"
	"time"
)

// SessionKey identifies a conversation: one user, on one provider, inside one tenant.
type SessionKey struct {
	TenantID string `json:"tenant_id"`
	Provider string `json:"provider"`
	UserID   string `json:"user_id"`
}

// String renders the logical storage key session:{tenant}:{provider}:{userId}.
func (k SessionKey) String() string {
	return "session:" + k.TenantID + ":" + k.Provider + ":" + k.UserID
}

// Validate reports missing key components.
func (k SessionKey) Validate() error {
	if k.TenantID == "" || k.Provider == "" || k.UserID == "" {
		return errors.New("session key requires tenant, provider and user")
	}
	return nil
}

// SessionData is the durable per-user conversation state.
// All resumable state lives here: the engine keeps no in-memory continuation.
type SessionData struct {
	TenantID        string         `json:"tenant_id"`
	Provider        string         `json:"provider"`
	UserID          string         `json:"user_id"`
	CurrentFlowID   string         `json:"current_flow_id,omitempty"`
	CurrentStepID   string         `json:"current_step_id,omitempty"`
	CollectedData   map[string]any `json:"collected_data"`
	WaitingForInput bool           `json:"waiting_for_input"`
	LastError       string         `json:"last_error,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewSession creates an empty session for the given key.
func NewSession(key SessionKey) *SessionData {
	return &SessionData{
		TenantID:      key.TenantID,
		Provider:      key.Provider,
		UserID:        key.UserID,
		CollectedData: make(map[string]any),
	}
}

// Key returns the identity of the session.
func (s *SessionData) Key() SessionKey {
	return SessionKey{TenantID: s.TenantID, Provider: s.Provider, UserID: s.UserID}
}

// Clone returns a deep copy, so callers can mutate without touching stored snapshots.
func (s *SessionData) Clone() *SessionData {
	if s == nil {
		return nil
	}
	next := *s
	next.CollectedData = CloneMap(s.CollectedData)
	return &next
}

// Merge copies non-reserved keys into CollectedData.
func (s *SessionData) Merge(data map[string]any) {
	if s.CollectedData == nil {
		s.CollectedData = make(map[string]any)
	}
	for k, v := range data {
		if IsReservedKey(k) {
			continue
		}
		s.CollectedData[k] = v
	}
}

// Suspend records the resume point.
func (s *SessionData) Suspend(flowID, stepID string) {
	s.CurrentFlowID = flowID
	s.CurrentStepID = stepID
	s.WaitingForInput = true
}

// ClearPosition forgets the resume point after a flow reaches a terminal state.
func (s *SessionData) ClearPosition() {
	s.CurrentStepID = ""
	s.WaitingForInput = false
}

// KeySuspended is the result key an action sets to halt the flow awaiting input.
const KeySuspended = "suspended"

// IsReservedKey reports keys that control execution and never reach CollectedData.
func IsReservedKey(key string) bool {
	return key == KeySuspended || strings.HasPrefix(key, "_")
}

// CloneMap deep-copies nested maps and slices. Other values are copied by assignment.
func CloneMap(src map[string]any) map[string]any {
	if src == nil {
		return make(map[string]any)
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
