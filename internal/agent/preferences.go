package agent

import (
	"context"
)

// PreferenceStore is the slice of the memory collaborator the preference
// agent depends on.
type PreferenceStore interface {
	GetUserPreferences(ctx context.Context, userID string) (map[string]interface{}, error)
	StoreUserPreferences(ctx context.Context, userID string, prefs map[string]interface{}) error
}

// PreferenceAgent resolves and updates per-user newsletter preferences.
type PreferenceAgent struct {
	dispatcher
	store    PreferenceStore
	defaults map[string]interface{}
}

func NewPreferenceAgent(store PreferenceStore, defaultTopics []string) *PreferenceAgent {
	if len(defaultTopics) == 0 {
		defaultTopics = []string{"technology", "business"}
	}
	topics := make([]interface{}, len(defaultTopics))
	for i, t := range defaultTopics {
		topics[i] = t
	}
	a := &PreferenceAgent{
		dispatcher: newDispatcher("preference_agent"),
		store:      store,
		defaults: map[string]interface{}{
			"topics":    topics,
			"frequency": "weekly",
			"send_time": "09:00",
			"timezone":  "UTC",
			"tone":      "professional",
		},
	}
	a.register(TaskGetPreferences, a.getPreferences)
	a.register(TaskUpdatePreferences, a.updatePreferences)
	return a
}

func (a *PreferenceAgent) getPreferences(ctx context.Context, params Params) (map[string]interface{}, error) {
	userID := params.String("user_id")
	if userID == "" {
		return nil, NewKeyError("user_id is required")
	}
	prefs, err := a.store.GetUserPreferences(ctx, userID)
	if err != nil {
		return nil, NewDatabaseError("failed to load preferences", err)
	}
	usingDefaults := false
	if prefs == nil {
		prefs = a.defaults
		usingDefaults = true
	}
	return map[string]interface{}{
		"preferences":    prefs,
		"using_defaults": usingDefaults,
	}, nil
}

func (a *PreferenceAgent) updatePreferences(ctx context.Context, params Params) (map[string]interface{}, error) {
	userID := params.String("user_id")
	if userID == "" {
		return nil, NewKeyError("user_id is required")
	}
	prefs := params.Map("preferences")
	if prefs == nil {
		return nil, NewValidationError("preferences map is required", nil)
	}
	if err := a.store.StoreUserPreferences(ctx, userID, prefs); err != nil {
		return nil, NewDatabaseError("failed to store preferences", err)
	}
	return map[string]interface{}{"preferences": prefs}, nil
}
