package models

// DefaultMinutes is the inactivity threshold applied when no settings have
// ever been saved.
const DefaultMinutes = 60

// Settings is the user-configurable policy document. It is owned by the UI
// surface and read-only for the sweep engine.
type Settings struct {
	Minutes   int      `json:"minutes"`
	Whitelist []string `json:"whitelist"`
}

// DefaultSettings returns the settings used when the store is empty.
func DefaultSettings() Settings {
	return Settings{
		Minutes:   DefaultMinutes,
		Whitelist: []string{},
	}
}
