package ui

// Config contains TUI-specific configuration.
type Config struct {
	GlamourMaxWidth uint
	GlamourStyle    string `env:"GLAMOUR_STYLE"`
	EnableMouse     bool

	// Theme is auto, dark or light
	Theme string

	// For debugging the UI
	GlamourEnabled bool `env:"KBCHAT_ENABLE_GLAMOUR"   envDefault:"true"`
	ShowTimestamps bool `env:"KBCHAT_SHOW_TIMESTAMPS"`
}
