package models

// Hooks holds the optional integrations run around the targets.
type Hooks struct {
	WOL      *WOLConfig      // nil if not configured
	Telegram *TelegramConfig // nil if not configured
}
