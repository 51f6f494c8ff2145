package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a run notification.
type TelegramMessage struct {
	Success    bool
	Host       string
	OutputPath string
	StartTime  time.Time
	Duration   time.Duration
	Encrypted  bool

	Targets     []TargetResult
	BeforeBytes int64
	AfterBytes  int64

	// Set when the whole run was aborted.
	ErrorMessage string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
