package models

import "time"

// WOLConfig holds Wake-on-LAN configuration for the host serving the output directory.
type WOLConfig struct {
	MACAddress    string
	BroadcastIP   string
	WaitPath      string        // directory that must appear once the storage host is up
	Timeout       time.Duration // max time to wait for WaitPath
	PollInterval  time.Duration // how often to check WaitPath
	StabilizeWait time.Duration // wait after WaitPath appears
}

// WOLResult holds the result of a Wake-on-LAN operation.
type WOLResult struct {
	PacketSent   bool
	TargetReady  bool
	WaitDuration time.Duration
	Error        error
}
