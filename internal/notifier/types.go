package notifier

import "time"

// Config controls the async delivery pipeline.
type Config struct {
	Workers       int
	QueueSize     int // per worker
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

// DeliveryEvent is published on the event bus for delivery outcomes.
type DeliveryEvent struct {
	Channel string    `json:"channel"`
	Attempt int       `json:"attempt,omitempty"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}
