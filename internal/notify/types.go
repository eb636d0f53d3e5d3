package notify

import (
	"errors"
	"time"

	"renewd/internal/event"
)

// ChannelType names one notification provider.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelBark     ChannelType = "bark"
	ChannelPushPlus ChannelType = "pushplus"
	ChannelWebhook  ChannelType = "webhook"
)

// DisplayName is the human-readable channel name used in user-visible
// error messages on the test path.
func (c ChannelType) DisplayName() string {
	switch c {
	case ChannelTelegram:
		return "Telegram"
	case ChannelBark:
		return "Bark"
	case ChannelPushPlus:
		return "PushPlus"
	case ChannelWebhook:
		return "Webhook"
	default:
		return string(c)
	}
}

// ErrNotConfigured means a requested channel has no credentials.
// The scheduled path skips such channels silently; the test path wraps
// this error with the channel's display name and returns it to the caller.
var ErrNotConfigured = errors.New("missing channel credentials")

// ErrUnknownChannel is returned by DispatchTest for channel types it does
// not know about.
var ErrUnknownChannel = errors.New("unknown channel type")

// Outcome is the per-channel result of one dispatch.
type Outcome struct {
	Channel ChannelType
	Skipped bool // credentials absent, no attempt made
	Err     error
}

// Config controls outbound delivery.
//
// Fallback carries process-level channel credentials (typically from the
// environment) used when the stored settings leave a channel blank. The
// test path deliberately ignores Fallback: it validates exactly what the
// user saved.
type Config struct {
	Timeout    time.Duration // per-attempt HTTP timeout; 0 means 10s
	RatePerSec int           // outbound request rate limit; 0 means 4
	Fallback   event.Settings
}
