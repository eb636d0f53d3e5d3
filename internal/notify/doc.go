// Package notify delivers reminder messages through the configured
// notification channels (Telegram, Bark, PushPlus, generic Webhook).
//
// All four channels share one HTTP send primitive; each channel only
// contributes its URL and body template. Channels are attempted
// independently and concurrently: a missing credential skips the channel
// silently, a transport failure is recorded for that channel only, and no
// attempt is ever retried. The scheduled path swallows per-channel errors
// (they are logged); only the interactive test path surfaces them to the
// caller.
package notify
