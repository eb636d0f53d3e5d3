package config

// Config is the process configuration file (JSON or YAML).
//
// Channel credentials do NOT live here; they are part of the settings
// document owned by the UI (with environment-variable fallbacks read in
// cmd/renewd). This file only configures the daemon itself.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Auth      AuthConfig      `json:"auth"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notify    NotifyConfig    `json:"notify,omitempty"`
}

// ServerConfig controls the HTTP API listener.
//
// AssetsDir, when set, enables static asset serving with SPA fallback in
// front of the API. Leave it empty for an API-only deployment; both modes
// run the same server.
type ServerConfig struct {
	Addr      string `json:"addr"` // default "127.0.0.1:8787"
	AssetsDir string `json:"assets_dir,omitempty"`

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// AuthConfig holds the shared-secret bearer check for /api/*.
// Resolution order: this field, then the AUTH_PASSWORD environment
// variable, then the historical default "admin".
type AuthConfig struct {
	Password string `json:"password,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the blob store backing the three documents.
type StorageConfig struct {
	Driver      string `json:"driver"` // "file" (default) or "sqlite"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the daily check trigger.
//
// The actual wall-clock time comes from the settings document
// (dailyPushTime); DefaultCheckTime applies while that is unset.
type SchedulerConfig struct {
	Enabled          bool   `json:"enabled"`
	Timezone         string `json:"timezone,omitempty"` // default UTC
	DefaultCheckTime string `json:"default_check_time,omitempty"` // "HH:MM", default "09:00"
}

// NotifyConfig controls outbound notification delivery.
type NotifyConfig struct {
	// Timeout is a Go duration string bounding each channel attempt.
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}
