package model

import "time"

// Installation event types reported by the add-on.
const (
	InstallEventInstalled   = "installed"
	InstallEventUninstalled = "uninstalled"
	InstallEventOpened      = "opened"
)

// ValidInstallEvents contains all accepted event types.
var ValidInstallEvents = []string{InstallEventInstalled, InstallEventUninstalled, InstallEventOpened}

// Installation is one add-on lifecycle event.
type Installation struct {
	ID           string    `json:"id"`       // ULID
	EventID      string    `json:"event_id"` // Idempotency key (Redis stream ID)
	InstallID    string    `json:"install_id"`
	ProfileID    string    `json:"profile_id,omitempty"`
	Event        string    `json:"event"`
	AddonVersion string    `json:"addon_version,omitempty"`
	Domain       string    `json:"domain,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// InstallationStats aggregates installation events for the admin console.
type InstallationStats struct {
	Installed   int64 `json:"installed"`
	Uninstalled int64 `json:"uninstalled"`
	Active      int64 `json:"active"`
}
