package types

import "time"

// RegistryStats contains app registry statistics
type RegistryStats struct {
	TotalApps      int            `json:"total_apps"`
	ByStatus       map[Status]int `json:"by_status"`
	Categories     map[string]int `json:"categories"`
	CachedManifest int            `json:"cached_manifests"`
	LastUpdated    *time.Time     `json:"last_updated,omitempty"`
}

// BusStats contains event bus statistics
type BusStats struct {
	Events        int            `json:"events"`
	Subscriptions int            `json:"subscriptions"`
	Apps          int            `json:"apps"`
	PerEvent      map[string]int `json:"per_event"`
	Emitted       uint64         `json:"emitted"`
	Delivered     uint64         `json:"delivered"`
	Failed        uint64         `json:"failed"`
	Rejected      uint64         `json:"rejected"`
}
