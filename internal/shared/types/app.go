package types

import "time"

// Status represents an app's position in the lifecycle state machine
type Status string

const (
	StatusUnregistered Status = "unregistered"
	StatusRegistered   Status = "registered"
	StatusLoaded       Status = "loaded"
	StatusActive       Status = "active"
	StatusHidden       Status = "hidden"
	StatusUnloaded     Status = "unloaded"
)

var transitions = map[Status][]Status{
	StatusUnregistered: {StatusRegistered},
	StatusRegistered:   {StatusLoaded},
	StatusLoaded:       {StatusActive, StatusUnloaded},
	StatusActive:       {StatusHidden, StatusUnloaded},
	StatusHidden:       {StatusActive, StatusUnloaded},
	StatusUnloaded:     {StatusLoaded},
}

// CanTransition reports whether moving from one status to another is legal
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsMounted reports whether an app in this status holds a live instance
func (s Status) IsMounted() bool {
	return s == StatusActive || s == StatusHidden
}

// Kind identifies which specialised loader handles an app
type Kind string

const (
	KindWeb        Kind = "web"
	KindPersistent Kind = "persistent"
	KindWidget     Kind = "widget"
	KindService    Kind = "service"
	KindSystem     Kind = "system"
)

// AppInfo is a read-only view of a loaded app
type AppInfo struct {
	Name       string    `json:"name"`
	InstanceID string    `json:"instance_id"`
	Kind       Kind      `json:"kind"`
	Status     Status    `json:"status"`
	Visible    bool      `json:"visible"`
	Persistent bool      `json:"persistent"`
	Widget     bool      `json:"widget"`
	Service    bool      `json:"service"`
	System     bool      `json:"system"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// LoaderStats contains app loader statistics
type LoaderStats struct {
	LoadedApps     int     `json:"loaded_apps"`
	ActiveApps     int     `json:"active_apps"`
	HiddenApps     int     `json:"hidden_apps"`
	PersistentApps int     `json:"persistent_apps"`
	Foreground     *string `json:"foreground,omitempty"`
}

// AppError is the payload of app:error events
type AppError struct {
	App   string `json:"app"`
	Op    string `json:"op"`
	Error string `json:"error"`
}
