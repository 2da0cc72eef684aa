package eventbus

import (
	"fmt"

	"github.com/mizuos/shell/internal/shared/id"
)

// HandlerError is published on ErrorEvent when a handler fails
type HandlerError struct {
	Event          string            `json:"event"`
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	AppID          string            `json:"app_id,omitempty"`
	Err            error             `json:"-"`
}

func (e *HandlerError) Error() string {
	if e.AppID != "" {
		return fmt.Sprintf("handler %s (app %s) for %q: %v", e.SubscriptionID, e.AppID, e.Event, e.Err)
	}
	return fmt.Sprintf("handler %s for %q: %v", e.SubscriptionID, e.Event, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
