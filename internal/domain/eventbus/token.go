package eventbus

import "github.com/mizuos/shell/internal/shared/id"

// Token is returned by On and Once. The zero Token, returned when a
// subscription is refused, is a valid no-op.
type Token struct {
	bus   *Bus
	event string
	id    id.SubscriptionID
}

// ID returns the subscription ID, empty for a refused subscription
func (t Token) ID() id.SubscriptionID {
	return t.id
}

// Event returns the subscribed event name
func (t Token) Event() string {
	return t.event
}

// Valid reports whether the subscription was accepted
func (t Token) Valid() bool {
	return t.bus != nil && t.id != ""
}

// Unsubscribe removes the subscription. It reports false when the
// subscription was refused or is already gone.
func (t Token) Unsubscribe() bool {
	if !t.Valid() {
		return false
	}
	return t.bus.Off(t.event, t.id)
}
