package eventbus

// Scope is a view of the bus that tags every subscription with one app ID.
// Apps receive a Scope instead of the bus so their handlers are always
// reachable by CleanupApp.
type Scope struct {
	bus   *Bus
	appID string
}

// Scope returns an app-scoped view of the bus
func (b *Bus) Scope(appID string) *Scope {
	return &Scope{bus: b, appID: appID}
}

// AppID returns the owning app
func (s *Scope) AppID() string { return s.appID }

func (s *Scope) On(event string, handler Handler) Token {
	return s.bus.On(event, handler, ForApp(s.appID))
}

func (s *Scope) Once(event string, handler Handler) Token {
	return s.bus.Once(event, handler, ForApp(s.appID))
}

func (s *Scope) Emit(event string, data interface{}) int {
	return s.bus.Emit(event, data)
}

// Close removes every subscription made through this scope's app ID
func (s *Scope) Close() int {
	return s.bus.CleanupApp(s.appID)
}
