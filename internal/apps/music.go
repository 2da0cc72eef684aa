package apps

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mizuos/shell/internal/domain/app"
	"github.com/mizuos/shell/internal/domain/eventbus"
	"github.com/mizuos/shell/internal/shared/format"
)

// Music events
const (
	MusicPlay  = "music:play"
	MusicPause = "music:pause"
	MusicNext  = "music:next"
	MusicQueue = "music:queue"
	MusicState = "music:state"
)

// MusicSnapshot is the player state kept across unloads
type MusicSnapshot struct {
	Playlist []string `json:"playlist"`
	Current  int      `json:"current"`
	Playing  bool     `json:"playing"`
	Visible  bool     `json:"visible"`
}

// Music is the persistent music player
type Music struct {
	env app.Env

	mu    sync.Mutex
	state MusicSnapshot
}

// NewMusic constructs the music player
func NewMusic(env app.Env) (app.App, error) {
	return &Music{env: env}, nil
}

func (m *Music) Init(ctx context.Context) error {
	m.env.Bus.On(MusicQueue, func(e eventbus.Event) error {
		var req struct {
			Track string `json:"track"`
		}
		if err := decode(e.Data, &req); err != nil {
			return fmt.Errorf("queue: %w", err)
		}
		if req.Track == "" {
			return fmt.Errorf("queue: track is required")
		}
		m.update(func(s *MusicSnapshot) { s.Playlist = append(s.Playlist, req.Track) })
		return nil
	})
	m.env.Bus.On(MusicPlay, func(eventbus.Event) error {
		m.update(func(s *MusicSnapshot) { s.Playing = len(s.Playlist) > 0 })
		return nil
	})
	m.env.Bus.On(MusicPause, func(eventbus.Event) error {
		m.update(func(s *MusicSnapshot) { s.Playing = false })
		return nil
	})
	m.env.Bus.On(MusicNext, func(eventbus.Event) error {
		m.update(func(s *MusicSnapshot) {
			if len(s.Playlist) > 0 {
				s.Current = (s.Current + 1) % len(s.Playlist)
			}
		})
		return nil
	})
	return nil
}

func (m *Music) update(fn func(*MusicSnapshot)) {
	m.mu.Lock()
	fn(&m.state)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.env.Bus.Emit(MusicState, snap)
}

func (m *Music) snapshotLocked() MusicSnapshot {
	s := m.state
	s.Playlist = append([]string(nil), m.state.Playlist...)
	return s
}

// Snapshot returns the current player state
func (m *Music) Snapshot() MusicSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Music) Show() {
	m.mu.Lock()
	m.state.Visible = true
	m.mu.Unlock()
}

// Hide keeps playback running; only the window goes away
func (m *Music) Hide() {
	m.mu.Lock()
	m.state.Visible = false
	m.mu.Unlock()
}

func (m *Music) SerializeState() ([]byte, error) {
	m.mu.Lock()
	snap := m.snapshotLocked()
	m.mu.Unlock()
	return format.Marshal(snap)
}

func (m *Music) RestoreState(data []byte) error {
	var snap MusicSnapshot
	if err := format.DecodeAs(data, format.JSON, &snap); err != nil {
		return fmt.Errorf("music state: %w", err)
	}
	if snap.Current >= len(snap.Playlist) {
		snap.Current = 0
	}

	m.mu.Lock()
	visible := m.state.Visible
	m.state = snap
	m.state.Visible = visible
	m.mu.Unlock()

	m.env.Logger.Debug("Music state restored",
		zap.Int("tracks", len(snap.Playlist)),
		zap.Bool("playing", snap.Playing),
	)
	return nil
}
