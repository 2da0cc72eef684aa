package ws

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mizuos/shell/internal/domain/eventbus"
	"github.com/mizuos/shell/internal/domain/fault"
	"github.com/mizuos/shell/internal/infrastructure/monitoring"
	"github.com/mizuos/shell/internal/shared/types"
)

// Frame types
const (
	TypeEvent   = "event"
	TypeEmit    = "emit"
	TypeEmitted = "emitted"
	TypePing    = "ping"
	TypePong    = "pong"
	TypeSystem  = "system"
	TypeError   = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

// Options configures a Bridge
type Options struct {
	Bus            *eventbus.Bus
	Metrics        *monitoring.Metrics
	Logger         *zap.Logger
	Errors         *fault.Handler
	AllowedOrigins []string
}

// Bridge manages WebSocket connections
type Bridge struct {
	bus      *eventbus.Bus
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	errors   *fault.Handler
	upgrader websocket.Upgrader
}

// NewBridge creates a bridge over bus
func NewBridge(opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	b := &Bridge{
		bus:     opts.Bus,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		errors:  opts.Errors,
	}
	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return b
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// HandleConnection upgrades the request and streams bus events until the
// client goes away
func (b *Bridge) HandleConnection(c *gin.Context) {
	conn, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		b.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	b.metrics.IncWSConnections()
	defer b.metrics.DecWSConnections()

	remote := conn.RemoteAddr().String()
	logger := b.logger.With(zap.String("remote", remote))
	logger.Info("WebSocket client connected")

	out := make(chan types.WSMessage, sendBuffer)
	done := make(chan struct{})

	untap := b.bus.Tap(func(e eventbus.Event) {
		select {
		case <-done:
		case out <- types.WSMessage{Type: TypeEvent, Event: e.Name, Data: e.Data}:
		default:
			logger.Warn("WebSocket client too slow, event dropped", zap.String("event", e.Name))
		}
	})

	writerDone := make(chan struct{})
	b.errors.Go("ws writer "+remote, func() error {
		defer close(writerDone)
		// Closing unblocks the reader so the connection is torn down.
		defer conn.Close()
		b.writeLoop(conn, out, done, logger)
		return nil
	})

	send := func(msg types.WSMessage) {
		select {
		case out <- msg:
		case <-writerDone:
		}
	}
	send(types.WSMessage{Type: TypeSystem, Data: gin.H{"message": "connected", "bus": b.bus.Stats()}})

	b.readLoop(conn, send, logger)

	untap()
	close(done)
	<-writerDone
	conn.Close()
	logger.Info("WebSocket client disconnected")
}

func (b *Bridge) readLoop(conn *websocket.Conn, send func(types.WSMessage), logger *zap.Logger) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg types.WSMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			send(types.WSMessage{Type: TypeError, Error: "malformed frame"})
			continue
		}

		switch msg.Type {
		case TypeEmit:
			if msg.Event == "" {
				send(types.WSMessage{Type: TypeError, Error: "emit frame needs an event"})
				continue
			}
			delivered := b.bus.Emit(msg.Event, msg.Data)
			send(types.WSMessage{Type: TypeEmitted, Event: msg.Event, Data: delivered})
		case TypePing:
			send(types.WSMessage{Type: TypePong})
		default:
			send(types.WSMessage{Type: TypeError, Error: "unknown message type"})
		}
	}
}

func (b *Bridge) writeLoop(conn *websocket.Conn, out <-chan types.WSMessage, done <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-out:
			data, err := sonic.Marshal(msg)
			if err != nil {
				logger.Warn("Frame not encodable", zap.String("event", msg.Event), zap.Error(err))
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
