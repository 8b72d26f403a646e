package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-survey/backend/internal/protocol"
)

// EventKind identifies a connection lifecycle signal.
type EventKind int

const (
	EventOpened EventKind = iota
	EventMessage
	EventTransportError
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventTransportError:
		return "transport_error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is delivered on Connection.Events. Raw is set for EventMessage and
// Err for EventTransportError.
type Event struct {
	Kind EventKind
	Raw  []byte
	Err  error
}

// Transport is the part of a connection the session depends on.
type Transport interface {
	Send(env protocol.Envelope) error
	Events() <-chan Event
	Close() error
}

// Dialer opens a Transport. Dial is the production implementation.
type Dialer func(ctx context.Context, cfg ConnConfig, logger *zap.Logger) (Transport, error)

// ConnConfig 连接参数，零值字段使用默认值。
type ConnConfig struct {
	Endpoint         string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PongWait         time.Duration
	PingInterval     time.Duration
	SendBuffer       int
	MaxMessageSize   int64
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultPongWait         = 60 * time.Second
	defaultSendBuffer       = 32
	defaultMaxMessageSize   = 1 << 20
	eventBuffer             = 256
)

func (c ConnConfig) withDefaults() ConnConfig {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	return c
}

// Connection is a single persistent WebSocket to the generation endpoint.
// It is never re-dialed: once closed or failed it stays that way. Events
// must be drained by the owner until the channel is closed.
type Connection struct {
	cfg    ConnConfig
	conn   *websocket.Conn
	logger *zap.Logger

	send   chan []byte
	events chan Event
	done   chan struct{}
	open   atomic.Bool
	wg     sync.WaitGroup

	closeOnce sync.Once
	cause     error
	closeErr  error
}

// Dial performs one handshake against cfg.Endpoint. There are no retries.
func Dial(ctx context.Context, cfg ConnConfig, logger *zap.Logger) (*Connection, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, cfg.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	c := &Connection{
		cfg:    cfg,
		conn:   ws,
		logger: logger.With(zap.String("component", "connection"), zap.String("endpoint", cfg.Endpoint)),
		send:   make(chan []byte, cfg.SendBuffer),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
	c.open.Store(true)
	c.events <- Event{Kind: EventOpened}

	ws.SetReadLimit(cfg.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	c.wg.Add(2)
	go c.readPump()
	go c.writePump()
	go c.finish()

	c.logger.Info("connection opened")
	return c, nil
}

// DialTransport adapts Dial to the Dialer signature.
func DialTransport(ctx context.Context, cfg ConnConfig, logger *zap.Logger) (Transport, error) {
	conn, err := Dial(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Connection) Events() <-chan Event { return c.events }

// Open reports whether sends are currently accepted.
func (c *Connection) Open() bool { return c.open.Load() }

// Send encodes env and hands it to the write pump. It does not wait for
// the frame to reach the wire.
func (c *Connection) Send(env protocol.Envelope) error {
	if !c.open.Load() {
		return ErrNotConnected
	}

	data, err := protocol.Encode(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Type, err)
	}

	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrNotConnected
	default:
		return ErrSendBufferFull
	}
}

// Close sends a normal close frame and tears the socket down. Only the
// first call does anything.
func (c *Connection) Close() error {
	if !c.shutdown(nil, true) {
		return nil
	}
	return c.closeErr
}

// shutdown runs once and reports whether this call performed it.
func (c *Connection) shutdown(cause error, graceful bool) bool {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.cause = cause
		c.open.Store(false)
		close(c.done)

		if graceful {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteTimeout))
		}
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.closeErr = err
		}

		if cause != nil {
			c.logger.Warn("connection failed", zap.Error(cause))
		} else {
			c.logger.Info("connection closed")
		}
	})
	return first
}

func (c *Connection) readPump() {
	defer c.wg.Done()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.shutdown(nil, false)
				return
			}
			c.shutdown(fmt.Errorf("read: %w", err), false)
			return
		}

		select {
		case c.events <- Event{Kind: EventMessage, Raw: data}:
		case <-c.done:
			return
		}
	}
}

func (c *Connection) writePump() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.shutdown(fmt.Errorf("write: %w", err), false)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown(fmt.Errorf("ping: %w", err), false)
				return
			}
		}
	}
}

// finish emits the terminal events once both pumps have stopped.
func (c *Connection) finish() {
	c.wg.Wait()
	if c.cause != nil {
		c.events <- Event{Kind: EventTransportError, Err: c.cause}
	}
	c.events <- Event{Kind: EventClosed}
	close(c.events)
}
