// Package websocket provides a reusable WebSocket client with automatic reconnection
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"lease_engine/internal/core"
	"lease_engine/pkg/telemetry"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MessageHandler handles incoming WebSocket messages
type MessageHandler func(message []byte)

// Options configures a Client. Zero durations take the defaults.
type Options struct {
	URL           string
	Header        http.Header // sent with every handshake, e.g. an API key
	ReconnectWait time.Duration
	PingInterval  time.Duration
	PingWait      time.Duration
	PongWait      time.Duration
}

// Client is a resilient WebSocket client
type Client struct {
	opts    Options
	handler MessageHandler

	conn *websocket.Conn
	mu   sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onConnected func() // runs after every (re)connect, e.g. to resubscribe
	connects    int

	logger core.ILogger
	tracer trace.Tracer
}

// NewClient creates a new WebSocket client
func NewClient(opts Options, handler MessageHandler, logger core.ILogger) *Client {
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 5 * time.Second
	}
	if opts.PingWait <= 0 {
		opts.PingWait = 10 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:    opts,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.WithField("component", "ws_client"),
		tracer:  telemetry.GetTracer("ws-client"),
	}
}

// SetOnConnected sets the callback for when the connection is established
func (c *Client) SetOnConnected(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = cb
}

// Connected reports whether a connection is currently open
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send sends a message over the WebSocket
func (c *Client) Send(message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	return c.conn.WriteJSON(message)
}

// Start connects and begins listening for messages
func (c *Client) Start() {
	c.wg.Add(1)
	go c.runLoop()
}

// Stop closes the connection and waits for the loops to exit
func (c *Client) Stop() {
	c.cancel()
	c.closeConn()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.logger.Warn("WebSocket client Stop: some goroutines did not exit within timeout")
	}
}

func (c *Client) runLoop() {
	defer c.wg.Done()

	for c.ctx.Err() == nil {
		if err := c.connect(); err != nil {
			c.logger.Error("WebSocket connect failed", "url", c.opts.URL, "error", err)
		} else {
			c.mu.Lock()
			onConnected := c.onConnected
			c.mu.Unlock()
			if onConnected != nil {
				onConnected()
			}

			heartbeatCtx, heartbeatCancel := context.WithCancel(c.ctx)
			if c.opts.PingInterval > 0 {
				c.wg.Add(1)
				go c.heartbeat(heartbeatCtx)
			}
			c.readLoop()
			heartbeatCancel()
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.opts.ReconnectWait):
		}
	}
}

func (c *Client) heartbeat(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.opts.PingWait)); err != nil {
				// a failed ping closes the connection so the read loop reconnects
				c.closeConn()
				return
			}
		}
	}
}

func (c *Client) connect() error {
	ctx, span := c.tracer.Start(c.ctx, "WS Connect",
		trace.WithAttributes(attribute.String("ws.url", c.opts.URL)),
	)
	defer span.End()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		span.RecordError(err)
		return err
	}

	pongWait := c.opts.PongWait
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		conn.Close()
		return c.ctx.Err()
	}
	c.conn = conn
	c.connects++
	if c.connects > 1 {
		telemetry.GetGlobalMetrics().RecordReconnect(ctx)
	}
	c.logger.Info("WebSocket connected", "url", c.opts.URL, "connects", c.connects)
	return nil
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) readLoop() {
	defer c.closeConn()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("WebSocket read failed", "url", c.opts.URL, "error", err)
			}
			return
		}
		if c.handler != nil {
			c.handler(message)
		}
	}
}
