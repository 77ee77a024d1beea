package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wakadori/funyacompanion/internal/bus"
	"github.com/wakadori/funyacompanion/internal/sched"
	"github.com/wakadori/funyacompanion/internal/trigger"
)

// Errors surfaced by the channel client.
var (
	ErrAlreadyStarted     = errors.New("channel client already started")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// Config configures the channel client
type Config struct {
	URL           string        // websocket endpoint
	MaxAttempts   int           // connect attempts before giving up (default 5)
	RetryInterval time.Duration // fixed wait between attempts (default 3s)
	MonitorDelay  time.Duration // delay before asking the backend to start monitoring (default 2s)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		URL:           "ws://127.0.0.1:8000/ws",
		MaxAttempts:   5,
		RetryInterval: 3000 * time.Millisecond,
		MonitorDelay:  2000 * time.Millisecond,
	}
}

// Client maintains the push channel. Once Failed it stays Failed until an
// explicit Reconnect resets the machine from Closed.
type Client struct {
	cfg    Config
	dialer Dialer
	clock  sched.Clock
	timers *sched.TimerSet
	bus    *bus.EventBus
	logger zerolog.Logger

	onTrigger func(trigger.Trigger)

	mu       sync.Mutex
	state    State
	attempts int
	conn     Conn
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewClient creates a channel client. Zero config fields fall back to the
// defaults.
func NewClient(cfg Config, dialer Dialer, clock sched.Clock, eventBus *bus.EventBus, logger zerolog.Logger) *Client {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.MonitorDelay <= 0 {
		cfg.MonitorDelay = def.MonitorDelay
	}
	return &Client{
		cfg:    cfg,
		dialer: dialer,
		clock:  clock,
		timers: sched.NewTimerSet(clock),
		bus:    eventBus,
		logger: logger.With().Str("component", "channel").Logger(),
		state:  StateClosed,
	}
}

// SetTriggerHandler registers the sink for demultiplexed triggers.
func (c *Client) SetTriggerHandler(fn func(trigger.Trigger)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrigger = fn
}

// Start begins connecting. Only valid from Closed.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	go c.attempt()
	return nil
}

// Reconnect restarts a Failed client from Closed. No-op in other states.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateFailed {
		c.mu.Unlock()
		return nil
	}
	c.attempts = 0
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	c.logger.Info().Msg("Explicit reconnect requested")
	return c.Start(ctx)
}

// Stop closes the channel and returns the machine to Closed.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.timers.CancelAll()
	c.attempts = 0
	c.setStateLocked(StateClosed)
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the current reconnect attempt count.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// setStateLocked transitions the state machine. Caller holds c.mu.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	old := c.state
	c.state = s
	c.logger.Debug().Str("from", old.String()).Str("to", s.String()).Msg("Channel state changed")
	c.bus.Publish(bus.Event{Type: bus.EventTypeChannelState, Data: map[string]any{
		"from": old.String(),
		"to":   s.String(),
	}})
}

// attempt dials once; on success it services the connection until it
// drops.
func (c *Client) attempt() {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	conn, err := c.dialer.Dial(ctx, c.cfg.URL)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", c.cfg.URL).Msg("Channel connect failed")
		c.connectionLost(nil)
		return
	}
	c.opened(conn)
}

// opened handles the transition into Open: handshake, delayed monitoring
// start, then the read loop.
func (c *Client) opened(conn Conn) {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.setStateLocked(StateOpen)
	c.mu.Unlock()

	c.logger.Info().Str("url", c.cfg.URL).Msg("Channel open")

	if err := conn.WriteJSON(pingMessage{Type: "ping", Timestamp: c.clock.Now().UnixMilli()}); err != nil {
		c.logger.Warn().Err(err).Msg("Handshake send failed")
	}

	// Give the backend a moment to finish its own startup before asking
	// it to begin background monitoring.
	c.timers.Arm("monitor", c.cfg.MonitorDelay, func() {
		c.mu.Lock()
		cur := c.conn
		open := c.state == StateOpen
		c.mu.Unlock()
		if !open || cur != conn {
			return
		}
		if err := cur.WriteJSON(commandMessage{Type: "command", Command: "start_monitoring"}); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to request background monitoring")
		}
	})

	c.readLoop(conn)
}

// readLoop services inbound messages until the connection drops.
func (c *Client) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := c.conn != conn
			stopped := c.ctx.Err() != nil
			c.mu.Unlock()
			if stale || stopped {
				return
			}
			c.logger.Warn().Err(err).Msg("Channel connection lost")
			c.connectionLost(conn)
			return
		}
		c.handleMessage(data)
	}
}

// connectionLost enters Reconnecting and either schedules the next attempt
// or, once the budget is spent, fails terminally.
func (c *Client) connectionLost(conn Conn) {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	if conn != nil {
		conn.Close()
		if c.conn == conn {
			c.conn = nil
		}
	}
	c.timers.Cancel("monitor")

	c.setStateLocked(StateReconnecting)
	c.attempts++
	attempts := c.attempts

	if attempts >= c.cfg.MaxAttempts {
		c.setStateLocked(StateFailed)
		c.mu.Unlock()

		c.logger.Error().Err(ErrReconnectExhausted).Int("attempts", attempts).Msg("Channel giving up")
		c.bus.Publish(bus.Event{Type: bus.EventTypeChannelFailed, Data: map[string]any{
			"attempts": attempts,
		}})
		c.emitFailureTrigger()
		return
	}
	c.mu.Unlock()

	c.logger.Info().
		Int("attempt", attempts).
		Int("max", c.cfg.MaxAttempts).
		Dur("retry_in", c.cfg.RetryInterval).
		Msg("Channel reconnecting")

	c.timers.Arm("retry", c.cfg.RetryInterval, func() {
		c.mu.Lock()
		if c.ctx.Err() != nil || c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		c.setStateLocked(StateConnecting)
		c.mu.Unlock()
		// On its own goroutine: a successful re-dial runs the read loop
		// for the life of the connection, which must never happen inside
		// a timer callback.
		go c.attempt()
	})
}

// emitFailureTrigger sends the single terminal-failure notice. Never
// repeated: Failed is terminal until an explicit Reconnect.
func (c *Client) emitFailureTrigger() {
	c.mu.Lock()
	onTrigger := c.onTrigger
	c.mu.Unlock()
	if onTrigger == nil {
		return
	}
	onTrigger(trigger.Trigger{
		Category:   trigger.CategoryError,
		Text:       "I lost contact with the game... I'll need a nudge to retry.",
		Emotion:    "sad",
		Source:     trigger.SourcePush,
		OccurredAt: c.clock.Now(),
		SkipAudio:  true,
	})
}

// handleMessage demultiplexes one inbound message. Unknown discriminators
// are logged and dropped, never fatal.
func (c *Client) handleMessage(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to parse channel message")
		return
	}

	switch env.Type {
	case "notification":
		var nd NotificationData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &nd); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to parse notification payload")
				return
			}
		}
		c.forward(trigger.Trigger{
			Category:   categoryForMessageType(nd.MessageType),
			Text:       nd.Message,
			Source:     trigger.SourcePush,
			OccurredAt: c.clock.Now(),
			SkipAudio:  nd.SkipAudio,
		})

	case "speak":
		c.forward(trigger.Trigger{
			Category:    "speak",
			Text:        env.Text,
			Emotion:     env.Emotion,
			Source:      trigger.SourcePush,
			OccurredAt:  c.clock.Now(),
			PresetSound: env.PresetSound,
			DisplayTime: time.Duration(env.DisplayTime) * time.Millisecond,
		})

	case "status", "status_update":
		var sd StatusData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &sd); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to parse status payload")
				return
			}
		}
		c.logger.Debug().
			Bool("monitoring", sd.MonitoringActive).
			Str("server", sd.ServerStatus).
			Msg("Backend status update")
		c.bus.Publish(bus.Event{Type: bus.EventTypeChannelStatus, Data: map[string]any{
			"monitoring_active": sd.MonitoringActive,
			"server_status":     sd.ServerStatus,
		}})

	case "command_result":
		c.logger.Info().
			Str("command", env.Command).
			Bool("success", env.Success).
			Str("message", env.Message).
			Msg("Backend command result")

	case "system":
		c.logger.Debug().Msg("Channel system message")

	case "pong":
		c.logger.Debug().Msg("Pong received")

	default:
		c.logger.Debug().Str("type", env.Type).Msg("Unknown channel message type")
	}
}

// forward hands a trigger to the orchestrator.
func (c *Client) forward(t trigger.Trigger) {
	c.mu.Lock()
	onTrigger := c.onTrigger
	c.mu.Unlock()
	if onTrigger == nil {
		c.logger.Warn().Str("category", t.Category).Msg("No trigger handler registered, dropping")
		return
	}
	onTrigger(t)
}
