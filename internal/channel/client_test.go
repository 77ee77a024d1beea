package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakadori/funyacompanion/internal/bus"
	"github.com/wakadori/funyacompanion/internal/sched"
	"github.com/wakadori/funyacompanion/internal/trigger"
)

type fakeConn struct {
	mu        sync.Mutex
	inbound   chan []byte
	sent      []any
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sentMessages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.sent))
	copy(out, c.sent)
	return out
}

// fakeDialer runs a per-attempt script; attempts beyond the script reuse
// its last entry.
type fakeDialer struct {
	mu     sync.Mutex
	script []func() (Conn, error)
	dials  int
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	i := d.dials
	d.dials++
	if i >= len(d.script) {
		i = len(d.script) - 1
	}
	fn := d.script[i]
	d.mu.Unlock()
	return fn()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func alwaysFail() func() (Conn, error) {
	return func() (Conn, error) { return nil, errors.New("connection refused") }
}

func connect(conn *fakeConn) func() (Conn, error) {
	return func() (Conn, error) { return conn, nil }
}

func newTestClient(dialer Dialer) (*Client, *sched.FakeClock, *bus.EventBus) {
	clock := sched.NewFakeClock()
	eventBus := bus.NewEventBus()
	c := NewClient(Config{URL: "ws://test/ws"}, dialer, clock, eventBus, zerolog.Nop())
	return c, clock, eventBus
}

func TestStartConnects(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{script: []func() (Conn, error){connect(conn)}}
	c, _, _ := newTestClient(dialer)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.Eventually(t, func() bool { return c.State() == StateOpen },
		time.Second, time.Millisecond)
	assert.Equal(t, 0, c.Attempts())
}

func TestStartTwiceFails(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{script: []func() (Conn, error){connect(conn)}}
	c, _, _ := newTestClient(dialer)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
}

func TestOpenSendsPingThenMonitorCommand(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{script: []func() (Conn, error){connect(conn)}}
	c, clock, _ := newTestClient(dialer)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.Eventually(t, func() bool { return len(conn.sentMessages()) == 1 },
		time.Second, time.Millisecond)
	ping, ok := conn.sentMessages()[0].(pingMessage)
	require.True(t, ok)
	assert.Equal(t, "ping", ping.Type)

	// The monitoring request waits out the startup grace period.
	require.Eventually(t, func() bool { return c.timers.Armed("monitor") },
		time.Second, time.Millisecond)
	clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return len(conn.sentMessages()) == 2 },
		time.Second, time.Millisecond)
	cmd, ok := conn.sentMessages()[1].(commandMessage)
	require.True(t, ok)
	assert.Equal(t, "start_monitoring", cmd.Command)
}

func TestReconnectBudgetThenFailed(t *testing.T) {
	dialer := &fakeDialer{script: []func() (Conn, error){alwaysFail()}}
	c, clock, eventBus := newTestClient(dialer)

	var mu sync.Mutex
	reconnecting := 0
	eventBus.Subscribe(bus.EventTypeChannelState, func(e bus.Event) {
		if e.Data["to"] == StateReconnecting.String() {
			mu.Lock()
			reconnecting++
			mu.Unlock()
		}
	})

	var failures []trigger.Trigger
	c.SetTriggerHandler(func(t trigger.Trigger) {
		mu.Lock()
		failures = append(failures, t)
		mu.Unlock()
	})

	require.NoError(t, c.Start(context.Background()))

	// Every attempt runs on its own goroutine; wait for each failure to
	// arm the retry timer before firing it off the clock.
	require.Eventually(t, func() bool { return c.timers.Armed("retry") },
		time.Second, time.Millisecond)
	require.Equal(t, 1, c.Attempts())

	for i := 2; i <= 5; i++ {
		clock.Advance(3 * time.Second)
		require.Eventually(t, func() bool { return c.Attempts() == i },
			time.Second, time.Millisecond, "attempt %d", i)
		require.Eventually(t, func() bool {
			return c.timers.Armed("retry") || c.State() == StateFailed
		}, time.Second, time.Millisecond)
	}

	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, 5, dialer.dialCount())

	// Failed is terminal: no more dials, ever.
	clock.Advance(time.Hour)
	assert.Equal(t, 5, dialer.dialCount())
	assert.Equal(t, StateFailed, c.State())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reconnecting == 5
	}, time.Second, time.Millisecond, "each failed attempt passes through Reconnecting once")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failures, 1, "exactly one failure notice")
	assert.Equal(t, trigger.CategoryError, failures[0].Category)
	assert.True(t, failures[0].SkipAudio)
}

func TestExplicitReconnectResetsBudget(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{script: []func() (Conn, error){
		alwaysFail(), alwaysFail(), alwaysFail(), alwaysFail(), alwaysFail(),
		connect(conn),
	}}
	c, clock, _ := newTestClient(dialer)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return c.timers.Armed("retry") },
		time.Second, time.Millisecond)
	for i := 2; i <= 5; i++ {
		clock.Advance(3 * time.Second)
		require.Eventually(t, func() bool { return c.Attempts() == i }, time.Second, time.Millisecond)
		require.Eventually(t, func() bool {
			return c.timers.Armed("retry") || c.State() == StateFailed
		}, time.Second, time.Millisecond)
	}
	require.Equal(t, StateFailed, c.State())

	require.NoError(t, c.Reconnect(context.Background()))
	defer c.Stop()

	require.Eventually(t, func() bool { return c.State() == StateOpen },
		time.Second, time.Millisecond)
	assert.Equal(t, 0, c.Attempts(), "opening resets the attempt budget")
}

func TestReconnectIsNoOpUnlessFailed(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{script: []func() (Conn, error){connect(conn)}}
	c, _, _ := newTestClient(dialer)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	require.Eventually(t, func() bool { return c.State() == StateOpen },
		time.Second, time.Millisecond)

	require.NoError(t, c.Reconnect(context.Background()))
	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, 1, dialer.dialCount())
}

func TestConnectionDropTriggersReconnect(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	dialer := &fakeDialer{script: []func() (Conn, error){connect(first), connect(second)}}
	c, clock, _ := newTestClient(dialer)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	require.Eventually(t, func() bool { return c.State() == StateOpen },
		time.Second, time.Millisecond)

	first.Close()
	require.Eventually(t, func() bool { return c.timers.Armed("retry") },
		time.Second, time.Millisecond)
	assert.Equal(t, StateReconnecting, c.State())
	assert.Equal(t, 1, c.Attempts())

	clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return c.State() == StateOpen },
		time.Second, time.Millisecond)
	assert.Equal(t, 0, c.Attempts())
}

func TestInboundMessagesAreForwarded(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{script: []func() (Conn, error){connect(conn)}}
	c, _, _ := newTestClient(dialer)

	var mu sync.Mutex
	var got []trigger.Trigger
	c.SetTriggerHandler(func(t trigger.Trigger) {
		mu.Lock()
		got = append(got, t)
		mu.Unlock()
	})

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	require.Eventually(t, func() bool { return c.State() == StateOpen },
		time.Second, time.Millisecond)

	payload, _ := json.Marshal(map[string]any{
		"type": "notification",
		"data": map[string]any{"message": "Danger!", "messageType": "zombieAlert"},
	})
	conn.inbound <- payload

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "zombie_alert", got[0].Category)
	assert.Equal(t, "Danger!", got[0].Text)
	assert.Equal(t, trigger.SourcePush, got[0].Source)
}

func TestStopReturnsToClosed(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{script: []func() (Conn, error){connect(conn)}}
	c, clock, _ := newTestClient(dialer)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return c.State() == StateOpen },
		time.Second, time.Millisecond)

	c.Stop()
	assert.Equal(t, StateClosed, c.State())

	// Nothing reconnects after a deliberate stop.
	clock.Advance(time.Minute)
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 1, dialer.dialCount())
}
