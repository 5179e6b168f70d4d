package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconnectAfterClose(t *testing.T) {
	h := startController(t, Options{})
	conn := h.waitConnected(t)

	conn.drop()

	require.Eventually(t, func() bool {
		return len(h.timers.Delays()) == 1
	}, time.Second, 5*time.Millisecond, "a reconnect is scheduled on close")
	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateDisconnected, snap.Conn)
	assert.False(t, h.view.SendEnabled())
	assert.Equal(t, "Disconnected", h.view.LastStatus().Label)
	assert.Equal(t, time.Second, h.timers.Delays()[0])

	h.timers.fireLast()

	second := h.waitConnected(t)
	assert.NotSame(t, conn, second, "the handle is replaced, not reused")
	assert.True(t, h.view.SendEnabled())
	assert.Equal(t, "Connected", h.view.LastStatus().Label)
}

func TestTransportErrorShowsErrorBeforeClose(t *testing.T) {
	h := startController(t, Options{})
	conn := h.waitConnected(t)

	conn.drop()

	require.Eventually(t, func() bool {
		return len(h.timers.Delays()) == 1
	}, time.Second, 5*time.Millisecond)

	h.view.mu.Lock()
	statuses := append([]Status(nil), h.view.statuses...)
	h.view.mu.Unlock()

	require.GreaterOrEqual(t, len(statuses), 2)
	assert.Equal(t, "error", statuses[len(statuses)-2].Class)
	assert.Equal(t, "disconnected", statuses[len(statuses)-1].Class)
}

func TestCleanCloseSkipsErrorState(t *testing.T) {
	h := startController(t, Options{})
	conn := h.waitConnected(t)

	conn.Close()

	require.Eventually(t, func() bool {
		return len(h.timers.Delays()) == 1
	}, time.Second, 5*time.Millisecond)

	h.view.mu.Lock()
	defer h.view.mu.Unlock()
	for _, s := range h.view.statuses {
		assert.NotEqual(t, "error", s.Class)
	}
}

func TestReconnectDelayGrowsAndResets(t *testing.T) {
	dialer := &fakeDialer{fail: 2}
	h := startController(t, Options{Dialer: dialer})

	require.Eventually(t, func() bool { return len(h.timers.Delays()) == 1 }, time.Second, 5*time.Millisecond)
	h.timers.fireLast()
	require.Eventually(t, func() bool { return len(h.timers.Delays()) == 2 }, time.Second, 5*time.Millisecond)
	h.timers.fireLast()

	conn := h.waitConnected(t)
	assert.Equal(t, 3, dialer.Dials())

	conn.Close()
	require.Eventually(t, func() bool { return len(h.timers.Delays()) == 3 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []time.Duration{
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		1000 * time.Millisecond, // reset by the successful open
	}, h.timers.Delays())
}

func TestZeroPolicyUsesDefaults(t *testing.T) {
	b := ReconnectPolicy{}.newBackOff()

	assert.Equal(t, []time.Duration{
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
	}, []time.Duration{b.NextBackOff(), b.NextBackOff(), b.NextBackOff()})
	assert.Equal(t, 30*time.Second, b.MaxInterval)
}

func TestPartialPolicyKeepsDefaultCap(t *testing.T) {
	b := ReconnectPolicy{Delay: 2 * time.Second}.newBackOff()
	assert.Equal(t, 30*time.Second, b.MaxInterval)

	b = ReconnectPolicy{Delay: 45 * time.Second}.newBackOff()
	assert.Equal(t, 45*time.Second, b.MaxInterval, "the cap never undercuts the first delay")
}

func TestFixedDelayPolicy(t *testing.T) {
	b := ReconnectPolicy{Delay: 3 * time.Second, Multiplier: 1}.newBackOff()
	for i := 0; i < 5; i++ {
		assert.Equal(t, 3*time.Second, b.NextBackOff())
	}
}

func TestBackoffIsCappedAndNeverStops(t *testing.T) {
	b := ReconnectPolicy{Delay: time.Second, MaxDelay: 4 * time.Second, Multiplier: 2}.newBackOff()

	var last time.Duration
	for i := 0; i < 50; i++ {
		last = b.NextBackOff()
		require.Positive(t, last)
	}
	assert.Equal(t, 4*time.Second, last)
}

func TestManualReconnectIgnoresStaleHandle(t *testing.T) {
	h := startController(t, Options{})
	first := h.waitConnected(t)

	h.ctrl.Reconnect()
	require.Eventually(t, func() bool { return h.dialer.Conns() == 2 }, time.Second, 5*time.Millisecond)
	second := h.waitConnected(t)

	// the old handle was closed by the reconnect, its close must not
	// schedule anything nor disturb the new connection
	first.sendText(`{"text":"from the old connection"}`)
	second.sendText(`{"text":"from the new connection"}`)

	require.Eventually(t, func() bool { return len(h.view.Messages()) >= 1 }, time.Second, 5*time.Millisecond)
	h.ctrl.Snapshot()
	for _, m := range h.view.Messages() {
		assert.Equal(t, "from the new connection", m.Text)
	}
	assert.Empty(t, h.timers.Delays())
	assert.Equal(t, StateConnected, h.ctrl.Snapshot().Conn)
}

func TestProcessingIsClearedWhenConnectionDrops(t *testing.T) {
	h := startController(t, Options{})
	conn := h.waitConnected(t)

	h.ctrl.Submit("hello")
	h.waitActivity(t, ActivityProcessing)

	conn.drop()
	h.waitActivity(t, ActivityIdle)
}
