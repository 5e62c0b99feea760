package live2d

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records everything the bridge transmits.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []Command
	reloads int
	sendErr error
}

func (f *fakeTransport) Send(cmd Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeTransport) Reload() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return nil
}

func (f *fakeTransport) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.sent))
	for i, cmd := range f.sent {
		types[i] = cmd.Type
	}
	return types
}

func (f *fakeTransport) sentMotions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var motions []string
	for _, cmd := range f.sent {
		if cmd.Type == CmdPlayMotion {
			motions = append(motions, cmd.Data["motion"].(string))
		}
	}
	return motions
}

func newTestBridge(t *testing.T, transport Transport, timeout time.Duration) *Bridge {
	t.Helper()
	return NewBridge(transport, Config{
		ReadinessTimeout: timeout,
		MaxLoadAttempts:  3,
	}, zerolog.Nop())
}

func inbound(msgType string, data any) InboundMessage {
	var raw json.RawMessage
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	return InboundMessage{Type: msgType, Data: raw}
}

func TestBridge_QueuesUntilReadyAndFlushesFIFO(t *testing.T) {
	transport := &fakeTransport{}
	b := newTestBridge(t, transport, time.Second)

	b.PlayMotion("Wave")
	b.PlayMotion("Dance")
	b.PlayMotion("Laugh")
	assert.Equal(t, 3, b.QueuedCommands())
	assert.Empty(t, transport.sentMotions())

	b.LoadStarted()
	b.LoadFinished()
	b.Handle(inbound(MsgReadinessUpdate, map[string]string{"state": "bridgeReady"}))

	assert.Equal(t, StateRendererReady, b.State())
	assert.Equal(t, []string{"Wave", "Dance", "Laugh"}, transport.sentMotions())
	assert.Equal(t, 0, b.QueuedCommands())

	// Flush happens exactly once; a second ready ack resends nothing.
	b.Handle(inbound(MsgReadinessUpdate, map[string]string{"state": "bridgeReady"}))
	assert.Equal(t, []string{"Wave", "Dance", "Laugh"}, transport.sentMotions())
}

func TestBridge_ImmediateDispatchWhenReady(t *testing.T) {
	transport := &fakeTransport{}
	b := newTestBridge(t, transport, time.Second)

	b.LoadStarted()
	b.LoadFinished()
	b.Handle(inbound(MsgReadinessUpdate, map[string]string{"state": "bridgeReady"}))
	b.Handle(inbound(MsgModelReady, nil))

	b.PlayMotion("Happy")
	assert.Equal(t, []string{"Happy"}, transport.sentMotions())
	assert.Equal(t, 0, b.QueuedCommands())
}

func TestBridge_HandshakeInjectedOncePerLoad(t *testing.T) {
	transport := &fakeTransport{}
	b := newTestBridge(t, transport, time.Second)

	b.LoadStarted()
	b.LoadFinished()
	b.LoadFinished() // duplicate load-finished signal

	count := 0
	for _, typ := range transport.sentTypes() {
		if typ == CmdCheckModelStatus {
			count++
		}
	}
	assert.Equal(t, 1, count)

	// A new load cycle injects again.
	b.LoadStarted()
	b.LoadFinished()
	count = 0
	for _, typ := range transport.sentTypes() {
		if typ == CmdCheckModelStatus {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestBridge_ReadinessTimeoutFails(t *testing.T) {
	transport := &fakeTransport{}
	b := newTestBridge(t, transport, 100*time.Millisecond)

	var mu sync.Mutex
	var failed error
	b.SetErrorHandler(func(err error) {
		mu.Lock()
		failed = err
		mu.Unlock()
	})

	b.LoadStarted()
	b.LoadFinished()

	require.Eventually(t, func() bool {
		return b.State() == StateFailed
	}, 150*time.Millisecond, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Error(t, failed)
	assert.NotEmpty(t, b.LastError())
}

func TestBridge_HeartbeatRestartsReadinessTimeout(t *testing.T) {
	transport := &fakeTransport{}
	b := newTestBridge(t, transport, 80*time.Millisecond)

	b.LoadStarted()
	b.LoadFinished()

	// Keep the channel alive past several timeout windows via heartbeats.
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		b.Handle(inbound(MsgHeartbeat, nil))
	}
	assert.NotEqual(t, StateFailed, b.State())

	// Without heartbeats the timeout eventually fires.
	require.Eventually(t, func() bool {
		return b.State() == StateFailed
	}, 300*time.Millisecond, 5*time.Millisecond)
}

func TestBridge_ModelReadyCancelsTimeoutAndNotifiesOnce(t *testing.T) {
	transport := &fakeTransport{}
	b := newTestBridge(t, transport, 60*time.Millisecond)

	var mu sync.Mutex
	readyCount := 0
	b.SetReadyHandler(func() {
		mu.Lock()
		readyCount++
		mu.Unlock()
	})

	b.LoadStarted()
	b.LoadFinished()
	b.Handle(inbound(MsgReadinessUpdate, map[string]string{"state": "bridgeReady"}))
	b.Handle(inbound(MsgModelReady, nil))
	b.Handle(inbound(MsgModelReady, nil)) // duplicate ack

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateModelReady, b.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, readyCount)
}

func TestBridge_CommandsQueuedWhileFailed(t *testing.T) {
	transport := &fakeTransport{}
	b := newTestBridge(t, transport, 50*time.Millisecond)

	b.LoadStarted()
	b.LoadFinished()
	require.Eventually(t, func() bool {
		return b.State() == StateFailed
	}, 200*time.Millisecond, 5*time.Millisecond)

	b.PlayMotion("Wave")
	assert.Equal(t, 1, b.QueuedCommands())
	assert.Empty(t, transport.sentMotions())
}

func TestBridge_ReloadCeiling(t *testing.T) {
	transport := &fakeTransport{}
	b := newTestBridge(t, transport, time.Second)

	var mu sync.Mutex
	var errs []error
	b.SetErrorHandler(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	for i := 0; i < 4; i++ {
		b.Reload()
	}

	mu.Lock()
	unreachable := 0
	for _, err := range errs {
		if err == ErrRendererUnreachable {
			unreachable++
		}
	}
	mu.Unlock()

	assert.Equal(t, 1, unreachable, "ceiling error surfaces on the 4th attempt with max 3")
	assert.Equal(t, 4, transport.reloads, "reloads stay permitted beyond the ceiling")
	assert.Equal(t, ErrRendererUnreachable.Error(), b.LastError())
}

func TestBridge_ReloadClearsQueue(t *testing.T) {
	transport := &fakeTransport{}
	b := newTestBridge(t, transport, time.Second)

	b.PlayMotion("Wave")
	require.Equal(t, 1, b.QueuedCommands())

	b.Reload()
	assert.Equal(t, 0, b.QueuedCommands())
	assert.Equal(t, StateConnecting, b.State())
}

func TestBridge_MalformedPayloadReportedNotRaised(t *testing.T) {
	transport := &fakeTransport{}
	b := newTestBridge(t, transport, time.Second)

	var mu sync.Mutex
	var reported []error
	b.SetErrorHandler(func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	})

	b.HandleRaw([]byte("{not json"))
	b.Handle(InboundMessage{Type: MsgMotionResult, Data: json.RawMessage(`"not an object"`)})

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, reported, 2)
	assert.NotEqual(t, StateFailed, b.State())
}

func TestBridge_UnknownMessageIgnored(t *testing.T) {
	transport := &fakeTransport{}
	b := newTestBridge(t, transport, time.Second)

	assert.NotPanics(t, func() {
		b.Handle(inbound("somethingNew", map[string]string{"x": "y"}))
	})
	assert.NotEqual(t, StateFailed, b.State())
}

func TestBridge_MotionResultDelivered(t *testing.T) {
	transport := &fakeTransport{}
	b := newTestBridge(t, transport, time.Second)

	var got MotionResult
	b.SetMotionResultHandler(func(r MotionResult) { got = r })

	b.Handle(inbound(MsgMotionResult, MotionResult{Motion: "Happy", Success: true}))
	assert.Equal(t, "Happy", got.Motion)
	assert.True(t, got.Success)
}

func TestBridge_TransportErrorFails(t *testing.T) {
	transport := &fakeTransport{}
	b := newTestBridge(t, transport, time.Second)

	b.TransportError(assert.AnError)
	assert.Equal(t, StateFailed, b.State())
	assert.Contains(t, b.LastError(), "transport")
}
