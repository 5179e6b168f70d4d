package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/room4-2/voicechat/messages"
)

const eventQueueSize = 64

// Options configures a Controller. View is required, every other
// capability is optional and the controller branches on its presence.
type Options struct {
	URL  string // websocket endpoint, e.g. ws://localhost:8080/ws
	View View

	Dialer      Dialer
	Player      Player
	Synthesizer Synthesizer
	Recognizer  Recognizer // toggle style voice input
	Recorder    Recorder   // push-to-talk voice input
	Transcriber Transcriber

	SpeechOutput bool
	AutoSend     bool

	Reconnect    ReconnectPolicy
	WriteTimeout time.Duration
	Logger       *log.Logger
}

// Controller is one chat session. All state is owned by the Run
// goroutine; every other goroutine talks to it through events.
type Controller struct {
	ID string

	url         string
	view        View
	dialer      Dialer
	player      Player
	synthesizer Synthesizer
	recognizer  Recognizer
	recorder    Recorder
	transcriber Transcriber
	logger      *log.Logger

	writeTimeout time.Duration
	backoff      *backoff.ExponentialBackOff
	afterFunc    func(d time.Duration, f func()) func() bool

	events  chan any
	done    chan struct{}
	running atomic.Bool
	ctx     context.Context

	// owned by Run
	state        ConnState
	activity     Activity
	speechOutput bool
	autoSend     bool
	conn         Conn
	gen          uint64
	stopTimer    func() bool

	output    *task // playback of an audio reference or synthesized speech
	capture   *task // voice capture or the transcription that follows it
	clips     map[uint64]context.CancelFunc
	nextID    uint64
	recording bool
	awaiting  bool // a sent message has no reply yet
}

// task is a cancellable media operation running outside the loop
type task struct {
	id     uint64
	cancel context.CancelFunc
}

// New creates a controller. Nothing happens until Run is called.
func New(opts Options) (*Controller, error) {
	if opts.View == nil {
		return nil, ErrNoView
	}
	if opts.Recognizer != nil && opts.Recorder != nil {
		return nil, ErrConflictingCapture
	}
	if opts.Dialer == nil {
		opts.Dialer = NewWebsocketDialer(nil)
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = writeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Controller{
		ID:           uuid.New().String(),
		url:          opts.URL,
		view:         opts.View,
		dialer:       opts.Dialer,
		player:       opts.Player,
		synthesizer:  opts.Synthesizer,
		recognizer:   opts.Recognizer,
		recorder:     opts.Recorder,
		transcriber:  opts.Transcriber,
		logger:       opts.Logger,
		writeTimeout: opts.WriteTimeout,
		backoff:      opts.Reconnect.newBackOff(),
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		events:       make(chan any, eventQueueSize),
		done:         make(chan struct{}),
		speechOutput: opts.SpeechOutput,
		autoSend:     opts.AutoSend,
		clips:        make(map[uint64]context.CancelFunc),
	}, nil
}

// events posted to the loop
type (
	connOpened struct {
		gen  uint64
		conn Conn
	}
	connErrored struct {
		gen uint64
		err error
	}
	connClosed struct {
		gen uint64
		err error
	}
	frameReceived struct {
		gen  uint64
		kind int
		data []byte
	}
	reconnectDue struct{ gen uint64 }

	submitRequested    struct{ text string }
	voiceStartRequest  struct{}
	voiceStopRequest   struct{}
	voiceToggleRequest struct{}
	speechOutputSet    struct{ on, toggle bool }
	reconnectRequested struct{}
	snapshotRequested  struct{ reply chan Snapshot }

	outputEnded struct {
		id     uint64
		source string
		err    error
	}
	clipEnded struct {
		id  uint64
		err error
	}
	captureEnded struct {
		id         uint64
		transcript string
		clip       Clip
		recorded   bool
		err        error
	}
	transcribed struct {
		id   uint64
		text string
		err  error
	}
)

// Run connects and processes events until ctx is cancelled. Handlers run
// one at a time in the order events were delivered.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = ctx
	defer close(c.done)
	defer c.shutdown()

	c.view.SetVoiceAvailable(c.recognizer != nil || c.recorder != nil)
	c.view.SetRecording(false)
	c.view.SetSendEnabled(false)
	c.connect()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			c.dispatch(ev)
		}
	}
}

// Submit sends text as a user message. It is a no-op when the trimmed
// text is empty or the connection is not open.
func (c *Controller) Submit(text string) { c.post(submitRequested{text: text}) }

// StartVoice begins voice capture (press)
func (c *Controller) StartVoice() { c.post(voiceStartRequest{}) }

// StopVoice ends voice capture (release or leave)
func (c *Controller) StopVoice() { c.post(voiceStopRequest{}) }

// ToggleVoice starts capture when idle and stops it when capturing
func (c *Controller) ToggleVoice() { c.post(voiceToggleRequest{}) }

// SetSpeechOutput enables or disables spoken responses
func (c *Controller) SetSpeechOutput(on bool) { c.post(speechOutputSet{on: on}) }

// ToggleSpeechOutput flips the speech output flag
func (c *Controller) ToggleSpeechOutput() { c.post(speechOutputSet{toggle: true}) }

// Reconnect drops the current connection and dials again immediately
func (c *Controller) Reconnect() { c.post(reconnectRequested{}) }

// Snapshot returns the current state. It must be called while Run is active;
// after Run returns it yields the zero Snapshot.
func (c *Controller) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	c.post(snapshotRequested{reply: reply})
	select {
	case s := <-reply:
		return s
	case <-c.done:
		return Snapshot{}
	}
}

// post hands an event to the loop, giving up once Run has returned
func (c *Controller) post(ev any) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) dispatch(ev any) {
	switch ev := ev.(type) {
	case connOpened:
		c.handleOpen(ev)
	case connErrored:
		c.handleError(ev)
	case connClosed:
		c.handleClose(ev)
	case frameReceived:
		c.handleFrame(ev)
	case reconnectDue:
		if ev.gen == c.gen && c.conn == nil {
			c.connect()
		}
	case submitRequested:
		c.submit(ev.text)
	case voiceStartRequest:
		c.startVoice()
	case voiceStopRequest:
		c.stopVoice()
	case voiceToggleRequest:
		if c.capture != nil && c.recording {
			c.stopVoice()
		} else {
			c.startVoice()
		}
	case speechOutputSet:
		c.setSpeechOutput(ev)
	case reconnectRequested:
		c.reconnectNow()
	case snapshotRequested:
		ev.reply <- c.snapshot()
	case outputEnded:
		c.handleOutputEnded(ev)
	case clipEnded:
		c.handleClipEnded(ev)
	case captureEnded:
		c.handleCaptureEnded(ev)
	case transcribed:
		c.handleTranscribed(ev)
	}
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		Conn:         c.state,
		Activity:     c.activity,
		SpeechOutput: c.speechOutput,
		Recording:    c.recording,
		Status:       StatusFor(c.state, c.activity),
	}
}

// connect replaces the connection handle with a fresh dial attempt
func (c *Controller) connect() {
	c.gen++
	gen := c.gen
	c.setState(StateConnecting)
	c.logf("🔌 Connecting to %s", c.url)

	ctx := c.ctx
	go func() {
		conn, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			c.post(connClosed{gen: gen, err: &TransportError{Op: "dial", Err: err}})
			return
		}
		c.post(connOpened{gen: gen, conn: conn})
	}()
}

func (c *Controller) handleOpen(ev connOpened) {
	if ev.gen != c.gen || c.conn != nil {
		// superseded by a newer attempt
		_ = ev.conn.Close()
		return
	}

	c.conn = ev.conn
	c.backoff.Reset()
	c.setState(StateConnected)
	c.view.SetSendEnabled(true)
	c.logf("✅ Connected")

	go c.readPump(ev.gen, ev.conn)
}

func (c *Controller) handleError(ev connErrored) {
	if ev.gen != c.gen {
		return
	}
	c.logf("❌ Connection error: %v", ev.err)
	c.view.SetSendEnabled(false)
	c.setState(StateError)
}

func (c *Controller) handleClose(ev connClosed) {
	if ev.gen != c.gen {
		return
	}

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	// the reply is lost with the connection
	c.awaiting = false
	if c.activity == ActivityProcessing {
		c.activity = ActivityIdle
	}

	c.view.SetSendEnabled(false)
	c.setState(StateDisconnected)
	c.scheduleReconnect(ev.err)
}

func (c *Controller) scheduleReconnect(cause error) {
	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		// MaxElapsedTime is zero so this should not happen, keep retrying anyway
		delay = c.backoff.MaxInterval
	}
	c.logf("🔌 Disconnected (%v), reconnecting in %s", cause, delay)

	if c.stopTimer != nil {
		c.stopTimer()
	}
	gen := c.gen
	c.stopTimer = c.afterFunc(delay, func() {
		c.post(reconnectDue{gen: gen})
	})
}

func (c *Controller) reconnectNow() {
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.view.SetSendEnabled(false)
	c.connect()
}

func (c *Controller) handleFrame(ev frameReceived) {
	if ev.gen != c.gen {
		return
	}

	switch ev.kind {
	case websocket.BinaryMessage:
		c.handleBinary(ev.data)
	case websocket.TextMessage:
		c.handleText(ev.data)
	}
}

func (c *Controller) handleText(data []byte) {
	resp, err := messages.DecodeResponse(data)
	if err != nil {
		c.logf("⚠️ Dropping frame: %v", &ProtocolError{Payload: data, Err: err})
		return
	}
	c.awaiting = false

	if resp.Error != "" {
		c.view.AppendMessage(NewChatMessage(resp.Error, SenderAgent, true))
	}
	if resp.Text != "" {
		c.view.AppendMessage(NewChatMessage(resp.Text, SenderAgent, false))
	}

	if resp.HasAudio() {
		url, err := messages.AudioURL(c.url, resp.AudioPath)
		if err != nil {
			c.logf("⚠️ Ignoring audio reference: %v", &ProtocolError{Payload: data, Err: err})
		} else if c.startAudio(url) {
			return
		}
	} else if resp.Error == "" && resp.Text != "" && c.startSpeech(resp.Text) {
		return
	}

	c.finishActivity(ActivityProcessing)
}

func (c *Controller) submit(text string) {
	text = strings.TrimSpace(text)
	if text == "" || c.state != StateConnected || c.conn == nil {
		return
	}

	data, err := messages.EncodeRequest(messages.NewOutboundRequest(text, c.speechOutput))
	if err != nil {
		c.logf("❌ %v", err)
		return
	}

	c.view.AppendMessage(NewChatMessage(text, SenderUser, false))
	if err := c.write(websocket.TextMessage, data); err != nil {
		c.logf("❌ Send failed: %v", err)
		c.view.SetSendEnabled(false)
		c.setState(StateError)
		// closing makes the read pump report the close and reconnect
		_ = c.conn.Close()
		return
	}
	c.view.SetInput("")
	c.awaiting = true
	if !c.recording {
		c.setActivity(ActivityProcessing)
	}
}

func (c *Controller) setSpeechOutput(ev speechOutputSet) {
	on := ev.on
	if ev.toggle {
		on = !c.speechOutput
	}
	c.speechOutput = on
	if !on {
		c.stopOutputs()
		c.finishActivity(ActivitySpeaking)
	}
}

func (c *Controller) setState(s ConnState) {
	c.state = s
	c.refreshStatus()
}

func (c *Controller) setActivity(a Activity) {
	c.activity = a
	c.refreshStatus()
}

// finishActivity returns to idle if the session is still in activity a.
// Other activities were started later and own the state now.
func (c *Controller) finishActivity(a Activity) {
	if c.activity == a {
		c.setActivity(ActivityIdle)
	}
}

func (c *Controller) refreshStatus() {
	c.view.SetStatus(StatusFor(c.state, c.activity))
}

func (c *Controller) newID() uint64 {
	c.nextID++
	return c.nextID
}

// shutdown releases everything Run owns
func (c *Controller) shutdown() {
	if c.stopTimer != nil {
		c.stopTimer()
	}
	c.stopOutputs()
	if c.capture != nil {
		c.capture.cancel()
		c.capture = nil
	}
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
		c.conn = nil
	}
	c.logf("👋 Session closed")
}

func (c *Controller) logf(format string, args ...any) {
	c.logger.Printf("[%s] "+format, append([]any{c.ID[:8]}, args...)...)
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
