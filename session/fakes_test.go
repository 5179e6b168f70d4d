package session

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type frame struct {
	kind int
	data []byte
}

type fakeView struct {
	mu             sync.Mutex
	messages       []ChatMessage
	statuses       []Status
	inputs         []string
	sendEnabled    bool
	recording      bool
	recordingSets  []bool
	voiceAvailable bool
}

func (v *fakeView) AppendMessage(msg ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = append(v.messages, msg)
}

func (v *fakeView) SetStatus(status Status) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statuses = append(v.statuses, status)
}

func (v *fakeView) SetInput(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inputs = append(v.inputs, text)
}

func (v *fakeView) SetSendEnabled(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sendEnabled = enabled
}

func (v *fakeView) SetRecording(recording bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.recording = recording
	v.recordingSets = append(v.recordingSets, recording)
}

func (v *fakeView) SetVoiceAvailable(available bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.voiceAvailable = available
}

func (v *fakeView) Messages() []ChatMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]ChatMessage(nil), v.messages...)
}

func (v *fakeView) Inputs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.inputs...)
}

func (v *fakeView) LastStatus() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.statuses) == 0 {
		return Status{}
	}
	return v.statuses[len(v.statuses)-1]
}

func (v *fakeView) SendEnabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sendEnabled
}

func (v *fakeView) Recording() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.recording
}

func (v *fakeView) VoiceAvailable() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.voiceAvailable
}

// fakeConn delivers frames pushed by the test and records writes
type fakeConn struct {
	in        chan frame
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	written  []frame
	readErr  error
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan frame, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case fr := <-f.in:
		return fr.kind, fr.data, nil
	case <-f.closed:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.readErr != nil {
			return 0, nil, f.readErr
		}
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (f *fakeConn) WriteMessage(kind int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if kind == websocket.CloseMessage {
		return nil
	}
	f.written = append(f.written, frame{kind: kind, data: append([]byte(nil), data...)})
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) sendText(s string) { f.in <- frame{kind: websocket.TextMessage, data: []byte(s)} }

func (f *fakeConn) sendBinary(b []byte) { f.in <- frame{kind: websocket.BinaryMessage, data: b} }

// drop terminates the connection abnormally
func (f *fakeConn) drop() {
	f.mu.Lock()
	f.readErr = io.ErrUnexpectedEOF
	f.mu.Unlock()
	f.Close()
}

func (f *fakeConn) Written() []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]frame(nil), f.written...)
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  int // number of dials that fail before one succeeds
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail > 0 {
		d.fail--
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) Conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) Conns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// fakeTimers captures reconnect timers so tests decide when they fire
type fakeTimers struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (ft *fakeTimers) afterFunc(d time.Duration, f func()) func() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.delays = append(ft.delays, d)
	ft.fns = append(ft.fns, f)
	return func() bool { return true }
}

func (ft *fakeTimers) Delays() []time.Duration {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]time.Duration(nil), ft.delays...)
}

func (ft *fakeTimers) fireLast() {
	ft.mu.Lock()
	f := ft.fns[len(ft.fns)-1]
	ft.mu.Unlock()
	f()
}

type fakePlayer struct {
	mu      sync.Mutex
	clips   []Clip
	urls    []string
	ctxs    []context.Context
	byURL   map[string]context.Context
	release chan error
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{
		byURL:   make(map[string]context.Context),
		release: make(chan error, 4),
	}
}

func (p *fakePlayer) Play(ctx context.Context, clip Clip) error {
	p.mu.Lock()
	p.clips = append(p.clips, clip)
	p.ctxs = append(p.ctxs, ctx)
	p.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePlayer) PlayURL(ctx context.Context, url string) error {
	p.mu.Lock()
	p.urls = append(p.urls, url)
	p.ctxs = append(p.ctxs, ctx)
	p.byURL[url] = ctx
	p.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-p.release:
		return err
	}
}

func (p *fakePlayer) Clips() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clips)
}

func (p *fakePlayer) URLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.urls...)
}

// urlContext returns the context the playback of url was started with
func (p *fakePlayer) urlContext(url string) context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byURL[url]
}

func (p *fakePlayer) Started() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ctxs)
}

// allStopped reports whether every playback started so far was cancelled
func (p *fakePlayer) allStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ctx := range p.ctxs {
		if ctx.Err() == nil {
			return false
		}
	}
	return true
}

type fakeSynth struct {
	mu    sync.Mutex
	texts []string
	ctxs  []context.Context
}

func (s *fakeSynth) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.ctxs = append(s.ctxs, ctx)
	s.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (s *fakeSynth) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func (s *fakeSynth) allStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ctx := range s.ctxs {
		if ctx.Err() == nil {
			return false
		}
	}
	return true
}

type fakeRecorder struct {
	clip Clip
	err  error

	// outputs checked at the moment capture begins
	player *fakePlayer
	synth  *fakeSynth

	mu             sync.Mutex
	started        int
	outputsStopped bool
}

func (r *fakeRecorder) Record(ctx context.Context) (Clip, error) {
	r.mu.Lock()
	r.started++
	stopped := true
	if r.player != nil {
		stopped = stopped && r.player.allStopped()
	}
	if r.synth != nil {
		stopped = stopped && r.synth.allStopped()
	}
	r.outputsStopped = stopped
	r.mu.Unlock()

	if r.err != nil {
		return Clip{}, r.err
	}
	<-ctx.Done()
	return r.clip, nil
}

func (r *fakeRecorder) Started() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *fakeRecorder) OutputsStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputsStopped
}

type fakeRecognizer struct {
	transcript string
	err        error
	natural    bool // end on its own instead of waiting for stop
}

func (r *fakeRecognizer) Recognize(ctx context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if !r.natural {
		<-ctx.Done()
	}
	return r.transcript, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (t *fakeTranscriber) Transcribe(ctx context.Context, clip Clip) (string, error) {
	return t.text, t.err
}

type harness struct {
	ctrl   *Controller
	view   *fakeView
	dialer *fakeDialer
	timers *fakeTimers
}

const testURL = "ws://chat.test:8080/ws"

// startController runs a controller over fakes until the test ends
func startController(t *testing.T, opts Options) *harness {
	t.Helper()

	h := &harness{
		view:   &fakeView{},
		dialer: &fakeDialer{},
		timers: &fakeTimers{},
	}
	if d, ok := opts.Dialer.(*fakeDialer); ok {
		h.dialer = d
	}
	opts.URL = testURL
	opts.View = h.view
	opts.Dialer = h.dialer
	opts.Logger = log.New(io.Discard, "", 0)

	ctrl, err := New(opts)
	require.NoError(t, err)
	ctrl.afterFunc = h.timers.afterFunc
	h.ctrl = ctrl

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return h
}

func (h *harness) waitConnected(t *testing.T) *fakeConn {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.ctrl.Snapshot().Conn == StateConnected
	}, time.Second, 5*time.Millisecond)
	return h.dialer.Conn(h.dialer.Conns() - 1)
}

func (h *harness) waitActivity(t *testing.T, want Activity) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.ctrl.Snapshot().Activity == want
	}, time.Second, 5*time.Millisecond, "activity never became %s", want)
}
