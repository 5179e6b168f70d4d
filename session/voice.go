package session

import (
	"context"
	"strings"
)

const (
	msgVoiceNoTranscriber = "Voice input received (speech-to-text not implemented)"
	msgMicrophoneError    = "Error accessing microphone"
	msgRecognitionError   = "Speech recognition error"
	msgTranscriptionError = "Could not transcribe voice input"
)

// startVoice begins capture. Any speech or playback is stopped first so
// the microphone never hears our own output.
func (c *Controller) startVoice() {
	if c.capture != nil {
		return
	}
	if c.recognizer == nil && c.recorder == nil {
		return
	}

	c.stopOutputs()

	id := c.newID()
	ctx, cancel := context.WithCancel(c.ctx)
	c.capture = &task{id: id, cancel: cancel}
	c.recording = true
	c.view.SetRecording(true)
	c.setActivity(ActivityRecording)
	c.logf("🎤 Voice capture started")

	if c.recognizer != nil {
		recognizer := c.recognizer
		go func() {
			transcript, err := recognizer.Recognize(ctx)
			c.post(captureEnded{id: id, transcript: transcript, err: err})
		}()
		return
	}

	recorder := c.recorder
	go func() {
		clip, err := recorder.Record(ctx)
		c.post(captureEnded{id: id, clip: clip, recorded: true, err: err})
	}()
}

// stopVoice ends capture; the result arrives as captureEnded
func (c *Controller) stopVoice() {
	if c.capture == nil || !c.recording {
		return
	}
	c.capture.cancel()
	c.clearRecording()
}

func (c *Controller) clearRecording() {
	if !c.recording {
		return
	}
	c.recording = false
	c.view.SetRecording(false)
	if c.activity != ActivityRecording {
		return
	}
	if c.awaiting {
		// a message typed during capture is still unanswered
		c.setActivity(ActivityProcessing)
		return
	}
	c.setActivity(ActivityIdle)
}

func (c *Controller) handleCaptureEnded(ev captureEnded) {
	if c.capture == nil || c.capture.id != ev.id {
		return
	}
	c.capture.cancel()
	c.capture = nil
	c.clearRecording()

	if ev.err != nil && !isCancel(ev.err) {
		if ev.recorded {
			c.reportMediaError(&MediaPermissionError{Device: "microphone", Err: ev.err}, msgMicrophoneError)
		} else {
			c.reportMediaError(&MediaPermissionError{Device: "recognizer", Err: ev.err}, msgRecognitionError+": "+ev.err.Error())
		}
		return
	}

	if !ev.recorded {
		c.deliverTranscript(ev.transcript)
		return
	}

	c.logf("🎤 Voice capture finished: %d bytes", len(ev.clip.Data))
	if c.transcriber == nil {
		c.view.AppendMessage(NewChatMessage(msgVoiceNoTranscriber, SenderUser, false))
		return
	}
	if len(ev.clip.Data) == 0 {
		return
	}
	c.startTranscription(ev.clip)
}

func (c *Controller) startTranscription(clip Clip) {
	id := c.newID()
	ctx, cancel := context.WithCancel(c.ctx)
	c.capture = &task{id: id, cancel: cancel}

	transcriber := c.transcriber
	go func() {
		text, err := transcriber.Transcribe(ctx, clip)
		c.post(transcribed{id: id, text: text, err: err})
	}()
}

func (c *Controller) handleTranscribed(ev transcribed) {
	if c.capture == nil || c.capture.id != ev.id {
		return
	}
	c.capture.cancel()
	c.capture = nil

	if ev.err != nil {
		if !isCancel(ev.err) {
			c.reportMediaError(&MediaPermissionError{Device: "transcriber", Err: ev.err}, msgTranscriptionError)
		}
		return
	}
	c.deliverTranscript(ev.text)
}

// deliverTranscript fills the input and sends it when auto-send is on
func (c *Controller) deliverTranscript(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.view.SetInput(text)
	if c.autoSend {
		c.submit(text)
	}
}

func (c *Controller) reportMediaError(err error, userText string) {
	c.logf("❌ %v", err)
	c.view.AppendMessage(NewChatMessage(userText, SenderAgent, true))
}
