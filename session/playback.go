package session

import "context"

// handleBinary plays a raw audio frame. Binary clips are fire-and-forget:
// they do not supersede the tracked output nor change the activity.
func (c *Controller) handleBinary(data []byte) {
	if !c.speechOutput || c.player == nil {
		return
	}
	if c.recording {
		c.logf("🎤 Skipping audio frame while recording: %d bytes", len(data))
		return
	}

	id := c.newID()
	ctx, cancel := context.WithCancel(c.ctx)
	c.clips[id] = cancel

	clip := Clip{Data: data}
	go func() {
		err := c.player.Play(ctx, clip)
		c.post(clipEnded{id: id, err: err})
	}()
}

func (c *Controller) handleClipEnded(ev clipEnded) {
	if cancel, ok := c.clips[ev.id]; ok {
		cancel()
		delete(c.clips, ev.id)
	}
	if ev.err != nil && !isCancel(ev.err) {
		c.logf("🔇 %v", &PlaybackError{Source: "audio frame", Err: ev.err})
	}
}

// startAudio plays an audio reference as the tracked output. It reports
// false when nothing was started.
func (c *Controller) startAudio(url string) bool {
	if !c.speechOutput || c.player == nil {
		return false
	}
	if c.recording {
		c.logf("🎤 Skipping audio while recording: %s", url)
		return false
	}

	c.startOutput(url, func(ctx context.Context) error {
		return c.player.PlayURL(ctx, url)
	})
	return true
}

// startSpeech speaks a reply that came without audio
func (c *Controller) startSpeech(text string) bool {
	if !c.speechOutput || c.synthesizer == nil {
		return false
	}
	if c.recording {
		return false
	}

	c.startOutput("speech synthesis", func(ctx context.Context) error {
		return c.synthesizer.Speak(ctx, text)
	})
	return true
}

// startOutput supersedes any tracked output and moves to speaking until
// play returns
func (c *Controller) startOutput(source string, play func(ctx context.Context) error) {
	c.stopOutput()

	id := c.newID()
	ctx, cancel := context.WithCancel(c.ctx)
	c.output = &task{id: id, cancel: cancel}
	c.setActivity(ActivitySpeaking)

	go func() {
		err := play(ctx)
		c.post(outputEnded{id: id, source: source, err: err})
	}()
}

func (c *Controller) handleOutputEnded(ev outputEnded) {
	if c.output == nil || c.output.id != ev.id {
		// superseded or stopped, whoever stopped it owns the activity
		return
	}
	c.output.cancel()
	c.output = nil

	if ev.err != nil && !isCancel(ev.err) {
		c.logf("🔇 %v", &PlaybackError{Source: ev.source, Err: ev.err})
	}
	c.finishActivity(ActivitySpeaking)
}

func (c *Controller) stopOutput() {
	if c.output != nil {
		c.output.cancel()
		c.output = nil
	}
}

// stopOutputs silences everything: the tracked output and all clips
func (c *Controller) stopOutputs() {
	c.stopOutput()
	for id, cancel := range c.clips {
		cancel()
		delete(c.clips, id)
	}
}
