package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoiceAvailability(t *testing.T) {
	h := startController(t, Options{Recorder: &fakeRecorder{}})
	h.waitConnected(t)
	assert.True(t, h.view.VoiceAvailable())
}

func TestVoiceStartStopsPlaybackFirst(t *testing.T) {
	player := newFakePlayer()
	recorder := &fakeRecorder{player: player}
	h := startController(t, Options{SpeechOutput: true, Player: player, Recorder: recorder})
	conn := h.waitConnected(t)

	conn.sendText(`{"text":"long answer","audio_path":"/tmp/answer.wav"}`)
	conn.sendBinary([]byte{9, 9, 9})
	h.waitActivity(t, ActivitySpeaking)
	require.Eventually(t, func() bool { return player.Started() == 2 }, time.Second, 5*time.Millisecond)

	h.ctrl.StartVoice()

	require.Eventually(t, func() bool { return recorder.Started() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, recorder.OutputsStopped(), "playback must be stopped before capture begins")
	assert.Equal(t, ActivityRecording, h.ctrl.Snapshot().Activity)
	assert.True(t, h.view.Recording())
	assert.Equal(t, "Recording...", h.view.LastStatus().Label)
}

func TestVoiceStartCancelsSpeechSynthesis(t *testing.T) {
	synth := &fakeSynth{}
	recorder := &fakeRecorder{synth: synth}
	h := startController(t, Options{SpeechOutput: true, Synthesizer: synth, Recorder: recorder})
	conn := h.waitConnected(t)

	conn.sendText(`{"text":"an utterance"}`)
	h.waitActivity(t, ActivitySpeaking)

	h.ctrl.ToggleVoice()

	require.Eventually(t, func() bool { return recorder.Started() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, recorder.OutputsStopped())
}

func TestRecorderWithoutTranscriber(t *testing.T) {
	recorder := &fakeRecorder{clip: Clip{Data: []byte("RIFF....")}}
	h := startController(t, Options{Recorder: recorder})
	conn := h.waitConnected(t)

	h.ctrl.StartVoice()
	require.Eventually(t, func() bool { return recorder.Started() == 1 }, time.Second, 5*time.Millisecond)
	h.ctrl.StopVoice()

	require.Eventually(t, func() bool { return len(h.view.Messages()) == 1 }, time.Second, 5*time.Millisecond)
	msg := h.view.Messages()[0]
	assert.Equal(t, "Voice input received (speech-to-text not implemented)", msg.Text)
	assert.Equal(t, SenderUser, msg.Sender)
	assert.False(t, h.view.Recording())
	assert.Equal(t, ActivityIdle, h.ctrl.Snapshot().Activity)
	assert.Empty(t, conn.Written(), "nothing is sent without a transcript")
}

func TestRecorderWithTranscriberSendsTranscript(t *testing.T) {
	recorder := &fakeRecorder{clip: Clip{Data: []byte("audio")}}
	h := startController(t, Options{
		Recorder:    recorder,
		Transcriber: &fakeTranscriber{text: " what time is it "},
		AutoSend:    true,
	})
	conn := h.waitConnected(t)

	h.ctrl.StartVoice()
	require.Eventually(t, func() bool { return recorder.Started() == 1 }, time.Second, 5*time.Millisecond)
	h.ctrl.StopVoice()

	require.Eventually(t, func() bool { return len(conn.Written()) == 1 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"text":"what time is it"}`, string(conn.Written()[0].data))
	h.waitActivity(t, ActivityProcessing)
}

func TestRecorderErrorIsSurfaced(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("permission denied")}
	h := startController(t, Options{Recorder: recorder})
	h.waitConnected(t)

	h.ctrl.StartVoice()

	require.Eventually(t, func() bool { return len(h.view.Messages()) == 1 }, time.Second, 5*time.Millisecond)
	msg := h.view.Messages()[0]
	assert.True(t, msg.IsError)
	assert.Equal(t, "Error accessing microphone", msg.Text)
	assert.False(t, h.view.Recording(), "recording state is cleared on error")
	assert.Equal(t, ActivityIdle, h.ctrl.Snapshot().Activity)
}

func TestTranscriberErrorIsSurfaced(t *testing.T) {
	recorder := &fakeRecorder{clip: Clip{Data: []byte("audio")}}
	h := startController(t, Options{Recorder: recorder, Transcriber: &fakeTranscriber{err: errors.New("quota")}})
	h.waitConnected(t)

	h.ctrl.StartVoice()
	require.Eventually(t, func() bool { return recorder.Started() == 1 }, time.Second, 5*time.Millisecond)
	h.ctrl.StopVoice()

	require.Eventually(t, func() bool { return len(h.view.Messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, h.view.Messages()[0].IsError)
}

func TestRecognizerToggleAutoSends(t *testing.T) {
	h := startController(t, Options{Recognizer: &fakeRecognizer{transcript: "turn on the lights"}, AutoSend: true})
	conn := h.waitConnected(t)

	h.ctrl.ToggleVoice()
	h.waitActivity(t, ActivityRecording)
	h.ctrl.ToggleVoice()

	require.Eventually(t, func() bool { return len(conn.Written()) == 1 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"text":"turn on the lights"}`, string(conn.Written()[0].data))

	inputs := h.view.Inputs()
	require.Len(t, inputs, 2)
	assert.Equal(t, "turn on the lights", inputs[0], "the transcript is shown in the input first")
	assert.Equal(t, "", inputs[1])
}

func TestRecognizerWithoutAutoSendFillsInput(t *testing.T) {
	h := startController(t, Options{Recognizer: &fakeRecognizer{transcript: "draft", natural: true}})
	conn := h.waitConnected(t)

	h.ctrl.ToggleVoice()

	require.Eventually(t, func() bool { return len(h.view.Inputs()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "draft", h.view.Inputs()[0])
	assert.Empty(t, conn.Written())
	assert.False(t, h.view.Recording(), "natural end clears the recording state")
}

func TestRecognizerErrorIsSurfaced(t *testing.T) {
	h := startController(t, Options{Recognizer: &fakeRecognizer{err: errors.New("not-allowed")}})
	h.waitConnected(t)

	h.ctrl.ToggleVoice()

	require.Eventually(t, func() bool { return len(h.view.Messages()) == 1 }, time.Second, 5*time.Millisecond)
	msg := h.view.Messages()[0]
	assert.True(t, msg.IsError)
	assert.Contains(t, msg.Text, "not-allowed")
}

func TestAudioIsSkippedWhileRecording(t *testing.T) {
	player := newFakePlayer()
	recorder := &fakeRecorder{}
	h := startController(t, Options{SpeechOutput: true, Player: player, Recorder: recorder})
	conn := h.waitConnected(t)

	h.ctrl.StartVoice()
	h.waitActivity(t, ActivityRecording)

	conn.sendText(`{"text":"late reply","audio_path":"late.wav"}`)
	require.Eventually(t, func() bool { return len(h.view.Messages()) == 1 }, time.Second, 5*time.Millisecond)

	assert.Empty(t, player.URLs())
	assert.Equal(t, ActivityRecording, h.ctrl.Snapshot().Activity)
}

func TestStartVoiceWithoutCapabilityIsNoop(t *testing.T) {
	h := startController(t, Options{})
	h.waitConnected(t)

	h.ctrl.StartVoice()
	assert.Equal(t, ActivityIdle, h.ctrl.Snapshot().Activity)
	assert.False(t, h.view.Recording())
}

func TestBinaryAudioIsSkippedWhileRecording(t *testing.T) {
	player := newFakePlayer()
	recorder := &fakeRecorder{}
	h := startController(t, Options{SpeechOutput: true, Player: player, Recorder: recorder})
	conn := h.waitConnected(t)

	h.ctrl.StartVoice()
	h.waitActivity(t, ActivityRecording)

	conn.sendBinary([]byte{1, 2, 3})
	conn.sendText(`{"text":"marker"}`)
	require.Eventually(t, func() bool { return len(h.view.Messages()) == 1 }, time.Second, 5*time.Millisecond)

	assert.Zero(t, player.Clips())
	assert.Equal(t, ActivityRecording, h.ctrl.Snapshot().Activity)
}

func TestReplyDuringCaptureKeepsRecordingStatus(t *testing.T) {
	recorder := &fakeRecorder{}
	h := startController(t, Options{Recorder: recorder})
	conn := h.waitConnected(t)

	h.ctrl.StartVoice()
	h.waitActivity(t, ActivityRecording)

	h.ctrl.Submit("typed")
	require.Eventually(t, func() bool { return len(conn.Written()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ActivityRecording, h.ctrl.Snapshot().Activity, "sending does not hide the open microphone")

	conn.sendText(`{"text":"reply"}`)
	require.Eventually(t, func() bool { return len(h.view.Messages()) == 2 }, time.Second, 5*time.Millisecond)

	snap := h.ctrl.Snapshot()
	assert.True(t, snap.Recording)
	assert.Equal(t, ActivityRecording, snap.Activity)
	assert.Equal(t, "Recording...", snap.Status.Label)
	assert.Equal(t, "Recording...", h.view.LastStatus().Label)

	h.ctrl.StopVoice()
	h.waitActivity(t, ActivityIdle)
	assert.Equal(t, "Connected", h.view.LastStatus().Label)
}

func TestStopCaptureWithPendingReplyShowsProcessing(t *testing.T) {
	recorder := &fakeRecorder{}
	h := startController(t, Options{Recorder: recorder})
	conn := h.waitConnected(t)

	h.ctrl.StartVoice()
	h.waitActivity(t, ActivityRecording)
	h.ctrl.Submit("typed")
	h.ctrl.StopVoice()

	h.waitActivity(t, ActivityProcessing)
	assert.Equal(t, "Processing...", h.view.LastStatus().Label)

	conn.sendText(`{"text":"reply"}`)
	h.waitActivity(t, ActivityIdle)
}
