package main

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/room4-2/voicechat/session"
)

// Messages the controller sends into the bubbletea loop
type (
	appendMsg         session.ChatMessage
	statusMsg         session.Status
	inputMsg          string
	sendEnabledMsg    bool
	recordingMsg      bool
	voiceAvailableMsg bool
)

// programView forwards controller updates to the running program
type programView struct {
	program *tea.Program
}

func (v *programView) AppendMessage(msg session.ChatMessage) { v.program.Send(appendMsg(msg)) }
func (v *programView) SetStatus(status session.Status)       { v.program.Send(statusMsg(status)) }
func (v *programView) SetInput(text string)                  { v.program.Send(inputMsg(text)) }
func (v *programView) SetSendEnabled(enabled bool)           { v.program.Send(sendEnabledMsg(enabled)) }
func (v *programView) SetRecording(recording bool)           { v.program.Send(recordingMsg(recording)) }
func (v *programView) SetVoiceAvailable(available bool)      { v.program.Send(voiceAvailableMsg(available)) }
