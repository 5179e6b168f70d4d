package session

// ConnState is the state of the realtime connection
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Activity is what the session is doing on top of the connection
type Activity int

const (
	ActivityIdle Activity = iota
	ActivityProcessing
	ActivitySpeaking
	ActivityRecording
)

func (a Activity) String() string {
	switch a {
	case ActivityIdle:
		return "idle"
	case ActivityProcessing:
		return "processing"
	case ActivitySpeaking:
		return "speaking"
	case ActivityRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// Status is what the status indicator shows
type Status struct {
	Label string
	Class string // visual class: connected, connecting, disconnected, error, processing, speaking, recording
}

// StatusFor combines connection state and activity. While connected the
// activity wins, otherwise the connection state is shown.
func StatusFor(conn ConnState, activity Activity) Status {
	if conn == StateConnected {
		switch activity {
		case ActivityProcessing:
			return Status{Label: "Processing...", Class: "processing"}
		case ActivitySpeaking:
			return Status{Label: "Speaking...", Class: "speaking"}
		case ActivityRecording:
			return Status{Label: "Recording...", Class: "recording"}
		default:
			return Status{Label: "Connected", Class: "connected"}
		}
	}

	switch conn {
	case StateConnecting:
		return Status{Label: "Connecting...", Class: "connecting"}
	case StateError:
		return Status{Label: "Connection error", Class: "error"}
	default:
		return Status{Label: "Disconnected", Class: "disconnected"}
	}
}

// Snapshot is a point-in-time copy of the session state
type Snapshot struct {
	Conn         ConnState
	Activity     Activity
	SpeechOutput bool
	Recording    bool
	Status       Status
}
